package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
)

// Audit log access for RequestRepository. Entries are written only inside
// Create/Update transactions so a state change and its audit record commit
// as one unit; the table carries a delete-prevention trigger.

// appendAudit inserts one audit entry within an open transaction.
func (r *RequestRepository) appendAudit(ctx context.Context, tx pgx.Tx, entry *AuditEntry) error {
	if entry == nil {
		return nil
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (id, request_id, level, actor_id,
		     action, comments, metadata, created_at)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.Level,
		entry.ActorID,
		entry.Action,
		entry.Comments,
		metadataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// AuditTrail returns the full audit log for a request ordered oldest-first.
func (r *RequestRepository) AuditTrail(ctx context.Context, requestID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, request_id, level, actor_id,
		       action, comments, metadata, created_at
		FROM approval_audit_log
		WHERE request_id = $1
		ORDER BY created_at ASC, id
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.Level,
			&entry.ActorID,
			&entry.Action,
			&entry.Comments,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}
