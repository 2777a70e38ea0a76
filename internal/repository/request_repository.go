package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/database"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
)

// RequestRepository is the Postgres-backed RequestStore. A request and its
// levels are written together in a single transaction, and every mutation
// goes through an optimistic version check.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

var _ RequestStore = (*RequestRepository)(nil)

// requestColumns selects a request row joined with one of its level rows.
// Reads use a single statement so the snapshot is consistent.
const requestColumns = `
	r.id, r.approval_type, r.reference_id, r.reference_title,
	r.requester_id, r.department, r.amount_cents,
	r.is_client_facing, r.requires_extra_review,
	r.overall_status, r.current_level, r.max_level, r.version,
	r.escalated_at, r.created_at, r.updated_at,
	l.level, l.approver_type, l.approver_id, l.status,
	l.actor_id, l.comments, l.assigned_at, l.due_at, l.acted_at`

// Create inserts a request, its levels and the submission audit entry in
// one transaction.
func (r *RequestRepository) Create(ctx context.Context, req *ApprovalRequest, audit *AuditEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		reqQuery := `
			INSERT INTO approval_requests
			    (id, approval_type, reference_id, reference_title,
			     requester_id, department, amount_cents,
			     is_client_facing, requires_extra_review,
			     overall_status, current_level, max_level, version,
			     escalated_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4,
			        $5, $6, $7,
			        $8, $9,
			        $10, $11, $12, $13,
			        $14, $15, $16)
		`

		_, err := tx.Exec(ctx, reqQuery,
			req.ID,
			req.ApprovalType,
			req.ReferenceID,
			req.ReferenceTitle,
			req.RequesterID,
			req.Department,
			req.AmountCents,
			req.IsClientFacing,
			req.RequiresExtraReview,
			req.OverallStatus,
			req.CurrentLevel,
			req.MaxLevel,
			req.Version,
			req.EscalatedAt,
			req.CreatedAt,
			req.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval request")
		}

		levelQuery := `
			INSERT INTO approval_levels
			    (request_id, level, approver_type, approver_id, status,
			     actor_id, comments, assigned_at, due_at, acted_at)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8, $9, $10)
		`

		for i := range req.Levels {
			lvl := &req.Levels[i]
			_, err := tx.Exec(ctx, levelQuery,
				req.ID,
				lvl.Level,
				lvl.ApproverType,
				lvl.ApproverID,
				lvl.Status,
				lvl.ActorID,
				lvl.Comments,
				lvl.AssignedAt,
				lvl.DueAt,
				lvl.ActedAt,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval level")
			}
		}

		return r.appendAudit(ctx, tx, audit)
	})
}

// GetByID retrieves a request with its levels.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN approval_levels l ON l.request_id = r.id
		WHERE r.id = $1
		ORDER BY l.level
	`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval request")
	}

	requests, err := r.scanRequestRows(rows)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, errors.NotFound("approval_request", id)
	}
	return requests[0], nil
}

// GetLatestByReference returns the most recent request gating a business
// object. Returns nil when no request exists for the reference.
func (r *RequestRepository) GetLatestByReference(ctx context.Context, referenceID string) (*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN approval_levels l ON l.request_id = r.id
		WHERE r.id = (
			SELECT id FROM approval_requests
			WHERE reference_id = $1
			ORDER BY created_at DESC
			LIMIT 1
		)
		ORDER BY l.level
	`

	rows, err := r.db.Query(ctx, query, referenceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval request by reference")
	}

	requests, err := r.scanRequestRows(rows)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return requests[0], nil
}

// Update persists a mutated request, its levels and the accompanying audit
// entry in one transaction. The version predicate makes concurrent writers
// race safely: the loser matches no row and gets an ALREADY_ACTED error.
func (r *RequestRepository) Update(ctx context.Context, req *ApprovalRequest, audit *AuditEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_requests
			SET overall_status = $3,
			    current_level  = $4,
			    version        = version + 1,
			    escalated_at   = $5,
			    updated_at     = $6
			WHERE id = $1 AND version = $2
			RETURNING version
		`

		var newVersion int
		err := tx.QueryRow(ctx, query,
			req.ID,
			req.Version,
			req.OverallStatus,
			req.CurrentLevel,
			req.EscalatedAt,
			req.UpdatedAt,
		).Scan(&newVersion)
		if err == pgx.ErrNoRows {
			return errors.New(errors.ErrCodeAlreadyActed, "approval request was modified concurrently")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval request")
		}
		req.Version = newVersion

		levelQuery := `
			UPDATE approval_levels
			SET approver_id = $3,
			    status      = $4,
			    actor_id    = $5,
			    comments    = $6,
			    assigned_at = $7,
			    due_at      = $8,
			    acted_at    = $9
			WHERE request_id = $1 AND level = $2
		`

		for i := range req.Levels {
			lvl := &req.Levels[i]
			_, err := tx.Exec(ctx, levelQuery,
				req.ID,
				lvl.Level,
				lvl.ApproverID,
				lvl.Status,
				lvl.ActorID,
				lvl.Comments,
				lvl.AssignedAt,
				lvl.DueAt,
				lvl.ActedAt,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval level")
			}
		}

		return r.appendAudit(ctx, tx, audit)
	})
}

// ListPendingForApprover returns active requests whose current level awaits
// the given user, matched by resolved approver id or by role membership.
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, approverID string, roles []string) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN approval_levels l ON l.request_id = r.id
		WHERE r.overall_status IN ('pending', 'escalated')
		  AND EXISTS (
		      SELECT 1 FROM approval_levels cl
		      WHERE cl.request_id = r.id
		        AND cl.level = r.current_level
		        AND cl.status = 'pending'
		        AND (cl.approver_id = $1 OR cl.approver_type = ANY($2))
		  )
		ORDER BY r.created_at DESC, r.id, l.level
	`

	rows, err := r.db.Query(ctx, query, approverID, roles)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending approvals")
	}
	return r.scanRequestRows(rows)
}

// ListByRequester returns all requests submitted by a user, newest first.
func (r *RequestRepository) ListByRequester(ctx context.Context, requesterID string) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN approval_levels l ON l.request_id = r.id
		WHERE r.requester_id = $1
		ORDER BY r.created_at DESC, r.id, l.level
	`

	rows, err := r.db.Query(ctx, query, requesterID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals by requester")
	}
	return r.scanRequestRows(rows)
}

// ListAll returns every request, newest first.
func (r *RequestRepository) ListAll(ctx context.Context) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN approval_levels l ON l.request_id = r.id
		ORDER BY r.created_at DESC, r.id, l.level
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval requests")
	}
	return r.scanRequestRows(rows)
}

// ListOverdue returns pending requests whose current level has passed its
// SLA deadline. Requests already flagged escalated are not returned again.
func (r *RequestRepository) ListOverdue(ctx context.Context, now time.Time) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN approval_levels l ON l.request_id = r.id
		WHERE r.overall_status = 'pending'
		  AND EXISTS (
		      SELECT 1 FROM approval_levels cl
		      WHERE cl.request_id = r.id
		        AND cl.level = r.current_level
		        AND cl.status = 'pending'
		        AND cl.due_at IS NOT NULL
		        AND cl.due_at < $1
		  )
		ORDER BY r.created_at, r.id, l.level
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list overdue approvals")
	}
	return r.scanRequestRows(rows)
}

// Ping verifies the backing database is reachable.
func (r *RequestRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

// scanRequestRows folds joined request+level rows into aggregates. Rows for
// one request arrive contiguously because every query orders by request
// before level.
func (r *RequestRepository) scanRequestRows(rows pgx.Rows) ([]*ApprovalRequest, error) {
	defer rows.Close()

	var (
		requests []*ApprovalRequest
		current  *ApprovalRequest
	)

	for rows.Next() {
		req := &ApprovalRequest{}
		lvl := ApprovalLevel{}

		err := rows.Scan(
			&req.ID,
			&req.ApprovalType,
			&req.ReferenceID,
			&req.ReferenceTitle,
			&req.RequesterID,
			&req.Department,
			&req.AmountCents,
			&req.IsClientFacing,
			&req.RequiresExtraReview,
			&req.OverallStatus,
			&req.CurrentLevel,
			&req.MaxLevel,
			&req.Version,
			&req.EscalatedAt,
			&req.CreatedAt,
			&req.UpdatedAt,
			&lvl.Level,
			&lvl.ApproverType,
			&lvl.ApproverID,
			&lvl.Status,
			&lvl.ActorID,
			&lvl.Comments,
			&lvl.AssignedAt,
			&lvl.DueAt,
			&lvl.ActedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval request")
		}

		if current == nil || current.ID != req.ID {
			current = req
			requests = append(requests, current)
		}
		current.Levels = append(current.Levels, lvl)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approval requests")
	}
	return requests, nil
}
