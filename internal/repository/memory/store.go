// Package memory provides an in-memory RequestStore for development and
// tests. It mirrors the Postgres store's semantics, including the
// optimistic version check on Update.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// Store holds requests and audit entries behind a single mutex, so every
// operation is atomic, and hands out deep copies so callers never alias
// stored state.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*repository.ApprovalRequest
	audit    map[string][]*repository.AuditEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		requests: make(map[string]*repository.ApprovalRequest),
		audit:    make(map[string][]*repository.AuditEntry),
	}
}

var _ repository.RequestStore = (*Store)(nil)

// Create stores a new request and its submission audit entry.
func (s *Store) Create(_ context.Context, req *repository.ApprovalRequest, audit *repository.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return errors.Newf(errors.ErrCodeConflict, "approval request %s already exists", req.ID)
	}

	s.requests[req.ID] = cloneRequest(req)
	s.appendAudit(audit)
	return nil
}

// GetByID returns a copy of the request with its levels.
func (s *Store) GetByID(_ context.Context, id string) (*repository.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, errors.NotFound("approval_request", id)
	}
	return cloneRequest(req), nil
}

// GetLatestByReference returns the most recent request for a reference, or
// nil when none exists.
func (s *Store) GetLatestByReference(_ context.Context, referenceID string) (*repository.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *repository.ApprovalRequest
	for _, req := range s.requests {
		if req.ReferenceID != referenceID {
			continue
		}
		if latest == nil || req.CreatedAt.After(latest.CreatedAt) ||
			(req.CreatedAt.Equal(latest.CreatedAt) && req.ID > latest.ID) {
			latest = req
		}
	}

	if latest == nil {
		return nil, nil
	}
	return cloneRequest(latest), nil
}

// Update applies a mutation when the caller's version matches the stored
// version, bumping the version and appending the audit entry atomically.
func (s *Store) Update(_ context.Context, req *repository.ApprovalRequest, audit *repository.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[req.ID]
	if !ok {
		return errors.NotFound("approval_request", req.ID)
	}
	if stored.Version != req.Version {
		return errors.New(errors.ErrCodeAlreadyActed, "approval request was modified concurrently")
	}

	req.Version++
	s.requests[req.ID] = cloneRequest(req)
	s.appendAudit(audit)
	return nil
}

// ListPendingForApprover returns active requests whose current level awaits
// the user, matched by approver id or role membership.
func (s *Store) ListPendingForApprover(_ context.Context, approverID string, roles []string) ([]*repository.ApprovalRequest, error) {
	roleSet := make(map[string]bool, len(roles))
	for _, role := range roles {
		roleSet[role] = true
	}

	return s.collect(func(req *repository.ApprovalRequest) bool {
		if !req.IsActive() {
			return false
		}
		lvl := req.Level(req.CurrentLevel)
		if lvl == nil || lvl.Status != repository.LevelPending {
			return false
		}
		return (lvl.ApproverID != "" && lvl.ApproverID == approverID) || roleSet[lvl.ApproverType]
	}, newestFirst), nil
}

// ListByRequester returns all requests submitted by a user, newest first.
func (s *Store) ListByRequester(_ context.Context, requesterID string) ([]*repository.ApprovalRequest, error) {
	return s.collect(func(req *repository.ApprovalRequest) bool {
		return req.RequesterID == requesterID
	}, newestFirst), nil
}

// ListAll returns every request, newest first.
func (s *Store) ListAll(_ context.Context) ([]*repository.ApprovalRequest, error) {
	return s.collect(func(*repository.ApprovalRequest) bool { return true }, newestFirst), nil
}

// ListOverdue returns pending requests whose current level has passed its
// SLA deadline. Already-escalated requests are not returned again.
func (s *Store) ListOverdue(_ context.Context, now time.Time) ([]*repository.ApprovalRequest, error) {
	return s.collect(func(req *repository.ApprovalRequest) bool {
		if req.OverallStatus != repository.StatusPending {
			return false
		}
		lvl := req.Level(req.CurrentLevel)
		return lvl != nil && lvl.Status == repository.LevelPending &&
			lvl.DueAt != nil && lvl.DueAt.Before(now)
	}, oldestFirst), nil
}

// AuditTrail returns the audit log for a request in append order.
func (s *Store) AuditTrail(_ context.Context, requestID string) ([]*repository.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.audit[requestID]
	out := make([]*repository.AuditEntry, len(entries))
	for i, entry := range entries {
		out[i] = cloneAudit(entry)
	}
	return out, nil
}

// Ping reports the store as always reachable.
func (s *Store) Ping(context.Context) error {
	return nil
}

// ── internals ─────────────────────────────────────────────────────────────────

type sortOrder int

const (
	newestFirst sortOrder = iota
	oldestFirst
)

func (s *Store) collect(match func(*repository.ApprovalRequest) bool, order sortOrder) []*repository.ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.ApprovalRequest
	for _, req := range s.requests {
		if match(req) {
			out = append(out, cloneRequest(req))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if order == newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// appendAudit must be called with the write lock held.
func (s *Store) appendAudit(entry *repository.AuditEntry) {
	if entry == nil {
		return
	}
	s.audit[entry.RequestID] = append(s.audit[entry.RequestID], cloneAudit(entry))
}

func cloneRequest(r *repository.ApprovalRequest) *repository.ApprovalRequest {
	out := *r
	out.EscalatedAt = cloneTime(r.EscalatedAt)
	out.Levels = make([]repository.ApprovalLevel, len(r.Levels))
	copy(out.Levels, r.Levels)
	for i := range out.Levels {
		out.Levels[i].AssignedAt = cloneTime(r.Levels[i].AssignedAt)
		out.Levels[i].DueAt = cloneTime(r.Levels[i].DueAt)
		out.Levels[i].ActedAt = cloneTime(r.Levels[i].ActedAt)
	}
	return &out
}

func cloneAudit(e *repository.AuditEntry) *repository.AuditEntry {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
