package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/client"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/clock"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/logger"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/policy"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// DirectoryClientInterface resolves role membership and the reporting line
// from the staff directory.
type DirectoryClientInterface interface {
	// GetUsersWithRole returns user IDs that currently hold the given role.
	GetUsersWithRole(ctx context.Context, role string) ([]string, error)
	// GetUserRoles returns the roles a specific user holds.
	GetUserRoles(ctx context.Context, userID string) ([]string, error)
	// GetManager returns the user's direct manager, or "" when none is set.
	GetManager(ctx context.Context, userID string) (string, error)
}

// NotificationPublisherInterface publishes approval workflow events.
// Implementations must be non-fatal: failures are logged, never returned.
type NotificationPublisherInterface interface {
	PublishApprovalEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]interface{})
}

// Decisions accepted by Act.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// systemActor marks audit entries written by background jobs.
const systemActor = "system"

// ApprovalService orchestrates the approval request lifecycle: submission,
// per-level decisions, withdrawal and queries.
type ApprovalService struct {
	store     repository.RequestStore
	builder   *policy.Builder
	table     *policy.Table
	directory DirectoryClientInterface
	notifier  NotificationPublisherInterface
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	store repository.RequestStore,
	builder *policy.Builder,
	table *policy.Table,
	directory DirectoryClientInterface,
	notifier NotificationPublisherInterface,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		store:     store,
		builder:   builder,
		table:     table,
		directory: directory,
		notifier:  notifier,
		log:       log,
	}
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitInput carries everything needed to open an approval request.
type SubmitInput struct {
	ApprovalType        repository.ApprovalType `json:"approval_type"`
	ReferenceID         string                  `json:"reference_id"`
	ReferenceTitle      string                  `json:"reference_title"`
	RequesterID         string                  `json:"requester_id"`
	Department          string                  `json:"department"`
	AmountCents         int64                   `json:"amount_cents"`
	IsClientFacing      bool                    `json:"is_client_facing"`
	RequiresExtraReview bool                    `json:"requires_extra_review"`
}

// Submit builds the approval chain for the reference and opens a new request
// at level 1. A reference can only carry one active request at a time.
func (s *ApprovalService) Submit(ctx context.Context, in SubmitInput) (*repository.ApprovalRequest, error) {
	if !in.ApprovalType.IsValid() {
		return nil, errors.InvalidInput("approval_type", fmt.Sprintf("unknown approval type %q", in.ApprovalType))
	}
	if in.ReferenceID == "" {
		return nil, errors.InvalidInput("reference_id", "reference_id is required")
	}
	if in.RequesterID == "" {
		return nil, errors.InvalidInput("requester_id", "requester_id is required")
	}

	existing, err := s.store.GetLatestByReference(ctx, in.ReferenceID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive() {
		return nil, errors.Newf(errors.ErrCodeConflict, "reference %s already has an active approval request", in.ReferenceID)
	}

	levels, err := s.builder.Build(ctx, policy.BuildInput{
		ApprovalType:        in.ApprovalType,
		RequesterID:         in.RequesterID,
		Department:          in.Department,
		AmountCents:         in.AmountCents,
		IsClientFacing:      in.IsClientFacing,
		RequiresExtraReview: in.RequiresExtraReview,
	})
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	req := &repository.ApprovalRequest{
		ID:                  uuid.NewString(),
		ApprovalType:        in.ApprovalType,
		ReferenceID:         in.ReferenceID,
		ReferenceTitle:      in.ReferenceTitle,
		RequesterID:         in.RequesterID,
		Department:          in.Department,
		AmountCents:         in.AmountCents,
		IsClientFacing:      in.IsClientFacing,
		RequiresExtraReview: in.RequiresExtraReview,
		OverallStatus:       repository.StatusPending,
		CurrentLevel:        1,
		MaxLevel:            len(levels),
		Version:             1,
		Levels:              levels,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	audit := s.newAuditEntry(req, 0, in.RequesterID, "submitted", "", map[string]interface{}{
		"approval_type": string(in.ApprovalType),
		"max_level":     req.MaxLevel,
	})
	if err := s.store.Create(ctx, req, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("approval_type", string(req.ApprovalType)).
		Str("reference_id", req.ReferenceID).
		Int("max_level", req.MaxLevel).
		Msg("Approval request submitted")

	s.notifier.PublishApprovalEvent(ctx, client.EventRequestSubmitted, req, in.RequesterID, []string{in.RequesterID}, nil)
	s.notifyCurrentApprover(ctx, req, in.RequesterID)

	return req, nil
}

// ── Approve / Reject ──────────────────────────────────────────────────────────

// ActInput carries a single approve or reject decision on one level.
type ActInput struct {
	RequestID string `json:"request_id"`
	Level     int    `json:"level"`
	ActorID   string `json:"actor_id"`
	Decision  string `json:"decision"`
	Comments  string `json:"comments"`
}

// Act applies an approve or reject decision to the request's current level.
// The state change and its audit entry are committed as one unit.
func (s *ApprovalService) Act(ctx context.Context, in ActInput) (*repository.ApprovalRequest, error) {
	if in.ActorID == "" {
		return nil, errors.InvalidInput("actor_id", "actor_id is required")
	}
	if in.Decision != DecisionApprove && in.Decision != DecisionReject {
		return nil, errors.InvalidInput("decision", fmt.Sprintf("decision must be %q or %q", DecisionApprove, DecisionReject))
	}
	if in.Decision == DecisionReject && strings.TrimSpace(in.Comments) == "" {
		return nil, errors.New(errors.ErrCodeMissingReason, "rejection requires a reason")
	}

	req, err := s.store.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	lvl, err := guardActionable(req, in.Level)
	if err != nil {
		return nil, err
	}
	if err := s.assertCanAct(ctx, lvl, in.ActorID); err != nil {
		return nil, err
	}

	now := clock.Now()
	var action string
	switch in.Decision {
	case DecisionApprove:
		action = "approved"
		if err := applyApprove(req, in.Level, in.ActorID, in.Comments, s.table.SLAFor(req.ApprovalType), now); err != nil {
			return nil, err
		}
	case DecisionReject:
		action = "rejected"
		if err := applyReject(req, in.Level, in.ActorID, in.Comments, now); err != nil {
			return nil, err
		}
	}

	audit := s.newAuditEntry(req, in.Level, in.ActorID, action, in.Comments, nil)
	if err := s.store.Update(ctx, req, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Int("level", in.Level).
		Str("actor_id", in.ActorID).
		Str("action", action).
		Str("overall_status", string(req.OverallStatus)).
		Msg("Approval action recorded")

	s.publishActionEvents(ctx, req, in.ActorID, in.Comments)

	return req, nil
}

// ── Withdrawal ────────────────────────────────────────────────────────────────

// Withdraw lets the requester cancel a request nobody has acted on yet.
func (s *ApprovalService) Withdraw(ctx context.Context, requestID, actorID string) (*repository.ApprovalRequest, error) {
	if actorID == "" {
		return nil, errors.InvalidInput("actor_id", "actor_id is required")
	}

	req, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actorID {
		return nil, errors.New(errors.ErrCodeUnauthorized, "only the requester can withdraw the request")
	}

	now := clock.Now()
	if err := applyWithdraw(req, now); err != nil {
		return nil, err
	}

	audit := s.newAuditEntry(req, 0, actorID, "withdrawn", "", nil)
	if err := s.store.Update(ctx, req, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("actor_id", actorID).
		Msg("Approval request withdrawn")

	if lvl := req.Level(req.CurrentLevel); lvl != nil {
		s.notifier.PublishApprovalEvent(ctx, client.EventRequestWithdrawn, req, actorID, s.levelRecipients(ctx, lvl), nil)
	}

	return req, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// Get returns a request with its levels.
func (s *ApprovalService) Get(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	return s.store.GetByID(ctx, id)
}

// GetPendingFor returns requests currently awaiting action from a user,
// matched by direct assignment or by role membership.
func (s *ApprovalService) GetPendingFor(ctx context.Context, approverID string) ([]*repository.ApprovalRequest, error) {
	roles, err := s.directory.GetUserRoles(ctx, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve approver roles")
	}
	return s.store.ListPendingForApprover(ctx, approverID, roles)
}

// GetByRequester returns the requests a user has submitted, newest first.
func (s *ApprovalService) GetByRequester(ctx context.Context, requesterID string) ([]*repository.ApprovalRequest, error) {
	return s.store.ListByRequester(ctx, requesterID)
}

// GetAll returns every request. Restricted to admin role holders.
func (s *ApprovalService) GetAll(ctx context.Context, actorID string) ([]*repository.ApprovalRequest, error) {
	roles, err := s.directory.GetUserRoles(ctx, actorID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve actor roles")
	}
	for _, role := range roles {
		if role == policy.RoleAdmin {
			return s.store.ListAll(ctx)
		}
	}
	return nil, errors.New(errors.ErrCodeUnauthorized, "listing all requests requires the admin role")
}

// AuditTrail returns the append-only audit log for a request.
func (s *ApprovalService) AuditTrail(ctx context.Context, requestID string) ([]*repository.AuditEntry, error) {
	if _, err := s.store.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.AuditTrail(ctx, requestID)
}

// ── Authorization helper ──────────────────────────────────────────────────────

// assertCanAct checks that the actor is the assigned approver for the level
// or holds the level's required role.
func (s *ApprovalService) assertCanAct(ctx context.Context, lvl *repository.ApprovalLevel, actorID string) error {
	if lvl.ApproverID != "" && lvl.ApproverID == actorID {
		return nil
	}

	roles, err := s.directory.GetUserRoles(ctx, actorID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve actor roles")
	}
	for _, role := range roles {
		if role == lvl.ApproverType {
			return nil
		}
	}
	return errors.New(errors.ErrCodeUnauthorized, "user is not authorized to act on this approval level")
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func (s *ApprovalService) newAuditEntry(req *repository.ApprovalRequest, level int, actorID, action, comments string, metadata map[string]interface{}) *repository.AuditEntry {
	return &repository.AuditEntry{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Level:     level,
		ActorID:   actorID,
		Action:    action,
		Comments:  comments,
		Metadata:  metadata,
		CreatedAt: clock.Now(),
	}
}

// publishActionEvents notifies the requester on finalization, or the next
// approver when the chain advanced.
func (s *ApprovalService) publishActionEvents(ctx context.Context, req *repository.ApprovalRequest, actorID, comments string) {
	switch req.OverallStatus {
	case repository.StatusApproved:
		s.notifier.PublishApprovalEvent(ctx, client.EventRequestApproved, req, actorID, []string{req.RequesterID}, nil)
	case repository.StatusRejected:
		s.notifier.PublishApprovalEvent(ctx, client.EventRequestRejected, req, actorID, []string{req.RequesterID}, map[string]interface{}{
			"reason": comments,
		})
	default:
		s.notifyCurrentApprover(ctx, req, actorID)
	}
}

// notifyCurrentApprover sends approval_required to whoever can act on the
// current level.
func (s *ApprovalService) notifyCurrentApprover(ctx context.Context, req *repository.ApprovalRequest, actorID string) {
	lvl := req.Level(req.CurrentLevel)
	if lvl == nil || lvl.Status != repository.LevelPending {
		return
	}
	s.notifier.PublishApprovalEvent(ctx, client.EventApprovalRequired, req, actorID, s.levelRecipients(ctx, lvl), map[string]interface{}{
		"level": lvl.Level,
		"role":  lvl.ApproverType,
	})
}

// levelRecipients resolves who should be notified about a level: the
// assigned approver, or every holder of the level's role when unassigned.
func (s *ApprovalService) levelRecipients(ctx context.Context, lvl *repository.ApprovalLevel) []string {
	if lvl.ApproverID != "" {
		return []string{lvl.ApproverID}
	}
	users, err := s.directory.GetUsersWithRole(ctx, lvl.ApproverType)
	if err != nil {
		s.log.Warn().Err(err).Str("role", lvl.ApproverType).Msg("Could not resolve notification recipients for role")
		return nil
	}
	return users
}
