package service

import (
	"context"
	"fmt"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/logger"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// Gate is the gating decision for one lifecycle step of a reference.
type Gate struct {
	Blocked   bool                     `json:"blocked"`
	Reason    string                   `json:"reason,omitempty"`
	RequestID string                   `json:"request_id,omitempty"`
	Status    repository.OverallStatus `json:"status,omitempty"`
}

// gateKey identifies an override in the gating rule table.
type gateKey struct {
	approvalType repository.ApprovalType
	status       repository.OverallStatus
	step         string
}

// gateOverrides lists lifecycle steps whose decision deviates from the
// status-derived default, keyed by (approval type, overall status, step).
// Internal review of client communications may proceed while approval is
// outstanding, and rejected agreements and SOW items reopen for drafting.
var gateOverrides = map[gateKey]bool{
	{repository.TypeClientCommunication, repository.StatusPending, "internal_review"}:   false,
	{repository.TypeClientCommunication, repository.StatusEscalated, "internal_review"}: false,
	{repository.TypeAgreement, repository.StatusRejected, "draft_edit"}:                 false,
	{repository.TypeSOWItem, repository.StatusRejected, "draft_edit"}:                   false,
}

// GatingService answers whether downstream lifecycle steps are blocked by an
// approval request. It only ever reads, so gate checks never contend with
// approval writes.
type GatingService struct {
	store repository.RequestStore
	log   *logger.Logger
}

// NewGatingService creates a new GatingService.
func NewGatingService(store repository.RequestStore, log *logger.Logger) *GatingService {
	return &GatingService{store: store, log: log}
}

// IsBlocked reports whether a lifecycle step on a reference is blocked by
// the reference's latest approval request. A reference with no request on
// record is never blocked. The decision is derived from a single read.
func (g *GatingService) IsBlocked(ctx context.Context, referenceID, step string) (*Gate, error) {
	if referenceID == "" {
		return nil, errors.InvalidInput("reference_id", "reference_id is required")
	}
	if step == "" {
		return nil, errors.InvalidInput("step", "step is required")
	}

	req, err := g.store.GetLatestByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return &Gate{Blocked: false}, nil
	}

	gate := defaultGate(req)
	if blocked, ok := gateOverrides[gateKey{req.ApprovalType, req.OverallStatus, step}]; ok {
		gate.Blocked = blocked
		if !blocked {
			gate.Reason = ""
		}
	}
	gate.RequestID = req.ID
	gate.Status = req.OverallStatus

	g.log.Debug().
		Str("reference_id", referenceID).
		Str("step", step).
		Bool("blocked", gate.Blocked).
		Msg("Gate evaluated")

	return gate, nil
}

// defaultGate derives the baseline decision from the overall status. Only an
// approved request unblocks the reference.
func defaultGate(req *repository.ApprovalRequest) *Gate {
	title := req.ReferenceTitle
	if title == "" {
		title = req.ReferenceID
	}

	switch req.OverallStatus {
	case repository.StatusApproved:
		return &Gate{Blocked: false}
	case repository.StatusPending, repository.StatusEscalated:
		return &Gate{
			Blocked: true,
			Reason:  fmt.Sprintf("%s pending approval (level %d of %d)", title, req.CurrentLevel, req.MaxLevel),
		}
	case repository.StatusRejected:
		reason := fmt.Sprintf("%s rejected - revise and resubmit", title)
		if comments := rejectionComments(req); comments != "" {
			reason = fmt.Sprintf("%s: %s", reason, comments)
		}
		return &Gate{Blocked: true, Reason: reason}
	case repository.StatusWithdrawn:
		return &Gate{
			Blocked: true,
			Reason:  fmt.Sprintf("%s approval withdrawn - resubmit required", title),
		}
	}
	return &Gate{Blocked: false}
}

// rejectionComments returns the comments left by the rejecting approver.
func rejectionComments(req *repository.ApprovalRequest) string {
	for i := range req.Levels {
		if req.Levels[i].Status == repository.LevelRejected {
			return req.Levels[i].Comments
		}
	}
	return ""
}
