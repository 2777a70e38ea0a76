package repository

import (
	"context"
	"time"
)

// ── Domain types for the approval engine ─────────────────────────────────────

// ApprovalType identifies the kind of business object a request gates.
type ApprovalType string

// The closed set of approval types the engine routes.
const (
	TypeSOWItem             ApprovalType = "sow_item"
	TypeAgreement           ApprovalType = "agreement"
	TypeQuotation           ApprovalType = "quotation"
	TypeLeaveRequest        ApprovalType = "leave_request"
	TypeExpense             ApprovalType = "expense"
	TypeClientCommunication ApprovalType = "client_communication"
	TypeStaffingRequest     ApprovalType = "staffing_request"
	TypeRoleChange          ApprovalType = "role_change"
	TypeAttendanceException ApprovalType = "attendance_exception"
)

var validApprovalTypes = map[ApprovalType]bool{
	TypeSOWItem:             true,
	TypeAgreement:           true,
	TypeQuotation:           true,
	TypeLeaveRequest:        true,
	TypeExpense:             true,
	TypeClientCommunication: true,
	TypeStaffingRequest:     true,
	TypeRoleChange:          true,
	TypeAttendanceException: true,
}

// IsValid reports whether t is one of the known approval types.
func (t ApprovalType) IsValid() bool {
	return validApprovalTypes[t]
}

// OverallStatus is the request-level status.
type OverallStatus string

const (
	StatusPending   OverallStatus = "pending"
	StatusApproved  OverallStatus = "approved"
	StatusRejected  OverallStatus = "rejected"
	StatusEscalated OverallStatus = "escalated" // still actionable; pending with the SLA flag raised
	StatusWithdrawn OverallStatus = "withdrawn"
)

var terminalStatuses = map[OverallStatus]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusWithdrawn: true,
}

// IsTerminal reports whether no further transition is possible.
func (s OverallStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// LevelStatus is the per-level status.
type LevelStatus string

const (
	LevelPending  LevelStatus = "pending"
	LevelApproved LevelStatus = "approved"
	LevelRejected LevelStatus = "rejected"
	LevelSkipped  LevelStatus = "skipped"
)

// ApprovalRequest is one approval chain instance over a business object.
// Levels are fixed at creation; only their statuses, actors and approver
// reassignment change afterwards.
type ApprovalRequest struct {
	ID                  string          `json:"id"`
	ApprovalType        ApprovalType    `json:"approval_type"`
	ReferenceID         string          `json:"reference_id"`
	ReferenceTitle      string          `json:"reference_title"`
	RequesterID         string          `json:"requester_id"`
	Department          string          `json:"department,omitempty"`
	AmountCents         int64           `json:"amount_cents,omitempty"`
	IsClientFacing      bool            `json:"is_client_facing"`
	RequiresExtraReview bool            `json:"requires_extra_review"`
	OverallStatus       OverallStatus   `json:"overall_status"`
	CurrentLevel        int             `json:"current_level"` // 1-indexed; MaxLevel+1 once approved or rejected
	MaxLevel            int             `json:"max_level"`
	Version             int             `json:"version"` // optimistic lock token
	Levels              []ApprovalLevel `json:"levels"`
	EscalatedAt         *time.Time      `json:"escalated_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsActive reports whether the request can still be acted on.
func (r *ApprovalRequest) IsActive() bool {
	return !r.OverallStatus.IsTerminal()
}

// Level returns the level with the given 1-indexed number, or nil when out
// of range.
func (r *ApprovalRequest) Level(n int) *ApprovalLevel {
	if n < 1 || n > len(r.Levels) {
		return nil
	}
	return &r.Levels[n-1]
}

// ApprovalLevel is a single sequential gate in a request's chain.
type ApprovalLevel struct {
	Level        int         `json:"level"`
	ApproverType string      `json:"approver_type"`         // role token: manager | admin | hr | finance | director
	ApproverID   string      `json:"approver_id,omitempty"` // resolved person; empty when any role holder may act
	Status       LevelStatus `json:"status"`
	ActorID      string      `json:"actor_id,omitempty"`
	Comments     string      `json:"comments,omitempty"` // required when status is rejected
	AssignedAt   *time.Time  `json:"assigned_at,omitempty"`
	DueAt        *time.Time  `json:"due_at,omitempty"` // SLA deadline once the level is current
	ActedAt      *time.Time  `json:"acted_at,omitempty"`
}

// AuditEntry is one immutable record in the audit log.
type AuditEntry struct {
	ID        string                 `json:"id"`
	RequestID string                 `json:"request_id"`
	Level     int                    `json:"level,omitempty"`
	ActorID   string                 `json:"actor_id"` // "system" for sweeper actions
	Action    string                 `json:"action"`   // submitted | approved | rejected | escalated | withdrawn
	Comments  string                 `json:"comments,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ── Store contract ───────────────────────────────────────────────────────────

// RequestStore is the persistence contract for approval requests. Create and
// Update persist the request, its levels and the accompanying audit entry as
// one atomic unit. Update performs an optimistic version check: it only
// applies when the stored version equals req.Version, bumps the version on
// success and fails with an ALREADY_ACTED error when another writer won.
type RequestStore interface {
	Create(ctx context.Context, req *ApprovalRequest, audit *AuditEntry) error
	GetByID(ctx context.Context, id string) (*ApprovalRequest, error)
	GetLatestByReference(ctx context.Context, referenceID string) (*ApprovalRequest, error)
	Update(ctx context.Context, req *ApprovalRequest, audit *AuditEntry) error
	ListPendingForApprover(ctx context.Context, approverID string, roles []string) ([]*ApprovalRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*ApprovalRequest, error)
	ListAll(ctx context.Context) ([]*ApprovalRequest, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*ApprovalRequest, error)
	AuditTrail(ctx context.Context, requestID string) ([]*AuditEntry, error)
	Ping(ctx context.Context) error
}
