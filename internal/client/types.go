package client

import "github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"

// DirectoryUser represents a user record in the staff directory
type DirectoryUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	IsActive   bool   `json:"is_active"`
}

// ListUsersResponse represents the role-filtered user list response
type ListUsersResponse struct {
	Users []DirectoryUser `json:"users"`
	Total int64           `json:"total"`
}

// UserRolesResponse represents the user roles lookup response
type UserRolesResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// ManagerResponse represents the manager lookup response
type ManagerResponse struct {
	UserID    string `json:"user_id"`
	ManagerID string `json:"manager_id"`
}

// SubmitApprovalRequest represents the submission payload
type SubmitApprovalRequest struct {
	ApprovalType        repository.ApprovalType `json:"approval_type"`
	ReferenceID         string                  `json:"reference_id"`
	ReferenceTitle      string                  `json:"reference_title,omitempty"`
	RequesterID         string                  `json:"requester_id"`
	Department          string                  `json:"department,omitempty"`
	AmountCents         int64                   `json:"amount_cents,omitempty"`
	IsClientFacing      bool                    `json:"is_client_facing,omitempty"`
	RequiresExtraReview bool                    `json:"requires_extra_review,omitempty"`
}

// ApprovalActionRequest represents an approve/reject payload
type ApprovalActionRequest struct {
	RequestID string `json:"request_id"`
	Level     int    `json:"level"`
	ActorID   string `json:"actor_id"`
	Decision  string `json:"decision"`
	Comments  string `json:"comments,omitempty"`
}

// WithdrawApprovalRequest represents a withdrawal payload
type WithdrawApprovalRequest struct {
	RequestID string `json:"request_id"`
	ActorID   string `json:"actor_id"`
}

// ListApprovalsResponse represents a request list response
type ListApprovalsResponse struct {
	Requests []*repository.ApprovalRequest `json:"requests"`
	Total    int                           `json:"total"`
}

// GateResponse represents the gate check response
type GateResponse struct {
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status,omitempty"`
}
