package client

import (
	"context"
	"fmt"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/httpclient"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// ApprovalsClient is the client sibling services embed to submit work for
// approval and to check gates before privileged steps.
type ApprovalsClient struct {
	client *httpclient.Client
}

// NewApprovalsClient creates a new approvals service client.
func NewApprovalsClient(baseURL string) *ApprovalsClient {
	return &ApprovalsClient{
		client: httpclient.NewClient(baseURL),
	}
}

// Submit opens an approval request for a reference document.
func (c *ApprovalsClient) Submit(ctx context.Context, in SubmitApprovalRequest) (*repository.ApprovalRequest, error) {
	var req repository.ApprovalRequest
	if err := c.client.Post(ctx, "/api/v1/approvals", in, &req); err != nil {
		return nil, fmt.Errorf("failed to submit approval request: %w", err)
	}
	return &req, nil
}

// Get retrieves a single approval request by id.
func (c *ApprovalsClient) Get(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	path := fmt.Sprintf("/api/v1/approvals/get?id=%s", id)

	var req repository.ApprovalRequest
	if err := c.client.Get(ctx, path, &req); err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return &req, nil
}

// Approve records an approval decision on one level.
func (c *ApprovalsClient) Approve(ctx context.Context, requestID string, level int, actorID, comments string) (*repository.ApprovalRequest, error) {
	return c.act(ctx, ApprovalActionRequest{
		RequestID: requestID,
		Level:     level,
		ActorID:   actorID,
		Decision:  "approve",
		Comments:  comments,
	})
}

// Reject records a rejection on one level. A reason is required.
func (c *ApprovalsClient) Reject(ctx context.Context, requestID string, level int, actorID, reason string) (*repository.ApprovalRequest, error) {
	return c.act(ctx, ApprovalActionRequest{
		RequestID: requestID,
		Level:     level,
		ActorID:   actorID,
		Decision:  "reject",
		Comments:  reason,
	})
}

func (c *ApprovalsClient) act(ctx context.Context, in ApprovalActionRequest) (*repository.ApprovalRequest, error) {
	var req repository.ApprovalRequest
	if err := c.client.Post(ctx, "/api/v1/approvals/act", in, &req); err != nil {
		return nil, fmt.Errorf("failed to act on approval request: %w", err)
	}
	return &req, nil
}

// Withdraw cancels an in-progress request (requester only).
func (c *ApprovalsClient) Withdraw(ctx context.Context, requestID, actorID string) (*repository.ApprovalRequest, error) {
	var req repository.ApprovalRequest
	err := c.client.Post(ctx, "/api/v1/approvals/withdraw", WithdrawApprovalRequest{
		RequestID: requestID,
		ActorID:   actorID,
	}, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to withdraw approval request: %w", err)
	}
	return &req, nil
}

// PendingFor returns the requests waiting on a user, directly or through a role.
func (c *ApprovalsClient) PendingFor(ctx context.Context, approverID string) ([]*repository.ApprovalRequest, error) {
	path := fmt.Sprintf("/api/v1/approvals/pending?approver_id=%s", approverID)

	var resp ListApprovalsResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	return resp.Requests, nil
}

// CheckGate reports whether a workflow step on a reference document is blocked
// by its approval state.
func (c *ApprovalsClient) CheckGate(ctx context.Context, referenceID, step string) (*GateResponse, error) {
	path := fmt.Sprintf("/api/v1/gates/check?reference_id=%s&step=%s", referenceID, step)

	var gate GateResponse
	if err := c.client.Get(ctx, path, &gate); err != nil {
		return nil, fmt.Errorf("failed to check gate: %w", err)
	}
	return &gate, nil
}
