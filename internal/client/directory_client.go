package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/httpclient"
)

// DirectoryClient is a client for the staff directory service, which owns
// role membership and the reporting line.
type DirectoryClient struct {
	client *httpclient.Client
}

// NewDirectoryClient creates a new directory service client.
func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{
		client: httpclient.NewClientWithTimeout(baseURL, timeout),
	}
}

// GetUsersWithRole returns the IDs of all users currently holding a role.
func (c *DirectoryClient) GetUsersWithRole(ctx context.Context, role string) ([]string, error) {
	path := fmt.Sprintf("/api/v1/users?role=%s", role)

	var resp ListUsersResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list users with role %s: %w", role, err)
	}

	ids := make([]string, 0, len(resp.Users))
	for _, u := range resp.Users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// GetUserRoles returns the role names a user holds.
func (c *DirectoryClient) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	path := fmt.Sprintf("/api/v1/users/roles?id=%s", userID)

	var resp UserRolesResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get roles for user %s: %w", userID, err)
	}
	return resp.Roles, nil
}

// GetManager returns the ID of the user's direct manager, or "" when the
// user has no manager on record.
func (c *DirectoryClient) GetManager(ctx context.Context, userID string) (string, error) {
	path := fmt.Sprintf("/api/v1/users/manager?id=%s", userID)

	var resp ManagerResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("failed to get manager for user %s: %w", userID, err)
	}
	return resp.ManagerID, nil
}
