package client

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-process directory used when no directory service
// is configured. Role holders keep insertion order, so approver resolution
// stays deterministic.
type MemoryDirectory struct {
	mu          sync.RWMutex
	usersByRole map[string][]string
	rolesByUser map[string][]string
	managers    map[string]string
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		usersByRole: make(map[string][]string),
		rolesByUser: make(map[string][]string),
		managers:    make(map[string]string),
	}
}

// NewDemoDirectory creates a directory seeded with one holder per role and a
// demo employee reporting to the demo manager. Used by the memory driver so a
// fresh server can route every approval type out of the box.
func NewDemoDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	d.AddUser("demo-employee")
	d.AddUser("demo-manager", "manager")
	d.AddUser("demo-admin", "admin")
	d.AddUser("demo-hr", "hr")
	d.AddUser("demo-finance", "finance")
	d.AddUser("demo-director", "director")
	d.SetManager("demo-employee", "demo-manager")
	d.SetManager("demo-manager", "demo-director")
	return d
}

// AddUser registers a user and the roles it holds.
func (d *MemoryDirectory) AddUser(id string, roles ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rolesByUser[id] = append(d.rolesByUser[id], roles...)
	for _, role := range roles {
		d.usersByRole[role] = append(d.usersByRole[role], id)
	}
}

// SetManager records userID's direct manager.
func (d *MemoryDirectory) SetManager(userID, managerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.managers[userID] = managerID
}

// GetUsersWithRole returns the IDs of all users holding a role, in the order
// they were added.
func (d *MemoryDirectory) GetUsersWithRole(_ context.Context, role string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := d.usersByRole[role]
	out := make([]string, len(users))
	copy(out, users)
	return out, nil
}

// GetUserRoles returns the role names a user holds.
func (d *MemoryDirectory) GetUserRoles(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	roles := d.rolesByUser[userID]
	out := make([]string, len(roles))
	copy(out, roles)
	return out, nil
}

// GetManager returns the ID of the user's manager, or "" when none is set.
func (d *MemoryDirectory) GetManager(_ context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.managers[userID], nil
}
