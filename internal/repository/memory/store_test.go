package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

func newTestRequest(id, referenceID string, createdAt time.Time) *repository.ApprovalRequest {
	assigned := createdAt
	due := createdAt.Add(48 * time.Hour)
	return &repository.ApprovalRequest{
		ID:            id,
		ApprovalType:  repository.TypeExpense,
		ReferenceID:   referenceID,
		RequesterID:   "emp-1",
		OverallStatus: repository.StatusPending,
		CurrentLevel:  1,
		MaxLevel:      2,
		Version:       1,
		Levels: []repository.ApprovalLevel{
			{Level: 1, ApproverType: "manager", ApproverID: "mgr-1", Status: repository.LevelPending, AssignedAt: &assigned, DueAt: &due},
			{Level: 2, ApproverType: "finance", ApproverID: "farah-finance", Status: repository.LevelPending},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCreateAndGetByID(t *testing.T) {
	store := New()
	ctx := context.Background()
	req := newTestRequest("req-1", "exp-100", time.Now().UTC())

	require.NoError(t, store.Create(ctx, req, nil))

	got, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "exp-100", got.ReferenceID)
	assert.Len(t, got.Levels, 2)
}

func TestCreateDuplicateID(t *testing.T) {
	store := New()
	ctx := context.Background()
	req := newTestRequest("req-1", "exp-100", time.Now().UTC())

	require.NoError(t, store.Create(ctx, req, nil))
	err := store.Create(ctx, req, nil)
	assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
}

func TestGetByIDNotFound(t *testing.T) {
	store := New()

	_, err := store.GetByID(context.Background(), "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestRequest("req-1", "exp-100", time.Now().UTC()), nil))

	first, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)
	first.OverallStatus = repository.StatusApproved
	first.Levels[0].Status = repository.LevelApproved

	second, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, second.OverallStatus)
	assert.Equal(t, repository.LevelPending, second.Levels[0].Status)
}

func TestGetLatestByReference(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.Create(ctx, newTestRequest("req-1", "exp-100", base), nil))
	require.NoError(t, store.Create(ctx, newTestRequest("req-2", "exp-100", base.Add(time.Hour)), nil))
	require.NoError(t, store.Create(ctx, newTestRequest("req-3", "exp-200", base.Add(2*time.Hour)), nil))

	got, err := store.GetLatestByReference(ctx, "exp-100")
	require.NoError(t, err)
	assert.Equal(t, "req-2", got.ID)
}

func TestGetLatestByReferenceNone(t *testing.T) {
	store := New()

	got, err := store.GetLatestByReference(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateBumpsVersion(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestRequest("req-1", "exp-100", time.Now().UTC()), nil))

	req, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)
	req.Levels[0].Status = repository.LevelApproved

	require.NoError(t, store.Update(ctx, req, nil))
	assert.Equal(t, 2, req.Version)

	got, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, repository.LevelApproved, got.Levels[0].Status)
}

func TestUpdateVersionConflict(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestRequest("req-1", "exp-100", time.Now().UTC()), nil))

	stale, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)
	fresh, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, fresh, nil))

	err = store.Update(ctx, stale, nil)
	assert.Equal(t, errors.ErrCodeAlreadyActed, errors.Code(err))
}

func TestUpdateNotFound(t *testing.T) {
	store := New()
	req := newTestRequest("req-1", "exp-100", time.Now().UTC())

	err := store.Update(context.Background(), req, nil)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestListPendingForApprover(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Now().UTC()

	byID := newTestRequest("req-1", "exp-100", base)
	require.NoError(t, store.Create(ctx, byID, nil))

	byRole := newTestRequest("req-2", "exp-200", base.Add(time.Minute))
	byRole.Levels[0].ApproverID = ""
	require.NoError(t, store.Create(ctx, byRole, nil))

	finalized := newTestRequest("req-3", "exp-300", base.Add(2*time.Minute))
	finalized.OverallStatus = repository.StatusApproved
	finalized.CurrentLevel = 3
	require.NoError(t, store.Create(ctx, finalized, nil))

	atLevelTwo := newTestRequest("req-4", "exp-400", base.Add(3*time.Minute))
	atLevelTwo.CurrentLevel = 2
	atLevelTwo.Levels[0].Status = repository.LevelApproved
	require.NoError(t, store.Create(ctx, atLevelTwo, nil))

	got, err := store.ListPendingForApprover(ctx, "mgr-1", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "req-1", got[0].ID)

	got, err = store.ListPendingForApprover(ctx, "other-manager", []string{"manager"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "req-2", got[0].ID)
	assert.Equal(t, "req-1", got[1].ID)

	got, err = store.ListPendingForApprover(ctx, "farah-finance", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "req-4", got[0].ID)
}

func TestListPendingIncludesEscalated(t *testing.T) {
	store := New()
	ctx := context.Background()

	req := newTestRequest("req-1", "exp-100", time.Now().UTC())
	req.OverallStatus = repository.StatusEscalated
	require.NoError(t, store.Create(ctx, req, nil))

	got, err := store.ListPendingForApprover(ctx, "mgr-1", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListByRequester(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.Create(ctx, newTestRequest("req-1", "exp-100", base), nil))
	newer := newTestRequest("req-2", "exp-200", base.Add(time.Hour))
	require.NoError(t, store.Create(ctx, newer, nil))
	other := newTestRequest("req-3", "exp-300", base.Add(2*time.Hour))
	other.RequesterID = "emp-2"
	require.NoError(t, store.Create(ctx, other, nil))

	got, err := store.ListByRequester(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "req-2", got[0].ID)
	assert.Equal(t, "req-1", got[1].ID)
}

func TestListOverdue(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	overdue := newTestRequest("req-1", "exp-100", now.Add(-72*time.Hour))
	past := now.Add(-time.Hour)
	overdue.Levels[0].DueAt = &past
	require.NoError(t, store.Create(ctx, overdue, nil))

	onTime := newTestRequest("req-2", "exp-200", now)
	require.NoError(t, store.Create(ctx, onTime, nil))

	escalated := newTestRequest("req-3", "exp-300", now.Add(-96*time.Hour))
	escalated.OverallStatus = repository.StatusEscalated
	escalated.Levels[0].DueAt = &past
	require.NoError(t, store.Create(ctx, escalated, nil))

	noDeadline := newTestRequest("req-4", "exp-400", now.Add(-96*time.Hour))
	noDeadline.Levels[0].DueAt = nil
	require.NoError(t, store.Create(ctx, noDeadline, nil))

	got, err := store.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "req-1", got[0].ID)
}

func TestAuditTrailAppendOrder(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	req := newTestRequest("req-1", "exp-100", now)
	submitted := &repository.AuditEntry{ID: "audit-1", RequestID: "req-1", ActorID: "emp-1", Action: "submitted", CreatedAt: now}
	require.NoError(t, store.Create(ctx, req, submitted))

	got, err := store.GetByID(ctx, "req-1")
	require.NoError(t, err)
	got.Levels[0].Status = repository.LevelApproved
	approved := &repository.AuditEntry{ID: "audit-2", RequestID: "req-1", Level: 1, ActorID: "mgr-1", Action: "approved", CreatedAt: now.Add(time.Minute)}
	require.NoError(t, store.Update(ctx, got, approved))

	trail, err := store.AuditTrail(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "submitted", trail[0].Action)
	assert.Equal(t, "approved", trail[1].Action)
}

func TestAuditTrailEmpty(t *testing.T) {
	store := New()

	trail, err := store.AuditTrail(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, trail)
}
