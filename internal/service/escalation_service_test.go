package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/client"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/logger"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository/memory"
)

func newSweeperOn(store repository.RequestStore, dir *client.MemoryDirectory, pub *fakePublisher, reassign bool) *EscalationSweeper {
	return NewEscalationSweeper(store, dir, pub, EscalationConfig{
		SweepInterval: time.Minute,
		Reassign:      reassign,
		TargetRole:    "admin",
	}, logger.Nop())
}

func TestSweepEscalatesOverdueRequest(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	req := submitAgreement(t, svc, "agr-100")

	sweepTime := testTime.Add(49 * time.Hour)
	setNow(t, sweepTime)

	sweeper := newSweeperOn(store, newTestDirectory(), pub, true)
	assert.Equal(t, 1, sweeper.Sweep(ctx))

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusEscalated, got.OverallStatus)
	require.NotNil(t, got.EscalatedAt)
	assert.Equal(t, sweepTime, *got.EscalatedAt)
	assert.Equal(t, 1, got.CurrentLevel)
	assert.Equal(t, repository.LevelPending, got.Levels[0].Status)

	// mgr-1 reports to devi-director, so the stalled level moves up.
	assert.Equal(t, "devi-director", got.Levels[0].ApproverID)

	trail, err := store.AuditTrail(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "escalated", trail[1].Action)
	assert.Equal(t, systemActor, trail[1].ActorID)
	assert.Equal(t, "devi-director", trail[1].Metadata["reassigned_to"])

	last := pub.events[len(pub.events)-1]
	assert.Equal(t, client.EventRequestEscalated, last.eventType)
	assert.Equal(t, []string{"devi-director", "emp-1"}, last.recipients)
}

func TestSweepIsIdempotent(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	submitAgreement(t, svc, "agr-100")

	setNow(t, testTime.Add(49*time.Hour))
	sweeper := newSweeperOn(store, newTestDirectory(), pub, true)

	assert.Equal(t, 1, sweeper.Sweep(ctx))
	assert.Equal(t, 0, sweeper.Sweep(ctx))
}

func TestSweepSkipsOnTimeRequests(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	submitAgreement(t, svc, "agr-100")

	setNow(t, testTime.Add(time.Hour))
	sweeper := newSweeperOn(store, newTestDirectory(), pub, true)

	assert.Equal(t, 0, sweeper.Sweep(ctx))
}

func TestSweepWithoutReassignment(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	req := submitAgreement(t, svc, "agr-100")

	setNow(t, testTime.Add(49*time.Hour))
	sweeper := newSweeperOn(store, newTestDirectory(), pub, false)
	require.Equal(t, 1, sweeper.Sweep(ctx))

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusEscalated, got.OverallStatus)
	assert.Equal(t, "mgr-1", got.Levels[0].ApproverID)

	trail, err := store.AuditTrail(ctx, req.ID)
	require.NoError(t, err)
	_, reassigned := trail[1].Metadata["reassigned_to"]
	assert.False(t, reassigned)
}

func TestEscalatedRequestProceedsNormally(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	req := submitAgreement(t, svc, "agr-100")

	setNow(t, testTime.Add(49*time.Hour))
	sweeper := newSweeperOn(store, newTestDirectory(), pub, true)
	require.Equal(t, 1, sweeper.Sweep(ctx))

	// The reassigned approver acts and the chain resumes as if never stalled.
	got, err := svc.Act(ctx, ActInput{RequestID: req.ID, Level: 1, ActorID: "devi-director", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, got.OverallStatus)
	assert.Nil(t, got.EscalatedAt)
	assert.Equal(t, 2, got.CurrentLevel)

	got, err = svc.Act(ctx, ActInput{RequestID: req.ID, Level: 2, ActorID: "alice-admin", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, got.OverallStatus)
}

func TestEscalateLosesVersionRace(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	req := submitAgreement(t, svc, "agr-100")

	sweepTime := testTime.Add(49 * time.Hour)
	setNow(t, sweepTime)

	stale, err := store.ListOverdue(ctx, sweepTime)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	// An approval lands between the list and the escalation write.
	_, err = svc.Act(ctx, ActInput{RequestID: req.ID, Level: 1, ActorID: "mgr-1", Decision: DecisionApprove})
	require.NoError(t, err)

	sweeper := newSweeperOn(store, newTestDirectory(), pub, true)
	err = sweeper.escalate(ctx, stale[0], sweepTime)
	assert.Equal(t, errors.ErrCodeAlreadyActed, errors.Code(err))

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, got.OverallStatus)
	assert.Equal(t, 2, got.CurrentLevel)
}

type selectiveFailStore struct {
	repository.RequestStore
	failID string
}

func (s *selectiveFailStore) Update(ctx context.Context, req *repository.ApprovalRequest, audit *repository.AuditEntry) error {
	if req.ID == s.failID {
		return errors.New(errors.ErrCodeInternal, "write failed")
	}
	return s.RequestStore.Update(ctx, req, audit)
}

func TestSweepIsolatesPerRequestFailures(t *testing.T) {
	setNow(t, testTime)
	inner := memory.New()
	store := &selectiveFailStore{RequestStore: inner}
	dir := newTestDirectory()
	svc, pub := newTestServiceOn(store, dir)
	ctx := context.Background()

	first := submitAgreement(t, svc, "agr-100")
	setNow(t, testTime.Add(time.Hour))
	second := submitAgreement(t, svc, "agr-200")

	store.failID = first.ID
	setNow(t, testTime.Add(50*time.Hour))
	sweeper := newSweeperOn(store, dir, pub, true)

	assert.Equal(t, 1, sweeper.Sweep(ctx))

	gotFirst, err := inner.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, gotFirst.OverallStatus)

	gotSecond, err := inner.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusEscalated, gotSecond.OverallStatus)
}

func TestSweeperStartStop(t *testing.T) {
	svc, store, pub := newTestService(t)
	req := submitAgreement(t, svc, "agr-100")

	setNow(t, testTime.Add(49*time.Hour))
	sweeper := NewEscalationSweeper(store, newTestDirectory(), pub, EscalationConfig{
		SweepInterval: 20 * time.Millisecond,
		Reassign:      true,
		TargetRole:    "admin",
	}, logger.Nop())

	sweeper.Start()
	assert.Eventually(t, func() bool {
		got, err := store.GetByID(context.Background(), req.ID)
		return err == nil && got.OverallStatus == repository.StatusEscalated
	}, 2*time.Second, 10*time.Millisecond)
	sweeper.Stop()
}
