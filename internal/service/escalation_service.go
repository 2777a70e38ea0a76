package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/client"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/clock"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/logger"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// sweepTimeout bounds a single sweep pass.
const sweepTimeout = 2 * time.Minute

// EscalationConfig controls the sweep cadence and reassignment behavior.
type EscalationConfig struct {
	SweepInterval time.Duration
	Reassign      bool
	TargetRole    string
}

// EscalationSweeper periodically flags overdue pending requests as escalated
// and optionally reassigns the stalled level to a higher authority. It goes
// through the same versioned store write as human actions, so a sweep racing
// an approval loses cleanly.
type EscalationSweeper struct {
	store     repository.RequestStore
	directory DirectoryClientInterface
	notifier  NotificationPublisherInterface
	cfg       EscalationConfig
	log       *logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewEscalationSweeper creates a new EscalationSweeper.
func NewEscalationSweeper(
	store repository.RequestStore,
	directory DirectoryClientInterface,
	notifier NotificationPublisherInterface,
	cfg EscalationConfig,
	log *logger.Logger,
) *EscalationSweeper {
	return &EscalationSweeper{
		store:     store,
		directory: directory,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
		stop:      make(chan struct{}),
	}
}

// Start launches the periodic sweep loop.
func (s *EscalationSweeper) Start() {
	s.wg.Add(1)
	go s.run()

	s.log.Info().
		Dur("interval", s.cfg.SweepInterval).
		Bool("reassign", s.cfg.Reassign).
		Msg("Escalation sweeper started")
}

// Stop terminates the sweep loop and waits for an in-flight sweep to finish.
func (s *EscalationSweeper) Stop() {
	close(s.stop)
	s.wg.Wait()

	s.log.Info().Msg("Escalation sweeper stopped")
}

func (s *EscalationSweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			s.Sweep(ctx)
			cancel()
		}
	}
}

// Sweep escalates every overdue request once and returns the number
// escalated. A failure on one request is logged and does not stop the rest
// of the sweep.
func (s *EscalationSweeper) Sweep(ctx context.Context) int {
	now := clock.Now()

	overdue, err := s.store.ListOverdue(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("Escalation sweep: failed to list overdue requests")
		return 0
	}

	escalated := 0
	for _, req := range overdue {
		if err := s.escalate(ctx, req, now); err != nil {
			if errors.Code(err) == errors.ErrCodeAlreadyActed {
				s.log.Debug().
					Str("request_id", req.ID).
					Msg("Escalation sweep: request changed concurrently, skipping")
			} else {
				s.log.Error().Err(err).
					Str("request_id", req.ID).
					Msg("Escalation sweep: failed to escalate request")
			}
			continue
		}
		escalated++
	}

	if escalated > 0 {
		s.log.Info().Int("count", escalated).Msg("Escalation sweep: requests escalated")
	}
	return escalated
}

// escalate marks one request escalated, reassigns the stalled level when
// configured, and persists both with a system audit entry.
func (s *EscalationSweeper) escalate(ctx context.Context, req *repository.ApprovalRequest, now time.Time) error {
	changed, err := applyEscalate(req, now)
	if err != nil || !changed {
		return err
	}

	lvl := req.Level(req.CurrentLevel)
	metadata := map[string]interface{}{
		"level": req.CurrentLevel,
	}

	if s.cfg.Reassign && lvl != nil {
		if target := s.resolveEscalationTarget(ctx, lvl); target != "" && target != lvl.ApproverID {
			metadata["reassigned_from"] = lvl.ApproverID
			metadata["reassigned_to"] = target
			lvl.ApproverID = target
		}
	}

	audit := &repository.AuditEntry{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Level:     req.CurrentLevel,
		ActorID:   systemActor,
		Action:    "escalated",
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.store.Update(ctx, req, audit); err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Int("level", req.CurrentLevel).
		Msg("Approval request escalated")

	recipients := s.escalationRecipients(ctx, req, lvl)
	s.notifier.PublishApprovalEvent(ctx, client.EventRequestEscalated, req, systemActor, recipients, metadata)

	return nil
}

// resolveEscalationTarget prefers the stalled approver's manager, falling
// back to the first holder of the configured target role.
func (s *EscalationSweeper) resolveEscalationTarget(ctx context.Context, lvl *repository.ApprovalLevel) string {
	if lvl.ApproverID != "" {
		mgr, err := s.directory.GetManager(ctx, lvl.ApproverID)
		if err != nil {
			s.log.Warn().Err(err).
				Str("approver_id", lvl.ApproverID).
				Msg("Escalation sweep: manager lookup failed")
		} else if mgr != "" {
			return mgr
		}
	}

	users, err := s.directory.GetUsersWithRole(ctx, s.cfg.TargetRole)
	if err != nil {
		s.log.Warn().Err(err).
			Str("role", s.cfg.TargetRole).
			Msg("Escalation sweep: target role lookup failed")
		return ""
	}
	if len(users) == 0 {
		return ""
	}
	return users[0]
}

// escalationRecipients notifies whoever now owns the stalled level plus the
// requester.
func (s *EscalationSweeper) escalationRecipients(ctx context.Context, req *repository.ApprovalRequest, lvl *repository.ApprovalLevel) []string {
	var recipients []string
	if lvl != nil {
		if lvl.ApproverID != "" {
			recipients = append(recipients, lvl.ApproverID)
		} else if users, err := s.directory.GetUsersWithRole(ctx, lvl.ApproverType); err == nil {
			recipients = append(recipients, users...)
		}
	}
	return append(recipients, req.RequesterID)
}
