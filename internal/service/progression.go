package service

import (
	"time"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// The apply* functions implement chain progression as pure mutations on an
// in-memory request. Persistence and the optimistic version check live in
// the store; callers must persist via RequestStore.Update afterwards.

// guardActionable rejects actions on finalized requests and on any level
// other than the pending current level.
func guardActionable(req *repository.ApprovalRequest, level int) (*repository.ApprovalLevel, error) {
	if req.OverallStatus.IsTerminal() {
		return nil, errors.Newf(errors.ErrCodeAlreadyFinalized, "approval request is already %s", req.OverallStatus)
	}
	if level != req.CurrentLevel {
		return nil, errors.Newf(errors.ErrCodeAlreadyActed, "level %d is not the current level", level)
	}
	lvl := req.Level(level)
	if lvl == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "approval level %d does not exist", level)
	}
	if lvl.Status != repository.LevelPending {
		return nil, errors.Newf(errors.ErrCodeAlreadyActed, "level %d has already been acted on", level)
	}
	return lvl, nil
}

// applyApprove records an approval at the given level and advances the
// request, finalizing it when the last level approves. The next level's SLA
// clock starts now. An escalated request returns to normal progression.
func applyApprove(req *repository.ApprovalRequest, level int, actorID, comments string, sla time.Duration, now time.Time) error {
	lvl, err := guardActionable(req, level)
	if err != nil {
		return err
	}

	lvl.Status = repository.LevelApproved
	lvl.ActorID = actorID
	lvl.Comments = comments
	lvl.ActedAt = &now

	req.OverallStatus = repository.StatusPending
	req.EscalatedAt = nil

	if level == req.MaxLevel {
		req.OverallStatus = repository.StatusApproved
		req.CurrentLevel = req.MaxLevel + 1
	} else {
		req.CurrentLevel = level + 1
		next := req.Level(req.CurrentLevel)
		due := now.Add(sla)
		next.AssignedAt = &now
		next.DueAt = &due
	}

	req.UpdatedAt = now
	return nil
}

// applyReject records a rejection, which short-circuits the chain: the
// request finalizes immediately and every later level is marked skipped.
func applyReject(req *repository.ApprovalRequest, level int, actorID, comments string, now time.Time) error {
	lvl, err := guardActionable(req, level)
	if err != nil {
		return err
	}

	lvl.Status = repository.LevelRejected
	lvl.ActorID = actorID
	lvl.Comments = comments
	lvl.ActedAt = &now

	for i := range req.Levels {
		if req.Levels[i].Level > level && req.Levels[i].Status == repository.LevelPending {
			req.Levels[i].Status = repository.LevelSkipped
		}
	}

	req.OverallStatus = repository.StatusRejected
	req.CurrentLevel = req.MaxLevel + 1
	req.EscalatedAt = nil
	req.UpdatedAt = now
	return nil
}

// applyEscalate flags an active request as escalated without touching its
// current level or any level status. Returns false without error when the
// request is already escalated, so repeated sweeps are no-ops.
func applyEscalate(req *repository.ApprovalRequest, now time.Time) (bool, error) {
	if req.OverallStatus.IsTerminal() {
		return false, errors.Newf(errors.ErrCodeAlreadyFinalized, "approval request is already %s", req.OverallStatus)
	}
	if req.OverallStatus == repository.StatusEscalated {
		return false, nil
	}

	req.OverallStatus = repository.StatusEscalated
	req.EscalatedAt = &now
	req.UpdatedAt = now
	return true, nil
}

// applyWithdraw finalizes a request without touching its levels. Permitted
// only while the request is active and no level has been acted on yet.
func applyWithdraw(req *repository.ApprovalRequest, now time.Time) error {
	if req.OverallStatus.IsTerminal() {
		return errors.Newf(errors.ErrCodeAlreadyFinalized, "approval request is already %s", req.OverallStatus)
	}
	if req.CurrentLevel != 1 {
		return errors.New(errors.ErrCodeAlreadyActed, "level 1 has already been acted on")
	}

	req.OverallStatus = repository.StatusWithdrawn
	req.EscalatedAt = nil
	req.UpdatedAt = now
	return nil
}
