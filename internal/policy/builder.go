package policy

import (
	"context"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/clock"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// ApproverResolver resolves people from the org directory at build time.
type ApproverResolver interface {
	// GetUsersWithRole returns the IDs of active holders of a role.
	GetUsersWithRole(ctx context.Context, role string) ([]string, error)
	// GetManager returns the reporting manager of a user, or "" when the
	// user has none.
	GetManager(ctx context.Context, userID string) (string, error)
}

// BuildInput carries the request attributes the policy consults.
type BuildInput struct {
	ApprovalType        repository.ApprovalType
	RequesterID         string
	Department          string
	AmountCents         int64
	IsClientFacing      bool
	RequiresExtraReview bool
}

// Builder constructs approval chains from the policy table. Build is
// deterministic for identical inputs and directory state.
type Builder struct {
	table     *Table
	directory ApproverResolver
}

// NewBuilder creates a Builder over the given table and directory.
func NewBuilder(table *Table, directory ApproverResolver) *Builder {
	return &Builder{table: table, directory: directory}
}

// Build returns the ordered levels for a new request. Conditional levels
// (extra review, client facing, high value) are appended after the base
// chain, in that order. Level 1 is stamped as current with the type's SLA
// deadline.
func (b *Builder) Build(ctx context.Context, in BuildInput) ([]repository.ApprovalLevel, error) {
	pol, err := b.table.For(in.ApprovalType)
	if err != nil {
		return nil, err
	}

	defs := make([]LevelDef, 0, len(pol.Chain)+3)
	defs = append(defs, pol.Chain...)
	if in.RequiresExtraReview && pol.ExtraReviewRole != "" {
		defs = append(defs, LevelDef{Role: pol.ExtraReviewRole, Assign: AssignFirst})
	}
	if in.IsClientFacing && pol.ClientFacingRole != "" {
		defs = append(defs, LevelDef{Role: pol.ClientFacingRole, Assign: AssignFirst})
	}
	if pol.HighValueRole != "" && pol.HighValueThresholdCents > 0 && in.AmountCents >= pol.HighValueThresholdCents {
		defs = append(defs, LevelDef{Role: pol.HighValueRole, Assign: AssignFirst})
	}

	if len(defs) == 0 {
		return nil, errors.Newf(errors.ErrCodeConfiguration,
			"approval chain for type %q is empty", string(in.ApprovalType))
	}

	now := clock.Now()
	due := now.Add(b.table.SLAFor(in.ApprovalType))

	levels := make([]repository.ApprovalLevel, 0, len(defs))
	for i, def := range defs {
		approverID, err := b.resolveApprover(ctx, def, in.RequesterID)
		if err != nil {
			return nil, err
		}

		lvl := repository.ApprovalLevel{
			Level:        i + 1,
			ApproverType: def.Role,
			ApproverID:   approverID,
			Status:       repository.LevelPending,
		}
		if i == 0 {
			lvl.AssignedAt = &now
			lvl.DueAt = &due
		}
		levels = append(levels, lvl)
	}

	return levels, nil
}

// resolveApprover resolves a level's concrete approver. Every mode requires
// the role to currently have a holder; AssignAny additionally leaves the
// level unassigned so any holder can act.
func (b *Builder) resolveApprover(ctx context.Context, def LevelDef, requesterID string) (string, error) {
	mode := def.Assign
	if mode == "" {
		if def.Role == RoleManager {
			mode = AssignManager
		} else {
			mode = AssignFirst
		}
	}

	switch mode {
	case AssignManager:
		manager, err := b.directory.GetManager(ctx, requesterID)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeUnresolvedApprover, "failed to resolve reporting manager")
		}
		if manager == "" {
			return "", errors.Newf(errors.ErrCodeUnresolvedApprover,
				"requester %s has no reporting manager", requesterID)
		}
		return manager, nil

	case AssignFirst, AssignAny:
		users, err := b.directory.GetUsersWithRole(ctx, def.Role)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeUnresolvedApprover, "failed to resolve role holders")
		}
		if len(users) == 0 {
			return "", errors.Newf(errors.ErrCodeUnresolvedApprover,
				"no active holder for role %q", def.Role)
		}
		if mode == AssignAny {
			return "", nil
		}
		return users[0], nil

	default:
		return "", errors.Newf(errors.ErrCodeConfiguration, "unknown assignment mode %q", mode)
	}
}
