// Package policy owns the per-type approval chain table and the builder
// that turns a table entry into a concrete chain of levels. The table is
// consulted only at build time; a request's chain never changes afterwards.
package policy

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
)

// Role tokens used in approval chains.
const (
	RoleManager  = "manager"
	RoleAdmin    = "admin"
	RoleHR       = "hr"
	RoleFinance  = "finance"
	RoleDirector = "director"
)

// Assignment modes for a level's approver.
const (
	AssignManager = "manager" // requester's reporting manager
	AssignFirst   = "first"   // first active holder of the role
	AssignAny     = "any"     // unassigned; any role holder may act
)

// LevelDef declares one level in a chain policy. An empty Assign defaults
// to AssignManager for the manager role and AssignFirst otherwise.
type LevelDef struct {
	Role   string `yaml:"role"`
	Assign string `yaml:"assign,omitempty"`
}

// Policy is the chain-building rule for one approval type.
type Policy struct {
	Chain                   []LevelDef
	ExtraReviewRole         string // appended when the request requires extra review
	ClientFacingRole        string // appended when the request is client facing
	HighValueRole           string // appended when the amount reaches the threshold
	HighValueThresholdCents int64
	SLA                     time.Duration // 0 = table default
}

// Table maps approval types to chain policies.
type Table struct {
	DefaultSLA time.Duration
	policies   map[repository.ApprovalType]Policy
}

// Default returns the built-in policy table with the given default SLA.
func Default(defaultSLA time.Duration) *Table {
	return &Table{
		DefaultSLA: defaultSLA,
		policies: map[repository.ApprovalType]Policy{
			repository.TypeSOWItem: {
				Chain: []LevelDef{{Role: RoleManager}},
			},
			repository.TypeAgreement: {
				Chain:                   []LevelDef{{Role: RoleManager}, {Role: RoleAdmin}},
				ExtraReviewRole:         RoleHR,
				HighValueRole:           RoleDirector,
				HighValueThresholdCents: 5_000_000,
			},
			repository.TypeQuotation: {
				Chain: []LevelDef{{Role: RoleManager}, {Role: RoleAdmin}},
			},
			repository.TypeLeaveRequest: {
				Chain: []LevelDef{{Role: RoleManager}, {Role: RoleHR, Assign: AssignAny}},
			},
			repository.TypeExpense: {
				Chain:                   []LevelDef{{Role: RoleManager}, {Role: RoleFinance}},
				HighValueRole:           RoleAdmin,
				HighValueThresholdCents: 1_000_000,
			},
			repository.TypeClientCommunication: {
				Chain:            []LevelDef{{Role: RoleManager}},
				ClientFacingRole: RoleDirector,
			},
			repository.TypeStaffingRequest: {
				Chain: []LevelDef{{Role: RoleAdmin}},
			},
			repository.TypeRoleChange: {
				Chain: []LevelDef{{Role: RoleHR, Assign: AssignAny}, {Role: RoleAdmin}},
			},
			repository.TypeAttendanceException: {
				Chain: []LevelDef{{Role: RoleManager}},
			},
		},
	}
}

// For returns the policy for an approval type.
func (t *Table) For(approvalType repository.ApprovalType) (Policy, error) {
	pol, ok := t.policies[approvalType]
	if !ok {
		return Policy{}, errors.Newf(errors.ErrCodeConfiguration,
			"no approval policy configured for type %q", string(approvalType))
	}
	return pol, nil
}

// SLAFor returns the escalation SLA for an approval type.
func (t *Table) SLAFor(approvalType repository.ApprovalType) time.Duration {
	if pol, ok := t.policies[approvalType]; ok && pol.SLA > 0 {
		return pol.SLA
	}
	return t.DefaultSLA
}

// ── YAML overrides ───────────────────────────────────────────────────────────

type filePolicy struct {
	Chain                   []LevelDef `yaml:"chain"`
	ExtraReviewRole         string     `yaml:"extra_review_role"`
	ClientFacingRole        string     `yaml:"client_facing_role"`
	HighValueRole           string     `yaml:"high_value_role"`
	HighValueThresholdCents int64      `yaml:"high_value_threshold_cents"`
	SLA                     string     `yaml:"sla"`
}

type fileTable struct {
	DefaultSLA string                `yaml:"default_sla"`
	Policies   map[string]filePolicy `yaml:"policies"`
}

// ApplyFile overlays policies from a YAML file. Each listed type replaces
// the built-in policy for that type wholesale; unlisted types keep their
// defaults.
func (t *Table) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfiguration, "failed to read policy file")
	}

	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfiguration, "failed to parse policy file")
	}

	if ft.DefaultSLA != "" {
		d, err := time.ParseDuration(ft.DefaultSLA)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfiguration, "invalid default_sla")
		}
		t.DefaultSLA = d
	}

	for name, fp := range ft.Policies {
		approvalType := repository.ApprovalType(name)
		if !approvalType.IsValid() {
			return errors.Newf(errors.ErrCodeConfiguration, "unknown approval type %q in policy file", name)
		}

		pol := Policy{
			Chain:                   fp.Chain,
			ExtraReviewRole:         fp.ExtraReviewRole,
			ClientFacingRole:        fp.ClientFacingRole,
			HighValueRole:           fp.HighValueRole,
			HighValueThresholdCents: fp.HighValueThresholdCents,
		}
		if fp.SLA != "" {
			d, err := time.ParseDuration(fp.SLA)
			if err != nil {
				return errors.Newf(errors.ErrCodeConfiguration, "invalid sla for type %q", name)
			}
			pol.SLA = d
		}
		if err := pol.validate(); err != nil {
			return err
		}

		t.policies[approvalType] = pol
	}

	return nil
}

func (p Policy) validate() error {
	if len(p.Chain) == 0 {
		return errors.New(errors.ErrCodeConfiguration, "policy chain must have at least one level")
	}
	for _, def := range p.Chain {
		if def.Role == "" {
			return errors.New(errors.ErrCodeConfiguration, "policy chain level is missing a role")
		}
		switch def.Assign {
		case "", AssignManager, AssignFirst, AssignAny:
		default:
			return errors.Newf(errors.ErrCodeConfiguration, "unknown assignment mode %q", def.Assign)
		}
	}
	return nil
}
