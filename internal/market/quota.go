package market

import (
	"context"
	"fmt"
)

// DefaultMaxRoster is the roster capacity used when none is configured.
const DefaultMaxRoster = 25

// Verdict is the outcome of an eligibility check.
type Verdict struct {
	Valid  bool
	Reason string
}

// Check is one eligibility rule evaluated for a candidate acquisition.
// Checks only read; they must not mutate state through tx.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, tx Tx, team Team, asset Asset) (Verdict, error)
}

// RosterCapacity rejects teams already holding Max assets. The roster size
// is read from tx on every call so earlier wins in the same clearing pass
// are counted.
type RosterCapacity struct {
	Max int
}

func (RosterCapacity) Name() string { return "roster_capacity" }

func (c RosterCapacity) Evaluate(ctx context.Context, tx Tx, team Team, _ Asset) (Verdict, error) {
	size, err := tx.RosterSize(ctx, team.ID)
	if err != nil {
		return Verdict{}, err
	}
	if size >= c.Max {
		return Verdict{Reason: fmt.Sprintf("roster full (%d/%d)", size, c.Max)}, nil
	}
	return Verdict{Valid: true}, nil
}

// ActiveMembership rejects teams whose league membership is no longer active.
type ActiveMembership struct{}

func (ActiveMembership) Name() string { return "active_membership" }

func (ActiveMembership) Evaluate(_ context.Context, _ Tx, team Team, _ Asset) (Verdict, error) {
	if !team.Active {
		return Verdict{Reason: "team membership is not active"}, nil
	}
	return Verdict{Valid: true}, nil
}

// SameLeague rejects acquisitions across leagues.
type SameLeague struct{}

func (SameLeague) Name() string { return "same_league" }

func (SameLeague) Evaluate(_ context.Context, _ Tx, team Team, asset Asset) (Verdict, error) {
	if team.LeagueID != asset.LeagueID {
		return Verdict{Reason: "asset belongs to another league"}, nil
	}
	return Verdict{Valid: true}, nil
}

// QuotaValidator runs its checks in a fixed order and stops at the first
// failure.
type QuotaValidator struct {
	checks []Check
}

func NewQuotaValidator(checks ...Check) *QuotaValidator {
	return &QuotaValidator{checks: checks}
}

// DefaultQuota returns the standard rule set: same league, roster capacity
// and, optionally, active membership.
func DefaultQuota(maxRoster int, requireActive bool) *QuotaValidator {
	if maxRoster <= 0 {
		maxRoster = DefaultMaxRoster
	}
	checks := []Check{SameLeague{}, RosterCapacity{Max: maxRoster}}
	if requireActive {
		checks = append(checks, ActiveMembership{})
	}
	return NewQuotaValidator(checks...)
}

// Validate locks the team row, then evaluates every check. The lock is held
// until commit, so a concurrent acquisition for the same team waits and then
// counts this one.
func (v *QuotaValidator) Validate(ctx context.Context, tx Tx, teamID string, asset Asset) (Verdict, error) {
	team, err := tx.LockTeam(ctx, teamID)
	if err != nil {
		return Verdict{}, err
	}
	for _, c := range v.checks {
		verdict, err := c.Evaluate(ctx, tx, team, asset)
		if err != nil {
			return Verdict{}, fmt.Errorf("%s: %w", c.Name(), err)
		}
		if !verdict.Valid {
			return verdict, nil
		}
	}
	return Verdict{Valid: true}, nil
}
