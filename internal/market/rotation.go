package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Rotation is the outcome of one RotateLeague pass.
type Rotation struct {
	LeagueID string          `json:"league_id"`
	Closed   *ClearingReport `json:"closed,omitempty"`
	Opened   *SessionView    `json:"opened,omitempty"`
	Skipped  string          `json:"skipped,omitempty"`
}

// RotateLeague closes the league's open session once it is older than
// maxAge, then opens the next one. A league with no open session gets one
// opened. Losing a race with an admin close or open is not an error.
func (s *Service) RotateLeague(ctx context.Context, leagueID string, maxAge time.Duration) (Rotation, error) {
	out := Rotation{LeagueID: leagueID}
	current, err := s.currentSession(ctx, leagueID)
	if err != nil {
		return out, err
	}
	if current != nil {
		if age := s.now().Sub(current.OpenedAt); age < maxAge {
			out.Skipped = fmt.Sprintf("session #%d open for %s", current.SequenceNumber, age.Truncate(time.Second))
			return out, nil
		}
		report, err := s.CloseSession(ctx, current.ID)
		switch {
		case err == nil:
			out.Closed = &report
		case errors.Is(err, ErrInvalidState):
			s.log.InfoContext(ctx, "session already closed", "session_id", current.ID)
		default:
			return out, fmt.Errorf("close session %s: %w", current.ID, err)
		}
	}

	view, err := s.OpenSession(ctx, leagueID)
	switch {
	case err == nil:
		out.Opened = &view
	case errors.Is(err, ErrInsufficientPool):
		s.log.WarnContext(ctx, "rotation skipped: free-agent pool too small", "league_id", leagueID, "err", err)
		out.Skipped = "insufficient pool"
	case errors.Is(err, ErrConflict):
		out.Skipped = "session already open"
	default:
		return out, fmt.Errorf("open session: %w", err)
	}
	return out, nil
}

// RotateAll runs RotateLeague for every league. A failing league does not
// stop the others.
func (s *Service) RotateAll(ctx context.Context, maxAge time.Duration) ([]Rotation, error) {
	leagues, err := s.ListLeagues(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out  []Rotation
		errs []error
	)
	for _, l := range leagues {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := s.RotateLeague(ctx, l.ID, maxAge)
		if err != nil {
			s.log.ErrorContext(ctx, "rotation failed", "league_id", l.ID, "err", err)
			errs = append(errs, fmt.Errorf("league %s: %w", l.ID, err))
			continue
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

func (s *Service) currentSession(ctx context.Context, leagueID string) (*Session, error) {
	var current *Session
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current = nil
		if _, err := tx.League(ctx, leagueID); err != nil {
			return err
		}
		session, err := tx.OpenSession(ctx, leagueID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current = &session
		return nil
	})
	return current, err
}
