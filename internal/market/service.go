package market

import (
	"context"
	"log/slog"
	"time"
)

// Reporter receives the outcome of committed operations. It is called after
// the transaction commits and never inside it.
type Reporter interface {
	ReportClearing(ctx context.Context, report ClearingReport) error
	ReportReward(ctx context.Context, grant RewardGrant) error
}

type Service struct {
	store       Store
	log         *slog.Logger
	quota       *QuotaValidator
	rand        RandSource
	now         func() time.Time
	sessionSize int
	reporter    Reporter
}

type Option func(*Service)

// WithClock overrides the time source used for placedAt, openedAt and
// closedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRandSource(r RandSource) Option {
	return func(s *Service) { s.rand = r }
}

func WithSessionSize(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.sessionSize = k
		}
	}
}

func WithQuota(q *QuotaValidator) Option {
	return func(s *Service) {
		if q != nil {
			s.quota = q
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       store,
		log:         logger,
		quota:       DefaultQuota(DefaultMaxRoster, true),
		rand:        cryptoRandSource{},
		now:         func() time.Time { return time.Now().UTC() },
		sessionSize: DefaultSessionSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListLeagues(ctx context.Context) ([]League, error) {
	var leagues []League
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		leagues, err = tx.ListLeagues(ctx)
		return err
	})
	return leagues, err
}

func (s *Service) Team(ctx context.Context, teamID string) (Team, error) {
	var team Team
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		team, err = tx.Team(ctx, teamID)
		return err
	})
	return team, err
}

// LeagueTeams lists the league's teams without budget figures.
func (s *Service) LeagueTeams(ctx context.Context, leagueID string) ([]Team, error) {
	var teams []Team
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.League(ctx, leagueID); err != nil {
			return err
		}
		var err error
		teams, err = tx.LeagueTeams(ctx, leagueID)
		return err
	})
	return teams, err
}

func (s *Service) Budget(ctx context.Context, teamID string) (BudgetView, error) {
	var view BudgetView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.TeamBudget(ctx, teamID)
		if err != nil {
			return err
		}
		view = b.View()
		return nil
	})
	return view, err
}

func (s *Service) reportClearing(ctx context.Context, report ClearingReport) {
	if s.reporter == nil {
		return
	}
	if err := s.reporter.ReportClearing(ctx, report); err != nil {
		s.log.WarnContext(ctx, "clearing report dispatch failed", "session_id", report.SessionID, "error", err)
	}
}

func (s *Service) reportReward(ctx context.Context, grant RewardGrant) {
	if s.reporter == nil {
		return
	}
	if err := s.reporter.ReportReward(ctx, grant); err != nil {
		s.log.WarnContext(ctx, "reward dispatch failed", "team_id", grant.TeamID, "error", err)
	}
}
