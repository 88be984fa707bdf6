// Package events fans committed market outcomes out to optional sinks: a
// Redis stream, an S3 archive and the chat notifier. Sinks run after the
// transaction commits, so their failures are logged and never undo a
// clearing.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leaguebid/internal/market"

	"golang.org/x/sync/errgroup"
)

const (
	TypeSessionCleared = "session.cleared"
	TypeRewardGranted  = "reward.granted"
)

const defaultSinkTimeout = 10 * time.Second

// Event is the envelope every sink receives.
type Event struct {
	Type       string          `json:"type"`
	LeagueID   string          `json:"league_id"`
	SessionID  string          `json:"session_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`

	clearing *market.ClearingReport
	reward   *market.RewardGrant
}

// Clearing returns the report carried by a session.cleared event.
func (e Event) Clearing() (market.ClearingReport, bool) {
	if e.clearing == nil {
		return market.ClearingReport{}, false
	}
	return *e.clearing, true
}

func (e Event) Reward() (market.RewardGrant, bool) {
	if e.reward == nil {
		return market.RewardGrant{}, false
	}
	return *e.reward, true
}

func NewClearingEvent(report market.ClearingReport) (Event, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return Event{}, fmt.Errorf("marshal clearing report: %w", err)
	}
	return Event{
		Type:       TypeSessionCleared,
		LeagueID:   report.LeagueID,
		SessionID:  report.SessionID,
		OccurredAt: report.ClosedAt,
		Payload:    payload,
		clearing:   &report,
	}, nil
}

func NewRewardEvent(grant market.RewardGrant) (Event, error) {
	payload, err := json.Marshal(grant)
	if err != nil {
		return Event{}, fmt.Errorf("marshal reward grant: %w", err)
	}
	return Event{
		Type:       TypeRewardGranted,
		LeagueID:   grant.LeagueID,
		OccurredAt: grant.GrantedAt,
		Payload:    payload,
		reward:     &grant,
	}, nil
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher implements market.Reporter over a set of sinks.
type Dispatcher struct {
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration
}

func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		log:     logger.With("component", "events"),
		timeout: defaultSinkTimeout,
	}
}

func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (d *Dispatcher) ReportClearing(ctx context.Context, report market.ClearingReport) error {
	ev, err := NewClearingEvent(report)
	if err != nil {
		return err
	}
	return d.publish(ctx, ev)
}

func (d *Dispatcher) ReportReward(ctx context.Context, grant market.RewardGrant) error {
	ev, err := NewRewardEvent(grant)
	if err != nil {
		return err
	}
	return d.publish(ctx, ev)
}

// publish runs every sink concurrently. A request that has already returned
// must not cancel delivery, so the caller's cancellation is dropped and each
// run is bounded by the dispatcher timeout instead.
func (d *Dispatcher) publish(ctx context.Context, ev Event) error {
	if len(d.sinks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, sink := range d.sinks {
		g.Go(func() error {
			if err := sink.Publish(ctx, ev); err != nil {
				d.log.WarnContext(ctx, "event sink failed", "sink", sink.Name(), "type", ev.Type, "league_id", ev.LeagueID, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

var _ market.Reporter = (*Dispatcher)(nil)
