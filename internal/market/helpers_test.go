package market_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"leaguebid/internal/market"
	"leaguebid/internal/store/memory"
)

const leagueID = "league-1"

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) Now() time.Time { return c.at }

func (c *fakeClock) Set(offset time.Duration) {
	c.at = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC).Add(offset)
}

// fataler is satisfied by both *testing.T and *rapid.T.
type fataler interface {
	Fatalf(format string, args ...any)
}

type fixture struct {
	svc   *market.Service
	store *memory.Store
	clock *fakeClock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t fataler, opts ...market.Option) *fixture {
	store := memory.New()
	clock := &fakeClock{}
	clock.Set(0)
	opts = append([]market.Option{market.WithClock(clock.Now)}, opts...)
	f := &fixture{
		svc:   market.NewService(store, quietLogger(), opts...),
		store: store,
		clock: clock,
	}
	f.tx(t, func(ctx context.Context, tx market.Tx) error {
		return tx.InsertLeague(ctx, market.League{ID: leagueID, Name: "Test League", CreatedAt: clock.at})
	})
	return f
}

func (f *fixture) tx(t fataler, fn func(ctx context.Context, tx market.Tx) error) {
	if err := f.store.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("fixture tx: %v", err)
	}
}

func (f *fixture) addTeam(t fataler, id string, total int64) {
	f.addTeamIn(t, leagueID, id, total)
}

func (f *fixture) addTeamIn(t fataler, league, id string, total int64) {
	f.tx(t, func(ctx context.Context, tx market.Tx) error {
		if _, err := tx.League(ctx, league); err != nil {
			if err := tx.InsertLeague(ctx, market.League{ID: league, Name: league}); err != nil {
				return err
			}
		}
		team := market.Team{ID: id, LeagueID: league, Name: id, ControllerUserID: "user-" + id, Active: true}
		return tx.InsertTeam(ctx, team, market.Budget{Total: total})
	})
}

func (f *fixture) addAsset(t fataler, id string, price int64) {
	f.putAsset(t, market.Asset{ID: id, LeagueID: leagueID, Name: "Player " + id, Position: "MF", Price: price})
}

func (f *fixture) putAsset(t fataler, asset market.Asset) {
	f.tx(t, func(ctx context.Context, tx market.Tx) error {
		return tx.InsertAsset(ctx, asset)
	})
}

func (f *fixture) budget(t fataler, teamID string) market.BudgetView {
	b, err := f.svc.Budget(context.Background(), teamID)
	if err != nil {
		t.Fatalf("budget %s: %v", teamID, err)
	}
	return b
}

func (f *fixture) open(t fataler) market.SessionView {
	view, err := f.svc.OpenSession(context.Background(), leagueID)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return view
}

func (f *fixture) bid(t fataler, teamID, itemID string, amount int64, at time.Duration) market.Bid {
	f.clock.Set(at)
	bid, err := f.svc.PlaceBid(context.Background(), market.PlaceBidInput{TeamID: teamID, ItemID: itemID, Amount: amount})
	if err != nil {
		t.Fatalf("place bid %s on %s: %v", teamID, itemID, err)
	}
	return bid
}

func (f *fixture) bidState(t fataler, bidID string) market.BidState {
	for _, b := range f.store.Bids() {
		if b.ID == bidID {
			return b.State
		}
	}
	t.Fatalf("bid %s not found", bidID)
	return ""
}

func (f *fixture) owner(t fataler, assetID string) string {
	for _, a := range f.store.Assets() {
		if a.ID == assetID {
			return a.OwnerTeamID
		}
	}
	t.Fatalf("asset %s not found", assetID)
	return ""
}

func itemFor(t *testing.T, view market.SessionView, assetID string) market.ItemView {
	t.Helper()
	for _, it := range view.Items {
		if it.AssetID == assetID {
			return it
		}
	}
	t.Fatalf("asset %s not listed", assetID)
	return market.ItemView{}
}

// checkInvariants asserts that every budget is valid and that each team's
// reserved amount equals the sum of its pending bids.
func checkInvariants(t fataler, store *memory.Store) {
	pending := map[string]int64{}
	for _, b := range store.Bids() {
		if b.State == market.BidPending {
			pending[b.TeamID] += b.Amount
		}
	}
	for id, b := range store.Budgets() {
		if !b.Valid() {
			t.Fatalf("team %s budget invalid: total=%d reserved=%d", id, b.Total, b.Reserved)
		}
		if b.Reserved != pending[id] {
			t.Fatalf("team %s reserved %d, pending bids sum %d", id, b.Reserved, pending[id])
		}
	}
	groups := map[string]int64{}
	for _, e := range store.Ledger() {
		groups[e.TxGroupID+"/"+e.RefID+"/"+e.Action] += e.Delta
	}
	for k, sum := range groups {
		if sum != 0 {
			t.Fatalf("ledger legs %s do not balance: %d", k, sum)
		}
	}
}
