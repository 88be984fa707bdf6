package market_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"leaguebid/internal/market"
)

func TestCloseSession_HighestAmountWins(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addTeam(t, "C", 5_000_000)
	f.addAsset(t, "striker", 1_000_000)

	view := f.open(t)
	item := itemFor(t, view, "striker")
	check.Equal(t, int64(1_000_000), item.FloorPrice)

	a := f.bid(t, "A", item.ItemID, 1_200_000, 10*time.Second)
	b := f.bid(t, "B", item.ItemID, 1_200_000, 5*time.Second)
	c := f.bid(t, "C", item.ItemID, 1_500_000, 20*time.Second)
	checkInvariants(t, f.store)

	report, err := f.svc.CloseSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, report.ItemsSold)
	check.Equal(t, 0, report.ItemsUnsold)
	check.Equal(t, int64(1_500_000), report.TotalValueMoved)
	assert.Equal(t, 1, len(report.Transfers))
	check.Equal(t, "C", report.Transfers[0].TeamID)

	check.Equal(t, market.BidWon, f.bidState(t, c.ID))
	check.Equal(t, market.BidLost, f.bidState(t, a.ID))
	check.Equal(t, market.BidLost, f.bidState(t, b.ID))
	check.Equal(t, "C", f.owner(t, "striker"))

	check.Equal(t, market.BudgetView{TeamID: "A", Total: 5_000_000, Reserved: 0, Available: 5_000_000}, f.budget(t, "A"))
	check.Equal(t, market.BudgetView{TeamID: "B", Total: 5_000_000, Reserved: 0, Available: 5_000_000}, f.budget(t, "B"))
	check.Equal(t, market.BudgetView{TeamID: "C", Total: 3_500_000, Reserved: 0, Available: 3_500_000}, f.budget(t, "C"))
	checkInvariants(t, f.store)
}

func TestCloseSession_TieBreakIgnoresInsertionOrder(t *testing.T) {
	run := func(t *testing.T, order []string) string {
		f := newFixture(t, market.WithSessionSize(1))
		f.addTeam(t, "A", 5_000_000)
		f.addTeam(t, "B", 5_000_000)
		f.addAsset(t, "keeper", 1_000_000)
		view := f.open(t)
		item := itemFor(t, view, "keeper")

		placed := map[string]time.Duration{"A": 10 * time.Second, "B": 5 * time.Second}
		for _, team := range order {
			f.bid(t, team, item.ItemID, 1_200_000, placed[team])
		}
		report, err := f.svc.CloseSession(context.Background(), view.Session.ID)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(report.Transfers))
		return report.Transfers[0].TeamID
	}

	check.Equal(t, "B", run(t, []string{"A", "B"}))
	check.Equal(t, "B", run(t, []string{"B", "A"}))
}

func TestPlaceBid_InsufficientFunds(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(2))
	f.addTeam(t, "A", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	f.addAsset(t, "p2", 1_000_000)
	view := f.open(t)

	f.bid(t, "A", itemFor(t, view, "p1").ItemID, 4_000_000, time.Second)
	check.Equal(t, int64(4_000_000), f.budget(t, "A").Reserved)

	_, err := f.svc.PlaceBid(context.Background(), market.PlaceBidInput{
		TeamID: "A",
		ItemID: itemFor(t, view, "p2").ItemID,
		Amount: 2_000_000,
	})
	check.True(t, errors.Is(err, market.ErrInsufficientFunds))
	check.Equal(t, market.BudgetView{TeamID: "A", Total: 5_000_000, Reserved: 4_000_000, Available: 1_000_000}, f.budget(t, "A"))
	check.Equal(t, 1, len(f.store.Bids()))
	checkInvariants(t, f.store)
}

func TestOpenSession_InsufficientPoolThenReset(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(10))
	f.addTeam(t, "A", 5_000_000)
	ids := []string{"p01", "p02", "p03", "p04", "p05", "p06", "p07", "p08"}
	for _, id := range ids {
		// Already rotated through earlier sessions.
		f.putAsset(t, market.Asset{ID: id, LeagueID: leagueID, Name: id, Price: 100, ShownSinceReset: true})
	}

	_, err := f.svc.OpenSession(context.Background(), leagueID)
	check.True(t, errors.Is(err, market.ErrInsufficientPool))

	f.addAsset(t, "p09", 100)
	f.addAsset(t, "p10", 100)

	view := f.open(t)
	check.True(t, view.Session.PoolWasReset)
	check.Equal(t, 10, len(view.Items))
	check.Equal(t, int64(1), view.Session.SequenceNumber)
	seen := map[string]bool{}
	for i, it := range view.Items {
		check.Equal(t, i+1, it.Slot)
		seen[it.AssetID] = true
	}
	check.Equal(t, 10, len(seen))
	for _, a := range f.store.Assets() {
		check.True(t, a.ShownSinceReset)
	}
}

func TestOpenSession_Conflict(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addAsset(t, "p1", 100)
	f.addAsset(t, "p2", 100)
	first := f.open(t)

	_, err := f.svc.OpenSession(context.Background(), leagueID)
	check.True(t, errors.Is(err, market.ErrConflict))

	_, err = f.svc.OpenSession(context.Background(), "no-such-league")
	check.True(t, errors.Is(err, market.ErrNotFound))

	_, err = f.svc.CloseSession(context.Background(), first.Session.ID)
	assert.NoError(t, err)
	second := f.open(t)
	check.Equal(t, int64(2), second.Session.SequenceNumber)
}

func TestOpenSession_RotatesBeforeRepeating(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(10))
	for i := 0; i < 25; i++ {
		f.addAsset(t, string(rune('a'+i)), 100)
	}

	shown := map[string]int{}
	for round := 0; round < 2; round++ {
		view := f.open(t)
		check.False(t, view.Session.PoolWasReset)
		for _, it := range view.Items {
			shown[it.AssetID]++
		}
		_, err := f.svc.CloseSession(context.Background(), view.Session.ID)
		assert.NoError(t, err)
	}
	check.Equal(t, 20, len(shown))
	for _, n := range shown {
		check.Equal(t, 1, n)
	}

	third := f.open(t)
	check.True(t, third.Session.PoolWasReset)
	check.Equal(t, 10, len(third.Items))
}

func TestPlaceBid_UpdateMovesReservation(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	itemID := itemFor(t, view, "p1").ItemID

	first := f.bid(t, "A", itemID, 2_000_000, time.Second)
	raised := f.bid(t, "A", itemID, 3_000_000, 2*time.Second)
	check.Equal(t, first.ID, raised.ID)
	check.Equal(t, int64(3_000_000), f.budget(t, "A").Reserved)
	check.Equal(t, f.clock.at, raised.PlacedAt)

	lowered := f.bid(t, "A", itemID, 1_500_000, 3*time.Second)
	check.Equal(t, first.ID, lowered.ID)
	check.Equal(t, int64(1_500_000), f.budget(t, "A").Reserved)

	got, err := f.svc.GetOpenSession(context.Background(), leagueID, "A")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	check.Equal(t, 1, got.Items[0].BidCount)
	check.Equal(t, 1, len(f.store.Bids()))
	checkInvariants(t, f.store)
}

func TestPlaceBid_Rejections(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addTeamIn(t, "league-2", "X", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	itemID := itemFor(t, view, "p1").ItemID
	ctx := context.Background()

	cases := []struct {
		name string
		in   market.PlaceBidInput
		want error
	}{
		{"below floor", market.PlaceBidInput{TeamID: "A", ItemID: itemID, Amount: 999_999}, market.ErrBelowFloor},
		{"zero amount", market.PlaceBidInput{TeamID: "A", ItemID: itemID, Amount: 0}, market.ErrInvalidInput},
		{"unknown item", market.PlaceBidInput{TeamID: "A", ItemID: "nope", Amount: 1_000_000}, market.ErrNotFound},
		{"unknown team", market.PlaceBidInput{TeamID: "nope", ItemID: itemID, Amount: 1_000_000}, market.ErrNotFound},
		{"other league", market.PlaceBidInput{TeamID: "X", ItemID: itemID, Amount: 1_000_000}, market.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PlaceBid(ctx, tc.in)
			check.True(t, errors.Is(err, tc.want))
		})
	}

	_, err := f.svc.CloseSession(ctx, view.Session.ID)
	assert.NoError(t, err)
	_, err = f.svc.PlaceBid(ctx, market.PlaceBidInput{TeamID: "A", ItemID: itemID, Amount: 1_000_000})
	check.True(t, errors.Is(err, market.ErrNotFound))
	check.Equal(t, int64(0), f.budget(t, "A").Reserved)
}

func TestPlaceBid_IdempotencyKey(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	in := market.PlaceBidInput{TeamID: "A", ItemID: itemFor(t, view, "p1").ItemID, Amount: 1_000_000, IdempotencyKey: "k-1"}

	_, err := f.svc.PlaceBid(context.Background(), in)
	assert.NoError(t, err)
	_, err = f.svc.PlaceBid(context.Background(), in)
	check.True(t, errors.Is(err, market.ErrConflict))
	check.Equal(t, int64(1_000_000), f.budget(t, "A").Reserved)

	// A failed request does not burn its key.
	in.IdempotencyKey = "k-2"
	in.Amount = 10
	_, err = f.svc.PlaceBid(context.Background(), in)
	check.True(t, errors.Is(err, market.ErrBelowFloor))
	in.Amount = 2_000_000
	_, err = f.svc.PlaceBid(context.Background(), in)
	check.NoError(t, err)
	check.Equal(t, int64(2_000_000), f.budget(t, "A").Reserved)
}

func TestCancelBid(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	itemID := itemFor(t, view, "p1").ItemID
	ctx := context.Background()

	a := f.bid(t, "A", itemID, 2_000_000, time.Second)
	f.bid(t, "B", itemID, 1_500_000, 2*time.Second)

	err := f.svc.CancelBid(ctx, "B", a.ID)
	check.True(t, errors.Is(err, market.ErrForbidden))
	check.True(t, errors.Is(f.svc.CancelBid(ctx, "A", "missing"), market.ErrNotFound))

	assert.NoError(t, f.svc.CancelBid(ctx, "A", a.ID))
	check.Equal(t, market.BidCancelled, f.bidState(t, a.ID))
	check.Equal(t, int64(0), f.budget(t, "A").Reserved)
	got, err := f.svc.GetOpenSession(ctx, leagueID, "")
	assert.NoError(t, err)
	check.Equal(t, 1, got.Items[0].BidCount)

	check.True(t, errors.Is(f.svc.CancelBid(ctx, "A", a.ID), market.ErrInvalidState))

	// A fresh bid after cancelling creates a new row.
	again := f.bid(t, "A", itemID, 1_000_000, 3*time.Second)
	check.NotEqual(t, a.ID, again.ID)
	checkInvariants(t, f.store)

	_, err = f.svc.CloseSession(ctx, view.Session.ID)
	assert.NoError(t, err)
	check.True(t, errors.Is(f.svc.CancelBid(ctx, "A", again.ID), market.ErrInvalidState))
}

func TestCloseSession_QuotaRejectsFullRoster(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1), market.WithQuota(market.DefaultQuota(1, true)))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.putAsset(t, market.Asset{ID: "owned", LeagueID: leagueID, Name: "owned", Price: 1, OwnerTeamID: "A"})
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	itemID := itemFor(t, view, "p1").ItemID

	a := f.bid(t, "A", itemID, 3_000_000, time.Second)
	b := f.bid(t, "B", itemID, 1_000_000, 2*time.Second)

	report, err := f.svc.CloseSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, market.BidRejectedQuota, f.bidState(t, a.ID))
	check.Equal(t, market.BidWon, f.bidState(t, b.ID))
	check.Equal(t, "B", f.owner(t, "p1"))
	assert.Equal(t, 1, len(report.Rejections))
	check.Equal(t, a.ID, report.Rejections[0].BidID)
	check.Equal(t, int64(5_000_000), f.budget(t, "A").Total)
	check.Equal(t, int64(0), f.budget(t, "A").Reserved)
	check.Equal(t, int64(4_000_000), f.budget(t, "B").Total)
	checkInvariants(t, f.store)
}

func TestCloseSession_InactiveTeamRejected(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "B", 5_000_000)
	f.tx(t, func(ctx context.Context, tx market.Tx) error {
		team := market.Team{ID: "A", LeagueID: leagueID, Name: "A", ControllerUserID: "user-A", Active: false}
		return tx.InsertTeam(ctx, team, market.Budget{Total: 5_000_000})
	})
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	itemID := itemFor(t, view, "p1").ItemID
	a := f.bid(t, "A", itemID, 2_000_000, time.Second)
	b := f.bid(t, "B", itemID, 1_000_000, time.Second)

	report, err := f.svc.CloseSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, market.BidRejectedQuota, f.bidState(t, a.ID))
	check.Equal(t, market.BidWon, f.bidState(t, b.ID))
	assert.Equal(t, 1, len(report.Rejections))
	check.Equal(t, "team membership is not active", report.Rejections[0].Reason)
	checkInvariants(t, f.store)
}

func TestCloseSession_SecondWinRespectsCapacity(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(2), market.WithQuota(market.DefaultQuota(1, true)))
	f.addTeam(t, "A", 10_000_000)
	f.addTeam(t, "B", 10_000_000)
	f.addAsset(t, "p1", 1_000_000)
	f.addAsset(t, "p2", 1_000_000)
	view := f.open(t)
	first, second := view.Items[0], view.Items[1]

	a1 := f.bid(t, "A", first.ItemID, 2_000_000, time.Second)
	a2 := f.bid(t, "A", second.ItemID, 3_000_000, 2*time.Second)
	b2 := f.bid(t, "B", second.ItemID, 1_000_000, 3*time.Second)

	report, err := f.svc.CloseSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, 2, report.ItemsSold)
	check.Equal(t, market.BidWon, f.bidState(t, a1.ID))
	check.Equal(t, market.BidRejectedQuota, f.bidState(t, a2.ID))
	check.Equal(t, market.BidWon, f.bidState(t, b2.ID))
	check.Equal(t, "A", f.owner(t, first.AssetID))
	check.Equal(t, "B", f.owner(t, second.AssetID))
	check.Equal(t, market.BudgetView{TeamID: "A", Total: 8_000_000, Reserved: 0, Available: 8_000_000}, f.budget(t, "A"))
	checkInvariants(t, f.store)
}

func TestCloseSession_Idempotent(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	f.bid(t, "A", itemFor(t, view, "p1").ItemID, 1_000_000, time.Second)
	ctx := context.Background()

	_, err := f.svc.CloseSession(ctx, view.Session.ID)
	assert.NoError(t, err)
	budgets := f.store.Budgets()
	entries := len(f.store.Ledger())

	_, err = f.svc.CloseSession(ctx, view.Session.ID)
	check.True(t, errors.Is(err, market.ErrInvalidState))
	check.Equal(t, budgets, f.store.Budgets())
	check.Equal(t, entries, len(f.store.Ledger()))
	check.Equal(t, "A", f.owner(t, "p1"))

	_, err = f.svc.CloseSession(ctx, "missing")
	check.True(t, errors.Is(err, market.ErrNotFound))
	_, err = f.svc.CancelSession(ctx, view.Session.ID)
	check.True(t, errors.Is(err, market.ErrInvalidState))
}

// failingCheck errors on its nth evaluation.
type failingCheck struct {
	failAt int
	calls  int
}

func (c *failingCheck) Name() string { return "failing" }

func (c *failingCheck) Evaluate(context.Context, market.Tx, market.Team, market.Asset) (market.Verdict, error) {
	c.calls++
	if c.calls == c.failAt {
		return market.Verdict{}, errors.New("roster service unavailable")
	}
	return market.Verdict{Valid: true}, nil
}

func TestCloseSession_FailureLeavesNothingBehind(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(2), market.WithQuota(market.NewQuotaValidator(&failingCheck{failAt: 2})))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	f.addAsset(t, "p2", 1_000_000)
	view := f.open(t)
	a := f.bid(t, "A", view.Items[0].ItemID, 1_000_000, time.Second)
	b := f.bid(t, "B", view.Items[1].ItemID, 1_000_000, 2*time.Second)
	budgets := f.store.Budgets()
	entries := len(f.store.Ledger())

	_, err := f.svc.CloseSession(context.Background(), view.Session.ID)
	check.Error(t, err)
	check.Equal(t, budgets, f.store.Budgets())
	check.Equal(t, entries, len(f.store.Ledger()))
	check.Equal(t, market.BidPending, f.bidState(t, a.ID))
	check.Equal(t, market.BidPending, f.bidState(t, b.ID))
	check.Equal(t, "", f.owner(t, view.Items[0].AssetID))

	// Retrying with a healthy validator clears the session exactly once.
	retry := market.NewService(f.store, quietLogger(), market.WithClock(f.clock.Now))
	report, err := retry.CloseSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, 2, report.ItemsSold)
	check.Equal(t, int64(4_000_000), f.budget(t, "A").Total)
	check.Equal(t, int64(4_000_000), f.budget(t, "B").Total)
	checkInvariants(t, f.store)
}

func TestCancelSession_ReleasesEverything(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(2))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	f.addAsset(t, "p2", 1_000_000)
	view := f.open(t)
	f.bid(t, "A", view.Items[0].ItemID, 2_000_000, time.Second)
	f.bid(t, "B", view.Items[0].ItemID, 1_000_000, time.Second)
	f.bid(t, "A", view.Items[1].ItemID, 1_000_000, time.Second)

	session, err := f.svc.CancelSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, market.SessionCancelled, session.State)
	check.NotNil(t, session.ClosedAt)
	for _, b := range f.store.Bids() {
		check.Equal(t, market.BidCancelled, b.State)
	}
	check.Equal(t, int64(0), f.budget(t, "A").Reserved)
	check.Equal(t, int64(5_000_000), f.budget(t, "A").Total)
	check.Equal(t, "", f.owner(t, "p1"))

	got, err := f.svc.GetOpenSession(context.Background(), leagueID, "")
	assert.NoError(t, err)
	check.Nil(t, got)
	checkInvariants(t, f.store)
}

func TestGetOpenSession_SealedBids(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addTeamIn(t, "league-2", "X", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	ctx := context.Background()

	none, err := f.svc.GetOpenSession(ctx, leagueID, "A")
	assert.NoError(t, err)
	check.Nil(t, none)

	view := f.open(t)
	itemID := itemFor(t, view, "p1").ItemID
	f.bid(t, "A", itemID, 2_000_000, time.Second)
	f.bid(t, "B", itemID, 3_000_000, time.Second)

	asA, err := f.svc.GetOpenSession(ctx, leagueID, "A")
	assert.NoError(t, err)
	assert.NotNil(t, asA)
	check.Equal(t, 2, asA.Items[0].BidCount)
	assert.NotNil(t, asA.Items[0].OwnBid)
	check.Equal(t, int64(2_000_000), asA.Items[0].OwnBid.Amount)

	anon, err := f.svc.GetOpenSession(ctx, leagueID, "")
	assert.NoError(t, err)
	check.Nil(t, anon.Items[0].OwnBid)

	_, err = f.svc.GetOpenSession(ctx, leagueID, "X")
	check.True(t, errors.Is(err, market.ErrForbidden))
}

func TestListTeamBids(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(2))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	f.addAsset(t, "p2", 1_000_000)
	view := f.open(t)
	older := f.bid(t, "A", view.Items[0].ItemID, 1_000_000, time.Second)
	newer := f.bid(t, "A", view.Items[1].ItemID, 1_000_000, 5*time.Second)
	f.bid(t, "B", view.Items[1].ItemID, 1_000_000, 6*time.Second)

	bids, err := f.svc.ListTeamBids(context.Background(), "A", view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, []string{newer.ID, older.ID}, []string{bids[0].ID, bids[1].ID})

	bids, err = f.svc.ListTeamBids(context.Background(), "A", "other-session")
	assert.NoError(t, err)
	check.Equal(t, 0, len(bids))

	_, err = f.svc.ListTeamBids(context.Background(), "nope", "")
	check.True(t, errors.Is(err, market.ErrNotFound))
}

type recordingReporter struct {
	clearings []market.ClearingReport
	rewards   []market.RewardGrant
}

func (r *recordingReporter) ReportClearing(_ context.Context, report market.ClearingReport) error {
	r.clearings = append(r.clearings, report)
	return nil
}

func (r *recordingReporter) ReportReward(_ context.Context, grant market.RewardGrant) error {
	r.rewards = append(r.rewards, grant)
	return errors.New("sink down")
}

func TestGrantReward(t *testing.T) {
	rep := &recordingReporter{}
	f := newFixture(t, market.WithSessionSize(1), market.WithQuota(market.DefaultQuota(2, true)), market.WithReporter(rep))
	f.addTeam(t, "A", 1_000_000)
	f.addTeam(t, "B", 1_000_000)
	f.addAsset(t, "p1", 100)
	f.addAsset(t, "p2", 100)
	f.addAsset(t, "p3", 100)
	f.addTeamIn(t, "league-2", "X", 0)
	ctx := context.Background()

	grant, err := f.svc.GrantReward(ctx, "A", market.CashReward{Amount: 250_000})
	assert.NoError(t, err)
	check.Equal(t, market.RewardCash, grant.Kind)
	check.Equal(t, int64(1_250_000), f.budget(t, "A").Total)

	grant, err = f.svc.GrantReward(ctx, "A", market.AssetReward{AssetID: "p1"})
	assert.NoError(t, err)
	check.Equal(t, "p1", grant.AssetID)
	check.Equal(t, "A", f.owner(t, "p1"))

	_, err = f.svc.GrantReward(ctx, "B", market.AssetReward{AssetID: "p1"})
	check.True(t, errors.Is(err, market.ErrConflict))

	_, err = f.svc.GrantReward(ctx, "X", market.AssetReward{AssetID: "p2"})
	check.True(t, errors.Is(err, market.ErrForbidden))

	_, err = f.svc.GrantReward(ctx, "A", market.AssetReward{AssetID: "p2"})
	assert.NoError(t, err)
	_, err = f.svc.GrantReward(ctx, "A", market.AssetReward{AssetID: "p3"})
	check.True(t, errors.Is(err, market.ErrForbidden))

	_, err = f.svc.GrantReward(ctx, "A", market.CashReward{Amount: -1})
	check.True(t, errors.Is(err, market.ErrInvalidInput))
	_, err = f.svc.GrantReward(ctx, "A", nil)
	check.True(t, errors.Is(err, market.ErrInvalidInput))

	// Reporter failures never fail the grant.
	check.Equal(t, 3, len(rep.rewards))
	checkInvariants(t, f.store)
}

func TestCloseSession_ListedAssetGrantedElsewhere(t *testing.T) {
	rep := &recordingReporter{}
	f := newFixture(t, market.WithSessionSize(1), market.WithReporter(rep))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	a := f.bid(t, "A", itemFor(t, view, "p1").ItemID, 2_000_000, time.Second)

	_, err := f.svc.GrantReward(context.Background(), "B", market.AssetReward{AssetID: "p1"})
	assert.NoError(t, err)

	report, err := f.svc.CloseSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)
	check.Equal(t, 0, report.ItemsSold)
	check.Equal(t, 1, report.ItemsUnsold)
	check.Equal(t, market.BidLost, f.bidState(t, a.ID))
	check.Equal(t, "B", f.owner(t, "p1"))
	check.Equal(t, int64(5_000_000), f.budget(t, "A").Total)
	assert.Equal(t, 1, len(rep.clearings))
	check.Equal(t, view.Session.ID, rep.clearings[0].SessionID)
	checkInvariants(t, f.store)
}

func TestSeedDemoLeague(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	demo := market.DefaultDemoLeague("u1", "u2", "u3")

	league, err := f.svc.SeedDemoLeague(ctx, demo)
	assert.NoError(t, err)
	again, err := f.svc.SeedDemoLeague(ctx, demo)
	assert.NoError(t, err)
	check.Equal(t, league.ID, again.ID)

	leagues, err := f.svc.ListLeagues(ctx)
	assert.NoError(t, err)
	check.Equal(t, 2, len(leagues))

	view, err := f.svc.OpenSession(ctx, league.ID)
	assert.NoError(t, err)
	check.Equal(t, market.DefaultSessionSize, len(view.Items))

	_, err = f.svc.SeedDemoLeague(ctx, market.DemoLeague{})
	check.True(t, errors.Is(err, market.ErrInvalidInput))
}

func TestLedgerEntriesBalance(t *testing.T) {
	f := newFixture(t, market.WithSessionSize(1))
	f.addTeam(t, "A", 5_000_000)
	f.addTeam(t, "B", 5_000_000)
	f.addAsset(t, "p1", 1_000_000)
	view := f.open(t)
	itemID := itemFor(t, view, "p1").ItemID
	f.bid(t, "A", itemID, 1_000_000, time.Second)
	f.bid(t, "A", itemID, 1_500_000, 2*time.Second)
	f.bid(t, "B", itemID, 1_200_000, 3*time.Second)
	_, err := f.svc.CloseSession(context.Background(), view.Session.ID)
	assert.NoError(t, err)

	actions := map[string]int{}
	for _, e := range f.store.Ledger() {
		actions[e.Action]++
		check.NotEqual(t, "", e.TxGroupID)
	}
	check.Equal(t, map[string]int{"reserve": 6, "settle": 2, "release": 2}, actions)
	checkInvariants(t, f.store)
}
