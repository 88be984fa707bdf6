// Package memory is an in-process market.Store. Transactions run one at a
// time under a store-wide mutex against a private copy of the data, which
// replaces the shared copy only when fn returns nil.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"leaguebid/internal/market"
)

type state struct {
	leagues  map[string]market.League
	teams    map[string]market.Team
	budgets  map[string]market.Budget
	assets   map[string]market.Asset
	sessions map[string]market.Session
	items    map[string]market.Item
	bids     map[string]market.Bid
	bidOrder []string
	ledger   []market.LedgerEntry
	idem     map[string]string
}

func newState() *state {
	return &state{
		leagues:  map[string]market.League{},
		teams:    map[string]market.Team{},
		budgets:  map[string]market.Budget{},
		assets:   map[string]market.Asset{},
		sessions: map[string]market.Session{},
		items:    map[string]market.Item{},
		bids:     map[string]market.Bid{},
		idem:     map[string]string{},
	}
}

func (s *state) clone() *state {
	return &state{
		leagues:  maps.Clone(s.leagues),
		teams:    maps.Clone(s.teams),
		budgets:  maps.Clone(s.budgets),
		assets:   maps.Clone(s.assets),
		sessions: maps.Clone(s.sessions),
		items:    maps.Clone(s.items),
		bids:     maps.Clone(s.bids),
		bidOrder: slices.Clone(s.bidOrder),
		ledger:   slices.Clone(s.ledger),
		idem:     maps.Clone(s.idem),
	}
}

var (
	_ market.Store = (*Store)(nil)
	_ market.Tx    = (*tx)(nil)
)

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx market.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st.clone()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

// Budgets returns a copy of every team budget, keyed by team id.
func (s *Store) Budgets() map[string]market.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.st.budgets)
}

// Bids returns every bid in insertion order.
func (s *Store) Bids() []market.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]market.Bid, 0, len(s.st.bidOrder))
	for _, id := range s.st.bidOrder {
		out = append(out, s.st.bids[id])
	}
	return out
}

// Assets returns every asset ordered by id.
func (s *Store) Assets() []market.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.st.assets))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ledger returns the ledger entries in append order.
func (s *Store) Ledger() []market.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.ledger)
}

type tx struct {
	st *state
}

func notFound(what, id string) error {
	return market.Errorf(market.KindNotFound, "%s %s not found", what, id)
}

func (t *tx) ListLeagues(_ context.Context) ([]market.League, error) {
	out := slices.Collect(maps.Values(t.st.leagues))
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) League(_ context.Context, leagueID string) (market.League, error) {
	l, ok := t.st.leagues[leagueID]
	if !ok {
		return market.League{}, notFound("league", leagueID)
	}
	return l, nil
}

func (t *tx) LockLeague(ctx context.Context, leagueID string) (market.League, error) {
	return t.League(ctx, leagueID)
}

func (t *tx) InsertLeague(_ context.Context, league market.League) error {
	if _, ok := t.st.leagues[league.ID]; ok {
		return market.Errorf(market.KindConflict, "league %s exists", league.ID)
	}
	t.st.leagues[league.ID] = league
	return nil
}

func (t *tx) Team(_ context.Context, teamID string) (market.Team, error) {
	team, ok := t.st.teams[teamID]
	if !ok {
		return market.Team{}, notFound("team", teamID)
	}
	return team, nil
}

func (t *tx) LockTeam(ctx context.Context, teamID string) (market.Team, error) {
	return t.Team(ctx, teamID)
}

func (t *tx) LeagueTeams(_ context.Context, leagueID string) ([]market.Team, error) {
	var out []market.Team
	for _, team := range t.st.teams {
		if team.LeagueID == leagueID {
			out = append(out, team)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertTeam(_ context.Context, team market.Team, budget market.Budget) error {
	if _, ok := t.st.leagues[team.LeagueID]; !ok {
		return notFound("league", team.LeagueID)
	}
	if _, ok := t.st.teams[team.ID]; ok {
		return market.Errorf(market.KindConflict, "team %s exists", team.ID)
	}
	budget.TeamID = team.ID
	if !budget.Valid() {
		return market.Errorf(market.KindInvalidInput, "invalid budget for team %s", team.ID)
	}
	t.st.teams[team.ID] = team
	t.st.budgets[team.ID] = budget
	return nil
}

func (t *tx) TeamBudget(_ context.Context, teamID string) (market.Budget, error) {
	b, ok := t.st.budgets[teamID]
	if !ok {
		return market.Budget{}, notFound("team", teamID)
	}
	return b, nil
}

func (t *tx) LockBudget(ctx context.Context, teamID string) (market.Budget, error) {
	return t.TeamBudget(ctx, teamID)
}

func (t *tx) SaveBudget(_ context.Context, budget market.Budget) error {
	if _, ok := t.st.budgets[budget.TeamID]; !ok {
		return notFound("team", budget.TeamID)
	}
	if !budget.Valid() {
		return fmt.Errorf("budget check failed for team %s: %w", budget.TeamID, market.ErrInvariant)
	}
	t.st.budgets[budget.TeamID] = budget
	return nil
}

func (t *tx) RosterSize(_ context.Context, teamID string) (int, error) {
	n := 0
	for _, a := range t.st.assets {
		if a.OwnerTeamID == teamID {
			n++
		}
	}
	return n, nil
}

func (t *tx) Asset(_ context.Context, assetID string) (market.Asset, error) {
	a, ok := t.st.assets[assetID]
	if !ok {
		return market.Asset{}, notFound("asset", assetID)
	}
	return a, nil
}

func (t *tx) LockAsset(ctx context.Context, assetID string) (market.Asset, error) {
	return t.Asset(ctx, assetID)
}

func (t *tx) InsertAsset(_ context.Context, asset market.Asset) error {
	if _, ok := t.st.leagues[asset.LeagueID]; !ok {
		return notFound("league", asset.LeagueID)
	}
	if _, ok := t.st.assets[asset.ID]; ok {
		return market.Errorf(market.KindConflict, "asset %s exists", asset.ID)
	}
	t.st.assets[asset.ID] = asset
	return nil
}

func (t *tx) UnownedAssets(_ context.Context, leagueID string) ([]market.Asset, error) {
	var out []market.Asset
	for _, a := range t.st.assets {
		if a.LeagueID == leagueID && a.OwnerTeamID == "" {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) ResetShown(_ context.Context, leagueID string) error {
	for id, a := range t.st.assets {
		if a.LeagueID == leagueID && a.OwnerTeamID == "" {
			a.ShownSinceReset = false
			t.st.assets[id] = a
		}
	}
	return nil
}

func (t *tx) MarkShown(_ context.Context, assetIDs []string) error {
	for _, id := range assetIDs {
		a, ok := t.st.assets[id]
		if !ok {
			return notFound("asset", id)
		}
		a.ShownSinceReset = true
		t.st.assets[id] = a
	}
	return nil
}

func (t *tx) TransferAsset(_ context.Context, assetID, teamID string) error {
	a, ok := t.st.assets[assetID]
	if !ok {
		return notFound("asset", assetID)
	}
	if _, ok := t.st.teams[teamID]; !ok {
		return notFound("team", teamID)
	}
	a.OwnerTeamID = teamID
	t.st.assets[assetID] = a
	return nil
}

func (t *tx) OpenSession(_ context.Context, leagueID string) (market.Session, error) {
	for _, s := range t.st.sessions {
		if s.LeagueID == leagueID && s.State == market.SessionOpen {
			return s, nil
		}
	}
	return market.Session{}, market.Errorf(market.KindNotFound, "league %s has no open session", leagueID)
}

func (t *tx) LastSequence(_ context.Context, leagueID string) (int64, error) {
	var last int64
	for _, s := range t.st.sessions {
		if s.LeagueID == leagueID && s.SequenceNumber > last {
			last = s.SequenceNumber
		}
	}
	return last, nil
}

func (t *tx) InsertSession(_ context.Context, session market.Session) error {
	for _, s := range t.st.sessions {
		if s.LeagueID != session.LeagueID {
			continue
		}
		if s.SequenceNumber == session.SequenceNumber {
			return market.Errorf(market.KindConflict, "league %s already has session #%d", s.LeagueID, s.SequenceNumber)
		}
		if s.State == market.SessionOpen && session.State == market.SessionOpen {
			return market.Errorf(market.KindConflict, "league %s already has an open session", s.LeagueID)
		}
	}
	t.st.sessions[session.ID] = session
	return nil
}

func (t *tx) LockSession(_ context.Context, sessionID string, _ market.LockMode) (market.Session, error) {
	s, ok := t.st.sessions[sessionID]
	if !ok {
		return market.Session{}, notFound("session", sessionID)
	}
	return s, nil
}

func (t *tx) UpdateSession(_ context.Context, session market.Session) error {
	if _, ok := t.st.sessions[session.ID]; !ok {
		return notFound("session", session.ID)
	}
	t.st.sessions[session.ID] = session
	return nil
}

func (t *tx) InsertItem(_ context.Context, item market.Item) error {
	if _, ok := t.st.sessions[item.SessionID]; !ok {
		return notFound("session", item.SessionID)
	}
	t.st.items[item.ID] = item
	return nil
}

func (t *tx) Item(_ context.Context, itemID string) (market.Item, error) {
	it, ok := t.st.items[itemID]
	if !ok {
		return market.Item{}, notFound("item", itemID)
	}
	return it, nil
}

func (t *tx) LockItem(ctx context.Context, itemID string) (market.Item, error) {
	return t.Item(ctx, itemID)
}

func (t *tx) SessionItems(_ context.Context, sessionID string) ([]market.Item, error) {
	var out []market.Item
	for _, it := range t.st.items {
		if it.SessionID == sessionID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (t *tx) UpdateItem(_ context.Context, item market.Item) error {
	if _, ok := t.st.items[item.ID]; !ok {
		return notFound("item", item.ID)
	}
	t.st.items[item.ID] = item
	return nil
}

func (t *tx) Bid(_ context.Context, bidID string) (market.Bid, error) {
	b, ok := t.st.bids[bidID]
	if !ok {
		return market.Bid{}, notFound("bid", bidID)
	}
	return b, nil
}

func (t *tx) PendingBid(_ context.Context, itemID, teamID string) (market.Bid, error) {
	for _, id := range t.st.bidOrder {
		b := t.st.bids[id]
		if b.ItemID == itemID && b.TeamID == teamID && b.State == market.BidPending {
			return b, nil
		}
	}
	return market.Bid{}, market.Errorf(market.KindNotFound, "no pending bid for team %s on item %s", teamID, itemID)
}

// ItemBids returns bids in insertion order.
func (t *tx) ItemBids(_ context.Context, itemID string, state market.BidState) ([]market.Bid, error) {
	var out []market.Bid
	for _, id := range t.st.bidOrder {
		b := t.st.bids[id]
		if b.ItemID == itemID && b.State == state {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) TeamBids(_ context.Context, teamID, sessionID string) ([]market.Bid, error) {
	var out []market.Bid
	for _, id := range t.st.bidOrder {
		b := t.st.bids[id]
		if b.TeamID != teamID {
			continue
		}
		if sessionID != "" && t.st.items[b.ItemID].SessionID != sessionID {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out, nil
}

func (t *tx) InsertBid(_ context.Context, bid market.Bid) error {
	if _, ok := t.st.items[bid.ItemID]; !ok {
		return notFound("item", bid.ItemID)
	}
	if _, ok := t.st.bids[bid.ID]; ok {
		return market.Errorf(market.KindConflict, "bid %s exists", bid.ID)
	}
	if bid.State == market.BidPending {
		for _, b := range t.st.bids {
			if b.ItemID == bid.ItemID && b.TeamID == bid.TeamID && b.State == market.BidPending {
				return market.Errorf(market.KindConflict, "team %s already has a pending bid on item %s", bid.TeamID, bid.ItemID)
			}
		}
	}
	t.st.bids[bid.ID] = bid
	t.st.bidOrder = append(t.st.bidOrder, bid.ID)
	return nil
}

func (t *tx) UpdateBid(_ context.Context, bid market.Bid) error {
	if _, ok := t.st.bids[bid.ID]; !ok {
		return notFound("bid", bid.ID)
	}
	t.st.bids[bid.ID] = bid
	return nil
}

func (t *tx) AppendLedger(_ context.Context, entries []market.LedgerEntry) error {
	t.st.ledger = append(t.st.ledger, entries...)
	return nil
}

func (t *tx) ClaimIdempotency(_ context.Context, teamID, key, action string) error {
	k := teamID + "\x00" + key
	if _, ok := t.st.idem[k]; ok {
		return market.Errorf(market.KindConflict, "duplicate request")
	}
	t.st.idem[k] = action
	return nil
}
