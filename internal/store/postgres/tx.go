package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"leaguebid/internal/market"
)

type pgTx struct {
	tx pgx.Tx
}

var _ market.Tx = (*pgTx)(nil)

func (t *pgTx) ListLeagues(ctx context.Context) ([]market.League, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, created_at
		FROM market.leagues
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.League, error) {
		var l market.League
		err := row.Scan(&l.ID, &l.Name, &l.CreatedAt)
		return l, err
	})
}

func (t *pgTx) League(ctx context.Context, leagueID string) (market.League, error) {
	var l market.League
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, created_at FROM market.leagues WHERE id = $1
	`, leagueID).Scan(&l.ID, &l.Name, &l.CreatedAt)
	return l, noRows(err, "league", leagueID)
}

func (t *pgTx) LockLeague(ctx context.Context, leagueID string) (market.League, error) {
	var l market.League
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, created_at FROM market.leagues WHERE id = $1 FOR UPDATE
	`, leagueID).Scan(&l.ID, &l.Name, &l.CreatedAt)
	return l, noRows(err, "league", leagueID)
}

func (t *pgTx) InsertLeague(ctx context.Context, l market.League) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO market.leagues (id, name, created_at) VALUES ($1, $2, $3)
	`, l.ID, l.Name, l.CreatedAt)
	return mapError(err)
}

const teamColumns = `id, league_id, name, controller_user_id, active`

func scanTeam(row pgx.Row) (market.Team, error) {
	var tm market.Team
	err := row.Scan(&tm.ID, &tm.LeagueID, &tm.Name, &tm.ControllerUserID, &tm.Active)
	return tm, err
}

func (t *pgTx) Team(ctx context.Context, teamID string) (market.Team, error) {
	tm, err := scanTeam(t.tx.QueryRow(ctx, `SELECT `+teamColumns+` FROM market.teams WHERE id = $1`, teamID))
	return tm, noRows(err, "team", teamID)
}

func (t *pgTx) LockTeam(ctx context.Context, teamID string) (market.Team, error) {
	tm, err := scanTeam(t.tx.QueryRow(ctx, `SELECT `+teamColumns+` FROM market.teams WHERE id = $1 FOR UPDATE`, teamID))
	return tm, noRows(err, "team", teamID)
}

func (t *pgTx) LeagueTeams(ctx context.Context, leagueID string) ([]market.Team, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+teamColumns+` FROM market.teams WHERE league_id = $1 ORDER BY id`, leagueID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.Team, error) {
		return scanTeam(row)
	})
}

func (t *pgTx) InsertTeam(ctx context.Context, tm market.Team, b market.Budget) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO market.teams (id, league_id, name, controller_user_id, total, reserved, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tm.ID, tm.LeagueID, tm.Name, tm.ControllerUserID, b.Total, b.Reserved, tm.Active)
	return mapError(err)
}

func (t *pgTx) TeamBudget(ctx context.Context, teamID string) (market.Budget, error) {
	b := market.Budget{TeamID: teamID}
	err := t.tx.QueryRow(ctx, `SELECT total, reserved FROM market.teams WHERE id = $1`, teamID).Scan(&b.Total, &b.Reserved)
	return b, noRows(err, "team", teamID)
}

func (t *pgTx) LockBudget(ctx context.Context, teamID string) (market.Budget, error) {
	b := market.Budget{TeamID: teamID}
	err := t.tx.QueryRow(ctx, `
		SELECT total, reserved FROM market.teams WHERE id = $1 FOR UPDATE
	`, teamID).Scan(&b.Total, &b.Reserved)
	return b, noRows(err, "team", teamID)
}

func (t *pgTx) SaveBudget(ctx context.Context, b market.Budget) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE market.teams SET total = $2, reserved = $3, updated_at = now() WHERE id = $1
	`, b.TeamID, b.Total, b.Reserved)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound("team", b.TeamID)
	}
	return nil
}

func (t *pgTx) RosterSize(ctx context.Context, teamID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(1) FROM market.assets WHERE owner_team_id = $1`, teamID).Scan(&n)
	return n, err
}

const assetColumns = `id, league_id, name, position, price, COALESCE(owner_team_id, ''), shown_since_reset`

func scanAsset(row pgx.Row) (market.Asset, error) {
	var a market.Asset
	err := row.Scan(&a.ID, &a.LeagueID, &a.Name, &a.Position, &a.Price, &a.OwnerTeamID, &a.ShownSinceReset)
	return a, err
}

func (t *pgTx) Asset(ctx context.Context, assetID string) (market.Asset, error) {
	a, err := scanAsset(t.tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM market.assets WHERE id = $1`, assetID))
	return a, noRows(err, "asset", assetID)
}

func (t *pgTx) LockAsset(ctx context.Context, assetID string) (market.Asset, error) {
	a, err := scanAsset(t.tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM market.assets WHERE id = $1 FOR UPDATE`, assetID))
	return a, noRows(err, "asset", assetID)
}

func (t *pgTx) InsertAsset(ctx context.Context, a market.Asset) error {
	var owner *string
	if a.OwnerTeamID != "" {
		owner = &a.OwnerTeamID
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO market.assets (id, league_id, name, position, price, owner_team_id, shown_since_reset)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.LeagueID, a.Name, a.Position, a.Price, owner, a.ShownSinceReset)
	return mapError(err)
}

func (t *pgTx) UnownedAssets(ctx context.Context, leagueID string) ([]market.Asset, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+assetColumns+`
		FROM market.assets
		WHERE league_id = $1 AND owner_team_id IS NULL
		ORDER BY id
	`, leagueID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.Asset, error) {
		return scanAsset(row)
	})
}

func (t *pgTx) ResetShown(ctx context.Context, leagueID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE market.assets SET shown_since_reset = false
		WHERE league_id = $1 AND owner_team_id IS NULL
	`, leagueID)
	return err
}

func (t *pgTx) MarkShown(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE market.assets SET shown_since_reset = true WHERE id = ANY($1)`, assetIDs)
	if err != nil {
		return err
	}
	if int(cmd.RowsAffected()) != len(assetIDs) {
		return market.Errorf(market.KindNotFound, "marked %d of %d assets", cmd.RowsAffected(), len(assetIDs))
	}
	return nil
}

func (t *pgTx) TransferAsset(ctx context.Context, assetID, teamID string) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE market.assets SET owner_team_id = $2 WHERE id = $1`, assetID, teamID)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound("asset", assetID)
	}
	return nil
}

const sessionColumns = `id, league_id, sequence_number, state, pool_was_reset, opened_at, closed_at`

func scanSession(row pgx.Row) (market.Session, error) {
	var s market.Session
	var state string
	err := row.Scan(&s.ID, &s.LeagueID, &s.SequenceNumber, &state, &s.PoolWasReset, &s.OpenedAt, &s.ClosedAt)
	s.State = market.SessionState(state)
	return s, err
}

func (t *pgTx) OpenSession(ctx context.Context, leagueID string) (market.Session, error) {
	s, err := scanSession(t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM market.sessions WHERE league_id = $1 AND state = 'OPEN'
	`, leagueID))
	if err != nil {
		return market.Session{}, noRows(err, "open session for league", leagueID)
	}
	return s, nil
}

func (t *pgTx) LastSequence(ctx context.Context, leagueID string) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) FROM market.sessions WHERE league_id = $1
	`, leagueID).Scan(&seq)
	return seq, err
}

func (t *pgTx) InsertSession(ctx context.Context, s market.Session) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO market.sessions (id, league_id, sequence_number, state, pool_was_reset, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.LeagueID, s.SequenceNumber, string(s.State), s.PoolWasReset, s.OpenedAt, s.ClosedAt)
	return mapError(err)
}

func (t *pgTx) LockSession(ctx context.Context, sessionID string, mode market.LockMode) (market.Session, error) {
	lock := "FOR SHARE"
	if mode == market.LockUpdate {
		lock = "FOR UPDATE"
	}
	s, err := scanSession(t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM market.sessions WHERE id = $1 `+lock, sessionID))
	if err != nil {
		return market.Session{}, noRows(err, "session", sessionID)
	}
	return s, nil
}

func (t *pgTx) UpdateSession(ctx context.Context, s market.Session) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE market.sessions SET state = $2, closed_at = $3 WHERE id = $1
	`, s.ID, string(s.State), s.ClosedAt)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound("session", s.ID)
	}
	return nil
}

const itemColumns = `id, session_id, asset_id, slot, floor_price, bid_count, COALESCE(winning_bid_id, '')`

func scanItem(row pgx.Row) (market.Item, error) {
	var it market.Item
	err := row.Scan(&it.ID, &it.SessionID, &it.AssetID, &it.Slot, &it.FloorPrice, &it.BidCount, &it.WinningBidID)
	return it, err
}

func (t *pgTx) InsertItem(ctx context.Context, it market.Item) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO market.items (id, session_id, asset_id, slot, floor_price, bid_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, it.ID, it.SessionID, it.AssetID, it.Slot, it.FloorPrice, it.BidCount)
	return mapError(err)
}

func (t *pgTx) Item(ctx context.Context, itemID string) (market.Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM market.items WHERE id = $1`, itemID))
	return it, noRows(err, "item", itemID)
}

func (t *pgTx) LockItem(ctx context.Context, itemID string) (market.Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM market.items WHERE id = $1 FOR UPDATE`, itemID))
	return it, noRows(err, "item", itemID)
}

func (t *pgTx) SessionItems(ctx context.Context, sessionID string) ([]market.Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM market.items WHERE session_id = $1 ORDER BY slot`, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.Item, error) {
		return scanItem(row)
	})
}

func (t *pgTx) UpdateItem(ctx context.Context, it market.Item) error {
	var winner *string
	if it.WinningBidID != "" {
		winner = &it.WinningBidID
	}
	cmd, err := t.tx.Exec(ctx, `
		UPDATE market.items SET bid_count = $2, winning_bid_id = $3 WHERE id = $1
	`, it.ID, it.BidCount, winner)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound("item", it.ID)
	}
	return nil
}

const bidColumns = `id, item_id, team_id, amount, reference_price, placed_at, state`

func scanBid(row pgx.Row) (market.Bid, error) {
	var b market.Bid
	var state string
	err := row.Scan(&b.ID, &b.ItemID, &b.TeamID, &b.Amount, &b.ReferencePrice, &b.PlacedAt, &state)
	b.State = market.BidState(state)
	return b, err
}

func collectBids(rows pgx.Rows, err error) ([]market.Bid, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.Bid, error) {
		return scanBid(row)
	})
}

func (t *pgTx) Bid(ctx context.Context, bidID string) (market.Bid, error) {
	b, err := scanBid(t.tx.QueryRow(ctx, `SELECT `+bidColumns+` FROM market.bids WHERE id = $1`, bidID))
	return b, noRows(err, "bid", bidID)
}

func (t *pgTx) PendingBid(ctx context.Context, itemID, teamID string) (market.Bid, error) {
	b, err := scanBid(t.tx.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM market.bids
		WHERE item_id = $1 AND team_id = $2 AND state = 'PENDING'
	`, itemID, teamID))
	return b, noRows(err, "pending bid on item", itemID)
}

// ItemBids returns bids in insertion order; ranking happens in the engine.
func (t *pgTx) ItemBids(ctx context.Context, itemID string, state market.BidState) ([]market.Bid, error) {
	return collectBids(t.tx.Query(ctx, `
		SELECT `+bidColumns+` FROM market.bids
		WHERE item_id = $1 AND state = $2
		ORDER BY created_at, id
	`, itemID, string(state)))
}

func (t *pgTx) TeamBids(ctx context.Context, teamID, sessionID string) ([]market.Bid, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT b.` + strings.ReplaceAll(bidColumns, ", ", ", b.") + `
		FROM market.bids b
		JOIN market.items i ON i.id = b.item_id
		WHERE b.team_id = $1`)
	args := []any{teamID}
	if sessionID != "" {
		args = append(args, sessionID)
		fmt.Fprintf(&sb, " AND i.session_id = $%d", len(args))
	}
	sb.WriteString(" ORDER BY b.placed_at DESC, b.id")
	return collectBids(t.tx.Query(ctx, sb.String(), args...))
}

func (t *pgTx) InsertBid(ctx context.Context, b market.Bid) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO market.bids (id, item_id, team_id, amount, reference_price, placed_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.ItemID, b.TeamID, b.Amount, b.ReferencePrice, b.PlacedAt, string(b.State))
	return mapError(err)
}

func (t *pgTx) UpdateBid(ctx context.Context, b market.Bid) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE market.bids
		SET amount = $2, reference_price = $3, placed_at = $4, state = $5, updated_at = now()
		WHERE id = $1
	`, b.ID, b.Amount, b.ReferencePrice, b.PlacedAt, string(b.State))
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound("bid", b.ID)
	}
	return nil
}

func (t *pgTx) AppendLedger(ctx context.Context, entries []market.LedgerEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{e.TxGroupID, e.TeamID, e.Account, e.Delta, e.Action, e.RefID, e.CreatedAt})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"market", "ledger_entries"},
		[]string{"tx_group_id", "team_id", "account", "delta", "action", "ref_id", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return mapError(err)
}

func (t *pgTx) ClaimIdempotency(ctx context.Context, teamID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return market.Errorf(market.KindInvalidInput, "idempotency key is required")
	}
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO market.idempotency_keys (team_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (team_id, key) DO NOTHING
	`, teamID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return market.Errorf(market.KindConflict, "duplicate request")
	}
	return nil
}
