package market

import "context"

// LockMode selects the row lock taken on a session row.
type LockMode int

const (
	// LockShare lets concurrent bid writers proceed while blocking clearing.
	LockShare LockMode = iota
	// LockUpdate is exclusive; used by clearing and cancellation.
	LockUpdate
)

// Store runs fn inside one transaction. A non-nil error from fn rolls the
// transaction back; nothing fn wrote is visible afterwards. Implementations
// may call fn more than once when the backend reports a retryable conflict.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the storage surface the engine needs inside a transaction. Lookups
// of unknown ids return an error of KindNotFound.
type Tx interface {
	ListLeagues(ctx context.Context) ([]League, error)
	League(ctx context.Context, leagueID string) (League, error)
	LockLeague(ctx context.Context, leagueID string) (League, error)
	InsertLeague(ctx context.Context, league League) error

	Team(ctx context.Context, teamID string) (Team, error)
	// LockTeam reads the team row and holds it until commit, serializing
	// roster changes for that team.
	LockTeam(ctx context.Context, teamID string) (Team, error)
	LeagueTeams(ctx context.Context, leagueID string) ([]Team, error)
	InsertTeam(ctx context.Context, team Team, budget Budget) error
	TeamBudget(ctx context.Context, teamID string) (Budget, error)
	LockBudget(ctx context.Context, teamID string) (Budget, error)
	SaveBudget(ctx context.Context, budget Budget) error
	RosterSize(ctx context.Context, teamID string) (int, error)

	Asset(ctx context.Context, assetID string) (Asset, error)
	LockAsset(ctx context.Context, assetID string) (Asset, error)
	InsertAsset(ctx context.Context, asset Asset) error
	UnownedAssets(ctx context.Context, leagueID string) ([]Asset, error)
	ResetShown(ctx context.Context, leagueID string) error
	MarkShown(ctx context.Context, assetIDs []string) error
	TransferAsset(ctx context.Context, assetID, teamID string) error

	OpenSession(ctx context.Context, leagueID string) (Session, error)
	LastSequence(ctx context.Context, leagueID string) (int64, error)
	InsertSession(ctx context.Context, session Session) error
	LockSession(ctx context.Context, sessionID string, mode LockMode) (Session, error)
	UpdateSession(ctx context.Context, session Session) error

	InsertItem(ctx context.Context, item Item) error
	Item(ctx context.Context, itemID string) (Item, error)
	LockItem(ctx context.Context, itemID string) (Item, error)
	SessionItems(ctx context.Context, sessionID string) ([]Item, error)
	UpdateItem(ctx context.Context, item Item) error

	Bid(ctx context.Context, bidID string) (Bid, error)
	PendingBid(ctx context.Context, itemID, teamID string) (Bid, error)
	ItemBids(ctx context.Context, itemID string, state BidState) ([]Bid, error)
	TeamBids(ctx context.Context, teamID, sessionID string) ([]Bid, error)
	InsertBid(ctx context.Context, bid Bid) error
	UpdateBid(ctx context.Context, bid Bid) error

	AppendLedger(ctx context.Context, entries []LedgerEntry) error
	ClaimIdempotency(ctx context.Context, teamID, key, action string) error
}
