package market

import "time"

type SessionState string

const (
	SessionOpen      SessionState = "OPEN"
	SessionClosed    SessionState = "CLOSED"
	SessionCancelled SessionState = "CANCELLED"
)

type BidState string

const (
	BidPending       BidState = "PENDING"
	BidWon           BidState = "WON"
	BidLost          BidState = "LOST"
	BidCancelled     BidState = "CANCELLED"
	BidRejectedQuota BidState = "REJECTED_QUOTA"
)

type League struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Team struct {
	ID               string `json:"id"`
	LeagueID         string `json:"league_id"`
	Name             string `json:"name"`
	ControllerUserID string `json:"controller_user_id"`
	Active           bool   `json:"active"`
}

// Asset is a player that can be owned by at most one team. An empty
// OwnerTeamID means the asset sits in the league's free-agent pool.
type Asset struct {
	ID              string `json:"id"`
	LeagueID        string `json:"league_id"`
	Name            string `json:"name"`
	Position        string `json:"position"`
	Price           int64  `json:"price"`
	OwnerTeamID     string `json:"owner_team_id,omitempty"`
	ShownSinceReset bool   `json:"shown_since_reset"`
}

type Session struct {
	ID             string       `json:"id"`
	LeagueID       string       `json:"league_id"`
	SequenceNumber int64        `json:"sequence_number"`
	State          SessionState `json:"state"`
	PoolWasReset   bool         `json:"pool_was_reset"`
	OpenedAt       time.Time    `json:"opened_at"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
}

type Item struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	AssetID      string `json:"asset_id"`
	Slot         int    `json:"slot"`
	FloorPrice   int64  `json:"floor_price"`
	BidCount     int    `json:"bid_count"`
	WinningBidID string `json:"winning_bid_id,omitempty"`
}

type Bid struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id"`
	TeamID         string    `json:"team_id"`
	Amount         int64     `json:"amount"`
	ReferencePrice int64     `json:"reference_price"`
	PlacedAt       time.Time `json:"placed_at"`
	State          BidState  `json:"state"`
}

type LedgerEntry struct {
	TxGroupID string    `json:"tx_group_id"`
	TeamID    string    `json:"team_id"`
	Account   string    `json:"account"`
	Delta     int64     `json:"delta"`
	Action    string    `json:"action"`
	RefID     string    `json:"ref_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionView is the sealed-bid projection of a session: bid counts are
// public, amounts only for the viewing team's own bids.
type SessionView struct {
	Session Session    `json:"session"`
	Items   []ItemView `json:"items"`
}

type ItemView struct {
	ItemID     string `json:"item_id"`
	AssetID    string `json:"asset_id"`
	AssetName  string `json:"asset_name"`
	Position   string `json:"position"`
	Slot       int    `json:"slot"`
	FloorPrice int64  `json:"floor_price"`
	BidCount   int    `json:"bid_count"`
	OwnBid     *Bid   `json:"own_bid,omitempty"`
}

type BudgetView struct {
	TeamID    string `json:"team_id"`
	Total     int64  `json:"total"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}

type PlaceBidInput struct {
	TeamID         string
	ItemID         string
	Amount         int64
	IdempotencyKey string
}

type ClearingReport struct {
	SessionID       string      `json:"session_id"`
	LeagueID        string      `json:"league_id"`
	SequenceNumber  int64       `json:"sequence_number"`
	ItemsSold       int         `json:"items_sold"`
	ItemsUnsold     int         `json:"items_unsold"`
	TotalValueMoved int64       `json:"total_value_moved"`
	Transfers       []Transfer  `json:"transfers"`
	Rejections      []Rejection `json:"rejections"`
	ClosedAt        time.Time   `json:"closed_at"`
}

type Transfer struct {
	ItemID    string `json:"item_id"`
	AssetID   string `json:"asset_id"`
	AssetName string `json:"asset_name"`
	TeamID    string `json:"team_id"`
	BidID     string `json:"bid_id"`
	Amount    int64  `json:"amount"`
}

type Rejection struct {
	ItemID string `json:"item_id"`
	BidID  string `json:"bid_id"`
	TeamID string `json:"team_id"`
	Reason string `json:"reason"`
}
