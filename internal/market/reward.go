package market

import (
	"context"
	"strings"
	"time"
)

type RewardKind string

const (
	RewardCash  RewardKind = "cash"
	RewardAsset RewardKind = "asset"
)

// Reward is a prize granted to a team outside the market. The set of
// variants is closed.
type Reward interface {
	Kind() RewardKind
	isReward()
}

type CashReward struct {
	Amount int64
}

func (CashReward) Kind() RewardKind { return RewardCash }
func (CashReward) isReward()        {}

type AssetReward struct {
	AssetID string
}

func (AssetReward) Kind() RewardKind { return RewardAsset }
func (AssetReward) isReward()        {}

// ParseReward builds a Reward from its wire form.
func ParseReward(kind string, amount int64, assetID string) (Reward, error) {
	switch RewardKind(strings.ToLower(strings.TrimSpace(kind))) {
	case RewardCash:
		if amount <= 0 {
			return nil, Errorf(KindInvalidInput, "cash reward amount must be > 0")
		}
		return CashReward{Amount: amount}, nil
	case RewardAsset:
		if strings.TrimSpace(assetID) == "" {
			return nil, Errorf(KindInvalidInput, "asset reward needs asset_id")
		}
		return AssetReward{AssetID: strings.TrimSpace(assetID)}, nil
	default:
		return nil, Errorf(KindInvalidInput, "unknown reward kind %q", kind)
	}
}

// RewardGrant records a committed reward.
type RewardGrant struct {
	TeamID    string     `json:"team_id"`
	LeagueID  string     `json:"league_id"`
	Kind      RewardKind `json:"kind"`
	Amount    int64      `json:"amount,omitempty"`
	AssetID   string     `json:"asset_id,omitempty"`
	AssetName string     `json:"asset_name,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
}

// GrantReward applies a reward to a team. Cash is credited to the budget;
// an asset is transferred from the free-agent pool if the team passes the
// quota.
func (s *Service) GrantReward(ctx context.Context, teamID string, reward Reward) (RewardGrant, error) {
	var grant RewardGrant
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		team, err := tx.Team(ctx, teamID)
		if err != nil {
			return err
		}
		now := s.now()
		grant = RewardGrant{TeamID: team.ID, LeagueID: team.LeagueID, GrantedAt: now}

		switch r := reward.(type) {
		case CashReward:
			ledger := NewLedger(tx, s.log, now)
			if err := ledger.Credit(ctx, team.ID, r.Amount, "reward"); err != nil {
				return err
			}
			grant.Kind = RewardCash
			grant.Amount = r.Amount
			return ledger.Flush(ctx)
		case AssetReward:
			asset, err := tx.LockAsset(ctx, r.AssetID)
			if err != nil {
				return err
			}
			if asset.OwnerTeamID != "" {
				return Errorf(KindConflict, "asset %s is already owned", asset.ID)
			}
			verdict, err := s.quota.Validate(ctx, tx, team.ID, asset)
			if err != nil {
				return err
			}
			if !verdict.Valid {
				return Errorf(KindForbidden, "%s", verdict.Reason)
			}
			if err := tx.TransferAsset(ctx, asset.ID, team.ID); err != nil {
				return err
			}
			grant.Kind = RewardAsset
			grant.AssetID = asset.ID
			grant.AssetName = asset.Name
			return nil
		default:
			return Errorf(KindInvalidInput, "unsupported reward")
		}
	})
	if err != nil {
		return RewardGrant{}, err
	}
	s.log.InfoContext(ctx, "reward granted", "team_id", grant.TeamID, "kind", grant.Kind, "amount", grant.Amount, "asset_id", grant.AssetID)
	s.reportReward(ctx, grant)
	return grant, nil
}
