package market

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// PlaceBid creates the team's pending bid on an item or, when one already
// exists, moves it to the new amount and refreshes placedAt. Only the
// difference is reserved or released.
func (s *Service) PlaceBid(ctx context.Context, in PlaceBidInput) (Bid, error) {
	if in.Amount <= 0 {
		return Bid{}, Errorf(KindInvalidInput, "bid amount must be > 0")
	}
	if strings.TrimSpace(in.TeamID) == "" || strings.TrimSpace(in.ItemID) == "" {
		return Bid{}, Errorf(KindInvalidInput, "team and item are required")
	}

	var out Bid
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if in.IdempotencyKey != "" {
			if err := tx.ClaimIdempotency(ctx, in.TeamID, in.IdempotencyKey, "place_bid"); err != nil {
				return err
			}
		}
		team, err := tx.Team(ctx, in.TeamID)
		if err != nil {
			return err
		}
		item, err := tx.Item(ctx, in.ItemID)
		if err != nil {
			return err
		}
		session, err := tx.LockSession(ctx, item.SessionID, LockShare)
		if err != nil {
			return err
		}
		if session.State != SessionOpen {
			return Errorf(KindNotFound, "item %s is not in an open session", item.ID)
		}
		if team.LeagueID != session.LeagueID {
			return Errorf(KindForbidden, "team %s is not in league %s", team.ID, session.LeagueID)
		}
		asset, err := tx.Asset(ctx, item.AssetID)
		if err != nil {
			return err
		}
		if in.Amount < asset.Price {
			return Errorf(KindBelowFloor, "bid %s is below floor %s", FormatAmount(in.Amount), FormatAmount(asset.Price))
		}

		item, err = tx.LockItem(ctx, item.ID)
		if err != nil {
			return err
		}
		now := s.now()
		ledger := NewLedger(tx, s.log, now)

		existing, err := tx.PendingBid(ctx, item.ID, team.ID)
		switch {
		case err == nil:
			delta := in.Amount - existing.Amount
			if delta > 0 {
				if err := ledger.Reserve(ctx, team.ID, delta, existing.ID); err != nil {
					return err
				}
			} else if delta < 0 {
				if err := ledger.Release(ctx, team.ID, -delta, existing.ID); err != nil {
					return err
				}
			}
			existing.Amount = in.Amount
			existing.ReferencePrice = asset.Price
			existing.PlacedAt = now
			if err := tx.UpdateBid(ctx, existing); err != nil {
				return err
			}
			out = existing
		case errors.Is(err, ErrNotFound):
			bid := Bid{
				ID:             uuid.NewString(),
				ItemID:         item.ID,
				TeamID:         team.ID,
				Amount:         in.Amount,
				ReferencePrice: asset.Price,
				PlacedAt:       now,
				State:          BidPending,
			}
			if err := ledger.Reserve(ctx, team.ID, bid.Amount, bid.ID); err != nil {
				return err
			}
			if err := tx.InsertBid(ctx, bid); err != nil {
				return err
			}
			item.BidCount++
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
			out = bid
		default:
			return err
		}
		return ledger.Flush(ctx)
	})
	if err != nil {
		return Bid{}, err
	}
	return out, nil
}

// CancelBid withdraws a pending bid and releases its reservation.
func (s *Service) CancelBid(ctx context.Context, teamID, bidID string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		bid, err := tx.Bid(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.TeamID != teamID {
			return Errorf(KindForbidden, "bid %s does not belong to team %s", bidID, teamID)
		}
		item, err := tx.Item(ctx, bid.ItemID)
		if err != nil {
			return err
		}
		session, err := tx.LockSession(ctx, item.SessionID, LockShare)
		if err != nil {
			return err
		}
		if session.State != SessionOpen {
			return Errorf(KindInvalidState, "session %s is %s", session.ID, session.State)
		}
		item, err = tx.LockItem(ctx, item.ID)
		if err != nil {
			return err
		}
		// Re-read under the item lock; a concurrent cancel may have won.
		bid, err = tx.Bid(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.State != BidPending {
			return Errorf(KindInvalidState, "bid %s is %s", bidID, bid.State)
		}

		ledger := NewLedger(tx, s.log, s.now())
		if err := ledger.Release(ctx, teamID, bid.Amount, bid.ID); err != nil {
			return err
		}
		bid.State = BidCancelled
		if err := tx.UpdateBid(ctx, bid); err != nil {
			return err
		}
		item.BidCount--
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		return ledger.Flush(ctx)
	})
}

// ListTeamBids returns the team's bids, newest first. An empty sessionID
// lists bids across all sessions.
func (s *Service) ListTeamBids(ctx context.Context, teamID, sessionID string) ([]Bid, error) {
	var bids []Bid
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Team(ctx, teamID); err != nil {
			return err
		}
		var err error
		bids, err = tx.TeamBids(ctx, teamID, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bids, nil
}
