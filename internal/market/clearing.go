package market

import (
	"cmp"
	"context"
	"slices"
)

// RankBids returns bids in clearing order: amount descending, then placedAt
// ascending, then id ascending. The input is not modified.
func RankBids(bids []Bid) []Bid {
	out := slices.Clone(bids)
	slices.SortFunc(out, func(a, b Bid) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		if c := a.PlacedAt.Compare(b.PlacedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// clearItem resolves one item. The first ranked bid that passes the quota
// wins and is settled; rejected candidates are released as REJECTED_QUOTA
// and the rest are released as LOST.
func (s *Service) clearItem(ctx context.Context, tx Tx, ledger *Ledger, it Item, report *ClearingReport) error {
	item, err := tx.LockItem(ctx, it.ID)
	if err != nil {
		return err
	}
	asset, err := tx.LockAsset(ctx, item.AssetID)
	if err != nil {
		return err
	}
	pending, err := tx.ItemBids(ctx, item.ID, BidPending)
	if err != nil {
		return err
	}
	ranked := RankBids(pending)

	if asset.OwnerTeamID != "" {
		// Granted to a team while listed; nobody can buy it now.
		s.log.WarnContext(ctx, "listed asset already owned at clearing",
			"item_id", item.ID,
			"asset_id", asset.ID,
			"owner_team_id", asset.OwnerTeamID,
		)
		report.ItemsUnsold++
		return s.settleLosers(ctx, tx, ledger, ranked)
	}

	winner := -1
	for i, bid := range ranked {
		verdict, err := s.quota.Validate(ctx, tx, bid.TeamID, asset)
		if err != nil {
			return err
		}
		if verdict.Valid {
			winner = i
			break
		}
		if err := ledger.Release(ctx, bid.TeamID, bid.Amount, bid.ID); err != nil {
			return err
		}
		bid.State = BidRejectedQuota
		if err := tx.UpdateBid(ctx, bid); err != nil {
			return err
		}
		report.Rejections = append(report.Rejections, Rejection{
			ItemID: item.ID,
			BidID:  bid.ID,
			TeamID: bid.TeamID,
			Reason: verdict.Reason,
		})
	}
	if winner < 0 {
		report.ItemsUnsold++
		return nil
	}

	won := ranked[winner]
	if err := ledger.Settle(ctx, won.TeamID, won.Amount, won.ID); err != nil {
		return err
	}
	if err := tx.TransferAsset(ctx, asset.ID, won.TeamID); err != nil {
		return err
	}
	won.State = BidWon
	if err := tx.UpdateBid(ctx, won); err != nil {
		return err
	}
	item.WinningBidID = won.ID
	if err := tx.UpdateItem(ctx, item); err != nil {
		return err
	}
	if err := s.settleLosers(ctx, tx, ledger, ranked[winner+1:]); err != nil {
		return err
	}

	report.ItemsSold++
	report.TotalValueMoved += won.Amount
	report.Transfers = append(report.Transfers, Transfer{
		ItemID:    item.ID,
		AssetID:   asset.ID,
		AssetName: asset.Name,
		TeamID:    won.TeamID,
		BidID:     won.ID,
		Amount:    won.Amount,
	})
	return nil
}

func (s *Service) settleLosers(ctx context.Context, tx Tx, ledger *Ledger, bids []Bid) error {
	for _, bid := range bids {
		if err := ledger.Release(ctx, bid.TeamID, bid.Amount, bid.ID); err != nil {
			return err
		}
		bid.State = BidLost
		if err := tx.UpdateBid(ctx, bid); err != nil {
			return err
		}
	}
	return nil
}
