package market

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// OpenSession draws a fresh pool and opens the league's next session. At
// most one session per league is OPEN; a second opener gets KindConflict.
func (s *Service) OpenSession(ctx context.Context, leagueID string) (SessionView, error) {
	var view SessionView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		view = SessionView{}
		if _, err := tx.LockLeague(ctx, leagueID); err != nil {
			return err
		}
		open, err := tx.OpenSession(ctx, leagueID)
		if err == nil {
			return Errorf(KindConflict, "league %s already has open session #%d", leagueID, open.SequenceNumber)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		assets, err := tx.UnownedAssets(ctx, leagueID)
		if err != nil {
			return err
		}
		draw, err := SelectPool(assets, s.sessionSize, s.rand)
		if err != nil {
			return err
		}
		if draw.Reset {
			if err := tx.ResetShown(ctx, leagueID); err != nil {
				return err
			}
		}
		if err := tx.MarkShown(ctx, draw.AssetIDs); err != nil {
			return err
		}

		seq, err := tx.LastSequence(ctx, leagueID)
		if err != nil {
			return err
		}
		session := Session{
			ID:             uuid.NewString(),
			LeagueID:       leagueID,
			SequenceNumber: seq + 1,
			State:          SessionOpen,
			PoolWasReset:   draw.Reset,
			OpenedAt:       s.now(),
		}
		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}

		view.Session = session
		for i, assetID := range draw.AssetIDs {
			asset, err := tx.Asset(ctx, assetID)
			if err != nil {
				return err
			}
			item := Item{
				ID:         uuid.NewString(),
				SessionID:  session.ID,
				AssetID:    asset.ID,
				Slot:       i + 1,
				FloorPrice: asset.Price,
			}
			if err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
			view.Items = append(view.Items, itemView(item, asset, nil))
		}
		return nil
	})
	if err != nil {
		return SessionView{}, err
	}
	s.log.InfoContext(ctx, "market session opened",
		"league_id", leagueID,
		"session_id", view.Session.ID,
		"sequence", view.Session.SequenceNumber,
		"pool_reset", view.Session.PoolWasReset,
	)
	return view, nil
}

// GetOpenSession returns the sealed projection of the league's open session,
// or nil when none is open. Bid amounts are only included for viewerTeamID's
// own bids; an empty viewer sees counts only.
func (s *Service) GetOpenSession(ctx context.Context, leagueID, viewerTeamID string) (*SessionView, error) {
	var view *SessionView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		view = nil
		if _, err := tx.League(ctx, leagueID); err != nil {
			return err
		}
		if viewerTeamID != "" {
			team, err := tx.Team(ctx, viewerTeamID)
			if err != nil {
				return err
			}
			if team.LeagueID != leagueID {
				return Errorf(KindForbidden, "team %s is not in league %s", viewerTeamID, leagueID)
			}
		}
		session, err := tx.OpenSession(ctx, leagueID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		items, err := tx.SessionItems(ctx, session.ID)
		if err != nil {
			return err
		}
		v := SessionView{Session: session, Items: make([]ItemView, 0, len(items))}
		for _, item := range items {
			asset, err := tx.Asset(ctx, item.AssetID)
			if err != nil {
				return err
			}
			var own *Bid
			if viewerTeamID != "" {
				bid, err := tx.PendingBid(ctx, item.ID, viewerTeamID)
				switch {
				case err == nil:
					own = &bid
				case !errors.Is(err, ErrNotFound):
					return err
				}
			}
			v.Items = append(v.Items, itemView(item, asset, own))
		}
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CloseSession clears every item of an OPEN session and marks it CLOSED, all
// in one transaction. A second call fails with KindInvalidState.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (ClearingReport, error) {
	var report ClearingReport
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.LockSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if session.State != SessionOpen {
			return Errorf(KindInvalidState, "session %s is %s", sessionID, session.State)
		}
		now := s.now()
		report = ClearingReport{
			SessionID:      session.ID,
			LeagueID:       session.LeagueID,
			SequenceNumber: session.SequenceNumber,
			Transfers:      []Transfer{},
			Rejections:     []Rejection{},
			ClosedAt:       now,
		}

		items, err := tx.SessionItems(ctx, session.ID)
		if err != nil {
			return err
		}
		ledger := NewLedger(tx, s.log, now)
		for _, item := range items {
			if err := s.clearItem(ctx, tx, ledger, item, &report); err != nil {
				return err
			}
		}
		if err := ledger.Flush(ctx); err != nil {
			return err
		}

		session.State = SessionClosed
		session.ClosedAt = &now
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return ClearingReport{}, err
	}
	s.log.InfoContext(ctx, "market session closed",
		"session_id", report.SessionID,
		"league_id", report.LeagueID,
		"sold", report.ItemsSold,
		"unsold", report.ItemsUnsold,
		"value_moved", report.TotalValueMoved,
	)
	s.reportClearing(ctx, report)
	return report, nil
}

// CancelSession aborts an OPEN session: every pending bid is released and
// cancelled and nothing changes hands.
func (s *Service) CancelSession(ctx context.Context, sessionID string) (Session, error) {
	var session Session
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		session, err = tx.LockSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if session.State != SessionOpen {
			return Errorf(KindInvalidState, "session %s is %s", sessionID, session.State)
		}
		now := s.now()
		items, err := tx.SessionItems(ctx, session.ID)
		if err != nil {
			return err
		}
		ledger := NewLedger(tx, s.log, now)
		for _, it := range items {
			item, err := tx.LockItem(ctx, it.ID)
			if err != nil {
				return err
			}
			bids, err := tx.ItemBids(ctx, item.ID, BidPending)
			if err != nil {
				return err
			}
			for _, bid := range bids {
				if err := ledger.Release(ctx, bid.TeamID, bid.Amount, bid.ID); err != nil {
					return err
				}
				bid.State = BidCancelled
				if err := tx.UpdateBid(ctx, bid); err != nil {
					return err
				}
			}
			item.BidCount = 0
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
		}
		if err := ledger.Flush(ctx); err != nil {
			return err
		}
		session.State = SessionCancelled
		session.ClosedAt = &now
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return Session{}, err
	}
	s.log.InfoContext(ctx, "market session cancelled", "session_id", session.ID, "league_id", session.LeagueID)
	return session, nil
}

func itemView(item Item, asset Asset, own *Bid) ItemView {
	return ItemView{
		ItemID:     item.ID,
		AssetID:    asset.ID,
		AssetName:  asset.Name,
		Position:   asset.Position,
		Slot:       item.Slot,
		FloorPrice: item.FloorPrice,
		BidCount:   item.BidCount,
		OwnBid:     own,
	}
}
