package api

import (
	"net/http"
	"strings"

	"leaguebid/internal/market"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := s.market.ListLeagues(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leagues": leagues})
}

func (s *Server) handleLeagueTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.market.LeagueTeams(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

// handleOpenSession serves the sealed projection. With ?team= the caller must
// control that team and sees its own bid amounts.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	teamID := strings.TrimSpace(r.URL.Query().Get("team"))
	if teamID != "" {
		team, err := s.market.Team(r.Context(), teamID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if team.ControllerUserID != user.UserID {
			s.writeDomainError(w, market.Errorf(market.KindForbidden, "caller does not control team %s", teamID))
			return
		}
	}
	view, err := s.market.GetOpenSession(r.Context(), chi.URLParam(r, "leagueID"), teamID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": view})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.Budget(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTeamBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.market.ListTeamBids(r.Context(), chi.URLParam(r, "teamID"), strings.TrimSpace(r.URL.Query().Get("session")))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids})
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ItemID string `json:"item_id"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, string(market.KindInvalidInput), err.Error())
		return
	}
	bid, err := s.market.PlaceBid(r.Context(), market.PlaceBidInput{
		TeamID:         chi.URLParam(r, "teamID"),
		ItemID:         strings.TrimSpace(in.ItemID),
		Amount:         in.Amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (s *Server) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	if err := s.market.CancelBid(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "bidID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminOpenSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.market.OpenSession(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleAdminCloseSession(w http.ResponseWriter, r *http.Request) {
	report, err := s.market.CloseSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAdminCancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.market.CancelSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleAdminGrantReward(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Kind    string `json:"kind"`
		Amount  int64  `json:"amount"`
		AssetID string `json:"asset_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, string(market.KindInvalidInput), err.Error())
		return
	}
	reward, err := market.ParseReward(in.Kind, in.Amount, strings.TrimSpace(in.AssetID))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	grant, err := s.market.GrantReward(r.Context(), chi.URLParam(r, "teamID"), reward)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}
