package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"leaguebid/internal/auth"
	"leaguebid/internal/config"
	"leaguebid/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Token  string
}

// TokenVerifier resolves a bearer token to the calling user.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (auth.User, error)
}

// PasswordLogin exchanges credentials for a token. Optional: without it the
// login route is not mounted.
type PasswordLogin interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

type Server struct {
	cfg    config.ServerConfig
	log    *slog.Logger
	auth   TokenVerifier
	login  PasswordLogin
	market *market.Service
	mux    *chi.Mux
}

func New(cfg config.ServerConfig, logger *slog.Logger, verifier TokenVerifier, login PasswordLogin, svc *market.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger.With("component", "api"),
		auth:   verifier,
		login:  login,
		market: svc,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		if s.login != nil {
			r.Post("/auth/login", s.handleLogin)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/me", s.handleMe)
			r.Get("/leagues", s.handleLeagues)
			r.Get("/leagues/{leagueID}/teams", s.handleLeagueTeams)
			r.Get("/leagues/{leagueID}/session", s.handleOpenSession)

			r.Route("/teams/{teamID}", func(r chi.Router) {
				r.Use(s.controllerOnly)
				r.Get("/budget", s.handleBudget)
				r.Get("/bids", s.handleTeamBids)
				r.Post("/bids", s.handlePlaceBid)
				r.Delete("/bids/{bidID}", s.handleCancelBid)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Post("/leagues/{leagueID}/sessions", s.handleAdminOpenSession)
				r.Post("/sessions/{sessionID}/close", s.handleAdminCloseSession)
				r.Post("/sessions/{sessionID}/cancel", s.handleAdminCancelSession)
				r.Post("/teams/{teamID}/rewards", s.handleAdminGrantReward)
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.Warn("token verification failed", "err", err)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// controllerOnly admits the caller only when they control {teamID}.
func (s *Server) controllerOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		team, err := s.market.Team(r.Context(), chi.URLParam(r, "teamID"))
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if team.ControllerUserID != user.UserID {
			s.writeDomainError(w, market.Errorf(market.KindForbidden, "caller does not control team %s", team.ID))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if !s.isAdmin(user.UserID) {
			s.writeDomainError(w, market.Errorf(market.KindForbidden, "admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdmin(userID string) bool {
	return slices.Contains(s.cfg.AdminUserIDs, userID)
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, string(market.KindInvalidInput), err.Error())
		return
	}
	session, err := s.login.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": user.UserID,
		"email":   user.Email,
		"admin":   s.isAdmin(user.UserID),
	})
}

// writeDomainError maps a market error kind onto a status and the
// {"error":{"kind","message"}} body. Internal errors carry no detail.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	kind := market.KindOf(err)
	status := statusForKind(kind)
	if kind == market.KindInternal {
		s.log.Error("request failed", "err", err)
		writeError(w, status, string(kind), "internal error")
		return
	}
	writeError(w, status, string(kind), err.Error())
}

func statusForKind(kind market.Kind) int {
	switch kind {
	case market.KindConflict, market.KindInvalidState:
		return http.StatusConflict
	case market.KindNotFound:
		return http.StatusNotFound
	case market.KindForbidden:
		return http.StatusForbidden
	case market.KindInsufficientFunds, market.KindInsufficientPool, market.KindBelowFloor:
		return http.StatusUnprocessableEntity
	case market.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Kind: kind, Message: strings.TrimSpace(message)}})
}

// idempotencyKey returns the optional Idempotency-Key header. Empty means the
// request is not deduplicated.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
