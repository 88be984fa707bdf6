package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leaguebid/internal/auth"
	"leaguebid/internal/market"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Kind, e.Message)
}

// IsAPIError reports whether err came back from the server, as opposed to a
// transport failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// KindOf returns the API error kind, or "" for transport errors.
func KindOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

type Me struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Admin  bool   `json:"admin"`
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Me(ctx context.Context, accessToken string) (Me, error) {
	var out Me
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Leagues(ctx context.Context, accessToken string) ([]market.League, error) {
	var out struct {
		Leagues []market.League `json:"leagues"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leagues", accessToken, nil, &out, "")
	return out.Leagues, err
}

func (c *Client) LeagueTeams(ctx context.Context, accessToken, leagueID string) ([]market.Team, error) {
	var out struct {
		Teams []market.Team `json:"teams"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leagues/"+url.PathEscape(leagueID)+"/teams", accessToken, nil, &out, "")
	return out.Teams, err
}

// OpenSession returns nil when the league has no open session.
func (c *Client) OpenSession(ctx context.Context, accessToken, leagueID, teamID string) (*market.SessionView, error) {
	path := "/v1/leagues/" + url.PathEscape(leagueID) + "/session"
	if teamID != "" {
		path += "?team=" + url.QueryEscape(teamID)
	}
	var out struct {
		Session *market.SessionView `json:"session"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Session, err
}

func (c *Client) Budget(ctx context.Context, accessToken, teamID string) (market.BudgetView, error) {
	var out market.BudgetView
	err := c.jsonRequest(ctx, http.MethodGet, teamPath(teamID, "/budget"), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) TeamBids(ctx context.Context, accessToken, teamID, sessionID string) ([]market.Bid, error) {
	path := teamPath(teamID, "/bids")
	if sessionID != "" {
		path += "?session=" + url.QueryEscape(sessionID)
	}
	var out struct {
		Bids []market.Bid `json:"bids"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Bids, err
}

func (c *Client) PlaceBid(ctx context.Context, accessToken, teamID, itemID string, amount int64, idem string) (market.Bid, error) {
	var out market.Bid
	err := c.jsonRequest(ctx, http.MethodPost, teamPath(teamID, "/bids"), accessToken, PlaceBidBody(itemID, amount), &out, idem)
	return out, err
}

func PlaceBidBody(itemID string, amount int64) map[string]any {
	return map[string]any{"item_id": itemID, "amount": amount}
}

func (c *Client) CancelBid(ctx context.Context, accessToken, teamID, bidID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, teamPath(teamID, "/bids/"+url.PathEscape(bidID)), accessToken, nil, nil, "")
}

func (c *Client) AdminOpenSession(ctx context.Context, accessToken, leagueID string) (market.SessionView, error) {
	var out market.SessionView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/leagues/"+url.PathEscape(leagueID)+"/sessions", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) AdminCloseSession(ctx context.Context, accessToken, sessionID string) (market.ClearingReport, error) {
	var out market.ClearingReport
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/sessions/"+url.PathEscape(sessionID)+"/close", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) AdminCancelSession(ctx context.Context, accessToken, sessionID string) (market.Session, error) {
	var out market.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/sessions/"+url.PathEscape(sessionID)+"/cancel", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) AdminGrantReward(ctx context.Context, accessToken, teamID, kind string, amount int64, assetID string) (market.RewardGrant, error) {
	var out market.RewardGrant
	body := map[string]any{"kind": kind}
	if amount != 0 {
		body["amount"] = amount
	}
	if assetID != "" {
		body["asset_id"] = assetID
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/teams/"+url.PathEscape(teamID)+"/rewards", accessToken, body, &out, "")
	return out, err
}

// Do sends a raw request. Used to replay queued commands.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, in map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var body any
	if in != nil {
		body = in
	}
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func teamPath(teamID, suffix string) string {
	return "/v1/teams/" + url.PathEscape(teamID) + suffix
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Kind == "" {
		return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{Status: status, Kind: body.Error.Kind, Message: body.Error.Message}
}
