// Package client talks HTTP to the poker backend. It implements
// session.Backend and the lobby calls (create, recent, config), and loads
// the client's HCL configuration.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lox/pokerclient/internal/auth"
	"github.com/lox/pokerclient/internal/session"
)

// RequestIDHeader carries a fresh id on every backend call.
const RequestIDHeader = "X-Request-ID"

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIPrefix string
	Timeout   time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	// HTTPClient should carry the login session's cookie jar.
	HTTPClient *http.Client
	Auth       *auth.Client
	Logger     *log.Logger
}

// Client is the HTTP boundary to the poker backend.
type Client struct {
	baseURL string
	prefix  string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	auth    *auth.Client
	logger  *log.Logger
}

var _ session.Backend = (*Client)(nil)

// New creates a client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.HTTPClient == nil {
		if opts.Auth != nil {
			opts.HTTPClient = opts.Auth.HTTPClient()
		} else {
			opts.HTTPClient = auth.NewHTTPClient(0)
		}
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = DefaultAPIPrefix
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		prefix:  "/" + strings.Trim(opts.APIPrefix, "/"),
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		limiter: limiter,
		auth:    opts.Auth,
		logger:  opts.Logger.WithPrefix("http"),
	}
}

// FetchState loads the game state. An error document, 400 or 404 means
// the game is gone or not ours.
func (c *Client) FetchState(ctx context.Context, gameID int) (*session.GameState, error) {
	var wire WireState
	status, err := c.do(ctx, http.MethodGet, c.gamePath(gameID, "state"), nil, &wire)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: game %d: %s", session.ErrInvalidSession, gameID, wire.Error)
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: state status %d", session.ErrTransient, status)
	case wire.Error != "":
		return nil, fmt.Errorf("%w: game %d: %s", session.ErrInvalidSession, gameID, wire.Error)
	}
	return wire.ToState(), nil
}

// SubmitAction posts a human action.
func (c *Client) SubmitAction(ctx context.Context, gameID int, action session.ActionCode, amount *int) (*session.GameState, error) {
	state, _, err := c.mutate(ctx, gameID, "action", ActionRequest{Action: int(action), Amount: amount})
	return state, err
}

// StepAI asks the backend to play the pending AI seat.
func (c *Client) StepAI(ctx context.Context, gameID int) (*session.GameState, bool, error) {
	return c.mutate(ctx, gameID, "ai_step", nil)
}

// NewHand asks the backend to deal the next hand.
func (c *Client) NewHand(ctx context.Context, gameID int) (*session.GameState, error) {
	state, _, err := c.mutate(ctx, gameID, "new_hand", nil)
	return state, err
}

// mutate posts to a game endpoint that answers with an Envelope.
func (c *Client) mutate(ctx context.Context, gameID int, endpoint string, body any) (*session.GameState, bool, error) {
	var env Envelope
	status, err := c.do(ctx, http.MethodPost, c.gamePath(gameID, endpoint), body, &env)
	if err != nil {
		return nil, false, err
	}

	switch {
	case status == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: game %d", session.ErrInvalidSession, gameID)
	case status == http.StatusBadRequest:
		return nil, false, &session.RejectionError{Message: nonEmpty(env.Error, "bad request")}
	case status != http.StatusOK:
		return nil, false, fmt.Errorf("%w: %s status %d", session.ErrTransient, endpoint, status)
	case env.Error != "":
		return nil, false, &session.RejectionError{Message: env.Error}
	case env.GameState == nil:
		if env.NoAction {
			return nil, true, nil
		}
		return nil, false, &session.RejectionError{Message: "response carried no game state"}
	case env.GameState.Error != "":
		return nil, false, &session.RejectionError{Message: env.GameState.Error}
	case env.GameState.NoAction:
		// the nested form carries no real snapshot
		return nil, true, nil
	}
	return env.GameState.ToState(), env.NoAction, nil
}

// CreateGame starts a new table and returns its id.
func (c *Client) CreateGame(ctx context.Context, req CreateRequest) (int, error) {
	var resp CreateResponse
	status, err := c.do(ctx, http.MethodPost, c.prefix+"/create", req, &resp)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK || !resp.Success {
		return 0, &session.RejectionError{Message: nonEmpty(resp.Error, fmt.Sprintf("create failed with status %d", status))}
	}
	c.logger.Info("Created game", "game", resp.GameID)
	return resp.GameID, nil
}

// RecentGames lists the user's latest sessions, newest first.
func (c *Client) RecentGames(ctx context.Context) ([]GameSummary, error) {
	var resp RecentResponse
	status, err := c.do(ctx, http.MethodGet, c.prefix+"/recent", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !resp.Success {
		return nil, fmt.Errorf("%w: recent status %d", session.ErrTransient, status)
	}
	return resp.Games, nil
}

// TableDefaults returns the user's table defaults.
func (c *Client) TableDefaults(ctx context.Context) (*TableDefaults, error) {
	var resp ConfigResponse
	status, err := c.do(ctx, http.MethodGet, c.prefix+"/config", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !resp.Success {
		return nil, fmt.Errorf("%w: config status %d", session.ErrTransient, status)
	}
	return &resp.Config, nil
}

func (c *Client) gamePath(gameID int, endpoint string) string {
	return fmt.Sprintf("%s/game/%d/%s", c.prefix, gameID, endpoint)
}

// do performs one request and decodes the body into out. Network failures,
// timeouts, 429 and 5xx are ErrTransient; 401 is ErrUnauthorized. Other
// statuses are returned for the caller to interpret.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrTransient, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth.Authorize(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Request failed", "method", method, "path", path, "id", requestID, "error", err)
		return 0, fmt.Errorf("%w: %s %s: %v", session.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Request", "method", method, "path", path, "status", resp.StatusCode,
		"id", requestID, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, fmt.Errorf("%w: %s %s", session.ErrUnauthorized, method, path)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return resp.StatusCode, fmt.Errorf("%w: %s %s status %d", session.ErrTransient, method, path, resp.StatusCode)
	}

	// Limit response body to 1MB to avoid pathological responses
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode == http.StatusOK {
			return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", session.ErrTransient, path, err)
		}
		c.logger.Debug("Undecodable error body", "path", path, "status", resp.StatusCode, "error", err)
	}
	return resp.StatusCode, nil
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
