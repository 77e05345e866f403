// Package auth logs a user into the poker backend and keeps the session
// cookie (and bearer token) that every later request carries.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrUnknownUser indicates the backend has no user with that name.
	ErrUnknownUser = errors.New("auth: unknown user")

	// ErrNotAuthenticated indicates the session cookie is missing or expired.
	ErrNotAuthenticated = errors.New("auth: not authenticated")

	// ErrUnavailable indicates the backend is unreachable or misbehaving.
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity is a backend user.
type Identity struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Authenticator manages the login session.
type Authenticator interface {
	Login(ctx context.Context, username string) (*Identity, error)
	Check(ctx context.Context) (*Identity, error)
	Users(ctx context.Context) ([]Identity, error)
}

// Client authenticates against /api/login and shares its cookie jar with
// the game client through HTTPClient.
type Client struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
	user  *Identity
}

// NewClient creates a client for the backend at baseURL. A nil httpClient
// gets a fresh one with a cookie jar.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(10 * time.Second)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// NewHTTPClient returns an http.Client with a cookie jar.
func NewHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: timeout}
}

// HTTPClient returns the cookie-carrying client.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Authorize adds the bearer token, when one was issued, to req.
func (c *Client) Authorize(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// User returns the logged-in identity, if any.
func (c *Client) User() *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

type loginRequest struct {
	Username string `json:"username"`
}

type authResponse struct {
	Success       bool       `json:"success"`
	Authenticated bool       `json:"authenticated"`
	Message       string     `json:"message,omitempty"`
	Token         string     `json:"token,omitempty"`
	User          *Identity  `json:"user,omitempty"`
	Users         []Identity `json:"users,omitempty"`
}

// Login starts a session as username.
func (c *Client) Login(ctx context.Context, username string) (*Identity, error) {
	if username == "" {
		return nil, ErrUnknownUser
	}

	var resp authResponse
	status, err := c.do(ctx, http.MethodPost, "/api/login", loginRequest{Username: username}, &resp)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: login status %d: %s", ErrUnavailable, status, resp.Message)
	case !resp.Success || resp.User == nil:
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, resp.Message)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.user = resp.User
	c.mu.Unlock()
	return resp.User, nil
}

// Check reports who the current session belongs to.
func (c *Client) Check(ctx context.Context) (*Identity, error) {
	var resp authResponse
	status, err := c.do(ctx, http.MethodGet, "/api/check-auth", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrNotAuthenticated
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: check-auth status %d", ErrUnavailable, status)
	}
	if !resp.Authenticated || resp.User == nil {
		return nil, ErrNotAuthenticated
	}
	return resp.User, nil
}

// Users lists every user the backend knows about.
func (c *Client) Users(ctx context.Context) ([]Identity, error) {
	var resp authResponse
	status, err := c.do(ctx, http.MethodGet, "/api/users", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !resp.Success {
		return nil, fmt.Errorf("%w: users status %d", ErrUnavailable, status)
	}
	return resp.Users, nil
}

// EnsureLogin reuses a live session or logs in as username.
func (c *Client) EnsureLogin(ctx context.Context, username string) (*Identity, error) {
	if id, err := c.Check(ctx); err == nil && (username == "" || id.Username == username) {
		c.mu.Lock()
		c.user = id
		c.mu.Unlock()
		return id, nil
	} else if err != nil && !errors.Is(err, ErrNotAuthenticated) {
		return nil, err
	}
	return c.Login(ctx, username)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// Limit response body to 1MB to avoid pathological responses
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, nil
}
