package fakeserver

import (
	"bytes"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokerclient/internal/client"
)

type harness struct {
	t      *testing.T
	srv    *Server
	server *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := New(Options{
		Users:  []string{"alice", "bob", "carol"},
		Seed:   3,
		Logger: log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel}),
	})
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)
	return &harness{t: t, srv: srv, server: server}
}

// browser is a cookie-carrying HTTP client.
func (h *harness) browser() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &http.Client{Jar: jar}
}

func (h *harness) call(c *http.Client, method, path string, body, out any) int {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) login(name string) *http.Client {
	h.t.Helper()
	c := h.browser()
	status := h.call(c, http.MethodPost, "/api/login", map[string]string{"username": name}, nil)
	require.Equal(h.t, http.StatusOK, status)
	return c
}

func (h *harness) create(c *http.Client, req client.CreateRequest) int {
	h.t.Helper()
	var resp client.CreateResponse
	status := h.call(c, http.MethodPost, "/poker/create", req, &resp)
	require.Equal(h.t, http.StatusOK, status, resp.Error)
	require.True(h.t, resp.Success)
	return resp.GameID
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	t.Run("unknown user", func(t *testing.T) {
		var resp map[string]any
		status := h.call(h.browser(), http.MethodPost, "/api/login", map[string]string{"username": "mallory"}, &resp)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, false, resp["success"])
	})

	t.Run("cookie session", func(t *testing.T) {
		c := h.login("Alice")

		var resp struct {
			Authenticated bool `json:"authenticated"`
			User          User `json:"user"`
		}
		require.Equal(t, http.StatusOK, h.call(c, http.MethodGet, "/api/check-auth", nil, &resp))
		assert.True(t, resp.Authenticated)
		assert.Equal(t, User{ID: 1, Username: "alice", Avatar: "A"}, resp.User)

		var users struct {
			Users []User `json:"users"`
		}
		require.Equal(t, http.StatusOK, h.call(c, http.MethodGet, "/api/users", nil, &users))
		assert.Len(t, users.Users, 3)

		require.Equal(t, http.StatusOK, h.call(c, http.MethodPost, "/api/logout", nil, nil))
		require.Equal(t, http.StatusOK, h.call(c, http.MethodGet, "/api/check-auth", nil, &resp))
		assert.False(t, resp.Authenticated)
	})

	t.Run("bearer token", func(t *testing.T) {
		var resp struct {
			Token string `json:"token"`
		}
		require.Equal(t, http.StatusOK, h.call(h.browser(), http.MethodPost, "/api/login", map[string]string{"username": "bob"}, &resp))
		require.NotEmpty(t, resp.Token)

		req, err := http.NewRequest(http.MethodGet, h.server.URL+"/poker/config", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+resp.Token)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("game routes require login", func(t *testing.T) {
		for _, path := range []string{"/poker/recent", "/poker/config", "/poker/game/1/state", "/api/users"} {
			assert.Equal(t, http.StatusUnauthorized, h.call(h.browser(), http.MethodGet, path, nil, nil), path)
		}
	})
}

func TestCreateAndRecent(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")

	var cfg client.ConfigResponse
	require.Equal(t, http.StatusOK, h.call(alice, http.MethodGet, "/poker/config", nil, &cfg))
	assert.Equal(t, DefaultTableDefaults(), cfg.Config)

	first := h.create(alice, client.CreateRequest{})
	second := h.create(alice, client.CreateRequest{AIDifficulty: "hard", SmallBlind: 25, BigBlind: 50, BuyIn: 2000, AIPlayerCount: 2})

	var state client.WireState
	require.Equal(t, http.StatusOK, h.call(alice, http.MethodGet, "/poker/game/1/state", nil, &state))
	assert.Len(t, state.Players, 7, "defaults seat six AI players")

	var recent client.RecentResponse
	require.Equal(t, http.StatusOK, h.call(alice, http.MethodGet, "/poker/recent", nil, &recent))
	require.Len(t, recent.Games, 2)
	assert.Equal(t, second, recent.Games[0].ID, "newest first")
	assert.Equal(t, first, recent.Games[1].ID)
	assert.Equal(t, "hard", recent.Games[0].AIDifficulty)
	assert.Equal(t, "playing", recent.Games[0].Status)

	var bad client.CreateResponse
	status := h.call(alice, http.MethodPost, "/poker/create", client.CreateRequest{AIPlayerCount: 9}, &bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, bad.Error)

	bob := h.login("bob")
	require.Equal(t, http.StatusOK, h.call(bob, http.MethodGet, "/poker/recent", nil, &recent))
	assert.Empty(t, recent.Games)
}

func TestPartnerSeating(t *testing.T) {
	h := newHarness(t)
	alice, bob, carol := h.login("alice"), h.login("bob"), h.login("carol")

	partner := 2
	id := h.create(alice, client.CreateRequest{AIPlayerCount: 7, SecondUserID: &partner})

	var state client.WireState
	require.Equal(t, http.StatusOK, h.call(bob, http.MethodGet, "/poker/game/1/state", nil, &state))
	assert.Equal(t, id, state.GameID)
	assert.Len(t, state.Players, 8, "seats are capped")
	require.NotNil(t, state.MyPosition)
	assert.Equal(t, 1, *state.MyPosition)

	var denied client.WireState
	assert.Equal(t, http.StatusBadRequest, h.call(carol, http.MethodGet, "/poker/game/1/state", nil, &denied))
	assert.Equal(t, "Access denied", denied.Error)
}

func TestGameEndpoints(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	h.create(alice, client.CreateRequest{AIPlayerCount: 1})

	var env client.Envelope

	t.Run("ai step with a human to act", func(t *testing.T) {
		require.Equal(t, http.StatusOK, h.call(alice, http.MethodPost, "/poker/game/1/ai_step", nil, &env))
		assert.True(t, env.NoAction)
		require.NotNil(t, env.GameState)
		assert.Equal(t, 0, env.GameState.CurrentPlayer)
	})

	t.Run("new hand while playing", func(t *testing.T) {
		env = client.Envelope{}
		require.Equal(t, http.StatusOK, h.call(alice, http.MethodPost, "/poker/game/1/new_hand", nil, &env))
		assert.Equal(t, "Hand still in progress", env.Error)
	})

	t.Run("illegal action", func(t *testing.T) {
		env = client.Envelope{}
		require.Equal(t, http.StatusOK, h.call(alice, http.MethodPost, "/poker/game/1/action", client.ActionRequest{Action: 9}, &env))
		assert.Contains(t, env.Error, "Invalid action")
	})

	t.Run("fold then deal", func(t *testing.T) {
		env = client.Envelope{}
		require.Equal(t, http.StatusOK, h.call(alice, http.MethodPost, "/poker/game/1/action", client.ActionRequest{Action: ActFold}, &env))
		require.NotNil(t, env.GameState)
		assert.True(t, env.GameState.IsHandOver)
		require.NotNil(t, env.GameState.WinnerInfo)
		assert.Equal(t, "bot-1", env.GameState.WinnerInfo.WinnerName)

		env = client.Envelope{}
		require.Equal(t, http.StatusOK, h.call(alice, http.MethodPost, "/poker/game/1/new_hand", nil, &env))
		require.NotNil(t, env.GameState)
		assert.Equal(t, 2, env.GameState.HandNumber)
		assert.Equal(t, 1, env.GameState.CurrentPlayer, "button moves and acts first heads up")
		assert.True(t, env.GameState.PendingAIAction)
	})

	t.Run("not your turn", func(t *testing.T) {
		env = client.Envelope{}
		require.Equal(t, http.StatusOK, h.call(alice, http.MethodPost, "/poker/game/1/action", client.ActionRequest{Action: ActCheckCall}, &env))
		assert.Equal(t, "Not your turn", env.Error)
	})

	t.Run("ai step plays the bot", func(t *testing.T) {
		env = client.Envelope{}
		require.Equal(t, http.StatusOK, h.call(alice, http.MethodPost, "/poker/game/1/ai_step", nil, &env))
		assert.False(t, env.NoAction)
		require.NotNil(t, env.GameState)
		require.NotNil(t, env.GameState.LastAction)
		assert.Equal(t, 1, env.GameState.LastAction.Player)
	})

	t.Run("unknown game", func(t *testing.T) {
		var state client.WireState
		assert.Equal(t, http.StatusBadRequest, h.call(alice, http.MethodGet, "/poker/game/42/state", nil, &state))
		assert.Equal(t, "Game not found", state.Error)

		env = client.Envelope{}
		assert.Equal(t, http.StatusNotFound, h.call(alice, http.MethodPost, "/poker/game/42/ai_step", nil, &env))
	})
}

func TestFailNext(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	h.create(alice, client.CreateRequest{AIPlayerCount: 1})

	h.srv.FailNext(EndpointState, http.StatusServiceUnavailable, 2)

	var state client.WireState
	assert.Equal(t, http.StatusServiceUnavailable, h.call(alice, http.MethodGet, "/poker/game/1/state", nil, &state))
	assert.Equal(t, http.StatusServiceUnavailable, h.call(alice, http.MethodGet, "/poker/game/1/state", nil, &state))
	assert.Equal(t, http.StatusOK, h.call(alice, http.MethodGet, "/poker/game/1/state", nil, &state))
	assert.Equal(t, 1, state.HandNumber)
}
