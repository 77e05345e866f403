package commands

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokerclient/internal/auth"
	"github.com/lox/pokerclient/internal/client"
	"github.com/lox/pokerclient/internal/fakeserver"
	"github.com/lox/pokerclient/internal/history"
	"github.com/lox/pokerclient/internal/session"
	"github.com/lox/pokerclient/internal/statistics"
)

func setupApp(t *testing.T, ctx context.Context, user string) (*App, *fakeserver.Server) {
	t.Helper()
	fake := fakeserver.New(fakeserver.Options{
		Users:  []string{"alice", "bob"},
		Seed:   5,
		Logger: log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel}),
	})
	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)

	dir := t.TempDir()
	flags := &GlobalFlags{
		Config:   filepath.Join(dir, "missing.hcl"),
		Env:      filepath.Join(dir, "missing.env"),
		Server:   server.URL,
		User:     user,
		LogLevel: "error",
	}
	app, err := Setup(ctx, flags)
	require.NoError(t, err)
	app.Logger.SetOutput(io.Discard)
	app.Config.UI.HistoryDir = filepath.Join(dir, "history")
	return app, fake
}

func TestSetup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app, _ := setupApp(t, ctx, "alice")
	assert.Equal(t, "alice", app.User.Username)
	assert.Equal(t, 1, app.User.ID)

	t.Run("unknown user fails", func(t *testing.T) {
		_, err := Setup(ctx, &GlobalFlags{
			Config: filepath.Join(t.TempDir(), "missing.hcl"),
			Server: app.Config.Server.URL,
			User:   "mallory",
		})
		assert.Error(t, err)
	})

	t.Run("no game in play", func(t *testing.T) {
		_, err := app.LatestPlaying(ctx)
		assert.Error(t, err)
	})
}

func TestCreateRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app, _ := setupApp(t, ctx, "alice")

	t.Run("server defaults fill omitted flags", func(t *testing.T) {
		req, err := (&CreateCommand{BigBlind: 50}).request(ctx, app)
		require.NoError(t, err)
		assert.Equal(t, "medium", req.AIDifficulty)
		assert.Equal(t, 10, req.SmallBlind)
		assert.Equal(t, 50, req.BigBlind)
		assert.Equal(t, 6, req.AIPlayerCount)
		assert.Nil(t, req.SecondUserID)
	})

	t.Run("partner takes an AI seat", func(t *testing.T) {
		req, err := (&CreateCommand{WithPartner: "bob"}).request(ctx, app)
		require.NoError(t, err)
		require.NotNil(t, req.SecondUserID)
		assert.Equal(t, 2, *req.SecondUserID)
		assert.Equal(t, 5, req.AIPlayerCount)
	})

	t.Run("partner errors", func(t *testing.T) {
		_, err := (&CreateCommand{WithPartner: "alice"}).request(ctx, app)
		assert.ErrorContains(t, err, "yourself")

		_, err = (&CreateCommand{WithPartner: "zed"}).request(ctx, app)
		assert.ErrorContains(t, err, "no user")
	})

	t.Run("latest playing game", func(t *testing.T) {
		first, err := app.Backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1})
		require.NoError(t, err)
		second, err := app.Backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1})
		require.NoError(t, err)
		require.NotEqual(t, first, second)

		id, err := app.LatestPlaying(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, id)
	})
}

func TestFindUser(t *testing.T) {
	users := []auth.Identity{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}

	id, err := findUser(users, "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	_, err = findUser(users, "alice", 1)
	assert.Error(t, err)
}

func TestPrintRecent(t *testing.T) {
	var buf bytes.Buffer
	printRecent(&buf, nil)
	assert.Equal(t, "No games yet\n", buf.String())

	buf.Reset()
	printRecent(&buf, []client.GameSummary{
		{ID: 12, Status: "playing", SmallBlind: 10, BigBlind: 20, AIDifficulty: "hard"},
		{ID: 3, Status: "finished", SmallBlind: 5, BigBlind: 10, AIDifficulty: "easy"},
	})
	out := buf.String()
	for _, want := range []string{"ID", "STATUS", "12", "playing", "10/20", "finished", "easy"} {
		assert.Contains(t, out, want)
	}
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	name, err := prompt(strings.NewReader("  dora \n"), &out, "Enter your username: ")
	require.NoError(t, err)
	assert.Equal(t, "dora", name)
	assert.Equal(t, "Enter your username: ", out.String())

	_, err = prompt(strings.NewReader("\n"), &out, "? ")
	assert.Error(t, err)
}

func TestWatcher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app, _ := setupApp(t, ctx, "alice")
	id, err := app.Backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1})
	require.NoError(t, err)

	clock := quartz.NewMock(t)
	s := app.NewSession(id, clock)
	t.Cleanup(s.Close)
	require.NoError(t, s.Start(ctx))

	var out bytes.Buffer
	w := &watcher{out: &out, logger: app.Logger, deal: true}

	w.update(ctx, s)
	assert.Contains(t, out.String(), "--- hand #1")
	assert.Contains(t, out.String(), "your turn:")
	assert.Equal(t, session.PhaseAwaitingHuman, w.phase)

	require.NoError(t, s.Act(ctx, 0, nil))
	w.update(ctx, s)
	assert.Contains(t, out.String(), "alice: fold")
	assert.Contains(t, out.String(), "bot-1 wins")

	// deal is on, so the watcher started the next hand
	require.NotNil(t, s.Store().Current())
	assert.Equal(t, 2, s.Store().Current().HandNumber)
}

func TestPrintStats(t *testing.T) {
	seats := []history.Seat{{Position: 0, Name: "alice"}, {Position: 1, Name: "bot-1"}}
	game := &history.Game{GameID: 9, Hands: []history.Hand{
		{Number: 1, BigBlind: 20, PotWon: 40, Payoffs: []int{20, -20}, Seats: seats},
		{Number: 2, BigBlind: 20, PotWon: 40, Payoffs: []int{-20, 20}, Seats: seats},
	}}

	var buf bytes.Buffer
	printStats(&buf, game, statistics.FromGame(game, "alice"))
	out := buf.String()
	assert.Contains(t, out, "Game 9 · alice · 2 of 2 hands")
	assert.Contains(t, out, "net          +0.0 bb")
	assert.Contains(t, out, "seat 0       2 hands")
}
