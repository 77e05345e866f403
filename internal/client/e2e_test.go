package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
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
)

const aiDelay = 2 * time.Second

type world struct {
	fake    *fakeserver.Server
	backend *client.Client
	auth    *auth.Client
	logger  *log.Logger
}

func newWorld(t *testing.T, ctx context.Context, username string) *world {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})

	fake := fakeserver.New(fakeserver.Options{
		Users:  []string{"alice", "bob"},
		Seed:   21,
		Logger: logger,
	})
	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)

	authClient := auth.NewClient(server.URL, auth.NewHTTPClient(time.Second))
	_, err := authClient.Login(ctx, username)
	require.NoError(t, err)

	backend := client.New(client.Options{
		BaseURL: server.URL,
		Timeout: time.Second,
		Auth:    authClient,
		Logger:  logger,
	})
	return &world{fake: fake, backend: backend, auth: authClient, logger: logger}
}

func (w *world) session(t *testing.T, gameID int) (*session.Session, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	s := session.New(session.Config{
		GameID:      gameID,
		AIDelay:     aiDelay,
		RaiseCode:   fakeserver.ActRaiseTo,
		DefaultStep: 10,
	}, w.backend, clock, w.logger)
	t.Cleanup(s.Close)
	return s, clock
}

func TestPlayAgainstFakeServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := newWorld(t, ctx, "alice")

	id, err := w.backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 2})
	require.NoError(t, err)

	s, clock := w.session(t, id)
	rec := history.NewRecorder(t.TempDir(), clock, w.logger)
	s.Store().Subscribe(rec.Observe)

	require.NoError(t, s.Start(ctx))
	state := s.Store().Current()
	require.NotNil(t, state)
	require.NotNil(t, state.MyPosition)
	assert.Equal(t, 0, *state.MyPosition)
	assert.Len(t, state.Players, 3)

	finished := 0
	for i := 0; i < 500; i++ {
		view := s.View()
		if view.GameOver || view.State.HandNumber > 4 {
			break
		}
		require.Nil(t, view.Notice, "unexpected notice at step %d", i)

		switch view.Phase {
		case session.PhaseAwaitingHuman:
			require.True(t, view.IsMyTurn)
			require.NoError(t, s.Act(ctx, fakeserver.ActCheckCall, nil))
		case session.PhaseAIArmed:
			clock.Advance(aiDelay).MustWait(ctx)
		case session.PhaseHandOver:
			finished++
			require.NoError(t, s.NewHand(ctx))
		default:
			t.Fatalf("unexpected phase %s at step %d", view.Phase, i)
		}
	}

	assert.Positive(t, finished)
	assert.Positive(t, s.Scheduler().AISteps())

	game, err := rec.Load(id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(game.Hands), finished)
	for i, hand := range game.Hands {
		assert.Equal(t, i+1, hand.Number)
		assert.Len(t, hand.Seats, 3)
	}
}

func TestHeadsUpAgainstFakeServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := newWorld(t, ctx, "alice")
	id, err := w.backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1})
	require.NoError(t, err)

	s, clock := w.session(t, id)
	require.NoError(t, s.Start(ctx))

	// the AI seat is first to act on every street after the flop, so its
	// turn key repeats within a hand
	finished := 0
	for i := 0; i < 500; i++ {
		view := s.View()
		if view.GameOver || view.State.HandNumber > 3 {
			break
		}
		require.Nil(t, view.Notice, "unexpected notice at step %d", i)

		switch view.Phase {
		case session.PhaseAwaitingHuman:
			require.NoError(t, s.Act(ctx, fakeserver.ActCheckCall, nil))
		case session.PhaseAIArmed:
			clock.Advance(aiDelay).MustWait(ctx)
		case session.PhaseHandOver:
			finished++
			require.NoError(t, s.NewHand(ctx))
		default:
			t.Fatalf("unexpected phase %s at step %d in round %s", view.Phase, i, view.State.Round)
		}
	}

	assert.Positive(t, finished)
	assert.GreaterOrEqual(t, s.Scheduler().AISteps(), finished)
}

func TestRaiseAgainstFakeServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := newWorld(t, ctx, "alice")
	id, err := w.backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1})
	require.NoError(t, err)

	s, _ := w.session(t, id)
	require.NoError(t, s.Start(ctx))

	view := s.View()
	require.True(t, view.IsMyTurn, "heads up the button acts first")
	assert.Equal(t, 40, view.RaiseMin)
	assert.Equal(t, 1000, view.RaiseMax)

	off := 45
	err = s.Act(ctx, fakeserver.ActRaiseTo, &off)
	assert.ErrorIs(t, err, session.ErrInvalidAmount)

	amount := 60
	require.NoError(t, s.Act(ctx, fakeserver.ActRaiseTo, &amount))

	state := s.Store().Current()
	me, ok := state.Me()
	require.True(t, ok)
	assert.Equal(t, 60, me.CurrentBet)
	require.NotNil(t, state.LastAction)
	assert.Equal(t, "raise to 60", state.LastAction.Label)
	assert.Equal(t, session.PhaseAIArmed, s.View().Phase)
}

func TestTransientFailuresRecover(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := newWorld(t, ctx, "alice")
	id, err := w.backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1})
	require.NoError(t, err)

	s, _ := w.session(t, id)
	require.NoError(t, s.Start(ctx))

	w.fake.FailNext(fakeserver.EndpointAction, http.StatusBadGateway, 1)
	err = s.Act(ctx, fakeserver.ActCheckCall, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrTransient))
	require.NotNil(t, s.Notice())
	assert.Equal(t, session.NoticeTransient, s.Notice().Kind)
	assert.True(t, s.View().IsMyTurn, "the turn is still ours")

	require.NoError(t, s.Act(ctx, fakeserver.ActCheckCall, nil))
	assert.Nil(t, s.Notice())
}

func TestServerRejectionRefetches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := newWorld(t, ctx, "alice")
	id, err := w.backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1})
	require.NoError(t, err)

	s, _ := w.session(t, id)
	require.NoError(t, s.Start(ctx))

	// the held snapshot still offers the action the server no longer accepts
	_, err = w.backend.SubmitAction(ctx, id, fakeserver.ActFold, nil)
	require.NoError(t, err)

	err = s.Act(ctx, fakeserver.ActCheckCall, nil)
	var rejection *session.RejectionError
	require.True(t, errors.As(err, &rejection), "got %v", err)
	assert.Equal(t, session.NoticeServerRejection, s.Notice().Kind)

	state := s.Store().Current()
	assert.True(t, state.IsHandOver, "rejection refetches the real state")
	assert.Equal(t, session.PhaseHandOver, s.View().Phase)
}

func TestUnknownGameEndsSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := newWorld(t, ctx, "alice")
	s, _ := w.session(t, 404)

	err := s.Start(ctx)
	assert.ErrorIs(t, err, session.ErrInvalidSession)
	assert.True(t, s.View().Closed)
	assert.ErrorIs(t, s.Wait(ctx), session.ErrInvalidSession)
}

func TestPartnerSharesTable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := newWorld(t, ctx, "alice")
	users, err := w.auth.Users(ctx)
	require.NoError(t, err)

	var partner int
	for _, u := range users {
		if u.Username == "bob" {
			partner = u.ID
		}
	}
	require.NotZero(t, partner)

	id, err := w.backend.CreateGame(ctx, client.CreateRequest{AIPlayerCount: 1, SecondUserID: &partner})
	require.NoError(t, err)

	recent, err := w.backend.RecentGames(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].ID)

	state, err := w.backend.FetchState(ctx, id)
	require.NoError(t, err)
	require.Len(t, state.Players, 3)
	assert.False(t, state.Players[1].IsAI)
	assert.Equal(t, "bob", state.Players[1].Name)
}
