package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/pokerclient/internal/history"
	"github.com/lox/pokerclient/internal/session"
	"github.com/lox/pokerclient/internal/tui"
)

// PlayCommand opens a game in the terminal view
type PlayCommand struct {
	Game    int  `arg:"" optional:"" help:"Game id to play (defaults to your latest game in play)"`
	NoColor bool `long:"no-color" help:"Render without color"`
}

func (cmd *PlayCommand) Run(flags *GlobalFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, cleanup, err := SetupWithFileLogging(ctx, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	return playGame(ctx, app, cmd.Game, cmd.NoColor)
}

func playGame(ctx context.Context, app *App, gameID int, noColor bool) error {
	ctx, stop := SetupSignalHandler(ctx, app.Logger)
	defer stop()

	if noColor || app.Config.UI.NoColor {
		tui.DisableColor()
	}

	if gameID == 0 {
		id, err := app.LatestPlaying(ctx)
		if err != nil {
			return err
		}
		gameID = id
	}

	app.Logger.Info("Starting TUI", "server", app.Config.Server.URL, "user", app.User.Username, "game", gameID)

	title := fmt.Sprintf("Game %d · %s", gameID, app.User.Username)
	return runSession(ctx, app, gameID, func(ctx context.Context, s *session.Session) error {
		return tui.Run(ctx, s, title, app.Logger)
	})
}

// runSession drives a session for gameID until front returns or the
// session ends. Settled hands are recorded to the history directory.
func runSession(ctx context.Context, app *App, gameID int, front func(context.Context, *session.Session) error) error {
	clock := quartz.NewReal()
	s := app.NewSession(gameID, clock)
	defer s.Close()

	recorder := history.NewRecorder(app.Config.UI.HistoryDir, clock, app.Logger)
	s.Store().Subscribe(recorder.Observe)

	if err := s.Start(ctx); err != nil && !errors.Is(err, session.ErrTransient) {
		return fmt.Errorf("failed to open game %d: %w", gameID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Wait(gctx)
	})
	g.Go(func() error {
		defer s.Close()
		return front(gctx, s)
	})
	return g.Wait()
}
