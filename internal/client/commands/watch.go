package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/lox/pokerclient/internal/deck"
	"github.com/lox/pokerclient/internal/session"
)

// WatchCommand follows a game without a terminal view
type WatchCommand struct {
	Game int  `arg:"" optional:"" help:"Game id to watch (defaults to your latest game in play)"`
	Deal bool `long:"deal" help:"Deal the next hand automatically when one ends"`
}

func (cmd *WatchCommand) Run(flags *GlobalFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Setup(ctx, flags)
	if err != nil {
		return err
	}

	ctx, stop := SetupSignalHandler(ctx, app.Logger)
	defer stop()

	gameID := cmd.Game
	if gameID == 0 {
		if gameID, err = app.LatestPlaying(ctx); err != nil {
			return err
		}
	}

	w := &watcher{out: os.Stdout, logger: app.Logger.WithPrefix("watch"), deal: cmd.Deal}
	return runSession(ctx, app, gameID, w.run)
}

type watcher struct {
	out    io.Writer
	logger *log.Logger
	deal   bool

	phase   session.Phase
	hand    int
	action  string
	settled int
}

func (w *watcher) run(ctx context.Context, s *session.Session) error {
	w.update(ctx, s)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			w.update(ctx, s)
			return nil
		case <-s.Changes():
			if done := w.update(ctx, s); done {
				return nil
			}
		}
	}
}

// update reports what changed since the last view. It returns true once
// the game is over.
func (w *watcher) update(ctx context.Context, s *session.Session) bool {
	v := s.View()

	if v.Exit != nil {
		w.logger.Error("Session ended", "error", v.Exit)
	}
	if v.Notice != nil {
		w.logger.Warn("Notice", "kind", v.Notice.Kind, "message", v.Notice.Message)
		s.DismissNotice()
	}

	state := v.State
	if state == nil {
		return false
	}

	if state.HandNumber != w.hand {
		w.hand = state.HandNumber
		_, _ = fmt.Fprintf(w.out, "--- hand #%d (dealer seat %d) ---\n", state.HandNumber, state.DealerPosition)
	}

	if la := state.LastAction; la != nil {
		key := fmt.Sprintf("%d/%d/%s/%d", state.HandNumber, la.Player, la.Label, state.Pot)
		if key != w.action {
			w.action = key
			_, _ = fmt.Fprintf(w.out, "%s: %s (pot %d)\n", playerName(state, la.Player), la.Label, state.Pot)
		}
	}

	if v.Phase != w.phase {
		w.logger.Info("Phase change", "from", w.phase, "to", v.Phase, "hand", state.HandNumber)
		w.phase = v.Phase
		if v.IsMyTurn {
			labels := make([]string, 0, len(v.Actions))
			for _, a := range v.Actions {
				labels = append(labels, a.Label)
			}
			_, _ = fmt.Fprintf(w.out, "your turn: %s\n", strings.Join(labels, ", "))
		}
	}

	if state.IsHandOver && state.WinnerInfo != nil && w.settled != state.HandNumber {
		w.settled = state.HandNumber
		win := state.WinnerInfo
		_, _ = fmt.Fprintf(w.out, "%s wins %d, board %s\n", win.WinnerName, win.PotWon, deck.FormatCards(state.PublicCards))
	}

	if v.GameOver {
		_, _ = fmt.Fprintln(w.out, "game over")
		return true
	}

	if w.deal && v.CanNewHand {
		if err := s.NewHand(ctx); err != nil {
			w.logger.Warn("Failed to deal", "error", err)
		}
	}
	return false
}

func playerName(s *session.GameState, pos int) string {
	if p, ok := s.PlayerAt(pos); ok {
		return p.Name
	}
	return fmt.Sprintf("seat %d", pos)
}
