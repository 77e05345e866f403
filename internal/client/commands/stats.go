package commands

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/coder/quartz"

	"github.com/lox/pokerclient/internal/history"
	"github.com/lox/pokerclient/internal/statistics"
)

// StatsCommand summarizes the recorded hands of a game
type StatsCommand struct {
	Game   int    `arg:"" help:"Game id"`
	Player string `long:"player" help:"Player to summarize (defaults to your username)"`
}

func (cmd *StatsCommand) Run(flags *GlobalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := NewLogger(os.Stderr, cfg.UI.LogLevel)

	player := nonZero(cmd.Player, cfg.Player.Username)
	if player == "" {
		return fmt.Errorf("no player given, pass --player or --user")
	}

	rec := history.NewRecorder(cfg.UI.HistoryDir, quartz.NewReal(), logger)
	game, err := rec.Load(cmd.Game)
	if err != nil {
		return fmt.Errorf("failed to load history for game %d: %w", cmd.Game, err)
	}
	if len(game.Hands) == 0 {
		return fmt.Errorf("no hands recorded for game %d in %s", cmd.Game, cfg.UI.HistoryDir)
	}

	stats := statistics.FromGame(game, player)
	if err := stats.Validate(); err != nil {
		return err
	}
	printStats(os.Stdout, game, stats)
	return nil
}

func printStats(w io.Writer, game *history.Game, s *statistics.Statistics) {
	_, _ = fmt.Fprintf(w, "Game %d · %s · %d of %d hands\n", game.GameID, s.Player, s.Hands, len(game.Hands))
	if s.Hands == 0 {
		return
	}

	lo, hi := s.ConfidenceInterval95()
	_, _ = fmt.Fprintf(w, "  net          %+.1f bb\n", s.SumBB)
	_, _ = fmt.Fprintf(w, "  win rate     %+.1f bb/100 (95%% CI %+.1f to %+.1f)\n", s.BB100(), lo*100, hi*100)
	_, _ = fmt.Fprintf(w, "  median       %+.2f bb, p10 %+.2f, p90 %+.2f\n", s.Median(), s.Percentile(0.1), s.Percentile(0.9))
	_, _ = fmt.Fprintf(w, "  showdown     %d won, %+.1f bb\n", s.ShowdownWins, s.ShowdownBB)
	_, _ = fmt.Fprintf(w, "  no showdown  %d won, %+.1f bb\n", s.NonShowdownWins, s.NonShowdownBB)
	_, _ = fmt.Fprintf(w, "  biggest pot  %.1f bb, %d pots over %d bb (%+.1f bb)\n", s.MaxPotBB, s.BigPots, statistics.BigPotBB, s.BigPotsBB)

	positions := make([]int, 0, len(s.Seats))
	for pos := range s.Seats {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		_, _ = fmt.Fprintf(w, "  seat %d       %d hands, %+.2f bb/hand\n", pos, s.Seats[pos].Hands, s.SeatMean(pos))
	}
}
