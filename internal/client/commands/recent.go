package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lox/pokerclient/internal/client"
)

// RecentCommand lists your latest games
type RecentCommand struct{}

func (cmd *RecentCommand) Run(flags *GlobalFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Setup(ctx, flags)
	if err != nil {
		return err
	}

	games, err := app.Backend.RecentGames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recent games: %w", err)
	}
	printRecent(os.Stdout, games)
	return nil
}

var statusStyles = map[string]lipgloss.Style{
	"playing":  lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
	"waiting":  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFEAA7")),
	"finished": lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")),
}

func printRecent(w io.Writer, games []client.GameSummary) {
	if len(games) == 0 {
		_, _ = fmt.Fprintln(w, "No games yet")
		return
	}

	rows := make([][]string, 0, len(games))
	for _, g := range games {
		rows = append(rows, []string{
			strconv.Itoa(g.ID),
			g.Status,
			fmt.Sprintf("%d/%d", g.SmallBlind, g.BigBlind),
			g.AIDifficulty,
			g.CreatedAt,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))).
		Headers("ID", "STATUS", "BLINDS", "AI", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			if col == 1 && row >= 0 && row < len(rows) {
				if s, ok := statusStyles[rows[row][1]]; ok {
					return s.Padding(0, 1)
				}
			}
			return style
		})

	_, _ = fmt.Fprintln(w, t.Render())
}
