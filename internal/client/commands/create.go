package commands

import (
	"context"
	"fmt"

	"github.com/lox/pokerclient/internal/auth"
	"github.com/lox/pokerclient/internal/client"
)

// CreateCommand starts a new game
type CreateCommand struct {
	Difficulty  string `long:"difficulty" help:"AI difficulty (easy, medium, hard)"`
	SmallBlind  int    `long:"small-blind" help:"Small blind"`
	BigBlind    int    `long:"big-blind" help:"Big blind"`
	BuyIn       int    `long:"buy-in" help:"Starting chips per seat"`
	Bots        int    `long:"bots" help:"Number of AI players"`
	WithPartner string `long:"with-partner" help:"Seat a second human player by username"`
	Play        bool   `long:"play" help:"Open the new game straight away"`
	NoColor     bool   `long:"no-color" help:"Render without color"`
}

func (cmd *CreateCommand) Run(flags *GlobalFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var app *App
	if cmd.Play {
		a, cleanup, err := SetupWithFileLogging(ctx, flags)
		if err != nil {
			return err
		}
		defer cleanup()
		app = a
	} else {
		a, err := Setup(ctx, flags)
		if err != nil {
			return err
		}
		app = a
	}

	req, err := cmd.request(ctx, app)
	if err != nil {
		return err
	}

	id, err := app.Backend.CreateGame(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	app.Logger.Info("Created game", "game", id, "bots", req.AIPlayerCount, "difficulty", req.AIDifficulty)

	if !cmd.Play {
		fmt.Printf("Created game %d (%d AI players, %s, blinds %d/%d)\n",
			id, req.AIPlayerCount, req.AIDifficulty, req.SmallBlind, req.BigBlind)
		return nil
	}
	return playGame(ctx, app, id, cmd.NoColor)
}

// request fills the create request from flags, then the server's defaults,
// then the config file.
func (cmd *CreateCommand) request(ctx context.Context, app *App) (client.CreateRequest, error) {
	table := app.Config.Table
	req := client.CreateRequest{
		AIDifficulty:  table.AIDifficulty,
		SmallBlind:    table.SmallBlind,
		BigBlind:      table.BigBlind,
		BuyIn:         table.BuyIn,
		AIPlayerCount: table.AIPlayerCount,
	}

	if defaults, err := app.Backend.TableDefaults(ctx); err != nil {
		app.Logger.Warn("Using configured table defaults", "error", err)
	} else {
		req.AIDifficulty = nonZero(defaults.AIDifficulty, req.AIDifficulty)
		req.SmallBlind = nonZero(defaults.SmallBlind, req.SmallBlind)
		req.BigBlind = nonZero(defaults.BigBlind, req.BigBlind)
		req.BuyIn = nonZero(defaults.BuyIn, req.BuyIn)
		req.AIPlayerCount = nonZero(defaults.AIPlayerCount, req.AIPlayerCount)
	}

	req.AIDifficulty = nonZero(cmd.Difficulty, req.AIDifficulty)
	req.SmallBlind = nonZero(cmd.SmallBlind, req.SmallBlind)
	req.BigBlind = nonZero(cmd.BigBlind, req.BigBlind)
	req.BuyIn = nonZero(cmd.BuyIn, req.BuyIn)
	req.AIPlayerCount = nonZero(cmd.Bots, req.AIPlayerCount)

	partner := nonZero(cmd.WithPartner, app.Config.Player.Partner)
	if partner == "" {
		return req, nil
	}

	users, err := app.Auth.Users(ctx)
	if err != nil {
		return req, fmt.Errorf("failed to list users: %w", err)
	}
	id, err := findUser(users, partner, app.User.ID)
	if err != nil {
		return req, err
	}
	req.SecondUserID = &id
	if cmd.Bots == 0 && req.AIPlayerCount > 1 {
		req.AIPlayerCount--
	}
	return req, nil
}

func findUser(users []auth.Identity, username string, self int) (int, error) {
	for _, u := range users {
		if u.Username == username {
			if u.ID == self {
				return 0, fmt.Errorf("cannot partner with yourself")
			}
			return u.ID, nil
		}
	}
	return 0, fmt.Errorf("no user named %q", username)
}

func nonZero[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
