package commands

import (
	"context"
	"fmt"
)

// NewHandCommand deals the next hand of a game
type NewHandCommand struct {
	Game int `arg:"" help:"Game id"`
}

func (cmd *NewHandCommand) Run(flags *GlobalFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Setup(ctx, flags)
	if err != nil {
		return err
	}

	state, err := app.Backend.NewHand(ctx, cmd.Game)
	if err != nil {
		return fmt.Errorf("failed to deal game %d: %w", cmd.Game, err)
	}
	fmt.Printf("Dealt hand #%d in game %d, %s to act\n", state.HandNumber, cmd.Game, playerName(state, state.CurrentPlayerIndex))
	return nil
}
