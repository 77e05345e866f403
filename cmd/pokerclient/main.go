package main

import (
	"github.com/alecthomas/kong"

	"github.com/lox/pokerclient/internal/client/commands"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	commands.GlobalFlags

	Version   kong.VersionFlag          `short:"v" help:"Show version"`
	Play      commands.PlayCommand      `cmd:"" help:"Play a game in the terminal"`
	Watch     commands.WatchCommand     `cmd:"" help:"Follow a game and log what happens"`
	Create    commands.CreateCommand    `cmd:"" help:"Create a new game"`
	Recent    commands.RecentCommand    `cmd:"" help:"List your recent games"`
	NewHand   commands.NewHandCommand   `cmd:"new-hand" help:"Deal the next hand of a game"`
	Stats     commands.StatsCommand     `cmd:"" help:"Summarize your recorded hands in a game"`
	ServeFake commands.ServeFakeCommand `cmd:"serve-fake" help:"Serve an in-memory backend for offline play"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pokerclient"),
		kong.Description("Terminal client for the poker game backend"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.GlobalFlags)
	ctx.FatalIfErrorf(err)
}
