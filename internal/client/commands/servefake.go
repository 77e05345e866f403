package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/lox/pokerclient/internal/fakeserver"
)

// ServeFakeCommand serves an in-memory backend for offline play
type ServeFakeCommand struct {
	Addr  string   `long:"addr" default:":5000" help:"Address to listen on"`
	Users []string `long:"users" default:"alice,bob" help:"Usernames that may log in"`
	Seed  *int64   `long:"seed" help:"Deterministic dealing seed (optional)"`
}

func (cmd *ServeFakeCommand) Run(flags *GlobalFlags) error {
	level := flags.LogLevel
	if level == "" {
		level = "info"
	}
	logger := NewLogger(os.Stderr, level)

	seed := time.Now().UnixNano()
	if cmd.Seed != nil {
		seed = *cmd.Seed
	}
	logger.Info("Using seed", "seed", seed)

	fake := fakeserver.New(fakeserver.Options{
		Users:  cmd.Users,
		Seed:   seed,
		Logger: logger,
	})
	srv := &http.Server{
		Addr:              cmd.Addr,
		Handler:           fake.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := SetupSignalHandler(context.Background(), logger)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	logger.Info("Serving fake backend", "address", cmd.Addr, "users", cmd.Users)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
