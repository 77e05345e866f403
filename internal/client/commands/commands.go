package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/pokerclient/internal/auth"
	"github.com/lox/pokerclient/internal/client"
	"github.com/lox/pokerclient/internal/session"
)

// GlobalFlags holds common configuration for all commands
type GlobalFlags struct {
	Config   string `short:"c" long:"config" default:"pokerclient.hcl" help:"Path to HCL configuration file"`
	Env      string `long:"env" default:".env" help:"Dotenv file overlaid on the config"`
	Server   string `short:"s" long:"server" help:"Server URL to connect to (overrides config)"`
	User     string `short:"u" long:"user" help:"Username to log in as (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	LogFile  string `long:"log-file" help:"Log file path (overrides config)"`
}

// App is a logged-in connection to the backend.
type App struct {
	Config  *client.ClientConfig
	Auth    *auth.Client
	Backend *client.Client
	User    *auth.Identity
	Logger  *log.Logger
}

// Setup logs in with the given configuration, logging to stderr.
func Setup(ctx context.Context, flags *GlobalFlags) (*App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return setupConfigured(ctx, cfg, os.Stderr)
}

// SetupWithFileLogging is Setup for commands that own the terminal. Logs go
// to the configured log file, truncated on each run.
func SetupWithFileLogging(ctx context.Context, flags *GlobalFlags) (*App, func(), error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, err
	}

	logFile, err := os.OpenFile(cfg.UI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	app, err := setupConfigured(ctx, cfg, logFile)
	if err != nil {
		_ = logFile.Close()
		return nil, nil, err
	}
	return app, func() { _ = logFile.Close() }, nil
}

func loadConfig(flags *GlobalFlags) (*client.ClientConfig, error) {
	cfg, err := client.LoadClientConfig(flags.Config)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.LoadEnv(flags.Env); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	if flags.Server != "" {
		cfg.Server.URL = flags.Server
	}
	if flags.User != "" {
		cfg.Player.Username = flags.User
	}
	if flags.LogLevel != "" {
		cfg.UI.LogLevel = flags.LogLevel
	}
	if flags.LogFile != "" {
		cfg.UI.LogFile = flags.LogFile
	}
	return cfg, nil
}

func setupConfigured(ctx context.Context, cfg *client.ClientConfig, logWriter io.Writer) (*App, error) {
	if cfg.Player.Username == "" {
		name, err := prompt(os.Stdin, os.Stdout, "Enter your username: ")
		if err != nil {
			return nil, err
		}
		cfg.Player.Username = name
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := NewLogger(logWriter, cfg.UI.LogLevel)

	authClient := auth.NewClient(cfg.Server.URL, auth.NewHTTPClient(cfg.RequestTimeout()))
	user, err := authClient.EnsureLogin(ctx, cfg.Player.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to log in as %s: %w", cfg.Player.Username, err)
	}
	logger.Info("Logged in", "server", cfg.Server.URL, "user", user.Username, "id", user.ID)

	backend := client.New(client.Options{
		BaseURL:   cfg.Server.URL,
		APIPrefix: cfg.Server.APIPrefix,
		Timeout:   cfg.RequestTimeout(),
		RateLimit: cfg.Server.RateLimitPerSec,
		RateBurst: cfg.Server.RateBurst,
		Auth:      authClient,
		Logger:    logger,
	})

	return &App{Config: cfg, Auth: authClient, Backend: backend, User: user, Logger: logger}, nil
}

// NewLogger creates a logger at the named level, defaulting to warn.
func NewLogger(w io.Writer, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{ReportTimestamp: true})
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}

func prompt(r io.Reader, w io.Writer, question string) (string, error) {
	_, _ = fmt.Fprint(w, question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("username is required")
	}
	name := strings.TrimSpace(line)
	if name == "" {
		return "", fmt.Errorf("username is required")
	}
	return name, nil
}

// NewSession creates a session for gameID configured from app.
func (app *App) NewSession(gameID int, clock quartz.Clock) *session.Session {
	return session.New(session.Config{
		GameID:       gameID,
		AIDelay:      app.Config.AIDelay(),
		PollInterval: app.Config.PollInterval(),
		RaiseCode:    session.ActionCode(app.Config.Session.RaiseAction),
		DefaultStep:  app.Config.Session.DefaultStep,
	}, app.Backend, clock, app.Logger)
}

// LatestPlaying returns the most recent game still in play.
func (app *App) LatestPlaying(ctx context.Context) (int, error) {
	games, err := app.Backend.RecentGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recent games: %w", err)
	}
	for _, g := range games {
		if g.Status == "playing" {
			return g.ID, nil
		}
	}
	return 0, fmt.Errorf("no game in play, create one with `pokerclient create`")
}
