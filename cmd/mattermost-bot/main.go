// Command mattermost-bot answers Mattermost slash commands with a language
// model that can call MCP tools or query a PostgreSQL database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/oltiss/mattermost-bot/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "mattermost-bot: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.yaml",
		Usage:   "path to the YAML configuration file",
		Sources: cli.EnvVars("MATTERMOST_BOT_CONFIG"),
	}

	return &cli.Command{
		Name:    "mattermost-bot",
		Usage:   "answer Mattermost slash commands with an LLM, MCP tools and SQL",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the webhook server",
				Flags:  []cli.Flag{configFlag},
				Action: serve,
			},
			{
				Name:      "ask",
				Usage:     "answer one question with the configured engine and exit",
				ArgsUsage: "QUESTION...",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "engine", Aliases: []string{"e"}, Usage: "override the configured engine (tools or database)"},
				},
				Action: ask,
			},
			{
				Name:  "notes-server",
				Usage: "run the built-in notes MCP server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Aliases: []string{"t"}, Value: "stdio", Usage: "stdio, http or sse"},
					&cli.StringFlag{Name: "addr", Value: ":8000", Usage: "listen address for http and sse"},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "persist notes to this file (one per line)"},
					&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
				},
				Action: notesServer,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the configuration, then print a summary",
				Flags:  []cli.Flag{configFlag},
				Action: checkConfig,
			},
		},
	}
}

// loadConfig loads the file named by the config flag and installs the
// process logger it describes.
func loadConfig(c *cli.Command) (*config.Config, *slog.Logger, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
		}
		return nil, nil, err
	}
	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	lvl := slogLevel(level)
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
