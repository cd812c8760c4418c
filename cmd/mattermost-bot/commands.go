package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/oltiss/mattermost-bot/internal/app"
	"github.com/oltiss/mattermost-bot/internal/config"
	"github.com/oltiss/mattermost-bot/internal/mcp"
	"github.com/oltiss/mattermost-bot/internal/mcp/tools/notes"
)

func ask(ctx context.Context, c *cli.Command) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("ask: a question is required")
	}

	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	opts := []app.Option{app.WithLogger(logger)}
	if e := c.String("engine"); e != "" {
		kind := config.Engine(e)
		if !kind.IsValid() {
			return fmt.Errorf("ask: unknown engine %q; valid values: tools, database", e)
		}
		opts = append(opts, app.WithEngineKind(kind))
	}

	application, err := app.New(ctx, cfg, newRegistry(), opts...)
	if err != nil {
		return err
	}
	defer application.Shutdown(context.WithoutCancel(ctx))

	if cfg.Mattermost.WorkerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Mattermost.WorkerTimeout)
		defer cancel()
	}

	_, err = fmt.Fprintln(c.Root().Writer, application.Engine().Answer(ctx, question))
	return err
}

func checkConfig(_ context.Context, c *cli.Command) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	printStartupSummary(c.Root().Writer, cfg)
	return nil
}

func notesServer(ctx context.Context, c *cli.Command) error {
	// stdout carries the protocol in stdio mode, so logs go to stderr.
	logger := newLogger(config.LogLevel(c.String("log-level")), config.LogText)
	slog.SetDefault(logger)

	transport, err := notesTransport(c.String("transport"))
	if err != nil {
		return err
	}

	store := notes.NewMemoryStore()
	if path := c.String("file"); path != "" {
		if store, err = notes.OpenStore(path); err != nil {
			return err
		}
	}

	srv, err := notes.NewServer(store, version)
	if err != nil {
		return err
	}
	return notes.Serve(ctx, srv, transport, c.String("addr"), logger)
}

// notesTransport maps the notes-server flag value to a transport.
func notesTransport(s string) (mcp.Transport, error) {
	switch strings.ToLower(s) {
	case "", "stdio":
		return mcp.TransportStdio, nil
	case "http", "streamable-http":
		return mcp.TransportStreamableHTTP, nil
	case "sse":
		return mcp.TransportSSE, nil
	default:
		return "", fmt.Errorf("notes-server: unknown transport %q; valid values: stdio, http, sse", s)
	}
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	if w == nil {
		w = os.Stdout
	}
	row := func(label, value string) {
		fmt.Fprintf(w, "║  %-16s: %-30s ║\n", label, value)
	}

	fmt.Fprintln(w, "╔══════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║          mattermost-bot: startup summary         ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════╣")
	row("Engine", string(cfg.Engine))
	row("LLM", providerLabel(cfg.Providers.LLM))
	for i, fb := range cfg.Providers.LLMFallbacks {
		row(fmt.Sprintf("LLM fallback %d", i+1), providerLabel(fb))
	}
	switch cfg.Engine {
	case config.EngineTools:
		srv := cfg.MCP.Server
		target := srv.URL
		if srv.Transport == mcp.TransportStdio {
			target = srv.Command
		}
		row("MCP server", fmt.Sprintf("%s (%s)", srv.Name, srv.Transport))
		row("MCP target", target)
	case config.EngineDatabase:
		row("DB schema", cfg.Database.Schema)
		row("DB max rows", fmt.Sprint(cfg.Database.MaxRows))
	}
	token := "(not checked)"
	if cfg.Mattermost.Token != "" {
		token = "configured"
	}
	row("Webhook token", token)
	row("Listen addr", cfg.Server.ListenAddr)
	row("Metrics", fmt.Sprint(cfg.Observe.Metrics))
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	if e.Name == "" {
		return "(not configured)"
	}
	if e.Model == "" {
		return e.Name
	}
	return e.Name + " / " + e.Model
}
