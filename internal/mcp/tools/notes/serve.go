package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/oltiss/mattermost-bot/internal/mcp"
)

// shutdownTimeout bounds the graceful HTTP shutdown once ctx is done.
const shutdownTimeout = 5 * time.Second

// Serve runs srv over transport until ctx is cancelled. addr is the listen
// address for the HTTP based transports and is ignored for stdio.
func Serve(ctx context.Context, srv *mcpsdk.Server, transport mcp.Transport, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler
	switch transport {
	case mcp.TransportStdio, "":
		logger.Info("notes: serving on stdio")
		if err := srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("notes: stdio: %w", err)
		}
		return nil
	case mcp.TransportStreamableHTTP:
		handler = mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
	case mcp.TransportSSE:
		handler = mcpsdk.NewSSEHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
	default:
		return fmt.Errorf("notes: unsupported transport %q", transport)
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("notes: serving", slog.String("transport", string(transport)), slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("notes: listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
