package mcphost

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// inProcessServerName is the server name used for in-process servers when
// the config carries none.
const inProcessServerName = "in-process"

// WithInProcessServer makes every Dial connect to srv over an in-memory pipe
// instead of the configured transport. There is no subprocess or network
// round-trip, but the full MCP protocol still runs, so tools behave exactly
// as they would out of process.
func WithInProcessServer(srv *mcpsdk.Server) Option {
	return func(h *Host) {
		h.server = srv
		if h.cfg.Name == "" {
			h.cfg.Name = inProcessServerName
		}
	}
}

// dialInProcess connects a new server session and client session over a
// fresh in-memory pipe. Closing the client session ends both.
func (h *Host) dialInProcess(ctx context.Context) (*mcpsdk.ClientSession, error) {
	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ss, err := h.server.Connect(ctx, serverT, nil)
	if err != nil {
		return nil, fmt.Errorf("server side: %w", err)
	}
	cs, err := h.client.Connect(ctx, clientT, nil)
	if err != nil {
		_ = ss.Close()
		return nil, fmt.Errorf("client side: %w", err)
	}
	return cs, nil
}
