// Package gateway exposes the engine over the Model Context Protocol. It is
// a thin protocol shell: discovery reads the catalog, calls go through the
// dispatcher, diagnostics read the health tracker. It never reaches into the
// instance cache or type registry directly.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/dispatch"
	"tooldeck/internal/infra/health"
)

const healthToolName = "tooldeck.health"

type Gateway struct {
	catalog    *catalog.Store
	dispatcher *dispatch.Dispatcher
	health     *health.Tracker
	logger     *zap.Logger
	version    string

	server   *mcp.Server
	registry *toolRegistry
}

func NewGateway(cat *catalog.Store, d *dispatch.Dispatcher, tracker *health.Tracker, version string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		catalog:    cat,
		dispatcher: d,
		health:     tracker,
		logger:     logger.Named("gateway"),
		version:    version,
	}
}

// Run serves MCP over stdio until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	g.server = mcp.NewServer(&mcp.Implementation{
		Name:    "tooldeck",
		Version: g.version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	g.registry = newToolRegistry(g.server, g.toolHandler, g.logger)
	g.registry.Sync(g.catalog.List(catalog.Filter{}))
	g.registerHealthTool()

	g.logger.Info("gateway serving over stdio", zap.Int("tools", g.catalog.Len()))
	return g.server.Run(ctx, &mcp.StdioTransport{})
}

// Resync re-advertises the tool list after a catalog reload.
func (g *Gateway) Resync() {
	if g.registry == nil {
		return
	}
	g.registry.Sync(g.catalog.List(catalog.Filter{}))
}

func (g *Gateway) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if raw := json.RawMessage(req.Params.Arguments); len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult(domain.E(domain.ErrValidation, "gateway.call",
					"arguments must be a JSON object", err)), nil
			}
		}

		result := g.dispatcher.Call(ctx, domain.CallRequest{Tool: name, Args: args})
		if result.Err != nil {
			return errorResult(result.Err), nil
		}
		return successResult(result.Value)
	}
}

func (g *Gateway) registerHealthTool() {
	g.server.AddTool(&mcp.Tool{
		Name:        healthToolName,
		Description: "Report tools that are currently unavailable, with their last error and occurrence count.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return successResult(map[string]any{
			"unhealthy": g.health.AllUnhealthy(),
		})
	})
}

func successResult(value any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return errorResult(domain.E(domain.ErrInternal, "gateway.call", "encode result", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil
}

// errorResult renders a structured engine error as an MCP tool error so the
// client sees kind, message and the actionable hint when there is one.
func errorResult(err *domain.Error) *mcp.CallToolResult {
	text := err.Error()
	if err.Hint != "" {
		text = fmt.Sprintf("%s (hint: %s)", text, err.Hint)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
