package gateway

import (
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/validate"
)

// toolRegistry keeps the MCP server's advertised tool list in step with the
// catalog, adding new tools and removing dropped ones on resync.
type toolRegistry struct {
	server     *mcp.Server
	handler    func(name string) mcp.ToolHandler
	logger     *zap.Logger
	mu         sync.Mutex
	registered map[string]struct{}
}

func newToolRegistry(server *mcp.Server, handler func(name string) mcp.ToolHandler, logger *zap.Logger) *toolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &toolRegistry{
		server:     server,
		handler:    handler,
		logger:     logger.Named("tool_registry"),
		registered: make(map[string]struct{}),
	}
}

func (r *toolRegistry) Sync(specs []domain.ToolSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		tool := specToMCP(spec)
		r.server.AddTool(&tool, r.handler(spec.Name))
		next[spec.Name] = struct{}{}
	}

	var remove []string
	for name := range r.registered {
		if _, ok := next[name]; !ok {
			remove = append(remove, name)
		}
	}
	if len(remove) > 0 {
		r.logger.Info("removing tools dropped from catalog", zap.Strings("tools", remove))
		r.server.RemoveTools(remove...)
	}

	r.registered = next
}

func specToMCP(spec domain.ToolSpec) mcp.Tool {
	return mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: validate.CompileSchema(spec.Params),
	}
}
