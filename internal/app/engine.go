package app

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/dispatch"
	"tooldeck/internal/infra/health"
	"tooldeck/internal/infra/instance"
	"tooldeck/internal/infra/typereg"
)

// Engine bundles the core components behind one constructed object: no
// module-level singletons, so tests and embedders build as many independent
// engines as they need.
type Engine struct {
	Catalog    *catalog.Store
	Types      *typereg.Registry
	Health     *health.Tracker
	Cache      *instance.Cache
	Dispatcher *dispatch.Dispatcher

	runtime domain.RuntimeConfig
	logger  *zap.Logger
}

// Call dispatches one request.
func (e *Engine) Call(ctx context.Context, req domain.CallRequest) domain.CallResult {
	return e.Dispatcher.Call(ctx, req)
}

// CallBatch dispatches requests in input order, isolating failures.
func (e *Engine) CallBatch(ctx context.Context, reqs []domain.CallRequest) []domain.CallResult {
	return e.Dispatcher.CallBatch(ctx, reqs)
}

// ApplyCatalog swaps in a reloaded tool list. Cached instances for removed
// or redefined tools are dropped; health records survive the swap because
// catalog membership and runtime health are independent.
func (e *Engine) ApplyCatalog(specs []domain.ToolSpec) error {
	previous := make(map[string]domain.ToolSpec, e.Catalog.Len())
	for _, spec := range e.Catalog.List(catalog.Filter{}) {
		previous[spec.Name] = spec
	}

	if err := e.Catalog.Load(specs, domain.LoadReplace); err != nil {
		return err
	}

	e.Cache.Retain(func(name string) bool {
		current, ok := e.Catalog.Lookup(name)
		if !ok {
			return false
		}
		prior, had := previous[name]
		return had && specEqual(prior, current)
	})

	e.logger.Info("catalog applied", zap.Int("tools", e.Catalog.Len()))
	return nil
}

func specEqual(a, b domain.ToolSpec) bool {
	if a.Name != b.Name || a.Type != b.Type || a.Serial != b.Serial ||
		a.TimeoutSeconds != b.TimeoutSeconds {
		return false
	}
	return reflect.DeepEqual(a.Settings, b.Settings)
}
