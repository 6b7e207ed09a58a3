package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/builtin"
	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/dispatch"
	"tooldeck/internal/infra/health"
	"tooldeck/internal/infra/instance"
	"tooldeck/internal/infra/telemetry"
	"tooldeck/internal/infra/typereg"
)

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) *telemetry.Metrics {
	return telemetry.NewMetrics(registry)
}

func NewCatalogStore() *catalog.Store {
	return catalog.NewStore()
}

func NewTypeRegistry(logger *zap.Logger) *typereg.Registry {
	registry := typereg.NewRegistry(logger)
	builtin.Register(registry, logger)
	return registry
}

func NewHealthTracker(logger *zap.Logger) *health.Tracker {
	return health.NewTracker(logger)
}

func NewInstanceCache(
	store *catalog.Store,
	types *typereg.Registry,
	tracker *health.Tracker,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *instance.Cache {
	return instance.NewCache(store, types, tracker, metrics, logger)
}

func NewDispatcher(
	store *catalog.Store,
	cache *instance.Cache,
	tracker *health.Tracker,
	runtime domain.RuntimeConfig,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(store, cache, tracker, runtime, metrics, logger)
}

func newEngineFromParts(
	store *catalog.Store,
	types *typereg.Registry,
	tracker *health.Tracker,
	cache *instance.Cache,
	dispatcher *dispatch.Dispatcher,
	runtime domain.RuntimeConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		Catalog:    store,
		Types:      types,
		Health:     tracker,
		Cache:      cache,
		Dispatcher: dispatcher,
		runtime:    runtime,
		logger:     logger.Named("engine"),
	}
}

// NewEngine hand-wires the core. The wire injector produces the same graph.
func NewEngine(runtime domain.RuntimeConfig, metrics *telemetry.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := NewCatalogStore()
	types := NewTypeRegistry(logger)
	tracker := NewHealthTracker(logger)
	cache := NewInstanceCache(store, types, tracker, metrics, logger)
	dispatcher := NewDispatcher(store, cache, tracker, runtime, metrics, logger)
	return newEngineFromParts(store, types, tracker, cache, dispatcher, runtime, logger)
}
