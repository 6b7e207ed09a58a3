// Package app assembles the engine: it owns startup order, the catalog
// reload loop and graceful shutdown. Everything below it is a component;
// everything above it (cmd, gateway transport) is a shell.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/gateway"
	"tooldeck/internal/infra/health"
	"tooldeck/internal/infra/telemetry"
)

// ServeConfig carries everything Serve needs that does not live in the
// catalog file itself.
type ServeConfig struct {
	// CatalogPaths lists the catalog files, merged in order. Runtime
	// settings come from the first file.
	CatalogPaths []string
	// Version is advertised to MCP clients.
	Version string
}

// Application is the long-running daemon: engine plus gateway plus the
// observability endpoint.
type Application struct {
	logger *zap.Logger

	mu     sync.Mutex
	engine *Engine
}

func New(logger *zap.Logger) *Application {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{logger: logger}
}

// Serve loads the catalog, builds the engine and serves MCP over stdio
// until ctx is done. The observability server and the catalog watcher run
// alongside; a failed observability server tears the daemon down, a failed
// watcher does not.
func (a *Application) Serve(ctx context.Context, cfg ServeConfig) error {
	loader := catalog.NewLoader(a.logger)
	doc, err := loader.LoadAll(ctx, cfg.CatalogPaths)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	registry := NewMetricsRegistry()
	metrics := NewMetrics(registry)
	engine := NewEngine(doc.Runtime, metrics, a.logger)
	if err := engine.Catalog.Load(doc.Tools, domain.LoadMerge); err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}

	a.mu.Lock()
	a.engine = engine
	a.mu.Unlock()

	store, err := a.openHealthStore(doc.Runtime.HealthStorePath, engine)
	if err != nil {
		return err
	}
	if store != nil {
		defer a.closeHealthStore(store, engine)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gw := gateway.NewGateway(engine.Catalog, engine.Dispatcher, engine.Health, cfg.Version, a.logger)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
			Addr:          doc.Runtime.Observability.ListenAddress,
			EnableMetrics: doc.Runtime.Observability.EnableMetrics,
			Health:        engine.Health,
			Catalog:       engine.Catalog,
			Registry:      registry,
		}, a.logger)
		if err != nil {
			select {
			case errChan <- err:
			default:
			}
			cancel()
		}
	}()

	if doc.Runtime.WatchCatalog {
		for _, path := range cfg.CatalogPaths {
			watcher := catalog.NewWatcher(path, func(ctx context.Context) {
				a.reload(ctx, loader, cfg.CatalogPaths, engine, gw)
			}, a.logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				watcher.Run(ctx)
			}()
		}
	}

	a.logger.Info("tooldeck serving",
		zap.Int("tools", engine.Catalog.Len()),
		zap.Strings("catalogs", cfg.CatalogPaths),
	)

	serveErr := gw.Run(ctx)
	cancel()
	wg.Wait()

	select {
	case err := <-errChan:
		return err
	default:
	}
	if serveErr != nil && ctx.Err() == nil {
		return serveErr
	}
	return nil
}

// reload re-reads the catalog files and swaps the result in. A broken edit
// is logged and ignored; the engine keeps the last good catalog.
func (a *Application) reload(ctx context.Context, loader *catalog.Loader, paths []string, engine *Engine, gw *gateway.Gateway) {
	doc, err := loader.LoadAll(ctx, paths)
	if err != nil {
		a.logger.Error("catalog reload rejected, keeping previous catalog", zap.Error(err))
		return
	}
	if err := engine.ApplyCatalog(doc.Tools); err != nil {
		a.logger.Error("catalog reload rejected, keeping previous catalog", zap.Error(err))
		return
	}
	if gw != nil {
		gw.Resync()
	}
}

func (a *Application) openHealthStore(path string, engine *Engine) (*health.Store, error) {
	if path == "" {
		return nil, nil
	}
	store, err := health.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("open health store: %w", err)
	}
	records, err := store.Load()
	if err != nil {
		a.logger.Warn("health snapshot unreadable, starting fresh", zap.Error(err))
	} else {
		engine.Health.Restore(records)
		a.logger.Info("health snapshot restored", zap.Int("records", len(records)))
	}
	return store, nil
}

func (a *Application) closeHealthStore(store *health.Store, engine *Engine) {
	if err := store.Save(engine.Health.Snapshot()); err != nil {
		a.logger.Warn("health snapshot not saved", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		a.logger.Warn("health store close failed", zap.Error(err))
	}
}

// Engine exposes the running engine for diagnostics commands. Nil until
// Serve has loaded the catalog.
func (a *Application) Engine() *Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

// ValidateConfig parses the catalog files and reports the merged result
// without starting anything.
func ValidateConfig(ctx context.Context, paths []string, logger *zap.Logger) (catalog.Document, error) {
	return catalog.NewLoader(logger).LoadAll(ctx, paths)
}

// CallOnce builds a throwaway engine from the catalog files and dispatches
// a single request. Used by the CLI for ad-hoc invocations.
func CallOnce(ctx context.Context, paths []string, req domain.CallRequest, logger *zap.Logger) (domain.CallResult, error) {
	doc, err := catalog.NewLoader(logger).LoadAll(ctx, paths)
	if err != nil {
		return domain.CallResult{}, fmt.Errorf("load catalog: %w", err)
	}

	metrics := NewMetrics(NewMetricsRegistry())
	engine := NewEngine(doc.Runtime, metrics, logger)
	if err := engine.Catalog.Load(doc.Tools, domain.LoadMerge); err != nil {
		return domain.CallResult{}, fmt.Errorf("apply catalog: %w", err)
	}
	return engine.Call(ctx, req), nil
}
