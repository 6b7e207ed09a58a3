// Package instance owns the at-most-one-instance-per-name invariant under
// concurrent access.
package instance

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/health"
	"tooldeck/internal/infra/typereg"
)

// Metrics receives construction outcomes. Implemented by the telemetry
// package; nil-safe via the noop default in NewCache.
type Metrics interface {
	ObserveConstruction(tool string, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveConstruction(string, error) {}

// Cache constructs tool instances once and reuses them. Construction of
// different names proceeds in parallel; for a single name, concurrent
// callers share one in-flight attempt and observe its single outcome.
// Failed attempts are never cached, so a tool recovers on a later call once
// its environment is fixed, without a process restart.
type Cache struct {
	catalog *catalog.Store
	types   *typereg.Registry
	health  *health.Tracker
	metrics Metrics
	logger  *zap.Logger

	mu        sync.RWMutex
	instances map[string]domain.ToolInstance
	inflight  map[string]*flight
}

type flight struct {
	done     chan struct{}
	instance domain.ToolInstance
	err      *domain.Error
}

func NewCache(cat *catalog.Store, types *typereg.Registry, tracker *health.Tracker, metrics Metrics, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Cache{
		catalog:   cat,
		types:     types,
		health:    tracker,
		metrics:   metrics,
		logger:    logger.Named("instance"),
		instances: make(map[string]domain.ToolInstance),
		inflight:  make(map[string]*flight),
	}
}

// GetOrCreate returns the live instance for name, constructing it on first
// use. The catalog lookup, type resolution and factory invocation all happen
// inside the per-name flight; their outcomes are recorded in health.
func (c *Cache) GetOrCreate(ctx context.Context, name string) (domain.ToolInstance, *domain.Error) {
	c.mu.RLock()
	inst, ok := c.instances[name]
	c.mu.RUnlock()
	if ok {
		return inst, nil
	}

	c.mu.Lock()
	if inst, ok = c.instances[name]; ok {
		c.mu.Unlock()
		return inst, nil
	}
	if fl, running := c.inflight[name]; running {
		c.mu.Unlock()
		return c.await(ctx, fl)
	}
	fl := &flight{done: make(chan struct{})}
	c.inflight[name] = fl
	c.mu.Unlock()

	fl.instance, fl.err = c.construct(name)

	c.mu.Lock()
	if fl.err == nil {
		c.instances[name] = fl.instance
	}
	delete(c.inflight, name)
	c.mu.Unlock()
	close(fl.done)

	return fl.instance, fl.err
}

func (c *Cache) await(ctx context.Context, fl *flight) (domain.ToolInstance, *domain.Error) {
	select {
	case <-fl.done:
		return fl.instance, fl.err
	case <-ctx.Done():
		return nil, domain.Wrap(domain.ErrExecution, "instance.getOrCreate", ctx.Err())
	}
}

func (c *Cache) construct(name string) (domain.ToolInstance, *domain.Error) {
	spec, ok := c.catalog.Lookup(name)
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "instance.getOrCreate",
			fmt.Sprintf("tool %q is not in the catalog", name), nil)
	}

	factory, derr := c.types.Resolve(spec.Type)
	if derr != nil {
		c.health.RecordFailure(name, derr)
		c.metrics.ObserveConstruction(name, derr)
		return nil, derr
	}

	inst, err := factory(spec)
	if err != nil {
		cerr := domain.Wrap(domain.ErrConstruction, "instance.getOrCreate", err)
		c.health.RecordFailure(name, cerr)
		c.metrics.ObserveConstruction(name, cerr)
		c.logger.Warn("tool construction failed",
			zap.String("tool", name), zap.String("type", spec.Type), zap.Error(cerr))
		return nil, cerr
	}
	if inst == nil {
		cerr := domain.E(domain.ErrConstruction, "instance.getOrCreate",
			fmt.Sprintf("factory for type %q returned no instance", spec.Type), nil)
		c.health.RecordFailure(name, cerr)
		c.metrics.ObserveConstruction(name, cerr)
		return nil, cerr
	}

	c.health.RecordSuccess(name)
	c.metrics.ObserveConstruction(name, nil)
	c.logger.Debug("tool constructed", zap.String("tool", name), zap.String("type", spec.Type))
	return inst, nil
}

// Peek returns the cached instance without triggering construction.
func (c *Cache) Peek(name string) (domain.ToolInstance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[name]
	return inst, ok
}

// Drop discards the cached instance for name, forcing reconstruction on the
// next call. Used when a catalog reload removes or redefines a tool.
func (c *Cache) Drop(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.instances, name)
}

// Retain drops every cached instance whose name fails keep.
func (c *Cache) Retain(keep func(name string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.instances {
		if !keep(name) {
			delete(c.instances, name)
		}
	}
}

// Names lists the currently cached instance names.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.instances))
	for name := range c.instances {
		names = append(names, name)
	}
	return names
}
