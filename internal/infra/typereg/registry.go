// Package typereg maps tool type identifiers to factories. Splitting "type
// resolvable" from "instance constructible" lets hundreds of tool types sit
// in the catalog without initializing code or dependencies for types nobody
// calls.
package typereg

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tooldeck/internal/domain"
)

// Registry resolves a type identifier to a factory. Eager registrations are
// always resolvable; lazy ones defer their resolver to first need and cache
// its outcome, success or failure, until invalidated.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	eager map[string]domain.Factory
	lazy  map[string]*lazyEntry
}

type lazyEntry struct {
	resolver domain.Resolver

	mu       sync.Mutex
	resolved bool
	factory  domain.Factory
	err      *domain.Error
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger.Named("typereg"),
		eager:  make(map[string]domain.Factory),
		lazy:   make(map[string]*lazyEntry),
	}
}

// RegisterEager installs an always-available factory for typ. Registration
// happens during the startup phase; last registration wins.
func (r *Registry) RegisterEager(typ string, factory domain.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eager[typ] = factory
	delete(r.lazy, typ)
}

// RegisterLazy installs a resolver invoked at most once, on first need.
// Resolver failure (a missing optional capability, not a bug) is cached and
// returned for every subsequent resolution until Invalidate.
func (r *Registry) RegisterLazy(typ string, resolver domain.Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lazy[typ] = &lazyEntry{resolver: resolver}
	delete(r.eager, typ)
}

// Resolve returns the factory for typ, running a lazy resolver if this is
// the first need. An unknown type and a failed resolver both come back as
// dependency errors so callers can surface "never worked here" distinctly
// from runtime faults.
func (r *Registry) Resolve(typ string) (domain.Factory, *domain.Error) {
	r.mu.RLock()
	factory, eager := r.eager[typ]
	entry, deferred := r.lazy[typ]
	r.mu.RUnlock()

	if eager {
		return factory, nil
	}
	if !deferred {
		return nil, domain.E(domain.ErrDependency, "typereg.resolve",
			fmt.Sprintf("no factory registered for type %q", typ), nil).
			WithHint("register the type during startup, or check the tool's type identifier in the catalog")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.resolved {
		return entry.factory, entry.err
	}

	resolved, err := entry.resolver()
	entry.resolved = true
	if err != nil {
		entry.err = domain.Wrap(domain.ErrDependency, "typereg.resolve", err)
		r.logger.Warn("lazy type resolution failed",
			zap.String("type", typ), zap.Error(entry.err))
		return nil, entry.err
	}
	if resolved == nil {
		entry.err = domain.E(domain.ErrDependency, "typereg.resolve",
			fmt.Sprintf("resolver for type %q returned no factory", typ), nil)
		return nil, entry.err
	}
	entry.factory = resolved
	r.logger.Debug("lazy type resolved", zap.String("type", typ))
	return entry.factory, nil
}

// Invalidate clears a cached lazy resolution so the next Resolve retries the
// resolver. Used after an operator fixes the tool's environment.
func (r *Registry) Invalidate(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.lazy[typ]; ok {
		r.lazy[typ] = &lazyEntry{resolver: entry.resolver}
	}
}

// Known reports whether typ has any registration, resolved or not.
func (r *Registry) Known(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.eager[typ]; ok {
		return true
	}
	_, ok := r.lazy[typ]
	return ok
}
