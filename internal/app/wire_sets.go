//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
)

var CoreInfraSet = wire.NewSet(
	NewMetricsRegistry,
	NewMetrics,
	NewCatalogStore,
	NewTypeRegistry,
	NewHealthTracker,
)

var EngineSet = wire.NewSet(
	CoreInfraSet,
	NewInstanceCache,
	NewDispatcher,
	newEngineFromParts,
)
