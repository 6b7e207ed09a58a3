//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
)

func InitializeEngine(runtime domain.RuntimeConfig, logger *zap.Logger) *Engine {
	wire.Build(EngineSet)
	return nil
}
