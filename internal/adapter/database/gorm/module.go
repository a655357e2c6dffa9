package gorm

import (
	"go.uber.org/fx"

	"github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/config"
)

// Module exports the gorm adapter components for dependency injection
// (excluding the concrete per-driver DBProviders).
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(cfg *config.Config, providers []database.DBProvider) (database.DBConnectionResolver, error) {
			return NewDBConnectionResolver(cfg, providers)
		},
		fx.ParamTags(``, `group:"`+database.DBProviderGroup+`"`),
	)),
)
