package gorm

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/config"
)

// connectionResolver implements database.DBConnectionResolver over the set of
// registered DBProviders, dispatching by the configured type of each named
// connection.
type connectionResolver struct {
	cfg       *config.Config
	providers map[string]database.DBProvider
}

// NewDBConnectionResolver indexes the providers by database type.
func NewDBConnectionResolver(cfg *config.Config, providers []database.DBProvider) (database.DBConnectionResolver, error) {
	byType := make(map[string]database.DBProvider, len(providers))
	for _, p := range providers {
		if _, dup := byType[p.Type()]; dup {
			return nil, fmt.Errorf("duplicate DBProvider registered for type '%s'", p.Type())
		}
		byType[p.Type()] = p
	}
	return &connectionResolver{cfg: cfg, providers: byType}, nil
}

func (r *connectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	rawConfig, ok := r.cfg.Temposync.AdapterConfigs[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found under the database section", name)
	}
	var dbConfig database.DatabaseConfig
	if err := mapstructure.Decode(rawConfig, &dbConfig); err != nil {
		return nil, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}

	provider, ok := r.providers[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("no DBProvider registered for database type '%s' (connection '%s')", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, err
	}
	if err := conn.RefreshConnection(ctx); err != nil {
		// The pooled connection went stale; reopen before handing it out.
		return provider.ForceReconnect(name)
	}
	return conn, nil
}
