// Package app assembles the application's dependency graph and lifecycle.
package app

import (
	"context"
	"embed"
	"io/fs"

	"go.uber.org/fx"

	"github.com/insdata/temposync/internal/adapter/database"
	gormadapter "github.com/insdata/temposync/internal/adapter/database/gorm"
	"github.com/insdata/temposync/internal/adapter/database/gorm/mysql"
	"github.com/insdata/temposync/internal/adapter/database/gorm/postgres"
	"github.com/insdata/temposync/internal/adapter/database/gorm/sqlite"
	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/engine"
	"github.com/insdata/temposync/internal/export"
	"github.com/insdata/temposync/internal/infra/metrics"
	"github.com/insdata/temposync/internal/infra/migration"
	sqlrepo "github.com/insdata/temposync/internal/infra/repository/sql"
	"github.com/insdata/temposync/internal/operator"
	"github.com/insdata/temposync/internal/planner"
	"github.com/insdata/temposync/internal/resolve"
	"github.com/insdata/temposync/internal/scheduler"
	"github.com/insdata/temposync/internal/support/logger"
	"github.com/insdata/temposync/internal/tempo"
	"github.com/insdata/temposync/internal/tx"
)

// DBProviderMap lets the entry point select providers by name, e.g. from a
// DB_ADAPTERS environment variable.
var DBProviderMap = map[string]func(cfg *config.Config) database.DBProvider{
	"postgres": postgres.NewProvider,
	"mysql":    mysql.NewProvider,
	"sqlite":   sqlite.NewProvider,
}

// storeConnection resolves the sync store connection named by the
// infrastructure config.
func storeConnection(cfg *config.Config, resolver database.DBConnectionResolver) (database.DBConnection, error) {
	return resolver.ResolveDBConnection(context.Background(), cfg.Temposync.Infrastructure.StoreDBRef)
}

func newTaskQueue(cfg *config.Config, resolver database.DBConnectionResolver) repository.TaskQueue {
	return sqlrepo.NewSQLTaskQueue(resolver, cfg.Temposync.Infrastructure.StoreDBRef)
}

func newCheckpointRepository(cfg *config.Config, resolver database.DBConnectionResolver) repository.CheckpointRepository {
	return sqlrepo.NewSQLCheckpointRepository(resolver, cfg.Temposync.Infrastructure.StoreDBRef)
}

func newStatisticRepository(cfg *config.Config, resolver database.DBConnectionResolver) repository.StatisticRepository {
	return sqlrepo.NewSQLStatisticRepository(resolver, cfg.Temposync.Infrastructure.StoreDBRef,
		cfg.Temposync.Sync.UpsertBatchSize)
}

func newDatasetCatalog(cfg *config.Config, resolver database.DBConnectionResolver) repository.DatasetCatalog {
	return sqlrepo.NewSQLDatasetCatalog(resolver, cfg.Temposync.Infrastructure.StoreDBRef)
}

func newTransactionManager(cfg *config.Config, resolver database.DBConnectionResolver) tx.TransactionManager {
	return gormadapter.NewGormTransactionManager(resolver, cfg.Temposync.Infrastructure.StoreDBRef)
}

func newPlanner(cfg *config.Config) engine.ChunkPlanner {
	return planner.New(cfg.Temposync.Sync)
}

func newTempoClient(cfg *config.Config) engine.TempoClient {
	return tempo.NewClient(cfg.Temposync.Tempo)
}

func newResolver() engine.RowResolver {
	return resolve.NewResolver()
}

func newEngine(
	cfg *config.Config,
	queue repository.TaskQueue,
	checkpoints repository.CheckpointRepository,
	statistics repository.StatisticRepository,
	catalog repository.DatasetCatalog,
	chunkPlanner engine.ChunkPlanner,
	client engine.TempoClient,
	rowResolver engine.RowResolver,
	txManager tx.TransactionManager,
	recorder *metrics.PrometheusRecorder,
) *engine.Engine {
	return engine.NewEngine(cfg.Temposync.Sync, queue, checkpoints, statistics, catalog,
		chunkPlanner, client, rowResolver, txManager, recorder)
}

func newScheduler(cfg *config.Config, queue repository.TaskQueue, catalog repository.DatasetCatalog) *scheduler.Scheduler {
	return scheduler.New(cfg.Temposync.Scheduler, queue, catalog)
}

func newOperatorService(
	queue repository.TaskQueue,
	checkpoints repository.CheckpointRepository,
	catalog repository.DatasetCatalog,
	chunkPlanner engine.ChunkPlanner,
) *operator.Service {
	return operator.NewService(queue, checkpoints, catalog, chunkPlanner)
}

func newExporter(cfg *config.Config, statistics repository.StatisticRepository) *export.Exporter {
	return export.NewExporter(cfg.Temposync.Export, statistics)
}

func newMetricsServer(cfg *config.Config, recorder *metrics.PrometheusRecorder) *metrics.Server {
	return metrics.NewServer(cfg.Temposync.Metrics, recorder)
}

func newTracerProvider(cfg *config.Config) (*metrics.TracerProvider, error) {
	return metrics.SetupTracing(context.Background(), cfg.Temposync.Tracing)
}

// CoreModule wires everything below the entry points: configuration, the
// store, repositories, the engine and its collaborators.
var CoreModule = fx.Options(
	logger.Module,
	config.Module,
	gormadapter.Module,
	fx.Provide(
		newTaskQueue,
		newCheckpointRepository,
		newStatisticRepository,
		newDatasetCatalog,
		newTransactionManager,
		newPlanner,
		newTempoClient,
		newResolver,
		metrics.NewPrometheusRecorder,
		newMetricsServer,
		newTracerProvider,
		newEngine,
		newScheduler,
		newOperatorService,
		newExporter,
	),
)

// Params carries the runtime inputs of Run.
type Params struct {
	// EnvFilePath points at an optional .env file.
	EnvFilePath string
	// EmbeddedConfig is the raw application.yaml bundled into the binary.
	EmbeddedConfig []byte
	// MigrationsFS holds the embedded schema migrations.
	MigrationsFS embed.FS
	// MigrationsPath is the directory inside MigrationsFS.
	MigrationsPath string
	// DBAdapters selects which database providers to register; empty enables
	// all of them.
	DBAdapters []string
	// Invoke is the command body run inside the container.
	Invoke interface{}
}

// dbProviderOptions registers the selected (or all) database providers under
// the db_providers group.
func dbProviderOptions(names []string) []fx.Option {
	if len(names) == 0 {
		for name := range DBProviderMap {
			names = append(names, name)
		}
	}
	opts := make([]fx.Option, 0, len(names))
	for _, name := range names {
		provider, ok := DBProviderMap[name]
		if !ok {
			logger.Warnf("database adapter %q is not supported, skipping", name)
			continue
		}
		opts = append(opts, fx.Provide(fx.Annotate(provider,
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`))))
	}
	return opts
}

// migrateStore applies the embedded migrations against the store connection.
func migrateStore(ctx context.Context, cfg *config.Config, resolver database.DBConnectionResolver, migrationFS fs.FS, path string) error {
	conn, err := storeConnection(cfg, resolver)
	if err != nil {
		return err
	}
	return migration.NewMigrator(conn).Up(ctx, migrationFS, path)
}

// New builds the fx application for the given entry point.
func New(p Params) *fx.App {
	options := []fx.Option{
		fx.Supply(config.EmbeddedConfig(p.EmbeddedConfig)),
		fx.Provide(fx.Annotate(func() string { return p.EnvFilePath }, fx.ResultTags(`name:"envFilePath"`))),
		CoreModule,
	}
	options = append(options, dbProviderOptions(p.DBAdapters)...)

	options = append(options,
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, resolver database.DBConnectionResolver) {
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					return migrateStore(startCtx, cfg, resolver, p.MigrationsFS, p.MigrationsPath)
				},
			})
		}),
		fx.Invoke(p.Invoke),
	)
	return fx.New(options...)
}
