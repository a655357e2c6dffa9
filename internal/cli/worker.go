package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/engine"
	"github.com/insdata/temposync/internal/infra/metrics"
	"github.com/insdata/temposync/internal/scheduler"
	"github.com/insdata/temposync/internal/worker"
)

var (
	workerRunOnce  bool
	workerMaxTasks int
	workerCount    int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the polling worker loop (and the refresh scheduler when enabled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(runWorker)
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerRunOnce, "run-once", false, "process a single task and exit")
	workerCmd.Flags().IntVar(&workerMaxTasks, "max-tasks", 0, "stop after this many tasks (0 = unlimited)")
	workerCmd.Flags().IntVar(&workerCount, "count", 0, "number of concurrent workers (overrides config)")
	rootCmd.AddCommand(workerCmd)
}

// runWorker wires the long-running surfaces into the container lifecycle. The
// pool stops claiming on shutdown and finishes its in-flight tasks first. It
// is built here, after the flag overrides, rather than provided.
func runWorker(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	cfg *config.Config,
	queue repository.TaskQueue,
	eng *engine.Engine,
	sched *scheduler.Scheduler,
	metricsServer *metrics.Server,
	tracer *metrics.TracerProvider,
) {
	// flags override the configured loop shape for ad-hoc runs
	if workerRunOnce {
		cfg.Temposync.Worker.RunOnce = true
	}
	if workerMaxTasks > 0 {
		cfg.Temposync.Worker.MaxTasks = workerMaxTasks
	}
	if workerCount > 0 {
		cfg.Temposync.Worker.Count = workerCount
	}
	pool := worker.NewPool(cfg.Temposync.Worker, queue, eng)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			metricsServer.Start()
			if err := sched.Start(ctx); err != nil {
				return err
			}
			pool.Start(context.Background())

			bounded := cfg.Temposync.Worker.RunOnce || cfg.Temposync.Worker.MaxTasks > 0
			if bounded {
				go func() {
					pool.Wait()
					_ = sd.Shutdown()
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Stop()
			sched.Stop()
			_ = metricsServer.Stop(ctx)
			return tracer.Shutdown(ctx)
		},
	})
}
