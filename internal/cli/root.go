// Package cli implements the temposync command line interface.
package cli

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/insdata/temposync/internal/app"
)

var (
	flagEnvFile    string
	flagDBAdapters string

	embeddedConfig []byte
	migrationsFS   embed.FS
	migrationsPath string
)

var rootCmd = &cobra.Command{
	Use:   "temposync",
	Short: "Synchronizes Romanian territorial statistics from the Tempo API into a local store",
	Long: `temposync plans capacity-bounded chunk requests against the INS Tempo
tabular API, executes them with durable per-chunk checkpoints and upserts the
resolved fact rows into per-dataset partitions.`,
	SilenceUsage: true,
}

// Execute runs the CLI. The entry point supplies the embedded configuration
// and migrations.
func Execute(config []byte, migrations embed.FS, path string) error {
	embeddedConfig = config
	migrationsFS = migrations
	migrationsPath = path
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", envOr("ENV_FILE_PATH", ".env"),
		"path to an optional .env file")
	rootCmd.PersistentFlags().StringVar(&flagDBAdapters, "db-adapters", os.Getenv("DB_ADAPTERS"),
		"comma-separated database adapters to enable (default: all)")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dbAdapters() []string {
	if flagDBAdapters == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(flagDBAdapters, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// runApp builds the container around the given invoke function and runs it to
// completion.
func runApp(invoke interface{}) error {
	a := app.New(app.Params{
		EnvFilePath:    flagEnvFile,
		EmbeddedConfig: embeddedConfig,
		MigrationsFS:   migrationsFS,
		MigrationsPath: migrationsPath,
		DBAdapters:     dbAdapters(),
		Invoke:         invoke,
	})
	a.Run()
	return nil
}

// oneShot wraps a unit of work so it runs once the container is up, then
// shuts the application down, propagating failure through the exit code.
func oneShot(lc fx.Lifecycle, sd fx.Shutdowner, work func(ctx context.Context) error) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := 0
				if err := work(context.Background()); err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
					code = 1
				}
				_ = sd.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
	})
}
