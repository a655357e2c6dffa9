// Package config provides structures and loading utilities for the temposync
// application configuration.
package config

// EmbeddedConfig holds the raw bytes of the configuration file, typically
// embedded into the binary and passed from main.
type EmbeddedConfig []byte

// LogLevel mirrors the logger levels for configuration purposes.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// SyncConfig holds the knobs of the sync execution engine and planner.
type SyncConfig struct {
	// CellLimit is the maximum estimated cell count per external API request.
	// The upstream documents this limit; it is never exceedable.
	CellLimit int `yaml:"cell_limit"`
	// CheckpointRetryLimit is the per-chunk retry ceiling before a checkpoint
	// transitions to EXHAUSTED.
	CheckpointRetryLimit int `yaml:"checkpoint_retry_limit"`
	// UpsertBatchSize bounds the number of fact rows written per batch.
	UpsertBatchSize int `yaml:"upsert_batch_size"`
	// ErrorSummaryLimit bounds the number of chunk error messages kept on a task.
	ErrorSummaryLimit int `yaml:"error_summary_limit"`
	// FailFast aborts a task on the first failed chunk instead of continuing.
	FailFast bool `yaml:"fail_fast"`
	// StrictYears fails planning when the requested year range matches no
	// temporal items, instead of substituting the first available item.
	StrictYears bool `yaml:"strict_years"`
}

// TempoConfig holds settings of the external tabular API client.
type TempoConfig struct {
	// BaseURL is the root of the external tabular API.
	BaseURL string `yaml:"base_url"`
	// MinRequestIntervalMillis is the minimum spacing between requests.
	MinRequestIntervalMillis int `yaml:"min_request_interval_ms"`
	// RequestTimeoutSeconds is the per-call timeout.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	// MaxRetries is the HTTP-level retry count for transient responses.
	MaxRetries int `yaml:"max_retries"`
	// RetryWaitMillis is the initial backoff before an HTTP retry.
	RetryWaitMillis int `yaml:"retry_wait_ms"`
}

// WorkerConfig holds settings of the polling worker loop.
type WorkerConfig struct {
	// Count is the number of concurrent polling workers.
	Count int `yaml:"count"`
	// PollIntervalSeconds is the sleep between empty queue polls.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// MaxTasks stops a worker after processing this many tasks (0 = unlimited).
	MaxTasks int `yaml:"max_tasks"`
	// RunOnce processes a single task and exits.
	RunOnce bool `yaml:"run_once"`
}

// SchedulerConfig drives the periodic refresh enqueuer.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// RefreshSpec is the cron expression for the bulk refresh of active datasets.
	RefreshSpec string `yaml:"refresh_spec"`
	// YearsBack is how many years back from the current year a refresh covers.
	YearsBack int `yaml:"years_back"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig names the logical datasource bindings.
type InfrastructureConfig struct {
	// StoreDBRef is the DBConnection name used by the sync store (tasks,
	// checkpoints, facts). Defaults to "store".
	StoreDBRef string `yaml:"store_db_ref"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig holds the OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	// ServiceName overrides the reported service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// ExportConfig holds the parquet snapshot exporter settings.
type ExportConfig struct {
	// OutputDir is the directory snapshot files are written into.
	OutputDir string `yaml:"output_dir"`
	// RowGroupSize is the parquet row group size in rows.
	RowGroupSize int64 `yaml:"row_group_size"`
}

// TemposyncConfig holds everything under the "temposync" top-level key.
type TemposyncConfig struct {
	System         SystemConfig           `yaml:"system"`
	Sync           SyncConfig             `yaml:"sync"`
	Tempo          TempoConfig            `yaml:"tempo"`
	Worker         WorkerConfig           `yaml:"worker"`
	Scheduler      SchedulerConfig        `yaml:"scheduler"`
	Infrastructure InfrastructureConfig   `yaml:"infrastructure"`
	Metrics        MetricsConfig          `yaml:"metrics"`
	Tracing        TracingConfig          `yaml:"tracing"`
	Export         ExportConfig           `yaml:"export"`
	AdapterConfigs map[string]interface{} `yaml:"database"`
}

// Config is the root of the application configuration.
type Config struct {
	Temposync      TemposyncConfig `yaml:"temposync"`
	EmbeddedConfig EmbeddedConfig  `yaml:"-"`
}

// NewConfig returns a Config populated with defaults. YAML and environment
// values are merged over these.
func NewConfig() *Config {
	cfg := &Config{
		Temposync: TemposyncConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Sync: SyncConfig{
				CellLimit:            30000,
				CheckpointRetryLimit: 5,
				UpsertBatchSize:      100,
				ErrorSummaryLimit:    10,
			},
			Tempo: TempoConfig{
				MinRequestIntervalMillis: 750,
				RequestTimeoutSeconds:    60,
				MaxRetries:               3,
				RetryWaitMillis:          1000,
			},
			Worker: WorkerConfig{
				Count:               1,
				PollIntervalSeconds: 5,
			},
			Scheduler: SchedulerConfig{
				RefreshSpec: "0 3 * * *",
				YearsBack:   3,
			},
			Infrastructure: InfrastructureConfig{
				StoreDBRef: "store",
			},
			Metrics: MetricsConfig{
				Enabled:    true,
				ListenAddr: ":9464",
			},
			Export: ExportConfig{
				OutputDir:    "export",
				RowGroupSize: 128 * 1024,
			},
		},
	}
	cfg.Temposync.AdapterConfigs = map[string]interface{}{}
	return cfg
}
