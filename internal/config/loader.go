package config

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

const moduleName = "config"

// EnvironmentExpander expands environment variable placeholders (${VAR} or
// $VAR) inside raw configuration bytes before YAML parsing.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander implements EnvironmentExpander with os.ExpandEnv.
// Unset variables expand to the empty string.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates a new OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

// Expand implements EnvironmentExpander.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return []byte(os.ExpandEnv(string(input))), nil
}

// LoadConfig loads configuration from the embedded YAML bytes and the
// environment. Precedence: defaults < YAML (with env placeholders expanded).
// A .env file, if present, is loaded into the environment first so that
// placeholders in the YAML resolve against it.
func LoadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	expanded, err := NewOsEnvironmentExpander().Expand(embedded)
	if err != nil {
		return nil, exception.New(moduleName, "failed to expand environment placeholders in config", err, false)
	}

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.New(moduleName, "failed to unmarshal embedded config", err, false)
	}
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(expanded, &rawConfig); err != nil {
		return nil, exception.New(moduleName, "failed to unmarshal embedded config", err, false)
	}

	mergeConfig(cfg, &yamlConfig, rawConfig)
	cfg.EmbeddedConfig = embedded
	return cfg, nil
}

// ConfigParams defines the dependencies of NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// NewConfigProvider is the fx provider for *Config. It loads the
// configuration and applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Temposync.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Temposync.System.Logging.Level)
	return cfg, nil
}

// Module is the fx module providing the application configuration.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
)

// mergeConfig deep-merges source into dest, overwriting only non-zero values.
// Booleans are the exception: a zero value cannot distinguish "unset" from an
// explicit false, so they merge by presence in the raw document. Without
// that, a default-true flag could never be switched off from the YAML.
func mergeConfig(dest, source *Config, raw map[string]interface{}) {
	mergeTemposyncConfig(&dest.Temposync, &source.Temposync, raw)
}

// lookupBool walks the raw YAML document along the key path and reports the
// boolean found there and whether the document sets it at all.
func lookupBool(raw map[string]interface{}, path ...string) (bool, bool) {
	var node interface{} = raw
	for _, key := range path {
		m, ok := node.(map[string]interface{})
		if !ok {
			return false, false
		}
		node = m[key]
	}
	value, ok := node.(bool)
	return value, ok
}

func mergeTemposyncConfig(dest, source *TemposyncConfig, raw map[string]interface{}) {
	if source.System.Timezone != "" {
		dest.System.Timezone = source.System.Timezone
	}
	if source.System.Logging.Level != "" {
		dest.System.Logging.Level = source.System.Logging.Level
	}

	if source.Sync.CellLimit != 0 {
		dest.Sync.CellLimit = source.Sync.CellLimit
	}
	if source.Sync.CheckpointRetryLimit != 0 {
		dest.Sync.CheckpointRetryLimit = source.Sync.CheckpointRetryLimit
	}
	if source.Sync.UpsertBatchSize != 0 {
		dest.Sync.UpsertBatchSize = source.Sync.UpsertBatchSize
	}
	if source.Sync.ErrorSummaryLimit != 0 {
		dest.Sync.ErrorSummaryLimit = source.Sync.ErrorSummaryLimit
	}
	if v, ok := lookupBool(raw, "temposync", "sync", "fail_fast"); ok {
		dest.Sync.FailFast = v
	}
	if v, ok := lookupBool(raw, "temposync", "sync", "strict_years"); ok {
		dest.Sync.StrictYears = v
	}

	if source.Tempo.BaseURL != "" {
		dest.Tempo.BaseURL = source.Tempo.BaseURL
	}
	if source.Tempo.MinRequestIntervalMillis != 0 {
		dest.Tempo.MinRequestIntervalMillis = source.Tempo.MinRequestIntervalMillis
	}
	if source.Tempo.RequestTimeoutSeconds != 0 {
		dest.Tempo.RequestTimeoutSeconds = source.Tempo.RequestTimeoutSeconds
	}
	if source.Tempo.MaxRetries != 0 {
		dest.Tempo.MaxRetries = source.Tempo.MaxRetries
	}
	if source.Tempo.RetryWaitMillis != 0 {
		dest.Tempo.RetryWaitMillis = source.Tempo.RetryWaitMillis
	}

	if source.Worker.Count != 0 {
		dest.Worker.Count = source.Worker.Count
	}
	if source.Worker.PollIntervalSeconds != 0 {
		dest.Worker.PollIntervalSeconds = source.Worker.PollIntervalSeconds
	}
	if source.Worker.MaxTasks != 0 {
		dest.Worker.MaxTasks = source.Worker.MaxTasks
	}
	if v, ok := lookupBool(raw, "temposync", "worker", "run_once"); ok {
		dest.Worker.RunOnce = v
	}

	if v, ok := lookupBool(raw, "temposync", "scheduler", "enabled"); ok {
		dest.Scheduler.Enabled = v
	}
	if source.Scheduler.RefreshSpec != "" {
		dest.Scheduler.RefreshSpec = source.Scheduler.RefreshSpec
	}
	if source.Scheduler.YearsBack != 0 {
		dest.Scheduler.YearsBack = source.Scheduler.YearsBack
	}

	if source.Infrastructure.StoreDBRef != "" {
		dest.Infrastructure.StoreDBRef = source.Infrastructure.StoreDBRef
	}

	if v, ok := lookupBool(raw, "temposync", "metrics", "enabled"); ok {
		dest.Metrics.Enabled = v
	}
	if source.Metrics.ListenAddr != "" {
		dest.Metrics.ListenAddr = source.Metrics.ListenAddr
	}
	if v, ok := lookupBool(raw, "temposync", "tracing", "enabled"); ok {
		dest.Tracing.Enabled = v
	}
	if source.Tracing.Endpoint != "" {
		dest.Tracing.Endpoint = source.Tracing.Endpoint
	}
	if source.Tracing.ServiceName != "" {
		dest.Tracing.ServiceName = source.Tracing.ServiceName
	}

	if source.Export.OutputDir != "" {
		dest.Export.OutputDir = source.Export.OutputDir
	}
	if source.Export.RowGroupSize != 0 {
		dest.Export.RowGroupSize = source.Export.RowGroupSize
	}

	if source.AdapterConfigs != nil {
		if dest.AdapterConfigs == nil {
			dest.AdapterConfigs = make(map[string]interface{})
		}
		for key, value := range source.AdapterConfigs {
			dest.AdapterConfigs[key] = value
		}
	}
}
