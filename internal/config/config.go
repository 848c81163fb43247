package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds settings for the Claude adapter (provider B).
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxInputBytes     int     `yaml:"max_input_bytes" mapstructure:"max_input_bytes"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// MistralConfig holds settings for the Mistral adapter (provider A).
type MistralConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxInputBytes     int     `yaml:"max_input_bytes" mapstructure:"max_input_bytes"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PipelineConfig configures extraction behavior.
type PipelineConfig struct {
	ProviderTimeoutSecs int     `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
	ProviderRetries     int     `yaml:"provider_retries" mapstructure:"provider_retries"`
	ScanThreshold       float64 `yaml:"scan_threshold" mapstructure:"scan_threshold"`
}

// CircuitConfig configures the per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures alert thresholds and delivery.
type MonitoringConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs  int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	QuotaWarnRatio     float64 `yaml:"quota_warn_ratio" mapstructure:"quota_warn_ratio"`
	QuotaCriticalRatio float64 `yaml:"quota_critical_ratio" mapstructure:"quota_critical_ratio"`
	MassImportCount    int     `yaml:"mass_import_count" mapstructure:"mass_import_count"`
	MassImportBytes    int64   `yaml:"mass_import_bytes" mapstructure:"mass_import_bytes"`
	ChurnInactiveDays  int     `yaml:"churn_inactive_days" mapstructure:"churn_inactive_days"`
}

// CatalogConfig points at the versioned price/plan catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RISKDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "riskdoc.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.max_input_bytes", 180000)
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("mistral.base_url", "https://api.mistral.ai/v1")
	v.SetDefault("mistral.model", "mistral-large-latest")
	v.SetDefault("mistral.max_tokens", 8192)
	v.SetDefault("mistral.max_input_bytes", 60000)
	v.SetDefault("mistral.requests_per_second", 2)
	v.SetDefault("pipeline.provider_timeout_secs", 120)
	v.SetDefault("pipeline.provider_retries", 0)
	v.SetDefault("pipeline.scan_threshold", 100)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("monitoring.check_interval_secs", 3600)
	v.SetDefault("monitoring.quota_warn_ratio", 0.80)
	v.SetDefault("monitoring.quota_critical_ratio", 0.95)
	v.SetDefault("monitoring.mass_import_count", 10)
	v.SetDefault("monitoring.mass_import_bytes", 500*1024*1024)
	v.SetDefault("monitoring.churn_inactive_days", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings required by a command mode.
// Modes: "extract", "serve", "report".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "extract":
		errs = append(errs, c.validatePipeline()...)
	case "serve":
		errs = append(errs, c.validatePipeline()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "report":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Monitoring.QuotaWarnRatio <= 0 || c.Monitoring.QuotaWarnRatio > c.Monitoring.QuotaCriticalRatio {
		errs = append(errs, "monitoring.quota_warn_ratio must be > 0 and <= quota_critical_ratio")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var errs []string
	if c.Pipeline.ProviderTimeoutSecs <= 0 {
		errs = append(errs, "pipeline.provider_timeout_secs must be > 0")
	}
	if c.Pipeline.ProviderRetries < 0 || c.Pipeline.ProviderRetries > 5 {
		errs = append(errs, "pipeline.provider_retries must be between 0 and 5")
	}
	if c.Pipeline.ScanThreshold <= 0 {
		errs = append(errs, "pipeline.scan_threshold must be > 0")
	}
	return errs
}
