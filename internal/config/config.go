package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Inference  InferenceConfig  `yaml:"inference" mapstructure:"inference"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// InferenceConfig holds inference provider settings. APIKey comes from the
// environment (DELPHI_INFERENCE_API_KEY), never from the config file.
type InferenceConfig struct {
	Provider     string  `yaml:"provider" mapstructure:"provider"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Model        string  `yaml:"model" mapstructure:"model"`
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	SystemPrompt string  `yaml:"system_prompt" mapstructure:"system_prompt"`
}

// ResilienceConfig configures the protection pipeline around inference
// calls. Seconds-valued settings are plain ints; use the duration getters.
type ResilienceConfig struct {
	CallsPerSecond     float64 `yaml:"calls_per_second" mapstructure:"calls_per_second"`
	FailureThreshold   int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs   int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffSecs int     `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	MaxBackoffSecs     int     `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	BackoffMultiplier  float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFraction     float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// ResetTimeout returns the circuit cooldown as a time.Duration.
func (r ResilienceConfig) ResetTimeout() time.Duration {
	return time.Duration(r.ResetTimeoutSecs) * time.Second
}

// InitialBackoff returns the base retry delay as a time.Duration.
func (r ResilienceConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffSecs) * time.Second
}

// MaxBackoff returns the retry delay cap as a time.Duration.
func (r ResilienceConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffSecs) * time.Second
}

// RequestTimeout returns the per-call time budget as a time.Duration.
func (r ResilienceConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSecs) * time.Second
}

// QualityConfig configures the data quality gate.
type QualityConfig struct {
	TierFile   string  `yaml:"tier_file" mapstructure:"tier_file"`
	MinOverall float64 `yaml:"min_overall" mapstructure:"min_overall"`
}

// MonitoringConfig configures alert thresholds and delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinFinishedCalls     int     `yaml:"min_finished_calls" mapstructure:"min_finished_calls"`
	GateBlockStreak      int     `yaml:"gate_block_streak" mapstructure:"gate_block_streak"`
}

// CheckInterval returns the checker loop period as a time.Duration.
func (m MonitoringConfig) CheckInterval() time.Duration {
	return time.Duration(m.CheckIntervalSecs) * time.Second
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DELPHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv resolves only keys viper already knows. The API key has
	// no default and no config-file entry, so bind it explicitly.
	_ = v.BindEnv("inference.api_key")

	// Defaults
	v.SetDefault("inference.provider", "openai-compatible")
	v.SetDefault("inference.max_tokens", 1024)
	v.SetDefault("inference.temperature", 0.2)
	v.SetDefault("resilience.calls_per_second", 0.5)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 60)
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.initial_backoff_secs", 5)
	v.SetDefault("resilience.max_backoff_secs", 60)
	v.SetDefault("resilience.backoff_multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.request_timeout_secs", 120)
	v.SetDefault("quality.min_overall", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_finished_calls", 5)
	v.SetDefault("monitoring.gate_block_streak", 3)
	v.SetDefault("server.port", 8787)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the configuration is usable for the given command
// mode. All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "invoke":
		if c.Inference.APIKey == "" {
			problems = append(problems, "inference.api_key is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	case "quality", "sanitize":
		// No required settings.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Resilience.CallsPerSecond < 0 {
		problems = append(problems, "resilience.calls_per_second must be >= 0")
	}
	if c.Resilience.MaxRetries < 0 {
		problems = append(problems, "resilience.max_retries must be >= 0")
	}
	if c.Resilience.FailureThreshold < 1 {
		problems = append(problems, "resilience.failure_threshold must be >= 1")
	}
	if c.Resilience.JitterFraction < 0 || c.Resilience.JitterFraction > 1 {
		problems = append(problems, "resilience.jitter_fraction must be between 0 and 1")
	}
	if c.Inference.Temperature < 0 || c.Inference.Temperature > 2 {
		problems = append(problems, "inference.temperature must be between 0 and 2")
	}
	if c.Quality.MinOverall < 0 || c.Quality.MinOverall > 1 {
		problems = append(problems, "quality.min_overall must be between 0 and 1")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
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
