package config

import (
	"fmt"
	"strings"
	"time"

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
	Analyst    AnalystConfig    `yaml:"analyst" mapstructure:"analyst"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	FedReg     FedRegConfig     `yaml:"fedreg" mapstructure:"fedreg"`
	Portals    PortalsConfig    `yaml:"portals" mapstructure:"portals"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Runner     RunnerConfig     `yaml:"runner" mapstructure:"runner"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Webhook    WebhookConfig    `yaml:"webhook" mapstructure:"webhook"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnalystConfig selects and bounds the text-analysis provider.
type AnalystConfig struct {
	// Provider is one of anthropic, gemini, perplexity or none.
	Provider    string `yaml:"provider" mapstructure:"provider"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxItems    int    `yaml:"max_individual_items" mapstructure:"max_individual_items"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxContent  int    `yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// Timeout returns the per-call timeout.
func (c AnalystConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI search settings.
type JinaConfig struct {
	Key           string   `yaml:"key" mapstructure:"key"`
	SearchBaseURL string   `yaml:"search_base_url" mapstructure:"search_base_url"`
	NewsSites     []string `yaml:"news_sites" mapstructure:"news_sites"`
	LegalSites    []string `yaml:"legal_sites" mapstructure:"legal_sites"`
	IndustrySites []string `yaml:"industry_sites" mapstructure:"industry_sites"`
}

// FedRegConfig configures the Federal Register document search.
type FedRegConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	PerPage int    `yaml:"per_page" mapstructure:"per_page"`
}

// PortalsConfig lists regulator websites scraped for announcements.
type PortalsConfig struct {
	URLs        []string `yaml:"urls" mapstructure:"urls"`
	UserAgent   string   `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerHost float64  `yaml:"rate_per_host" mapstructure:"rate_per_host"`
}

// PipelineConfig configures acquisition and filtering behavior.
type PipelineConfig struct {
	AcquireConcurrency int      `yaml:"acquire_concurrency" mapstructure:"acquire_concurrency"`
	AcquireTimeoutSecs int      `yaml:"acquire_timeout_secs" mapstructure:"acquire_timeout_secs"`
	RunTimeoutMins     int      `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
	MinContentLength   int      `yaml:"min_content_length" mapstructure:"min_content_length"`
	RelevanceThreshold float64  `yaml:"relevance_threshold" mapstructure:"relevance_threshold"`
	BlockedSources     []string `yaml:"blocked_sources" mapstructure:"blocked_sources"`
}

// AcquireTimeout returns the per-fetch timeout.
func (c PipelineConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutSecs) * time.Second
}

// RunTimeout returns the whole-run timeout.
func (c PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMins) * time.Minute
}

// RunnerConfig configures background execution of analyses.
type RunnerConfig struct {
	// Mode is local (in-process pool) or temporal.
	Mode          string `yaml:"mode" mapstructure:"mode"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// TemporalConfig holds Temporal connection settings.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// RedisConfig configures the pub/sub notification channel.
type RedisConfig struct {
	Addr          string `yaml:"addr" mapstructure:"addr"`
	Password      string `yaml:"password" mapstructure:"password"`
	DB            int    `yaml:"db" mapstructure:"db"`
	ChannelPrefix string `yaml:"channel_prefix" mapstructure:"channel_prefix"`
}

// WebhookConfig configures the HTTP notification channel.
type WebhookConfig struct {
	URL                 string `yaml:"url" mapstructure:"url"`
	TimeoutSecs         int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	QueueSize           int    `yaml:"queue_size" mapstructure:"queue_size"`
	DeliveryTimeoutSecs int    `yaml:"delivery_timeout_secs" mapstructure:"delivery_timeout_secs"`
}

// SchedulerConfig configures recurring analyses and retention.
type SchedulerConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs int  `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	RetentionDays     int  `yaml:"retention_days" mapstructure:"retention_days"`
}

// MonitoringConfig configures alerting on report outcomes. With
// FailStuckReports set, stuck reports are marked failed after alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StuckAfterMins       int     `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
	FailStuckReports     bool    `yaml:"fail_stuck_reports" mapstructure:"fail_stuck_reports"`
}

// ResilienceConfig configures circuit breakers and retries.
type ResilienceConfig struct {
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetTimeoutSecs int     `yaml:"circuit_reset_timeout_secs" mapstructure:"circuit_reset_timeout_secs"`
	RetryMaxAttempts        int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs   int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs       int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryJitterFraction     float64 `yaml:"retry_jitter_fraction" mapstructure:"retry_jitter_fraction"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REGINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("analyst.provider", "anthropic")
	v.SetDefault("analyst.batch_size", 5)
	v.SetDefault("analyst.max_individual_items", 10)
	v.SetDefault("analyst.concurrency", 3)
	v.SetDefault("analyst.timeout_secs", 60)
	v.SetDefault("analyst.max_content_chars", 2000)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")

	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.news_sites", []string{"reuters.com", "law360.com"})
	v.SetDefault("jina.legal_sites", []string{"eur-lex.europa.eu", "legislation.gov.uk", "law.cornell.edu"})
	v.SetDefault("jina.industry_sites", []string{"iapp.org", "compliance.com"})
	v.SetDefault("fedreg.enabled", true)
	v.SetDefault("fedreg.base_url", "https://www.federalregister.gov/api/v1")
	v.SetDefault("fedreg.per_page", 10)
	v.SetDefault("portals.urls", []string{
		"https://www.sec.gov/news/pressreleases",
		"https://www.fda.gov/news-events/fda-newsroom/press-announcements",
		"https://www.epa.gov/newsreleases",
		"https://www.osha.gov/news/newsreleases",
		"https://www.ftc.gov/news-events/news/press-releases",
		"https://www.fcc.gov/news-events/headlines",
	})
	v.SetDefault("portals.user_agent", "regintel/1.0")
	v.SetDefault("portals.rate_per_host", 2.0)

	v.SetDefault("pipeline.acquire_concurrency", 8)
	v.SetDefault("pipeline.acquire_timeout_secs", 30)
	v.SetDefault("pipeline.run_timeout_mins", 60)
	v.SetDefault("pipeline.min_content_length", 50)
	v.SetDefault("pipeline.relevance_threshold", 0.25)

	v.SetDefault("runner.mode", "local")
	v.SetDefault("runner.max_concurrent", 5)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "regintel-analysis")

	v.SetDefault("redis.channel_prefix", "regintel:reports")
	v.SetDefault("webhook.timeout_secs", 10)
	v.SetDefault("webhook.queue_size", 256)
	v.SetDefault("webhook.delivery_timeout_secs", 30)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.check_interval_secs", 300)
	v.SetDefault("scheduler.retention_days", 90)

	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stuck_after_mins", 90)
	v.SetDefault("monitoring.fail_stuck_reports", true)

	v.SetDefault("resilience.circuit_failure_threshold", 5)
	v.SetDefault("resilience.circuit_reset_timeout_secs", 60)
	v.SetDefault("resilience.retry_max_attempts", 3)
	v.SetDefault("resilience.retry_initial_backoff_ms", 500)
	v.SetDefault("resilience.retry_max_backoff_ms", 10000)
	v.SetDefault("resilience.retry_jitter_fraction", 0.25)
}

// Validate checks that the settings required by the given mode are present.
// Modes: "serve", "worker" and "cli".
func (c *Config) Validate(mode string) error {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	switch c.Analyst.Provider {
	case "anthropic", "gemini", "perplexity", "none", "":
	default:
		errs = append(errs, fmt.Sprintf("analyst.provider %q is not supported", c.Analyst.Provider))
	}
	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	case "worker":
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required")
		}
	}
	if c.Runner.Mode == "temporal" && c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
