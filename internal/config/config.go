package config

import (
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
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the primary generator.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PerplexityConfig holds Perplexity API settings for the fallback generator.
type PerplexityConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EmbeddingsConfig holds Jina embeddings API settings.
type EmbeddingsConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	Model      string  `yaml:"model" mapstructure:"model"`
	Dimensions int     `yaml:"dimensions" mapstructure:"dimensions"`
	RateRPS    float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// PipelineConfig configures retrieval, validation, and generation behavior.
type PipelineConfig struct {
	TopK                  int      `yaml:"top_k" mapstructure:"top_k"`
	ValidationConcurrency int      `yaml:"validation_concurrency" mapstructure:"validation_concurrency"`
	StrictSimilarity      float64  `yaml:"strict_similarity" mapstructure:"strict_similarity"`
	ProviderOrder         []string `yaml:"provider_order" mapstructure:"provider_order"`
}

// ReviewConfig configures the human-review gate.
type ReviewConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	SLAHours            int     `yaml:"sla_hours" mapstructure:"sla_hours"`
	DefaultAssignee     string  `yaml:"default_assignee" mapstructure:"default_assignee"`
}

// SLA returns the review deadline window as a duration.
func (r ReviewConfig) SLA() time.Duration {
	return time.Duration(r.SLAHours) * time.Hour
}

// NotifyConfig holds Notion review-queue settings.
type NotifyConfig struct {
	NotionToken string `yaml:"notion_token" mapstructure:"notion_token"`
	ReviewDB    string `yaml:"review_db" mapstructure:"review_db"`
}

// IngestConfig configures source seeding.
type IngestConfig struct {
	FetchTimeoutSecs int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	FetchRPS         float64 `yaml:"fetch_rps" mapstructure:"fetch_rps"`
	EmbedBatchSize   int     `yaml:"embed_batch_size" mapstructure:"embed_batch_size"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields required by the given mode. Modes correspond
// to the top-level commands: "ask", "seed", "review", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Pipeline.TopK >= 1, "pipeline.top_k must be >= 1")
	check(c.Pipeline.ValidationConcurrency >= 1 && c.Pipeline.ValidationConcurrency <= 32,
		"pipeline.validation_concurrency must be between 1 and 32")
	check(c.Pipeline.StrictSimilarity >= 0 && c.Pipeline.StrictSimilarity <= 1,
		"pipeline.strict_similarity must be between 0 and 1")
	check(c.Review.ConfidenceThreshold >= 0 && c.Review.ConfidenceThreshold <= 100,
		"review.confidence_threshold must be between 0 and 100")

	needsStore := func() { check(c.Store.DatabaseURL != "", "store.database_url is required") }
	needsProviders := func() {
		check(c.Anthropic.Key != "" || c.Perplexity.Key != "", "anthropic.key or perplexity.key is required")
		check(c.Embeddings.Key != "", "embeddings.key is required")
	}

	switch mode {
	case "ask":
		needsStore()
		needsProviders()
	case "seed":
		needsStore()
		check(c.Embeddings.Key != "", "embeddings.key is required")
	case "review":
		needsStore()
	case "serve":
		needsStore()
		needsProviders()
		check(c.Server.Port > 0, "server.port must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.veritas")
	v.AddConfigPath("/etc/veritas")

	// Environment
	v.SetEnvPrefix("VERITAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.timeout_secs", 60)
	v.SetDefault("embeddings.base_url", "https://api.jina.ai")
	v.SetDefault("embeddings.model", "jina-embeddings-v3")
	v.SetDefault("embeddings.dimensions", 1024)
	v.SetDefault("embeddings.rate_rps", 3)
	v.SetDefault("pipeline.top_k", 5)
	v.SetDefault("pipeline.validation_concurrency", 4)
	v.SetDefault("pipeline.strict_similarity", 0.8)
	v.SetDefault("pipeline.provider_order", []string{"anthropic", "perplexity"})
	v.SetDefault("review.confidence_threshold", 75)
	v.SetDefault("review.sla_hours", 24)
	v.SetDefault("ingest.fetch_timeout_secs", 30)
	v.SetDefault("ingest.fetch_rps", 2)
	v.SetDefault("ingest.embed_batch_size", 16)

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
