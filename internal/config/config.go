// Package config loads application settings from file and environment
// and wires the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scienceon/tutor-batch/internal/pipeline"
	"github.com/scienceon/tutor-batch/internal/scheduler"
	"github.com/scienceon/tutor-batch/internal/scorer"
	"github.com/scienceon/tutor-batch/internal/server"
	"github.com/scienceon/tutor-batch/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     store.Config            `yaml:"store" mapstructure:"store"`
	Indices   IndicesConfig           `yaml:"indices" mapstructure:"indices"`
	Clova     ClovaConfig             `yaml:"clova" mapstructure:"clova"`
	Assets    AssetsConfig            `yaml:"assets" mapstructure:"assets"`
	Batch     pipeline.Config         `yaml:"batch" mapstructure:"batch"`
	Scorer    scorer.Config           `yaml:"scorer" mapstructure:"scorer"`
	Scheduler scheduler.RunnerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Election  scheduler.ElectorConfig `yaml:"election" mapstructure:"election"`
	Server    server.Config           `yaml:"server" mapstructure:"server"`
	Log       LogConfig               `yaml:"log" mapstructure:"log"`
}

// IndicesConfig names every index the batch touches.
type IndicesConfig struct {
	Header   string `yaml:"header" mapstructure:"header"`
	Layout   string `yaml:"layout" mapstructure:"layout"`
	Analysis string `yaml:"analysis" mapstructure:"analysis"`
	Result   string `yaml:"result" mapstructure:"result"`
	Error    string `yaml:"error" mapstructure:"error"`
}

// ClovaConfig holds the LLM API settings.
type ClovaConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TokenURL    string  `yaml:"token_url" mapstructure:"token_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	TopP        float64 `yaml:"top_p" mapstructure:"top_p"`
}

// AssetsConfig holds the bases answer asset paths are resolved against.
type AssetsConfig struct {
	UploadBaseURL string `yaml:"upload_base_url" mapstructure:"upload_base_url"`
	FileBaseURL   string `yaml:"file_base_url" mapstructure:"file_base_url"`
	MaxTableLines int    `yaml:"max_table_lines" mapstructure:"max_table_lines"`
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
	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.addresses", []string{"http://localhost:9200"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("indices.header", "science-tutor-rptc-info")
	v.SetDefault("indices.layout", "science-tutor-rptc-detail")
	v.SetDefault("indices.analysis", "science-tutor-anals-detail")
	v.SetDefault("indices.result", "science-tutor-result")
	v.SetDefault("indices.error", "science-tutor-error")
	// index name carried over from the live cluster, typo included
	v.SetDefault("election.index", "schduler-tutor-ai")
	v.SetDefault("election.settle_delay", scheduler.DefaultSettleDelay)
	v.SetDefault("scheduler.cron", "0 3 * * *")
	v.SetDefault("scheduler.misfire_grace", scheduler.DefaultMisfireGrace)
	v.SetDefault("batch.concurrency", pipeline.DefaultConcurrency)
	retry := scorer.DefaultConfig()
	v.SetDefault("scorer.max_qpm_retries", retry.MaxQPMRetries)
	v.SetDefault("scorer.base_backoff", retry.BaseBackoff)
	v.SetDefault("scorer.max_tpm_retries", retry.MaxTPMRetries)
	v.SetDefault("scorer.tpm_fallback_wait", retry.TPMFallbackWait)
	v.SetDefault("scorer.prior_window", retry.PriorWindow)
	v.SetDefault("clova.base_url", "https://clovastudio.stream.ntruss.com/testapp/v3/chat-completions")
	v.SetDefault("clova.token_url", "https://clovastudio.stream.ntruss.com/v3/api-tools/chat-tokenize")
	v.SetDefault("clova.model", "HCX-005")
	v.SetDefault("clova.max_tokens", 500)
	v.SetDefault("clova.temperature", 0.8)
	v.SetDefault("clova.top_p", 0.8)
	v.SetDefault("assets.max_table_lines", 30)

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

	// handlers and the pipeline read the same result index
	cfg.Batch.ResultIndex = cfg.Indices.Result
	cfg.Batch.ErrorIndex = cfg.Indices.Error
	cfg.Server.ResultIndex = cfg.Indices.Result

	return &cfg, nil
}

// Validate checks the fields the given mode depends on; mode is "serve"
// or "batch". Problems are collected so one run reports them all.
func (c *Config) Validate(mode string) error {
	if mode != "serve" && mode != "batch" {
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string
	if len(c.Store.Addresses) == 0 {
		problems = append(problems, "store.addresses is required")
	}
	if c.Clova.Key == "" {
		problems = append(problems, "clova.key is required")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		problems = append(problems, "batch.concurrency must be between 1 and 50")
	}
	if mode == "serve" {
		if c.Server.Addr == "" {
			problems = append(problems, "server.addr is required")
		}
		// An empty cron disables scheduling; the replica serves HTTP only.
		if c.Scheduler.Cron != "" {
			if _, err := scheduler.ParseCron(c.Scheduler.Cron); err != nil {
				problems = append(problems, "scheduler.cron is not a valid 5-field expression")
			}
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
