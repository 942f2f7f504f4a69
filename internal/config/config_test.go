package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Store.Addresses)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "science-tutor-rptc-info", cfg.Indices.Header)
	assert.Equal(t, "science-tutor-rptc-detail", cfg.Indices.Layout)
	assert.Equal(t, "science-tutor-anals-detail", cfg.Indices.Analysis)
	assert.Equal(t, "science-tutor-result", cfg.Indices.Result)
	assert.Equal(t, "science-tutor-error", cfg.Indices.Error)
	assert.Equal(t, "schduler-tutor-ai", cfg.Election.Index)
	assert.Equal(t, 10*time.Second, cfg.Election.SettleDelay)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 300*time.Second, cfg.Scheduler.MisfireGrace)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.Equal(t, 5, cfg.Scorer.MaxQPMRetries)
	assert.Equal(t, 2*time.Second, cfg.Scorer.BaseBackoff)
	assert.Equal(t, 4, cfg.Scorer.MaxTPMRetries)
	assert.Equal(t, 60*time.Second, cfg.Scorer.TPMFallbackWait)
	assert.Equal(t, 2, cfg.Scorer.PriorWindow)
	assert.Equal(t, "https://clovastudio.stream.ntruss.com/testapp/v3/chat-completions", cfg.Clova.BaseURL)
	assert.Equal(t, "https://clovastudio.stream.ntruss.com/v3/api-tools/chat-tokenize", cfg.Clova.TokenURL)
	assert.Equal(t, "HCX-005", cfg.Clova.Model)
	assert.Equal(t, 500, cfg.Clova.MaxTokens)
	assert.InDelta(t, 0.8, cfg.Clova.Temperature, 0.001)
	assert.InDelta(t, 0.8, cfg.Clova.TopP, 0.001)
	assert.Equal(t, 30, cfg.Assets.MaxTableLines)

	// derived index wiring
	assert.Equal(t, cfg.Indices.Result, cfg.Batch.ResultIndex)
	assert.Equal(t, cfg.Indices.Error, cfg.Batch.ErrorIndex)
	assert.Equal(t, cfg.Indices.Result, cfg.Server.ResultIndex)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  addresses: ["http://es1:9200", "http://es2:9200"]
log:
  level: debug
  format: console
server:
  addr: ":9090"
batch:
  concurrency: 10
indices:
  result: custom-result
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Store.Addresses)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Batch.Concurrency)
	assert.Equal(t, "custom-result", cfg.Batch.ResultIndex)
	assert.Equal(t, "custom-result", cfg.Server.ResultIndex)
	// Defaults still apply for unset values
	assert.Equal(t, "HCX-005", cfg.Clova.Model)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
log:
  level: debug
clova:
  model: HCX-003
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TUTOR_LOG_LEVEL", "warn")
	t.Setenv("TUTOR_CLOVA_MODEL", "HCX-007")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "HCX-007", cfg.Clova.Model)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("TUTOR_SERVER_ADDR", ":3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Addr)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation in both modes.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Addresses = []string{"http://localhost:9200"}
	cfg.Clova.Key = "nv-key"
	cfg.Batch.Concurrency = 5
	cfg.Server.Addr = ":8000"
	cfg.Scheduler.Cron = "0 3 * * *"
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := &Config{}
	cfg.Scheduler.Cron = "0 3 * * *"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.addresses is required")
	assert.Contains(t, err.Error(), "clova.key is required")
	assert.Contains(t, err.Error(), "server.addr is required")
}

func TestValidateServe_BadCron(t *testing.T) {
	cfg := validDefaults()
	cfg.Scheduler.Cron = "every day at three"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.cron")
}

func TestValidateServe_EmptyCronIsValid(t *testing.T) {
	cfg := validDefaults()
	cfg.Scheduler.Cron = ""

	// An empty cron means the replica serves HTTP without scheduling.
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateBatch_IgnoresServeFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Addr = ""
	cfg.Scheduler.Cron = ""

	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 50")

	cfg.Batch.Concurrency = 51
	err = cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 50")

	cfg.Batch.Concurrency = 50
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
