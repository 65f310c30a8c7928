package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://api.census.gov/data", cfg.Census.BaseURL)
	assert.Equal(t, 10, cfg.Census.MaxAttempts)
	assert.Equal(t, 120, cfg.Census.BackoffSecs)
	assert.Equal(t, 2000, cfg.Vintage.Source)
	assert.Equal(t, 2010, cfg.Vintage.Target)
	assert.Equal(t, 2010, cfg.Realloc.PassThroughFrom)
	assert.Equal(t, []int{2005, 2006, 2007, 2008, 2009}, cfg.Realloc.BypassYears)
	assert.Equal(t, 0, cfg.Dedupe.MaxGroupSize)
	assert.Equal(t, "crosswalk-cache.db", cfg.Cache.Path)
	assert.Equal(t, "demographics", cfg.Store.Table)
	assert.Equal(t, 4, cfg.Jobs.Concurrency)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Empty(t, cfg.Census.Key)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
realloc:
  pass_through_from: 2012
  bypass_years: [2007, 2008]
jobs:
  concurrency: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 2012, cfg.Realloc.PassThroughFrom)
	assert.Equal(t, []int{2007, 2008}, cfg.Realloc.BypassYears)
	assert.Equal(t, 2, cfg.Jobs.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Census.MaxAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
census:
  key: from-file
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CROSSWALK_LOG_LEVEL", "warn")
	t.Setenv("CROSSWALK_CENSUS_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Census.Key)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CROSSWALK_JOBS_CONCURRENCY", "9")
	t.Setenv("CROSSWALK_STORE_DATABASE_URL", "postgres://localhost/stats")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Jobs.Concurrency)
	assert.Equal(t, "postgres://localhost/stats", cfg.Store.DatabaseURL)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestRequireCensusKey(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireCensusKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "census.key is required")

	cfg.Census.Key = "abc"
	assert.NoError(t, cfg.RequireCensusKey())
}

func TestRequireDatabaseURL(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.RequireDatabaseURL())

	cfg.Store.DatabaseURL = "postgres://x"
	assert.NoError(t, cfg.RequireDatabaseURL())
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

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "verbose", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
