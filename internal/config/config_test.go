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
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "shapefiles", cfg.Catalog.Root)
	assert.Equal(t, "https://deims.org", cfg.DEIMS.BaseURL)
	assert.Equal(t, "https://deims.org/geoserver/deims/ows", cfg.DEIMS.GeoserverURL)
	assert.Equal(t, 0, cfg.DEIMS.TimeoutSecs)
	assert.InDelta(t, 2.0, cfg.DEIMS.RatePerSec, 0.001)
	assert.Equal(t, 5, cfg.DEIMS.BreakerThreshold)
	assert.Equal(t, 30, cfg.DEIMS.BreakerCooldownSecs)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ledger.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
catalog:
  root: /data/shapefiles
store:
  driver: none
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/shapefiles", cfg.Catalog.Root)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "https://deims.org", cfg.DEIMS.BaseURL)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))
	t.Setenv("LTSER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LTSER_CATALOG_ROOT=/from/dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LTSER_CATALOG_ROOT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.Catalog.Root)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Catalog.Root = "shapefiles"
	cfg.DEIMS.BaseURL = "https://deims.org"
	cfg.DEIMS.GeoserverURL = "https://deims.org/geoserver/deims/ows"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "ledger.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateCatalog(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("catalog"))
}

func TestValidateCatalog_MissingRoot(t *testing.T) {
	cfg := validDefaults()
	cfg.Catalog.Root = ""

	err := cfg.Validate("catalog")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.root is required")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("catalog")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be one of")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err = cfg.Validate("catalog")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "none"
	assert.NoError(t, cfg.Validate("catalog"))
}

func TestValidateProvision_MissingRegistry(t *testing.T) {
	cfg := validDefaults()
	cfg.DEIMS.BaseURL = ""
	cfg.DEIMS.GeoserverURL = ""

	err := cfg.Validate("provision")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "deims.base_url is required")
	assert.Contains(t, err.Error(), "deims.geoserver_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateProvision_NegativeBreaker(t *testing.T) {
	cfg := validDefaults()
	cfg.DEIMS.BreakerThreshold = -1

	err := cfg.Validate("provision")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "deims.breaker_threshold")

	cfg.DEIMS.BreakerThreshold = 0
	assert.NoError(t, cfg.Validate("provision"))
}
