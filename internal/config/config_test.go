package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NK_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10.0, cfg.Fetch.RequestsPerSecond)
	assert.Contains(t, cfg.Fetch.MasterURL, "price_adjustment_factor")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("NK_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("NK_SERVER_PORT", "9000")
	t.Setenv("NK_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nikkeicli.yaml")
	content := "server:\n  port: 9100\npaths:\n  data_dir: " + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	t.Setenv("NK_CONFIG_FILE", file)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Paths.DataDir)
}

func TestLoad_FileWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nikkeicli.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 9100\n"), 0644))
	t.Setenv("NK_CONFIG_FILE", file)
	t.Setenv("NK_SERVER_PORT", "9000")
	t.Setenv("NK_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	// The file sets the port, so it beats the environment; the level is
	// absent from the file and keeps its env value.
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("NK_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("NK_SERVER_PORT", "-1")

	_, err := Load()
	assert.Error(t, err)
}

func TestPaths_Layout(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	paths := NewPaths(dataDir)

	assert.Equal(t, filepath.Join(dataDir, "master_data.csv"), paths.MasterCSV)
	assert.Equal(t, filepath.Join(dataDir, "stock_prices", "all_stock_prices.csv"), paths.StockPricesCSV)
	assert.Equal(t, filepath.Join(dataDir, "contributions", "sector_contributions.csv"), paths.SectorContribCSV)

	require.NoError(t, paths.EnsureDirs())
	info, err := os.Stat(paths.ContributionsDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetPaths_ExplicitDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "custom")
	cfg := &Config{}
	cfg.Paths.DataDir = dataDir

	paths, err := GetPaths(cfg)
	require.NoError(t, err)
	assert.Equal(t, dataDir, paths.DataDir)
}
