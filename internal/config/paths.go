package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the single source of truth for every file path the application
// touches. The layout mirrors the persisted analysis tree:
//
//	data/
//	  ├── master_data.csv          (canonical constituent master table)
//	  ├── daily_data.csv           (index daily OHLC series)
//	  ├── stock_prices/
//	  │     └── all_stock_prices.csv
//	  └── contributions/
//	        ├── stock_contributions.csv
//	        ├── sector_contributions.csv
//	        └── industry_contributions.csv
type Paths struct {
	DataDir          string
	StockPricesDir   string
	ContributionsDir string
	LogsDir          string

	MasterCSV          string
	DailyIndexCSV      string
	StockPricesCSV     string
	StockContribCSV    string
	SectorContribCSV   string
	IndustryContribCSV string
}

// NewPaths builds the path set rooted at the given data directory.
func NewPaths(dataDir string) *Paths {
	stockPricesDir := filepath.Join(dataDir, "stock_prices")
	contributionsDir := filepath.Join(dataDir, "contributions")
	return &Paths{
		DataDir:          dataDir,
		StockPricesDir:   stockPricesDir,
		ContributionsDir: contributionsDir,
		LogsDir:          filepath.Join(filepath.Dir(dataDir), "logs"),

		MasterCSV:          filepath.Join(dataDir, "master_data.csv"),
		DailyIndexCSV:      filepath.Join(dataDir, "daily_data.csv"),
		StockPricesCSV:     filepath.Join(stockPricesDir, "all_stock_prices.csv"),
		StockContribCSV:    filepath.Join(contributionsDir, "stock_contributions.csv"),
		SectorContribCSV:   filepath.Join(contributionsDir, "sector_contributions.csv"),
		IndustryContribCSV: filepath.Join(contributionsDir, "industry_contributions.csv"),
	}
}

// GetPaths resolves the path set from configuration. An explicit data_dir
// wins; otherwise the data directory sits next to the executable, never
// relative to the working directory, so the tool behaves the same wherever
// it is launched from.
func GetPaths(cfg *Config) (*Paths, error) {
	if cfg != nil && cfg.Paths.DataDir != "" {
		return NewPaths(cfg.Paths.DataDir), nil
	}
	exeDir, err := executableDir()
	if err != nil {
		return nil, err
	}
	return NewPaths(filepath.Join(exeDir, "data")), nil
}

// EnsureDirs creates the directory tree if missing.
func (p *Paths) EnsureDirs() error {
	for _, dir := range []string{p.DataDir, p.StockPricesDir, p.ContributionsDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	return filepath.Dir(exe), nil
}
