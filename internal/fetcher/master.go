package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"nikkeicli/internal/config"
	"nikkeicli/internal/dataprocessing"
	"nikkeicli/internal/exporter"
	"nikkeicli/pkg/contracts/domain"
)

// masterHeaders is the canonical header row of the master table this tool
// writes. Downstream loaders accept both these and the provider's Japanese
// originals.
var masterHeaders = []string{"Code", "Name", "AdjustmentFactor", "Sector", "Industry"}

// MasterDownloader refreshes the constituent master table from the
// provider's published price-adjustment-factor CSV.
type MasterDownloader struct {
	client    *http.Client
	url       string
	userAgent string
	paths     *config.Paths
	csvWriter *exporter.CSVWriter
	logger    *slog.Logger
}

// NewMasterDownloader creates a master-table downloader.
func NewMasterDownloader(client *http.Client, url, userAgent string, paths *config.Paths, logger *slog.Logger) *MasterDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &MasterDownloader{
		client:    client,
		url:       url,
		userAgent: userAgent,
		paths:     paths,
		csvWriter: exporter.NewCSVWriter(logger),
		logger:    logger.With(slog.String("component", "master_downloader")),
	}
}

// Download fetches the published factor CSV, decodes it through the
// multi-encoding loader, and writes the canonical UTF-8 master table.
// Rows that fail canonicalization are dropped, not fatal.
func (d *MasterDownloader) Download(ctx context.Context) error {
	body, err := get(ctx, d.client, d.url, d.userAgent)
	if err != nil {
		return fmt.Errorf("failed to download master data: %w", err)
	}

	// Keep the raw provider export beside the canonical table; the exact
	// bytes are useful when a decode regression needs diagnosing.
	rawPath := filepath.Join(d.paths.DataDir, "price_adjustment_factor.csv")
	if err := os.MkdirAll(d.paths.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(rawPath, body, 0644); err != nil {
		return fmt.Errorf("failed to save raw master data: %w", err)
	}

	table, err := dataprocessing.LoadTable(rawPath, dataprocessing.LoadOptions{})
	if err != nil {
		return fmt.Errorf("failed to decode master data: %w", err)
	}

	constituents := dataprocessing.BuildConstituents(table)
	if len(constituents) == 0 {
		return fmt.Errorf("master data contained no usable constituents")
	}

	records := make([][]string, 0, len(constituents))
	for _, c := range constituents {
		records = append(records, []string{
			c.Code,
			c.Name,
			strconv.FormatFloat(c.AdjustmentFactor, 'f', -1, 64),
			c.Sector,
			c.Industry,
		})
	}
	if err := d.csvWriter.WriteCSV(d.paths.MasterCSV, exporter.WriteOptions{
		Headers: masterHeaders,
		Records: records,
	}); err != nil {
		return fmt.Errorf("failed to write master table: %w", err)
	}

	d.logger.Info("master table refreshed",
		slog.String("source_encoding", table.Encoding),
		slog.Int("constituents", len(constituents)))
	return nil
}

// LoadConstituents reads the persisted master table.
func LoadConstituents(paths *config.Paths) ([]domain.Constituent, error) {
	table, err := dataprocessing.LoadTable(paths.MasterCSV, dataprocessing.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load master table: %w", err)
	}
	constituents := dataprocessing.BuildConstituents(table)
	if len(constituents) == 0 {
		return nil, fmt.Errorf("master table %s has no usable constituents", paths.MasterCSV)
	}
	return constituents, nil
}
