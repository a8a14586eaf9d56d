// Package exporter persists analysis results as delimited text. Output is
// always UTF-8 regardless of the encoding the inputs arrived in.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"nikkeicli/internal/dataprocessing"
)

// CSVWriter provides CSV export functionality.
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance.
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger.With(slog.String("component", "csv_writer"))}
}

// WriteOptions configures CSV writing behavior.
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // add a UTF-8 BOM for Excel compatibility
}

// WriteCSV writes data to a CSV file, creating parent directories as needed.
// The file is truncated: callers own merge semantics (upsert happens in the
// time-series table, not here).
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if options.BOMPrefix {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv writer error: %w", err)
	}

	w.logger.Debug("CSV file written",
		slog.String("path", filePath),
		slog.Int("records", len(options.Records)))
	return nil
}

// WriteTimeSeries persists a date-indexed table, dates ascending, absent
// cells as empty fields.
func (w *CSVWriter) WriteTimeSeries(filePath string, table *dataprocessing.TimeSeriesTable) error {
	return w.WriteCSV(filePath, WriteOptions{
		Headers: table.Headers(),
		Records: table.CSVRecords(),
	})
}
