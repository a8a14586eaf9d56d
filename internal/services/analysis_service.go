package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nikkeicli/internal/config"
	"nikkeicli/internal/dataprocessing"
	"nikkeicli/internal/exporter"
	"nikkeicli/pkg/contracts/domain"
)

// Sentinel errors surfaced to the transport layer, which maps them onto the
// API error envelope.
var (
	ErrAnalysisRunning = errors.New("analysis already running")
	ErrNoSnapshot      = errors.New("no analysis data available")
	ErrNoObservations  = errors.New("no price observations available")
	ErrNoIndexChange   = errors.New("no index change available")
)

// RunState is the analysis run-state flag. Single writer: concurrent runs
// against the same data tree are refused, not queued.
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
)

// QuoteSource supplies live per-constituent quotes.
type QuoteSource interface {
	FetchAll(ctx context.Context, codes []string) (map[string]domain.Quote, error)
}

// IndexSource supplies the index's own live quote.
type IndexSource interface {
	Fetch(ctx context.Context) (*domain.IndexQuote, error)
}

// MasterSource refreshes the persisted constituent master table.
type MasterSource interface {
	Download(ctx context.Context) error
}

// ConstituentLoader reads the persisted master table.
type ConstituentLoader func(paths *config.Paths) ([]domain.Constituent, error)

// Status reports the service's run state for the dashboard.
type Status struct {
	State      RunState   `json:"state"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// AnalysisService orchestrates one analysis at a time: acquire inputs,
// compute contributions, aggregate, persist, publish a snapshot.
type AnalysisService struct {
	paths        *config.Paths
	master       MasterSource
	quotes       QuoteSource
	index        IndexSource
	constituents ConstituentLoader
	calculator   *dataprocessing.Calculator
	csvWriter    *exporter.CSVWriter
	metrics      *Metrics
	logger       *slog.Logger

	mu         sync.Mutex
	state      RunState
	latest     *domain.Snapshot
	lastRunID  string
	lastUpdate time.Time
}

// NewAnalysisService creates the orchestration service.
func NewAnalysisService(paths *config.Paths, master MasterSource, quotes QuoteSource, index IndexSource,
	constituents ConstituentLoader, metrics *Metrics, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		paths:        paths,
		master:       master,
		quotes:       quotes,
		index:        index,
		constituents: constituents,
		calculator:   dataprocessing.NewCalculator(logger),
		csvWriter:    exporter.NewCSVWriter(logger),
		metrics:      metrics,
		logger:       logger.With(slog.String("component", "analysis_service")),
		state:        RunStateIdle,
	}
}

// Status returns the current run state.
func (s *AnalysisService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, LastRunID: s.lastRunID}
	if !s.lastUpdate.IsZero() {
		t := s.lastUpdate
		st.LastUpdate = &t
	}
	return st
}

// Latest returns the most recent snapshot, or ErrNoSnapshot when no run has
// completed yet.
func (s *AnalysisService) Latest() (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, ErrNoSnapshot
	}
	return s.latest, nil
}

// Movers returns the top gainers and losers by contribution from the latest
// snapshot. Entries are already sorted by value descending.
func (s *AnalysisService) Movers(limit int) (gainers, losers []domain.ContributionEntry, err error) {
	snapshot, err := s.Latest()
	if err != nil {
		return nil, nil, err
	}
	for _, e := range snapshot.Stocks {
		if e.Value > 0 && len(gainers) < limit {
			gainers = append(gainers, e)
		}
	}
	for i := len(snapshot.Stocks) - 1; i >= 0 && len(losers) < limit; i-- {
		if snapshot.Stocks[i].Value < 0 {
			losers = append(losers, snapshot.Stocks[i])
		}
	}
	return gainers, losers, nil
}

// begin transitions idle → running; a second concurrent run is refused.
func (s *AnalysisService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == RunStateRunning {
		return ErrAnalysisRunning
	}
	s.state = RunStateRunning
	return nil
}

func (s *AnalysisService) end() {
	s.mu.Lock()
	s.state = RunStateIdle
	s.mu.Unlock()
}

func (s *AnalysisService) publish(snapshot *domain.Snapshot) {
	s.mu.Lock()
	s.latest = snapshot
	s.lastRunID = snapshot.RunID
	s.lastUpdate = snapshot.GeneratedAt
	s.mu.Unlock()
}

// RunRealtime performs one live analysis: refresh master data, fetch
// quotes and the index level, attribute today's index change, persist, and
// publish the snapshot.
func (s *AnalysisService) RunRealtime(ctx context.Context) (*domain.Snapshot, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID), slog.String("mode", "realtime"))
	start := time.Now()

	snapshot, err := s.runRealtime(ctx, runID, logger)
	s.observeRun(start, err)
	if err != nil {
		logger.Error("analysis run failed", slog.String("error", err.Error()))
		return nil, err
	}

	s.publish(snapshot)
	logger.Info("analysis run completed",
		slog.Int("constituents", len(snapshot.Stocks)),
		slog.Float64("index_change", snapshot.IndexChange),
		slog.Duration("elapsed", time.Since(start)))
	return snapshot, nil
}

func (s *AnalysisService) runRealtime(ctx context.Context, runID string, logger *slog.Logger) (*domain.Snapshot, error) {
	// A failed master refresh is tolerated when a previously persisted
	// master table exists; the constituent list just ages one day.
	if err := s.master.Download(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("master refresh failed, using persisted master table",
			slog.String("error", err.Error()))
	}

	constituents, err := s.constituents(s.paths)
	if err != nil {
		return nil, err
	}
	factors, categories, names, codes := indexConstituents(constituents)

	quotes, err := s.quotes.FetchAll(ctx, codes)
	if err != nil {
		return nil, err
	}

	indexQuote, err := s.index.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIndexChange, err)
	}

	today := dataprocessing.Day(time.Now())
	changes := dataprocessing.NewTimeSeriesTable()
	closes := make(map[string]float64, len(quotes))
	changeRow := make(map[string]float64)
	for code, q := range quotes {
		closes[code] = q.CurrentPrice
		if q.HasChange {
			changeRow[code] = q.Change
		}
	}
	if len(changeRow) == 0 {
		return nil, ErrNoObservations
	}
	changes.Upsert(today, changeRow)
	if s.metrics != nil {
		s.metrics.ConstituentsResolved.Set(float64(len(changeRow)))
	}

	contributions := s.calculator.Compute(changes, factors,
		map[time.Time]float64{today: indexQuote.Change})
	sectors, industries := dataprocessing.AggregateByCategory(contributions, categories)

	// Persist this period into the three contribution stores plus the close
	// price and index daily series the batch mode consumes.
	if err := s.upsertPeriod(contributions, today, s.paths.StockContribCSV); err != nil {
		return nil, err
	}
	if err := s.upsertPeriod(sectors, today, s.paths.SectorContribCSV); err != nil {
		return nil, err
	}
	if err := s.upsertPeriod(industries, today, s.paths.IndustryContribCSV); err != nil {
		return nil, err
	}
	if err := s.upsertRow(s.paths.StockPricesCSV, today, closes); err != nil {
		return nil, err
	}
	if err := s.upsertRow(s.paths.DailyIndexCSV, today, map[string]float64{
		"Open": indexQuote.Open, "High": indexQuote.High,
		"Low": indexQuote.Low, "Close": indexQuote.CurrentPrice,
	}); err != nil {
		return nil, err
	}

	return buildSnapshot(runID, today, indexQuote.Change, contributions, sectors, industries, names), nil
}

// RunBatch recomputes contributions over the whole persisted history:
// price changes come from differencing consecutive closes, index changes
// from differencing the index daily series.
func (s *AnalysisService) RunBatch(ctx context.Context) (*domain.Snapshot, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID), slog.String("mode", "batch"))
	start := time.Now()

	snapshot, err := s.runBatch(ctx, runID)
	s.observeRun(start, err)
	if err != nil {
		logger.Error("analysis run failed", slog.String("error", err.Error()))
		return nil, err
	}

	s.publish(snapshot)
	logger.Info("analysis run completed",
		slog.Time("period", snapshot.Period),
		slog.Duration("elapsed", time.Since(start)))
	return snapshot, nil
}

func (s *AnalysisService) runBatch(ctx context.Context, runID string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	constituents, err := s.constituents(s.paths)
	if err != nil {
		return nil, err
	}
	factors, categories, names, _ := indexConstituents(constituents)

	prices, err := loadTimeSeries(s.paths.StockPricesCSV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoObservations, err)
	}
	indexDaily, err := loadTimeSeries(s.paths.DailyIndexCSV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIndexChange, err)
	}

	indexChanges := indexChangesFrom(indexDaily)
	if len(indexChanges) == 0 {
		return nil, ErrNoIndexChange
	}
	priceChanges := prices.Diff()
	if priceChanges.Len() == 0 {
		return nil, ErrNoObservations
	}

	contributions := s.calculator.Compute(priceChanges, factors, indexChanges)
	if contributions.Len() == 0 {
		return nil, fmt.Errorf("%w: no period has both price and index changes", ErrNoIndexChange)
	}
	sectors, industries := dataprocessing.AggregateByCategory(contributions, categories)

	if err := s.csvWriter.WriteTimeSeries(s.paths.StockContribCSV, contributions); err != nil {
		return nil, err
	}
	if err := s.csvWriter.WriteTimeSeries(s.paths.SectorContribCSV, sectors); err != nil {
		return nil, err
	}
	if err := s.csvWriter.WriteTimeSeries(s.paths.IndustryContribCSV, industries); err != nil {
		return nil, err
	}

	dates := contributions.Dates()
	last := dates[len(dates)-1]
	return buildSnapshot(runID, last, indexChanges[last], contributions, sectors, industries, names), nil
}

func (s *AnalysisService) observeRun(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.RunsTotal.WithLabelValues("failure").Inc()
		return
	}
	s.metrics.RunsTotal.WithLabelValues("success").Inc()
	s.metrics.LastRunTimestamp.SetToCurrentTime()
}

// upsertPeriod merges one period from a freshly computed table into the
// persisted table at path.
func (s *AnalysisService) upsertPeriod(computed *dataprocessing.TimeSeriesTable, period time.Time, path string) error {
	row, ok := computed.Row(period)
	if !ok {
		row = map[string]float64{}
	}
	return s.upsertRow(path, period, row)
}

// upsertRow loads the persisted series (if any), replaces or inserts the
// period's row, and writes the series back. Re-running the analysis for the
// same day therefore never duplicates rows.
func (s *AnalysisService) upsertRow(path string, period time.Time, row map[string]float64) error {
	table := dataprocessing.NewTimeSeriesTable()
	if _, err := os.Stat(path); err == nil {
		existing, err := loadTimeSeries(path)
		if err != nil {
			return fmt.Errorf("failed to load existing series %s: %w", path, err)
		}
		table = existing
	}
	table.Upsert(period, row)
	return s.csvWriter.WriteTimeSeries(path, table)
}

// dateColumnAliases covers our canonical files and the provider's daily
// export, whose index column is Japanese.
var dateColumnAliases = []string{"Date", "データ日付"}

func loadTimeSeries(path string) (*dataprocessing.TimeSeriesTable, error) {
	table, err := dataprocessing.LoadTable(path, dataprocessing.LoadOptions{})
	if err != nil {
		return nil, err
	}
	dateCol := ""
	if idx := table.ColumnAny(dateColumnAliases...); idx != -1 {
		dateCol = table.Headers[idx]
	} else {
		return nil, fmt.Errorf("no date column in %s", path)
	}
	return dataprocessing.TimeSeriesFromTable(table, dateCol)
}

// indexChangesFrom derives per-period index changes by differencing
// consecutive closes of the index daily series.
func indexChangesFrom(indexDaily *dataprocessing.TimeSeriesTable) map[time.Time]float64 {
	closeCol := ""
	for _, candidate := range []string{"Close", "終値"} {
		for _, col := range indexDaily.Columns() {
			if col == candidate {
				closeCol = col
				break
			}
		}
		if closeCol != "" {
			break
		}
	}
	if closeCol == "" {
		return nil
	}

	changes := make(map[time.Time]float64)
	diff := indexDaily.Diff()
	for _, date := range diff.Dates() {
		if v, ok := diff.Value(date, closeCol); ok {
			changes[date] = v
		}
	}
	return changes
}

// indexConstituents explodes the constituent list into the lookup maps the
// computation core consumes.
func indexConstituents(constituents []domain.Constituent) (factors map[string]float64, categories map[string]domain.Category, names map[string]string, codes []string) {
	factors = make(map[string]float64, len(constituents))
	categories = make(map[string]domain.Category, len(constituents))
	names = make(map[string]string, len(constituents))
	codes = make([]string, 0, len(constituents))
	for _, c := range constituents {
		factors[c.Code] = c.AdjustmentFactor
		categories[c.Code] = domain.Category{Sector: c.Sector, Industry: c.Industry}
		names[c.Code] = c.Name
		codes = append(codes, c.Code)
	}
	sort.Strings(codes)
	return factors, categories, names, codes
}

func buildSnapshot(runID string, period time.Time, indexChange float64,
	contributions, sectors, industries *dataprocessing.TimeSeriesTable, names map[string]string) *domain.Snapshot {

	snapshot := &domain.Snapshot{
		RunID:       runID,
		Period:      period,
		GeneratedAt: time.Now(),
		IndexChange: indexChange,
	}

	if row, ok := contributions.Row(period); ok {
		for code, value := range row {
			snapshot.Stocks = append(snapshot.Stocks, domain.ContributionEntry{
				Code:  code,
				Name:  names[code],
				Value: value,
			})
		}
		sort.Slice(snapshot.Stocks, func(i, j int) bool {
			if snapshot.Stocks[i].Value != snapshot.Stocks[j].Value {
				return snapshot.Stocks[i].Value > snapshot.Stocks[j].Value
			}
			return snapshot.Stocks[i].Code < snapshot.Stocks[j].Code
		})
	}
	snapshot.Sectors = categoryEntries(sectors, period)
	snapshot.Industries = categoryEntries(industries, period)
	return snapshot
}

func categoryEntries(table *dataprocessing.TimeSeriesTable, period time.Time) []domain.CategoryEntry {
	row, ok := table.Row(period)
	if !ok {
		return nil
	}
	entries := make([]domain.CategoryEntry, 0, len(row))
	for label, value := range row {
		entries = append(entries, domain.CategoryEntry{Label: label, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Label < entries[j].Label
	})
	return entries
}
