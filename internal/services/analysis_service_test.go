package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikkeicli/internal/config"
	"nikkeicli/internal/dataprocessing"
	"nikkeicli/internal/exporter"
	"nikkeicli/pkg/contracts/domain"
)

type stubMaster struct {
	err   error
	calls int
}

func (m *stubMaster) Download(ctx context.Context) error {
	m.calls++
	return m.err
}

type stubQuotes struct {
	quotes  map[string]domain.Quote
	err     error
	release chan struct{}
}

func (q *stubQuotes) FetchAll(ctx context.Context, codes []string) (map[string]domain.Quote, error) {
	if q.release != nil {
		select {
		case <-q.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return q.quotes, q.err
}

type stubIndex struct {
	quote *domain.IndexQuote
	err   error
}

func (i *stubIndex) Fetch(ctx context.Context) (*domain.IndexQuote, error) {
	return i.quote, i.err
}

func testConstituents() []domain.Constituent {
	return []domain.Constituent{
		{Code: "6758", Name: "Sony Group", AdjustmentFactor: 1.0, Sector: "Technology", Industry: "Electric Machinery"},
		{Code: "7203", Name: "Toyota Motor", AdjustmentFactor: 1.0, Sector: "Consumer Goods", Industry: "Automotive"},
		{Code: "9984", Name: "SoftBank Group", AdjustmentFactor: 1.0, Sector: "Technology", Industry: "Communications"},
	}
}

func staticLoader(constituents []domain.Constituent) ConstituentLoader {
	return func(*config.Paths) ([]domain.Constituent, error) {
		return constituents, nil
	}
}

func testQuotes() map[string]domain.Quote {
	now := time.Now()
	return map[string]domain.Quote{
		"7203": {Code: "7203", CurrentPrice: 2600, PrevClose: 2500, Change: 100, HasChange: true, FetchedAt: now},
		"9984": {Code: "9984", CurrentPrice: 8100, PrevClose: 8000, Change: 100, HasChange: true, FetchedAt: now},
		"6758": {Code: "6758", CurrentPrice: 12900, PrevClose: 13000, Change: -100, HasChange: true, FetchedAt: now},
	}
}

func testIndexQuote() *domain.IndexQuote {
	return &domain.IndexQuote{
		CurrentPrice: 39100, PrevClose: 39000,
		Open: 39000, High: 39200, Low: 38950,
		Change: 100, FetchedAt: time.Now(),
	}
}

func newTestService(t *testing.T, master MasterSource, quotes QuoteSource, index IndexSource) (*AnalysisService, *config.Paths) {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirs())
	svc := NewAnalysisService(paths, master, quotes, index,
		staticLoader(testConstituents()), nil, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	return svc, paths
}

func TestRunRealtimeSuccess(t *testing.T) {
	svc, paths := newTestService(t,
		&stubMaster{}, &stubQuotes{quotes: testQuotes()}, &stubIndex{quote: testIndexQuote()})

	snapshot, err := svc.RunRealtime(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 100.0, snapshot.IndexChange, 1e-9)
	require.Len(t, snapshot.Stocks, 3)

	// Equal weighted changes split the index change proportionally and the
	// entries come back sorted by contribution descending.
	byCode := map[string]float64{}
	total := 0.0
	for _, e := range snapshot.Stocks {
		byCode[e.Code] = e.Value
		total += e.Value
	}
	assert.InDelta(t, 100.0, byCode["7203"], 1e-9)
	assert.InDelta(t, 100.0, byCode["9984"], 1e-9)
	assert.InDelta(t, -100.0, byCode["6758"], 1e-9)
	assert.InEpsilon(t, 100.0, total, 1e-9)
	assert.Equal(t, "6758", snapshot.Stocks[2].Code)
	assert.Equal(t, "Sony Group", snapshot.Stocks[2].Name)

	require.Len(t, snapshot.Sectors, 2)
	assert.Equal(t, "Technology", snapshot.Sectors[0].Label)
	assert.InDelta(t, 0.0, snapshot.Sectors[0].Value, 1e-9)
	assert.Equal(t, "Consumer Goods", snapshot.Sectors[1].Label)

	for _, path := range []string{
		paths.StockContribCSV, paths.SectorContribCSV, paths.IndustryContribCSV,
		paths.StockPricesCSV, paths.DailyIndexCSV,
	} {
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, path)
	}

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, snapshot.RunID, latest.RunID)
	assert.Equal(t, RunStateIdle, svc.Status().State)
}

func TestRunRealtimeIdempotentSameDay(t *testing.T) {
	quotes := &stubQuotes{quotes: testQuotes()}
	svc, paths := newTestService(t,
		&stubMaster{}, quotes, &stubIndex{quote: testIndexQuote()})

	_, err := svc.RunRealtime(context.Background())
	require.NoError(t, err)

	// A later run the same day sees revised prices; the persisted row must
	// be replaced with the fresh values, not shadowed by the first run's.
	now := time.Now()
	quotes.quotes = map[string]domain.Quote{
		"7203": {Code: "7203", CurrentPrice: 2700, PrevClose: 2500, Change: 200, HasChange: true, FetchedAt: now},
		"9984": {Code: "9984", CurrentPrice: 8100, PrevClose: 8000, Change: 100, HasChange: true, FetchedAt: now},
		"6758": {Code: "6758", CurrentPrice: 12900, PrevClose: 13000, Change: -100, HasChange: true, FetchedAt: now},
	}
	_, err = svc.RunRealtime(context.Background())
	require.NoError(t, err)

	table, err := loadTimeSeries(paths.StockContribCSV)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	today := dataprocessing.Day(time.Now())
	v, ok := table.Value(today, "7203")
	require.True(t, ok)
	assert.InDelta(t, 100.0, v, 1e-9)

	closes, err := loadTimeSeries(paths.StockPricesCSV)
	require.NoError(t, err)
	require.Equal(t, 1, closes.Len())
	c, ok := closes.Value(today, "7203")
	require.True(t, ok)
	assert.InDelta(t, 2700.0, c, 1e-9)
}

func TestRunRealtimeConflict(t *testing.T) {
	quotes := &stubQuotes{quotes: testQuotes(), release: make(chan struct{})}
	svc, _ := newTestService(t, &stubMaster{}, quotes, &stubIndex{quote: testIndexQuote()})

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunRealtime(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return svc.Status().State == RunStateRunning
	}, time.Second, 5*time.Millisecond)

	_, err := svc.RunRealtime(context.Background())
	assert.ErrorIs(t, err, ErrAnalysisRunning)

	close(quotes.release)
	require.NoError(t, <-done)
	assert.Equal(t, RunStateIdle, svc.Status().State)
}

func TestRunRealtimeIndexFetchFailureIsFatal(t *testing.T) {
	svc, paths := newTestService(t,
		&stubMaster{}, &stubQuotes{quotes: testQuotes()},
		&stubIndex{err: errors.New("scrape failed")})

	_, err := svc.RunRealtime(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoIndexChange)

	// Nothing is persisted when the run fails.
	_, statErr := os.Stat(paths.StockContribCSV)
	assert.True(t, os.IsNotExist(statErr))
	_, err = svc.Latest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRunRealtimeNoObservations(t *testing.T) {
	quotes := map[string]domain.Quote{
		"7203": {Code: "7203", CurrentPrice: 2600, HasChange: false},
	}
	svc, _ := newTestService(t,
		&stubMaster{}, &stubQuotes{quotes: quotes}, &stubIndex{quote: testIndexQuote()})

	_, err := svc.RunRealtime(context.Background())
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestRunRealtimeToleratesMasterRefreshFailure(t *testing.T) {
	master := &stubMaster{err: errors.New("download failed")}
	svc, _ := newTestService(t,
		master, &stubQuotes{quotes: testQuotes()}, &stubIndex{quote: testIndexQuote()})

	_, err := svc.RunRealtime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, master.calls)
}

func TestRunBatch(t *testing.T) {
	svc, paths := newTestService(t,
		&stubMaster{}, &stubQuotes{}, &stubIndex{})

	writer := exporter.NewCSVWriter(nil)
	day1 := dataprocessing.Day(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	day2 := dataprocessing.Day(time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC))

	prices := dataprocessing.NewTimeSeriesTable()
	prices.Upsert(day1, map[string]float64{"7203": 2500, "9984": 8000, "6758": 13000})
	prices.Upsert(day2, map[string]float64{"7203": 2600, "9984": 8100, "6758": 12900})
	require.NoError(t, writer.WriteTimeSeries(paths.StockPricesCSV, prices))

	indexDaily := dataprocessing.NewTimeSeriesTable()
	indexDaily.Upsert(day1, map[string]float64{"Open": 38900, "High": 39050, "Low": 38850, "Close": 39000})
	indexDaily.Upsert(day2, map[string]float64{"Open": 39000, "High": 39200, "Low": 38950, "Close": 39100})
	require.NoError(t, writer.WriteTimeSeries(paths.DailyIndexCSV, indexDaily))

	snapshot, err := svc.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, day2, snapshot.Period)
	assert.InDelta(t, 100.0, snapshot.IndexChange, 1e-9)
	require.Len(t, snapshot.Stocks, 3)
	total := 0.0
	for _, e := range snapshot.Stocks {
		total += e.Value
	}
	assert.InEpsilon(t, 100.0, total, 1e-9)

	contrib, err := loadTimeSeries(paths.StockContribCSV)
	require.NoError(t, err)
	assert.Equal(t, 1, contrib.Len())
}

func TestRunBatchMissingHistory(t *testing.T) {
	svc, _ := newTestService(t, &stubMaster{}, &stubQuotes{}, &stubIndex{})

	_, err := svc.RunBatch(context.Background())
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestMovers(t *testing.T) {
	svc, _ := newTestService(t,
		&stubMaster{}, &stubQuotes{quotes: testQuotes()}, &stubIndex{quote: testIndexQuote()})

	_, _, err := svc.Movers(5)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = svc.RunRealtime(context.Background())
	require.NoError(t, err)

	gainers, losers, err := svc.Movers(1)
	require.NoError(t, err)
	require.Len(t, gainers, 1)
	require.Len(t, losers, 1)
	assert.True(t, gainers[0].Value > 0)
	assert.Equal(t, "6758", losers[0].Code)
}
