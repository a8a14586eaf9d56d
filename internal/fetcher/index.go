package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"nikkeicli/pkg/contracts/domain"
)

// IndexQuoteFetcher retrieves the index's own live level and previous close
// from the provider's chart page.
type IndexQuoteFetcher struct {
	client    *http.Client
	url       string
	userAgent string
	logger    *slog.Logger
}

// NewIndexQuoteFetcher creates an index quote fetcher.
func NewIndexQuoteFetcher(client *http.Client, url, userAgent string, logger *slog.Logger) *IndexQuoteFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexQuoteFetcher{
		client:    client,
		url:       url,
		userAgent: userAgent,
		logger:    logger.With(slog.String("component", "index_quote_fetcher")),
	}
}

// Fetch retrieves the current index quote. A page without a previous close
// is an error: without it no index change exists, and the analysis must not
// fabricate one.
func (f *IndexQuoteFetcher) Fetch(ctx context.Context) (*domain.IndexQuote, error) {
	body, err := get(ctx, f.client, f.url, f.userAgent)
	if err != nil {
		return nil, err
	}

	quote, err := parseIndexPage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}
	quote.FetchedAt = time.Now()

	f.logger.Info("index quote fetched",
		slog.Float64("current", quote.CurrentPrice),
		slog.Float64("change", quote.Change))
	return quote, nil
}

// parseIndexPage extracts the current level and the OHLC trend table.
// The trend cells are positional: open, high, low, previous close.
func parseIndexPage(body []byte) (*domain.IndexQuote, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	current, ok := parsePrice(doc.Find(".economic_value_now").First().Text())
	if !ok {
		return nil, fmt.Errorf("current index level not found")
	}

	var trend []float64
	var trendOK []bool
	doc.Find(".m-trend_economic_table_value").Each(func(_ int, s *goquery.Selection) {
		v, ok := parsePrice(s.Text())
		trend = append(trend, v)
		trendOK = append(trendOK, ok)
	})
	if len(trend) < 4 || !trendOK[3] {
		return nil, fmt.Errorf("previous close not found")
	}

	quote := &domain.IndexQuote{
		CurrentPrice: current,
		PrevClose:    trend[3],
		Change:       current - trend[3],
	}
	// Fall back to sensible bounds when individual OHLC cells are blank.
	quote.Open = valueOr(trend[0], trendOK[0], quote.PrevClose)
	quote.High = valueOr(trend[1], trendOK[1], max(current, quote.PrevClose))
	quote.Low = valueOr(trend[2], trendOK[2], min(current, quote.PrevClose))
	return quote, nil
}

func valueOr(v float64, ok bool, fallback float64) float64 {
	if ok {
		return v
	}
	return fallback
}
