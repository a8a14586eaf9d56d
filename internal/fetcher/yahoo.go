package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"nikkeicli/pkg/contracts/domain"
)

const preloadedStateMarker = "window.__PRELOADED_STATE__ = "

// cssFallbackSelectors are tried in order when the JSON state blob is
// missing or unparseable. They only yield a current price, never a change.
var cssFallbackSelectors = []string{
	"span._1fofaCjs",
	`span[data-field="price"]`,
	".stoksPrice",
	`[data-test="price"]`,
	".price",
}

// QuoteFetcher retrieves live per-constituent quotes from Yahoo Finance
// Japan. Fetches run sequentially under a rate limiter; the provider is a
// shared public page, not an API.
type QuoteFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	baseURL   string
	userAgent string
	logger    *slog.Logger
}

// NewQuoteFetcher creates a quote fetcher. requestsPerSecond throttles the
// per-constituent loop.
func NewQuoteFetcher(client *http.Client, baseURL, userAgent string, requestsPerSecond float64, logger *slog.Logger) *QuoteFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteFetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		logger:    logger.With(slog.String("component", "quote_fetcher")),
	}
}

// Fetch retrieves the quote for one constituent code.
func (f *QuoteFetcher) Fetch(ctx context.Context, code string) (*domain.Quote, error) {
	body, err := get(ctx, f.client, fmt.Sprintf("%s/quote/%s.T", f.baseURL, code), f.userAgent)
	if err != nil {
		return nil, err
	}
	quote, err := parseQuotePage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote page for %s: %w", code, err)
	}
	quote.Code = code
	quote.FetchedAt = time.Now()
	return quote, nil
}

// FetchAll retrieves quotes for all codes sequentially, tolerating
// individual failures: a constituent whose fetch fails simply has no
// observation for the period. Only context cancellation aborts the loop.
func (f *QuoteFetcher) FetchAll(ctx context.Context, codes []string) (map[string]domain.Quote, error) {
	quotes := make(map[string]domain.Quote, len(codes))
	for _, code := range codes {
		if err := f.limiter.Wait(ctx); err != nil {
			return quotes, err
		}
		quote, err := f.Fetch(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return quotes, ctx.Err()
			}
			f.logger.Warn("quote fetch failed, constituent excluded this period",
				slog.String("code", code),
				slog.String("error", err.Error()))
			continue
		}
		quotes[code] = *quote
	}

	f.logger.Info("quote fetch completed",
		slog.Int("requested", len(codes)),
		slog.Int("fetched", len(quotes)))
	return quotes, nil
}

// parseQuotePage extracts a quote from the page HTML. The preloaded JSON
// state is authoritative; CSS selectors are a degraded fallback that yields
// a price without a change.
func parseQuotePage(body []byte) (*domain.Quote, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if state, ok := extractPreloadedState(doc); ok {
		if quote, ok := quoteFromState(state); ok {
			return quote, nil
		}
	}

	for _, selector := range cssFallbackSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if price, ok := parsePrice(sel.Text()); ok {
				return &domain.Quote{CurrentPrice: price}, nil
			}
		}
	}

	return nil, fmt.Errorf("no price found in page")
}

// extractPreloadedState locates the __PRELOADED_STATE__ script and slices
// out its JSON object by brace counting; the assignment is not on a line of
// its own and json.Decoder would over-read into the following statements.
func extractPreloadedState(doc *goquery.Document) (map[string]json.RawMessage, bool) {
	var raw string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if idx := strings.Index(text, preloadedStateMarker); idx != -1 {
			raw = text[idx+len(preloadedStateMarker):]
			return false
		}
		return true
	})
	if raw == "" {
		return nil, false
	}

	jsonStr, ok := sliceJSONObject(raw)
	if !ok {
		return nil, false
	}

	var state map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &state); err != nil {
		return nil, false
	}
	return state, true
}

// sliceJSONObject returns the first balanced {...} object in s. Braces
// inside JSON strings are skipped.
func sliceJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// priceBoardState mirrors the slice of the preloaded state the fetcher
// needs. Prices arrive as display strings with thousands separators.
type priceBoardState struct {
	PriceBoard struct {
		SavePrice string `json:"savePrice"`
		Price     string `json:"price"`
	} `json:"priceBoard"`
}

type stockDetailState struct {
	Detail struct {
		PreviousPrice string `json:"previousPrice"`
	} `json:"detail"`
}

func quoteFromState(state map[string]json.RawMessage) (*domain.Quote, bool) {
	quote := &domain.Quote{}

	if raw, ok := state["mainStocksPriceBoard"]; ok {
		var board priceBoardState
		if err := json.Unmarshal(raw, &board); err == nil {
			if price, ok := parsePrice(board.PriceBoard.SavePrice); ok {
				quote.CurrentPrice = price
			} else if price, ok := parsePrice(board.PriceBoard.Price); ok {
				quote.CurrentPrice = price
			}
		}
	}
	if quote.CurrentPrice == 0 {
		return nil, false
	}

	if raw, ok := state["mainStocksDetail"]; ok {
		var detail stockDetailState
		if err := json.Unmarshal(raw, &detail); err == nil {
			if prev, ok := parsePrice(detail.Detail.PreviousPrice); ok {
				quote.PrevClose = prev
				quote.Change = quote.CurrentPrice - prev
				quote.HasChange = true
			}
		}
	}
	return quote, true
}
