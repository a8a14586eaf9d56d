package dataprocessing

import (
	"log/slog"
	"math"
	"sort"
	"time"
)

// degenerateEpsilon bounds the total weighted change below which a period's
// index move cannot be meaningfully attributed. Allocating against a
// near-zero denominator would only amplify noise, so such periods report
// zero contributions instead.
const degenerateEpsilon = 1e-10

// ResolutionStatus describes how one constituent resolved against a
// period's observation columns. Recovery paths are explicit values rather
// than suppressed failures so tests can assert on them directly.
type ResolutionStatus int

const (
	// ResolutionMatched means a column matched and held a definite number.
	ResolutionMatched ResolutionStatus = iota
	// ResolutionNoColumn means no observation column matched the code.
	ResolutionNoColumn
	// ResolutionNoValue means a column matched but the period had no
	// definite observation (absent cell or unparseable source value).
	ResolutionNoValue
)

// Resolution is the outcome of resolving one constituent for one period.
type Resolution struct {
	Code     string
	Column   string
	Status   ResolutionStatus
	Weighted float64
}

// WeightedSet is the resolved weighted-change set for a single period.
type WeightedSet struct {
	Period      time.Time
	Resolutions []Resolution
	Total       float64
}

// Degenerate reports whether the period's total weighted change is too close
// to zero for proportional attribution.
func (ws *WeightedSet) Degenerate() bool {
	return math.Abs(ws.Total) <= degenerateEpsilon
}

// Calculator computes per-constituent contributions from price changes,
// adjustment factors, and per-period index changes.
type Calculator struct {
	logger *slog.Logger
}

// NewCalculator creates a calculator. A nil logger falls back to the default.
func NewCalculator(logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{logger: logger.With(slog.String("component", "contribution_calculator"))}
}

// ResolvePeriod builds the weighted set for one period: every factor-map
// code is matched against the observation columns, and matched codes with a
// definite price change contribute change × factor to the total. Unmatched
// or valueless codes stay in the result with their status, carrying no
// weight.
func (c *Calculator) ResolvePeriod(changes *TimeSeriesTable, period time.Time, factors map[string]float64) *WeightedSet {
	columns := changes.Columns()
	codes := make([]string, 0, len(factors))
	for code := range factors {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	ws := &WeightedSet{Period: Day(period)}
	for _, code := range codes {
		col, matched := MatchIdentifier(code, columns)
		if !matched {
			ws.Resolutions = append(ws.Resolutions, Resolution{Code: code, Status: ResolutionNoColumn})
			continue
		}
		change, ok := changes.Value(period, col)
		if !ok {
			ws.Resolutions = append(ws.Resolutions, Resolution{Code: code, Column: col, Status: ResolutionNoValue})
			continue
		}
		weighted := change * factors[code]
		if math.IsNaN(weighted) || math.IsInf(weighted, 0) {
			// A malformed factor must not poison the period.
			c.logger.Warn("non-finite weighted change, excluding constituent",
				slog.String("code", code),
				slog.Time("period", period))
			ws.Resolutions = append(ws.Resolutions, Resolution{Code: code, Column: col, Status: ResolutionNoValue})
			continue
		}
		ws.Resolutions = append(ws.Resolutions, Resolution{
			Code:     code,
			Column:   col,
			Status:   ResolutionMatched,
			Weighted: weighted,
		})
		ws.Total += weighted
	}
	return ws
}

// Allocate distributes the index change across the resolved set in
// proportion to each constituent's weighted change. The allocation fractions
// sum to one, so contributions conserve the index change by construction.
// For a degenerate period every resolved contribution is 0.0: an index move
// against a near-zero aggregate weighted move is reported as unattributable
// rather than divided out.
func (ws *WeightedSet) Allocate(indexChange float64) map[string]float64 {
	contributions := make(map[string]float64)
	degenerate := ws.Degenerate()
	for _, res := range ws.Resolutions {
		if res.Status != ResolutionMatched {
			continue
		}
		if degenerate {
			contributions[res.Code] = 0.0
			continue
		}
		contributions[res.Code] = indexChange * (res.Weighted / ws.Total)
	}
	return contributions
}

// Compute produces the per-constituent contribution table. Periods with no
// supplied index change are absent from the output; the engine never
// fabricates an index change. Constituents excluded from a period's weighted
// set are absent from that row, not zero.
func (c *Calculator) Compute(changes *TimeSeriesTable, factors map[string]float64, indexChanges map[time.Time]float64) *TimeSeriesTable {
	out := NewTimeSeriesTable()

	for _, period := range changes.Dates() {
		indexChange, ok := indexChanges[Day(period)]
		if !ok {
			continue
		}

		ws := c.ResolvePeriod(changes, period, factors)
		if ws.Degenerate() {
			c.logger.Info("degenerate period, reporting zero contributions",
				slog.Time("period", period),
				slog.Float64("total_weighted", ws.Total),
				slog.Float64("index_change", indexChange))
		}
		out.Upsert(period, ws.Allocate(indexChange))
	}
	return out
}
