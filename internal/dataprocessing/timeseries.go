package dataprocessing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// dateFormats accepted when parsing a persisted time-series index.
var dateFormats = []string{"2006-01-02", "2006/01/02", "2006-01-02 15:04:05"}

// Day truncates a timestamp to trading-day precision. The result is always
// pinned to UTC so the same calendar day yields the same map key no matter
// which zone the input carries; otherwise a local-zone "today" and the same
// date re-parsed from CSV would index as two different periods.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a date cell in any of the accepted formats.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// TimeSeriesTable is a date-indexed table of named float columns. Dates are
// unique and kept in ascending order; cells with no observation are absent
// and read back as NaN.
type TimeSeriesTable struct {
	columns []string
	colSet  map[string]struct{}
	dates   []time.Time
	rows    map[time.Time]map[string]float64
}

// NewTimeSeriesTable creates an empty table.
func NewTimeSeriesTable() *TimeSeriesTable {
	return &TimeSeriesTable{
		colSet: make(map[string]struct{}),
		rows:   make(map[time.Time]map[string]float64),
	}
}

// Columns returns the column labels in first-seen order.
func (t *TimeSeriesTable) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Dates returns the index in ascending order.
func (t *TimeSeriesTable) Dates() []time.Time {
	out := make([]time.Time, len(t.dates))
	copy(out, t.dates)
	return out
}

// Len returns the number of periods in the table.
func (t *TimeSeriesTable) Len() int {
	return len(t.dates)
}

// Value returns the cell for (date, column). ok is false when the period or
// the observation is absent; absence is not zero.
func (t *TimeSeriesTable) Value(date time.Time, column string) (float64, bool) {
	row, exists := t.rows[Day(date)]
	if !exists {
		return math.NaN(), false
	}
	v, ok := row[column]
	if !ok || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// Row returns a copy of the defined observations for one period.
func (t *TimeSeriesTable) Row(date time.Time) (map[string]float64, bool) {
	row, exists := t.rows[Day(date)]
	if !exists {
		return nil, false
	}
	out := make(map[string]float64, len(row))
	for k, v := range row {
		if !math.IsNaN(v) {
			out[k] = v
		}
	}
	return out, true
}

// Upsert merges one period's observations into the table. An existing
// period's row is replaced in place; a new period is inserted in date order.
// Re-running an analysis for the same day therefore never duplicates rows.
func (t *TimeSeriesTable) Upsert(date time.Time, row map[string]float64) {
	date = Day(date)

	stored := make(map[string]float64, len(row))
	for col, v := range row {
		if math.IsNaN(v) {
			continue
		}
		stored[col] = v
		if _, seen := t.colSet[col]; !seen {
			t.colSet[col] = struct{}{}
			t.columns = append(t.columns, col)
		}
	}

	if _, exists := t.rows[date]; !exists {
		i := sort.Search(len(t.dates), func(i int) bool { return !t.dates[i].Before(date) })
		t.dates = append(t.dates, time.Time{})
		copy(t.dates[i+1:], t.dates[i:])
		t.dates[i] = date
	}
	t.rows[date] = stored
}

// Diff produces the per-period change table: for each column,
// change(t) = value(t) − value(t−1), defined only when both closes exist.
// The first period has no predecessor and is absent from the result.
func (t *TimeSeriesTable) Diff() *TimeSeriesTable {
	out := NewTimeSeriesTable()
	for i := 1; i < len(t.dates); i++ {
		prev, cur := t.dates[i-1], t.dates[i]
		row := make(map[string]float64)
		for _, col := range t.columns {
			curVal, okCur := t.Value(cur, col)
			prevVal, okPrev := t.Value(prev, col)
			if okCur && okPrev {
				row[col] = curVal - prevVal
			}
		}
		out.Upsert(cur, row)
	}
	return out
}

// Headers returns the CSV header row for persistence.
func (t *TimeSeriesTable) Headers() []string {
	return append([]string{"Date"}, t.Columns()...)
}

// CSVRecords renders the table as CSV rows, dates ascending. Absent cells
// become empty fields so a round-trip preserves the no-data / zero
// distinction.
func (t *TimeSeriesTable) CSVRecords() [][]string {
	records := make([][]string, 0, len(t.dates))
	for _, date := range t.dates {
		record := make([]string, 0, len(t.columns)+1)
		record = append(record, date.Format("2006-01-02"))
		for _, col := range t.columns {
			if v, ok := t.Value(date, col); ok {
				record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		records = append(records, record)
	}
	return records
}

// TimeSeriesFromTable converts a loaded table whose first recognized date
// column indexes the rest of the columns as float series. Cells that do not
// parse as numbers are treated as absent, not as errors.
func TimeSeriesFromTable(table *Table, dateColumn string) (*TimeSeriesTable, error) {
	dateIdx := table.Column(dateColumn)
	if dateIdx == -1 {
		return nil, fmt.Errorf("date column %q not found in headers %v", dateColumn, table.Headers)
	}

	out := NewTimeSeriesTable()
	for _, record := range table.Records {
		if len(record) <= dateIdx {
			continue
		}
		date, err := ParseDay(record[dateIdx])
		if err != nil {
			continue
		}
		row := make(map[string]float64)
		for i, raw := range record {
			if i == dateIdx || i >= len(table.Headers) {
				continue
			}
			raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
			if raw == "" {
				continue
			}
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				row[table.Headers[i]] = v
			}
		}
		out.Upsert(date, row)
	}
	return out, nil
}
