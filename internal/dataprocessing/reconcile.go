package dataprocessing

import (
	"log/slog"
	"strconv"
	"strings"

	"nikkeicli/pkg/contracts/domain"
)

// Master table column aliases. The provider's export uses Japanese headers;
// the canonical master table this tool writes uses English ones.
var (
	codeColumns     = []string{"Code", "コード"}
	nameColumns     = []string{"Name", "銘柄名"}
	factorColumns   = []string{"AdjustmentFactor", "株価換算係数"}
	sectorColumns   = []string{"Sector", "セクター"}
	industryColumns = []string{"Industry", "業種"}
)

// CanonicalCode normalizes a raw identifier to its canonical string form.
// Identifiers arrive as plain strings, quoted strings, integers, or floats
// with a trailing .0; all of them round-trip through numeric parsing so that
// "7203", " 7203 ", and "7203.0" collapse to the same key. Returns false for
// values that are not valid numeric codes.
func CanonicalCode(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	n := int64(f)
	if float64(n) != f || n < 0 {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}

// BuildFactorMap builds the identifier → price-adjustment-factor mapping
// from a master table. Rows with an unparseable code or factor are dropped;
// data-quality problems in a single row never fail the batch.
func BuildFactorMap(master *Table) map[string]float64 {
	factors := make(map[string]float64)

	codeIdx := master.ColumnAny(codeColumns...)
	factorIdx := master.ColumnAny(factorColumns...)
	if codeIdx == -1 || factorIdx == -1 {
		slog.Warn("master table missing code or factor column",
			slog.Any("headers", master.Headers))
		return factors
	}

	skipped := 0
	for _, record := range master.Records {
		if len(record) <= codeIdx || len(record) <= factorIdx {
			skipped++
			continue
		}
		code, ok := CanonicalCode(record[codeIdx])
		if !ok {
			skipped++
			continue
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(record[factorIdx]), 64)
		if err != nil {
			skipped++
			continue
		}
		factors[code] = factor
	}

	if skipped > 0 {
		slog.Debug("skipped master rows with unparseable code or factor",
			slog.Int("skipped", skipped),
			slog.Int("kept", len(factors)))
	}
	return factors
}

// BuildCategoryMap builds the identifier → (sector, industry) mapping from a
// master table. Missing category labels default to Unknown rather than
// dropping the row.
func BuildCategoryMap(master *Table) map[string]domain.Category {
	categories := make(map[string]domain.Category)

	codeIdx := master.ColumnAny(codeColumns...)
	if codeIdx == -1 {
		return categories
	}
	sectorIdx := master.ColumnAny(sectorColumns...)
	industryIdx := master.ColumnAny(industryColumns...)

	for _, record := range master.Records {
		if len(record) <= codeIdx {
			continue
		}
		code, ok := CanonicalCode(record[codeIdx])
		if !ok {
			continue
		}
		categories[code] = domain.Category{
			Sector:   categoryLabel(record, sectorIdx),
			Industry: categoryLabel(record, industryIdx),
		}
	}
	return categories
}

func categoryLabel(record []string, idx int) string {
	if idx == -1 || idx >= len(record) {
		return domain.UnknownCategory
	}
	label := strings.TrimSpace(strings.Trim(strings.TrimSpace(record[idx]), `"`))
	if label == "" {
		return domain.UnknownCategory
	}
	return label
}

// BuildConstituents assembles the full constituent list from a master table,
// applying the same canonicalization and default rules as the map builders.
func BuildConstituents(master *Table) []domain.Constituent {
	factors := BuildFactorMap(master)
	categories := BuildCategoryMap(master)

	codeIdx := master.ColumnAny(codeColumns...)
	nameIdx := master.ColumnAny(nameColumns...)

	var out []domain.Constituent
	seen := make(map[string]struct{})
	for _, record := range master.Records {
		if codeIdx == -1 || len(record) <= codeIdx {
			continue
		}
		code, ok := CanonicalCode(record[codeIdx])
		if !ok {
			continue
		}
		factor, ok := factors[code]
		if !ok {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		name := ""
		if nameIdx != -1 && nameIdx < len(record) {
			name = strings.TrimSpace(strings.Trim(strings.TrimSpace(record[nameIdx]), `"`))
		}
		cat := domain.CategoryOrUnknown(categories, code)
		out = append(out, domain.Constituent{
			Code:             code,
			Name:             name,
			AdjustmentFactor: factor,
			Sector:           cat.Sector,
			Industry:         cat.Industry,
		})
	}
	return out
}

// MatchIdentifier resolves which observation column belongs to a constituent
// code. Observation tables key constituents by string or integer
// representation interchangeably, so an exact string match is tried first
// and integer-value equality second. A miss returns false, not an error:
// the constituent simply has no observation for that table.
func MatchIdentifier(code string, columns []string) (string, bool) {
	for _, col := range columns {
		if col == code {
			return col, true
		}
	}

	codeInt, err := strconv.ParseInt(strings.TrimSpace(code), 10, 64)
	if err != nil {
		return "", false
	}
	for _, col := range columns {
		colInt, err := strconv.ParseInt(strings.TrimSpace(col), 10, 64)
		if err != nil {
			continue
		}
		if colInt == codeInt {
			return col, true
		}
	}
	return "", false
}
