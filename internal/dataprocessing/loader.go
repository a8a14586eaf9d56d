package dataprocessing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

// Table is a decoded delimited table with trimmed header labels.
type Table struct {
	Headers  []string
	Records  [][]string
	Encoding string
}

// Column returns the index of the header with the given trimmed name,
// or -1 when absent.
func (t *Table) Column(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// ColumnAny returns the index of the first header matching any of the given
// names. Source files have shipped with both Japanese and English headers
// over time, so lookups go through alias lists.
func (t *Table) ColumnAny(names ...string) int {
	for _, name := range names {
		if i := t.Column(name); i != -1 {
			return i
		}
	}
	return -1
}

// DecodeError reports that none of the candidate encodings produced a valid
// decoding of the file. It is fatal to the load call; the caller decides
// whether the run continues.
type DecodeError struct {
	Path  string
	Tried []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode %s with any candidate encoding (tried %s)",
		e.Path, strings.Join(e.Tried, ", "))
}

// LoadOptions configures table loading behavior.
type LoadOptions struct {
	// SkipFooter drops the trailing N records. The published daily index CSV
	// carries a one-line disclaimer footer that is not data.
	SkipFooter int
}

// candidateEncodings are tried in priority order. Go's Shift-JIS decoder
// already implements the Windows-31J (code page 932) superset, so a separate
// cp932 candidate would be redundant; EUC-JP covers the remaining legacy
// exports the provider has published.
var candidateEncodings = []string{"shift_jis", "utf-8", "euc-jp"}

// LoadTable reads a CSV file, trying each candidate encoding in order and
// returning the first table that decodes cleanly. Header labels are trimmed
// of surrounding whitespace. A *DecodeError is returned only when every
// candidate fails.
func LoadTable(path string, opts LoadOptions) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	for _, name := range candidateEncodings {
		decoded, ok := decodeAs(raw, name)
		if !ok {
			continue
		}

		table, err := parseCSV(decoded, opts)
		if err != nil {
			// The bytes decoded but do not form a table; encoding guessing
			// cannot fix that, so surface the parse error directly.
			return nil, fmt.Errorf("failed to parse %s as CSV: %w", path, err)
		}
		table.Encoding = name

		slog.Debug("table loaded",
			slog.String("path", path),
			slog.String("encoding", name),
			slog.Int("rows", len(table.Records)))
		return table, nil
	}

	return nil, &DecodeError{Path: path, Tried: candidateEncodings}
}

// decodeAs decodes raw bytes with the named encoding. The x/text decoders
// substitute U+FFFD for invalid sequences instead of erroring, so a
// replacement rune in the output marks the candidate as failed.
func decodeAs(raw []byte, name string) (string, bool) {
	switch name {
	case "utf-8":
		if !utf8.Valid(raw) {
			return "", false
		}
		// Strip the BOM some exports carry.
		raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
		return string(raw), true
	case "shift_jis":
		decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
		if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
			return "", false
		}
		return string(decoded), true
	case "euc-jp":
		decoded, err := japanese.EUCJP.NewDecoder().Bytes(raw)
		if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
			return "", false
		}
		return string(decoded), true
	default:
		return "", false
	}
}

func parseCSV(content string, opts LoadOptions) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	records := rows[1:]
	if opts.SkipFooter > 0 {
		if opts.SkipFooter >= len(records) {
			records = nil
		} else {
			records = records[:len(records)-opts.SkipFooter]
		}
	}

	return &Table{Headers: headers, Records: records}, nil
}
