// Package tabular turns delimited text or an xlsx workbook into header-keyed rows.
//
// Cell values are trimmed strings. Numeric spreadsheet cells keep their raw
// representation (a date arrives as its serial day count, e.g. "45306"); typing them
// is left to the caller.
package tabular

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/seoplan/planner/pkg/serrors"
)

type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrParse = serrors.NewError("TABULAR_PARSE", "cannot parse tabular source", "")

// RawRow is one data row keyed by header, in header order.
type RawRow struct {
	// Line is the 1-based source line (csv) or row number (xlsx).
	Line    int
	headers []string
	values  map[string]string
}

func (r RawRow) Get(header string) string {
	return r.values[header]
}

func (r RawRow) Headers() []string {
	return r.headers
}

func (r RawRow) Blank() bool {
	for _, v := range r.values {
		if v != "" {
			return false
		}
	}
	return true
}

type Table struct {
	Format   Format
	Encoding string
	Headers  []string
	Rows     []RawRow
}

type Options struct {
	Format Format
	// Comma forces the csv delimiter; zero sniffs it from the header line.
	Comma rune
}

func ParseFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serrors.Wrap(ErrParse, "open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	if opts.Format == FormatAuto {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".tsv", ".txt":
			opts.Format = FormatCSV
		case ".xlsx", ".xlsm":
			opts.Format = FormatXLSX
		}
	}
	return Parse(f, opts)
}

// Parse reads the whole source before building rows, so a failure never yields a partial table.
func Parse(r io.Reader, opts Options) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, serrors.Wrap(ErrParse, "read: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, serrors.Wrap(ErrParse, "empty source")
	}

	format := opts.Format
	if format == FormatAuto {
		format, err = sniff(data)
		if err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatCSV:
		return parseCSV(data, opts.Comma)
	case FormatXLSX:
		return parseXLSX(data)
	default:
		return nil, serrors.Wrap(ErrParse, "unsupported format %q", format)
	}
}

func sniff(data []byte) (Format, error) {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
			return FormatXLSX, nil
		case m.Is("application/zip"):
			// some writers produce workbooks mimetype only recognizes as zip
			return FormatXLSX, nil
		case m.Is("text/csv"), m.Is("text/tab-separated-values"), m.Is("text/plain"):
			return FormatCSV, nil
		}
	}
	head := data[:min(len(data), 512)]
	if detected.Is("application/octet-stream") && !bytes.Contains(head, []byte{0}) {
		return FormatCSV, nil
	}
	return FormatAuto, serrors.Wrap(ErrParse, "unsupported content type %s", detected.String())
}

// newTable builds rows from a header record and data records, skipping blank rows.
// lines[i] is the source line of records[i]. Duplicate header names keep their first column.
func newTable(format Format, encoding string, header []string, records [][]string, lines []int) (*Table, error) {
	headers := make([]string, 0, len(header))
	columns := make([]int, 0, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		headers = append(headers, h)
		columns = append(columns, i)
	}
	if len(headers) == 0 {
		return nil, serrors.Wrap(ErrParse, "missing header row")
	}

	rows := make([]RawRow, 0, len(records))
	for i, rec := range records {
		row := RawRow{
			Line:    lines[i],
			headers: headers,
			values:  make(map[string]string, len(headers)),
		}
		for j, h := range headers {
			col := columns[j]
			if col < len(rec) {
				row.values[h] = strings.TrimSpace(rec[col])
			} else {
				row.values[h] = ""
			}
		}
		if row.Blank() {
			continue
		}
		rows = append(rows, row)
	}

	return &Table{
		Format:   format,
		Encoding: encoding,
		Headers:  headers,
		Rows:     rows,
	}, nil
}
