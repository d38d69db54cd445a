package tabular

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/seoplan/planner/pkg/serrors"
)

// parseXLSX reads the first sheet; its first row is the header.
func parseXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, serrors.Wrap(ErrParse, "open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, serrors.Wrap(ErrParse, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, serrors.Wrap(ErrParse, "read sheet %q: %v", sheets[0], err)
	}

	headerIdx := -1
	for i, row := range rows {
		if !blankRecord(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, serrors.Wrap(ErrParse, "missing header row")
	}

	records := rows[headerIdx+1:]
	lines := make([]int, len(records))
	for i := range records {
		lines[i] = headerIdx + 2 + i
	}
	return newTable(FormatXLSX, "xlsx", rows[headerIdx], records, lines)
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
