package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/seoplan/planner/pkg/serrors"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

func parseCSV(data []byte, comma rune) (*Table, error) {
	decoded, encoding, err := decodeText(data)
	if err != nil {
		return nil, serrors.Wrap(ErrParse, "decode %s: %v", encoding, err)
	}
	if comma == 0 {
		comma = sniffComma(decoded)
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, serrors.Wrap(ErrParse, "missing header row")
		}
		return nil, serrors.Wrap(ErrParse, "header: %v", err)
	}

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, serrors.Wrap(ErrParse, "%v", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return newTable(FormatCSV, encoding, header, records, lines)
}

// decodeText returns UTF-8 text without BOM. Input that is neither UTF-16 with BOM nor
// valid UTF-8 is read as Windows-1251, the usual encoding of spreadsheet CSV exports here.
func decodeText(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], "utf-8", nil
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		return out, "utf-16", err
	case utf8.Valid(data):
		return data, "utf-8", nil
	default:
		out, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), data)
		return out, "windows-1251", err
	}
}

// sniffComma picks the most frequent of ',', ';', tab and '|' on the header line, ignoring quoted text.
func sniffComma(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	counts := map[rune]int{}
	inQuotes := false
	for _, c := range string(line) {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == ';', c == ',', c == '\t', c == '|':
			counts[c]++
		}
	}
	best, bestCount := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}
