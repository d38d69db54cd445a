package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// Coercion functions are total: unparseable input yields nil, never an error.

var (
	parenNumberRe = regexp.MustCompile(`\(([^()]*)\)`)
	dottedDateRe  = regexp.MustCompile(`^(\d{1,2})([./-])(\d{1,2})([./-])(\d{4})$`)
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const (
	// Spreadsheet serial day range accepted as dates, 1970-01-01 to 2064-04-08.
	minSerialDay = 25569
	maxSerialDay = 60000
	isoDate      = "2006-01-02"
)

var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	truthyTokens = map[string]struct{}{"true": {}, "yes": {}, "y": {}, "да": {}, "+": {}, "t": {}}
	falsyTokens  = map[string]struct{}{"false": {}, "no": {}, "n": {}, "нет": {}, "-": {}, "f": {}}
)

// CoerceInteger reads a count such as "1 000", "1,000" or "1000 (1250)". A number in
// parentheses overrides the leading one. Negative values clamp to zero.
func CoerceInteger(raw string) *int64 {
	s := stripSpaces(raw)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	if m := parenNumberRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseCount(m[1]); ok {
			return &v
		}
		s = parenNumberRe.ReplaceAllString(s, "")
	}
	v, ok := parseCount(s)
	if !ok {
		return nil
	}
	return &v
}

func parseCount(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < 0 {
		return 0, true
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(f), true
}

// CoerceFlag reads the wordstat column. A yes/no token sets the flag. Any other value goes
// through CoerceInteger, so one column can carry either flags or volumes; a volume also
// sets the flag to volume > 0.
func CoerceFlag(raw string) (flag *bool, volume *int64) {
	tok := cases.Fold().String(strings.TrimSpace(raw))
	if _, ok := truthyTokens[tok]; ok {
		t := true
		return &t, nil
	}
	if _, ok := falsyTokens[tok]; ok {
		f := false
		return &f, nil
	}
	v := CoerceInteger(raw)
	if v == nil {
		return nil, nil
	}
	present := *v > 0
	return &present, v
}

// CoerceDate returns an ISO date for "2024-01-15", "15.01.2024", "15-01-2024",
// "15/01/2024" or a spreadsheet serial day such as "45306".
func CoerceDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if isoDateRe.MatchString(s) {
		if _, err := time.Parse(isoDate, s); err != nil {
			return nil
		}
		return &s
	}
	if m := dottedDateRe.FindStringSubmatch(s); m != nil {
		if m[2] != m[4] {
			return nil
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[3])
		year, _ := strconv.Atoi(m[5])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day || int(t.Month()) != month {
			return nil
		}
		out := t.Format(isoDate)
		return &out
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		day := math.Floor(f)
		if day < minSerialDay || day > maxSerialDay {
			return nil
		}
		out := spreadsheetEpoch.AddDate(0, 0, int(day)).Format(isoDate)
		return &out
	}
	return nil
}

// CoerceList splits on ',' and ';', trims tokens, drops empties and keeps the first
// occurrence of each token.
func CoerceList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CoerceText trims raw and returns nil for a blank cell.
func CoerceText(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return &s
}

// NormalizeURL prefixes https:// to a value without an http or https scheme.
func NormalizeURL(u *string) *string {
	if u == nil {
		return nil
	}
	s := strings.TrimSpace(*u)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}
	return &s
}

// stripSpaces drops every Unicode space, including the no-break spaces spreadsheets use
// as thousands separators.
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
