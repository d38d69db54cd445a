package services

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/pkg/serrors"
)

var ErrMappingGap = serrors.NewError("MAPPING_GAP", "required fields are not mapped", "")

// HeaderMapping maps a canonical field to the source header it reads from.
// Unmapped fields are absent.
type HeaderMapping map[field.ID]string

// MapHeaders assigns headers to fields. Fields claim in schema order; each field takes the
// first header, in source order, equal to one of its synonyms after trimming and case
// folding. A claimed header is not offered to later fields.
func MapHeaders(schema field.Schema, headers []string) HeaderMapping {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = foldKey(h)
	}
	claimed := make([]bool, len(headers))
	mapping := HeaderMapping{}
	for _, spec := range schema.Fields {
		synonyms := make(map[string]struct{}, len(spec.Synonyms)+1)
		synonyms[foldKey(string(spec.ID))] = struct{}{}
		for _, s := range spec.Synonyms {
			synonyms[foldKey(s)] = struct{}{}
		}
		for i := range headers {
			if claimed[i] {
				continue
			}
			if _, ok := synonyms[folded[i]]; ok {
				mapping[spec.ID] = headers[i]
				claimed[i] = true
				break
			}
		}
	}
	return mapping
}

// Override points id at header, taking the header away from any field that held it.
// An empty header unmaps id.
func (m HeaderMapping) Override(schema field.Schema, headers []string, id field.ID, header string) error {
	if _, ok := schema.Lookup(id); !ok {
		return fmt.Errorf("field %q is not part of %s import", id, schema.Kind)
	}
	header = strings.TrimSpace(header)
	if header == "" {
		delete(m, id)
		return nil
	}
	if !slices.Contains(headers, header) {
		return fmt.Errorf("header %q not found in source", header)
	}
	for other, h := range m {
		if h == header && other != id {
			delete(m, other)
		}
	}
	m[id] = header
	return nil
}

// ParseOverrides reads "field=Header" pairs.
func ParseOverrides(pairs []string) (map[field.ID]string, error) {
	out := make(map[field.ID]string, len(pairs))
	for _, p := range pairs {
		id, header, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid mapping %q, want field=Header", p)
		}
		out[field.ID(strings.TrimSpace(id))] = header
	}
	return out, nil
}

// MappingGapError lists unmapped required fields and the unclaimed headers that resemble them.
type MappingGapError struct {
	Missing     []field.ID
	Suggestions map[field.ID][]string
}

func (e *MappingGapError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, id := range e.Missing {
		p := string(id)
		if s := e.Suggestions[id]; len(s) > 0 {
			p += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(s), ", "))
		}
		parts = append(parts, p)
	}
	return fmt.Sprintf("%s: %s", ErrMappingGap.Message, strings.Join(parts, "; "))
}

func (e *MappingGapError) Unwrap() error { return ErrMappingGap }

// CheckRequired fails with a *MappingGapError when a required field has no header.
func CheckRequired(schema field.Schema, headers []string, m HeaderMapping) error {
	var missing []field.ID
	for _, id := range schema.Required() {
		if _, ok := m[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	claimed := make(map[string]struct{}, len(m))
	for _, h := range m {
		claimed[h] = struct{}{}
	}
	var free []string
	for _, h := range headers {
		if _, ok := claimed[h]; !ok {
			free = append(free, h)
		}
	}

	gap := &MappingGapError{Missing: missing, Suggestions: map[field.ID][]string{}}
	for _, id := range missing {
		spec, _ := schema.Lookup(id)
		if s := suggestHeaders(append([]string{string(id)}, spec.Synonyms...), free); len(s) > 0 {
			gap.Suggestions[id] = s
		}
	}
	return gap
}

// suggestHeaders ranks headers that contain a synonym, or are contained in one, as a
// fuzzy subsequence.
func suggestHeaders(synonyms, headers []string) []string {
	best := map[int]int{}
	for _, syn := range synonyms {
		for _, r := range fuzzy.RankFindNormalizedFold(syn, headers) {
			if d, ok := best[r.OriginalIndex]; !ok || r.Distance < d {
				best[r.OriginalIndex] = r.Distance
			}
		}
		for i, h := range headers {
			if strings.TrimSpace(h) == "" {
				continue
			}
			if fuzzy.MatchNormalizedFold(strings.TrimSpace(h), syn) {
				d := fuzzy.LevenshteinDistance(foldKey(h), foldKey(syn))
				if cur, ok := best[i]; !ok || d < cur {
					best[i] = d
				}
			}
		}
	}
	idx := make([]int, 0, len(best))
	for i := range best {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if best[idx[a]] != best[idx[b]] {
			return best[idx[a]] < best[idx[b]]
		}
		return idx[a] < idx[b]
	})
	out := make([]string, 0, min(len(idx), 3))
	for _, i := range idx[:min(len(idx), 3)] {
		out = append(out, headers[i])
	}
	return out
}

func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
