package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/pkg/logging"
	"github.com/seoplan/planner/pkg/serrors"
	"github.com/seoplan/planner/pkg/tabular"
)

var ErrNoValidRows = serrors.NewError("IMPORT_NO_VALID_ROWS", "no valid rows to import", "")

type PipelineOptions struct {
	Logger *logrus.Entry
	// Resolver maps author names to users; nil leaves every author unresolved.
	Resolver *EntityResolver
	// Overrides replace automatic header choices; an empty header unmaps the field.
	Overrides map[field.ID]string
	Defaults  item.Defaults
	// ApplyDefaultsLocally fills empty fields from Defaults before validation instead of
	// leaving them to the backend.
	ApplyDefaultsLocally bool
}

func (o *PipelineOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

type PrepareStats struct {
	Rows              int `json:"rows"`
	Items             int `json:"items"`
	Excluded          int `json:"excluded"`
	CoercionFallbacks int `json:"coercion_fallbacks"`
	UnresolvedAuthors int `json:"unresolved_authors"`
}

type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Prepared is a table turned into submittable items.
type Prepared struct {
	Schema  field.Schema
	Mapping HeaderMapping
	Items   []item.Item
	Skipped []SkippedRow
	Stats   PrepareStats
}

// Prepare maps headers, coerces every row and validates the resulting items. A required
// field without a header blocks the whole table; a row whose required value is empty or
// whose values fail validation is skipped.
func Prepare(table *tabular.Table, kind field.ImportKind, opts PipelineOptions) (*Prepared, error) {
	opts.setDefaults()
	schema, err := field.SchemaFor(kind)
	if err != nil {
		return nil, err
	}

	mapping := MapHeaders(schema, table.Headers)
	for _, id := range schema.IDs() {
		header, ok := opts.Overrides[id]
		if !ok {
			continue
		}
		if err := mapping.Override(schema, table.Headers, id, header); err != nil {
			return nil, err
		}
	}
	for id := range opts.Overrides {
		if _, ok := schema.Lookup(id); !ok {
			return nil, fmt.Errorf("field %q is not part of %s import", id, kind)
		}
	}
	if err := CheckRequired(schema, table.Headers, mapping); err != nil {
		return nil, err
	}

	p := &Prepared{Schema: schema, Mapping: mapping, Skipped: []SkippedRow{}}
	p.Stats.Rows = len(table.Rows)
	for _, row := range table.Rows {
		it := item.Item{Kind: kind, Line: row.Line}
		for _, spec := range schema.Fields {
			header, ok := mapping[spec.ID]
			if !ok {
				continue
			}
			raw := row.Get(header)
			fallback, unresolved := assign(&it.Fields, spec, raw, opts.Resolver)
			if fallback {
				p.Stats.CoercionFallbacks++
				opts.Logger.WithFields(logrus.Fields{"line": row.Line, "field": spec.ID}).Debug("value not coercible, left empty")
			}
			if unresolved {
				p.Stats.UnresolvedAuthors++
			}
		}
		if opts.ApplyDefaultsLocally {
			opts.Defaults.ApplyTo(&it.Fields)
		}

		if err := it.Validate(); err != nil {
			p.Skipped = append(p.Skipped, SkippedRow{Line: row.Line, Reason: err.Error()})
			p.Stats.Excluded++
			continue
		}
		p.Items = append(p.Items, it)
	}
	p.Stats.Items = len(p.Items)

	opts.Logger.WithFields(logrus.Fields{
		"kind":     kind,
		"rows":     p.Stats.Rows,
		"items":    p.Stats.Items,
		"excluded": p.Stats.Excluded,
	}).Info("table prepared")

	if len(p.Items) == 0 {
		return p, serrors.Wrap(ErrNoValidRows, "%d rows, %d excluded", p.Stats.Rows, p.Stats.Excluded)
	}
	return p, nil
}

// assign coerces raw by the field's kind into f. It reports a coercion fallback (raw had
// content but yielded nothing) and, for person fields, an unresolved name.
func assign(f *item.Fields, spec field.Spec, raw string, resolver *EntityResolver) (fallback, unresolved bool) {
	hasContent := CoerceText(raw) != nil
	switch spec.Kind {
	case field.KindText, field.KindURL:
		_ = f.SetText(spec.ID, CoerceText(raw))
	case field.KindDate:
		v := CoerceDate(raw)
		_ = f.SetText(spec.ID, v)
		fallback = hasContent && v == nil
	case field.KindInteger:
		v := CoerceInteger(raw)
		_ = f.SetInteger(spec.ID, v)
		fallback = hasContent && v == nil
	case field.KindFlag:
		flag, volume := CoerceFlag(raw)
		f.SetFlag(flag, volume)
		fallback = hasContent && flag == nil
	case field.KindList:
		_ = f.SetList(spec.ID, CoerceList(raw))
	case field.KindPerson:
		var id *int64
		if hasContent {
			id = resolver.Resolve(raw)
		}
		_ = f.SetInteger(spec.ID, id)
		unresolved = hasContent && id == nil
	}
	return fallback, unresolved
}

// EditFunc coerces "field=value" edits by the schema's rules and returns a change to apply
// to a group's sample. An empty value clears the field.
func EditFunc(schema field.Schema, edits map[field.ID]string, resolver *EntityResolver) (func(*item.Fields), error) {
	specs := make([]field.Spec, 0, len(edits))
	for _, spec := range schema.Fields {
		if _, ok := edits[spec.ID]; ok {
			specs = append(specs, spec)
		}
	}
	if len(specs) != len(edits) {
		for id := range edits {
			if _, ok := schema.Lookup(id); !ok {
				return nil, fmt.Errorf("field %q is not part of %s records", id, schema.Kind)
			}
		}
	}
	return func(f *item.Fields) {
		for _, spec := range specs {
			assign(f, spec, edits[spec.ID], resolver)
			if spec.Kind == field.KindURL {
				f.URL = NormalizeURL(f.URL)
			}
		}
	}, nil
}
