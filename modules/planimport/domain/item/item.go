// Package item defines the normalized, fully typed import item and its boundary validation.
package item

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/pkg/serrors"
)

// Fields is the typed value set shared by import items and stored records.
// Absent values are nil and serialize as null.
type Fields struct {
	Phrase      *string  `json:"phrase"       validate:"omitempty,min=1"`
	Topic       *string  `json:"topic"        validate:"omitempty,min=1"`
	Period      *string  `json:"period"`
	Section     *string  `json:"section"`
	Direction   *string  `json:"direction"`
	Cluster     *string  `json:"cluster"`
	WSFlag      *bool    `json:"ws_flag"`
	WSVolume    *int64   `json:"ws_volume"    validate:"omitempty,gte=0"`
	Chars       *int64   `json:"chars"        validate:"omitempty,gte=0"`
	Author      *int64   `json:"author"       validate:"omitempty,gt=0"`
	PublishDate *string  `json:"publish_date" validate:"omitempty,datetime=2006-01-02"`
	URL         *string  `json:"url"`
	Keywords    []string `json:"keywords"     validate:"dive,required"`
	Tags        []string `json:"tags"         validate:"dive,required"`
	Status      *string  `json:"status"`
	Comment     *string  `json:"comment"`
}

// Item is one normalized row ready for submission.
type Item struct {
	Kind field.ImportKind
	// Line is the source line the item was built from; it is not sent.
	Line   int
	Fields Fields
}

// payloadKeys lists the wire keys of each import kind, in output order.
var payloadKeys = map[field.ImportKind][]string{
	field.KindQuery: {"phrase", "direction", "cluster", "ws_flag", "ws_volume", "chars", "tags"},
	field.KindContentPlan: {
		"topic", "period", "section", "direction", "cluster", "author", "publish_date",
		"chars", "url", "keywords", "tags", "status", "comment",
	},
}

// MarshalJSON emits the keys of the item's kind only. Absent scalars are null, absent lists are [].
func (it Item) MarshalJSON() ([]byte, error) {
	keys, ok := payloadKeys[it.Kind]
	if !ok {
		return nil, fmt.Errorf("item: unknown kind %q", it.Kind)
	}
	f := it.Fields
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if f.Keywords == nil {
		f.Keywords = []string{}
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		b.Write(all[k])
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Defaults are batch-level values the backend applies to items that leave the field empty.
type Defaults struct {
	Direction *string `json:"default_direction,omitempty"`
	Section   *string `json:"default_section,omitempty"`
	Period    *string `json:"default_period,omitempty"`
}

func (d Defaults) Empty() bool {
	return d.Direction == nil && d.Section == nil && d.Period == nil
}

// ApplyTo fills empty fields of f with the defaults.
func (d Defaults) ApplyTo(f *Fields) {
	if f.Direction == nil && d.Direction != nil {
		f.Direction = ptr(*d.Direction)
	}
	if f.Section == nil && d.Section != nil {
		f.Section = ptr(*d.Section)
	}
	if f.Period == nil && d.Period != nil {
		f.Period = ptr(*d.Period)
	}
}

var ErrInvalid = serrors.NewError("ITEM_INVALID", "item failed validation", "")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the value formats and the required fields of the item's kind.
func (it Item) Validate() error {
	schema, err := field.SchemaFor(it.Kind)
	if err != nil {
		return serrors.Wrap(ErrInvalid, "%v", err)
	}
	verrs := serrors.ValidationErrors{}
	if err := validatorInstance().Struct(it.Fields); err != nil {
		var ve validator.ValidationErrors
		if !asValidation(err, &ve) {
			return serrors.Wrap(ErrInvalid, "%v", err)
		}
		for k, v := range serrors.ProcessValidatorErrors(ve) {
			verrs[k] = v
		}
	}
	for _, id := range schema.Required() {
		if it.Fields.IsZero(id) {
			verrs[string(id)] = "required"
		}
	}
	if len(verrs) > 0 {
		return serrors.Wrap(ErrInvalid, "line %d: %w", it.Line, verrs)
	}
	return nil
}

func asValidation(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

func ptr[T any](v T) *T { return &v }
