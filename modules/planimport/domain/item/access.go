package item

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wI2L/jsondiff"

	"github.com/seoplan/planner/modules/planimport/domain/field"
)

func (f *Fields) text(id field.ID) **string {
	switch id {
	case field.Phrase:
		return &f.Phrase
	case field.Topic:
		return &f.Topic
	case field.Period:
		return &f.Period
	case field.Section:
		return &f.Section
	case field.Direction:
		return &f.Direction
	case field.Cluster:
		return &f.Cluster
	case field.PublishDate:
		return &f.PublishDate
	case field.URL:
		return &f.URL
	case field.Status:
		return &f.Status
	case field.Comment:
		return &f.Comment
	}
	return nil
}

func (f *Fields) list(id field.ID) *[]string {
	switch id {
	case field.Tags:
		return &f.Tags
	case field.Keywords:
		return &f.Keywords
	}
	return nil
}

// SetText assigns a string-valued field.
func (f *Fields) SetText(id field.ID, v *string) error {
	p := f.text(id)
	if p == nil {
		return fmt.Errorf("field %s is not text", id)
	}
	*p = v
	return nil
}

// Text returns a string-valued field, nil when absent or not text.
func (f Fields) Text(id field.ID) *string {
	p := f.text(id)
	if p == nil {
		return nil
	}
	return *p
}

func (f *Fields) SetList(id field.ID, v []string) error {
	p := f.list(id)
	if p == nil {
		return fmt.Errorf("field %s is not a list", id)
	}
	*p = v
	return nil
}

func (f *Fields) SetInteger(id field.ID, v *int64) error {
	switch id {
	case field.Chars:
		f.Chars = v
	case field.Author:
		f.Author = v
	default:
		return fmt.Errorf("field %s is not an integer", id)
	}
	return nil
}

// SetFlag stores the two halves of the ws column: the presence flag and the volume.
func (f *Fields) SetFlag(flag *bool, volume *int64) {
	f.WSFlag = flag
	f.WSVolume = volume
}

// IsZero reports whether the field holds no value.
func (f Fields) IsZero(id field.ID) bool {
	if p := f.text(id); p != nil {
		return *p == nil || **p == ""
	}
	if p := f.list(id); p != nil {
		return len(*p) == 0
	}
	switch id {
	case field.Chars:
		return f.Chars == nil
	case field.Author:
		return f.Author == nil
	case field.WSFlag:
		return f.WSFlag == nil && f.WSVolume == nil
	}
	return true
}

// DiffKeys returns the json keys whose values differ between f and other, sorted.
// An empty list and an absent one compare equal.
func (f Fields) DiffKeys(other Fields) []string {
	patch, err := jsondiff.Compare(f.listsAsNull(), other.listsAsNull())
	if err != nil {
		// Fields always marshals.
		return nil
	}
	var out []string
	for _, op := range patch {
		key, _, _ := strings.Cut(strings.TrimPrefix(op.Path, "/"), "/")
		if len(out) == 0 || out[len(out)-1] != key {
			out = append(out, key)
		}
	}
	return out
}

func (f Fields) listsAsNull() Fields {
	if len(f.Keywords) == 0 {
		f.Keywords = nil
	}
	if len(f.Tags) == 0 {
		f.Tags = nil
	}
	return f
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	out := f
	out.Phrase = clonePtr(f.Phrase)
	out.Topic = clonePtr(f.Topic)
	out.Period = clonePtr(f.Period)
	out.Section = clonePtr(f.Section)
	out.Direction = clonePtr(f.Direction)
	out.Cluster = clonePtr(f.Cluster)
	out.WSFlag = clonePtr(f.WSFlag)
	out.WSVolume = clonePtr(f.WSVolume)
	out.Chars = clonePtr(f.Chars)
	out.Author = clonePtr(f.Author)
	out.PublishDate = clonePtr(f.PublishDate)
	out.URL = clonePtr(f.URL)
	out.Keywords = slices.Clone(f.Keywords)
	out.Tags = slices.Clone(f.Tags)
	out.Status = clonePtr(f.Status)
	out.Comment = clonePtr(f.Comment)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
