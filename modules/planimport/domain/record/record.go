// Package record models stored per-target records and their grouped projection.
package record

import (
	"slices"
	"strconv"

	"github.com/seoplan/planner/modules/planimport/domain/item"
)

// TargetID identifies a project, the scope that owns stored records.
type TargetID int64

func (t TargetID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// ID is the backend identity of a stored record.
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Record is a persisted row scoped to one target.
type Record struct {
	ID      ID       `json:"id"`
	Project TargetID `json:"project"`
	item.Fields
}

// GroupKey is the derived reconciliation key. Absent values compare as "".
type GroupKey struct {
	Topic     string `json:"topic"`
	Period    string `json:"period"`
	Section   string `json:"section"`
	Direction string `json:"direction"`
}

func KeyOf(f item.Fields) GroupKey {
	return GroupKey{
		Topic:     deref(f.Topic),
		Period:    deref(f.Period),
		Section:   deref(f.Section),
		Direction: deref(f.Direction),
	}
}

// Group is one logical entity spread across targets. Members maps each target to the id
// of its stored record; Sample holds the field values of the first record seen.
type Group struct {
	Key     GroupKey
	Sample  item.Fields
	Members map[TargetID]ID
	order   []TargetID
}

func NewGroup(first Record) *Group {
	g := &Group{
		Key:     KeyOf(first.Fields),
		Sample:  first.Fields.Clone(),
		Members: map[TargetID]ID{},
	}
	g.Add(first.Project, first.ID)
	return g
}

// Add records membership of target. It reports false when target is already a member.
func (g *Group) Add(target TargetID, id ID) bool {
	if _, ok := g.Members[target]; ok {
		return false
	}
	g.Members[target] = id
	g.order = append(g.order, target)
	return true
}

func (g *Group) Has(target TargetID) bool {
	_, ok := g.Members[target]
	return ok
}

// Targets returns member targets in the order they joined.
func (g *Group) Targets() []TargetID {
	return slices.Clone(g.order)
}

// IDs returns member record ids in target join order.
func (g *Group) IDs() []ID {
	out := make([]ID, 0, len(g.order))
	for _, t := range g.order {
		out = append(out, g.Members[t])
	}
	return out
}

func (g *Group) Size() int {
	return len(g.Members)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
