package services

import (
	"github.com/seoplan/planner/modules/planimport/domain/record"
)

// Reconcile collapses per-target records into logical groups keyed by record.KeyOf, in the
// order the backend returned them. The first record of a key is the group's sample; later
// records only add membership and their field values are not compared.
//
// A target holds at most one record per group. When a target has several records under
// one key (a re-import appends rather than updates), each extra record goes to the next
// group of that key lacking the target, opening one if needed, so every record keeps
// exactly one membership entry.
func Reconcile(records []record.Record) []*record.Group {
	var groups []*record.Group
	byKey := map[record.GroupKey][]*record.Group{}
	for _, r := range records {
		key := record.KeyOf(r.Fields)
		placed := false
		for _, g := range byKey[key] {
			if g.Add(r.Project, r.ID) {
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		g := record.NewGroup(r)
		byKey[key] = append(byKey[key], g)
		groups = append(groups, g)
	}
	return groups
}

// Expand returns the member record ids of g for the given targets, skipping non-members.
func Expand(g *record.Group, targets []record.TargetID) []record.ID {
	out := make([]record.ID, 0, len(targets))
	for _, t := range targets {
		if id, ok := g.Members[t]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Divergence flags a group member whose stored values differ from the group's sample.
type Divergence struct {
	Key    record.GroupKey `json:"key"`
	Target record.TargetID `json:"target"`
	ID     record.ID       `json:"id"`
	Fields []string        `json:"fields"`
}

// Divergent reconciles records and reports every member that disagrees with its group's
// sample. It only reports; groups and samples are left as Reconcile builds them.
func Divergent(records []record.Record) []Divergence {
	groups := Reconcile(records)
	owner := make(map[record.ID]*record.Group, len(records))
	for _, g := range groups {
		for _, id := range g.Members {
			owner[id] = g
		}
	}
	var out []Divergence
	for _, r := range records {
		g, ok := owner[r.ID]
		if !ok || g.Members[r.Project] != r.ID {
			continue
		}
		if diff := g.Sample.DiffKeys(r.Fields); len(diff) > 0 {
			out = append(out, Divergence{Key: g.Key, Target: r.Project, ID: r.ID, Fields: diff})
		}
	}
	return out
}

// DuplicateKey reports a key that needed more than one group, meaning some target stores
// the same logical entity more than once.
type DuplicateKey struct {
	Key    record.GroupKey `json:"key"`
	Groups int             `json:"groups"`
}

func DuplicateKeys(groups []*record.Group) []DuplicateKey {
	counts := map[record.GroupKey]int{}
	var order []record.GroupKey
	for _, g := range groups {
		if counts[g.Key] == 0 {
			order = append(order, g.Key)
		}
		counts[g.Key]++
	}
	var out []DuplicateKey
	for _, k := range order {
		if counts[k] > 1 {
			out = append(out, DuplicateKey{Key: k, Groups: counts[k]})
		}
	}
	return out
}
