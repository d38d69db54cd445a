package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seoplan/planner/modules/planimport/domain/item"
)

func strp(s string) *string { return &s }

func TestKeyOf_AbsentIsEmpty(t *testing.T) {
	k := KeyOf(item.Fields{Topic: strp("X"), Period: strp("2024-01")})
	require.Equal(t, GroupKey{Topic: "X", Period: "2024-01"}, k)
	require.Equal(t, k, KeyOf(item.Fields{Topic: strp("X"), Period: strp("2024-01"), Section: strp("")}))
}

func TestGroup_Membership(t *testing.T) {
	g := NewGroup(Record{ID: 10, Project: 2, Fields: item.Fields{Topic: strp("X")}})
	require.True(t, g.Add(1, 11))
	require.False(t, g.Add(2, 99))

	require.Equal(t, []TargetID{2, 1}, g.Targets())
	require.Equal(t, []ID{10, 11}, g.IDs())
	require.Equal(t, 2, g.Size())
	require.True(t, g.Has(1))
	require.False(t, g.Has(3))
}

func TestRecord_JSONFlattensFields(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":5,"project":7,"topic":"X","tags":["a"]}`), &r))
	require.Equal(t, ID(5), r.ID)
	require.Equal(t, TargetID(7), r.Project)
	require.Equal(t, "X", *r.Topic)
	require.Equal(t, []string{"a"}, r.Tags)
}
