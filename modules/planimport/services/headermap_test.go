package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seoplan/planner/modules/planimport/domain/field"
)

func TestMapHeaders_SynonymsCaseInsensitive(t *testing.T) {
	headers := []string{" ФРАЗА ", "Направление", "Wordstat", "Кол-во символов", "Notes"}
	m := MapHeaders(field.QuerySchema, headers)
	require.Equal(t, HeaderMapping{
		field.Phrase:    " ФРАЗА ",
		field.Direction: "Направление",
		field.WSFlag:    "Wordstat",
		field.Chars:     "Кол-во символов",
	}, m)
}

func TestMapHeaders_FirstHeaderWinsPerField(t *testing.T) {
	headers := []string{"Query", "Phrase"}
	m := MapHeaders(field.QuerySchema, headers)
	require.Equal(t, "Query", m[field.Phrase])
	require.Len(t, m, 1)
}

func TestMapHeaders_ClaimedHeaderIsNotShared(t *testing.T) {
	schema := field.Schema{
		Kind: field.KindContentPlan,
		Fields: []field.Spec{
			{ID: field.Topic, Synonyms: []string{"title"}},
			{ID: field.Comment, Synonyms: []string{"title", "note"}},
		},
	}
	m := MapHeaders(schema, []string{"Title", "Note"})
	require.Equal(t, HeaderMapping{field.Topic: "Title", field.Comment: "Note"}, m)

	m = MapHeaders(schema, []string{"Title"})
	require.Equal(t, HeaderMapping{field.Topic: "Title"}, m)
}

func TestMapHeaders_Deterministic(t *testing.T) {
	headers := []string{"Тема", "Период", "Раздел", "Направление", "Дата", "Автор", "Ключи", "Теги", "Тема"}
	first := MapHeaders(field.ContentPlanSchema, headers)
	for range 50 {
		require.Equal(t, first, MapHeaders(field.ContentPlanSchema, headers))
	}
}

func TestHeaderMapping_Override(t *testing.T) {
	headers := []string{"Topic", "Notes", "Writer"}
	m := MapHeaders(field.ContentPlanSchema, headers)
	require.Equal(t, "Topic", m[field.Topic])

	require.NoError(t, m.Override(field.ContentPlanSchema, headers, field.Author, "Writer"))
	require.Equal(t, "Writer", m[field.Author])

	require.NoError(t, m.Override(field.ContentPlanSchema, headers, field.Comment, "Topic"))
	require.Equal(t, "Topic", m[field.Comment])
	_, stillMapped := m[field.Topic]
	require.False(t, stillMapped)

	require.NoError(t, m.Override(field.ContentPlanSchema, headers, field.Comment, ""))
	_, stillMapped = m[field.Comment]
	require.False(t, stillMapped)

	require.Error(t, m.Override(field.ContentPlanSchema, headers, field.Phrase, "Topic"))
	require.Error(t, m.Override(field.ContentPlanSchema, headers, field.Topic, "Missing"))
}

func TestParseOverrides(t *testing.T) {
	got, err := ParseOverrides([]string{"topic=Тема статьи", " author =Writer"})
	require.NoError(t, err)
	require.Equal(t, map[field.ID]string{field.Topic: "Тема статьи", field.Author: "Writer"}, got)

	_, err = ParseOverrides([]string{"topic"})
	require.Error(t, err)
}

func TestCheckRequired(t *testing.T) {
	headers := []string{"Phrases list", "Direction"}
	m := MapHeaders(field.QuerySchema, headers)

	err := CheckRequired(field.QuerySchema, headers, m)
	require.ErrorIs(t, err, ErrMappingGap)

	var gap *MappingGapError
	require.ErrorAs(t, err, &gap)
	require.Equal(t, []field.ID{field.Phrase}, gap.Missing)
	require.Equal(t, []string{"Phrases list"}, gap.Suggestions[field.Phrase])
	require.Contains(t, err.Error(), `phrase (did you mean "Phrases list"?)`)

	m[field.Phrase] = "Phrases list"
	require.NoError(t, CheckRequired(field.QuerySchema, headers, m))
}
