package field

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemas_RequiredFields(t *testing.T) {
	require.Equal(t, []ID{Phrase}, QuerySchema.Required())
	require.Equal(t, []ID{Topic}, ContentPlanSchema.Required())
}

func TestSchemas_SynonymsAreUniqueWithinSchema(t *testing.T) {
	for _, s := range []Schema{QuerySchema, ContentPlanSchema} {
		owner := map[string]ID{}
		for _, f := range s.Fields {
			require.NotEmpty(t, f.Synonyms, "%s/%s", s.Kind, f.ID)
			for _, syn := range f.Synonyms {
				key := strings.ToLower(syn)
				prev, dup := owner[key]
				require.False(t, dup, "%s: synonym %q claimed by %s and %s", s.Kind, syn, prev, f.ID)
				owner[key] = f.ID
			}
		}
	}
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor(KindQuery)
	require.NoError(t, err)
	require.Equal(t, KindQuery, s.Kind)

	_, err = SchemaFor("unknown")
	require.Error(t, err)

	spec, ok := ContentPlanSchema.Lookup(PublishDate)
	require.True(t, ok)
	require.Equal(t, KindDate, spec.Kind)

	_, ok = QuerySchema.Lookup(Topic)
	require.False(t, ok)
}

func TestParseImportKind(t *testing.T) {
	k, err := ParseImportKind("content-plan")
	require.NoError(t, err)
	require.Equal(t, KindContentPlan, k)

	_, err = ParseImportKind("orders")
	require.Error(t, err)
}
