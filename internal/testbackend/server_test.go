package testbackend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seoplan/planner/modules/planimport/domain/record"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_ImportUpsertsByGroupKey(t *testing.T) {
	s := New(Options{Token: "tok", Clusters: map[record.TargetID][]string{1: {"A"}, 2: nil}})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/import", `{"target_ids":[1],"items":[{"topic":"X","cluster":"A"},{"topic":"X","cluster":"A","chars":5}],"default_section":"news"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"created":1,"updated":1}`, rec.Body.String())

	records := s.Records()
	require.Len(t, records, 1)
	require.Equal(t, int64(5), *records[0].Chars)
	require.Equal(t, "news", *records[0].Section)
}

func TestServer_MissingClusterCommitsNothing(t *testing.T) {
	s := New(Options{Token: "tok", Clusters: map[record.TargetID][]string{1: {"A"}, 2: nil}})
	rec := do(t, s.Handler(), http.MethodPost, "/import", `{"target_ids":[1,2],"items":[{"topic":"X","cluster":"A"}]}`)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	require.JSONEq(t, `{"missing_by_project":{"2":["cluster A"]},"allowed_project_ids":[1]}`, rec.Body.String())
	require.Empty(t, s.Records())
	require.Equal(t, 1, s.Imports())
}

func TestServer_AuthAndRecords(t *testing.T) {
	s := New(Options{Token: "tok", Clusters: map[record.TargetID][]string{1: nil}})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/records", `{"project":1,"topic":"X","status":"draft"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := s.Records()[0].ID

	rec = do(t, h, http.MethodPatch, "/records/"+id.String(), `{"status":null,"comment":"ok"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	got := s.Records()[0]
	require.Nil(t, got.Status)
	require.Equal(t, "ok", *got.Comment)

	rec = do(t, h, http.MethodGet, "/records?target=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"comment":"ok"`)

	rec = do(t, h, http.MethodDelete, "/records", `{"ids":[`+id.String()+`]}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, s.Records())

	rec = do(t, h, http.MethodPatch, "/records/999", `{}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
