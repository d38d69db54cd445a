package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
)

func strp(s string) *string { return &s }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL + "/api", Token: "secret", RequestIDHeader: "X-Request-ID"})
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "localhost"})
	require.Error(t, err)
}

func TestClient_ImportSendsContractBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/import", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"target_ids":[1,2],
			"items":[{"phrase":"elephant","direction":null,"cluster":null,"ws_flag":null,"ws_volume":null,"chars":5,"tags":[]}],
			"default_direction":"zoo"
		}`, string(body))

		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"missing_by_project":{"2":["cluster A"]},"allowed_project_ids":[1]}`))
	})

	chars := int64(5)
	out, err := c.Import(context.Background(), services.ImportRequest{
		TargetIDs: []record.TargetID{1, 2},
		Items:     []item.Item{{Kind: field.KindQuery, Fields: item.Fields{Phrase: strp("elephant"), Chars: &chars}}},
		Defaults:  item.Defaults{Direction: strp("zoo")},
	})
	require.NoError(t, err)
	require.Equal(t, outcome.PartiallyAccepted{
		Accepted: []record.TargetID{1},
		Rejected: map[record.TargetID][]string{2: {"cluster A"}},
	}, out)
}

func TestClient_ImportStatusMapping(t *testing.T) {
	status := http.StatusUnauthorized
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"detail":"invalid token"}`))
	})

	out, err := c.Import(context.Background(), services.ImportRequest{})
	require.NoError(t, err)
	require.Equal(t, outcome.Rejected{Status: 401, Reason: "invalid token"}, out)

	status = http.StatusServiceUnavailable
	_, err = c.Import(context.Background(), services.ImportRequest{})
	require.ErrorIs(t, err, services.ErrTransport)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.ListRecords(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrTransport)
}

func TestClient_Records(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/records":
			require.Equal(t, []string{"1", "2"}, r.URL.Query()["target"])
			_, _ = w.Write([]byte(`[{"id":7,"project":1,"topic":"X"},{"id":8,"project":2,"topic":"X"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/records":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, float64(3), body["project"])
			require.Equal(t, "X", body["topic"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":9,"project":3,"topic":"X"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/api/records/7":
			require.Equal(t, "application/merge-patch+json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			require.JSONEq(t, `{"status":"done"}`, string(body))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPatch && r.URL.Path == "/api/records/404":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"record not found"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/records":
			body, _ := io.ReadAll(r.Body)
			require.JSONEq(t, `{"ids":[7,8]}`, string(body))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	records, err := c.ListRecords(ctx, []record.TargetID{1, 2})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, record.TargetID(2), records[1].Project)

	created, err := c.CreateRecord(ctx, 3, item.Fields{Topic: strp("X")})
	require.NoError(t, err)
	require.Equal(t, record.ID(9), created.ID)

	require.NoError(t, c.PatchRecord(ctx, 7, []byte(`{"status":"done"}`)))
	err = c.PatchRecord(ctx, 404, []byte(`{}`))
	require.ErrorIs(t, err, outcome.ErrRejected)
	require.Contains(t, err.Error(), "record not found")

	require.NoError(t, c.DeleteRecords(ctx, []record.ID{7, 8}))
}

func TestClient_Users(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":1,"username":"anna","full_name":"Anna Smith"}]`))
	})
	users, err := c.Users(context.Background())
	require.NoError(t, err)
	require.Equal(t, []services.User{{ID: 1, Username: "anna", FullName: "Anna Smith"}}, users)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))

	got := truncate("ошибка сервера", 5)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, "ош...", got)

	body := "x" + strings.Repeat("я", 200)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	})
	_, err := c.ListRecords(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrTransport)
	require.True(t, utf8.ValidString(err.Error()))
}
