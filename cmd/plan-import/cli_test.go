package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"

	"github.com/seoplan/planner/internal/testbackend"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
	"github.com/seoplan/planner/pkg/tabular"
)

type cliEnv struct {
	t   *testing.T
	srv *testbackend.Server
	url string
	dir string
}

func newCLIEnv(t *testing.T, clusters map[record.TargetID][]string) *cliEnv {
	t.Helper()
	srv := testbackend.New(testbackend.Options{Token: "secret", Clusters: clusters})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Setenv("IMPORT_REQUEST_DELAY", "0s")
	t.Setenv("IMPORT_RETRY_BACKOFF", "0s")
	return &cliEnv{t: t, srv: srv, url: ts.URL, dir: t.TempDir()}
}

func (e *cliEnv) file(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the CLI and returns its JSON lines.
func (e *cliEnv) run(args ...string) ([]map[string]any, error) {
	e.t.Helper()
	a := &app{}
	defer a.close()
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--env-file", filepath.Join(e.dir, "missing.env"),
		"--backend-url", e.url,
		"--token", "secret",
	}, args...))
	err := cmd.ExecuteContext(context.Background())

	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if !strings.HasPrefix(raw, "{") {
			continue
		}
		var line map[string]any
		require.NoError(e.t, json.Unmarshal([]byte(raw), &line), raw)
		lines = append(lines, line)
	}
	return lines, err
}

func TestImportCmd_Accepted(t *testing.T) {
	env := newCLIEnv(t, map[record.TargetID][]string{1: nil, 2: nil})
	path := env.file("plan.csv", "Тема;Период;Символы\nX;2024-01;1 000\nY;2024-01;abc\n")
	metrics := filepath.Join(env.dir, "metrics.prom")

	lines, err := env.run("--metrics-file", metrics, "import", "--file", path, "--target", "1", "--target", "2")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "prepared", lines[0]["event"])
	require.Equal(t, float64(1), lines[0]["stats"].(map[string]any)["coercion_fallbacks"])
	require.Equal(t, "accepted", lines[1]["outcome"])
	require.Len(t, env.srv.Records(), 4)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	require.Contains(t, string(prom), "planner_import_outcomes_total")
}

func TestImportCmd_DryRunSubmitsNothing(t *testing.T) {
	env := newCLIEnv(t, map[record.TargetID][]string{1: nil})
	path := env.file("plan.csv", "title,url\nX,example.com\n,orphan.com\n")

	lines, err := env.run("import", "--file", path, "--dry-run")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Len(t, lines[0]["skipped"], 1)
	require.Equal(t, "example.com", lines[1]["item"].(map[string]any)["url"])
	require.Zero(t, env.srv.Imports())
}

func TestImportCmd_PartialSaveAndRetry(t *testing.T) {
	env := newCLIEnv(t, map[record.TargetID][]string{1: {"Savanna"}, 2: nil})
	path := env.file("plan.csv", "topic,cluster\nElephants,Savanna\n")
	batch := filepath.Join(env.dir, "batch.json")

	lines, err := env.run("import", "--file", path, "--target", "1", "--target", "2", "--save-partial", batch)
	require.Error(t, err)
	require.Equal(t, exitPartial, exitCode(err))
	require.Equal(t, "awaiting_retry_decision", lines[1]["state"])
	require.Equal(t, []any{float64(2)}, lines[1]["blocked"])
	require.Empty(t, env.srv.Records())

	lines, err = env.run("retry", "--batch", batch)
	require.NoError(t, err)
	require.Equal(t, "accepted", lines[0]["state"])

	records := env.srv.Records()
	require.Len(t, records, 1)
	require.Equal(t, record.TargetID(1), records[0].Project)
}

func TestImportCmd_ExitCodes(t *testing.T) {
	env := newCLIEnv(t, map[record.TargetID][]string{1: nil})

	_, err := env.run("import", "--file", filepath.Join(env.dir, "nope.csv"), "--target", "1")
	require.Equal(t, exitValidation, exitCode(err))

	noTopic := env.file("no-topic.csv", "comment\nhello\n")
	_, err = env.run("import", "--file", noTopic, "--target", "1")
	require.Equal(t, exitValidation, exitCode(err))
	require.ErrorIs(t, err, services.ErrMappingGap)

	ok := env.file("ok.csv", "topic\nX\n")
	_, err = env.run("import", "--file", ok)
	require.Equal(t, exitUsage, exitCode(err))

	_, err = env.run("import", "--file", ok, "--target", "9")
	require.Equal(t, exitBackend, exitCode(err))
	require.ErrorIs(t, err, outcome.ErrRejected)
}

func TestBulkCommands(t *testing.T) {
	env := newCLIEnv(t, map[record.TargetID][]string{1: nil, 2: nil, 3: nil})
	topic, chars := "X", int64(100)
	seeded := env.srv.Seed(
		record.Record{Project: 1, Fields: item.Fields{Topic: &topic, Chars: &chars}},
		record.Record{Project: 2, Fields: item.Fields{Topic: &topic, Chars: &chars}},
	)
	id := seeded[0].ID.String()

	lines, err := env.run("groups")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, []any{float64(1), float64(2)}, lines[0]["targets"])

	_, err = env.run("membership", "add", "--record", id, "--target", "3")
	require.NoError(t, err)
	require.Len(t, env.srv.Records(), 3)

	_, err = env.run("edit", "--record", id, "--set", "chars=2 500", "--only", "1")
	require.NoError(t, err)

	lines, err = env.run("check", "--strict")
	require.Equal(t, exitValidation, exitCode(err))
	require.Equal(t, "divergence", lines[0]["event"])
	require.Equal(t, []any{"chars"}, lines[0]["fields"])

	_, err = env.run("membership", "remove", "--record", id, "--target", "1")
	require.NoError(t, err)

	lines, err = env.run("delete", "--record", seeded[1].ID.String())
	require.NoError(t, err)
	require.Equal(t, false, lines[0]["applied"])
	require.Len(t, lines[0]["ids"], 2)

	_, err = env.run("delete", "--record", seeded[1].ID.String(), "--yes")
	require.NoError(t, err)
	require.Empty(t, env.srv.Records())
}

func TestClassify(t *testing.T) {
	require.Equal(t, exitValidation, exitCode(classify(errors.Wrap(tabular.ErrParse, "x"))))
	require.Equal(t, exitBackend, exitCode(classify(errors.Wrap(services.ErrTransport, "x"))))
	require.Equal(t, exitUsage, exitCode(classify(services.ErrNotPartial)))
	require.Equal(t, exitPartial, exitCode(classify(withCode(exitPartial, errors.New("x")))))
	require.Equal(t, 1, exitCode(classify(errors.New("x"))))
	require.Equal(t, exitOK, exitCode(classify(nil)))
}
