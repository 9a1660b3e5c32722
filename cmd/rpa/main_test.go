package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"cdprpa/internal/wait"
	"cdprpa/pkg/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestKindsCommand(t *testing.T) {
	out, err := run(t, "kinds")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(wait.Kinds()))
	assert.Contains(t, lines, "url-contains")
}

func TestWaitRejectsUnknownKindBeforeConnecting(t *testing.T) {
	cfg := writeConfig(t, "log:\n  writer: []\n")
	_, err := run(t, "--config", cfg, "wait", "page-loaded")
	assert.ErrorIs(t, err, wait.ErrInvalidRequest)
}

func TestWaitRejectsMissingFields(t *testing.T) {
	cfg := writeConfig(t, "log:\n  writer: []\n")
	_, err := run(t, "--config", cfg, "wait", "attribute-contains-text", "--locator", "//a")
	assert.ErrorIs(t, err, wait.ErrInvalidRequest)
}

func TestDownloadCommandWithJournal(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relatorio.csv")
	require.NoError(t, os.WriteFile(file, []byte("a,b\n1,2\n"), 0o644))
	cfg := writeConfig(t, "log:\n  writer: []\nsqlite:\n  dsn: "+filepath.Join(dir, "j.db")+"\n")

	out, err := run(t, "--config", cfg, "download", file, "--interval", "5ms", "--threshold", "1")
	require.NoError(t, err)
	doc := gjson.Parse(strings.TrimSpace(out))
	assert.Equal(t, file, doc.Get("path").String())
	assert.Equal(t, int64(8), doc.Get("size").Int())
	assert.Equal(t, int64(2), doc.Get("readings").Int())
}

type stubElement struct{ domain.Element }

func (stubElement) Locator() domain.Locator { return "//h1" }

func TestOutcomeJSON(t *testing.T) {
	doc, err := outcomeJSON(&wait.Outcome{Kind: wait.KindElementVisible, Satisfied: true, Polls: 2, Element: stubElement{}})
	require.NoError(t, err)
	r := gjson.Parse(doc)
	assert.Equal(t, "element-visible", r.Get("kind").String())
	assert.True(t, r.Get("satisfied").Bool())
	assert.Equal(t, int64(2), r.Get("polls").Int())
	assert.Equal(t, "//h1", r.Get("element").String())
	assert.False(t, r.Get("count").Exists())
}
