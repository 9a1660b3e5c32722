package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"cdprpa/internal/ctxkeys"
	"cdprpa/internal/logger"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Dsn: filepath.Join(t.TempDir(), "journal.db"), Prefix: "test_"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDownloadsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	r := &DownloadRecord{SessionID: "s1", Path: "/d/a.pdf", Size: 150, Readings: 5, StartedAt: started, ElapsedMs: 4000}
	require.NoError(t, s.SaveDownload(ctx, r))
	assert.Len(t, r.ID, 36)
	require.NoError(t, s.SaveDownload(ctx, &DownloadRecord{SessionID: "s2", Path: "/d/b.csv", Size: 9}))

	got, err := s.ListDownloads(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/d/a.pdf", got[0].Path)
	assert.Equal(t, int64(150), got[0].Size)
	assert.Equal(t, 5, got[0].Readings)
	assert.True(t, started.Equal(got[0].StartedAt))

	all, err := s.ListDownloads(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := s.ListDownloads(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestWaitsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWait(ctx, &WaitRecord{SessionID: "s1", Kind: "element-visible", Locator: "//a", Satisfied: true, Polls: 3, ElapsedMs: 2000}))
	require.NoError(t, s.SaveWait(ctx, &WaitRecord{SessionID: "s1", Kind: "url-contains", Value: "/done", TimedOut: true, Error: "condition url-contains not met after 12s"}))

	got, err := s.ListWaits(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	kinds := []string{got[0].Kind, got[1].Kind}
	assert.ElementsMatch(t, []string{"element-visible", "url-contains"}, kinds)

	none, err := s.ListWaits(ctx, "other", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTablePrefix(t *testing.T) {
	s := openStore(t)
	assert.True(t, s.db.Migrator().HasTable("test_download_records"))
	assert.True(t, s.db.Migrator().HasTable("test_wait_records"))
}

func TestGormLoggerRoutesErrors(t *testing.T) {
	var buf bytes.Buffer
	gl := NewGormLogger(logger.NewWithWriter(&buf, "debug"))
	ctx := ctxkeys.WithTraceID(context.Background(), "trace-1")

	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, assert.AnError)
	line := gjson.Parse(buf.String())
	assert.Equal(t, "SQL执行错误", line.Get("message").String())
	assert.Equal(t, "trace-1", line.Get("traceId").String())
	assert.Equal(t, "SELECT 1", line.Get("sql").String())

	buf.Reset()
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())
}
