package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").With("session", "s1")

	l.Info("文件大小", "bytes", 150, "stable", 2)

	line := buf.Bytes()
	require.True(t, gjson.ValidBytes(line))
	assert.Equal(t, "info", gjson.GetBytes(line, "level").String())
	assert.Equal(t, "s1", gjson.GetBytes(line, "session").String())
	assert.Equal(t, int64(150), gjson.GetBytes(line, "bytes").Int())
	assert.Equal(t, int64(2), gjson.GetBytes(line, "stable").Int())
	assert.Equal(t, "文件大小", gjson.GetBytes(line, "message").String())
}

func TestErrAttachesError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug")

	l.Err(errors.New("boom"), "失败", "kind", "url-contains")

	assert.Equal(t, "error", gjson.GetBytes(buf.Bytes(), "level").String())
	assert.Equal(t, "boom", gjson.GetBytes(buf.Bytes(), "error").String())
	assert.Equal(t, "url-contains", gjson.GetBytes(buf.Bytes(), "kind").String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Info("x", "k", "v")
	l.With("a", 1).Err(errors.New("e"), "y")
}
