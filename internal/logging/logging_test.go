package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("sweep finished", "missed", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sweep finished", rec["msg"])
	assert.EqualValues(t, 3, rec["missed"])
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestGormBridgeReportsSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Output: &buf})
	require.NoError(t, err)

	gl := Gorm(log)
	begin := time.Now().Add(-time.Second)
	gl.Trace(context.Background(), begin, func() (string, int64) { return "SELECT 1", 1 }, nil)

	assert.Contains(t, buf.String(), "SLOW SQL")
	assert.Contains(t, buf.String(), "component=gorm")

	buf.Reset()
	gl.LogMode(logger.Silent).Trace(context.Background(), begin, func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())
}
