package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var out []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e), line)
		out = append(out, e)
	}
	return out
}

func TestStructuredLogger_LevelAndContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("traffic-test", "1.0.0", WarnLevel)
	logger.SetOutput(&buf)

	ctx := WithStationID(WithRequestID(context.Background(), "req-1"), "1001")
	logger.Info(ctx, "[SKIPPED] below level", Fields{})
	logger.Error(ctx, "[FAILED] something broke", Fields{"file": "a.csv"}, errors.New("boom"))

	got := entries(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "ERROR", got[0].Level)
	assert.Equal(t, "req-1", got[0].RequestID)
	assert.Equal(t, "1001", got[0].StationID)
	assert.Equal(t, "boom", got[0].Error)
	assert.Equal(t, "a.csv", got[0].Fields["file"])
}

func TestFieldLogger_MergesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("traffic-test", "1.0.0", DebugLevel)
	logger.SetOutput(&buf)

	run := logger.With(Fields{"horizon": 7, "step": 1})
	run.With(Fields{"station": "1001"}).Info(context.Background(), "[RUN] station", Fields{"step": 2})
	run.Debug(context.Background(), "[RUN] done", nil)

	got := entries(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, float64(7), got[0].Fields["horizon"])
	assert.Equal(t, float64(2), got[0].Fields["step"])
	assert.Equal(t, "1001", got[0].Fields["station"])

	// binding a child logger leaves the parent untouched
	assert.NotContains(t, got[1].Fields, "station")
	assert.Equal(t, float64(1), got[1].Fields["step"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}
