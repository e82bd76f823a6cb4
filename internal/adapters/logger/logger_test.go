package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestStdLogger_FiltersAndSortsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelInfo)
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Warn(ctx, "Update: minor issues found", map[string]interface{}{"ticket": 1001, "status": "Opened", "magic": 100})
	l.Error(ctx, errors.New("boom"), "Manager: entering emergency mode")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] Update: minor issues found | magic=100 status=Opened ticket=1001")
	assert.Contains(t, out, "[ERROR] Manager: entering emergency mode | error: boom")
}

func TestStdLogger_MergesFieldMaps(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelDebug)
	l.Info(context.Background(), "merged", map[string]interface{}{"b": 2}, map[string]interface{}{"a": 1})
	assert.Contains(t, buf.String(), "merged | a=1 b=2")
}

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapLoggerFrom(zap.New(core))
	ctx := context.Background()

	l.Info(ctx, "Update: successor found", map[string]interface{}{"ticket": int64(1002)})
	l.Error(ctx, errors.New("lost"), "nonActiveAccounting: position totally lost")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Update: successor found", entries[0].Message)
	assert.Equal(t, int64(1002), entries[0].ContextMap()["ticket"])
	assert.Equal(t, "lost", entries[1].ContextMap()["error"])
}

func TestNewZapLogger_UnknownFormat(t *testing.T) {
	_, err := NewZapLogger(LevelInfo, "xml", "")
	assert.Error(t, err)
}
