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

func newBufferLogger(t *testing.T, level LogLevel, format Format) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{
		Level:  level,
		Format: format,
		Output: &buf,
	})
	require.NoError(t, err)
	return logger, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{" error ", ErrorLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatConsole, ParseFormat("console"))
	assert.Equal(t, FormatConsole, ParseFormat(""))
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, WarnLevel, FormatConsole)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", errors.New("boom"))

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "WARN")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "ERROR")
	assert.Contains(t, output, "error message")
	assert.Contains(t, output, "boom")
}

func TestZapLogger_JSONFields(t *testing.T) {
	logger, buf := newBufferLogger(t, DebugLevel, FormatJSON)

	logger.Info("lookup served",
		String("key", "123"),
		Int("records", 2),
		Bool("stale", false),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "lookup served", entry["msg"])
	assert.Equal(t, "123", entry["key"])
	assert.Equal(t, float64(2), entry["records"])
	assert.Equal(t, false, entry["stale"])
}

func TestZapLogger_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, InfoLevel, FormatJSON)

	scoped := logger.WithFields(String("component", "cache"))
	scoped.Info("refreshed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cache", entry["component"])

	assert.Same(t, logger, logger.WithFields())
}

func TestZapLogger_WithContext(t *testing.T) {
	logger, buf := newBufferLogger(t, InfoLevel, FormatJSON)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	logger.WithContext(ctx).Info("handled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])

	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
	assert.Equal(t, "abc", RequestIDFromContext(ContextWithRequestID(context.Background(), "abc")))

	// a plain string key must not collide with the typed key
	//nolint:staticcheck
	ctx := context.WithValue(context.Background(), "request_id", "plain")
	assert.Equal(t, "", RequestIDFromContext(ctx))
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	logger, buf := newBufferLogger(t, DebugLevel, FormatConsole)
	SetGlobalLogger(logger)

	Debug("global debug")
	Info("global info")
	Warn("global warn")
	Error("global error", errors.New("bad"))
	WithFields(String("k", "v")).Info("with fields")

	output := buf.String()
	for _, want := range []string{"global debug", "global info", "global warn", "global error", "with fields"} {
		assert.Contains(t, output, want)
	}
	assert.Equal(t, 5, strings.Count(strings.TrimSpace(output), "\n")+1)
}

func TestInitGlobalLogger_File(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	path := t.TempDir() + "/app.log"
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")

	InitGlobalLogger()
	Info("written to file")
	MustSync()

	assert.FileExists(t, path)
}

func TestFieldHelpers(t *testing.T) {
	err := errors.New("x")
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
	assert.Equal(t, Field{Key: "n", Value: int64(3)}, Int64("n", 3))
	assert.Equal(t, Field{Key: "a", Value: []int{1}}, Any("a", []int{1}))
}
