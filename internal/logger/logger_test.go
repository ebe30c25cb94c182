package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/spamguard-go/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		records = append(records, rec)
	}
	return records
}

func TestSlogLoggerFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC).Module("verifier")

	log.Info("verdict received",
		logger.String("provider", "gemini"),
		logger.Int("attempt", 2),
		logger.Float64("confidence", 91.23456),
		logger.Bool("cached", false),
		logger.Duration("elapsed", 1500*time.Millisecond),
		logger.Error(errors.New("boom")))

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	rec := records[0]

	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "verdict received", rec["msg"])
	assert.Equal(t, "verifier", rec["module"])
	assert.Equal(t, "gemini", rec["provider"])
	assert.InDelta(t, 2, rec["attempt"], 0)
	assert.InDelta(t, 91.235, rec["confidence"], 0.0001)
	assert.Equal(t, false, rec["cached"])
	assert.Equal(t, "1.5s", rec["elapsed"])
	assert.Equal(t, "boom", rec["error"])
}

func TestSlogLoggerLevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level logger.LogLevel
		want  []string
	}{
		{"trace passes everything", logger.LogLevelTrace, []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}},
		{"info drops debug and trace", logger.LogLevelInfo, []string{"INFO", "WARN", "ERROR"}},
		{"error keeps only errors", logger.LogLevelError, []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			log := logger.NewSlogLogger(buf, tt.level, time.UTC)

			log.Trace("t")
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			var got []string
			for _, rec := range decodeLines(t, buf) {
				got = append(got, rec["level"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithAndWithContext(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC).Module("api")

	ctx := logger.WithTraceID(context.Background(), "trace-123")
	reqLog := base.With(logger.String("path", "/api/predict/sms")).WithContext(ctx)

	reqLog.Info("request handled")
	base.Info("plain")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "trace-123", records[0]["trace_id"])
	assert.Equal(t, "/api/predict/sms", records[0]["path"])
	assert.NotContains(t, records[1], "trace_id")
	assert.NotContains(t, records[1], "path")
}

func TestSubModuleNaming(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC).Module("datastore").Module("sqlite")
	log.Info("opened")

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "datastore.sqlite", records[0]["module"])
}

func TestCentralLoggerModuleRouting(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.log")
	authPath := filepath.Join(dir, "auth.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: mainPath, Level: "info"},
		ModuleOutputs: map[string]logger.ModuleOutput{
			"auth":   {Enabled: true, FilePath: authPath, Level: "debug"},
			"access": {Enabled: false},
		},
	})
	require.NoError(t, err)

	cl.Module("auth").Debug("login attempt", logger.String("username", "alice"))
	cl.Module("classifier").Info("models loaded")
	cl.Module("classifier").Debug("hidden")

	require.NoError(t, cl.Close())

	authData, err := os.ReadFile(authPath)
	require.NoError(t, err)
	assert.Contains(t, string(authData), "login attempt")
	assert.NotContains(t, string(authData), "models loaded")

	mainData, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	assert.Contains(t, string(mainData), "models loaded")
	assert.NotContains(t, string(mainData), "hidden")
	assert.NotContains(t, string(mainData), "login attempt")
}

func TestCentralLoggerSharesWriterForSamePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "all.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		Timezone:   "UTC",
		Console:    &logger.ConsoleOutput{Enabled: false},
		FileOutput: &logger.FileOutput{Enabled: true, Path: path, Level: "info"},
		ModuleOutputs: map[string]logger.ModuleOutput{
			"auth":   {Enabled: true, FilePath: path, Level: "warn"},
			"access": {Enabled: false},
		},
		ModuleLevels: map[string]string{"verifier": "error"},
	})
	require.NoError(t, err)

	cl.Module("auth").Info("below auth level")
	cl.Module("auth").Warn("lockout")
	cl.Module("verifier").Warn("below verifier level")
	cl.Module("verifier").Error("verifier failed")
	cl.Module("api").Debug("not at default level")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "lockout")
	assert.Contains(t, out, "verifier failed")
	assert.NotContains(t, out, "below verifier level")
	assert.NotContains(t, out, "below auth level")
	assert.NotContains(t, out, "not at default level")
}

func TestGlobalFallsBackToConsole(t *testing.T) {
	log := logger.Global().Module("startup")
	require.NotNil(t, log)
	log.Debug("dropped at info level")
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{
		Timezone: "Not/AZone",
		Console:  &logger.ConsoleOutput{Enabled: true},
		FileOutput: &logger.FileOutput{
			Enabled: false,
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

func TestNewCentralLoggerNilConfig(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(nil)
	assert.Error(t, err)
}

func TestBufferedFileWriterCloseIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "w.log")
	w, err := logger.NewBufferedFileWriter(path, logger.WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("after close"))
	assert.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.Equal(t, path, w.FilePath())
}
