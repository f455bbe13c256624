package logging

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	core := logger.Underlying().Core()
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		e.records = append(e.records, records[i].Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestNewLogger_OTELBridge(t *testing.T) {
	exp := &recordingExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	cfg := NewDefaultConfig()
	cfg.Output.Stream = ""
	cfg.Output.OTEL = true

	logger, err := NewLogger(cfg, lp)
	require.NoError(t, err)

	logger.Warn(context.Background(), "ingest skipped", zap.String("source", "katalog.pdf"))
	require.NoError(t, lp.ForceFlush(context.Background()))

	exp.mu.Lock()
	defer exp.mu.Unlock()
	require.Len(t, exp.records, 1)
	rec := exp.records[0]
	assert.Equal(t, "ingest skipped", rec.Body().AsString())
	assert.Equal(t, otellog.SeverityWarn, rec.Severity())
	assert.Equal(t, "knowledged", rec.InstrumentationScope().Name)

	var source string
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == "source" {
			source = kv.Value.AsString()
		}
		return true
	})
	assert.Equal(t, "katalog.pdf", source)
}

func TestNewLogger_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stream = ""
	cfg.Output.OTEL = true

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
	}{
		{"debug", func() { tl.Debug(ctx, "debug message") }, zapcore.DebugLevel},
		{"info", func() { tl.Info(ctx, "info message") }, zapcore.InfoLevel},
		{"warn", func() { tl.Warn(ctx, "warn message") }, zapcore.WarnLevel},
		{"error", func() { tl.Error(ctx, "error message") }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl.Reset()
			tt.log()
			tl.AssertLogged(t, tt.level, tt.name+" message")
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tl.Info(ctx, "retrieval served", zap.Int("k", 5))

	tl.AssertField(t, "retrieval served", "trace_id", traceID.String())
	tl.AssertField(t, "retrieval served", "span_id", spanID.String())
	tl.AssertField(t, "retrieval served", "k", int64(5))

	tl.Reset()
	tl.Info(context.Background(), "no span")
	entries := tl.FilterMessage("no span").All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromAppConfig(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no outputs", func(c *Config) { c.Output.Stream = "" }},
		{"bad stream", func(c *Config) { c.Output.Stream = "syslog" }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = config.Duration(0) }},
		{"empty field", func(c *Config) { c.Fields = map[string]string{"env": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	var buf bytes.Buffer
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel)
	zl := zap.New(core)

	zl.Info("embedding provider ready",
		zap.String("api_key", "sk-abcdefghijklmnopqrstuvwx"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "BAAI/bge-small-en-v1.5"),
		zap.Stringer("token", config.Secret("hunter2")),
		zap.String("Authorization", "hunter3"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwx")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "hunter3")
	assert.Contains(t, out, "BAAI/bge-small-en-v1.5")
}

func TestSampledCore_ErrorsNeverDropped(t *testing.T) {
	var buf bytes.Buffer
	base := zapcore.NewCore(newEncoder("json"), zapcore.AddSync(&buf), zapcore.DebugLevel)
	core := newSampledCore(base, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    1,
		Thereafter: 0,
	})
	zl := zap.New(core)

	for i := 0; i < 5; i++ {
		zl.Info("repeated info")
		zl.Error("repeated error")
	}

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("repeated info")))
	assert.Equal(t, 5, bytes.Count(buf.Bytes(), []byte("repeated error")))
}
