// Package logging provides structured logging for knowledged.
//
// Logger wraps zap with context-aware methods that attach the trace and
// span ids of the active OpenTelemetry span. Output goes to stderr by
// default because stdout carries the MCP stdio stream. When telemetry is
// enabled, entries are also exported through the OpenTelemetry log bridge.
// Domain packages take the *zap.Logger returned by Underlying.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.Info(ctx, "knowledge added", zap.Int("chunks", n))
//
// Fields whose key looks like a credential are redacted by the encoder, and
// entries below error level are sampled. Errors are never sampled.
//
// Tests use NewTestLogger, which records entries in memory:
//
//	tl := logging.NewTestLogger()
//	svc := knowledge.NewService(cfg, pipeline, tl.Underlying())
//	tl.AssertLogged(t, zapcore.WarnLevel, "no PDF files found")
package logging
