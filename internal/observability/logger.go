package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "outreach-engine"

type ctxKey int

const (
	runIDKey ctxKey = iota
	batchKey
)

// NewLogger builds the process logger. format is "json" (default) or
// "console" for local runs.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]interface{}{"service": serviceName}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		return zapcore.InfoLevel, nil
	}

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

// WithRunID tags ctx with the id of the pass or reconcile run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDKey, runID)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	runID, ok := ctx.Value(runIDKey).(string)
	return runID, ok && runID != ""
}

// WithBatch tags ctx with the 1-based batch number inside the current pass.
func WithBatch(ctx context.Context, batch int) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, batchKey, batch)
}

func BatchFromContext(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	batch, ok := ctx.Value(batchKey).(int)
	return batch, ok && batch > 0
}

// WithContextLogger adds runId and batch from ctx when they are set.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	fields := make([]zap.Field, 0, 2)
	if runID, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, zap.String("runId", runID))
	}
	if batch, ok := BatchFromContext(ctx); ok {
		fields = append(fields, zap.Int("batch", batch))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
