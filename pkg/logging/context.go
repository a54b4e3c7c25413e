package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey int

const loggerKey contextKey = iota

// WithLogger stores a logger in the context. Nil stores the default.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// Ctx is a shorter alias for FromContext.
func Ctx(ctx context.Context) *zerolog.Logger {
	return FromContext(ctx)
}

// WithField returns a context whose logger carries one extra field.
func WithField(ctx context.Context, key string, value any) context.Context {
	logger := addField(FromContext(ctx).With(), key, value).Logger()
	return WithLogger(ctx, &logger)
}

// WithFields returns a context whose logger carries the given fields.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	lctx := FromContext(ctx).With()
	for key, value := range fields {
		lctx = addField(lctx, key, value)
	}
	logger := lctx.Logger()
	return WithLogger(ctx, &logger)
}

// WithLabeler attaches the labeler DID to the context logger.
func WithLabeler(ctx context.Context, did string) context.Context {
	return WithField(ctx, "labeler", did)
}

// WithEndpoint attaches the stream endpoint to the context logger.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return WithField(ctx, "endpoint", endpoint)
}

// WithRun attaches the persistence run id to the context logger.
func WithRun(ctx context.Context, runID int64) context.Context {
	return WithField(ctx, "run_id", runID)
}

// WithOperation attaches an operation name to the context logger.
func WithOperation(ctx context.Context, operation string) context.Context {
	return WithField(ctx, "operation", operation)
}

// addField picks the typed zerolog field constructor for a value.
func addField(lctx zerolog.Context, key string, value any) zerolog.Context {
	switch v := value.(type) {
	case string:
		return lctx.Str(key, v)
	case int:
		return lctx.Int(key, v)
	case int64:
		return lctx.Int64(key, v)
	case float64:
		return lctx.Float64(key, v)
	case bool:
		return lctx.Bool(key, v)
	case error:
		return lctx.Err(v)
	default:
		return lctx.Interface(key, v)
	}
}
