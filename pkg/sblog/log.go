// Package sblog carries the zerolog logger through a context.Context.
package sblog

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type logPtr struct{}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logPtr{}, logger)
}

// WithStr returns a context whose logger carries an additional string field
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := Log(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, &logger)
}

// Log returns a zerolog Logger with additional context information (i.e. run ID and stage)
func Log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logPtr{})
	if logger == nil {
		return &log.Logger
	}

	return logger.(*zerolog.Logger)
}
