package nl2sql

import (
	"context"
	"log/slog"

	"github.com/sqlchat/sqlchat/internal/cache"
	"github.com/sqlchat/sqlchat/internal/observability"
)

// Intent is the model's loosely structured reading of a request. It is a
// hint for generation, never trusted as ground truth.
type Intent string

// Cache is the subset of the result cache used for memoization.
type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any) error
}

type Options struct {
	Temperature   float64
	NormalizeKeys bool
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Temperature == 0 {
		o.Temperature = 0.1
	}
	if o.Logger == nil {
		o.Logger = observability.NopLogger()
	}
	return o
}

func (o Options) key(namespace, text string) string {
	if o.NormalizeKeys {
		text = cache.NormalizeText(text)
	}
	return cache.Key(namespace, text)
}

func remember(ctx context.Context, c Cache, logger *slog.Logger, key string, value any) {
	if c == nil {
		return
	}
	if err := c.Set(ctx, key, value); err != nil {
		logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
