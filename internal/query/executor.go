package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/sqlchat/sqlchat/internal/cache"
	"github.com/sqlchat/sqlchat/internal/observability"
)

type Executor struct {
	store     Store
	validator Validator
	cache     Cache
	logger    *slog.Logger
}

func NewExecutor(store Store, validator Validator, c Cache, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Executor{store: store, validator: validator, cache: c, logger: logger}
}

// Execute validates statement, serves it from the execution cache when
// possible and otherwise runs it against the store. Only successful results
// are cached.
func (e *Executor) Execute(ctx context.Context, statement string) Result {
	decision := e.validator.Validate(statement)
	if !decision.Accepted {
		e.logger.InfoContext(ctx, "statement rejected by policy",
			slog.String("reason", decision.Reason),
			slog.String("statement", statement),
		)
		return Result{
			Success:   false,
			Columns:   []string{},
			Rows:      [][]any{},
			Statement: statement,
			Error:     "rejected by policy: " + decision.Reason,
		}
	}
	final := decision.Statement(statement)

	key := cache.Key(cache.NamespaceExec, final)
	var cached Result
	if e.cache != nil && e.cache.Get(ctx, key, &cached) && cached.Success {
		cached.Cached = true
		cached.Statement = final
		return cached
	}

	start := time.Now()
	rows, err := e.store.QueryReadOnly(ctx, final)
	elapsed := time.Since(start)
	observability.ObserveExecution(err == nil, elapsed)
	if err != nil {
		e.logger.WarnContext(ctx, "statement execution failed",
			slog.String("statement", final),
			slog.Any("error", err),
		)
		return Result{
			Success:   false,
			Columns:   []string{},
			Rows:      [][]any{},
			Statement: final,
			Error:     err.Error(),
			Duration:  elapsed,
		}
	}

	result := Result{
		Success:   true,
		Columns:   rows.Columns,
		Rows:      rows.Values,
		Statement: final,
		Duration:  elapsed,
	}
	if result.Columns == nil {
		result.Columns = []string{}
	}
	if result.Rows == nil {
		result.Rows = [][]any{}
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, key, result); err != nil {
			e.logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return result
}
