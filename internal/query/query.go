package query

import (
	"context"
	"time"

	"github.com/sqlchat/sqlchat/internal/policy"
	"github.com/sqlchat/sqlchat/internal/store"
)

// Result is the outcome of one statement. Rows keep the column order of the
// underlying result set and are empty, not nil, when nothing matched.
type Result struct {
	Success   bool          `json:"success"`
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	Statement string        `json:"statement"`
	Error     string        `json:"error,omitempty"`
	Cached    bool          `json:"-"`
	Duration  time.Duration `json:"-"`
}

// Scalar reports the single value of a one-row, one-column result.
func (r Result) Scalar() (any, bool) {
	if !r.Success || len(r.Rows) != 1 || len(r.Columns) != 1 || len(r.Rows[0]) != 1 {
		return nil, false
	}
	return r.Rows[0][0], true
}

type Store interface {
	QueryReadOnly(ctx context.Context, statement string, args ...any) (store.Rows, error)
}

type Validator interface {
	Validate(statement string) policy.Result
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any) error
}
