package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rows is a fully materialized result set. Values keep the column order of
// the underlying result.
type Rows struct {
	Columns []string
	Values  [][]any
}

type ReaderOptions struct {
	Driver       string
	QueryTimeout time.Duration
}

// Reader runs statements inside a short-lived transaction that is always
// committed or rolled back before returning, so no call inherits an open or
// aborted transaction from a previous one.
type Reader struct {
	db         *sql.DB
	timeout    time.Duration
	readOnlyTx bool
}

func NewReader(db *sql.DB, opts ReaderOptions) *Reader {
	return &Reader{
		db:      db,
		timeout: opts.QueryTimeout,
		// duckdb rejects read-only transaction options.
		readOnlyTx: opts.Driver != DriverDuckDB,
	}
}

func (r *Reader) QueryReadOnly(ctx context.Context, statement string, args ...any) (result Rows, err error) {
	if strings.TrimSpace(statement) == "" {
		return Rows{}, fmt.Errorf("statement is required")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: r.readOnlyTx})
	if err != nil {
		return Rows{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rollbackErr))
			}
		}
	}()

	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return Rows{}, err
	}
	result, err = scanRows(rows)
	if closeErr := rows.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return Rows{}, err
	}

	if err := tx.Commit(); err != nil {
		return Rows{}, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

func scanRows(rows *sql.Rows) (Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Rows{}, fmt.Errorf("query columns: %w", err)
	}
	numeric := numericColumns(rows, len(columns))

	values := make([][]any, 0)
	for rows.Next() {
		row := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range row {
			scanTargets[i] = &row[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Rows{}, fmt.Errorf("scan row: %w", err)
		}
		values = append(values, normalizeValues(row, numeric))
	}
	if err := rows.Err(); err != nil {
		return Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	if columns == nil {
		columns = []string{}
	}
	return Rows{Columns: columns, Values: values}, nil
}

func numericColumns(rows *sql.Rows, count int) []bool {
	numeric := make([]bool, count)
	types, err := rows.ColumnTypes()
	if err != nil {
		return numeric
	}
	for i, columnType := range types {
		if i >= count {
			break
		}
		name := strings.ToUpper(columnType.DatabaseTypeName())
		numeric[i] = strings.HasPrefix(name, "NUMERIC") || strings.HasPrefix(name, "DECIMAL")
	}
	return numeric
}

// TimestampLayout is the canonical text form of temporal values. Rows carry
// timestamps as text so a cached copy reads back identically.
const TimestampLayout = "2006-01-02 15:04:05.999999"

func normalizeValues(values []any, numeric []bool) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		if numeric[i] {
			if d, ok := toDecimal(value); ok {
				normalized[i] = d
				continue
			}
		}
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case time.Time:
			normalized[i] = typed.Format(TimestampLayout)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func toDecimal(value any) (decimal.Decimal, bool) {
	var text string
	switch typed := value.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return typed, true
	case float64:
		return decimal.NewFromFloat(typed), true
	case int64:
		return decimal.NewFromInt(typed), true
	case string:
		text = typed
	case []byte:
		text = string(typed)
	case fmt.Stringer:
		text = typed.String()
	case interface{ Float64() float64 }:
		return decimal.NewFromFloat(typed.Float64()), true
	default:
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
