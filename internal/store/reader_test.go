package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func TestQueryReadOnlyCommitsAndPreservesColumnOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	reader := NewReader(db, ReaderOptions{Driver: DriverPostgres})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, operador, resultado FROM operaciones LIMIT 100`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "operador", "resultado"}).
			AddRow(int64(1), []byte("+"), 3.5).
			AddRow(int64(2), "*", 8.0))
	mock.ExpectCommit()

	rows, err := reader.QueryReadOnly(context.Background(), "SELECT id, operador, resultado FROM operaciones LIMIT 100")
	if err != nil {
		t.Fatalf("QueryReadOnly() error = %v", err)
	}
	if strings.Join(rows.Columns, ",") != "id,operador,resultado" {
		t.Fatalf("Columns = %v", rows.Columns)
	}
	if len(rows.Values) != 2 {
		t.Fatalf("len(Values) = %d", len(rows.Values))
	}
	if rows.Values[0][1] != "+" {
		t.Fatalf("bytes value = %#v, want string", rows.Values[0][1])
	}
	assertSQLMock(t, mock)
}

func TestQueryReadOnlyZeroRowsIsEmptyResult(t *testing.T) {
	db, mock := newSQLMock(t)
	reader := NewReader(db, ReaderOptions{})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM operaciones WHERE id = -1 LIMIT 100`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	rows, err := reader.QueryReadOnly(context.Background(), "SELECT id FROM operaciones WHERE id = -1 LIMIT 100")
	if err != nil {
		t.Fatalf("QueryReadOnly() error = %v", err)
	}
	if rows.Values == nil || len(rows.Values) != 0 {
		t.Fatalf("Values = %#v, want empty non-nil", rows.Values)
	}
	assertSQLMock(t, mock)
}

func TestQueryReadOnlyRollsBackOnError(t *testing.T) {
	db, mock := newSQLMock(t)
	reader := NewReader(db, ReaderOptions{})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT nombre + 1 FROM usuarios`)).
		WillReturnError(errors.New("operator does not exist: character varying + integer"))
	mock.ExpectRollback()

	_, err := reader.QueryReadOnly(context.Background(), "SELECT nombre + 1 FROM usuarios")
	if err == nil || !strings.Contains(err.Error(), "operator does not exist") {
		t.Fatalf("QueryReadOnly() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestQueryReadOnlyReportsBeginFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	reader := NewReader(db, ReaderOptions{})

	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	_, err := reader.QueryReadOnly(context.Background(), "SELECT 1")
	if err == nil || !strings.Contains(err.Error(), "begin transaction") {
		t.Fatalf("QueryReadOnly() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestQueryReadOnlyNormalizesNumericColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	reader := NewReader(db, ReaderOptions{})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT sum(resultado) AS total FROM operaciones`)).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("total").OfType("NUMERIC", ""),
		).AddRow("1234.50"))
	mock.ExpectCommit()

	rows, err := reader.QueryReadOnly(context.Background(), "SELECT sum(resultado) AS total FROM operaciones")
	if err != nil {
		t.Fatalf("QueryReadOnly() error = %v", err)
	}
	got, ok := rows.Values[0][0].(decimal.Decimal)
	if !ok {
		t.Fatalf("value = %#v, want decimal.Decimal", rows.Values[0][0])
	}
	if !got.Equal(decimal.RequireFromString("1234.5")) {
		t.Fatalf("value = %s", got)
	}
	assertSQLMock(t, mock)
}

func TestQueryReadOnlyRendersTimestampsAsText(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT creado_en FROM operaciones LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"creado_en"}).
			AddRow(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)).
			AddRow(time.Date(2024, 3, 1, 10, 0, 0, 250000000, time.UTC)))
	mock.ExpectCommit()

	rows, err := NewReader(db, ReaderOptions{}).QueryReadOnly(context.Background(), "SELECT creado_en FROM operaciones LIMIT 1")
	if err != nil {
		t.Fatalf("QueryReadOnly() error = %v", err)
	}
	if rows.Values[0][0] != "2024-03-01 10:00:00" || rows.Values[1][0] != "2024-03-01 10:00:00.25" {
		t.Fatalf("Values = %#v", rows.Values)
	}
	assertSQLMock(t, mock)
}

func TestQueryReadOnlyRequiresStatement(t *testing.T) {
	db, _ := newSQLMock(t)
	if _, err := NewReader(db, ReaderOptions{}).QueryReadOnly(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty statement")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
