package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/store"
)

type Column struct {
	Name string
	Type string
}

type Table struct {
	Name    string
	Columns []Column
}

// Descriptor is an immutable snapshot of the permitted tables, in table name
// order with columns in declaration order.
type Descriptor struct {
	Tables []Table
}

type Querier interface {
	QueryReadOnly(ctx context.Context, statement string, args ...any) (store.Rows, error)
}

type Introspector struct {
	querier    Querier
	schemaName string
	tables     []string
}

func NewIntrospector(querier Querier, schemaName string, tables []string) *Introspector {
	if schemaName == "" {
		schemaName = "public"
	}
	return &Introspector{querier: querier, schemaName: schemaName, tables: append([]string(nil), tables...)}
}

// Describe issues a single metadata query. Any failure is returned as is;
// a partial descriptor is never produced.
func (i *Introspector) Describe(ctx context.Context) (Descriptor, error) {
	if len(i.tables) == 0 {
		return Descriptor{}, fmt.Errorf("at least one table is required")
	}

	placeholders := make([]string, len(i.tables))
	args := make([]any, 0, len(i.tables)+1)
	args = append(args, i.schemaName)
	for n, table := range i.tables {
		placeholders[n] = fmt.Sprintf("$%d", n+2)
		args = append(args, table)
	}
	statement := `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name IN (` + strings.Join(placeholders, ", ") + `)
ORDER BY table_name, ordinal_position`

	rows, err := i.querier.QueryReadOnly(ctx, statement, args...)
	if err != nil {
		return Descriptor{}, fmt.Errorf("describe schema: %w", err)
	}
	if len(rows.Columns) != 3 {
		return Descriptor{}, fmt.Errorf("describe schema: unexpected column count %d", len(rows.Columns))
	}

	var descriptor Descriptor
	for _, row := range rows.Values {
		tableName, columnName, dataType := text(row[0]), text(row[1]), text(row[2])
		if n := len(descriptor.Tables); n == 0 || descriptor.Tables[n-1].Name != tableName {
			descriptor.Tables = append(descriptor.Tables, Table{Name: tableName})
		}
		last := &descriptor.Tables[len(descriptor.Tables)-1]
		last.Columns = append(last.Columns, Column{Name: columnName, Type: dataType})
	}
	return descriptor, nil
}

func (d Descriptor) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

// String renders the descriptor in the form embedded in generation prompts.
func (d Descriptor) String() string {
	blocks := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, column.Name+" ("+column.Type+")")
		}
		blocks = append(blocks, "Tabla: "+table.Name+"\nColumnas: "+strings.Join(columns, ", "))
	}
	return strings.Join(blocks, "\n")
}

func text(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
