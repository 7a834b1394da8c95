package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/store"
)

// PreviewRows is the number of rows rendered before summarizing the rest.
const PreviewRows = 5

type Options struct {
	// Completer narrates successful results; nil keeps template output.
	Completer   llm.Completer
	Temperature float64
	Logger      *slog.Logger
}

type Formatter struct {
	completer   llm.Completer
	temperature float64
	logger      *slog.Logger
}

func NewFormatter(opts Options) *Formatter {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	return &Formatter{completer: opts.Completer, temperature: opts.Temperature, logger: opts.Logger}
}

// Format renders result for a reader at level. Errors always carry the
// message and the attempted statement.
func (f *Formatter) Format(ctx context.Context, result query.Result, originalText string, level Level) string {
	if !result.Success {
		return fmt.Sprintf("Error en la consulta: %s%s", result.Error, statementBlock(result.Statement))
	}

	summary := Summarize(result)
	if f.completer != nil {
		narrated, err := f.completer.Complete(ctx, llm.Request{
			Purpose:     llm.PurposeNarrate,
			System:      narrateSystemPrompt(level),
			Prompt:      narratePrompt(originalText, summary),
			Temperature: f.temperature,
		})
		if err == nil && strings.TrimSpace(narrated) != "" {
			return decorate(strings.TrimSpace(narrated), result.Statement, level)
		}
		f.logger.WarnContext(ctx, "narration failed, using template", slog.Any("error", err))
	}
	return decorate(summary, result.Statement, level)
}

// Summarize renders a successful result without the statement block.
func Summarize(result query.Result) string {
	if value, ok := result.Scalar(); ok {
		return "Resultado: " + formatValue(value)
	}
	if len(result.Rows) == 0 {
		return "No se encontraron resultados para esta consulta."
	}

	lines := make([]string, 0, PreviewRows+1)
	for i, row := range result.Rows {
		if i == PreviewRows {
			lines = append(lines, fmt.Sprintf("... y %d resultados más", len(result.Rows)-PreviewRows))
			break
		}
		lines = append(lines, formatRow(result.Columns, row))
	}
	return fmt.Sprintf("Resultados encontrados: %d\n\n%s", len(result.Rows), strings.Join(lines, "\n"))
}

func decorate(body, statement string, level Level) string {
	if level == LevelBasic {
		return body
	}
	return body + statementBlock(statement)
}

func statementBlock(statement string) string {
	if strings.TrimSpace(statement) == "" {
		return ""
	}
	return "\n\nConsulta SQL ejecutada:\n" + statement
}

func formatRow(columns []string, row []any) string {
	parts := make([]string, 0, len(row))
	for i, value := range row {
		name := fmt.Sprintf("col%d", i+1)
		if i < len(columns) {
			name = columns[i]
		}
		parts = append(parts, name+": "+formatValue(value))
	}
	return strings.Join(parts, ", ")
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case []byte:
		return string(typed)
	case decimal.Decimal:
		return typed.String()
	case json.Number:
		if d, err := decimal.NewFromString(typed.String()); err == nil {
			return d.String()
		}
		return typed.String()
	case float64:
		return decimal.NewFromFloat(typed).String()
	case float32:
		return decimal.NewFromFloat32(typed).String()
	case time.Time:
		return typed.Format(store.TimestampLayout)
	default:
		return fmt.Sprint(typed)
	}
}

func narrateSystemPrompt(level Level) string {
	return "Eres un asistente que explica resultados de consultas a una base de datos de una calculadora. " +
		"Responde de forma breve y directa. " + level.audience()
}

func narratePrompt(originalText, summary string) string {
	return fmt.Sprintf("Consulta original del usuario: %q\n\nResultado obtenido:\n%s\n\nExplica este resultado al usuario.",
		strings.TrimSpace(originalText), summary)
}
