package respond

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/query"
)

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]Level{"basico": LevelBasic, " MEDIO ": LevelMedium, "avanzado": LevelAdvanced, "básico": LevelBasic} {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseLevel("experto"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestFormatScalar(t *testing.T) {
	result := query.Result{
		Success:   true,
		Columns:   []string{"total"},
		Rows:      [][]any{{decimal.RequireFromString("42.50")}},
		Statement: "SELECT sum(resultado) AS total FROM operaciones LIMIT 100",
	}
	got := NewFormatter(Options{}).Format(context.Background(), result, "suma", LevelMedium)
	want := "Resultado: 42.5\n\nConsulta SQL ejecutada:\nSELECT sum(resultado) AS total FROM operaciones LIMIT 100"
	if got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}

func TestFormatTruncatesToFirstFiveRows(t *testing.T) {
	rows := make([][]any, 0, 8)
	for i := 1; i <= 8; i++ {
		rows = append(rows, []any{float64(i), "+"})
	}
	result := query.Result{Success: true, Columns: []string{"id", "operador"}, Rows: rows, Statement: "SELECT id, operador FROM operaciones LIMIT 100"}

	got := NewFormatter(Options{}).Format(context.Background(), result, "operaciones", LevelAdvanced)
	if !strings.HasPrefix(got, "Resultados encontrados: 8\n\nid: 1, operador: +\n") {
		t.Fatalf("Format() = %q", got)
	}
	if !strings.Contains(got, "id: 5, operador: +\n... y 3 resultados más") {
		t.Fatalf("Format() = %q, want remaining count", got)
	}
	if strings.Contains(got, "id: 6,") {
		t.Fatalf("Format() shows more than %d rows: %q", PreviewRows, got)
	}
}

func TestFormatEmptyResult(t *testing.T) {
	result := query.Result{Success: true, Columns: []string{"id"}, Rows: [][]any{}, Statement: "SELECT id FROM operaciones WHERE id = -1 LIMIT 100"}
	got := NewFormatter(Options{}).Format(context.Background(), result, "x", LevelMedium)
	if !strings.HasPrefix(got, "No se encontraron resultados") {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatErrorShowsMessageAndStatement(t *testing.T) {
	result := query.Result{Error: "rejected by policy: table not permitted: pg_shadow", Statement: "SELECT * FROM pg_shadow"}
	for _, level := range Levels {
		got := NewFormatter(Options{}).Format(context.Background(), result, "x", level)
		if !strings.Contains(got, "Error en la consulta: rejected by policy: table not permitted: pg_shadow") ||
			!strings.HasSuffix(got, "SELECT * FROM pg_shadow") {
			t.Fatalf("Format(%s) = %q", level, got)
		}
	}
}

func TestFormatBasicLevelOmitsStatement(t *testing.T) {
	result := query.Result{Success: true, Columns: []string{"c"}, Rows: [][]any{{float64(3)}}, Statement: "SELECT count(*) AS c FROM usuarios LIMIT 100"}
	got := NewFormatter(Options{}).Format(context.Background(), result, "x", LevelBasic)
	if got != "Resultado: 3" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatNarratesWithLevelAudience(t *testing.T) {
	var captured llm.Request
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "Hay 3 usuarios registrados.", nil
	})
	result := query.Result{Success: true, Columns: []string{"c"}, Rows: [][]any{{float64(3)}}, Statement: "SELECT count(*) AS c FROM usuarios LIMIT 100"}

	got := NewFormatter(Options{Completer: completer}).Format(context.Background(), result, "cuántos usuarios hay", LevelBasic)
	if got != "Hay 3 usuarios registrados." {
		t.Fatalf("Format() = %q", got)
	}
	if captured.Purpose != llm.PurposeNarrate || !strings.Contains(captured.System, "sin mencionar SQL") {
		t.Fatalf("request = %+v", captured)
	}
	if !strings.Contains(captured.Prompt, "Resultado: 3") {
		t.Fatalf("prompt = %q", captured.Prompt)
	}
}

func TestFormatNarrationFailureFallsBackToTemplate(t *testing.T) {
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("connection refused")
	})
	result := query.Result{Success: true, Columns: []string{"c"}, Rows: [][]any{{float64(3)}}, Statement: "SELECT 1"}

	got := NewFormatter(Options{Completer: completer}).Format(context.Background(), result, "x", LevelMedium)
	if !strings.HasPrefix(got, "Resultado: 3\n\nConsulta SQL ejecutada:") {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatValue(t *testing.T) {
	if formatValue(nil) != "NULL" || formatValue(float64(2.5)) != "2.5" || formatValue(int64(7)) != "7" {
		t.Fatal("formatValue() produced unexpected output")
	}
	if got := formatValue(json.Number("9007199254740993")); got != "9007199254740993" {
		t.Fatalf("formatValue(json.Number) = %q", got)
	}
	if got := formatValue(json.Number("1e3")); got != "1000" {
		t.Fatalf("formatValue(json.Number exponent) = %q", got)
	}
}
