package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/sqlchat/sqlchat/internal/cache"
	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/schema"
)

// FallbackStatement is returned when the completer cannot be reached.
const FallbackStatement = "SELECT id, operando1, operador, operando2, resultado FROM operaciones ORDER BY creado_en DESC LIMIT 5"

const recentStatement = "SELECT o.id, u.nombre AS usuario, o.operando1, o.operador, o.operando2, o.resultado, o.creado_en " +
	"FROM operaciones o JOIN usuarios u ON o.usuario_id = u.id ORDER BY o.creado_en DESC LIMIT %d"

// Word boundaries are spelled out because \b only knows ASCII letters.
const boundary = `(?:^|[^\p{L}\p{N}_])`

var (
	recentPattern  = regexp.MustCompile(boundary + `(?:últim[ao]s|ultim[ao]s|recientes|latest|last|most recent)\s+(\d+)`)
	recordsPattern = regexp.MustCompile(boundary + `(?:operaci[oó]n(?:es)?|registros|operations|records)`)
)

const sqlSystemPrompt = `Eres un experto en SQL. Tu tarea es generar consultas SQL avanzadas basadas en
peticiones en lenguaje natural. Genera SOLO código SQL sin explicaciones.

IMPORTANTE:
1. Usa solo consultas SELECT para preservar la seguridad de los datos
2. Puedes usar JOINS complejos, subconsultas, funciones de agregación y ventana
3. Puedes usar GROUP BY, HAVING, ORDER BY, y otras cláusulas avanzadas
4. Nunca uses DELETE, INSERT, UPDATE, DROP, ALTER u otras operaciones de modificación
5. Si la consulta busca las "últimas" o "recientes" operaciones, usa ORDER BY creado_en DESC
6. Si se pide un número específico de resultados, usa LIMIT correctamente
7. Genera una sola sentencia, sin comentarios`

type Generator struct {
	completer llm.Completer
	cache     Cache
	opts      Options
}

func NewGenerator(completer llm.Completer, c Cache, opts Options) *Generator {
	return &Generator{completer: completer, cache: c, opts: opts.withDefaults()}
}

// Generate produces one candidate statement for text. Requests for the most
// recent N records bypass the completer entirely.
func (g *Generator) Generate(ctx context.Context, text string, intent Intent, descriptor schema.Descriptor) string {
	if statement, ok := RecentOverride(text); ok {
		g.opts.Logger.DebugContext(ctx, "using most-recent override", slog.String("statement", statement))
		return statement
	}

	key := g.opts.key(cache.NamespaceSQL, text)
	var cached string
	if g.cache != nil && g.cache.Get(ctx, key, &cached) && cached != "" {
		return cached
	}

	content, err := g.completer.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeSQL,
		System:      sqlSystemPrompt,
		Prompt:      sqlPrompt(text, intent, descriptor),
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		g.opts.Logger.WarnContext(ctx, "sql generation failed, using fallback", slog.Any("error", err))
		return FallbackStatement
	}

	statement := stripMarkdownSQL(content)
	if statement == "" {
		g.opts.Logger.WarnContext(ctx, "model returned empty SQL, using fallback")
		return FallbackStatement
	}
	remember(ctx, g.cache, g.opts.Logger, key, statement)
	return statement
}

// RecentOverride reports the fixed statement for "latest N operations"
// phrasings in Spanish or English.
func RecentOverride(text string) (string, bool) {
	lowered := strings.ToLower(text)
	if !recordsPattern.MatchString(lowered) {
		return "", false
	}
	match := recentPattern.FindStringSubmatch(lowered)
	if match == nil {
		return "", false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return "", false
	}
	return fmt.Sprintf(recentStatement, n), true
}

func sqlPrompt(text string, intent Intent, descriptor schema.Descriptor) string {
	return fmt.Sprintf(`Esquema de la base de datos:
%s

Intención del usuario detectada:
%s

Consulta original del usuario:
"%s"

Genera una consulta SQL que satisfaga esta petición. Solo incluye el código SQL, nada más.`,
		descriptor.String(), string(intent), strings.TrimSpace(text))
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
