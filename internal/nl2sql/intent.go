package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlchat/sqlchat/internal/cache"
	"github.com/sqlchat/sqlchat/internal/llm"
)

const IntentFallback = Intent("No se pudo analizar la intención de la consulta.")

const intentSystemPrompt = `Eres un asistente especializado en entender consultas en lenguaje natural para una calculadora avanzada
con capacidades SQL. Identifica qué tabla(s) y tipo de operación (SELECT, COUNT, AVG, etc.)
quiere realizar el usuario. Responde con un JSON.`

type Analyzer struct {
	completer llm.Completer
	cache     Cache
	opts      Options
}

func NewAnalyzer(completer llm.Completer, c Cache, opts Options) *Analyzer {
	return &Analyzer{completer: completer, cache: c, opts: opts.withDefaults()}
}

// Analyze returns the cached intent for text or asks the completer once.
// Transport failures produce IntentFallback, which is not cached.
func (a *Analyzer) Analyze(ctx context.Context, text string) Intent {
	key := a.opts.key(cache.NamespaceIntent, text)
	var cached string
	if a.cache != nil && a.cache.Get(ctx, key, &cached) && cached != "" {
		return Intent(cached)
	}

	content, err := a.completer.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeIntent,
		System:      intentSystemPrompt,
		Prompt:      intentPrompt(text),
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		a.opts.Logger.WarnContext(ctx, "intent analysis failed, using fallback", slog.Any("error", err))
		return IntentFallback
	}

	intent := strings.TrimSpace(content)
	remember(ctx, a.cache, a.opts.Logger, key, intent)
	return Intent(intent)
}

func intentPrompt(text string) string {
	return fmt.Sprintf(`Analiza la siguiente consulta del usuario:

"%s"

Responde con un JSON que contenga:
1. Las tablas involucradas
2. El tipo de operación
3. Filtros o condiciones
4. Nivel de confianza (0-1)`, strings.TrimSpace(text))
}
