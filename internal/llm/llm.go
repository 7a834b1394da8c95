package llm

import (
	"context"
	"strings"
)

const (
	PurposeIntent   = "intent"
	PurposeSQL      = "sql"
	PurposeNarrate  = "narrate"
	PurposeFeedback = "feedback"
)

type Request struct {
	Purpose     string
	System      string
	Prompt      string
	Temperature float64
}

// Completer is the text-completion collaborator. Implementations return an
// error for any transport or protocol failure; callers own the fallback.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// WithLanguage forces responses into one language by appending an explicit
// instruction to both the system message and the prompt.
func WithLanguage(next Completer, language string) Completer {
	language = strings.TrimSpace(language)
	if language == "" {
		return next
	}
	return &languageCompleter{next: next, language: language}
}

type languageCompleter struct {
	next     Completer
	language string
}

func (l *languageCompleter) Complete(ctx context.Context, req Request) (string, error) {
	system, prompt := languageInstructions(l.language)
	req.System = strings.TrimRight(req.System, " \n") + "\n\n" + system
	req.Prompt = strings.TrimRight(req.Prompt, " \n") + "\n\n" + prompt
	return l.next.Complete(ctx, req)
}

func languageInstructions(language string) (system, prompt string) {
	switch strings.ToLower(language) {
	case "español", "espanol", "spanish", "es":
		return "IMPORTANTE: DEBES RESPONDER SIEMPRE EN ESPAÑOL. TODA TU RESPUESTA DEBE ESTAR EN ESPAÑOL.",
			"Responde completamente en español."
	default:
		return "IMPORTANT: YOU MUST ALWAYS RESPOND IN " + strings.ToUpper(language) + ".",
			"Respond entirely in " + language + "."
	}
}
