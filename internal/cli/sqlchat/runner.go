package sqlchat

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/sqlchat/sqlchat/internal/chat"
	"github.com/sqlchat/sqlchat/internal/respond"
)

// Chat is the command surface of a chat session.
type Chat interface {
	ProcessQuery(ctx context.Context, text string) (string, error)
	SQLForQuery(ctx context.Context, text string) (string, error)
	Feedback(ctx context.Context, isCorrect bool, correction string) (string, error)
	SetTechLevel(ctx context.Context, raw string) (respond.Level, error)
	ClearCache(ctx context.Context) (string, error)
}

type Options struct {
	Session     Chat
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	Level       string
	AskFeedback bool
}

// Run reads lines from Stdin until EOF or !salir. A denied operation ends
// the session with status 1.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("sqlchat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	level := fs.String("level", defaults.Level, "technical level: basico, medio or avanzado")
	askFeedback := fs.Bool("ask-feedback", defaults.AskFeedback, "ask whether each answer was useful")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if defaults.Session == nil {
		_, _ = fmt.Fprintln(stderr, "chat session is required")
		return 2
	}

	r := &repl{
		ctx:         ctx,
		chat:        defaults.Session,
		in:          bufio.NewScanner(stdin),
		out:         stdout,
		errOut:      stderr,
		askFeedback: *askFeedback,
	}
	if strings.TrimSpace(*level) != "" {
		if _, err := r.chat.SetTechLevel(ctx, *level); err != nil {
			_, _ = fmt.Fprintf(stderr, "set level: %v\n", err)
			return 2
		}
	}

	writeBanner(stdout)
	for ctx.Err() == nil {
		_, _ = fmt.Fprint(stdout, "\n> ")
		line, ok := r.readLine()
		if !ok {
			break
		}
		if line == "" {
			continue
		}
		done, err := r.handle(line)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		if done {
			return 0
		}
	}
	if err := r.in.Err(); err != nil {
		_, _ = fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	return 0
}

type repl struct {
	ctx         context.Context
	chat        Chat
	in          *bufio.Scanner
	out         io.Writer
	errOut      io.Writer
	askFeedback bool
}

func (r *repl) readLine() (string, bool) {
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

// handle runs one input line and reports whether the session should end.
func (r *repl) handle(line string) (bool, error) {
	if !strings.HasPrefix(line, "!") {
		return false, r.query(line)
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(command) {
	case "!salir":
		return true, nil
	case "!nivel":
		if rest == "" {
			r.println(levelUsage)
			return false, nil
		}
		level, err := r.chat.SetTechLevel(r.ctx, rest)
		if err != nil {
			return false, r.recoverable(err, levelUsage)
		}
		r.println("Nivel técnico actualizado a: " + string(level))
	case "!cache":
		message, err := r.chat.ClearCache(r.ctx)
		if err != nil {
			return false, r.recoverable(err, "")
		}
		r.println(message)
	case "!sql":
		if rest == "" {
			r.println("Uso: !sql [consulta en lenguaje natural]")
			return false, nil
		}
		statement, err := r.chat.SQLForQuery(r.ctx, rest)
		if err != nil {
			return false, r.recoverable(err, "")
		}
		r.println("\nSQL generado:\n" + statement)
	case "!feedback":
		return false, r.feedback(rest)
	default:
		r.println("Comando no reconocido.")
	}
	return false, nil
}

const levelUsage = "Uso: !nivel [basico/medio/avanzado]"

func (r *repl) query(text string) error {
	r.println("\nProcesando consulta...")
	response, err := r.chat.ProcessQuery(r.ctx, text)
	if err != nil {
		return err
	}
	r.println("\n" + response)
	if !r.askFeedback {
		return nil
	}

	_, _ = fmt.Fprint(r.out, "\n¿Fue útil esta respuesta? (s/n): ")
	answer, ok := r.readLine()
	if !ok || isYes(answer) {
		return nil
	}
	r.println("¿Cómo podría mejorar? (Presiona Enter para omitir)")
	correction, ok := r.readLine()
	if !ok || correction == "" {
		return nil
	}
	improved, err := r.chat.Feedback(r.ctx, false, correction)
	if err != nil {
		return err
	}
	r.println("\nRespuesta mejorada:\n" + improved)
	return nil
}

func (r *repl) feedback(correction string) error {
	isCorrect := false
	if correction == "" {
		r.println("¿Fue correcta la respuesta anterior? (s/n)")
		answer, _ := r.readLine()
		if isYes(answer) {
			isCorrect = true
		} else {
			r.println("Por favor, proporciona una corrección:")
			correction, _ = r.readLine()
		}
	}
	response, err := r.chat.Feedback(r.ctx, isCorrect, correction)
	if err != nil {
		return err
	}
	r.println("\n" + response)
	return nil
}

// recoverable prints err and keeps the session alive, unless access was
// denied.
func (r *repl) recoverable(err error, usage string) error {
	if errors.Is(err, chat.ErrAccessDenied) {
		return err
	}
	_, _ = fmt.Fprintf(r.errOut, "%v\n", err)
	if usage != "" {
		r.println(usage)
	}
	return nil
}

func (r *repl) println(text string) {
	_, _ = fmt.Fprintln(r.out, text)
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "si", "sí", "y", "yes":
		return true
	}
	return false
}

func writeBanner(w io.Writer) {
	_, _ = fmt.Fprintln(w, "=== Chatbot SQL (Acceso Superusuario) ===")
	_, _ = fmt.Fprintln(w, "Haz preguntas sobre tus operaciones y usuarios en lenguaje natural.")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "comandos:")
	_, _ = fmt.Fprintln(w, "  !nivel [basico/medio/avanzado]  cambia el nivel técnico de las respuestas")
	_, _ = fmt.Fprintln(w, "  !feedback [corrección]          retroalimentación sobre la última respuesta")
	_, _ = fmt.Fprintln(w, "  !cache                          limpia el caché de consultas")
	_, _ = fmt.Fprintln(w, "  !sql [consulta]                 muestra el SQL generado sin ejecutarlo")
	_, _ = fmt.Fprintln(w, "  !salir                          termina la sesión")
}
