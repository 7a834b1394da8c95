package sqlchat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sqlchat/sqlchat/internal/chat"
	"github.com/sqlchat/sqlchat/internal/respond"
)

type feedbackCall struct {
	isCorrect  bool
	correction string
}

type fakeChat struct {
	queries   []string
	sqlTexts  []string
	feedback  []feedbackCall
	levels    []string
	clears    int
	queryErr  error
	cacheErr  error
	sqlResult string
}

func (f *fakeChat) ProcessQuery(_ context.Context, text string) (string, error) {
	f.queries = append(f.queries, text)
	if f.queryErr != nil {
		return "", f.queryErr
	}
	return "Resultado: 3", nil
}

func (f *fakeChat) SQLForQuery(_ context.Context, text string) (string, error) {
	f.sqlTexts = append(f.sqlTexts, text)
	return f.sqlResult, nil
}

func (f *fakeChat) Feedback(_ context.Context, isCorrect bool, correction string) (string, error) {
	f.feedback = append(f.feedback, feedbackCall{isCorrect: isCorrect, correction: correction})
	if isCorrect {
		return chat.MessageConfirmed, nil
	}
	return "Respuesta mejorada", nil
}

func (f *fakeChat) SetTechLevel(_ context.Context, raw string) (respond.Level, error) {
	level, err := respond.ParseLevel(raw)
	if err != nil {
		return "", err
	}
	f.levels = append(f.levels, raw)
	return level, nil
}

func (f *fakeChat) ClearCache(context.Context) (string, error) {
	if f.cacheErr != nil {
		return "", f.cacheErr
	}
	f.clears++
	return chat.MessageCacheCleared, nil
}

func run(t *testing.T, session *fakeChat, input string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, Options{
		Session: session,
		Stdin:   strings.NewReader(input),
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	return code, stdout.String(), stderr.String()
}

func TestRunDispatchesCommands(t *testing.T) {
	session := &fakeChat{sqlResult: "SELECT count(*) FROM usuarios"}
	input := strings.Join([]string{
		"cuántos usuarios hay",
		"!nivel basico",
		"!cache",
		"!sql cuántos usuarios hay",
		"!feedback solo administradores",
		"!desconocido",
		"!salir",
		"never processed",
	}, "\n")

	code, stdout, stderr := run(t, session, input)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if len(session.queries) != 1 || session.queries[0] != "cuántos usuarios hay" {
		t.Fatalf("queries = %v", session.queries)
	}
	if len(session.levels) != 1 || session.levels[0] != "basico" {
		t.Fatalf("levels = %v", session.levels)
	}
	if session.clears != 1 {
		t.Fatalf("clears = %d", session.clears)
	}
	if len(session.sqlTexts) != 1 || !strings.Contains(stdout, "SQL generado:\nSELECT count(*) FROM usuarios") {
		t.Fatalf("sql output missing: %s", stdout)
	}
	if len(session.feedback) != 1 || session.feedback[0] != (feedbackCall{correction: "solo administradores"}) {
		t.Fatalf("feedback = %+v", session.feedback)
	}
	for _, want := range []string{"Resultado: 3", "Nivel técnico actualizado a: basico", chat.MessageCacheCleared, "Comando no reconocido."} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunFeedbackPromptsWhenNoCorrection(t *testing.T) {
	session := &fakeChat{}
	code, _, _ := run(t, session, "!feedback\ns\n!feedback\nn\nusa la tabla operaciones\n")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	want := []feedbackCall{{isCorrect: true}, {correction: "usa la tabla operaciones"}}
	if len(session.feedback) != 2 || session.feedback[0] != want[0] || session.feedback[1] != want[1] {
		t.Fatalf("feedback = %+v", session.feedback)
	}
}

func TestRunAsksFeedbackAfterQueries(t *testing.T) {
	session := &fakeChat{}
	code, stdout, _ := run(t, session, "promedio de sumas\nn\nsolo sumas\n", "-ask-feedback")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(session.feedback) != 1 || session.feedback[0].correction != "solo sumas" {
		t.Fatalf("feedback = %+v", session.feedback)
	}
	if !strings.Contains(stdout, "Respuesta mejorada:\nRespuesta mejorada") {
		t.Fatalf("stdout = %s", stdout)
	}
}

func TestRunInvalidLevelKeepsSession(t *testing.T) {
	session := &fakeChat{}
	code, stdout, stderr := run(t, session, "!nivel experto\n!nivel\n")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "invalid technical level") || strings.Count(stdout, levelUsage) != 2 {
		t.Fatalf("stdout=%s stderr=%s", stdout, stderr)
	}
}

func TestRunStopsOnAccessDenied(t *testing.T) {
	session := &fakeChat{queryErr: chat.ErrAccessDenied}
	code, _, stderr := run(t, session, "uno\ndos\n")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "access denied") || len(session.queries) != 1 {
		t.Fatalf("stderr=%s queries=%v", stderr, session.queries)
	}
}

func TestRunReportsCacheErrorsWithoutExiting(t *testing.T) {
	session := &fakeChat{cacheErr: errors.New("persist cache: disk full")}
	code, _, stderr := run(t, session, "!cache\n")
	if code != 0 || !strings.Contains(stderr, "disk full") {
		t.Fatalf("exit code = %d stderr=%s", code, stderr)
	}
}

func TestRunAppliesLevelFlag(t *testing.T) {
	session := &fakeChat{}
	if code, _, _ := run(t, session, "", "-level", "avanzado"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(session.levels) != 1 || session.levels[0] != "avanzado" {
		t.Fatalf("levels = %v", session.levels)
	}
	if code, _, _ := run(t, &fakeChat{}, "", "-level", "experto"); code != 2 {
		t.Fatalf("exit code = %d, want 2 for invalid level flag", code)
	}
}

func TestRunRequiresSession(t *testing.T) {
	if code := Run(context.Background(), nil, Options{}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
