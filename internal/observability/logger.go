package observability

import (
	"context"
	"io"
	"log/slog"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/sqlchat/sqlchat/internal/config"
)

type ctxKey string

const turnIDKey ctxKey = "turn_id"

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// LogWriter returns a rotating file writer when a log file is configured, or
// fallback otherwise. The interactive prompt owns stdout, so file logging is
// the usual setup for the chat binary.
func LogWriter(cfg config.Config, fallback io.Writer) io.WriteCloser {
	if cfg.Observability.LogFile == "" {
		return nopWriteCloser{Writer: fallback}
	}
	return &lumberjack.Logger{
		Filename:   cfg.Observability.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// NopLogger is used by components constructed without a logger.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ContextWithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey, turnID)
}

func TurnIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(turnIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

type nopWriteCloser struct {
	io.Writer
}

func (n nopWriteCloser) Write(p []byte) (int, error) {
	if n.Writer == nil {
		return len(p), nil
	}
	return n.Writer.Write(p)
}

func (nopWriteCloser) Close() error { return nil }
