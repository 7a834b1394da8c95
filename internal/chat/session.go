package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sqlchat/sqlchat/internal/identity"
	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/respond"
	"github.com/sqlchat/sqlchat/internal/schema"
)

var ErrAccessDenied = errors.New("access denied: administrator privileges required")

const (
	MessageNothingToCorrect = "No hay consultas recientes para corregir."
	MessageConfirmed        = "¡Gracias por la confirmación!"
	MessageAskCorrection    = "Gracias por la retroalimentación. ¿Cómo podría mejorar mi respuesta?"
	MessageFeedbackFailed   = "Lo siento, no pude generar una respuesta mejorada en este momento."
	MessageCacheCleared     = "Caché limpiado correctamente."
)

type Describer interface {
	Describe(ctx context.Context) (schema.Descriptor, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) nl2sql.Intent
}

type Generator interface {
	Generate(ctx context.Context, text string, intent nl2sql.Intent, descriptor schema.Descriptor) string
}

type Executor interface {
	Execute(ctx context.Context, statement string) query.Result
}

type Formatter interface {
	Format(ctx context.Context, result query.Result, originalText string, level respond.Level) string
}

type Cache interface {
	Clear(ctx context.Context) error
	PurgeExpired(ctx context.Context) (int, error)
}

type Deps struct {
	Schema    Describer
	Analyzer  Analyzer
	Generator Generator
	Executor  Executor
	Formatter Formatter
	Cache     Cache
	// Completer answers feedback corrections.
	Completer llm.Completer
	Tracer    trace.Tracer
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

type Options struct {
	TechLevel           respond.Level
	HistoryLimit        int
	FeedbackTemperature float64
}

// Session runs one turn at a time and keeps a bounded log of turns. Every
// operation requires an administrator principal in the context.
type Session struct {
	mu sync.Mutex

	deps       Deps
	opts       Options
	descriptor schema.Descriptor
	level      respond.Level
	turns      []Turn

	stageMu sync.Mutex
	stage   Stage
}

// New snapshots the schema and purges expired cache entries. A schema
// failure is fatal.
func New(ctx context.Context, deps Deps, opts Options) (*Session, error) {
	switch {
	case deps.Schema == nil:
		return nil, fmt.Errorf("schema describer is required")
	case deps.Analyzer == nil || deps.Generator == nil:
		return nil, fmt.Errorf("analyzer and generator are required")
	case deps.Executor == nil || deps.Formatter == nil:
		return nil, fmt.Errorf("executor and formatter are required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NopTracer()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if opts.TechLevel == "" {
		opts.TechLevel = respond.LevelMedium
	}
	if _, err := respond.ParseLevel(string(opts.TechLevel)); err != nil {
		return nil, err
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.FeedbackTemperature == 0 {
		opts.FeedbackTemperature = 0.5
	}

	descriptor, err := deps.Schema.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("build session schema: %w", err)
	}
	if deps.Cache != nil {
		removed, err := deps.Cache.PurgeExpired(ctx)
		if err != nil {
			deps.Logger.WarnContext(ctx, "purge expired cache entries failed", slog.Any("error", err))
		} else if removed > 0 {
			deps.Logger.InfoContext(ctx, "purged expired cache entries", slog.Int("removed", removed))
		}
	}

	return &Session{
		deps:       deps,
		opts:       opts,
		descriptor: descriptor,
		level:      opts.TechLevel,
		stage:      StageIdle,
	}, nil
}

// ProcessQuery runs one full turn. The only error is ErrAccessDenied; every
// pipeline failure is rendered into the response instead.
func (s *Session) ProcessQuery(ctx context.Context, text string) (string, error) {
	principal, err := requireAdmin(ctx)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setStage(StageIdle)

	turnID := s.deps.NewID()
	ctx = observability.ContextWithTurnID(ctx, turnID)
	ctx, span := s.deps.Tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("sqlchat.turn_id", turnID),
		attribute.Int64("sqlchat.user_id", principal.UserID),
	))
	defer span.End()
	start := s.deps.Now()

	statement := s.statementFor(ctx, text)

	s.setStage(StageExecuting)
	result := traced(ctx, s.deps.Tracer, "chat.execute", func(ctx context.Context) query.Result {
		result := s.deps.Executor.Execute(ctx, statement)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Bool("sqlchat.success", result.Success),
			attribute.Bool("sqlchat.cached", result.Cached),
			attribute.Int("sqlchat.rows", len(result.Rows)),
		)
		if !result.Success {
			trace.SpanFromContext(ctx).SetStatus(codes.Error, result.Error)
		}
		return result
	})

	s.setStage(StageFormatting)
	response := traced(ctx, s.deps.Tracer, "chat.format", func(ctx context.Context) string {
		return s.deps.Formatter.Format(ctx, result, text, s.level)
	})

	executed := result.Statement
	if executed == "" {
		executed = statement
	}
	s.appendTurn(Turn{
		ID:        turnID,
		UserID:    principal.UserID,
		Query:     text,
		Statement: executed,
		Response:  response,
		Timestamp: s.deps.Now(),
	})

	outcome := turnOutcome(result)
	observability.ObserveTurn(outcome)
	s.deps.Logger.InfoContext(ctx, "turn completed",
		slog.String("turn_id", turnID),
		slog.String("outcome", outcome),
		slog.Duration("duration", s.deps.Now().Sub(start)),
	)
	return response, nil
}

// SQLForQuery returns the statement a query would run, without executing it
// or recording a turn.
func (s *Session) SQLForQuery(ctx context.Context, text string) (string, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setStage(StageIdle)

	ctx, span := s.deps.Tracer.Start(ctx, "chat.sql_for_query")
	defer span.End()
	return s.statementFor(ctx, text), nil
}

func (s *Session) statementFor(ctx context.Context, text string) string {
	s.setStage(StageAnalyzingIntent)
	intent := traced(ctx, s.deps.Tracer, "chat.analyze_intent", func(ctx context.Context) nl2sql.Intent {
		return s.deps.Analyzer.Analyze(ctx, text)
	})

	s.setStage(StageGeneratingSQL)
	return traced(ctx, s.deps.Tracer, "chat.generate_sql", func(ctx context.Context) string {
		statement := s.deps.Generator.Generate(ctx, text, intent, s.descriptor)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("sqlchat.statement", statement))
		return statement
	})
}

// Feedback applies a verdict to the most recent turn. Without turns, or when
// the turn was correct, nothing is mutated.
func (s *Session) Feedback(ctx context.Context, isCorrect bool, correction string) (string, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == 0 {
		return MessageNothingToCorrect, nil
	}
	if isCorrect {
		return MessageConfirmed, nil
	}
	correction = strings.TrimSpace(correction)
	if correction == "" {
		return MessageAskCorrection, nil
	}

	s.setStage(StageAwaitingFeedback)
	defer s.setStage(StageIdle)

	last := &s.turns[len(s.turns)-1]
	last.Correction = correction
	if s.deps.Completer == nil {
		return MessageFeedbackFailed, nil
	}

	ctx, span := s.deps.Tracer.Start(ctx, "chat.feedback", trace.WithAttributes(attribute.String("sqlchat.turn_id", last.ID)))
	defer span.End()
	improved, err := s.deps.Completer.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeFeedback,
		System:      feedbackSystemPrompt,
		Prompt:      feedbackPrompt(last.Query, last.Response, correction),
		Temperature: s.opts.FeedbackTemperature,
	})
	if err != nil || strings.TrimSpace(improved) == "" {
		span.SetStatus(codes.Error, "feedback completion failed")
		s.deps.Logger.WarnContext(ctx, "feedback completion failed", slog.String("turn_id", last.ID), slog.Any("error", err))
		return MessageFeedbackFailed, nil
	}
	last.ImprovedResponse = strings.TrimSpace(improved)
	return last.ImprovedResponse, nil
}

// SetTechLevel changes the response level. Invalid levels leave the session
// unchanged.
func (s *Session) SetTechLevel(ctx context.Context, raw string) (respond.Level, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return "", err
	}
	level, err := respond.ParseLevel(raw)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	return level, nil
}

func (s *Session) ClearCache(ctx context.Context) (string, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deps.Cache == nil {
		return MessageCacheCleared, nil
	}
	if err := s.deps.Cache.Clear(ctx); err != nil {
		return "", fmt.Errorf("clear cache: %w", err)
	}
	return MessageCacheCleared, nil
}

// History returns a copy of the turn log, oldest first.
func (s *Session) History(ctx context.Context) ([]Turn, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...), nil
}

func (s *Session) TechLevel() respond.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *Session) Schema() schema.Descriptor {
	return s.descriptor
}

func (s *Session) appendTurn(turn Turn) {
	s.turns = append(s.turns, turn)
	if overflow := len(s.turns) - s.opts.HistoryLimit; overflow > 0 {
		s.turns = append([]Turn(nil), s.turns[overflow:]...)
	}
}

// Stage reports where the current turn is in the pipeline.
func (s *Session) Stage() Stage {
	s.stageMu.Lock()
	defer s.stageMu.Unlock()
	return s.stage
}

func (s *Session) setStage(stage Stage) {
	s.stageMu.Lock()
	defer s.stageMu.Unlock()
	s.stage = stage
}

func requireAdmin(ctx context.Context) (identity.Principal, error) {
	principal, ok := identity.PrincipalFromContext(ctx)
	if !ok || !principal.IsAdmin() {
		return identity.Principal{}, ErrAccessDenied
	}
	return principal, nil
}

func traced[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) T) T {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	return fn(ctx)
}

func turnOutcome(result query.Result) string {
	switch {
	case result.Success:
		return "success"
	case strings.HasPrefix(result.Error, "rejected by policy"):
		return "rejected"
	default:
		return "failed"
	}
}
