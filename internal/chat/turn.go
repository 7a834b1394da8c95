package chat

import (
	"fmt"
	"time"
)

type Stage string

const (
	StageIdle             Stage = "idle"
	StageAnalyzingIntent  Stage = "analyzing_intent"
	StageGeneratingSQL    Stage = "generating_sql"
	StageExecuting        Stage = "executing"
	StageFormatting       Stage = "formatting"
	StageAwaitingFeedback Stage = "awaiting_feedback"
)

// Turn is one query and its response. Only the most recent turn is ever
// mutated, to attach feedback.
type Turn struct {
	ID               string
	UserID           int64
	Query            string
	Statement        string
	Response         string
	Timestamp        time.Time
	Correction       string
	ImprovedResponse string
}

const feedbackSystemPrompt = `Eres un asistente que aprende de las correcciones.
Analiza la consulta original, tu respuesta anterior, y la corrección del usuario.
Proporciona una respuesta mejorada basada en esta retroalimentación.`

func feedbackPrompt(query, response, correction string) string {
	return fmt.Sprintf(`Consulta original: "%s"

Tu respuesta anterior: "%s"

Corrección del usuario: "%s"

Proporciona una respuesta mejorada que aborde la corrección del usuario.`, query, response, correction)
}
