package usecase

import (
	"fmt"
	"strings"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/knowledge"
	"portfolio-chat/internal/redact"
)

const maxTranscript = 10

func buildPromptMessages(kb *knowledge.Base, transcript []domain.ChatMessage, message string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(transcript)+2)
	messages = append(messages, domain.ChatMessage{Role: "system", Content: buildSystemPrompt(kb)})

	for _, m := range transcript {
		content := normalizePromptInput(redact.String(m.Content))
		if content == "" {
			continue
		}
		messages = append(messages, domain.ChatMessage{Role: m.Role, Content: content})
	}

	messages = append(messages, domain.ChatMessage{
		Role:    "user",
		Content: redact.String(message),
	})
	return messages
}

func buildSystemPrompt(kb *knowledge.Base) string {
	return strings.Join([]string{
		fmt.Sprintf("Eres %s, el asistente virtual del portfolio.", assistantName(kb)),
		"Actúas como primer punto de contacto profesional para visitantes y reclutadores.",
		"",
		"Base de conocimiento:",
		strings.TrimSpace(kb.Profile),
		"",
		"Directrices:",
		behaviorRules(),
	}, "\n")
}

func assistantName(kb *knowledge.Base) string {
	if name := strings.TrimSpace(kb.Assistant); name != "" {
		return name
	}
	return "el asistente"
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Usa exclusivamente la información de la base de conocimiento.",
		"2) Si no tienes un dato, dilo y ofrece el email de contacto.",
		"3) Responde en español con un máximo de tres oraciones.",
		"4) Invita a ver proyectos o a contactar cuando tenga sentido.",
	}, "\n")
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// appendTranscript records one completed exchange, keeping the newest
// maxTranscript messages.
func appendTranscript(transcript []domain.ChatMessage, user, assistant string) []domain.ChatMessage {
	out := append(make([]domain.ChatMessage, 0, len(transcript)+2), transcript...)
	out = append(out, []domain.ChatMessage{
		{Role: "user", Content: user},
		{Role: "assistant", Content: assistant},
	}...)
	if n := len(out); n > maxTranscript {
		out = out[n-maxTranscript:]
	}
	return out
}
