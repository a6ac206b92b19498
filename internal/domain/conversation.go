package domain

import "time"

// ConversationContext is the rolling conversational state of one session.
type ConversationContext struct {
	CurrentTopic    Intent    `json:"currentTopic,omitempty"`
	TopicDepth      int       `json:"topicDepth"`
	LastInteraction time.Time `json:"lastInteraction"`
	History         []string  `json:"history"`
	UserPreferences []string  `json:"userPreferences"`
}

// Session is the persisted per-visitor state.
type Session struct {
	ID      string              `json:"id"`
	Context ConversationContext `json:"context"`
	// FallbackMode is set once the generator failed for this session.
	FallbackMode bool          `json:"fallbackMode"`
	Turns        int           `json:"turns"`
	Transcript   []ChatMessage `json:"transcript"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}
