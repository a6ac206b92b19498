package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// generator integration and the session transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Suggestion is a quick-reply chip shown under a bot message.
type Suggestion struct {
	Text   string `json:"text"`
	Action string `json:"action"`
	// Payload replaces Text as the submitted text when the chip is clicked.
	Payload string `json:"payload,omitempty"`
}

// Input is the text a client submits along with the chip's action.
func (s Suggestion) Input() string {
	if s.Payload != "" {
		return s.Payload
	}
	return s.Text
}

// Reply is the outcome of one user turn.
type Reply struct {
	Message     string
	Suggestions []Suggestion
	Intent      Intent
	Confidence  float64
	// Navigate is the route the client should open, empty when none.
	Navigate string
	// Fallback marks the generic clarifying reply.
	Fallback bool
}
