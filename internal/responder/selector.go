// Package responder turns a classification and the conversation context into
// the reply shown to the visitor.
package responder

import (
	"errors"
	"slices"
	"strings"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/intent"
	"portfolio-chat/internal/knowledge"
)

const (
	errorMessage  = "Lo siento, ha ocurrido un error. Por favor, intenta de nuevo más tarde."
	retryLabel    = "Reintentar"
	retryAction   = "retry"
	restartAction = "restart"
)

// Selector picks templates from a knowledge base. It holds no per-session
// state and is safe for concurrent use.
type Selector struct {
	kb *knowledge.Base
}

func NewSelector(kb *knowledge.Base) (*Selector, error) {
	if kb == nil {
		return nil, errors.New("responder: knowledge base must not be nil")
	}
	return &Selector{kb: kb}, nil
}

// Select answers one turn. cctx must already include the turn, so its
// TopicDepth reflects how long the visitor has stayed on the topic.
func (s *Selector) Select(cls domain.Classification, cctx domain.ConversationContext, input string) domain.Reply {
	if intent.ShouldHandoff(cls) {
		return s.Fallback(input, cctx)
	}
	def, ok := s.kb.Lookup(cls.Intent)
	if !ok || len(def.Responses) == 0 {
		return s.Fallback(input, cctx)
	}

	tmpl := bestTemplate(def.Responses, cls.Context)
	msg := tmpl.Text
	if def.Acknowledge {
		msg = s.acknowledgement(cctx.TopicDepth) + msg
	}
	return domain.Reply{
		Message:     msg,
		Suggestions: rankSuggestions(tmpl.Suggestions, cctx.UserPreferences),
		Intent:      cls.Intent,
		Confidence:  cls.Confidence,
		Navigate:    def.Route,
	}
}

// Fallback is the generic "could you be more specific" reply offering the
// top-level intents.
func (s *Selector) Fallback(input string, cctx domain.ConversationContext) domain.Reply {
	input = strings.TrimSpace(input)
	msg := s.kb.Fallback.Text
	if input == "" && s.kb.Fallback.EmptyText != "" {
		msg = s.kb.Fallback.EmptyText
	}
	return domain.Reply{
		Message:     strings.ReplaceAll(msg, "{input}", input),
		Suggestions: rankSuggestions(s.kb.Fallback.Suggestions, cctx.UserPreferences),
		Intent:      domain.IntentUnknown,
		Fallback:    true,
	}
}

// NavigationFor returns the navigation reply for a suggestion action bound
// to a route, or false when the action has none.
func (s *Selector) NavigationFor(action string) (domain.Reply, bool) {
	route := s.kb.RouteFor(action)
	if route == "" {
		return domain.Reply{}, false
	}
	return domain.Reply{Intent: domain.Intent(action), Confidence: 1, Navigate: route}, true
}

// ErrorReply is used when a turn could not be processed at all. It does not
// depend on the knowledge base having loaded. The retry chip carries the
// message that failed, which was never stored.
func ErrorReply(failed string) domain.Reply {
	return errorReply(domain.Suggestion{Text: retryLabel, Action: retryAction, Payload: failed})
}

// RestartErrorReply is the error reply for a failed reset; retrying it
// restarts the conversation again.
func RestartErrorReply() domain.Reply {
	return errorReply(domain.Suggestion{Text: retryLabel, Action: restartAction})
}

func errorReply(chip domain.Suggestion) domain.Reply {
	return domain.Reply{
		Message:     errorMessage,
		Suggestions: []domain.Suggestion{chip},
		Intent:      domain.IntentUnknown,
		Fallback:    true,
	}
}

func (s *Selector) acknowledgement(depth int) string {
	switch {
	case depth <= 0:
		return ""
	case depth == 1:
		return s.kb.Acknowledgements.First
	default:
		return s.kb.Acknowledgements.Deeper
	}
}

// bestTemplate returns the variant sharing the most tags with the matched
// context keywords; the first variant wins ties and the no-match case.
func bestTemplate(responses []knowledge.Template, matched []string) knowledge.Template {
	best, bestScore := responses[0], 0
	for _, t := range responses {
		score := 0
		for _, tag := range t.Context {
			if slices.Contains(matched, strings.ToLower(tag)) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best
}

// rankSuggestions moves actions the visitor already clicked after the unseen
// ones, keeping relative order otherwise.
func rankSuggestions(in []domain.Suggestion, seen []string) []domain.Suggestion {
	out := slices.Clone(in)
	if len(seen) == 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b domain.Suggestion) int {
		sa, sb := slices.Contains(seen, a.Action), slices.Contains(seen, b.Action)
		switch {
		case sa == sb:
			return 0
		case sb:
			return -1
		default:
			return 1
		}
	})
	return out
}
