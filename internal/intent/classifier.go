// Package intent maps free-text visitor input to one of the knowledge base intents.
package intent

import (
	"errors"
	"fmt"
	"strings"

	"portfolio-chat/internal/domain"
)

// HandoffThreshold is the confidence below which a classification is not
// actionable and the caller must answer with the generic clarifying reply.
const HandoffThreshold = 0.3

// Classifier is the classification strategy. Implementations are pure: the
// result depends only on the input and the pattern table given at construction.
type Classifier interface {
	Classify(input string) domain.Classification
}

// Kind selects a Classifier implementation.
type Kind string

const (
	KindRuleBased Kind = "rule"
	KindEmbedding Kind = "embedding"
)

// ParseKind validates a configured classifier name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRuleBased, KindEmbedding:
		return k, nil
	case "":
		return KindRuleBased, nil
	default:
		return "", fmt.Errorf("intent: unknown classifier kind %q", s)
	}
}

// New builds the classifier of the given kind over the pattern table.
func New(kind Kind, patterns []domain.IntentPattern) (Classifier, error) {
	switch kind {
	case KindRuleBased, "":
		return NewRuleBased(patterns)
	case KindEmbedding:
		return NewEmbedding(patterns)
	default:
		return nil, fmt.Errorf("intent: unknown classifier kind %q", kind)
	}
}

// ShouldHandoff reports whether c is too weak to act on.
func ShouldHandoff(c domain.Classification) bool {
	return c.Confidence < HandoffThreshold
}

// Unknown is the classification for input that matches nothing.
func Unknown() domain.Classification {
	return domain.Classification{Intent: domain.IntentUnknown, Confidence: 0}
}

// RuleBasedClassifier scores each intent by the share of its primary patterns
// contained in the lower-cased input.
type RuleBasedClassifier struct {
	patterns []domain.IntentPattern
}

// NewRuleBased validates and normalizes the pattern table.
func NewRuleBased(patterns []domain.IntentPattern) (*RuleBasedClassifier, error) {
	normalized, err := normalizeTable(patterns)
	if err != nil {
		return nil, err
	}
	return &RuleBasedClassifier{patterns: normalized}, nil
}

// Classify returns the best intent. Ties keep the intent declared first.
func (c *RuleBasedClassifier) Classify(input string) domain.Classification {
	text := normalize(input)
	if text == "" {
		return Unknown()
	}

	best := Unknown()
	for _, p := range c.patterns {
		matched := 0
		for _, kw := range p.Patterns {
			if strings.Contains(text, kw) {
				matched++
			}
		}
		score := float64(matched) / float64(len(p.Patterns))
		if score > best.Confidence {
			best = domain.Classification{
				Intent:     p.Intent,
				Confidence: score,
				Context:    containedKeywords(text, p.ContextPatterns),
			}
		}
	}
	return best
}

func normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(strings.ToValidUTF8(input, "")))
}

func containedKeywords(text string, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// normalizeTable lower-cases keywords, drops duplicates and rejects tables
// that would make scoring meaningless.
func normalizeTable(patterns []domain.IntentPattern) ([]domain.IntentPattern, error) {
	if len(patterns) == 0 {
		return nil, errors.New("intent: pattern table must not be empty")
	}
	seen := make(map[domain.Intent]bool, len(patterns))
	out := make([]domain.IntentPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Intent == domain.IntentNone || p.Intent == domain.IntentUnknown {
			return nil, fmt.Errorf("intent: reserved intent name %q in pattern table", p.Intent)
		}
		if seen[p.Intent] {
			return nil, fmt.Errorf("intent: duplicate intent %q", p.Intent)
		}
		seen[p.Intent] = true

		primary, err := normalizeKeywords(p.Intent, p.Patterns)
		if err != nil {
			return nil, err
		}
		if len(primary) == 0 {
			return nil, fmt.Errorf("intent: %q has no primary patterns", p.Intent)
		}
		secondary, err := normalizeKeywords(p.Intent, p.ContextPatterns)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.IntentPattern{Intent: p.Intent, Patterns: primary, ContextPatterns: secondary})
	}
	return out, nil
}

func normalizeKeywords(in domain.Intent, keywords []string) ([]string, error) {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = normalize(kw)
		if kw == "" {
			// An empty keyword is a substring of every input.
			return nil, fmt.Errorf("intent: %q has an empty keyword", in)
		}
		if seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out, nil
}
