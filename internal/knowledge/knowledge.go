// Package knowledge holds the static portfolio knowledge base: intent keyword
// tables, response templates, navigation routes and the profile text used to
// ground the optional generator.
package knowledge

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"portfolio-chat/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// Base is a parsed knowledge base. It is never mutated after Parse.
type Base struct {
	Assistant        string           `yaml:"assistant"`
	Acknowledgements Acknowledgements `yaml:"acknowledgements"`
	Profile          string           `yaml:"profile"`
	Intents          []IntentDef      `yaml:"intents"`
	Fallback         Fallback         `yaml:"fallback"`
}

// Acknowledgements prefix replies when the visitor stays on a topic.
type Acknowledgements struct {
	First  string `yaml:"first"`
	Deeper string `yaml:"deeper"`
}

// IntentDef describes one intent. Declaration order is the classifier's tie-break order.
type IntentDef struct {
	Name            domain.Intent `yaml:"name"`
	Route           string        `yaml:"route"`
	Acknowledge     bool          `yaml:"acknowledge"`
	Patterns        []string      `yaml:"patterns"`
	ContextPatterns []string      `yaml:"context_patterns"`
	Responses       []Template    `yaml:"responses"`
}

// Template is a canned reply, optionally tagged with context keywords.
type Template struct {
	Text        string              `yaml:"text"`
	Context     []string            `yaml:"context"`
	Suggestions []domain.Suggestion `yaml:"suggestions"`
}

// Fallback is the generic clarifying reply. Text may contain {input}.
type Fallback struct {
	Text        string              `yaml:"text"`
	EmptyText   string              `yaml:"empty_text"`
	Suggestions []domain.Suggestion `yaml:"suggestions"`
}

var (
	defaultOnce sync.Once
	defaultBase *Base
)

// Default returns the embedded knowledge base.
func Default() *Base {
	defaultOnce.Do(func() {
		b, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("knowledge: embedded default is invalid: %v", err))
		}
		defaultBase = b
	})
	return defaultBase
}

// Parse decodes and validates a YAML knowledge base.
func Parse(data []byte) (*Base, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var b Base
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("knowledge: decode: %w", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Base) validate() error {
	if len(b.Intents) == 0 {
		return errors.New("knowledge: no intents defined")
	}
	seen := make(map[domain.Intent]bool, len(b.Intents))
	for i, def := range b.Intents {
		if strings.TrimSpace(string(def.Name)) == "" {
			return fmt.Errorf("knowledge: intent #%d has no name", i)
		}
		if def.Name == domain.IntentUnknown {
			return fmt.Errorf("knowledge: intent name %q is reserved", def.Name)
		}
		if seen[def.Name] {
			return fmt.Errorf("knowledge: duplicate intent %q", def.Name)
		}
		seen[def.Name] = true
		if len(def.Patterns) == 0 {
			return fmt.Errorf("knowledge: intent %q has no patterns", def.Name)
		}
		for j, t := range def.Responses {
			if strings.TrimSpace(t.Text) == "" {
				return fmt.Errorf("knowledge: intent %q response #%d has no text", def.Name, j)
			}
		}
	}
	if strings.TrimSpace(b.Fallback.Text) == "" {
		return errors.New("knowledge: fallback text is required")
	}
	if len(b.Fallback.Suggestions) == 0 {
		return errors.New("knowledge: fallback suggestions are required")
	}
	return nil
}

// Patterns returns the classifier table in declaration order.
func (b *Base) Patterns() []domain.IntentPattern {
	out := make([]domain.IntentPattern, 0, len(b.Intents))
	for _, def := range b.Intents {
		out = append(out, domain.IntentPattern{
			Intent:          def.Name,
			Patterns:        def.Patterns,
			ContextPatterns: def.ContextPatterns,
		})
	}
	return out
}

// Lookup finds the definition of an intent.
func (b *Base) Lookup(in domain.Intent) (IntentDef, bool) {
	for _, def := range b.Intents {
		if def.Name == in {
			return def, true
		}
	}
	return IntentDef{}, false
}

// RouteFor returns the navigation route bound to a suggestion action. Actions
// named after an intent navigate to that intent's route.
func (b *Base) RouteFor(action string) string {
	def, ok := b.Lookup(domain.Intent(action))
	if !ok {
		return ""
	}
	return def.Route
}
