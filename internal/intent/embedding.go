package intent

import (
	"math"
	"strings"
	"unicode"

	"portfolio-chat/internal/domain"
)

const defaultMinSimilarity = 0.6

// EmbeddingClassifier is a fuzzy variant of the rule-based strategy. Each
// primary pattern is embedded as a character-trigram vector and compared with
// every same-length word window of the input; a pattern counts with its best
// cosine similarity when that similarity reaches the minimum. This tolerates
// plurals, missing accents and small typos that plain containment misses.
type EmbeddingClassifier struct {
	intents       []embeddedIntent
	minSimilarity float64
}

type embeddedIntent struct {
	pattern  domain.IntentPattern
	keywords []embeddedKeyword
}

type embeddedKeyword struct {
	words int
	vec   vector
}

// EmbeddingOption configures an EmbeddingClassifier.
type EmbeddingOption func(*EmbeddingClassifier)

// WithMinSimilarity overrides the per-pattern similarity cut-off.
func WithMinSimilarity(v float64) EmbeddingOption {
	return func(c *EmbeddingClassifier) {
		if v > 0 && v <= 1 {
			c.minSimilarity = v
		}
	}
}

// NewEmbedding validates the table and precomputes pattern vectors.
func NewEmbedding(patterns []domain.IntentPattern, opts ...EmbeddingOption) (*EmbeddingClassifier, error) {
	normalized, err := normalizeTable(patterns)
	if err != nil {
		return nil, err
	}
	c := &EmbeddingClassifier{minSimilarity: defaultMinSimilarity}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range normalized {
		ei := embeddedIntent{pattern: p}
		for _, kw := range p.Patterns {
			words := tokenize(kw)
			ei.keywords = append(ei.keywords, embeddedKeyword{words: max(len(words), 1), vec: embed(words)})
		}
		c.intents = append(c.intents, ei)
	}
	return c, nil
}

// Classify returns the best intent. Ties keep the intent declared first.
func (c *EmbeddingClassifier) Classify(input string) domain.Classification {
	text := normalize(input)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Unknown()
	}

	windows := make(map[int][]vector)
	windowVectors := func(n int) []vector {
		if v, ok := windows[n]; ok {
			return v
		}
		var out []vector
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, embed(tokens[i:i+n]))
		}
		windows[n] = out
		return out
	}

	best := Unknown()
	for _, ei := range c.intents {
		var total float64
		for _, kw := range ei.keywords {
			var top float64
			for _, w := range windowVectors(kw.words) {
				if sim := cosine(w, kw.vec); sim > top {
					top = sim
				}
			}
			if top >= c.minSimilarity {
				total += top
			}
		}
		score := math.Min(1, total/float64(len(ei.keywords)))
		if score > best.Confidence {
			best = domain.Classification{
				Intent:     ei.pattern.Intent,
				Confidence: score,
				Context:    containedKeywords(text, ei.pattern.ContextPatterns),
			}
		}
	}
	return best
}

type vector map[string]float64

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// embed counts padded character trigrams of the word sequence.
func embed(words []string) vector {
	v := make(vector)
	for _, w := range words {
		runes := []rune(" " + w + " ")
		if len(runes) < 3 {
			continue
		}
		for i := 0; i+3 <= len(runes); i++ {
			v[string(runes[i:i+3])]++
		}
	}
	return v
}

func cosine(a, b vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, x := range a {
		na += x * x
		if y, ok := b[k]; ok {
			dot += x * y
		}
	}
	for _, y := range b {
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb)))
}
