package intent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/knowledge"
)

func defaultClassifier(t *testing.T) *RuleBasedClassifier {
	t.Helper()
	c, err := NewRuleBased(knowledge.Default().Patterns())
	require.NoError(t, err)
	return c
}

func TestRuleBased_ExperienceQuestion(t *testing.T) {
	got := defaultClassifier(t).Classify("¿Cuál es tu experiencia?")
	require.Equal(t, domain.IntentExperience, got.Intent)
	require.GreaterOrEqual(t, got.Confidence, 0.5)
	require.False(t, ShouldHandoff(got))
}

func TestRuleBased_NoKeywordsIsUnknown(t *testing.T) {
	c := defaultClassifier(t)
	for _, in := range []string{"asdf qwer", "", "   ", "12345", "\xff\xfe"} {
		got := c.Classify(in)
		require.Equal(t, domain.IntentUnknown, got.Intent, "input=%q", in)
		require.Zero(t, got.Confidence, "input=%q", in)
		require.True(t, ShouldHandoff(got))
	}
}

func TestRuleBased_AllPrimaryPatternsGiveFullConfidence(t *testing.T) {
	c := defaultClassifier(t)
	for _, p := range knowledge.Default().Patterns() {
		got := c.Classify(strings.Join(p.Patterns, " y "))
		require.Equal(t, p.Intent, got.Intent)
		require.Equal(t, 1.0, got.Confidence)
	}
}

func TestRuleBased_CaseInsensitive(t *testing.T) {
	got := defaultClassifier(t).Classify("HOLA, BUENAS")
	require.Equal(t, domain.IntentGreeting, got.Intent)
	require.Equal(t, 1.0, got.Confidence)
}

func TestRuleBased_ConfidenceInRange(t *testing.T) {
	c := defaultClassifier(t)
	inputs := []string{
		"experiencia experiencia experiencia",
		"proyecto portfolio proyecto",
		"hola gracias contacto email correo",
		"tecnología habilidad experiencia trayectoria",
	}
	for _, in := range inputs {
		got := c.Classify(in)
		require.GreaterOrEqual(t, got.Confidence, 0.0)
		require.LessOrEqual(t, got.Confidence, 1.0)
	}
}

func TestRuleBased_RepeatedPatternCountsOnce(t *testing.T) {
	got := defaultClassifier(t).Classify("experiencia experiencia")
	require.Equal(t, 0.5, got.Confidence)
}

func TestRuleBased_TieKeepsFirstDeclared(t *testing.T) {
	c, err := NewRuleBased([]domain.IntentPattern{
		{Intent: "alpha", Patterns: []string{"trabajo", "zzz"}},
		{Intent: "beta", Patterns: []string{"trabajo", "yyy"}},
	})
	require.NoError(t, err)

	got := c.Classify("mi trabajo")
	require.Equal(t, domain.Intent("alpha"), got.Intent)
	require.Equal(t, 0.5, got.Confidence)
}

func TestRuleBased_ReturnsContextKeywords(t *testing.T) {
	got := defaultClassifier(t).Classify("tu experiencia actual en landoo")
	require.Equal(t, domain.IntentExperience, got.Intent)
	require.ElementsMatch(t, []string{"actual", "landoo"}, got.Context)
}

func TestRuleBased_BelowThresholdHandsOff(t *testing.T) {
	c, err := NewRuleBased([]domain.IntentPattern{
		{Intent: "contact", Patterns: []string{"contacto", "correo", "email", "teléfono"}},
	})
	require.NoError(t, err)

	got := c.Classify("dame tu email")
	require.Equal(t, domain.IntentContact, got.Intent)
	require.Equal(t, 0.25, got.Confidence)
	require.True(t, ShouldHandoff(got))
}

func TestNewRuleBased_RejectsBadTables(t *testing.T) {
	cases := map[string][]domain.IntentPattern{
		"empty":         nil,
		"no patterns":   {{Intent: "a"}},
		"empty keyword": {{Intent: "a", Patterns: []string{"x", " "}}},
		"duplicate":     {{Intent: "a", Patterns: []string{"x"}}, {Intent: "a", Patterns: []string{"y"}}},
		"reserved":      {{Intent: domain.IntentUnknown, Patterns: []string{"x"}}},
		"bad context":   {{Intent: "a", Patterns: []string{"x"}, ContextPatterns: []string{""}}},
	}
	for name, table := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRuleBased(table)
			require.Error(t, err)
		})
	}
}

func TestNewRuleBased_NormalizesKeywords(t *testing.T) {
	c, err := NewRuleBased([]domain.IntentPattern{
		{Intent: "a", Patterns: []string{"Hola", "hola", "  SALUDOS "}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"hola", "saludos"}, c.patterns[0].Patterns)
	require.Equal(t, 1.0, c.Classify("hola y saludos").Confidence)
}

func TestParseKindAndNew(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	require.Equal(t, KindRuleBased, k)

	k, err = ParseKind(" Embedding ")
	require.NoError(t, err)
	require.Equal(t, KindEmbedding, k)

	_, err = ParseKind("tensorflow")
	require.Error(t, err)

	c, err := New(KindRuleBased, knowledge.Default().Patterns())
	require.NoError(t, err)
	require.IsType(t, &RuleBasedClassifier{}, c)

	c, err = New(KindEmbedding, knowledge.Default().Patterns())
	require.NoError(t, err)
	require.IsType(t, &EmbeddingClassifier{}, c)

	_, err = New("other", knowledge.Default().Patterns())
	require.Error(t, err)
}
