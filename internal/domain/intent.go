package domain

// Intent is a named category of visitor request.
type Intent string

// IntentNone is the absent intent: no topic has been detected.
const IntentNone Intent = ""

const (
	IntentExperience Intent = "experience"
	IntentProjects   Intent = "projects"
	IntentSkills     Intent = "skills"
	IntentContact    Intent = "contact"
	IntentGreeting   Intent = "greeting"
	IntentFarewell   Intent = "farewell"
	IntentUnknown    Intent = "unknown"
)

// IntentPattern is the static keyword table entry for one intent.
// Patterns drive scoring; ContextPatterns only refine template choice.
type IntentPattern struct {
	Intent          Intent
	Patterns        []string
	ContextPatterns []string
}

// Classification is the classifier's verdict for a single input.
type Classification struct {
	Intent     Intent
	Confidence float64
	// Context lists the secondary keywords of the winning intent found in the input.
	Context []string
}
