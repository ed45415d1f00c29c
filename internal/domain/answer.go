package domain

// Confidence is the model's self-reported support level for a grounded answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// GroundedAnswer is an answer constrained to cite supporting document text.
// All fields are always populated, falling back to fixed values when the
// model does not comply with the requested format.
type GroundedAnswer struct {
	Answer        string     `json:"answer"`
	Justification string     `json:"justification"`
	SourceSnippet string     `json:"source_snippet"`
	Confidence    Confidence `json:"confidence"`
}

// ParseStrategy records how a model response was decoded.
type ParseStrategy string

const (
	StrategyStructured ParseStrategy = "structured"
	StrategyDegraded   ParseStrategy = "degraded"
)

// ChallengeSet holds at most three comprehension questions.
type ChallengeSet struct {
	Questions []string
	Strategy  ParseStrategy
}

// Evaluation is the model's free-text grading narrative.
type Evaluation struct {
	RawNarrative string
}
