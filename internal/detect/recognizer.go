package detect

import (
	"regexp"

	"github.com/veilproject/veil/internal/entity"
)

// Recognizer finds sensitive spans in text. Implementations range from
// deterministic regex patterns to model-backed detectors; new entity kinds
// are supported by registering a new implementation, not by branching on
// type strings.
type Recognizer interface {
	Name() string
	Recognize(text string) []entity.Entity
}

// PatternRecognizer detects a single entity kind with a regular expression.
// Well-formed pattern matches have effectively perfect precision, so these
// recognizers report a fixed high confidence and win span conflicts against
// the statistical detector.
type PatternRecognizer struct {
	name       string
	kind       entity.Kind
	pattern    *regexp.Regexp
	confidence float64
}

// NewPatternRecognizer builds a recognizer for the given kind and pattern.
func NewPatternRecognizer(name string, kind entity.Kind, pattern *regexp.Regexp, confidence float64) *PatternRecognizer {
	return &PatternRecognizer{
		name:       name,
		kind:       kind,
		pattern:    pattern,
		confidence: confidence,
	}
}

// Name returns the recognizer name used for enable/disable configuration.
func (r *PatternRecognizer) Name() string {
	return r.name
}

// Recognize returns one entity per non-overlapping pattern match.
func (r *PatternRecognizer) Recognize(text string) []entity.Entity {
	locs := r.pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	entities := make([]entity.Entity, 0, len(locs))
	for _, loc := range locs {
		entities = append(entities, entity.Entity{
			Kind:       r.kind,
			Value:      text[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
			Confidence: r.confidence,
		})
	}
	return entities
}

// defaultRecognizers returns the built-in pattern recognizers.
func defaultRecognizers() []Recognizer {
	return []Recognizer{
		NewPatternRecognizer("ssn", entity.KindSSN,
			regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), 1.0),
		NewPatternRecognizer("email", entity.KindEmail,
			regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), 1.0),
		NewPatternRecognizer("credit_card", entity.KindCreditCard,
			regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), 0.9),
		NewPatternRecognizer("phone", entity.KindPhone,
			regexp.MustCompile(`(?:\(\d{3}\)\s?|\b\d{3}[-. ])\d{3}[-. ]\d{4}\b`), 0.9),
	}
}
