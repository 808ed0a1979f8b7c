package grading

import "math"

// Question types understood by the engine. Anything else is routed to
// manual grading.
const (
	TypeSingleChoice    = "single_choice"
	TypeMultipleChoice  = "multiple_choice"
	TypeTrueFalse       = "true_false"
	TypeFillBlank       = "fill_blank"
	TypeNumerical       = "numerical"
	TypeMatchColumn     = "match_column"
	TypeShortAnswer     = "short_answer"
	TypeLongAnswer      = "long_answer"
	TypeEssay           = "essay"
	TypeCreativeWriting = "creative_writing"
)

var objectiveTypes = map[string]bool{
	TypeSingleChoice:   true,
	TypeMultipleChoice: true,
	TypeTrueFalse:      true,
	TypeFillBlank:      true,
	TypeNumerical:      true,
	TypeMatchColumn:    true,
}

var subjectiveTypes = map[string]bool{
	TypeShortAnswer:     true,
	TypeLongAnswer:      true,
	TypeEssay:           true,
	TypeCreativeWriting: true,
}

// IsObjective reports whether questions of type t are auto-gradable.
func IsObjective(t string) bool {
	return objectiveTypes[t]
}

// IsManual is true for subjective types and for unrecognised ones.
func IsManual(t string) bool {
	return !objectiveTypes[t]
}

func IsKnownType(t string) bool {
	return objectiveTypes[t] || subjectiveTypes[t]
}

// HasOptions reports whether the type presents an option list whose order
// may be shuffled.
func HasOptions(t string) bool {
	return t == TypeSingleChoice || t == TypeMultipleChoice
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
