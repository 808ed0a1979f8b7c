package grading

// Review is the read-only answer reveal shown to students once results are
// releasable. Building it never touches the attempt.
type Review struct {
	CorrectAnswer interface{} `json:"correctAnswer,omitempty"`
	Explanation   string      `json:"explanation,omitempty"`
	Gradable      bool        `json:"gradable"`
}

// Feedback runs the engine in reveal mode for one question.
func Feedback(qType string, content []byte, explanation string) Review {
	r := Review{Explanation: explanation}
	key, err := Decode(qType, content)
	if err != nil {
		return r
	}
	switch k := key.(type) {
	case SingleChoiceKey:
		r.CorrectAnswer = k.CorrectIndex
	case MultipleChoiceKey:
		r.CorrectAnswer = k.CorrectIndices
	case TrueFalseKey:
		r.CorrectAnswer = k.Correct
	case FillBlankKey:
		r.CorrectAnswer = k
	case NumericalKey:
		r.CorrectAnswer = k
	case MatchColumnKey:
		r.CorrectAnswer = k.Pairs
	case SubjectiveKey:
		if k.ModelAnswer != "" {
			r.CorrectAnswer = k.ModelAnswer
		}
		return r
	}
	r.Gradable = true
	return r
}
