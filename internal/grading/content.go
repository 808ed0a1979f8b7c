package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrMalformedContent = errors.New("malformed question content")
	ErrUnsupportedType  = errors.New("unsupported question type")
)

// Content is the answer key of one question. Each variant carries exactly the
// fields its grading rule needs.
type Content interface {
	Type() string
}

type SingleChoiceKey struct {
	CorrectIndex int `json:"correctOptionIndex"`
}

type MultipleChoiceKey struct {
	CorrectIndices []int `json:"correctOptionIndices"`
}

type TrueFalseKey struct {
	Correct bool `json:"correctAnswer"`
}

type FillBlankKey struct {
	Correct  string   `json:"correctAnswer,omitempty"`
	Accepted []string `json:"acceptedAnswers,omitempty"`
}

type NumericalKey struct {
	Correct   float64 `json:"correctAnswer"`
	Tolerance float64 `json:"tolerance"`
}

type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type MatchColumnKey struct {
	Pairs []MatchPair `json:"pairs"`
}

// SubjectiveKey never grades automatically; ModelAnswer is only shown in review.
type SubjectiveKey struct {
	Kind        string `json:"-"`
	ModelAnswer string `json:"modelAnswer,omitempty"`
	Rubric      string `json:"rubric,omitempty"`
}

func (SingleChoiceKey) Type() string   { return TypeSingleChoice }
func (MultipleChoiceKey) Type() string { return TypeMultipleChoice }
func (TrueFalseKey) Type() string      { return TypeTrueFalse }
func (FillBlankKey) Type() string      { return TypeFillBlank }
func (NumericalKey) Type() string      { return TypeNumerical }
func (MatchColumnKey) Type() string    { return TypeMatchColumn }
func (k SubjectiveKey) Type() string   { return k.Kind }

// Decode parses a stored content payload into the variant for qType. A
// missing or invalid answer-key field yields ErrMalformedContent.
func Decode(qType string, raw []byte) (Content, error) {
	switch qType {
	case TypeSingleChoice:
		var v struct {
			CorrectOptionIndex *int `json:"correctOptionIndex"`
		}
		if err := decodeObject(qType, raw, &v); err != nil {
			return nil, err
		}
		if v.CorrectOptionIndex == nil || *v.CorrectOptionIndex < 0 {
			return nil, malformed(qType, "correctOptionIndex")
		}
		return SingleChoiceKey{CorrectIndex: *v.CorrectOptionIndex}, nil

	case TypeMultipleChoice:
		var v struct {
			CorrectOptionIndices []int `json:"correctOptionIndices"`
		}
		if err := decodeObject(qType, raw, &v); err != nil {
			return nil, err
		}
		if len(v.CorrectOptionIndices) == 0 {
			return nil, malformed(qType, "correctOptionIndices")
		}
		return MultipleChoiceKey{CorrectIndices: v.CorrectOptionIndices}, nil

	case TypeTrueFalse:
		var v struct {
			CorrectAnswer json.RawMessage `json:"correctAnswer"`
		}
		if err := decodeObject(qType, raw, &v); err != nil {
			return nil, err
		}
		b, ok := coerceBool(v.CorrectAnswer)
		if !ok {
			return nil, malformed(qType, "correctAnswer")
		}
		return TrueFalseKey{Correct: b}, nil

	case TypeFillBlank:
		var v FillBlankKey
		if err := decodeObject(qType, raw, &v); err != nil {
			return nil, err
		}
		if strings.TrimSpace(v.Correct) == "" && len(nonEmpty(v.Accepted)) == 0 {
			return nil, malformed(qType, "correctAnswer")
		}
		v.Accepted = nonEmpty(v.Accepted)
		return v, nil

	case TypeNumerical:
		var v struct {
			CorrectAnswer *float64 `json:"correctAnswer"`
			Tolerance     float64  `json:"tolerance"`
		}
		if err := decodeObject(qType, raw, &v); err != nil {
			return nil, err
		}
		if v.CorrectAnswer == nil {
			return nil, malformed(qType, "correctAnswer")
		}
		return NumericalKey{Correct: *v.CorrectAnswer, Tolerance: math.Abs(v.Tolerance)}, nil

	case TypeMatchColumn:
		var v MatchColumnKey
		if err := decodeObject(qType, raw, &v); err != nil {
			return nil, err
		}
		if len(v.Pairs) == 0 {
			return nil, malformed(qType, "pairs")
		}
		for _, p := range v.Pairs {
			if strings.TrimSpace(p.Left) == "" {
				return nil, malformed(qType, "pairs.left")
			}
		}
		return v, nil

	case TypeShortAnswer, TypeLongAnswer, TypeEssay, TypeCreativeWriting:
		k := SubjectiveKey{Kind: qType}
		if len(bytes.TrimSpace(raw)) > 0 {
			// rubric text is optional, a broken payload just loses it
			_ = json.Unmarshal(raw, &k)
		}
		return k, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, qType)
}

func decodeObject(qType string, raw []byte, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return malformed(qType, "content")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedContent, qType, err)
	}
	return nil
}

func malformed(qType, field string) error {
	return fmt.Errorf("%w: %s missing %s", ErrMalformedContent, qType, field)
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
