package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrade(t *testing.T) {
	tests := []struct {
		name      string
		qType     string
		content   string
		answer    string
		maxMarks  float64
		gradable  bool
		isCorrect bool
		marks     float64
		reason    string
	}{
		{name: "single choice correct", qType: TypeSingleChoice, content: `{"correctOptionIndex":1}`, answer: `1`, maxMarks: 4, gradable: true, isCorrect: true, marks: 4, reason: ReasonCorrect},
		{name: "single choice wrong", qType: TypeSingleChoice, content: `{"correctOptionIndex":1}`, answer: `2`, maxMarks: 4, gradable: true, reason: ReasonIncorrect},
		{name: "single choice numeric string", qType: TypeSingleChoice, content: `{"correctOptionIndex":0}`, answer: `"0"`, maxMarks: 2, gradable: true, isCorrect: true, marks: 2, reason: ReasonCorrect},
		{name: "single choice fractional index", qType: TypeSingleChoice, content: `{"correctOptionIndex":1}`, answer: `1.5`, maxMarks: 2, gradable: true, reason: ReasonIncorrect},
		{name: "single choice null answer", qType: TypeSingleChoice, content: `{"correctOptionIndex":1}`, answer: `null`, maxMarks: 4, gradable: true, reason: ReasonUnanswered},
		{name: "single choice empty answer", qType: TypeSingleChoice, content: `{"correctOptionIndex":1}`, answer: ``, maxMarks: 4, gradable: true, reason: ReasonUnanswered},
		{name: "single choice missing key", qType: TypeSingleChoice, content: `{}`, answer: `1`, maxMarks: 4, reason: ReasonMalformed},

		{name: "multiple choice exact", qType: TypeMultipleChoice, content: `{"correctOptionIndices":[0,2]}`, answer: `[2,0]`, maxMarks: 3, gradable: true, isCorrect: true, marks: 3, reason: ReasonCorrect},
		{name: "multiple choice subset", qType: TypeMultipleChoice, content: `{"correctOptionIndices":[0,2]}`, answer: `[0]`, maxMarks: 3, gradable: true, reason: ReasonIncorrect},
		{name: "multiple choice superset", qType: TypeMultipleChoice, content: `{"correctOptionIndices":[0,2]}`, answer: `[0,1,2]`, maxMarks: 3, gradable: true, reason: ReasonIncorrect},
		{name: "multiple choice not a list", qType: TypeMultipleChoice, content: `{"correctOptionIndices":[0,2]}`, answer: `"0,2"`, maxMarks: 3, gradable: true, reason: ReasonIncorrect},
		{name: "multiple choice empty key", qType: TypeMultipleChoice, content: `{"correctOptionIndices":[]}`, answer: `[0]`, maxMarks: 3, reason: ReasonMalformed},

		{name: "true false bool", qType: TypeTrueFalse, content: `{"correctAnswer":true}`, answer: `true`, maxMarks: 1, gradable: true, isCorrect: true, marks: 1, reason: ReasonCorrect},
		{name: "true false string coerced", qType: TypeTrueFalse, content: `{"correctAnswer":false}`, answer: `" False "`, maxMarks: 1, gradable: true, isCorrect: true, marks: 1, reason: ReasonCorrect},
		{name: "true false number coerced", qType: TypeTrueFalse, content: `{"correctAnswer":"true"}`, answer: `1`, maxMarks: 1, gradable: true, isCorrect: true, marks: 1, reason: ReasonCorrect},
		{name: "true false wrong", qType: TypeTrueFalse, content: `{"correctAnswer":true}`, answer: `false`, maxMarks: 1, gradable: true, reason: ReasonIncorrect},
		{name: "true false garbage answer", qType: TypeTrueFalse, content: `{"correctAnswer":true}`, answer: `"maybe"`, maxMarks: 1, gradable: true, reason: ReasonIncorrect},

		{name: "fill blank case insensitive", qType: TypeFillBlank, content: `{"correctAnswer":"Paris"}`, answer: `"  paris "`, maxMarks: 2, gradable: true, isCorrect: true, marks: 2, reason: ReasonCorrect},
		{name: "fill blank accepted list", qType: TypeFillBlank, content: `{"correctAnswer":"H2O","acceptedAnswers":["water","aqua"]}`, answer: `"AQUA"`, maxMarks: 2, gradable: true, isCorrect: true, marks: 2, reason: ReasonCorrect},
		{name: "fill blank only accepted list", qType: TypeFillBlank, content: `{"acceptedAnswers":["42"]}`, answer: `42`, maxMarks: 2, gradable: true, isCorrect: true, marks: 2, reason: ReasonCorrect},
		{name: "fill blank wrong", qType: TypeFillBlank, content: `{"correctAnswer":"Paris"}`, answer: `"Lyon"`, maxMarks: 2, gradable: true, reason: ReasonIncorrect},
		{name: "fill blank blank answer", qType: TypeFillBlank, content: `{"correctAnswer":"Paris"}`, answer: `"   "`, maxMarks: 2, gradable: true, reason: ReasonIncorrect},
		{name: "fill blank no key", qType: TypeFillBlank, content: `{"correctAnswer":" "}`, answer: `"x"`, maxMarks: 2, reason: ReasonMalformed},

		{name: "numerical within tolerance", qType: TypeNumerical, content: `{"correctAnswer":10,"tolerance":0.5}`, answer: `10.4`, maxMarks: 5, gradable: true, isCorrect: true, marks: 5, reason: ReasonCorrect},
		{name: "numerical on tolerance edge", qType: TypeNumerical, content: `{"correctAnswer":10,"tolerance":0.5}`, answer: `9.5`, maxMarks: 5, gradable: true, isCorrect: true, marks: 5, reason: ReasonCorrect},
		{name: "numerical outside tolerance", qType: TypeNumerical, content: `{"correctAnswer":10,"tolerance":0.5}`, answer: `10.6`, maxMarks: 5, gradable: true, reason: ReasonIncorrect},
		{name: "numerical default tolerance", qType: TypeNumerical, content: `{"correctAnswer":3.14}`, answer: `"3.14"`, maxMarks: 5, gradable: true, isCorrect: true, marks: 5, reason: ReasonCorrect},
		{name: "numerical non numeric", qType: TypeNumerical, content: `{"correctAnswer":10}`, answer: `"ten"`, maxMarks: 5, gradable: true, reason: ReasonIncorrect},
		{name: "numerical missing key", qType: TypeNumerical, content: `{"tolerance":1}`, answer: `10`, maxMarks: 5, reason: ReasonMalformed},

		{name: "match all pairs", qType: TypeMatchColumn, content: `{"pairs":[{"left":"a","right":"1"},{"left":"b","right":"2"}]}`, answer: `{"a":"1","b":"2"}`, maxMarks: 4, gradable: true, isCorrect: true, marks: 4, reason: ReasonCorrect},
		{name: "match three of four", qType: TypeMatchColumn, content: `{"pairs":[{"left":"a","right":"1"},{"left":"b","right":"2"},{"left":"c","right":"3"},{"left":"d","right":"4"}]}`, answer: `{"a":"1","b":"2","c":"3","d":"1"}`, maxMarks: 8, gradable: true, marks: 6, reason: ReasonPartial},
		{name: "match list form rounds", qType: TypeMatchColumn, content: `{"pairs":[{"left":"a","right":"1"},{"left":"b","right":"2"},{"left":"c","right":"3"}]}`, answer: `[{"left":"A","right":"1"}]`, maxMarks: 1, gradable: true, marks: 0.33, reason: ReasonPartial},
		{name: "match numeric right side", qType: TypeMatchColumn, content: `{"pairs":[{"left":"a","right":"1"},{"left":"b","right":"2"}]}`, answer: `{"a":1,"b":"2"}`, maxMarks: 4, gradable: true, isCorrect: true, marks: 4, reason: ReasonCorrect},
		{name: "match list form numeric right side", qType: TypeMatchColumn, content: `{"pairs":[{"left":"a","right":"1"},{"left":"b","right":"2"}]}`, answer: `[{"left":"a","right":1},{"left":"b","right":3}]`, maxMarks: 4, gradable: true, marks: 2, reason: ReasonPartial},
		{name: "match none", qType: TypeMatchColumn, content: `{"pairs":[{"left":"a","right":"1"}]}`, answer: `{"a":"2"}`, maxMarks: 2, gradable: true, reason: ReasonIncorrect},
		{name: "match unparseable answer", qType: TypeMatchColumn, content: `{"pairs":[{"left":"a","right":"1"}]}`, answer: `42`, maxMarks: 2, gradable: true, reason: ReasonIncorrect},

		{name: "essay always manual", qType: TypeEssay, content: `{"rubric":"structure"}`, answer: `"long text"`, maxMarks: 10, reason: ReasonManual},
		{name: "short answer without content", qType: TypeShortAnswer, content: ``, answer: `"x"`, maxMarks: 2, reason: ReasonManual},
		{name: "unknown type manual", qType: "diagram", content: `{}`, answer: `"x"`, maxMarks: 2, reason: ReasonManual},
		{name: "invalid json content", qType: TypeSingleChoice, content: `{"correctOptionIndex":`, answer: `1`, maxMarks: 2, reason: ReasonMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Grade(tc.qType, []byte(tc.answer), []byte(tc.content), tc.maxMarks)
			assert.Equal(t, tc.gradable, got.Gradable)
			assert.Equal(t, tc.isCorrect, got.IsCorrect)
			assert.InDelta(t, tc.marks, got.MarksAwarded, 1e-9)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}

func TestGradeIsDeterministic(t *testing.T) {
	content := []byte(`{"pairs":[{"left":"x","right":"1"},{"left":"y","right":"2"},{"left":"z","right":"3"}]}`)
	answer := []byte(`{"x":"1","y":"3","z":"3"}`)
	first := Grade(TypeMatchColumn, answer, content, 7)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Grade(TypeMatchColumn, answer, content, 7))
	}
}

func TestIsObjective(t *testing.T) {
	for _, typ := range []string{TypeSingleChoice, TypeMultipleChoice, TypeTrueFalse, TypeFillBlank, TypeNumerical, TypeMatchColumn} {
		assert.True(t, IsObjective(typ), typ)
		assert.False(t, IsManual(typ), typ)
	}
	for _, typ := range []string{TypeShortAnswer, TypeLongAnswer, TypeEssay, TypeCreativeWriting, "drawing"} {
		assert.False(t, IsObjective(typ), typ)
		assert.True(t, IsManual(typ), typ)
	}
}
