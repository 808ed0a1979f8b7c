package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	ReasonCorrect    = "correct"
	ReasonIncorrect  = "incorrect"
	ReasonPartial    = "partial"
	ReasonUnanswered = "unanswered"
	ReasonManual     = "manual"
	ReasonMalformed  = "malformed_content"
)

// numerical comparisons absorb float noise such as 10.4-10 = 0.40000000000000036
const floatEpsilon = 1e-9

// Outcome of grading one answer. Gradable=false means the answer must be
// marked by a teacher; IsCorrect and MarksAwarded are then meaningless.
type Outcome struct {
	Gradable     bool    `json:"gradable"`
	IsCorrect    bool    `json:"isCorrect"`
	MarksAwarded float64 `json:"marksAwarded"`
	Reason       string  `json:"reason"`
}

func ungradable(reason string) Outcome {
	return Outcome{Reason: reason}
}

func award(correct bool, maxMarks float64) Outcome {
	if correct {
		return Outcome{Gradable: true, IsCorrect: true, MarksAwarded: maxMarks, Reason: ReasonCorrect}
	}
	return Outcome{Gradable: true, Reason: ReasonIncorrect}
}

// Grade scores a single answer against the stored question content. It has no
// side effects: the same inputs always give the same Outcome. Malformed content
// degrades to an ungradable outcome instead of failing.
func Grade(qType string, answer, content []byte, maxMarks float64) Outcome {
	key, err := Decode(qType, content)
	if err != nil {
		if errors.Is(err, ErrUnsupportedType) {
			return ungradable(ReasonManual)
		}
		return ungradable(ReasonMalformed)
	}
	return GradeKey(key, answer, maxMarks)
}

// GradeKey grades against an already decoded key.
func GradeKey(key Content, answer []byte, maxMarks float64) Outcome {
	if _, ok := key.(SubjectiveKey); ok {
		return ungradable(ReasonManual)
	}
	if maxMarks < 0 {
		maxMarks = 0
	}
	if isNull(answer) {
		return Outcome{Gradable: true, Reason: ReasonUnanswered}
	}

	switch k := key.(type) {
	case SingleChoiceKey:
		idx, ok := coerceIndex(answer)
		return award(ok && idx == k.CorrectIndex, maxMarks)

	case MultipleChoiceKey:
		var picked []int
		if err := json.Unmarshal(answer, &picked); err != nil {
			return award(false, maxMarks)
		}
		return award(sameIndexSet(picked, k.CorrectIndices), maxMarks)

	case TrueFalseKey:
		b, ok := coerceBool(answer)
		return award(ok && b == k.Correct, maxMarks)

	case FillBlankKey:
		s, ok := coerceString(answer)
		return award(ok && fillMatches(s, k), maxMarks)

	case NumericalKey:
		f, ok := coerceFloat(answer)
		return award(ok && math.Abs(f-k.Correct) <= k.Tolerance+floatEpsilon, maxMarks)

	case MatchColumnKey:
		return gradeMatch(k, answer, maxMarks)
	}
	return ungradable(ReasonManual)
}

func gradeMatch(k MatchColumnKey, answer []byte, maxMarks float64) Outcome {
	submitted, ok := parsePairs(answer)
	if !ok {
		return award(false, maxMarks)
	}
	correct := 0
	for _, p := range k.Pairs {
		if got, ok := submitted[normalize(p.Left)]; ok && got == normalize(p.Right) {
			correct++
		}
	}
	total := len(k.Pairs)
	out := Outcome{
		Gradable:     true,
		IsCorrect:    correct == total,
		MarksAwarded: Round2(float64(correct) / float64(total) * maxMarks),
	}
	switch {
	case out.IsCorrect:
		out.Reason = ReasonCorrect
	case correct > 0:
		out.Reason = ReasonPartial
	default:
		out.Reason = ReasonIncorrect
	}
	return out
}

// parsePairs accepts {"left":"right", ...} or [{"left":..,"right":..}, ...].
// Right-hand sides may be strings or numbers.
func parsePairs(answer []byte) (map[string]string, bool) {
	out := map[string]string{}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(answer, &asMap); err == nil {
		for l, raw := range asMap {
			if r, ok := coerceString(raw); ok {
				out[normalize(l)] = normalize(r)
			}
		}
		return out, true
	}
	var asList []struct {
		Left  string          `json:"left"`
		Right json.RawMessage `json:"right"`
	}
	if err := json.Unmarshal(answer, &asList); err == nil {
		for _, p := range asList {
			if r, ok := coerceString(p.Right); ok {
				out[normalize(p.Left)] = normalize(r)
			}
		}
		return out, true
	}
	return nil, false
}

func fillMatches(s string, k FillBlankKey) bool {
	got := normalize(s)
	if got == "" {
		return false
	}
	if k.Correct != "" && got == normalize(k.Correct) {
		return true
	}
	for _, a := range k.Accepted {
		if got == normalize(a) {
			return true
		}
	}
	return false
}

func sameIndexSet(picked, correct []int) bool {
	want := make(map[int]struct{}, len(correct))
	for _, c := range correct {
		want[c] = struct{}{}
	}
	got := make(map[int]struct{}, len(picked))
	for _, p := range picked {
		got[p] = struct{}{}
	}
	if len(got) != len(want) {
		return false
	}
	for p := range got {
		if _, ok := want[p]; !ok {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isNull(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func coerceIndex(raw []byte) (int, bool) {
	f, ok := coerceFloat(raw)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func coerceFloat(raw []byte) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceString(raw []byte) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func coerceBool(raw []byte) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, false
	}
	switch normalize(s) {
	case "true", "t", "yes", "1":
		return true, true
	case "false", "f", "no", "0":
		return false, true
	}
	return false, false
}
