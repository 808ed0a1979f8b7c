// Package scheduler drives time-based lifecycle transitions through delayed
// jobs. Jobs carry only identifiers; handlers reload state and re-check it
// before mutating, so every kind is safe under duplicate or late delivery.
package scheduler

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	KindGoLive         = "test:go-live"
	KindAutoComplete   = "test:auto-complete"
	KindAutoSubmit     = "attempt:auto-submit"
	KindSectionTimeout = "attempt:section-timeout"
)

// Kinds lists every job kind, each of which gets its own worker pool.
var Kinds = []string{KindGoLive, KindAutoComplete, KindAutoSubmit, KindSectionTimeout}

// Job is one delayed unit of work. ID is deterministic per target so the
// same transition is never queued twice.
type Job struct {
	Kind    string
	ID      string
	Payload []byte
	RunAt   time.Time
}

type TestPayload struct {
	TestID uint      `json:"testId"`
	At     time.Time `json:"at"`
}

type AttemptPayload struct {
	AttemptID uint `json:"attemptId"`
}

type SectionPayload struct {
	AttemptID    uint `json:"attemptId"`
	SectionIndex int  `json:"sectionIndex"`
}

// Delay is max(0, target-now).
func Delay(now, target time.Time) time.Duration {
	d := target.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func NewGoLiveJob(testID uint, startTime time.Time) Job {
	return testJob(KindGoLive, "go-live", testID, startTime)
}

func NewAutoCompleteJob(testID uint, endTime time.Time) Job {
	return testJob(KindAutoComplete, "auto-complete", testID, endTime)
}

// test jobs include the target time so a rescheduled test gets a fresh job
func testJob(kind, prefix string, testID uint, at time.Time) Job {
	payload, _ := json.Marshal(TestPayload{TestID: testID, At: at})
	return Job{
		Kind:    kind,
		ID:      fmt.Sprintf("%s:%d:%d", prefix, testID, at.Unix()),
		Payload: payload,
		RunAt:   at,
	}
}

func NewAutoSubmitJob(attemptID uint, deadline time.Time) Job {
	payload, _ := json.Marshal(AttemptPayload{AttemptID: attemptID})
	return Job{
		Kind:    KindAutoSubmit,
		ID:      fmt.Sprintf("auto-submit:%d", attemptID),
		Payload: payload,
		RunAt:   deadline,
	}
}

func NewSectionTimeoutJob(attemptID uint, index int, at time.Time) Job {
	payload, _ := json.Marshal(SectionPayload{AttemptID: attemptID, SectionIndex: index})
	return Job{
		Kind:    KindSectionTimeout,
		ID:      fmt.Sprintf("section-timeout:%d:%d", attemptID, index),
		Payload: payload,
		RunAt:   at,
	}
}
