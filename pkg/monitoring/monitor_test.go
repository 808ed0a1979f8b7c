package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveJob(t *testing.T) {
	before := testutil.ToFloat64(JobsProcessed.WithLabelValues("go-live", "ok"))
	ObserveJob("go-live", "ok", time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(JobsProcessed.WithLabelValues("go-live", "ok")))
}

func TestObserveTransition(t *testing.T) {
	c := Transitions.WithLabelValues("attempt", "in_progress", "submitted")
	before := testutil.ToFloat64(c)
	ObserveTransition("attempt", "in_progress", "submitted")
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
