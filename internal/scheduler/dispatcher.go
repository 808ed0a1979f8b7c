package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Dispatcher decodes job payloads and routes them to the Lifecycle.
type Dispatcher struct {
	lifecycle Lifecycle
	timeout   time.Duration
}

func NewDispatcher(lc Lifecycle, timeout time.Duration) *Dispatcher {
	return &Dispatcher{lifecycle: lc, timeout: timeout}
}

// errSkip marks a payload that can never succeed; it is not retried.
type errSkip struct{ err error }

func (e errSkip) Error() string { return e.err.Error() }
func (e errSkip) Unwrap() error { return e.err }

func (d *Dispatcher) Handle(ctx context.Context, kind string, payload []byte) (err error) {
	started := time.Now()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "job "+kind, attribute.String("job.kind", kind))
	defer func() {
		tracing.EndSpan(span, err)
		result := "ok"
		if err != nil {
			result = "error"
		}
		monitoring.ObserveJob(kind, result, started)
	}()

	err = d.dispatch(ctx, kind, payload)
	if err != nil {
		logger.Log.Warn("Lifecycle job failed",
			zap.String("kind", kind),
			zap.ByteString("payload", payload),
			zap.Error(err),
		)
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, kind string, payload []byte) error {
	switch kind {
	case KindGoLive, KindAutoComplete:
		var p TestPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.TestID == 0 {
			return errSkip{fmt.Errorf("bad %s payload: %s", kind, payload)}
		}
		if kind == KindGoLive {
			return d.lifecycle.GoLive(ctx, p.TestID)
		}
		return d.lifecycle.AutoComplete(ctx, p.TestID)

	case KindAutoSubmit:
		var p AttemptPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.AttemptID == 0 {
			return errSkip{fmt.Errorf("bad %s payload: %s", kind, payload)}
		}
		return d.lifecycle.AutoSubmitAttempt(ctx, p.AttemptID)

	case KindSectionTimeout:
		var p SectionPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.AttemptID == 0 {
			return errSkip{fmt.Errorf("bad %s payload: %s", kind, payload)}
		}
		return d.lifecycle.ExpireSection(ctx, p.AttemptID, p.SectionIndex)
	}
	return errSkip{fmt.Errorf("unknown job kind %q", kind)}
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	var s errSkip
	return errors.As(err, &s)
}
