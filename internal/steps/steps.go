// Package steps records multi-step browser procedures as an ordered list of
// named outcomes so partial failures stay visible after the fact.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Outcome of a single step.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
	Skip    Outcome = "skip"
)

// ErrSkip marks a step as skipped when returned (possibly wrapped) from a step func.
var ErrSkip = errors.New("step skipped")

// Step is one recorded step.
type Step struct {
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report collects steps for one procedure. It is not safe for concurrent use;
// a procedure runs its steps sequentially.
type Report struct {
	Procedure string `json:"procedure"`
	Steps     []Step `json:"steps"`
	now       func() time.Time
}

// NewReport starts a report for the named procedure.
func NewReport(procedure string) *Report {
	return &Report{Procedure: procedure, now: time.Now}
}

// Run executes fn as the named step and records its outcome. The error from
// fn is returned unchanged, except that ErrSkip yields nil.
func (r *Report) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := r.now()
	err := fn(ctx)
	elapsed := r.now().Sub(start)
	switch {
	case err == nil:
		r.Steps = append(r.Steps, Step{Name: name, Outcome: Success, Duration: elapsed})
	case errors.Is(err, ErrSkip):
		r.Steps = append(r.Steps, Step{Name: name, Outcome: Skip, Message: skipReason(err), Duration: elapsed})
		return nil
	default:
		r.Steps = append(r.Steps, Step{Name: name, Outcome: Failure, Message: err.Error(), Duration: elapsed})
	}
	return err
}

// Skipf records a step that was not attempted.
func (r *Report) Skipf(name, format string, args ...interface{}) {
	r.Steps = append(r.Steps, Step{Name: name, Outcome: Skip, Message: fmt.Sprintf(format, args...)})
}

// Fail records a failed step without running anything.
func (r *Report) Fail(name string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Steps = append(r.Steps, Step{Name: name, Outcome: Failure, Message: msg})
}

// Outcome returns the outcome of the last step with the given name.
func (r *Report) Outcome(name string) (Outcome, bool) {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].Name == name {
			return r.Steps[i].Outcome, true
		}
	}
	return "", false
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Outcome == Failure {
			return true
		}
	}
	return false
}

// Count returns how many steps ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// String renders "name=outcome" pairs in order.
func (r *Report) String() string {
	parts := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		parts = append(parts, s.Name+"="+string(s.Outcome))
	}
	return r.Procedure + "[" + strings.Join(parts, " ") + "]"
}

// Log writes the report at debug level, or warn if any step failed.
func (r *Report) Log(logger *zap.Logger, fields ...zap.Field) {
	fields = append(fields,
		zap.String("procedure", r.Procedure),
		zap.String("steps", r.String()),
		zap.Int("failed", r.Count(Failure)),
		zap.Int("skipped", r.Count(Skip)),
	)
	if r.Failed() {
		logger.Warn("Procedure finished with failed steps.", fields...)
		return
	}
	logger.Debug("Procedure finished.", fields...)
}

func skipReason(err error) string {
	msg := err.Error()
	if msg == ErrSkip.Error() {
		return ""
	}
	return strings.TrimSuffix(msg, ": "+ErrSkip.Error())
}
