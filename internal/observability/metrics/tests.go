// Package metrics defines the standardised metric emission points for the
// test lifecycle.
package metrics

import (
	"time"

	"github.com/huguei/zonemaster-backend/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultCreated = "created"
	ResultReused  = "reused"
	ResultError   = "error"
)

// SubmissionMetric captures one test submission for metric emission.
type SubmissionMetric struct {
	Class  string
	Result string
	Batch  bool
}

// EmitSubmission emits the test.submitted counter. A nil sink discards.
func EmitSubmission(sink statsd.Sink, in SubmissionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"class":  in.Class,
		"result": in.Result,
	}
	if in.Batch {
		tags["batch"] = "true"
	}
	sink.Count("test.submitted", 1, tags)
}

// RunMetric captures one completed test run for metric emission.
type RunMetric struct {
	State    string
	Duration time.Duration
}

// EmitRun emits the test.finished counter and run duration timing.
func EmitRun(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"state": in.State}
	sink.Count("test.finished", 1, tags)
	if in.Duration > 0 {
		sink.Timing("test.duration", in.Duration, tags)
	}
}

// EmitReaped emits the count of abandoned tests failed by the janitor.
func EmitReaped(sink statsd.Sink, count int64) {
	if sink == nil || count <= 0 {
		return
	}
	sink.Count("test.reaped", count, nil)
}
