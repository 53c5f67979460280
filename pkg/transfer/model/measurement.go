package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/m-lab/oosp/pkg/transfer/spec"
)

// Observation is a raw progress report from a transfer session.
type Observation struct {
	// Elapsed is the time elapsed since the session started.
	Elapsed time.Duration
	// Transferred is the number of bytes moved so far.
	Transferred int64
	// Total is the number of bytes expected. A negative value means the
	// total is unknown.
	Total int64
}

// Sample is a progress line emitted by the bandwidth sampler.
type Sample struct {
	Direction spec.Direction

	// Transferred is the number of bytes moved when the sample was taken.
	Transferred int64
	// Total is the expected number of bytes, or a negative value when the
	// server did not report one.
	Total int64
	// Percent is the completion percentage. Only meaningful when Total > 0.
	Percent int64

	// HasRate is false when no byte moved since the previous sample. In that
	// case the rate fields are not rendered.
	HasRate bool
	// Mbps is the rate since the previous sample, in megabits per second.
	Mbps float64
	// AverageMbps is the rate since the start of the session.
	AverageMbps float64

	// Elapsed is the time since the start of the session.
	Elapsed time.Duration
	// Final is true for the sample that completes the session.
	Final bool
}

// String renders the sample in the format used on the progress line, without
// any line terminator.
func (s Sample) String() string {
	var b strings.Builder
	b.WriteString(s.Direction.Label())
	if s.Total > 0 {
		fmt.Fprintf(&b, ": %d of %d, done: %d%%", s.Transferred, s.Total, s.Percent)
	} else {
		fmt.Fprintf(&b, ": %d", s.Transferred)
	}
	if s.HasRate {
		fmt.Fprintf(&b, ", speed: %.2f Mbps, average: %.2f Mbps", s.Mbps, s.AverageMbps)
	}
	return b.String()
}

// Result is the outcome of a single transfer session.
type Result struct {
	Direction spec.Direction
	// URL is the URL the session targeted.
	URL string
	// Bytes is the number of application-level bytes transferred.
	Bytes int64
	// Total is the number of bytes expected (negative if unknown).
	Total int64
	// Elapsed is the duration of the session.
	Elapsed time.Duration
	// Completed is true when the whole payload was transferred and the
	// server answered with a success status.
	Completed bool
}

// AverageMbps returns the average rate of the session in megabits per second.
func (r Result) AverageMbps() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds() * 8 / 1e6
}
