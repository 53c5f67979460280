// Package sampler turns raw transfer progress into rate samples at a bounded
// cadence.
package sampler

import (
	"sync"
	"time"

	"github.com/m-lab/oosp/pkg/transfer/model"
	"github.com/m-lab/oosp/pkg/transfer/spec"
)

// State is the per-session progress state.
type State struct {
	Direction spec.Direction
	// LastSample is the session-relative time of the last emitted sample.
	LastSample time.Duration
	// LastBytes is the byte count at the last emitted sample.
	LastBytes int64
	// Completed is set once the final sample has been emitted. It is never
	// reset.
	Completed bool
}

// Step applies one observation to the state. It returns the new state and,
// when the observation warrants output, the sample to emit.
func Step(s State, o model.Observation) (State, *model.Sample) {
	if o.Total == 0 || s.Completed {
		return s, nil
	}
	sinceLast := o.Elapsed - s.LastSample
	final := o.Total > 0 && o.Transferred == o.Total
	if !final && !(sinceLast > spec.SampleInterval && o.Transferred > 0) {
		return s, nil
	}

	sample := &model.Sample{
		Direction:   s.Direction,
		Transferred: o.Transferred,
		Total:       o.Total,
		Percent:     percent(o.Transferred, o.Total),
		Elapsed:     o.Elapsed,
		Final:       final,
	}
	delta := o.Transferred - s.LastBytes
	if delta != 0 && sinceLast > 0 && o.Elapsed > 0 {
		sample.HasRate = true
		sample.Mbps = ((float64(delta) / sinceLast.Seconds()) * 8) / 1e6
		sample.AverageMbps = ((float64(o.Transferred) / o.Elapsed.Seconds()) * 8) / 1e6
	}

	s.LastSample = o.Elapsed
	s.LastBytes = o.Transferred
	if final {
		s.Completed = true
	}
	return s, sample
}

// percent divides by total/100 first, which can yield values slightly off (or
// above 100) for totals that are not a multiple of 100. Totals under 100
// would divide by zero that way and use the plain ratio instead.
func percent(transferred, total int64) int64 {
	if total <= 0 {
		return 0
	}
	if total < 100 {
		return transferred * 100 / total
	}
	return transferred / (total / 100)
}

// Sampler is a State bound to a clock and an output function. It implements
// transfer.Observer.
type Sampler struct {
	mu    sync.Mutex
	state State
	start time.Time
	now   func() time.Time
	emit  func(model.Sample)
}

// New returns a Sampler for the given direction. The session clock starts
// now. emit is called synchronously for every sample.
func New(direction spec.Direction, emit func(model.Sample)) *Sampler {
	return NewWithClock(direction, emit, time.Now)
}

// NewWithClock is like New but reads the time from now.
func NewWithClock(direction spec.Direction, emit func(model.Sample), now func() time.Time) *Sampler {
	return &Sampler{
		state: State{Direction: direction},
		start: now(),
		now:   now,
		emit:  emit,
	}
}

// Observe feeds a progress report to the sampler. It is safe to call from
// the transport's goroutines; calls are serialized.
func (s *Sampler) Observe(transferred, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sample *model.Sample
	s.state, sample = Step(s.state, model.Observation{
		Elapsed:     s.now().Sub(s.start),
		Transferred: transferred,
		Total:       total,
	})
	if sample != nil && s.emit != nil {
		s.emit(*sample)
	}
}

// Completed reports whether the final sample has been emitted.
func (s *Sampler) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Completed
}
