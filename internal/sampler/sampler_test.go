package sampler

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/m-lab/oosp/pkg/transfer/model"
	"github.com/m-lab/oosp/pkg/transfer/spec"
)

func obs(elapsed time.Duration, transferred, total int64) model.Observation {
	return model.Observation{Elapsed: elapsed, Transferred: transferred, Total: total}
}

func TestStep(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		obs      model.Observation
		wantEmit bool
	}{
		{
			name:     "within the interval",
			state:    State{Direction: spec.DirectionDownload},
			obs:      obs(400*time.Millisecond, 100, 1000),
			wantEmit: false,
		},
		{
			name:     "exactly at the interval",
			state:    State{Direction: spec.DirectionDownload},
			obs:      obs(spec.SampleInterval, 100, 1000),
			wantEmit: false,
		},
		{
			name:     "after the interval",
			state:    State{Direction: spec.DirectionDownload},
			obs:      obs(600*time.Millisecond, 100, 1000),
			wantEmit: true,
		},
		{
			name:     "after the interval, nothing moved",
			state:    State{Direction: spec.DirectionDownload},
			obs:      obs(2*time.Second, 0, 1000),
			wantEmit: false,
		},
		{
			name:     "final sample within the interval",
			state:    State{Direction: spec.DirectionUpload, LastSample: time.Second},
			obs:      obs(1100*time.Millisecond, 1000, 1000),
			wantEmit: true,
		},
		{
			name:     "zero total",
			state:    State{Direction: spec.DirectionDownload},
			obs:      obs(time.Second, 0, 0),
			wantEmit: false,
		},
		{
			name:     "completed session",
			state:    State{Direction: spec.DirectionDownload, Completed: true},
			obs:      obs(5*time.Second, 1000, 1000),
			wantEmit: false,
		},
		{
			name:     "unknown total",
			state:    State{Direction: spec.DirectionDownload},
			obs:      obs(time.Second, 4096, -1),
			wantEmit: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := Step(tt.state, tt.obs)
			if (got != nil) != tt.wantEmit {
				t.Errorf("Step() emitted = %v, want %v", got != nil, tt.wantEmit)
			}
		})
	}
}

func TestStep_Rates(t *testing.T) {
	s := State{Direction: spec.DirectionDownload}
	s, got := Step(s, obs(time.Second, 125000, 1000000))
	want := &model.Sample{
		Direction:   spec.DirectionDownload,
		Transferred: 125000,
		Total:       1000000,
		Percent:     12,
		HasRate:     true,
		Mbps:        1,
		AverageMbps: 1,
		Elapsed:     time.Second,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Step() mismatch (-want +got):\n%s", diff)
	}
	if s.LastSample != time.Second || s.LastBytes != 125000 {
		t.Errorf("Step() did not record the sample: %+v", s)
	}

	// 375000 bytes in the next second: 3 Mbps instantaneous, 2 Mbps average.
	s, got = Step(s, obs(2*time.Second, 500000, 1000000))
	if got == nil {
		t.Fatalf("Step() did not emit")
	}
	if got.Mbps != 3 || got.AverageMbps != 2 {
		t.Errorf("Step() rates = %f/%f, want 3/2", got.Mbps, got.AverageMbps)
	}
	if got.String() != "DL: 500000 of 1000000, done: 50%, speed: 3.00 Mbps, average: 2.00 Mbps" {
		t.Errorf("unexpected line: %q", got.String())
	}
	if s.Completed {
		t.Errorf("session completed too early")
	}
}

func TestStep_NoRateWithoutProgress(t *testing.T) {
	s := State{Direction: spec.DirectionUpload, LastSample: time.Second, LastBytes: 1000}
	// Final sample with no new bytes since the previous sample: rates are
	// omitted from the line.
	_, got := Step(s, obs(1200*time.Millisecond, 1000, 1000))
	if got == nil {
		t.Fatalf("Step() did not emit the final sample")
	}
	if got.HasRate {
		t.Errorf("Step() reported a rate with no bytes moved")
	}
	if got.String() != "UL: 1000 of 1000, done: 100%" {
		t.Errorf("unexpected line: %q", got.String())
	}
}

func TestStep_Idempotence(t *testing.T) {
	s := State{Direction: spec.DirectionDownload}
	s, first := Step(s, obs(600*time.Millisecond, 300, 1000))
	if first == nil {
		t.Fatalf("first observation did not emit")
	}
	s, second := Step(s, obs(700*time.Millisecond, 300, 1000))
	if second != nil {
		t.Errorf("repeated observation within the interval emitted %v", second)
	}
	s, final := Step(s, obs(800*time.Millisecond, 1000, 1000))
	if final == nil || !final.Final {
		t.Fatalf("final observation did not emit a final sample")
	}
	if !s.Completed {
		t.Fatalf("final sample did not complete the session")
	}
	for _, o := range []model.Observation{
		obs(900*time.Millisecond, 1000, 1000),
		obs(5*time.Second, 1000, 1000),
		obs(6*time.Second, 2000, 1000),
	} {
		var again *model.Sample
		s, again = Step(s, o)
		if again != nil {
			t.Errorf("observation %+v emitted after completion", o)
		}
	}
}

func Test_percent(t *testing.T) {
	tests := []struct {
		transferred, total, want int64
	}{
		{500, 1000, 50},
		{1000, 1000, 100},
		// total/100 truncates to 1: the division order is kept as is.
		{150, 199, 150},
		{199, 199, 199},
		{333, 1050, 33},
		{7, 10, 70},
		{10, 10, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.transferred, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.transferred, tt.total, got, tt.want)
		}
	}
}

func TestSampler_Observe(t *testing.T) {
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }
	var samples []model.Sample
	s := NewWithClock(spec.DirectionUpload, func(m model.Sample) {
		samples = append(samples, m)
	}, now)

	clock = clock.Add(100 * time.Millisecond)
	s.Observe(100, 1000)
	clock = clock.Add(time.Second)
	s.Observe(500, 1000)
	clock = clock.Add(100 * time.Millisecond)
	s.Observe(1000, 1000)
	s.Observe(1000, 1000)

	if len(samples) != 2 {
		t.Fatalf("Observe() emitted %d samples, want 2", len(samples))
	}
	if !samples[1].Final || !s.Completed() {
		t.Errorf("last sample is not final")
	}
	if samples[1].Elapsed != 1200*time.Millisecond {
		t.Errorf("wrong elapsed time: %v", samples[1].Elapsed)
	}
}
