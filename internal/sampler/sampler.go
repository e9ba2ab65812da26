// Package sampler runs a measurement source on a cadence and hands each
// result to a callback. It is deliberately generic: the networked SML
// client and the onboard pipe reader both plug into the same engine by
// supplying a MeasureFunc, rather than each owning their own thread and
// timing loop.
package sampler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wkleiminger/pylon-agent/internal/measurement"
	"github.com/wkleiminger/pylon-agent/internal/timeutil"
)

// MeasureFunc samples one reading from whatever source the caller wired in.
type MeasureFunc func(ctx context.Context) (measurement.Measurement, error)

// TickFunc is invoked once per completed sample attempt, whether it
// succeeded or not. slipped reports whether the previous tick's work
// already consumed the whole interval, delaying this one.
type TickFunc func(m measurement.Measurement, err error, slipped bool)

// Sampler owns a single measurement source and the goroutine driving it.
// Shutdown is cooperative: Stop flips a flag the run loop checks between
// ticks rather than cancelling a context, so an in-flight measurement
// always finishes cleanly instead of being torn down mid-read.
type Sampler struct {
	interval time.Duration
	measure  MeasureFunc
	onTick   TickFunc

	running atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// New creates a Sampler. interval is the target time between the start of
// consecutive ticks; a negative interval means "as fast as possible" (no
// pacing barrier at all), matching the onboard pipe sampler's mode.
func New(interval time.Duration, measure MeasureFunc, onTick TickFunc) *Sampler {
	return &Sampler{
		interval: interval,
		measure:  measure,
		onTick:   onTick,
		done:     make(chan struct{}),
	}
}

// Start launches the sampling loop in its own goroutine. It is an error to
// call Start more than once on the same Sampler.
func (s *Sampler) Start(ctx context.Context) {
	s.running.Store(true)
	go s.run(ctx)
}

// run is the sampler's goroutine body: pace, measure, report, repeat until
// told to stop.
func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)

	var barrier timeutil.Barrier
	for s.running.Load() {
		var slipped bool
		if s.interval >= 0 {
			_, sl, err := barrier.Wait(ctx, s.interval)
			if err != nil {
				return
			}
			slipped = sl
		}

		if !s.running.Load() {
			return
		}

		m, err := s.measure(ctx)
		if s.onTick != nil {
			s.onTick(m, err, slipped)
		}
	}
}

// Stop requests the sampling loop to exit after its current tick. It does
// not block; call Join to wait for the loop to actually finish.
func (s *Sampler) Stop() {
	s.running.Store(false)
}

// Join blocks until the sampling loop has exited, either because Stop was
// called or the context passed to Start was cancelled.
func (s *Sampler) Join() {
	<-s.done
}

// Running reports whether the sampler has not yet been stopped.
func (s *Sampler) Running() bool {
	return s.running.Load()
}
