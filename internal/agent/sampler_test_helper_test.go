package agent

import (
	"context"
	"time"

	"github.com/wkleiminger/pylon-agent/internal/measurement"
	"github.com/wkleiminger/pylon-agent/internal/sampler"
)

// newTestSampler builds a sampler driven by a trivial measurement source,
// wired to the same onTick the real agent uses, so tests can exercise
// queueing/uploading without a real meter or FIFO.
func newTestSampler(a *Agent, interval time.Duration) *sampler.Sampler {
	measure := func(ctx context.Context) (measurement.Measurement, error) {
		return measurement.New(), nil
	}
	return sampler.New(interval, measure, a.onTick)
}
