// Package agent wires together sampling, queuing and uploading into the
// agent's main run loop: it is the only part of the codebase that knows
// about all the other components at once.
package agent

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wkleiminger/pylon-agent/internal/config"
	"github.com/wkleiminger/pylon-agent/internal/logging"
	"github.com/wkleiminger/pylon-agent/internal/measurement"
	"github.com/wkleiminger/pylon-agent/internal/obsmetrics"
	"github.com/wkleiminger/pylon-agent/internal/pipesampler"
	"github.com/wkleiminger/pylon-agent/internal/queue"
	"github.com/wkleiminger/pylon-agent/internal/sampler"
	"github.com/wkleiminger/pylon-agent/internal/selfmetrics"
	"github.com/wkleiminger/pylon-agent/internal/smlmeter"
	"github.com/wkleiminger/pylon-agent/internal/uploader"
)

// RunID is a fresh identifier minted once per process and logged at
// startup, without touching the wire JSON schema. It is not attached to
// spans or metrics.
var RunID = uuid.New().String()

// Agent owns every long-lived component this binary needs: the
// measurement source, the upload queue and pool, and the self-metrics
// sampler, wired together per a parsed Config.
type Agent struct {
	cfg    config.Config
	stdout io.Writer

	queue    *queue.BoundedQueue[measurement.Envelope]
	sampler  *sampler.Sampler
	uploader *uploader.Pool
	self     *selfmetrics.Sampler

	numMeasurements atomic.Int64
}

// New builds an Agent from cfg, writing stdout output to out.
func New(ctx context.Context, cfg config.Config, out io.Writer) (*Agent, error) {
	a := &Agent{cfg: cfg, stdout: out}

	var measure sampler.MeasureFunc
	if cfg.Onboard {
		measure = pipesampler.New(cfg.Address).Measure
	} else {
		client := smlmeter.NewClient(cfg.Address, cfg.Port, config.DefaultDiscoveryGroup, config.DefaultDiscoveryPort, config.DefaultDiscoveryWaitMs*time.Millisecond)
		measure = client.Measure
	}

	if cfg.URL != "" {
		a.queue = queue.New[measurement.Envelope](cfg.BufferSize)
		a.uploader = uploader.New(a.queue, cfg.URL, cfg.Token, cfg.UploadThreads, cfg.IntervalMs)
		obsmetrics.Global().ObserveQueueWith(
			func() int64 { return int64(a.queue.Len()) },
			func() int64 { return int64(a.queue.Len() * 100 / a.queue.Capacity()) },
		)
	}

	if s, err := selfmetrics.New(); err == nil {
		a.self = s
	}

	intervalMs := cfg.IntervalMs
	interval := time.Duration(intervalMs) * time.Millisecond
	if intervalMs < 0 {
		interval = -1
	}
	a.sampler = sampler.New(interval, measure, a.onTick)

	if !cfg.Quiet && !cfg.SmartOutputOnly {
		a.printHeader()
	}

	return a, nil
}

// printHeader writes the gnuplot-friendly tab-separated column header.
func (a *Agent) printHeader() {
	fmt.Fprint(a.stdout, "#")
	for id := measurement.VarID(0); id < measurement.NumVariables; id++ {
		sep := byte('\t')
		if id == measurement.NumVariables-1 {
			sep = '\n'
		}
		fmt.Fprintf(a.stdout, "%s%c", id.Name(), sep)
	}
}

// Run starts the sampler and the upload pool (if configured) and blocks
// until the sampler stops, either because the configured measurement
// count was reached or ctx was canceled.
func (a *Agent) Run(ctx context.Context) {
	if a.cfg.Count == 0 {
		return
	}

	if a.uploader != nil {
		a.uploader.Start(ctx)
	}

	a.sampler.Start(ctx)
	a.sampler.Join()

	if a.uploader != nil {
		a.uploader.Stop()
		a.queue.Close()
		a.uploader.Wait()
	}
}

// Stop requests the sampler to stop after its current tick.
func (a *Agent) Stop() {
	a.sampler.Stop()
}

// onTick is invoked once per measurement by the sampler.
func (a *Agent) onTick(m measurement.Measurement, err error, slipped bool) {
	ctx := context.Background()
	metrics := obsmetrics.Global()

	if slipped {
		metrics.RecordSampleSlip(ctx)
		logging.Infof("sampling cadence slipped past the %d ms interval", a.cfg.IntervalMs)
	}

	if err != nil {
		logging.Warnf("failed to perform measurement: %v", err)
		return
	}

	a.printMeasurement(m)

	if a.queue != nil {
		token := a.cfg.Token
		if token == "" {
			token = a.cfg.Address
		}
		envelope := m.ToEnvelope(token)
		ok, ev := a.queue.Enqueue(envelope)
		if !ok {
			logging.Warnf("upload queue full, dropping a measurement")
		}
		if ev != nil {
			direction := "fell below"
			if ev.Rising {
				direction = "crossed"
			}
			logging.Infof("upload queue %s %.0f%% capacity", direction, ev.Threshold*100)
		}
	}

	n := a.numMeasurements.Add(1)
	if n%60 == 0 {
		depth := 0
		if a.queue != nil {
			depth = a.queue.Len()
		}
		if a.self != nil {
			if snap, err := a.self.Sample(ctx); err == nil {
				logging.Infof("measurements: %d, buffered: %d, rss: %d bytes, cpu: %.1f%%", n, depth, snap.RSSBytes, snap.CPUPercent)
			} else {
				logging.Infof("measurements: %d, buffered: %d", n, depth)
			}
		} else {
			logging.Infof("measurements: %d, buffered: %d", n, depth)
		}
	}

	if a.cfg.Count > 0 && n >= int64(a.cfg.Count) {
		a.sampler.Stop()
	}
}

// printMeasurement writes one line of stdout output in whichever of the
// two output modes was configured.
func (a *Agent) printMeasurement(m measurement.Measurement) {
	if a.cfg.Quiet {
		return
	}

	if a.cfg.SmartOutputOnly {
		for id := measurement.VarID(0); id < measurement.NumVariables; id++ {
			v := m.Values[id]
			if v != 0 && v != -1 {
				fmt.Fprintf(a.stdout, "%s: %f; ", id.Name(), v)
			}
		}
		fmt.Fprintln(a.stdout)
		return
	}

	for id := measurement.VarID(0); id < measurement.NumVariables; id++ {
		sep := byte('\t')
		if id == measurement.NumVariables-1 {
			sep = '\n'
		}
		fmt.Fprintf(a.stdout, "%f%c", m.Values[id], sep)
	}
}

// QueueDepth reports the current upload queue depth, or 0 if uploading
// is disabled.
func (a *Agent) QueueDepth() int {
	if a.queue == nil {
		return 0
	}
	return a.queue.Len()
}
