// Package pipesampler reads measurements from the onboard sensor board's
// FIFO instead of polling a networked meter over SML. It is used on
// hardware where the agent runs directly on the metering device.
package pipesampler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wkleiminger/pylon-agent/internal/measurement"
)

// DefaultFIFO is the FIFO path the sensor board writes readings to.
const DefaultFIFO = "/var/run/fluksometer/delta"

// Sampler reads one line per measurement from a named FIFO, lazily
// opening it on first use and reopening it whenever a read fails.
type Sampler struct {
	path string

	mu     sync.Mutex
	file   *os.File
	reader *bufio.Reader
}

// New builds a Sampler reading from path. An empty path falls back to
// DefaultFIFO.
func New(path string) *Sampler {
	if path == "" {
		path = DefaultFIFO
	}
	return &Sampler{path: path}
}

// Measure reads and parses one line from the FIFO. It is compatible with
// sampler.MeasureFunc. On a read failure (including EOF) it closes the FIFO
// handle so the next call reopens it, and waits one second (or until ctx
// is done) before returning the error.
func (s *Sampler) Measure(ctx context.Context) (measurement.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_RDONLY, 0)
		if err != nil {
			return measurement.Measurement{}, fmt.Errorf("pipesampler: open fifo %q: %w", s.path, err)
		}
		s.file = f
		s.reader = bufio.NewReader(f)
	}

	line, err := s.reader.ReadString('\n')
	if err != nil {
		s.file.Close()
		s.file = nil
		s.reader = nil
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return measurement.Measurement{}, fmt.Errorf("pipesampler: read fifo: %w", err)
	}

	m, err := parseLine(line)
	if err != nil {
		return measurement.Measurement{}, err
	}
	return m, nil
}

// Close releases the FIFO handle, if open.
func (s *Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}

// parseLine parses one sensor board line in the form:
//
//	<timestamp> <phaseid0> <counter0> <powerL1> <phaseid1> <counter1> <powerL2> <phaseid2> <counter2> <powerL3>
//
// matching the board's fixed fscanf-style format. Only the first four
// fields are required to succeed; a line with fewer than four parsable
// fields is a parse failure, matching the original reader's "at least 4
// fields" threshold.
func parseLine(line string) (measurement.Measurement, error) {
	var timestamp, powerL1, powerL2, powerL3 float64
	var phaseID0, counter0, phaseID1, counter1, phaseID2, counter2 int

	n, err := fmt.Sscanf(line, "%f %d %d %f %d %d %f %d %d %f",
		&timestamp, &phaseID0, &counter0, &powerL1,
		&phaseID1, &counter1, &powerL2,
		&phaseID2, &counter2, &powerL3)
	if n < 4 {
		return measurement.Measurement{}, fmt.Errorf("pipesampler: failed to parse line %q: %w", line, err)
	}

	// Fields beyond what was actually parsed keep their zero value here,
	// matching the original board reader's zero-initialized struct rather
	// than this package's usual "unfilled" sentinel.
	m := measurement.New()
	m.Values[measurement.Timestamp] = timestamp
	m.Values[measurement.PowerL1] = powerL1
	m.Values[measurement.PowerL2] = powerL2
	m.Values[measurement.PowerL3] = powerL3
	m.Values[measurement.PowerAllPhases] = powerL1 + powerL2 + powerL3

	return m, nil
}

// Interval is the sampling cadence the onboard sensor board should be
// driven at: as fast as possible, matching the original reader which
// blocks on FIFO reads rather than pacing itself.
const Interval = -1 * time.Nanosecond
