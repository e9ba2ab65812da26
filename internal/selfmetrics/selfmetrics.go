// Package selfmetrics samples this process's own resource usage (RSS and
// CPU time) for the periodic status log. The readings are not exported as
// OpenTelemetry metrics.
package selfmetrics

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is one reading of the agent's own resource usage.
type Snapshot struct {
	RSSBytes   uint64
	CPUPercent float64
}

// Sampler reads this process's own /proc entry via gopsutil.
type Sampler struct {
	proc *process.Process
}

// New builds a Sampler bound to the current process.
func New() (*Sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("selfmetrics: open self process: %w", err)
	}
	return &Sampler{proc: p}, nil
}

// Sample reads current RSS and CPU utilization.
func (s *Sampler) Sample(ctx context.Context) (Snapshot, error) {
	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("selfmetrics: read memory info: %w", err)
	}
	cpu, err := s.proc.CPUPercentWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("selfmetrics: read cpu percent: %w", err)
	}
	return Snapshot{RSSBytes: mem.RSS, CPUPercent: cpu}, nil
}
