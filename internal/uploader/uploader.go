// Package uploader drains a bounded measurement queue to a web service
// using a small pool of independent worker goroutines, each with its own
// http.Client and its own retry state, so one stuck upload never blocks
// another worker's.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wkleiminger/pylon-agent/internal/logging"
	"github.com/wkleiminger/pylon-agent/internal/measurement"
	"github.com/wkleiminger/pylon-agent/internal/queue"
)

const sendTimeout = 10 * time.Second

// Pool uploads envelopes pulled off a shared queue via numThreads
// independent workers.
type Pool struct {
	q          *queue.BoundedQueue[measurement.Envelope]
	url        string
	token      string
	numThreads int
	interval   atomic.Int64 // milliseconds, live-adjustable

	running atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Pool that will drain q once started.
func New(q *queue.BoundedQueue[measurement.Envelope], url, token string, numThreads int, intervalMs int) *Pool {
	p := &Pool{
		q:          q,
		url:        url,
		token:      token,
		numThreads: numThreads,
	}
	p.interval.Store(int64(intervalMs))
	return p
}

// SetInterval adjusts the retry/idle-poll interval workers use, taking
// effect on their next wait.
func (p *Pool) SetInterval(d time.Duration) {
	p.interval.Store(d.Milliseconds())
}

func (p *Pool) intervalDuration() time.Duration {
	return time.Duration(p.interval.Load()) * time.Millisecond
}

// Start launches the worker pool. It returns immediately; call Wait to
// block until every worker has exited after Stop.
func (p *Pool) Start(ctx context.Context) {
	p.running.Store(true)
	for i := 0; i < p.numThreads; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals every worker to exit after its current unit of work. It also
// closes the queue, so no further envelopes are accepted and workers idle
// in Dequeue wake up and exit.
func (p *Pool) Stop() {
	p.running.Store(false)
	p.q.Close()
}

// Wait blocks until every worker goroutine has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, threadNum int) {
	defer p.wg.Done()

	// Stagger startup so numThreads workers don't all hit the queue (and
	// the upstream service) in the same instant.
	stagger := time.Duration(int64(p.intervalDuration()) * int64(threadNum) / int64(p.numThreads))
	select {
	case <-time.After(stagger):
	case <-ctx.Done():
		return
	}

	client := &http.Client{Timeout: sendTimeout}
	var lastFingerprint string

	for p.running.Load() {
		envelope, ok, _ := p.q.Dequeue()
		if !ok {
			return // queue closed
		}

		if err := p.sendWithRetry(ctx, client, envelope, threadNum, &lastFingerprint); err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warnf("worker %d giving up on a measurement: %v", threadNum, err)
		}
	}
}

// sendWithRetry POSTs envelope, retrying the same payload on any
// transport failure or non-201/204 response until it succeeds, the pool is
// stopped, or ctx is done. It logs only on a change of failure fingerprint
// (and once more on recovery) so a persistently down upstream doesn't flood
// the log.
func (p *Pool) sendWithRetry(ctx context.Context, client *http.Client, envelope measurement.Envelope, threadNum int, lastFingerprint *string) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("uploader: marshal envelope: %w", err)
	}

	policy := backoff.WithContext(&backoff.ConstantBackOff{Interval: p.intervalDuration()}, ctx)

	hadFailure := false
	op := func() error {
		if !p.running.Load() {
			return backoff.Permanent(fmt.Errorf("uploader: pool stopped"))
		}
		return p.performPost(ctx, client, payload)
	}
	notify := func(err error, _ time.Duration) {
		hadFailure = true
		fp := err.Error()
		if fp != *lastFingerprint {
			logging.Warnf("worker %d: %v", threadNum, err)
		}
		*lastFingerprint = fp
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return err
	}

	if hadFailure {
		logging.Warnf("worker %d: measurement finally sent", threadNum)
		*lastFingerprint = ""
	}
	return nil
}

func (p *Pool) performPost(ctx context.Context, client *http.Client, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("uploader: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("X-Auth-Token", p.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("uploader: post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("uploader: server responded %d", resp.StatusCode)
	}
	return nil
}

// QueueDepth reports how many envelopes are waiting to be sent.
func (p *Pool) QueueDepth() int {
	return p.q.Len()
}
