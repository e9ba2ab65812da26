package agent

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wkleiminger/pylon-agent/internal/config"
)

func TestAgentRunReturnsImmediatelyForZeroCount(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Onboard:    true,
		Address:    "", // unused: with Count=0, Run returns before any measurement is taken
		Count:      0,
		IntervalMs: 5,
		Quiet:      true,
	}

	ctx := context.Background()
	a, err := New(ctx, cfg, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run with Count=0 did not return immediately")
	}
}

func TestAgentUploadsToConfiguredURL(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	cfg := config.Config{
		URL:           srv.URL,
		Token:         "test-token",
		Count:         3,
		IntervalMs:    1,
		UploadThreads: 1,
		BufferSize:    10,
		Quiet:         true,
	}

	ctx := context.Background()
	a, err := New(ctx, cfg, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Swap in a fast, deterministic measurement source instead of dialing a
	// real meter, exercising the same onTick/queue/uploader wiring Run uses.
	a.sampler = newTestSampler(a, time.Millisecond)

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("agent did not stop after reaching its configured count")
	}

	deadline := time.Now().Add(time.Second)
	for requests.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := requests.Load(); got < 3 {
		t.Fatalf("got %d upload requests, want at least 3", got)
	}
}
