package config

import (
	"bytes"
	"errors"
	"flag"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	var buf bytes.Buffer
	cfg, err := Parse(nil, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Count != DefaultCount {
		t.Errorf("want count %d, got %d", DefaultCount, cfg.Count)
	}
	if cfg.IntervalMs != DefaultIntervalMs {
		t.Errorf("want interval %d, got %d", DefaultIntervalMs, cfg.IntervalMs)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("want port %s, got %s", DefaultPort, cfg.Port)
	}
	if cfg.UploadThreads != DefaultUploadThreads {
		t.Errorf("want upload threads %d, got %d", DefaultUploadThreads, cfg.UploadThreads)
	}
	if cfg.BufferSize != DefaultBufferSize {
		t.Errorf("want buffer size %d, got %d", DefaultBufferSize, cfg.BufferSize)
	}
	if cfg.Verbosity != DefaultVerbosity {
		t.Errorf("want verbosity %d, got %d", DefaultVerbosity, cfg.Verbosity)
	}
}

func TestQuietForcesVerbosityToZero(t *testing.T) {
	var buf bytes.Buffer
	cfg, err := Parse([]string{"-q", "-v", "3"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Verbosity != 0 {
		t.Errorf("want quiet to force verbosity 0, got %d", cfg.Verbosity)
	}
}

func TestZeroUploadThreadsIsAccepted(t *testing.T) {
	var buf bytes.Buffer
	cfg, err := Parse([]string{"-n", "0", "-u", "http://example.com"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error for zero upload threads: %v", err)
	}
	if cfg.UploadThreads != 0 {
		t.Fatalf("want upload threads 0, got %d", cfg.UploadThreads)
	}
}

func TestNegativeUploadThreadsIsRejected(t *testing.T) {
	var buf bytes.Buffer
	_, err := Parse([]string{"-n", "-1"}, &buf)
	if err == nil {
		t.Fatalf("expected an error for negative upload threads")
	}
}

func TestHelpFlagReturnsErrHelp(t *testing.T) {
	var buf bytes.Buffer
	_, err := Parse([]string{"-h"}, &buf)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("want flag.ErrHelp, got %v", err)
	}
}

func TestExplicitFlagsOverrideDefaults(t *testing.T) {
	var buf bytes.Buffer
	cfg, err := Parse([]string{
		"-c", "100", "-i", "500", "-o", "-a", "10.0.0.5",
		"-u", "https://collector.example/measurements", "-t", "tok123",
		"-n", "4", "-b", "1000", "-s",
	}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Count != 100 || cfg.IntervalMs != 500 || !cfg.Onboard || cfg.Address != "10.0.0.5" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.URL != "https://collector.example/measurements" || cfg.Token != "tok123" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.UploadThreads != 4 || cfg.BufferSize != 1000 || !cfg.SmartOutputOnly {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
