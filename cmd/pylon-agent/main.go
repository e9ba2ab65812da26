// Command pylon-agent periodically reads electrical measurements from a
// networked smart meter or an onboard sensor board, prints them to
// stdout, and optionally uploads them to a collector endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wkleiminger/pylon-agent/internal/agent"
	"github.com/wkleiminger/pylon-agent/internal/config"
	"github.com/wkleiminger/pylon-agent/internal/logging"
	"github.com/wkleiminger/pylon-agent/internal/obsmetrics"
	"github.com/wkleiminger/pylon-agent/internal/obstrace"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if err == config.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "pylon-agent: %v\n", err)
		return 1
	}

	logging.SetGlobal(logging.New(os.Stderr, logging.Level(cfg.Verbosity)))
	logging.Infof("starting run %s", agent.RunID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics, err := obsmetrics.New(ctx, obsmetrics.Config{
		ServiceName:  "pylon-agent",
		ExporterType: obsmetrics.ExporterType(cfg.MetricsExporter),
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pylon-agent: failed to initialize metrics: %v\n", err)
		return 1
	}
	obsmetrics.SetGlobal(metrics)
	defer metrics.Shutdown(context.Background())

	tracer, err := obstrace.New(ctx, obstrace.Config{
		ServiceName:  "pylon-agent",
		ExporterType: obstrace.ExporterType(cfg.TraceExporter),
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pylon-agent: failed to initialize tracing: %v\n", err)
		return 1
	}
	obstrace.SetGlobal(tracer)
	defer tracer.Shutdown(context.Background())

	a, err := agent.New(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pylon-agent: failed to initialize agent: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Infof("shutting down")
		a.Stop()
		cancel()
	}()

	a.Run(ctx)
	return 0
}
