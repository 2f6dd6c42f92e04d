package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kuroyamii/playwright-stress-test/internal/config"
	"github.com/kuroyamii/playwright-stress-test/internal/logging"
	"github.com/kuroyamii/playwright-stress-test/internal/output"
	"github.com/kuroyamii/playwright-stress-test/internal/runner"
	"github.com/kuroyamii/playwright-stress-test/internal/step"
	"github.com/kuroyamii/playwright-stress-test/internal/sysinfo"
	"github.com/kuroyamii/playwright-stress-test/internal/threshold"
	"github.com/kuroyamii/playwright-stress-test/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
	reportTimeout    = 30 * time.Second
)

// errThresholdsFailed marks a run that completed but did not pass.
var errThresholdsFailed = errors.New("thresholds not met")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Log, stderr)
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	extra, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	var host *sysinfo.Info
	if cfg.SystemInfo {
		info, err := sysinfo.Collect(ctx)
		if err != nil {
			logger.WithError(err).Warn("system information is incomplete")
		}
		logger.WithFields(info.Fields()).Info("host")
		host = &info
	}

	started := time.Now()
	runID := output.NewRunID(started)

	provider, err := tracing.Init(ctx, cfg.Tracing,
		attribute.String("stresstest.run_id", runID),
		attribute.String("stresstest.mode", string(cfg.Mode)),
		attribute.String("stresstest.probe", string(cfg.Probe)),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	visitor, err := newProbe(cfg, provider, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := visitor.Close(); err != nil {
			logger.WithError(err).Debug("closing probe sessions")
		}
	}()

	scheduler := runner.NewScheduler(runner.Options{
		Probe:          visitor,
		ProbeOptions:   probeOptions(cfg),
		MaxConcurrency: cfg.ConcurrencyCap,
		RatePerSecond:  cfg.Arrival.Rate,
		ArrivalModel:   toRunnerArrivalModel(cfg.Arrival.Model),
		Logger:         logger,
	})

	var observer step.Observer
	if !cfg.JSONOutput {
		progress := output.NewProgressReporter(progressInterval, stdout)
		defer progress.Stop()
		observer = progress
	}

	controller := step.NewController(step.Options{
		Runner:           scheduler,
		Variant:          toProbeVariant(cfg.Probe),
		Shape:            cfg.EffectiveShape(),
		SuccessThreshold: cfg.SuccessThreshold,
		LatencyThreshold: cfg.LatencyThreshold,
		Extra:            extra,
		Observer:         observer,
		Logger:           logger,
	})

	report := output.Report{
		RunID:              runID,
		Probe:              string(cfg.Probe),
		LoadShape:          string(cfg.EffectiveShape()),
		URLs:               cfg.URLs(),
		SuccessThreshold:   cfg.SuccessThreshold,
		LatencyThresholdMs: cfg.LatencyThreshold.Milliseconds(),
		StartedAt:          started,
		System:             host,
	}
	log := logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"mode":   cfg.Mode,
		"urls":   len(report.URLs),
	})
	log.Info("run started")

	switch cfg.Mode {
	case config.ModeFixed:
		res := controller.Execute(ctx, step.Config{Step: 1, UserCount: cfg.Users, URLs: report.URLs})
		report = report.WithStep(res)
	default:
		driver := step.NewCapacityDriver(controller, step.CapacityOptions{
			MinUsers: cfg.MinUsers,
			MaxUsers: cfg.MaxUsers,
			StepSize: cfg.StepSize,
			Cooldown: cfg.StepCooldown,
			URLs:     report.URLs,
			Logger:   logger,
		})
		report = report.WithCapacity(driver.Run(ctx))
	}
	report.FinishedAt = time.Now()

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	// Reports are still written after an interrupt.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	paths, err := output.NewWriter(cfg.Output).Write(writeCtx, report)
	if err != nil {
		return err
	}
	for _, p := range paths {
		log.WithField("path", p).Info("report written")
	}

	log.WithFields(logrus.Fields{
		"passed":      report.Passed,
		"interrupted": report.Interrupted,
		"duration":    report.Duration().Round(time.Millisecond),
	}).Info("run finished")

	return verdict(report)
}

// verdict turns a finished report into the process result.
func verdict(r output.Report) error {
	if r.Passed {
		return nil
	}
	if r.Interrupted && len(r.Steps) == 0 {
		return fmt.Errorf("run interrupted before the first step")
	}
	if r.Mode == output.ModeCapacity {
		users := 0
		if len(r.Steps) > 0 {
			users = r.Steps[0].Users
		}
		return fmt.Errorf("%w: first step with %d users failed", errThresholdsFailed, users)
	}
	if r.Interrupted {
		return fmt.Errorf("%w: step interrupted", errThresholdsFailed)
	}
	return errThresholdsFailed
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}
