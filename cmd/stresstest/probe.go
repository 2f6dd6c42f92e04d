package main

import (
	"github.com/sirupsen/logrus"

	"github.com/kuroyamii/playwright-stress-test/internal/config"
	"github.com/kuroyamii/playwright-stress-test/internal/httpclient"
	"github.com/kuroyamii/playwright-stress-test/internal/probe"
	"github.com/kuroyamii/playwright-stress-test/internal/tracing"
)

// closableProbe is a probe that may hold sessions open between visits.
type closableProbe struct {
	probe.Probe
	close func() error
}

func (c closableProbe) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// newProbe builds the configured probe and wraps it, innermost first, with
// retry, tracing, logging and the per-user start delay.
func newProbe(cfg *config.Config, provider *tracing.Provider, logger logrus.FieldLogger) (closableProbe, error) {
	builder, err := httpclient.NewRequestBuilder(cfg.Headers, cfg.UserAgent)
	if err != nil {
		return closableProbe{}, err
	}
	builder.WithPropagation(provider.ShouldPropagate())
	client := httpclient.NewClient(cfg.Timeout)

	var (
		base    probe.Probe
		closeFn func() error
	)
	switch cfg.Probe {
	case config.ProbeBrowser:
		bp := probe.NewBrowserProbe(client, builder, probe.BrowserOptions{
			MaxAssets:        cfg.MaxAssets,
			InteractionDelay: cfg.InteractionDelay,
		})
		base, closeFn = bp, bp.Close
	default:
		base = probe.NewHTTPProbe(client, builder)
	}

	p := probe.WithRetry(base, probe.RetryPolicy{Delay: cfg.RetryDelay})
	if provider.Exporting() || provider.ShouldPropagate() {
		p = probe.WithTracing(p, provider.Tracer())
	}
	p = probe.WithLogging(p, logger)
	if cfg.UserDelayMax > 0 {
		p = probe.WithUserDelay(p, cfg.UserDelayMin, cfg.UserDelayMax)
	}
	return closableProbe{Probe: p, close: closeFn}, nil
}

func probeOptions(cfg *config.Config) probe.Options {
	return probe.Options{
		Timeout:   cfg.Timeout,
		Retries:   cfg.Retries,
		UserAgent: cfg.UserAgent,
	}
}

func toProbeVariant(kind config.ProbeKind) probe.Variant {
	if kind == config.ProbeBrowser {
		return probe.VariantBrowser
	}
	return probe.VariantHTTP
}
