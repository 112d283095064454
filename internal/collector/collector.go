// Package collector implements the pluggable raw-sample source: a
// Collector interface with three concrete adapters -- a query-backed one
// polling the backend over NRQL, a direct-broker one reading live Kafka
// metadata, and a simulation one generating synthetic topology traffic.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
	"github.com/newrelic/mq-telemetry-pipeline/internal/config"
	"github.com/newrelic/mq-telemetry-pipeline/internal/httpclient"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
)

// Collector is the pluggable raw-sample source every adapter implements.
// Fetch returns a finite, not-restartable-within-a-tick stream of
// RawSample over the channel; the channel is closed when the batch is
// exhausted. A non-nil error return means the whole fetch failed before
// any sample could be produced (SourceUnavailable/AuthFailed); per-item
// schema problems are logged and skipped inside the adapter instead of
// failing the call.
type Collector interface {
	Fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error)
}

// DefaultFetchTimeout bounds a single Fetch call.
const DefaultFetchTimeout = 45 * time.Second

// clockOrReal returns c if non-nil, else the production clock -- used by
// adapter constructors so tests can inject a clock.Fake.
func clockOrReal(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.Real{}
	}
	return c
}

// ForMode builds the Collector the configured mode calls for:
// simulation runs the synthetic generator alone; infrastructure reads
// real data, either directly from the brokers when hosts are configured
// or by polling the backend for previously ingested samples; hybrid
// layers the synthetic generator on top of the infrastructure source.
func ForMode(cfg config.Config, client *httpclient.Client, clk clock.Clock) (Collector, error) {
	switch cfg.Mode {
	case config.ModeInfrastructure, config.ModeHybrid:
	default:
		return NewSimulation(cfg.Simulation, clk), nil
	}

	var real Collector
	if len(cfg.Kafka.BootstrapServers) > 0 || len(cfg.Kafka.ZookeeperHosts) > 0 {
		infra, err := NewInfra(cfg.Kafka, clk)
		if err != nil {
			return nil, err
		}
		real = infra
	} else {
		real = NewQuery(client, cfg.GraphQLEndpoint(), cfg.AccountID)
	}

	if cfg.Mode == config.ModeHybrid {
		return NewMulti(real, NewSimulation(cfg.Simulation, clk)), nil
	}
	return real, nil
}

// Multi fans several adapters into one sample stream; each inner Fetch
// failure is isolated so one dead source does not starve the others.
type Multi struct {
	collectors []Collector
}

// NewMulti combines adapters into a single Collector.
func NewMulti(collectors ...Collector) *Multi {
	return &Multi{collectors: collectors}
}

// Fetch starts every inner adapter and merges their channels. The merged
// channel closes when every inner stream is exhausted. An error is
// returned only when every adapter fails to start.
func (m *Multi) Fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
	out := make(chan transform.RawSample, 64)

	var wg sync.WaitGroup
	var started int
	var lastErr error
	for _, c := range m.collectors {
		ch, err := c.Fetch(ctx, since)
		if err != nil {
			lastErr = err
			continue
		}
		started++
		wg.Add(1)
		go func(ch <-chan transform.RawSample) {
			defer wg.Done()
			for s := range ch {
				select {
				case <-ctx.Done():
					return
				case out <- s:
				}
			}
		}(ch)
	}
	if started == 0 {
		close(out)
		if lastErr != nil {
			return nil, lastErr
		}
		return out, nil
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

var _ Collector = (*Multi)(nil)
