package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
	"github.com/newrelic/mq-telemetry-pipeline/internal/udm"
	"github.com/newrelic/mq-telemetry-pipeline/internal/workerpool"
)

// tickProcessor carries the per-tick mutable state (seen-set, counters,
// a per-tick cluster cache) shared across however many goroutines process
// this tick's samples concurrently.
type tickProcessor struct {
	deps Deps

	mu           sync.Mutex
	seen         map[string]bool
	clusterCache map[string]string // clusterName -> cluster entity GUID, this tick only

	processed      int64
	invalid        int64
	invalidMetrics int64
	failed         int64
}

func newTickProcessor(deps Deps) *tickProcessor {
	return &tickProcessor{
		deps:         deps,
		seen:         make(map[string]bool),
		clusterCache: make(map[string]string),
	}
}

// runSequential processes samples on the calling goroutine, used when no
// worker pool is configured.
func (p *tickProcessor) runSequential(ctx context.Context, samples <-chan transform.RawSample) {
	for sample := range samples {
		p.processSample(ctx, sample)
	}
}

// runConcurrent fans each sample out to pool, bounding in-flight work at
// the pool's configured size, and waits for every task before returning.
func (p *tickProcessor) runConcurrent(ctx context.Context, pool *workerpool.Pool, samples <-chan transform.RawSample) {
	var results []<-chan error
	for sample := range samples {
		s := sample
		task := &workerpool.Task{
			ID:       s.EventType,
			Payload:  s,
			Priority: workerpool.PriorityNormal,
			Processor: func(ctx context.Context, payload any) error {
				p.processSample(ctx, payload.(transform.RawSample))
				return nil
			},
		}
		results = append(results, pool.Submit(task))
	}
	for _, r := range results {
		<-r
	}
}

// processSample runs the Transformer -> entity upsert -> Streamer enqueue
// path for one sample, never returning an error: failures are logged and
// tallied so one bad sample never aborts the tick.
func (p *tickProcessor) processSample(ctx context.Context, sample transform.RawSample) {
	event, dropped, err := p.deps.Transformer.Normalize(sample)
	if err != nil {
		if errs.Classify(err) == errs.KindInvalidMetric {
			atomic.AddInt64(&p.invalid, 1)
		} else {
			atomic.AddInt64(&p.failed, 1)
			log.Warn("orchestrator: dropping sample %s: %v", sample.EventType, err)
		}
		return
	}
	if dropped > 0 {
		atomic.AddInt64(&p.invalidMetrics, int64(dropped))
	}

	guid, golden, err := p.upsertEntity(event)
	if err != nil {
		atomic.AddInt64(&p.failed, 1)
		log.Warn("orchestrator: entity upsert failed for %s: %v", event.EventType, err)
		return
	}

	p.mu.Lock()
	p.seen[guid] = true
	p.mu.Unlock()

	p.enqueue(event, guid, golden)
	atomic.AddInt64(&p.processed, 1)
}

// enqueue ships the normalized event, its per-metric datapoints, and a
// lightweight MessageQueue existence event (the shape
// internal/verify's "entities" suite queries) to the Streamer.
func (p *tickProcessor) enqueue(event udm.Event, guid string, golden map[string]float64) {
	if p.deps.Config.DryRun {
		return
	}
	if err := p.deps.Streamer.EnqueueEvent(event); err != nil {
		log.Warn("orchestrator: event enqueue rejected: %v", err)
	}

	for name, v := range golden {
		m := udm.Metric{
			Name:      "kafka." + name,
			Type:      udm.MetricGauge,
			Value:     v,
			Timestamp: event.Timestamp.UnixMilli(),
			Attributes: map[string]any{
				"entity.guid": guid,
				"clusterName": event.ClusterName,
				"provider":    event.Provider,
			},
		}
		if err := p.deps.Streamer.EnqueueMetric(m); err != nil {
			log.Warn("orchestrator: metric enqueue rejected: %v", err)
		}
	}

	p.enqueuePresence(guid, event.ClusterName, event.Provider, event.Timestamp)
}

// enqueuePresence ships the lightweight MessageQueue existence event the
// backend synthesizes entities from.
func (p *tickProcessor) enqueuePresence(guid, clusterName, provider string, ts time.Time) {
	if p.deps.Config.DryRun {
		return
	}
	presence := udm.Event{
		EventType:   udm.EventMessageQueue,
		EntityGUID:  guid,
		GUID:        guid,
		Timestamp:   ts,
		Provider:    provider,
		ClusterName: clusterName,
		Identity:    map[string]any{"entity.guid": guid},
		Metrics:     map[string]float64{},
	}
	if err := p.deps.Streamer.EnqueueEvent(presence); err != nil {
		log.Warn("orchestrator: presence event enqueue rejected: %v", err)
	}
}
