// Package orchestrator drives the pipeline: a non-overlapping tick loop
// running Collector -> Transformer -> Registry/Relationship -> Streamer
// every TickInterval, with a periodic out-of-band verification run. The
// Orchestrator holds no global state; every collaborator is an explicit
// dependency constructed and owned by the caller.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/newrelic/mq-telemetry-pipeline/internal/breaker"
	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
	"github.com/newrelic/mq-telemetry-pipeline/internal/collector"
	"github.com/newrelic/mq-telemetry-pipeline/internal/config"
	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/registry"
	"github.com/newrelic/mq-telemetry-pipeline/internal/relationship"
	"github.com/newrelic/mq-telemetry-pipeline/internal/streamer"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
	"github.com/newrelic/mq-telemetry-pipeline/internal/verify"
	"github.com/newrelic/mq-telemetry-pipeline/internal/workerpool"
)

// State is one of the orchestrator's four lifecycle states.
type State string

const (
	StateInit     State = "INIT"
	StateRunning  State = "RUNNING"
	StateDraining State = "DRAINING"
	StateStopped  State = "STOPPED"
)

// maxSince bounds how far back a tick's Collector.Fetch call looks,
// regardless of how stale TickInterval*2 would otherwise make it.
const maxSince = 5 * time.Minute

// Deps are the orchestrator's explicit collaborators. None of them is a
// package-level variable; the caller constructs and owns every one of
// these.
type Deps struct {
	Collector   collector.Collector
	Transformer *transform.Transformer
	Registry    *registry.Registry
	Relations   *relationship.Manager
	Streamer    *streamer.Streamer
	Pool        *workerpool.Pool
	Verify      *verify.Engine
	// FetchBreaker, if set, guards Collector.Fetch so a flapping source
	// short-circuits instead of stalling every tick.
	FetchBreaker *breaker.Breaker
	Clock        clock.Clock
	Config       config.Config
}

// Metrics is a point-in-time snapshot of the orchestrator's tick counters.
type Metrics struct {
	Ticks            int64
	TicksSkipped     int64
	SamplesProcessed int64
	SamplesInvalid   int64
	// InvalidMetrics counts individual metric fields dropped for failed
	// coercion on samples that otherwise transformed successfully.
	InvalidMetrics int64
	SamplesFailed  int64
	EntitiesEvicted  int64
	LastTickDuration time.Duration
	LastVerifyRun    time.Time
	LastVerdict      verify.Verdict
}

// Orchestrator drives the tick loop described above. Zero value is not
// usable; construct with New.
type Orchestrator struct {
	deps Deps

	state   atomic.Value // State
	ticking int32         // CAS guard: 0 idle, 1 a tick is in flight
	tick    int64         // atomic tick counter, also gates VerifyEveryNTicks

	mu      sync.Mutex
	metrics Metrics

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

// New constructs an Orchestrator in StateInit.
func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	o := &Orchestrator{
		deps:   deps,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	o.state.Store(StateInit)
	return o
}

// State reports the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State { return o.state.Load().(State) }

// Snapshot returns a copy of the orchestrator's tick metrics.
func (o *Orchestrator) Snapshot() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

// Run drives the tick loop until ctx is cancelled or Stop is called,
// ticking every deps.Config.TickInterval. A tick that is still running
// when the next interval elapses is skipped rather than run concurrently
// with itself; ticks never overlap.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.state.Store(StateRunning)
	ticker := o.deps.Clock.NewTicker(o.deps.Config.TickInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			o.drain(&wg)
			return ctx.Err()
		case <-o.stopCh:
			o.drain(&wg)
			return nil
		case <-ticker.C():
			if !atomic.CompareAndSwapInt32(&o.ticking, 0, 1) {
				o.mu.Lock()
				o.metrics.TicksSkipped++
				o.mu.Unlock()
				log.Warn("orchestrator: tick skipped, previous tick still running")
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer atomic.StoreInt32(&o.ticking, 0)
				o.runTick(ctx)
			}()
		}
	}
}

// Stop requests the tick loop exit and waits for any in-flight tick plus
// the Streamer's drain, bounded by deps.Config.ShutdownTimeout.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	<-o.doneCh
}

// drain runs the bounded two-phase shutdown: stop accepting
// new ticks (the caller already did, by exiting Run's select loop), wait
// for the in-flight tick, then drain the Streamer and worker pool.
func (o *Orchestrator) drain(wg *sync.WaitGroup) {
	o.state.Store(StateDraining)
	wg.Wait()
	if o.deps.Streamer != nil {
		if err := o.deps.Streamer.Shutdown(); err != nil {
			log.Warn("orchestrator: streamer did not drain cleanly: %v", err)
		}
	}
	if o.deps.Pool != nil {
		o.deps.Pool.Shutdown(o.deps.Config.ShutdownTimeout)
	}
	o.state.Store(StateStopped)
	o.doneOnce.Do(func() { close(o.doneCh) })
}

// runTick executes one pipeline tick: fetch, per-
// sample normalize, entity upsert + relationship reconciliation, stream
// enqueue, and (every VerifyEveryNTicks ticks) an out-of-band verification
// run.
func (o *Orchestrator) runTick(ctx context.Context) {
	start := o.deps.Clock.Now()
	n := atomic.AddInt64(&o.tick, 1)

	since := o.deps.Config.TickInterval * 2
	if since <= 0 || since > maxSince {
		since = maxSince
	}

	fetchCtx, cancel := context.WithTimeout(ctx, collector.DefaultFetchTimeout)
	defer cancel()
	samples, err := o.fetch(fetchCtx, since)
	if err != nil {
		log.Error("orchestrator: tick %d fetch failed (%s): %v", n, errs.Classify(err), err)
		o.finishTick(start)
		return
	}

	proc := newTickProcessor(o.deps)
	if o.deps.Pool != nil {
		proc.runConcurrent(ctx, o.deps.Pool, samples)
	} else {
		proc.runSequential(ctx, samples)
	}

	evicted := o.deps.Registry.SweepMissing(proc.seen)
	for _, guid := range evicted {
		log.Debug("orchestrator: evicted entity %s after missing ticks", guid)
	}
	o.rollupClusters(proc.clusterCache, o.deps.Clock.Now())

	o.mu.Lock()
	o.metrics.Ticks++
	o.metrics.SamplesProcessed += proc.processed
	o.metrics.SamplesInvalid += proc.invalid
	o.metrics.InvalidMetrics += proc.invalidMetrics
	o.metrics.SamplesFailed += proc.failed
	o.metrics.EntitiesEvicted += int64(len(evicted))
	o.mu.Unlock()

	if o.deps.Verify != nil && o.deps.Config.VerifyEveryNTicks > 0 && n%int64(o.deps.Config.VerifyEveryNTicks) == 0 {
		go o.runVerification(ctx)
	}

	o.finishTick(start)
}

func (o *Orchestrator) fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
	if o.deps.FetchBreaker == nil {
		return o.deps.Collector.Fetch(ctx, since)
	}
	result, err := o.deps.FetchBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return o.deps.Collector.Fetch(ctx, since)
	})
	if err != nil {
		return nil, err
	}
	ch, _ := result.(<-chan transform.RawSample)
	return ch, nil
}

func (o *Orchestrator) finishTick(start time.Time) {
	o.mu.Lock()
	o.metrics.LastTickDuration = o.deps.Clock.Now().Sub(start)
	o.mu.Unlock()
}

// runVerification runs the Verification Engine out-of-band; it never
// blocks the tick loop and its errors are logged, not propagated --
// verification is advisory, not in the delivery critical path.
func (o *Orchestrator) runVerification(ctx context.Context) {
	report := o.deps.Verify.Run(ctx)
	o.mu.Lock()
	o.metrics.LastVerifyRun = o.deps.Clock.Now()
	o.metrics.LastVerdict = report.Verdict
	o.mu.Unlock()
	log.Info("orchestrator: verification run %s verdict=%s criticalPassRate=%.2f",
		report.RunID, report.Verdict, report.CriticalPassRate())
}
