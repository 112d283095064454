// Package streamer batches and ships UDM events and metrics to the
// backend on independent channels: size/interval-triggered batch flush,
// per-batch retry with exponential backoff, a dead-letter callback on
// exhaustion, and a bounded two-phase shutdown.
package streamer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/udm"
)

// Sender performs the actual network POST for a batch. This module ships
// no implementation besides test fakes; internal/httpclient.Client does
// not satisfy it directly (its method is PostJSON).
type Sender interface {
	SendEvents(ctx context.Context, events []udm.Event) error
	SendMetrics(ctx context.Context, metrics []udm.Metric) error
}

// BackpressurePolicy mirrors config.BackpressurePolicy without importing
// the config package, keeping this package's dependency surface narrow.
type BackpressurePolicy string

const (
	BackpressureBlock  BackpressurePolicy = "block"
	BackpressureReject BackpressurePolicy = "reject"
)

// Config carries the Streamer's tunables.
type Config struct {
	BatchSize          int
	FlushInterval      time.Duration
	RetryAttempts      int
	RetryDelay         time.Duration
	MaxBuffer          int
	BackpressurePolicy BackpressurePolicy
	ShutdownTimeout    time.Duration
	// DeadLetterEvents/DeadLetterMetrics, if set, are invoked with a batch whose retry budget was
	// exhausted. Default behavior (nil) is log + drop.
	DeadLetterEvents  func(events []udm.Event)
	DeadLetterMetrics func(metrics []udm.Metric)
}

// Stats is a point-in-time snapshot of delivery counters.
type Stats struct {
	EventsEnqueued  int64
	EventsSent      int64
	EventsFailed    int64
	MetricsEnqueued int64
	MetricsSent     int64
	MetricsFailed   int64
}

type timestamped[T any] struct {
	item T
	at   time.Time
}

// Streamer batches and flushes UDM events and metrics on independent
// channels, applying retry with backoff and dead-lettering exhausted
// batches.
type Streamer struct {
	cfg    Config
	sender Sender
	clk    clock.Clock

	mu          sync.Mutex
	cond        *sync.Cond
	eventBuf    []timestamped[udm.Event]
	metricBuf   []timestamped[udm.Metric]
	closed      bool
	stats       Stats

	flushNotify chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup
	once        sync.Once
}

// New constructs a Streamer and starts its background flush loop.
func New(cfg Config, sender Sender, clk clock.Clock) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = 10000
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}

	s := &Streamer{
		cfg:         cfg,
		sender:      sender,
		clk:         clk,
		flushNotify: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(1)
	go s.loop()
	return s
}

// EnqueueEvent adds an event to the pending batch, applying the
// configured backpressure policy if the buffer is full.
func (s *Streamer) EnqueueEvent(e udm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.awaitCapacity(); err != nil {
		return err
	}

	s.eventBuf = append(s.eventBuf, timestamped[udm.Event]{item: e, at: s.clk.Now()})
	s.stats.EventsEnqueued++
	s.maybeNotify(len(s.eventBuf))
	return nil
}

// EnqueueMetric adds a metric to the pending batch.
func (s *Streamer) EnqueueMetric(m udm.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.awaitCapacity(); err != nil {
		return err
	}

	s.metricBuf = append(s.metricBuf, timestamped[udm.Metric]{item: m, at: s.clk.Now()})
	s.stats.MetricsEnqueued++
	s.maybeNotify(len(s.metricBuf))
	return nil
}

// awaitCapacity must be called with s.mu held. Under BackpressureReject
// it returns BufferFull immediately once full; under BackpressureBlock it
// waits on s.cond, released every time a flush drains either buffer,
// until capacity frees up or the streamer is shut down.
func (s *Streamer) awaitCapacity() error {
	for {
		if s.closed {
			return fmt.Errorf("%w: streamer is shut down", errs.ErrCancelled)
		}
		if len(s.eventBuf)+len(s.metricBuf) < s.cfg.MaxBuffer {
			return nil
		}
		if s.cfg.BackpressurePolicy == BackpressureReject {
			return fmt.Errorf("%w: buffer at capacity", errs.ErrBufferFull)
		}
		s.cond.Wait()
	}
}

func (s *Streamer) maybeNotify(bufLen int) {
	if bufLen < s.cfg.BatchSize {
		return
	}
	select {
	case s.flushNotify <- struct{}{}:
	default:
	}
}

func (s *Streamer) loop() {
	defer s.wg.Done()
	ticker := s.clk.NewTicker(s.cfg.FlushInterval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			s.flushEvents(context.Background())
			s.flushMetrics(context.Background())
			return
		case <-s.flushNotify:
			s.flushIfDue(true)
		case <-ticker.C():
			s.flushIfDue(false)
		}
	}
}

// flushIfDue flushes whichever buffers qualify: force flushes both
// regardless of age (used when a size threshold was hit); otherwise each
// buffer flushes only once its oldest item exceeds FlushInterval.
func (s *Streamer) flushIfDue(force bool) {
	s.mu.Lock()
	eventsDue := force || (len(s.eventBuf) > 0 && s.clk.Since(s.eventBuf[0].at) >= s.cfg.FlushInterval)
	metricsDue := force || (len(s.metricBuf) > 0 && s.clk.Since(s.metricBuf[0].at) >= s.cfg.FlushInterval)
	s.mu.Unlock()

	if eventsDue {
		s.flushEvents(context.Background())
	}
	if metricsDue {
		s.flushMetrics(context.Background())
	}
}

// flushEvents is a no-op on an empty buffer.
func (s *Streamer) flushEvents(ctx context.Context) {
	s.mu.Lock()
	if len(s.eventBuf) == 0 {
		s.mu.Unlock()
		return
	}
	batch := make([]udm.Event, len(s.eventBuf))
	for i, t := range s.eventBuf {
		batch[i] = t.item
	}
	s.eventBuf = s.eventBuf[:0]
	s.cond.Broadcast()
	s.mu.Unlock()

	if err := s.sendWithRetry(ctx, func(ctx context.Context) error {
		return s.sender.SendEvents(ctx, batch)
	}); err != nil {
		log.Error("streamer: event batch exhausted retry budget: %v", err)
		s.mu.Lock()
		s.stats.EventsFailed += int64(len(batch))
		s.mu.Unlock()
		if s.cfg.DeadLetterEvents != nil {
			s.cfg.DeadLetterEvents(batch)
		}
		return
	}
	s.mu.Lock()
	s.stats.EventsSent += int64(len(batch))
	s.mu.Unlock()
}

func (s *Streamer) flushMetrics(ctx context.Context) {
	s.mu.Lock()
	if len(s.metricBuf) == 0 {
		s.mu.Unlock()
		return
	}
	batch := make([]udm.Metric, len(s.metricBuf))
	for i, t := range s.metricBuf {
		batch[i] = t.item
	}
	s.metricBuf = s.metricBuf[:0]
	s.cond.Broadcast()
	s.mu.Unlock()

	if err := s.sendWithRetry(ctx, func(ctx context.Context) error {
		return s.sender.SendMetrics(ctx, batch)
	}); err != nil {
		log.Error("streamer: metric batch exhausted retry budget: %v", err)
		s.mu.Lock()
		s.stats.MetricsFailed += int64(len(batch))
		s.mu.Unlock()
		if s.cfg.DeadLetterMetrics != nil {
			s.cfg.DeadLetterMetrics(batch)
		}
		return
	}
	s.mu.Lock()
	s.stats.MetricsSent += int64(len(batch))
	s.mu.Unlock()
}

// sendWithRetry retries send up to cfg.RetryAttempts times with
// exponential backoff capped at 60s.
func (s *Streamer) sendWithRetry(ctx context.Context, send func(context.Context) error) error {
	delay := s.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	attempts := s.cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}

	var lastErr error
	for i := 0; i <= attempts; i++ {
		lastErr = send(ctx)
		if lastErr == nil {
			return nil
		}
		if i < attempts {
			s.clk.Sleep(backoff(delay, i))
		}
	}
	return lastErr
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	const capDelay = 60 * time.Second
	if d > capDelay {
		d = capDelay
	}
	return d
}

// Shutdown stops accepting new work, then drains both buffers
// respecting the retry budget, bounded by cfg.ShutdownTimeout.
func (s *Streamer) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.once.Do(func() { close(s.done) })

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		return fmt.Errorf("%w: streamer did not drain within %s", errs.ErrTimeout, s.cfg.ShutdownTimeout)
	}
}

// Stats returns a point-in-time copy of delivery counters.
func (s *Streamer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
