package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
	"github.com/newrelic/mq-telemetry-pipeline/internal/collector"
	"github.com/newrelic/mq-telemetry-pipeline/internal/config"
	"github.com/newrelic/mq-telemetry-pipeline/internal/entity"
	"github.com/newrelic/mq-telemetry-pipeline/internal/registry"
	"github.com/newrelic/mq-telemetry-pipeline/internal/relationship"
	"github.com/newrelic/mq-telemetry-pipeline/internal/streamer"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
	"github.com/newrelic/mq-telemetry-pipeline/internal/udm"
)

// captureSender records every batch the Streamer flushes.
type captureSender struct {
	mu      sync.Mutex
	events  []udm.Event
	metrics []udm.Metric
}

func (c *captureSender) SendEvents(ctx context.Context, events []udm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return nil
}

func (c *captureSender) SendMetrics(ctx context.Context, metrics []udm.Metric) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, metrics...)
	return nil
}

func (c *captureSender) eventTypes() map[udm.EventType]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[udm.EventType]int{}
	for _, e := range c.events {
		out[e.EventType]++
	}
	return out
}

type staticCollector struct {
	samples []transform.RawSample
}

func (s *staticCollector) Fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
	ch := make(chan transform.RawSample, len(s.samples))
	for _, sample := range s.samples {
		ch <- sample
	}
	close(ch)
	return ch, nil
}

func newTestDeps(t *testing.T, col collector.Collector, sender streamer.Sender) (Deps, *registry.Registry, *relationship.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.AccountID = 12345
	cfg.APIKey = "ingest"
	cfg.UserAPIKey = "user"

	relations := relationship.New()
	reg := registry.New(cfg.AccountID, relations)
	str := streamer.New(streamer.Config{BatchSize: 1000, FlushInterval: time.Hour}, sender, nil)
	t.Cleanup(func() { str.Shutdown() })

	return Deps{
		Collector:   col,
		Transformer: transform.New(cfg.AccountID, entity.ProviderKafka),
		Registry:    reg,
		Relations:   relations,
		Streamer:    str,
		Config:      cfg,
	}, reg, relations
}

func TestOrchestrator_SingleBrokerTick(t *testing.T) {
	// One simulated cluster with one broker and no topics: one tick must
	// leave exactly a cluster and a broker in the registry, linked by
	// CONTAINS/CONTAINED_IN, with a MessageQueue event per entity shipped.
	sim := collector.NewSimulation(config.SimulationConfig{
		ClusterCount:      1,
		BrokersPerCluster: 1,
		TopicsPerCluster:  0,
		AnomalyRate:       0,
		Seed:              42,
	}, clock.NewFake(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)))

	sender := &captureSender{}
	deps, reg, relations := newTestDeps(t, sim, sender)

	o := New(deps)
	o.runTick(context.Background())

	clusterGUID := "MESSAGE_QUEUE_CLUSTER|12345|kafka|kafka-1"
	brokerGUID := "MESSAGE_QUEUE_BROKER|12345|kafka|kafka-1|1"

	require.Equal(t, 2, reg.Len())
	_, ok := reg.Get(clusterGUID)
	require.True(t, ok, "cluster entity must exist")
	_, ok = reg.Get(brokerGUID)
	require.True(t, ok, "broker entity must exist")

	contains := relationship.TypeContains
	edges := relations.GetRelated(clusterGUID, &contains, 1)
	require.Len(t, edges, 1)
	assert.Equal(t, brokerGUID, edges[0].OtherGUID)

	containedIn := relationship.TypeContainedIn
	inverse := relations.GetRelated(brokerGUID, &containedIn, 1)
	require.Len(t, inverse, 1)
	assert.Equal(t, clusterGUID, inverse[0].OtherGUID)

	require.NoError(t, deps.Streamer.Shutdown())
	types := sender.eventTypes()
	assert.Equal(t, 2, types[udm.EventMessageQueue], "one presence event per entity")
	assert.Equal(t, 1, types[udm.EventBrokerSample])

	snap := o.Snapshot()
	assert.Equal(t, int64(1), snap.Ticks)
	assert.Equal(t, int64(1), snap.SamplesProcessed)
}

func TestOrchestrator_InvalidSampleIsCountedAndContained(t *testing.T) {
	// A broker sample with no broker.id cannot be normalized; the tick
	// must tally it and keep going with the remaining samples.
	col := &staticCollector{samples: []transform.RawSample{
		{EventType: transform.RawKafkaBrokerSample, Fields: map[string]any{"clusterName": "c1"}},
		{EventType: transform.RawKafkaBrokerSample, Fields: map[string]any{"broker.id": "2", "clusterName": "c1"}},
	}}

	sender := &captureSender{}
	deps, reg, _ := newTestDeps(t, col, sender)

	o := New(deps)
	o.runTick(context.Background())

	snap := o.Snapshot()
	assert.Equal(t, int64(1), snap.SamplesInvalid)
	assert.Equal(t, int64(1), snap.SamplesProcessed)
	assert.Equal(t, 2, reg.Len(), "cluster plus the one valid broker")
}

func TestOrchestrator_CountsDroppedMetricFields(t *testing.T) {
	// An unparseable metric field on an otherwise-good sample drops only
	// that field: the event still flows, and the drop lands in the
	// invalid-metric counter rather than the sample-level one.
	col := &staticCollector{samples: []transform.RawSample{
		{EventType: transform.RawKafkaBrokerSample, Fields: map[string]any{
			"broker.id":                  "1",
			"clusterName":                "c1",
			"broker.messagesInPerSecond": "not a number",
		}},
	}}

	sender := &captureSender{}
	deps, _, _ := newTestDeps(t, col, sender)

	o := New(deps)
	o.runTick(context.Background())

	snap := o.Snapshot()
	assert.Equal(t, int64(1), snap.InvalidMetrics)
	assert.Equal(t, int64(1), snap.SamplesProcessed)
	assert.Equal(t, int64(0), snap.SamplesInvalid)
}

func TestOrchestrator_DryRunSuppressesEgress(t *testing.T) {
	col := &staticCollector{samples: []transform.RawSample{
		{EventType: transform.RawKafkaBrokerSample, Fields: map[string]any{"broker.id": "1", "clusterName": "c1"}},
	}}

	sender := &captureSender{}
	deps, reg, _ := newTestDeps(t, col, sender)
	deps.Config.DryRun = true

	o := New(deps)
	o.runTick(context.Background())

	assert.Equal(t, 2, reg.Len(), "transform and registry still run under dryRun")

	require.NoError(t, deps.Streamer.Shutdown())
	assert.Empty(t, sender.events)
	assert.Empty(t, sender.metrics)
}

func TestOrchestrator_EvictsEntitiesMissingForConsecutiveTicks(t *testing.T) {
	first := &staticCollector{samples: []transform.RawSample{
		{EventType: transform.RawKafkaBrokerSample, Fields: map[string]any{"broker.id": "1", "clusterName": "c1"}},
		{EventType: transform.RawKafkaBrokerSample, Fields: map[string]any{"broker.id": "2", "clusterName": "c1"}},
	}}

	sender := &captureSender{}
	deps, reg, _ := newTestDeps(t, first, sender)

	o := New(deps)
	o.runTick(context.Background())
	require.Equal(t, 3, reg.Len())

	// Broker 2 disappears from the feed; after enough consecutive
	// absences the registry must drop it.
	o.deps.Collector = &staticCollector{samples: []transform.RawSample{
		{EventType: transform.RawKafkaBrokerSample, Fields: map[string]any{"broker.id": "1", "clusterName": "c1"}},
	}}
	for i := 0; i < 3; i++ {
		o.runTick(context.Background())
	}

	assert.Equal(t, 2, reg.Len(), "broker 2 evicted after three missing ticks")
	snap := o.Snapshot()
	assert.Equal(t, int64(1), snap.EntitiesEvicted)
}

func TestOrchestrator_RunStopLifecycle(t *testing.T) {
	col := &staticCollector{}
	sender := &captureSender{}
	deps, _, _ := newTestDeps(t, col, sender)
	deps.Config.TickInterval = 5 * time.Millisecond

	o := New(deps)
	assert.Equal(t, StateInit, o.State())

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	// Give the loop a few intervals to tick, then stop it.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateRunning, o.State())

	o.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, o.State())
}
