package orchestrator

import (
	"fmt"
	"time"

	"github.com/newrelic/mq-telemetry-pipeline/internal/entity"
	"github.com/newrelic/mq-telemetry-pipeline/internal/registry"
	"github.com/newrelic/mq-telemetry-pipeline/internal/udm"
)

// upsertEntity maps a normalized UDM event onto the entity.Entity the
// event describes: it ensures the owning Cluster exists first (entities
// never arrive standalone), then creates or refreshes the
// Broker/Topic/ConsumerGroup entity itself, returning its GUID and the
// golden-metric subset selected from the event's flat
// metric map under the fixed names internal/entity's health rules expect.
func (p *tickProcessor) upsertEntity(event udm.Event) (string, map[string]float64, error) {
	provider := entity.Provider(event.Provider)
	if provider == "" {
		provider = entity.ProviderKafka
	}

	clusterGUID, err := p.ensureCluster(event.ClusterName, provider)
	if err != nil {
		return "", nil, err
	}

	switch event.EventType {
	case udm.EventBrokerSample:
		return p.upsertBroker(event, provider, clusterGUID)
	case udm.EventTopicSample:
		return p.upsertTopic(event, provider, clusterGUID)
	case udm.EventConsumerSample:
		return p.upsertConsumerGroup(event, provider, clusterGUID)
	case udm.EventOffsetSample:
		return p.upsertOffset(event, provider, clusterGUID)
	default:
		return "", nil, fmt.Errorf("orchestrator: no entity mapping for event type %q", event.EventType)
	}
}

// ensureCluster upserts the Cluster entity for clusterName, memoized for
// the duration of this tick so that N brokers/topics in the same cluster
// don't each force a redundant registry write.
func (p *tickProcessor) ensureCluster(clusterName string, provider entity.Provider) (string, error) {
	p.mu.Lock()
	if guid, ok := p.clusterCache[clusterName]; ok {
		p.mu.Unlock()
		return guid, nil
	}
	p.mu.Unlock()

	e, err := p.deps.Registry.CreateCluster(entity.ClusterIdentity{
		ClusterName: clusterName,
		Provider:    provider,
	}, registry.CreateParams{Name: clusterName, Provider: provider})
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.clusterCache[clusterName] = e.GUID
	p.seen[e.GUID] = true
	p.mu.Unlock()

	clk := p.deps.Clock
	now := time.Now()
	if clk != nil {
		now = clk.Now()
	}
	p.enqueuePresence(e.GUID, clusterName, string(provider), now)

	return e.GUID, nil
}

func (p *tickProcessor) upsertBroker(event udm.Event, provider entity.Provider, clusterGUID string) (string, map[string]float64, error) {
	brokerID, _ := event.Identity["broker.id"].(string)
	hostname, _ := event.Identity["hostname"].(string)

	id := entity.BrokerIdentity{
		BrokerID:    brokerID,
		Hostname:    hostname,
		ClusterName: event.ClusterName,
		Provider:    provider,
		Port:        9092,
	}
	e, err := p.deps.Registry.CreateBroker(id, registry.CreateParams{
		Name:        fmt.Sprintf("%s:broker:%s", event.ClusterName, brokerID),
		Provider:    provider,
		ClusterGUID: clusterGUID,
	})
	if err != nil {
		return "", nil, err
	}

	golden := selectGolden(event.Metrics, map[string]string{
		"cpu":             "cpu",
		"memory":          "memory",
		"request.latency": "request.latency",
	})
	if err := p.deps.Registry.UpdateGolden(e.GUID, toGoldenMetrics(golden, event.Timestamp), nil); err != nil {
		return "", nil, err
	}
	return e.GUID, golden, nil
}

func (p *tickProcessor) upsertTopic(event udm.Event, provider entity.Provider, clusterGUID string) (string, map[string]float64, error) {
	topic, _ := event.Identity["topic"].(string)
	partitionCount, _ := event.Identity["partitionCount"].(int64)
	replication, _ := event.Identity["replicationFactor"].(int64)
	if partitionCount == 0 {
		partitionCount = 1
	}
	if replication == 0 {
		replication = 1
	}

	id := entity.TopicIdentity{
		Topic:             topic,
		ClusterName:       event.ClusterName,
		Provider:          provider,
		PartitionCount:    int(partitionCount),
		ReplicationFactor: int(replication),
	}
	e, err := p.deps.Registry.CreateTopic(id, registry.CreateParams{
		Name:        fmt.Sprintf("%s:topic:%s", event.ClusterName, topic),
		Provider:    provider,
		ClusterGUID: clusterGUID,
	})
	if err != nil {
		return "", nil, err
	}

	golden := selectGolden(event.Metrics, map[string]string{
		"consumer.lag":                  "consumer.lag",
		"error.rate":                    "error.rate",
		"throughput.in.bytesPerSecond":  "throughput.in",
		"throughput.out.bytesPerSecond": "throughput.out",
	})
	if err := p.deps.Registry.UpdateGolden(e.GUID, toGoldenMetrics(golden, event.Timestamp), nil); err != nil {
		return "", nil, err
	}
	return e.GUID, golden, nil
}

func (p *tickProcessor) upsertConsumerGroup(event udm.Event, provider entity.Provider, clusterGUID string) (string, map[string]float64, error) {
	groupID, _ := event.Identity["consumerGroupId"].(string)
	topics, _ := event.Identity["topics"].([]string)
	if len(topics) == 0 {
		topics = []string{"unknown"}
	}

	id := entity.ConsumerGroupIdentity{
		ConsumerGroupID: groupID,
		ClusterName:     event.ClusterName,
		Provider:        provider,
		Topics:          topics,
	}
	meta := map[string]any{}
	if state, ok := event.Identity["state"].(string); ok {
		meta["state"] = state
	}
	e, err := p.deps.Registry.CreateConsumerGroup(id, registry.CreateParams{
		Name:        fmt.Sprintf("%s:consumerGroup:%s", event.ClusterName, groupID),
		Provider:    provider,
		ClusterGUID: clusterGUID,
		Metadata:    meta,
	})
	if err != nil {
		return "", nil, err
	}

	golden := selectGolden(event.Metrics, map[string]string{
		"maxLag":      "maxLag",
		"memberCount": "memberCount",
	})
	if err := p.deps.Registry.UpdateGolden(e.GUID, toGoldenMetrics(golden, event.Timestamp), meta); err != nil {
		return "", nil, err
	}
	return e.GUID, golden, nil
}

// upsertOffset resolves to the same ConsumerGroup entity a consumer
// sample for this group/cluster would (entity.ConsumerGroupIdentity's
// GUID depends only on clusterName+consumerGroupId, not Topics -- see
// entity.ConsumerGroupIdentity.Parts). It folds per-partition lag/offset
// data into Metadata without disturbing Golden, which only a consumer
// sample's memberCount/maxLag pair should set.
func (p *tickProcessor) upsertOffset(event udm.Event, provider entity.Provider, clusterGUID string) (string, map[string]float64, error) {
	groupID, _ := event.Identity["consumerGroupId"].(string)
	topic, _ := event.Identity["topic"].(string)

	id := entity.ConsumerGroupIdentity{
		ConsumerGroupID: groupID,
		ClusterName:     event.ClusterName,
		Provider:        provider,
		Topics:          []string{topic},
	}
	e, err := p.deps.Registry.CreateConsumerGroup(id, registry.CreateParams{
		Name:        fmt.Sprintf("%s:consumerGroup:%s", event.ClusterName, groupID),
		Provider:    provider,
		ClusterGUID: clusterGUID,
	})
	if err != nil {
		return "", nil, err
	}

	offsets, _ := e.Metadata["offsets"].(map[string]any)
	if offsets == nil {
		offsets = map[string]any{}
	}
	offsets[topic] = map[string]float64{
		"consumerOffset": event.Metrics["consumerOffset"],
		"highWaterMark":  event.Metrics["highWaterMark"],
		"lag":            event.Metrics["lag"],
	}
	if err := p.deps.Registry.UpdateGolden(e.GUID, e.Golden, map[string]any{"offsets": offsets}); err != nil {
		return "", nil, err
	}
	return e.GUID, nil, nil
}

// selectGolden projects src onto the fixed golden-metric name set names
// maps (sourceKey -> goldenName). A source metric absent this tick is simply omitted
// rather than zero-filled; UpdateGolden then replaces the entity's golden
// list with what is present.
func selectGolden(src map[string]float64, names map[string]string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for sourceKey, goldenName := range names {
		if v, ok := src[sourceKey]; ok {
			out[goldenName] = v
		}
	}
	return out
}

func toGoldenMetrics(golden map[string]float64, ts time.Time) []entity.GoldenMetric {
	out := make([]entity.GoldenMetric, 0, len(golden))
	for name, v := range golden {
		out = append(out, entity.GoldenMetric{Name: name, Value: v, Timestamp: ts})
	}
	return out
}
