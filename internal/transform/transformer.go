package transform

import (
	"fmt"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"
	"github.com/newrelic/mq-telemetry-pipeline/internal/entity"
	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/udm"
)

// Transformer normalizes RawSamples into UDM events.
// It is a pure function over its inputs: no shared mutable state, no I/O.
type Transformer struct {
	AccountID int64
	Provider  entity.Provider
}

// New constructs a Transformer bound to the account and default provider
// used to synthesize entity GUIDs from sample identity fields.
func New(accountID int64, provider entity.Provider) *Transformer {
	return &Transformer{AccountID: accountID, Provider: provider}
}

// Normalize dispatches on sample.EventType to the matching per-category
// transform. The int return is the number of individual metric fields
// dropped for failed coercion (non-numeric, NaN, out of range) while the
// sample as a whole still succeeded; callers surface it to their
// invalid-metric counter. The error return covers whole-sample failures:
// an unrecognized EventType, or a recognized type with no usable
// identity. A recognized type always yields a GUID-bearing event or an
// error, never silence.
func (t *Transformer) Normalize(sample RawSample) (udm.Event, int, error) {
	switch sample.EventType {
	case RawKafkaBrokerSample:
		return t.normalizeBroker(sample)
	case RawKafkaTopicSample:
		return t.normalizeTopic(sample)
	case RawKafkaConsumerSample:
		return t.normalizeConsumerGroup(sample)
	case RawKafkaOffsetSample:
		return t.normalizeOffset(sample)
	default:
		return udm.Event{}, 0, fmt.Errorf("%w: unrecognized eventType %q", errs.ErrSchemaMismatch, sample.EventType)
	}
}

func (t *Transformer) normalizeBroker(sample RawSample) (udm.Event, int, error) {
	f := sample.Fields

	brokerIDStr, ok := brokerID.String(f)
	if !ok {
		if bID, okInt := brokerID.Int(f); okInt {
			brokerIDStr = fmt.Sprintf("%d", bID)
			ok = true
		}
	}
	clusterName, _ := fieldmapClusterName(f)
	if !ok || clusterName == "" {
		return udm.Event{}, 0, fmt.Errorf("%w: broker sample missing broker.id or clusterName", errs.ErrInvalidMetric)
	}

	id := entity.BrokerIdentity{
		BrokerID:    brokerIDStr,
		Hostname:    firstString(brokerHostname, f, "unknown"),
		ClusterName: clusterName,
		Provider:    t.Provider,
		Port:        9092,
	}
	guid := entity.GUIDFor(t.AccountID, id)

	metrics := map[string]float64{}
	invalid := 0

	addMetric(metrics, &invalid, "throughput.in.bytesPerSecond", brokerBytesIn, f)
	addMetric(metrics, &invalid, "throughput.out.bytesPerSecond", brokerBytesOut, f)
	addMetric(metrics, &invalid, "throughput.in.messagesPerSecond", brokerMessagesIn, f)
	addMetric(metrics, &invalid, "bytes.rejected.perSecond", brokerBytesRejected, f)
	addMetric(metrics, &invalid, "topic.bytesOut.perSecond", brokerTopicBytesOut, f)
	addMetric(metrics, &invalid, "topic.messagesIn.perSecond", brokerTopicMessagesIn, f)
	addMetric(metrics, &invalid, "fetchConsumer.localTimeMs", brokerFetchConsumerLocalTimeMs, f)
	addMetric(metrics, &invalid, "fetchConsumer.requestQueueTimeMs", brokerFetchConsumerQueueTimeMs, f)
	addMetric(metrics, &invalid, "fetchConsumer.responseSendTimeMs", brokerFetchConsumerSendTimeMs, f)
	addMetric(metrics, &invalid, "fetchConsumer.totalTimeMs", brokerFetchConsumerTotalTimeMs, f)
	addMetric(metrics, &invalid, "produce.localTimeMs", brokerProduceLocalTimeMs, f)
	addMetric(metrics, &invalid, "produce.requestQueueTimeMs", brokerProduceQueueTimeMs, f)
	addMetric(metrics, &invalid, "produce.responseSendTimeMs", brokerProduceSendTimeMs, f)
	addMetric(metrics, &invalid, "produce.totalTimeMs", brokerProduceTotalTimeMs, f)
	addMetric(metrics, &invalid, "replication.underReplicatedPartitions", brokerUnderReplicated, f)
	addMetric(metrics, &invalid, "replication.isrShrinksPerSecond", brokerISRShrinks, f)
	addMetric(metrics, &invalid, "replication.isrExpandsPerSecond", brokerISRExpands, f)
	addMetric(metrics, &invalid, "replication.leaderElectionPerSecond", brokerLeaderElectionRate, f)
	addMetric(metrics, &invalid, "replication.uncleanLeaderElectionPerSecond", brokerUncleanLeaderElect, f)
	addMetric(metrics, &invalid, "handler.requestHandlerIdlePercent", brokerRequestHandlerIdle, f)
	addMetric(metrics, &invalid, "handler.networkProcessorIdlePercent", brokerNetworkProcIdle, f)
	addMetric(metrics, &invalid, "cpu", brokerCPUUser, f)
	addMetric(metrics, &invalid, "cpu.system", brokerCPUSystem, f)
	addMetric(metrics, &invalid, "cpu.idle", brokerCPUIdle, f)
	addMetric(metrics, &invalid, "memory", brokerMemUsed, f)
	addMetric(metrics, &invalid, "memory.total", brokerMemTotal, f)
	addMetric(metrics, &invalid, "disk.used.bytes", brokerDiskUsed, f)
	addMetric(metrics, &invalid, "disk.total.bytes", brokerDiskTotal, f)
	addMetric(metrics, &invalid, "throttle.produceTimeMs", brokerProduceThrottleMs, f)
	addMetric(metrics, &invalid, "throttle.fetchTimeMs", brokerFetchThrottleMs, f)
	addMetric(metrics, &invalid, "throttle.requestTimeMs", brokerReqThrottleMs, f)
	addMetric(metrics, &invalid, "request.fetchRequestsPerSecond", brokerFetchRequestsPerSec, f)
	addMetric(metrics, &invalid, "request.produceRequestsPerSecond", brokerProduceRequestsPerSec, f)
	addMetric(metrics, &invalid, "partitionCount", brokerPartitionCount, f)
	addMetric(metrics, &invalid, "leaderCount", brokerLeaderCount, f)
	addMetric(metrics, &invalid, "cluster.offlinePartitionsCount", brokerOfflinePartitions, f)
	addMetric(metrics, &invalid, "request.latency", brokerRequestLatencyMs, f)

	deriveThroughputTotal(metrics)
	deriveByteUnits(metrics)
	cleanZeroAndNaN(metrics)

	if invalid > 0 {
		log.Warn("transform: broker %s had %d metric(s) dropped for invalid value", guid, invalid)
	}

	return udm.Event{
		EventType:   udm.EventBrokerSample,
		EntityGUID:  guid,
		GUID:        guid,
		Timestamp:   time.Now(),
		Provider:    string(t.Provider),
		ClusterName: clusterName,
		Identity: map[string]any{
			"broker.id": brokerIDStr,
			"hostname":  id.Hostname,
		},
		Metrics: metrics,
	}, invalid, nil
}

func (t *Transformer) normalizeTopic(sample RawSample) (udm.Event, int, error) {
	f := sample.Fields

	name, ok := topicName.String(f)
	clusterName, _ := fieldmapClusterName(f)
	if !ok || clusterName == "" {
		return udm.Event{}, 0, fmt.Errorf("%w: topic sample missing topic or clusterName", errs.ErrInvalidMetric)
	}

	partitionCount, _ := topicPartitionCount.Int(f)
	replication, _ := topicReplication.Int(f)
	if partitionCount == 0 {
		partitionCount = 1
	}
	if replication == 0 {
		replication = 1
	}

	id := entity.TopicIdentity{
		Topic:             name,
		ClusterName:       clusterName,
		Provider:          t.Provider,
		PartitionCount:    int(partitionCount),
		ReplicationFactor: int(replication),
	}
	guid := entity.GUIDFor(t.AccountID, id)

	metrics := map[string]float64{}
	invalid := 0

	addMetric(metrics, &invalid, "throughput.in.bytesPerSecond", topicBytesIn, f)
	addMetric(metrics, &invalid, "throughput.out.bytesPerSecond", topicBytesOut, f)
	addMetric(metrics, &invalid, "throughput.in.messagesPerSecond", topicMessagesIn, f)
	addMetric(metrics, &invalid, "bytes.rejected.perSecond", topicBytesRejected, f)
	addMetric(metrics, &invalid, "partitionCount", topicPartitionCount, f)
	addMetric(metrics, &invalid, "replicationFactor", topicReplication, f)
	addMetric(metrics, &invalid, "minInSyncReplicas", topicMinISR, f)
	addMetric(metrics, &invalid, "underReplicatedPartitions", topicUnderReplicated, f)
	addMetric(metrics, &invalid, "size.bytes", topicSizeBytes, f)
	addMetric(metrics, &invalid, "consumer.lag", topicConsumerLag, f)
	addMetric(metrics, &invalid, "error.rate", topicErrorRate, f)
	addMetric(metrics, &invalid, "retention.ms", topicRetentionMs, f)
	addMetric(metrics, &invalid, "leaderCount", topicLeaderCount, f)
	addMetric(metrics, &invalid, "inSyncReplicaCount", topicISRCount, f)
	addMetric(metrics, &invalid, "request.produceRate", topicProduceRate, f)
	addMetric(metrics, &invalid, "request.fetchRate", topicFetchRate, f)
	addMetric(metrics, &invalid, "segmentCount", topicSegmentCount, f)

	deriveThroughputTotal(metrics)
	deriveByteUnits(metrics)
	cleanZeroAndNaN(metrics)

	if invalid > 0 {
		log.Warn("transform: topic %s had %d metric(s) dropped for invalid value", guid, invalid)
	}

	return udm.Event{
		EventType:   udm.EventTopicSample,
		EntityGUID:  guid,
		GUID:        guid,
		Timestamp:   time.Now(),
		Provider:    string(t.Provider),
		ClusterName: clusterName,
		Identity: map[string]any{
			"topic":             name,
			"partitionCount":    partitionCount,
			"replicationFactor": replication,
		},
		Metrics: metrics,
	}, invalid, nil
}

func (t *Transformer) normalizeConsumerGroup(sample RawSample) (udm.Event, int, error) {
	f := sample.Fields

	groupID, ok := consumerGroupID.String(f)
	clusterName, _ := fieldmapClusterName(f)
	topic, _ := consumerTopic.String(f)
	if !ok || clusterName == "" {
		return udm.Event{}, 0, fmt.Errorf("%w: consumer sample missing consumer.group.id or clusterName", errs.ErrInvalidMetric)
	}

	topics := []string{}
	if topic != "" {
		topics = append(topics, topic)
	} else {
		topics = append(topics, "unknown")
	}

	id := entity.ConsumerGroupIdentity{
		ConsumerGroupID: groupID,
		ClusterName:     clusterName,
		Provider:        t.Provider,
		Topics:          topics,
	}
	guid := entity.GUIDFor(t.AccountID, id)

	metrics := map[string]float64{}
	invalid := 0

	addMetric(metrics, &invalid, "totalLag", consumerTotalLag, f)
	addMetric(metrics, &invalid, "maxLag", consumerMaxLag, f)
	addMetric(metrics, &invalid, "avgLag", consumerAvgLag, f)
	addMetric(metrics, &invalid, "memberCount", consumerMemberCount, f)
	addMetric(metrics, &invalid, "messageConsumptionRate", consumerConsumptionRate, f)
	addMetric(metrics, &invalid, "rebalanceRate", consumerRebalanceRate, f)
	addMetric(metrics, &invalid, "fetchRate", consumerFetchRate, f)
	addMetric(metrics, &invalid, "bytesConsumedRate", consumerBytesConsumedRate, f)
	addMetric(metrics, &invalid, "recordsConsumedRate", consumerRecordsConsumedRate, f)
	addMetric(metrics, &invalid, "commitRate", consumerCommitRate, f)
	addMetric(metrics, &invalid, "commitLatencyAvg", consumerCommitLatencyAvg, f)
	addMetric(metrics, &invalid, "joinRate", consumerJoinRate, f)
	addMetric(metrics, &invalid, "syncRate", consumerSyncRate, f)
	addMetric(metrics, &invalid, "heartbeatRate", consumerHeartbeatRate, f)
	addMetric(metrics, &invalid, "failedRebalances", consumerFailedRebalances, f)
	addMetric(metrics, &invalid, "lastRebalanceSecondsAgo", consumerLastRebalanceSecondsAgo, f)
	addMetric(metrics, &invalid, "assignedPartitions", consumerAssignedPartitions, f)
	addMetric(metrics, &invalid, "pollIdleRatioAvg", consumerPollIdleRatio, f)
	addMetric(metrics, &invalid, "fetchSizeAvg", consumerFetchSizeAvg, f)
	addMetric(metrics, &invalid, "recordsPerRequestAvg", consumerRecordsPerRequestAvg, f)

	cleanZeroAndNaN(metrics)

	identity := map[string]any{
		"consumerGroupId": groupID,
		"topics":          topics,
	}
	if state, ok := consumerState.String(f); ok {
		identity["state"] = state
	}
	// coordinator.id is optional; when absent it is omitted entirely and
	// the orchestrator skips the COORDINATED_BY edge.
	if coordID, ok := consumerCoordinatorID.String(f); ok {
		identity["coordinator.id"] = coordID
	}
	if strat, ok := consumerAssignmentStrategy.String(f); ok {
		identity["assignmentStrategy"] = strat
	}

	if invalid > 0 {
		log.Warn("transform: consumer group %s had %d metric(s) dropped for invalid value", guid, invalid)
	}

	return udm.Event{
		EventType:   udm.EventConsumerSample,
		EntityGUID:  guid,
		GUID:        guid,
		Timestamp:   time.Now(),
		Provider:    string(t.Provider),
		ClusterName: clusterName,
		Identity:    identity,
		Metrics:     metrics,
	}, invalid, nil
}

func (t *Transformer) normalizeOffset(sample RawSample) (udm.Event, int, error) {
	f := sample.Fields

	groupID, ok := consumerGroupID.String(f)
	clusterName, _ := fieldmapClusterName(f)
	topic, okTopic := consumerTopic.String(f)
	if !ok || !okTopic || clusterName == "" {
		return udm.Event{}, 0, fmt.Errorf("%w: offset sample missing group/topic/clusterName", errs.ErrInvalidMetric)
	}

	partition, _ := offsetPartition.Int(f)

	id := entity.ConsumerGroupIdentity{
		ConsumerGroupID: groupID,
		ClusterName:     clusterName,
		Provider:        t.Provider,
		Topics:          []string{topic},
	}
	guid := entity.GUIDFor(t.AccountID, id)

	metrics := map[string]float64{}
	invalid := 0

	addMetric(metrics, &invalid, "consumerOffset", offsetConsumerOffset, f)
	addMetric(metrics, &invalid, "highWaterMark", offsetHighWaterMark, f)
	addMetric(metrics, &invalid, "lag", offsetLag, f)
	addMetric(metrics, &invalid, "partition", offsetPartition, f)

	cleanZeroAndNaN(metrics)

	if invalid > 0 {
		log.Warn("transform: offset sample %s/%s/%d had %d metric(s) dropped", groupID, topic, partition, invalid)
	}

	return udm.Event{
		EventType:   udm.EventOffsetSample,
		EntityGUID:  guid,
		GUID:        guid,
		Timestamp:   time.Now(),
		Provider:    string(t.Provider),
		ClusterName: clusterName,
		Identity: map[string]any{
			"consumerGroupId": groupID,
			"topic":           topic,
			"partition":       partition,
		},
		Metrics: metrics,
	}, invalid, nil
}
