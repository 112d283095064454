package transform

import "github.com/newrelic/mq-telemetry-pipeline/internal/fieldmap"

// Broker fallback chains: every vendor spelling observed for a logical
// field, primary name first (agent-style dotted names, JMX bean names,
// flat legacy names).
var (
	brokerBytesIn = fieldmap.NewChain(
		"broker.bytesInPerSecond",
		"bytesInPerSecOneMinuteRate",
		"broker_bytesInPerSecond",
		"broker.IOInPerSec",
		"bytesInPerSecond",
		"net.bytesInPerSec",
		"kafka.server.BrokerTopicMetrics.BytesInPerSec",
	)
	brokerBytesOut = fieldmap.NewChain(
		"broker.bytesOutPerSecond",
		"bytesOutPerSecOneMinuteRate",
		"broker.IOOutPerSec",
		"net.bytesOutPerSec",
		"kafka.server.BrokerTopicMetrics.BytesOutPerSec",
	)
	brokerMessagesIn = fieldmap.NewChain(
		"broker.messagesInPerSecond",
		"messagesInPerSecOneMinuteRate",
		"broker.messagesInPerSec",
		"kafka.server.BrokerTopicMetrics.MessagesInPerSec",
	)
	brokerBytesRejected = fieldmap.NewChain(
		"broker.bytesRejectedPerSecond",
		"bytesRejectedPerSecOneMinuteRate",
		"kafka.server.BrokerTopicMetrics.BytesRejectedPerSec",
	)
	brokerTopicBytesOut = fieldmap.NewChain(
		"broker.bytesReadFromTopicPerSecond",
		"kafka.server.BrokerTopicMetrics.ReplicationBytesOutPerSec",
	)
	brokerTopicMessagesIn = fieldmap.NewChain(
		"broker.messagesProducedToTopicPerSecond",
	)

	brokerFetchConsumerLocalTimeMs    = fieldmap.NewChain("broker.fetchConsumerLocalTimeMs", "fetchConsumerLocalTimeMs")
	brokerFetchConsumerQueueTimeMs    = fieldmap.NewChain("broker.fetchConsumerRequestQueueTimeMs", "fetchConsumerRequestQueueTimeMs")
	brokerFetchConsumerSendTimeMs     = fieldmap.NewChain("broker.fetchConsumerResponseSendTimeMs", "fetchConsumerResponseSendTimeMs")
	brokerFetchConsumerTotalTimeMs    = fieldmap.NewChain("broker.fetchConsumerTotalTimeMs", "fetchConsumerTotalTimeMs")
	brokerProduceLocalTimeMs          = fieldmap.NewChain("broker.produceLocalTimeMs", "produceLocalTimeMs")
	brokerProduceQueueTimeMs          = fieldmap.NewChain("broker.produceRequestQueueTimeMs", "produceRequestQueueTimeMs")
	brokerProduceSendTimeMs           = fieldmap.NewChain("broker.produceResponseSendTimeMs", "produceResponseSendTimeMs")
	brokerProduceTotalTimeMs          = fieldmap.NewChain("broker.produceTotalTimeMs", "produceTotalTimeMs")

	brokerUnderReplicated      = fieldmap.NewChain("broker.underReplicatedPartitions", "kafka.server.ReplicaManager.UnderReplicatedPartitions")
	brokerISRShrinks           = fieldmap.NewChain("replication.isrShrinksPerSecond", "kafka.server.ReplicaManager.IsrShrinksPerSec")
	brokerISRExpands           = fieldmap.NewChain("replication.isrExpandsPerSecond", "kafka.server.ReplicaManager.IsrExpandsPerSec")
	brokerLeaderElectionRate   = fieldmap.NewChain("replication.leaderElectionPerSecond")
	brokerUncleanLeaderElect   = fieldmap.NewChain("replication.uncleanLeaderElectionPerSecond")

	brokerRequestHandlerIdle = fieldmap.NewChain("broker.requestHandlerAvgIdlePercent")
	brokerNetworkProcIdle    = fieldmap.NewChain("broker.networkProcessorAvgIdlePercent")

	brokerCPUUser   = fieldmap.NewChain("broker.cpuUser", "broker.cpuPercent", "system.cpuUser")
	brokerCPUSystem = fieldmap.NewChain("broker.cpuSystem", "system.cpuSystem")
	brokerCPUIdle   = fieldmap.NewChain("broker.cpuIdle", "system.cpuIdle")
	brokerMemUsed   = fieldmap.NewChain("broker.memoryUsed", "broker.memoryPercent", "system.memoryUsed")
	brokerMemTotal  = fieldmap.NewChain("broker.memoryTotal", "system.memoryTotal")
	brokerDiskUsed  = fieldmap.NewChain("broker.diskUsed", "system.diskUsed")
	brokerDiskTotal = fieldmap.NewChain("broker.diskTotal", "system.diskTotal")

	brokerProduceThrottleMs = fieldmap.NewChain("broker.produceThrottleTimeMs")
	brokerFetchThrottleMs   = fieldmap.NewChain("broker.fetchThrottleTimeMs")
	brokerReqThrottleMs     = fieldmap.NewChain("broker.requestThrottleTimeMs")

	brokerFetchRequestsPerSec   = fieldmap.NewChain("broker.totalFetchRequestsPerSecond")
	brokerProduceRequestsPerSec = fieldmap.NewChain("broker.totalProduceRequestsPerSecond")

	brokerPartitionCount      = fieldmap.NewChain("broker.partitionCount")
	brokerLeaderCount         = fieldmap.NewChain("broker.leaderCount")
	brokerOfflinePartitions   = fieldmap.NewChain("cluster.offlinePartitionsCount")
	brokerIsController        = fieldmap.NewChain("broker.isController", "broker.ActiveControllerCount")
	brokerRequestLatencyMs    = fieldmap.NewChain("broker.requestLatencyMs", "request.avgTimeFetch", "request.avgTimeProduceRequest")
	brokerID                  = fieldmap.NewChain("broker.id", "brokerId")
	brokerHostname            = fieldmap.NewChain("broker.host", "broker.hostname", "hostname")
)

// Topic fallback chains.
var (
	topicBytesIn        = fieldmap.NewChain("topic.bytesInPerSecond", "kafka.topic.bytesInPerSec")
	topicBytesOut       = fieldmap.NewChain("topic.bytesOutPerSecond", "kafka.topic.bytesOutPerSec")
	topicMessagesIn     = fieldmap.NewChain("topic.messagesInPerSecond", "kafka.topic.messagesInPerSec")
	topicBytesRejected  = fieldmap.NewChain("topic.bytesRejectedPerSecond")
	topicPartitionCount = fieldmap.NewChain("topic.partitionCount", "partitionCount")
	topicReplication    = fieldmap.NewChain("topic.replicationFactor", "replicationFactor")
	topicMinISR         = fieldmap.NewChain("topic.minInSyncReplicas")
	topicUnderReplicated = fieldmap.NewChain("topic.underReplicatedPartitions")
	topicSizeBytes      = fieldmap.NewChain("topic.sizeInBytes")
	topicName           = fieldmap.NewChain("topic.name", "topic", "topicName")
	topicConsumerLag    = fieldmap.NewChain("topic.consumerLag", "consumer.lag", "consumerLag")
	topicErrorRate      = fieldmap.NewChain("topic.errorRate", "error.rate")
	topicRetentionMs    = fieldmap.NewChain("topic.retentionMs", "config.retention.ms")
	topicCleanupPolicy  = fieldmap.NewChain("topic.cleanupPolicy", "config.cleanup.policy")
	topicLeaderCount    = fieldmap.NewChain("topic.leaderCount")
	topicISRCount       = fieldmap.NewChain("topic.inSyncReplicaCount")
	topicCompressionType = fieldmap.NewChain("topic.compressionType", "config.compression.type")
	topicProduceRate    = fieldmap.NewChain("topic.produceRequestRate")
	topicFetchRate      = fieldmap.NewChain("topic.fetchRequestRate")
	topicSegmentCount   = fieldmap.NewChain("topic.segmentCount")
)

// ConsumerGroup fallback chains, covering both broker-side group fields
// and client-side MBean attribute names.
var (
	consumerGroupID       = fieldmap.NewChain("consumer.group.id", "consumerGroup", "groupId")
	consumerTopic         = fieldmap.NewChain("consumer.topic", "topic")
	consumerTotalLag      = fieldmap.NewChain("consumer.totalLag", "totalLag", "consumer.lag.total")
	consumerMaxLag        = fieldmap.NewChain("consumer.maxLag", "maxLag")
	consumerAvgLag        = fieldmap.NewChain("consumer.avgLag", "avgLag")
	consumerMemberCount   = fieldmap.NewChain("consumer.memberCount", "consumer.activeConsumers", "memberCount")
	consumerConsumptionRate = fieldmap.NewChain("consumer.messageConsumptionRate", "messageConsumptionRate")
	consumerRebalanceRate = fieldmap.NewChain("consumer.rebalanceRate", "rebalanceRate")
	consumerState         = fieldmap.NewChain("consumer.state", "state")
	consumerCoordinatorID = fieldmap.NewChain("consumer.coordinator.id", "coordinator.id")
	consumerAssignmentStrategy = fieldmap.NewChain("consumer.assignmentStrategy", "partition.assignment.strategy")
	consumerFetchRate     = fieldmap.NewChain("consumer.fetchRate", "consumer.fetch.rate")
	consumerBytesConsumedRate = fieldmap.NewChain("consumer.bytesConsumedRate", "bytes-consumed-rate")
	consumerRecordsConsumedRate = fieldmap.NewChain("consumer.recordsConsumedRate", "records-consumed-rate")
	consumerCommitRate    = fieldmap.NewChain("consumer.commitRate", "commit-rate")
	consumerCommitLatencyAvg = fieldmap.NewChain("consumer.commitLatencyAvg", "commit-latency-avg")
	consumerJoinRate      = fieldmap.NewChain("consumer.joinRate", "join-rate")
	consumerSyncRate      = fieldmap.NewChain("consumer.syncRate", "sync-rate")
	consumerHeartbeatRate = fieldmap.NewChain("consumer.heartbeatRate", "heartbeat-rate")
	consumerFailedRebalances = fieldmap.NewChain("consumer.failedRebalances", "failed-rebalance-total")
	consumerLastRebalanceSecondsAgo = fieldmap.NewChain("consumer.lastRebalanceSecondsAgo", "last-rebalance-seconds-ago")
	consumerAssignedPartitions = fieldmap.NewChain("consumer.assignedPartitions", "assigned-partitions")
	consumerPollIdleRatio = fieldmap.NewChain("consumer.pollIdleRatioAvg", "poll-idle-ratio-avg")
	consumerFetchSizeAvg  = fieldmap.NewChain("consumer.fetchSizeAvg", "fetch-size-avg")
	consumerRecordsPerRequestAvg = fieldmap.NewChain("consumer.recordsPerRequestAvg", "records-per-request-avg")
)

// Offset fallback chains.
var (
	offsetPartition     = fieldmap.NewChain("offset.partition", "partition")
	offsetConsumerOffset = fieldmap.NewChain("offset.consumerOffset", "consumerOffset", "current-offset")
	offsetHighWaterMark = fieldmap.NewChain("offset.highWaterMark", "highWaterMark", "log-end-offset")
	offsetLag           = fieldmap.NewChain("offset.lag", "lag")
)
