package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGUIDFor_Determinism(t *testing.T) {
	id := ClusterIdentity{ClusterName: "prod", Provider: ProviderKafka}

	first := GUIDFor(12345, id)
	second := GUIDFor(12345, id)

	assert.Equal(t, first, second, "equal identity tuples must yield equal GUIDs")
	assert.Equal(t, "MESSAGE_QUEUE_CLUSTER|12345|kafka|prod", first)
}

func TestGUIDFor_BrokerFormat(t *testing.T) {
	id := BrokerIdentity{
		BrokerID:    "7",
		Hostname:    "broker7.internal",
		ClusterName: "prod",
		Provider:    ProviderKafka,
		Port:        9092,
	}

	got := GUIDFor(12345, id)
	assert.Equal(t, "MESSAGE_QUEUE_BROKER|12345|kafka|prod|7", got)
}

func TestGUIDFor_EmptySegmentsOmitted(t *testing.T) {
	// region is not part of ClusterIdentity.Parts() at all, so a cluster
	// with no extra identifiers collapses to just the name segment.
	id := ClusterIdentity{ClusterName: "kafka-1", Provider: ProviderKafka}
	got := GUIDFor(12345, id)
	assert.Equal(t, "MESSAGE_QUEUE_CLUSTER|12345|kafka|kafka-1", got)
}

func TestGUIDFor_AWSMSKLegacyStyle(t *testing.T) {
	id := ClusterIdentity{ClusterName: "prod", Provider: ProviderAWSMSK}
	got := GUIDFor(12345, id)
	assert.Contains(t, got, "12345|INFRA|MESSAGE_QUEUE_CLUSTER|")
	assert.NotContains(t, got, "kafka")
}

func TestClusterIdentity_Validate(t *testing.T) {
	tests := []struct {
		name    string
		id      ClusterIdentity
		wantErr bool
	}{
		{"valid", ClusterIdentity{ClusterName: "prod-east", Provider: ProviderKafka}, false},
		{"uppercase rejected", ClusterIdentity{ClusterName: "Prod", Provider: ProviderKafka}, true},
		{"missing provider", ClusterIdentity{ClusterName: "prod"}, true},
		{"too long", ClusterIdentity{ClusterName: string(make([]byte, 64)), Provider: ProviderKafka}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBrokerIdentity_Validate_PortRange(t *testing.T) {
	base := BrokerIdentity{BrokerID: "1", Hostname: "h", ClusterName: "prod", Provider: ProviderKafka}

	base.Port = 0
	assert.Error(t, base.Validate(), "port below range must be rejected")

	base.Port = 65536
	assert.Error(t, base.Validate(), "port above range must be rejected")

	base.Port = 9092
	assert.NoError(t, base.Validate())
}

func TestTopicIdentity_Validate_PartitionCount(t *testing.T) {
	base := TopicIdentity{Topic: "orders", ClusterName: "prod", Provider: ProviderKafka, ReplicationFactor: 1}

	base.PartitionCount = 0
	assert.Error(t, base.Validate(), "partitionCount = 0 must be rejected")

	base.PartitionCount = 3
	assert.NoError(t, base.Validate())
}

func TestQueueIdentity_Validate_FIFOSuffix(t *testing.T) {
	q := QueueIdentity{QueueName: "orders", Provider: ProviderSQS, QueueType: QueueTypeFIFO}
	assert.Error(t, q.Validate(), "fifo queue without .fifo suffix must be rejected")

	q.QueueName = "orders.fifo"
	assert.NoError(t, q.Validate())
}

func TestConsumerGroupIdentity_Validate_RequiresTopics(t *testing.T) {
	g := ConsumerGroupIdentity{ConsumerGroupID: "g1", ClusterName: "prod", Provider: ProviderKafka}
	assert.Error(t, g.Validate())

	g.Topics = []string{"orders"}
	assert.NoError(t, g.Validate())
}

func TestEntity_IsHealthy_Cluster(t *testing.T) {
	e := &Entity{
		Header: Header{
			EntityType: KindCluster,
			Golden: []GoldenMetric{
				{Name: "health.score", Value: 95},
				{Name: "error.rate", Value: 1},
				{Name: "availability", Value: 99},
			},
		},
	}
	assert.True(t, e.IsHealthy(0))

	e.Golden[1].Value = 10 // error.rate >= 5
	assert.False(t, e.IsHealthy(0))
}

func TestEntity_IsHealthy_TopicImbalance(t *testing.T) {
	e := &Entity{
		Header: Header{
			EntityType: KindTopic,
			Golden: []GoldenMetric{
				{Name: "consumer.lag", Value: 10},
				{Name: "error.rate", Value: 0},
				{Name: "throughput.in", Value: 100},
				{Name: "throughput.out", Value: 10}, // > 50% imbalance
			},
		},
	}
	assert.False(t, e.IsHealthy(0))
}

func TestEntity_IsHealthy_ConsumerGroupRequiresStable(t *testing.T) {
	e := &Entity{
		Header: Header{
			EntityType: KindConsumerGroup,
			Golden: []GoldenMetric{
				{Name: "maxLag", Value: 100},
				{Name: "memberCount", Value: 3},
			},
			Metadata: map[string]any{"state": "REBALANCING"},
		},
	}
	assert.False(t, e.IsHealthy(10000))

	e.Metadata["state"] = "STABLE"
	assert.True(t, e.IsHealthy(10000))
}
