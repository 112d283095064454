package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
)

type fakeSource struct {
	brokers    []brokerMeta
	topics     []topicMeta
	groups     []groupMeta
	offsets    map[string][]offsetMeta
	brokersErr error
	closed     bool
}

func (f *fakeSource) Brokers() ([]brokerMeta, error) { return f.brokers, f.brokersErr }
func (f *fakeSource) Topics() ([]topicMeta, error)   { return f.topics, nil }
func (f *fakeSource) Groups() ([]groupMeta, error)   { return f.groups, nil }
func (f *fakeSource) GroupOffsets(group string) ([]offsetMeta, error) {
	return f.offsets[group], nil
}
func (f *fakeSource) Close() error { f.closed = true; return nil }

func TestInfra_Fetch_EmitsBrokerTopicConsumerAndOffsetSamples(t *testing.T) {
	src := &fakeSource{
		brokers: []brokerMeta{{ID: 1, Host: "kafka-a", Port: 9092}},
		topics: []topicMeta{{
			Name:              "orders",
			PartitionCount:    3,
			ReplicationFactor: 2,
			LeadersByBroker:   map[int32]int{1: 3},
			ReplicasByBroker:  map[int32]int{1: 6},
		}},
		groups: []groupMeta{{ID: "orders-cg", State: "Stable", Members: 2}},
		offsets: map[string][]offsetMeta{
			"orders-cg": {
				{Topic: "orders", Partition: 0, Offset: 90, HighWaterMark: 100},
				{Topic: "orders", Partition: 1, Offset: 100, HighWaterMark: 100},
			},
		},
	}
	infra := newInfraWith("prod", src, clock.NewFake(time.Now()))

	ch, err := infra.Fetch(context.Background(), 5*time.Minute)
	require.NoError(t, err)

	byType := map[string][]transform.RawSample{}
	for s := range ch {
		byType[s.EventType] = append(byType[s.EventType], s)
	}

	require.Len(t, byType[transform.RawKafkaBrokerSample], 1)
	broker := byType[transform.RawKafkaBrokerSample][0]
	assert.Equal(t, int32(1), broker.Fields["broker.id"])
	assert.Equal(t, "kafka-a", broker.Fields["broker.host"])
	assert.Equal(t, "prod", broker.Fields["clusterName"])
	assert.Equal(t, float64(6), broker.Fields["broker.partitionCount"])
	assert.Equal(t, float64(3), broker.Fields["broker.leaderCount"])

	require.Len(t, byType[transform.RawKafkaTopicSample], 1)
	topic := byType[transform.RawKafkaTopicSample][0]
	assert.Equal(t, "orders", topic.Fields["topic"])
	assert.Equal(t, 3, topic.Fields["topic.partitionCount"])
	assert.Equal(t, 2, topic.Fields["topic.replicationFactor"])

	require.Len(t, byType[transform.RawKafkaConsumerSample], 1)
	consumer := byType[transform.RawKafkaConsumerSample][0]
	assert.Equal(t, "orders-cg", consumer.Fields["consumer.group.id"])
	assert.Equal(t, float64(10), consumer.Fields["consumer.totalLag"])
	assert.Equal(t, float64(10), consumer.Fields["consumer.maxLag"])
	assert.Equal(t, float64(5), consumer.Fields["consumer.avgLag"])
	assert.Equal(t, 2, consumer.Fields["consumer.memberCount"])

	require.Len(t, byType[transform.RawKafkaOffsetSample], 2)
	offset := byType[transform.RawKafkaOffsetSample][0]
	assert.Equal(t, "orders-cg", offset.Fields["consumer.group.id"])
	assert.Equal(t, "orders", offset.Fields["consumer.topic"])
}

func TestInfra_Fetch_BrokerListFailureIsSourceUnavailable(t *testing.T) {
	src := &fakeSource{brokersErr: errors.New("no reachable brokers")}
	infra := newInfraWith("prod", src, nil)

	_, err := infra.Fetch(context.Background(), time.Minute)
	require.Error(t, err)
}

func TestInfra_Close_ReleasesSource(t *testing.T) {
	src := &fakeSource{}
	infra := newInfraWith("prod", src, nil)
	require.NoError(t, infra.Close())
	assert.True(t, src.closed)
}

func TestOffsetMeta_LagNeverNegative(t *testing.T) {
	assert.Equal(t, float64(0), offsetMeta{Offset: -1, HighWaterMark: 50}.lag())
	assert.Equal(t, float64(0), offsetMeta{Offset: 60, HighWaterMark: 50}.lag())
	assert.Equal(t, float64(10), offsetMeta{Offset: 40, HighWaterMark: 50}.lag())
}

func TestZkBrokerEntry_AddrFallsBackToEndpoints(t *testing.T) {
	assert.Equal(t, "h1:9092", zkBrokerEntry{Host: "h1", Port: 9092}.addr())
	assert.Equal(t, "h2:9093", zkBrokerEntry{Endpoints: []string{"SASL_SSL://h2:9093"}}.addr())
	assert.Equal(t, "", zkBrokerEntry{}.addr())
}

func TestMulti_MergesStreamsAndSurvivesOneDeadSource(t *testing.T) {
	good := collectorFunc(func(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
		ch := make(chan transform.RawSample, 2)
		ch <- transform.RawSample{EventType: transform.RawKafkaBrokerSample}
		ch <- transform.RawSample{EventType: transform.RawKafkaTopicSample}
		close(ch)
		return ch, nil
	})
	dead := collectorFunc(func(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
		return nil, errors.New("unreachable")
	})

	ch, err := NewMulti(good, dead).Fetch(context.Background(), time.Minute)
	require.NoError(t, err)

	var count int
	for range ch {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestMulti_AllSourcesFailingSurfacesError(t *testing.T) {
	dead := collectorFunc(func(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
		return nil, errors.New("unreachable")
	})
	_, err := NewMulti(dead, dead).Fetch(context.Background(), time.Minute)
	require.Error(t, err)
}

type collectorFunc func(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error)

func (f collectorFunc) Fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
	return f(ctx, since)
}
