package transform

import (
	"testing"

	"github.com/newrelic/mq-telemetry-pipeline/internal/entity"
	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Broker_SchemaDrift(t *testing.T) {
	// No broker.bytesInPerSecond field, only the net.bytesInPerSec
	// fallback; transformer must still resolve throughput.in.bytesPerSecond.
	tr := New(12345, entity.ProviderKafka)
	sample := RawSample{
		EventType: RawKafkaBrokerSample,
		Fields: map[string]any{
			"broker.id":         3,
			"clusterName":       "c1",
			"net.bytesInPerSec": 1500.0,
		},
	}

	event, dropped, err := tr.Normalize(sample)
	require.NoError(t, err)
	assert.Equal(t, 0, dropped, "a resolved fallback is not an invalid metric")
	assert.Equal(t, 1500.0, event.Metrics["throughput.in.bytesPerSecond"])
	assert.NotEmpty(t, event.EntityGUID)
}

func TestNormalize_Broker_NaNMetricDropped(t *testing.T) {
	// Non-numeric messagesInPerSecond must be dropped, not fail the
	// whole sample; the event is still emitted and the drop is reported
	// in the returned count.
	tr := New(12345, entity.ProviderKafka)
	sample := RawSample{
		EventType: RawKafkaBrokerSample,
		Fields: map[string]any{
			"broker.id":                  1,
			"clusterName":                "c1",
			"broker.messagesInPerSecond": "not a number",
		},
	}

	event, dropped, err := tr.Normalize(sample)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped, "the unparseable field must be counted")
	_, present := event.Metrics["throughput.in.messagesPerSecond"]
	assert.False(t, present, "unparseable metric must be absent from the emitted event")
}

func TestNormalize_UnrecognizedEventType(t *testing.T) {
	tr := New(12345, entity.ProviderKafka)
	_, _, err := tr.Normalize(RawSample{EventType: "BogusSample", Fields: map[string]any{}})
	assert.Error(t, err)
}

func TestNormalize_Broker_MissingIdentityIsInvalidMetric(t *testing.T) {
	tr := New(12345, entity.ProviderKafka)
	_, _, err := tr.Normalize(RawSample{EventType: RawKafkaBrokerSample, Fields: map[string]any{}})
	assert.ErrorIs(t, err, errs.ErrInvalidMetric, "a recognized type with no usable identity still must error, not silently succeed")
}

func TestNormalize_Broker_DerivesThroughputTotal(t *testing.T) {
	tr := New(12345, entity.ProviderKafka)
	sample := RawSample{
		EventType: RawKafkaBrokerSample,
		Fields: map[string]any{
			"broker.id":                3,
			"clusterName":              "c1",
			"broker.bytesInPerSecond":  100.0,
			"broker.bytesOutPerSecond": 50.0,
		},
	}
	event, _, err := tr.Normalize(sample)
	require.NoError(t, err)
	assert.Equal(t, 150.0, event.Metrics["throughput.total.bytesPerSecond"])
}

func TestNormalize_Topic_PreservesGUIDAcrossReTransform(t *testing.T) {
	// normalize(sample derived from entity E) must preserve E's GUID.
	tr := New(12345, entity.ProviderKafka)
	sample := RawSample{
		EventType: RawKafkaTopicSample,
		Fields: map[string]any{
			"topic":                  "orders",
			"clusterName":            "c1",
			"topic.partitionCount":   3,
			"topic.replicationFactor": 2,
		},
	}

	first, _, err := tr.Normalize(sample)
	require.NoError(t, err)
	second, _, err := tr.Normalize(sample)
	require.NoError(t, err)

	assert.Equal(t, first.EntityGUID, second.EntityGUID)
}

func TestNormalize_ConsumerGroup_OmitsCoordinatorWhenAbsent(t *testing.T) {
	tr := New(12345, entity.ProviderKafka)
	sample := RawSample{
		EventType: RawKafkaConsumerSample,
		Fields: map[string]any{
			"consumer.group.id": "g1",
			"clusterName":       "c1",
			"consumer.topic":    "orders",
		},
	}
	event, _, err := tr.Normalize(sample)
	require.NoError(t, err)
	_, present := event.Identity["coordinator.id"]
	assert.False(t, present, "coordinator.id must be omitted entirely when the source sample lacks it")
}

func TestNormalize_Offset_Basic(t *testing.T) {
	tr := New(12345, entity.ProviderKafka)
	sample := RawSample{
		EventType: RawKafkaOffsetSample,
		Fields: map[string]any{
			"consumer.group.id": "g1",
			"clusterName":       "c1",
			"consumer.topic":    "orders",
			"offset.partition":  2,
			"offset.lag":        10.0,
		},
	}
	event, _, err := tr.Normalize(sample)
	require.NoError(t, err)
	assert.Equal(t, 10.0, event.Metrics["lag"])
}
