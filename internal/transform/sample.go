// Package transform normalizes raw vendor samples into UDM events. Each
// sample category (broker, topic, consumer, offset) has its own
// normalize function built from fieldmap.Chain lookups, so
// version-tolerant field mapping is data, not control flow.
package transform

// RawSample is the untyped attribute bag a Collector produces.
// EventType discriminates which transform path applies.
type RawSample struct {
	EventType string
	Fields    map[string]any
}

// RawEventType enumerates the recognized incoming sample shapes.
const (
	RawKafkaBrokerSample   = "KafkaBrokerSample"
	RawKafkaTopicSample    = "KafkaTopicSample"
	RawKafkaConsumerSample = "KafkaConsumerSample"
	RawKafkaOffsetSample   = "KafkaOffsetSample"
)
