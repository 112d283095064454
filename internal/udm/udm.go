// Package udm defines the Unified Data Model event shapes. All four
// shapes share a common envelope of identity/timestamp fields plus a
// flat numeric-metric mapping, so a single envelope struct serves every
// event type instead of one ad hoc map per transform function.
package udm

import (
	"encoding/json"
	"time"
)

// EventType enumerates the four UDM event shapes.
type EventType string

const (
	EventBrokerSample   EventType = "MessageQueueBrokerSample"
	EventTopicSample    EventType = "MessageQueueTopicSample"
	EventOffsetSample   EventType = "MessageQueueOffsetSample"
	EventConsumerSample EventType = "MessageQueueConsumerSample"
	EventMessageQueue   EventType = "MessageQueue"
)

// Event is the single envelope every UDM shape uses: a shared identity
// header plus a flat numeric-metric mapping. The EventType discriminates
// which logical shape the Metrics/Identity fields conform to.
type Event struct {
	EventType EventType `json:"eventType"`

	// EntityGUID is the canonical GUID. GUID is a compatibility alias
	// carrying the same value for consumers that still read the older
	// field name.
	EntityGUID string `json:"entityGuid"`
	GUID       string `json:"guid"`

	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	ClusterName string    `json:"clusterName"`

	// Identity carries the shape-specific identity fields (brokerId,
	// topic, consumerGroupId, partition, ...) alongside the envelope.
	Identity map[string]any `json:"-"`

	// Metrics is the flat numeric-metric mapping; zero/NaN values are
	// elided before publication.
	Metrics map[string]float64 `json:"-"`
}

// MarshalJSON flattens Identity and Metrics alongside the envelope
// fields into the single flat object the ingest endpoints accept.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := map[string]any{
		"eventType":   e.EventType,
		"entityGuid":  e.EntityGUID,
		"guid":        e.GUID,
		"timestamp":   e.Timestamp.UnixMilli(),
		"provider":    e.Provider,
		"clusterName": e.ClusterName,
	}
	for k, v := range e.Identity {
		flat[k] = v
	}
	for k, v := range e.Metrics {
		flat[k] = v
	}
	return json.Marshal(flat)
}

// Metric is one outbound metric-endpoint datapoint.
type Metric struct {
	Name       string            `json:"name"`
	Type       MetricType        `json:"type"`
	Value      float64           `json:"value"`
	Attributes map[string]any    `json:"attributes,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// MetricType enumerates the two metric kinds the metrics endpoint accepts.
type MetricType string

const (
	MetricGauge MetricType = "gauge"
	MetricCount MetricType = "count"
)
