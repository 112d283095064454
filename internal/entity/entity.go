// Package entity defines the tagged-variant entity model: a shared
// header plus a per-Kind identity payload, with behavior shared through
// the small HasGolden/Healthy interfaces rather than inheritance. GUIDs
// are synthesized deterministically from the identity tuple in a
// pipe-delimited grammar, with a legacy base64 form for AWS MSK.
package entity

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
)

// Kind enumerates the five entity types.
type Kind string

const (
	KindCluster       Kind = "MESSAGE_QUEUE_CLUSTER"
	KindBroker        Kind = "MESSAGE_QUEUE_BROKER"
	KindTopic         Kind = "MESSAGE_QUEUE_TOPIC"
	KindQueue         Kind = "MESSAGE_QUEUE_QUEUE"
	KindConsumerGroup Kind = "MESSAGE_QUEUE_CONSUMER_GROUP"
)

// Provider enumerates the message-queue technologies the model supports.
type Provider string

const (
	ProviderKafka       Provider = "kafka"
	ProviderRabbitMQ    Provider = "rabbitmq"
	ProviderSQS         Provider = "sqs"
	ProviderAzureSBus   Provider = "azure-servicebus"
	ProviderGooglePubSub Provider = "google-pubsub"
	ProviderGeneric     Provider = "generic"
	// ProviderAWSMSK selects the legacy base64-identifier GUID style for
	// backward compatibility with existing AWS MSK dashboards that
	// already embed it; every other provider uses the plain pipe grammar.
	ProviderAWSMSK Provider = "aws-msk"
)

// GoldenMetric is one entry in an entity's fixed, ordered
// headline-metric list.
type GoldenMetric struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Header holds the fields every entity shares regardless of Kind.
type Header struct {
	EntityType Kind              `json:"entityType"`
	GUID       string            `json:"guid"`
	Name       string            `json:"name"`
	Provider   Provider          `json:"provider"`
	AccountID  int64             `json:"accountId"`
	Tags       map[string]string `json:"tags"`
	Golden     []GoldenMetric    `json:"goldenMetrics"`
	Metadata   map[string]any    `json:"metadata"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`

	// missingTicks counts consecutive orchestrator ticks in which this
	// entity was absent from the collector's output; the registry evicts
	// once the count crosses its threshold.
	missingTicks int
}

// MarkSeen clears the consecutive-miss counter.
func (h *Header) MarkSeen() { h.missingTicks = 0 }

// RecordMiss increments the consecutive-miss counter and returns it.
func (h *Header) RecordMiss() int {
	h.missingTicks++
	return h.missingTicks
}

// Identity is the subset of fields GUID synthesis and validation consume,
// one concrete struct per Kind.
type Identity interface {
	Kind() Kind
	// Parts returns the hierarchical identifier segments GUID synthesis
	// appends after accountId|provider (e.g. cluster name, then broker
	// id). Empty segments are omitted by the caller, never by Parts.
	Parts() []string
	// Validate enforces the per-Kind required-field rules (name grammar,
	// port range, partition count, ...).
	Validate() error
}

// ClusterIdentity is the required-field set for a Cluster entity.
type ClusterIdentity struct {
	ClusterName string
	Provider    Provider
	Region      string // optional
}

func (ClusterIdentity) Kind() Kind { return KindCluster }

func (c ClusterIdentity) Parts() []string { return []string{c.ClusterName} }

var clusterNameRe = regexp.MustCompile(`^[a-z0-9-]{1,63}$`)

func (c ClusterIdentity) Validate() error {
	if !clusterNameRe.MatchString(c.ClusterName) {
		return fmt.Errorf("%w: clusterName must be lowercase alnum/hyphen, <=63 chars, got %q", errs.ErrValidationFailed, c.ClusterName)
	}
	if c.Provider == "" {
		return fmt.Errorf("%w: provider is required", errs.ErrValidationFailed)
	}
	return nil
}

// BrokerIdentity is the required-field set for a Broker entity.
type BrokerIdentity struct {
	BrokerID    string
	Hostname    string
	ClusterName string
	Provider    Provider
	Port        int
}

func (BrokerIdentity) Kind() Kind { return KindBroker }

func (b BrokerIdentity) Parts() []string { return []string{b.ClusterName, b.BrokerID} }

func (b BrokerIdentity) Validate() error {
	if b.BrokerID == "" {
		return fmt.Errorf("%w: brokerId is required", errs.ErrValidationFailed)
	}
	if b.Hostname == "" {
		return fmt.Errorf("%w: hostname is required", errs.ErrValidationFailed)
	}
	if !clusterNameRe.MatchString(b.ClusterName) {
		return fmt.Errorf("%w: clusterName invalid for broker %q", errs.ErrValidationFailed, b.BrokerID)
	}
	if b.Port < 1 || b.Port > 65535 {
		return fmt.Errorf("%w: port must be within [1,65535], got %d", errs.ErrValidationFailed, b.Port)
	}
	return nil
}

// TopicIdentity is the required-field set for a Topic entity.
type TopicIdentity struct {
	Topic             string
	ClusterName       string
	Provider          Provider
	PartitionCount    int
	ReplicationFactor int
}

func (TopicIdentity) Kind() Kind { return KindTopic }

func (t TopicIdentity) Parts() []string { return []string{t.ClusterName, t.Topic} }

func (t TopicIdentity) Validate() error {
	if t.Topic == "" || len(t.Topic) > 255 {
		return fmt.Errorf("%w: topic name must be non-empty and <=255 chars", errs.ErrValidationFailed)
	}
	if !clusterNameRe.MatchString(t.ClusterName) {
		return fmt.Errorf("%w: clusterName invalid for topic %q", errs.ErrValidationFailed, t.Topic)
	}
	if t.PartitionCount < 1 {
		return fmt.Errorf("%w: partitionCount must be >= 1, got %d", errs.ErrValidationFailed, t.PartitionCount)
	}
	if t.ReplicationFactor < 1 {
		return fmt.Errorf("%w: replicationFactor must be >= 1, got %d", errs.ErrValidationFailed, t.ReplicationFactor)
	}
	return nil
}

// QueueType enumerates the supported Queue subtypes.
type QueueType string

const (
	QueueTypeStandard QueueType = "standard"
	QueueTypeFIFO     QueueType = "fifo"
	QueueTypePriority QueueType = "priority"
	QueueTypeDLQ      QueueType = "dlq"
)

// QueueIdentity is the required-field set for a Queue entity.
type QueueIdentity struct {
	QueueName string
	Provider  Provider
	Region    string // required for cloud queues; enforced by caller context
	QueueType QueueType
}

func (QueueIdentity) Kind() Kind { return KindQueue }

func (q QueueIdentity) Parts() []string { return []string{q.QueueName} }

func (q QueueIdentity) Validate() error {
	if q.QueueName == "" {
		return fmt.Errorf("%w: queueName is required", errs.ErrValidationFailed)
	}
	switch q.QueueType {
	case QueueTypeStandard, QueueTypeFIFO, QueueTypePriority, QueueTypeDLQ:
	default:
		return fmt.Errorf("%w: queueType must be one of standard/fifo/priority/dlq, got %q", errs.ErrValidationFailed, q.QueueType)
	}
	if q.QueueType == QueueTypeFIFO && !strings.HasSuffix(q.QueueName, ".fifo") {
		return fmt.Errorf("%w: fifo queue name must end in .fifo, got %q", errs.ErrValidationFailed, q.QueueName)
	}
	return nil
}

// ConsumerGroupIdentity is the required-field set for a ConsumerGroup entity.
type ConsumerGroupIdentity struct {
	ConsumerGroupID string
	ClusterName     string
	Provider        Provider
	Topics          []string
}

func (ConsumerGroupIdentity) Kind() Kind { return KindConsumerGroup }

func (g ConsumerGroupIdentity) Parts() []string { return []string{g.ClusterName, g.ConsumerGroupID} }

func (g ConsumerGroupIdentity) Validate() error {
	if g.ConsumerGroupID == "" {
		return fmt.Errorf("%w: consumerGroupId is required", errs.ErrValidationFailed)
	}
	if !clusterNameRe.MatchString(g.ClusterName) {
		return fmt.Errorf("%w: clusterName invalid for consumer group %q", errs.ErrValidationFailed, g.ConsumerGroupID)
	}
	if len(g.Topics) == 0 {
		return fmt.Errorf("%w: consumer group %q must list at least one topic", errs.ErrValidationFailed, g.ConsumerGroupID)
	}
	return nil
}

// GUIDFor computes the deterministic GUID for an identity tuple. Equal
// identities always yield equal GUIDs; the function reads no external
// state.
//
// ProviderAWSMSK entities use the legacy base64(identifier) style
// for the final segment so existing AWS MSK dashboards keep resolving;
// every other provider gets the plain pipe-delimited form.
func GUIDFor(accountID int64, id Identity) string {
	provider := identityProvider(id)
	segments := []string{string(id.Kind()), strconv.FormatInt(accountID, 10), string(provider)}
	parts := id.Parts()
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if provider == ProviderAWSMSK {
		return awsMSKStyleGUID(id.Kind(), accountID, nonEmpty)
	}
	segments = append(segments, nonEmpty...)
	return strings.Join(segments, "|")
}

func identityProvider(id Identity) Provider {
	switch v := id.(type) {
	case ClusterIdentity:
		return v.Provider
	case BrokerIdentity:
		return v.Provider
	case TopicIdentity:
		return v.Provider
	case QueueIdentity:
		return v.Provider
	case ConsumerGroupIdentity:
		return v.Provider
	default:
		return ProviderGeneric
	}
}

func awsMSKStyleGUID(kind Kind, accountID int64, idParts []string) string {
	identifier := strings.Join(idParts, ":")
	encoded := base64.StdEncoding.EncodeToString([]byte(identifier))
	return fmt.Sprintf("%d|INFRA|%s|%s", accountID, kind, encoded)
}
