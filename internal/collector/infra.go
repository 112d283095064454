package collector

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
	"github.com/newrelic/mq-telemetry-pipeline/internal/config"
	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
)

// brokerMeta describes one live broker as reported by cluster metadata.
type brokerMeta struct {
	ID   int32
	Host string
	Port int
}

// topicMeta describes one topic, including per-broker partition placement
// so broker samples can carry partition/leader counts.
type topicMeta struct {
	Name              string
	PartitionCount    int
	ReplicationFactor int
	UnderReplicated   int
	LeadersByBroker   map[int32]int
	ReplicasByBroker  map[int32]int
}

// groupMeta describes one consumer group.
type groupMeta struct {
	ID      string
	State   string
	Members int
}

// offsetMeta is one (topic, partition) committed-offset reading for a
// group, with the partition's current high water mark alongside.
type offsetMeta struct {
	Topic         string
	Partition     int32
	Offset        int64
	HighWaterMark int64
}

// metadataSource is the narrow slice of Kafka admin surface the Infra
// adapter reads. The production implementation wraps a sarama client and
// cluster admin; tests substitute a fixture.
type metadataSource interface {
	Brokers() ([]brokerMeta, error)
	Topics() ([]topicMeta, error)
	Groups() ([]groupMeta, error)
	GroupOffsets(group string) ([]offsetMeta, error)
	Close() error
}

// Infra is the direct-broker Collector adapter: it connects to a live
// Kafka cluster (bootstrap list or ZooKeeper discovery), reads cluster
// metadata and consumer-group offsets, and emits the same raw sample
// shapes the other adapters produce.
type Infra struct {
	clusterName string
	clk         clock.Clock
	source      metadataSource
}

// NewInfra dials the configured cluster and returns a ready adapter.
// Broker addresses come from cfg.BootstrapServers, or from ZooKeeper
// registration znodes when the bootstrap list is empty.
func NewInfra(cfg config.KafkaConfig, clk clock.Clock) (*Infra, error) {
	addrs := cfg.BootstrapServers
	if len(addrs) == 0 {
		discovered, err := discoverBrokers(cfg.ZookeeperHosts, cfg.ZookeeperPath)
		if err != nil {
			return nil, err
		}
		addrs = discovered
	}

	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}

	client, err := sarama.NewClient(addrs, sc)
	if err != nil {
		if cfg.SASLMechanism != "" {
			return nil, fmt.Errorf("%w: connecting to kafka: %v", errs.ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("%w: connecting to kafka: %v", errs.ErrSourceUnavailable, err)
	}
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: creating admin client: %v", errs.ErrSourceUnavailable, err)
	}

	return newInfraWith(cfg.ClusterName, &saramaSource{client: client, admin: admin}, clk), nil
}

// newInfraWith wires an Infra over an already-open metadata source.
func newInfraWith(clusterName string, source metadataSource, clk clock.Clock) *Infra {
	return &Infra{clusterName: clusterName, clk: clockOrReal(clk), source: source}
}

// Close releases the underlying Kafka connections.
func (c *Infra) Close() error {
	return c.source.Close()
}

// Fetch reads a current snapshot of the cluster: one broker sample per
// live broker, one topic sample per topic, and per consumer group a
// consumer sample plus one offset sample per (topic, partition) with a
// committed offset. since is accepted for contract symmetry; metadata
// reads are always point-in-time.
func (c *Infra) Fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
	brokers, err := c.source.Brokers()
	if err != nil {
		return nil, fmt.Errorf("%w: listing brokers: %v", errs.ErrSourceUnavailable, err)
	}

	out := make(chan transform.RawSample, 64)
	go func() {
		defer close(out)

		topics, err := c.source.Topics()
		if err != nil {
			log.Warn("collector: listing topics: %v", err)
		}

		for _, b := range brokers {
			if !emit(ctx, out, c.brokerSample(b, topics)) {
				return
			}
		}
		for _, t := range topics {
			if !emit(ctx, out, c.topicSample(t)) {
				return
			}
		}

		groups, err := c.source.Groups()
		if err != nil {
			log.Warn("collector: listing consumer groups: %v", err)
			return
		}
		for _, g := range groups {
			offsets, err := c.source.GroupOffsets(g.ID)
			if err != nil {
				log.Warn("collector: offsets for group %s: %v", g.ID, err)
				continue
			}
			if !emit(ctx, out, c.consumerSample(g, offsets)) {
				return
			}
			for _, o := range offsets {
				if !emit(ctx, out, c.offsetSample(g, o)) {
					return
				}
			}
		}
	}()

	return out, nil
}

func emit(ctx context.Context, out chan<- transform.RawSample, s transform.RawSample) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- s:
		return true
	}
}

func (c *Infra) brokerSample(b brokerMeta, topics []topicMeta) transform.RawSample {
	var partitions, leaders float64
	for _, t := range topics {
		partitions += float64(t.ReplicasByBroker[b.ID])
		leaders += float64(t.LeadersByBroker[b.ID])
	}
	return transform.RawSample{
		EventType: transform.RawKafkaBrokerSample,
		Fields: map[string]any{
			"broker.id":             b.ID,
			"broker.host":           b.Host,
			"clusterName":           c.clusterName,
			"broker.partitionCount": partitions,
			"broker.leaderCount":    leaders,
		},
	}
}

func (c *Infra) topicSample(t topicMeta) transform.RawSample {
	return transform.RawSample{
		EventType: transform.RawKafkaTopicSample,
		Fields: map[string]any{
			"topic":                           t.Name,
			"clusterName":                     c.clusterName,
			"topic.partitionCount":            t.PartitionCount,
			"topic.replicationFactor":         t.ReplicationFactor,
			"topic.underReplicatedPartitions": t.UnderReplicated,
		},
	}
}

func (c *Infra) consumerSample(g groupMeta, offsets []offsetMeta) transform.RawSample {
	var total, max float64
	for _, o := range offsets {
		lag := o.lag()
		total += lag
		if lag > max {
			max = lag
		}
	}
	avg := 0.0
	if len(offsets) > 0 {
		avg = total / float64(len(offsets))
	}

	fields := map[string]any{
		"consumer.group.id":    g.ID,
		"clusterName":          c.clusterName,
		"consumer.state":       strings.ToUpper(g.State),
		"consumer.memberCount": g.Members,
		"consumer.totalLag":    total,
		"consumer.maxLag":      max,
		"consumer.avgLag":      avg,
	}
	if len(offsets) > 0 {
		fields["consumer.topic"] = offsets[0].Topic
	}
	return transform.RawSample{EventType: transform.RawKafkaConsumerSample, Fields: fields}
}

func (c *Infra) offsetSample(g groupMeta, o offsetMeta) transform.RawSample {
	return transform.RawSample{
		EventType: transform.RawKafkaOffsetSample,
		Fields: map[string]any{
			"consumer.group.id":     g.ID,
			"clusterName":           c.clusterName,
			"consumer.topic":        o.Topic,
			"offset.partition":      o.Partition,
			"offset.consumerOffset": o.Offset,
			"offset.highWaterMark":  o.HighWaterMark,
			"offset.lag":            o.lag(),
		},
	}
}

// lag is the partition's consumer lag; a group with no committed offset
// (offset -1) reports zero rather than a bogus hwm+1.
func (o offsetMeta) lag() float64 {
	if o.Offset < 0 {
		return 0
	}
	if l := o.HighWaterMark - o.Offset; l > 0 {
		return float64(l)
	}
	return 0
}

// saramaSource implements metadataSource over a live sarama client and
// cluster admin pair.
type saramaSource struct {
	client sarama.Client
	admin  sarama.ClusterAdmin
}

func (s *saramaSource) Brokers() ([]brokerMeta, error) {
	if err := s.client.RefreshMetadata(); err != nil {
		return nil, err
	}
	raw := s.client.Brokers()
	out := make([]brokerMeta, 0, len(raw))
	for _, b := range raw {
		host, portStr, err := net.SplitHostPort(b.Addr())
		if err != nil {
			host = b.Addr()
		}
		port, _ := strconv.Atoi(portStr)
		if port == 0 {
			port = 9092
		}
		out = append(out, brokerMeta{ID: b.ID(), Host: host, Port: port})
	}
	return out, nil
}

func (s *saramaSource) Topics() ([]topicMeta, error) {
	names, err := s.client.Topics()
	if err != nil {
		return nil, err
	}
	metas, err := s.admin.DescribeTopics(names)
	if err != nil {
		return nil, err
	}

	out := make([]topicMeta, 0, len(metas))
	for _, m := range metas {
		if m.Err != sarama.ErrNoError {
			log.Warn("collector: describing topic %s: %v", m.Name, m.Err)
			continue
		}
		t := topicMeta{
			Name:             m.Name,
			PartitionCount:   len(m.Partitions),
			LeadersByBroker:  map[int32]int{},
			ReplicasByBroker: map[int32]int{},
		}
		for _, p := range m.Partitions {
			if len(p.Replicas) > t.ReplicationFactor {
				t.ReplicationFactor = len(p.Replicas)
			}
			if len(p.Isr) < len(p.Replicas) {
				t.UnderReplicated++
			}
			t.LeadersByBroker[p.Leader]++
			for _, r := range p.Replicas {
				t.ReplicasByBroker[r]++
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *saramaSource) Groups() ([]groupMeta, error) {
	listed, err := s.admin.ListConsumerGroups()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(listed))
	for id := range listed {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	described, err := s.admin.DescribeConsumerGroups(ids)
	if err != nil {
		return nil, err
	}
	out := make([]groupMeta, 0, len(described))
	for _, d := range described {
		out = append(out, groupMeta{ID: d.GroupId, State: d.State, Members: len(d.Members)})
	}
	return out, nil
}

func (s *saramaSource) GroupOffsets(group string) ([]offsetMeta, error) {
	resp, err := s.admin.ListConsumerGroupOffsets(group, nil)
	if err != nil {
		return nil, err
	}

	var out []offsetMeta
	for topic, blocks := range resp.Blocks {
		for partition, block := range blocks {
			if block == nil || block.Offset < 0 {
				continue
			}
			hwm, err := s.client.GetOffset(topic, partition, sarama.OffsetNewest)
			if err != nil {
				log.Warn("collector: high water mark for %s[%d]: %v", topic, partition, err)
				hwm = block.Offset
			}
			out = append(out, offsetMeta{Topic: topic, Partition: partition, Offset: block.Offset, HighWaterMark: hwm})
		}
	}
	return out, nil
}

func (s *saramaSource) Close() error {
	return s.admin.Close()
}

var _ Collector = (*Infra)(nil)
