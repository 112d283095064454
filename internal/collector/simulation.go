package collector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
	"github.com/newrelic/mq-telemetry-pipeline/internal/config"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
)

// Simulation generates synthetic Kafka samples over a fixed
// N-cluster x M-broker x K-topic topology, with business-hour
// amplification and anomaly injection. Seeded with math/rand/v2's PCG
// source (never the unseeded global rand) so a fixed seed reproduces
// the same sequence across runs.
type Simulation struct {
	cfg   config.SimulationConfig
	clk   clock.Clock
	rng   *rand.Rand
	ticks int
}

// NewSimulation constructs a Simulation collector. A zero seed derives
// one from the configured topology so repeated construction with the
// same SimulationConfig is itself reproducible.
func NewSimulation(cfg config.SimulationConfig, clk clock.Clock) *Simulation {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(cfg.ClusterCount)<<32 | uint64(cfg.BrokersPerCluster)<<16 | uint64(cfg.TopicsPerCluster)
	}
	return &Simulation{
		cfg: cfg,
		clk: clockOrReal(clk),
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Fetch synthesizes one tick's worth of broker/topic/consumer samples
// across the configured topology. since is accepted for contract
// symmetry with the query-backed adapter but otherwise unused: the
// simulation always emits "now" samples for every entity in the
// topology on every call.
func (s *Simulation) Fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
	s.ticks++
	out := make(chan transform.RawSample, s.cfg.ClusterCount*s.cfg.BrokersPerCluster*4)

	go func() {
		defer close(out)
		amp := s.amplification()

		for ci := 1; ci <= maxInt(s.cfg.ClusterCount, 1); ci++ {
			clusterName := fmt.Sprintf("kafka-%d", ci)

			for bi := 1; bi <= maxInt(s.cfg.BrokersPerCluster, 1); bi++ {
				select {
				case <-ctx.Done():
					return
				case out <- s.brokerSample(clusterName, bi, amp):
				}
			}

			for ti := 1; ti <= s.cfg.TopicsPerCluster; ti++ {
				topicName := fmt.Sprintf("topic-%d", ti)
				select {
				case <-ctx.Done():
					return
				case out <- s.topicSample(clusterName, topicName, amp):
				}
				select {
				case <-ctx.Done():
					return
				case out <- s.consumerSample(clusterName, topicName, amp):
				}
			}
		}
	}()

	return out, nil
}

// amplification scales weekday business-hour (09-17 local) traffic by
// 1.5x.
func (s *Simulation) amplification() float64 {
	if !s.cfg.BusinessHours {
		return 1.0
	}
	now := s.clk.Now()
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return 1.0
	}
	hour := now.Hour()
	if hour >= 9 && hour < 17 {
		return 1.5
	}
	return 1.0
}

func (s *Simulation) anomalous() bool {
	return s.rng.Float64() < s.cfg.AnomalyRate
}

func (s *Simulation) brokerSample(clusterName string, brokerID int, amp float64) transform.RawSample {
	bytesIn := s.jitter(500000, 0.2) * amp
	bytesOut := s.jitter(450000, 0.2) * amp
	cpu := s.jitter(35, 0.3)
	latency := s.jitter(12, 0.4)
	if s.anomalous() {
		cpu = 90 + s.rng.Float64()*10
		latency = 150 + s.rng.Float64()*200
	}

	return transform.RawSample{
		EventType: transform.RawKafkaBrokerSample,
		Fields: map[string]any{
			"broker.id":                  brokerID,
			"clusterName":                clusterName,
			"broker.bytesInPerSecond":    bytesIn,
			"broker.bytesOutPerSecond":   bytesOut,
			"broker.messagesInPerSecond": s.jitter(2000, 0.25) * amp,
			"broker.cpuPercent":          cpu,
			"broker.memoryPercent":       s.jitter(55, 0.2),
			"request.avgTimeFetch":       latency,
			"request.avgTimeProduce":     s.jitter(8, 0.3),
		},
	}
}

func (s *Simulation) topicSample(clusterName, topicName string, amp float64) transform.RawSample {
	in := s.jitter(1200, 0.3) * amp
	out := s.jitter(1150, 0.3) * amp
	lag := s.jitter(500, 0.5)
	if s.anomalous() {
		lag = 15000 + s.rng.Float64()*5000
	}

	return transform.RawSample{
		EventType: transform.RawKafkaTopicSample,
		Fields: map[string]any{
			"topic":                    topicName,
			"clusterName":              clusterName,
			"topic.bytesInPerSecond":   in * 1024,
			"topic.bytesOutPerSecond":  out * 1024,
			"topic.partitionCount":     3,
			"topic.replicationFactor":  2,
			"consumer.totalLag":        lag,
		},
	}
}

func (s *Simulation) consumerSample(clusterName, topicName string, amp float64) transform.RawSample {
	groupID := fmt.Sprintf("%s-consumer-group", topicName)
	lag := s.jitter(300, 0.4)
	if s.anomalous() {
		lag = 20000 + s.rng.Float64()*5000
	}

	return transform.RawSample{
		EventType: transform.RawKafkaConsumerSample,
		Fields: map[string]any{
			"consumer.group.id":           groupID,
			"clusterName":                 clusterName,
			"consumer.topic":              topicName,
			"consumer.totalLag":           lag,
			"consumer.activeConsumers":    maxInt(1, s.rng.IntN(5)),
			"consumer.state":              "STABLE",
			"consumer.messageConsumptionRate": s.jitter(900, 0.3) * amp,
		},
	}
}

// jitter returns base randomized by +/- spread fraction.
func (s *Simulation) jitter(base, spread float64) float64 {
	delta := (s.rng.Float64()*2 - 1) * spread
	v := base * (1 + delta)
	if v < 0 {
		v = 0
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var _ Collector = (*Simulation)(nil)
