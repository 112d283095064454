// Package config defines the immutable configuration record the core
// consumes. Loading it from environment or file is the caller's job;
// this package only defines the record, its defaults, and validation of
// an already-populated struct.
package config

import (
	"fmt"
	"time"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
)

// Region selects the backend ingest endpoint.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
)

// Mode selects which Collector adapter the orchestrator wires up.
type Mode string

const (
	ModeSimulation     Mode = "simulation"
	ModeInfrastructure Mode = "infrastructure"
	ModeHybrid         Mode = "hybrid"
)

// BackpressurePolicy controls Streamer behavior when its buffer is full.
type BackpressurePolicy string

const (
	BackpressureBlock  BackpressurePolicy = "block"
	BackpressureReject BackpressurePolicy = "reject"
)

// CircuitConfig holds per-dependency circuit breaker parameters.
type CircuitConfig struct {
	FailureThreshold uint32        `json:"failureThreshold"`
	SuccessThreshold uint32        `json:"successThreshold"`
	VolumeThreshold  uint32        `json:"volumeThreshold"`
	RetryTimeout     time.Duration `json:"retryTimeout"`
	Timeout          time.Duration `json:"timeout"`
}

// DefaultCircuitConfig returns the standard per-dependency thresholds.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		VolumeThreshold:  5,
		RetryTimeout:     30 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// SimulationConfig configures the synthetic Collector adapter.
type SimulationConfig struct {
	ClusterCount     int     `json:"clusterCount"`
	BrokersPerCluster int    `json:"brokersPerCluster"`
	TopicsPerCluster int     `json:"topicsPerCluster"`
	AnomalyRate      float64 `json:"anomalyRate"`
	BusinessHours    bool    `json:"businessHours"`
	Seed             uint64  `json:"seed"`
}

// SASL mechanisms accepted for direct broker connections.
const (
	SASLPlain       = "PLAIN"
	SASLScramSHA256 = "SCRAM-SHA-256"
	SASLScramSHA512 = "SCRAM-SHA-512"
)

// KafkaConfig configures the direct-broker Collector adapter used in
// infrastructure and hybrid modes. Brokers are addressed either through
// an explicit bootstrap list or discovered from ZooKeeper.
type KafkaConfig struct {
	ClusterName      string   `json:"clusterName"`
	BootstrapServers []string `json:"bootstrapServers"`
	ZookeeperHosts   []string `json:"zookeeperHosts"`
	ZookeeperPath    string   `json:"zookeeperPath"`
	ClientID         string   `json:"clientId"`
	SASLMechanism    string   `json:"saslMechanism"`
	SASLUsername     string   `json:"saslUsername"`
	SASLPassword     string   `json:"saslPassword"`
}

// Config is the immutable record every component is constructed with.
// Building one from environment/files is the caller's job; this package
// only validates the finished record (config.Validate).
type Config struct {
	AccountID   int64  `json:"accountId"`
	APIKey      string `json:"apiKey"`
	UserAPIKey  string `json:"userApiKey"`
	Region      Region `json:"region"`
	Mode        Mode   `json:"mode"`

	TickInterval time.Duration `json:"tickInterval"`

	BatchSize          int                `json:"batchSize"`
	FlushInterval      time.Duration      `json:"flushInterval"`
	RetryAttempts      int                `json:"retryAttempts"`
	RetryDelay         time.Duration      `json:"retryDelay"`
	MaxBuffer          int                `json:"maxBuffer"`
	BackpressurePolicy BackpressurePolicy `json:"backpressurePolicy"`
	ShutdownTimeout    time.Duration      `json:"shutdownTimeout"`

	WorkerPoolSize int `json:"workerPoolSize"`

	Simulation SimulationConfig `json:"simulation"`
	Kafka      KafkaConfig      `json:"kafka"`

	LagWarnThreshold int64 `json:"lagWarnThreshold"`
	LagCritThreshold int64 `json:"lagCritThreshold"`

	Circuit CircuitConfig `json:"circuit"`

	VerificationSuite []string `json:"verificationSuite"`

	TimestampSkew time.Duration `json:"timestampSkew"`

	VerifyEveryNTicks int `json:"verifyEveryNTicks"`

	DryRun bool `json:"dryRun"`
}

// Default returns a Config populated with every documented default, with the
// fields that have no sane default (AccountID, APIKey, UserAPIKey) left
// zero -- Validate will reject those.
func Default() Config {
	return Config{
		Region:       RegionUS,
		Mode:         ModeSimulation,
		TickInterval: 30 * time.Second,

		BatchSize:          100,
		FlushInterval:      10 * time.Second,
		RetryAttempts:      3,
		RetryDelay:         1 * time.Second,
		MaxBuffer:          10000,
		BackpressurePolicy: BackpressureBlock,
		ShutdownTimeout:    30 * time.Second,

		WorkerPoolSize: 8,

		Simulation: SimulationConfig{
			ClusterCount:      1,
			BrokersPerCluster: 3,
			TopicsPerCluster:  5,
			AnomalyRate:       0.05,
			BusinessHours:     true,
		},

		Kafka: KafkaConfig{
			ClusterName:   "kafka",
			ZookeeperPath: "/",
			ClientID:      "mq-telemetry-pipeline",
		},

		LagWarnThreshold: 5000,
		LagCritThreshold: 10000,

		Circuit: DefaultCircuitConfig(),

		VerificationSuite: []string{"master", "entities", "golden-metrics", "freshness"},

		TimestampSkew:     15 * time.Minute,
		VerifyEveryNTicks: 10,
	}
}

// Validate enforces the required-field and range rules. It never
// mutates cfg; callers own applying Default() first
// if they want defaults layered under partial input.
func (cfg Config) Validate() error {
	if cfg.AccountID <= 0 {
		return fmt.Errorf("%w: accountId is required and must be positive", errs.ErrConfigInvalid)
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("%w: apiKey is required", errs.ErrConfigInvalid)
	}
	if cfg.UserAPIKey == "" {
		return fmt.Errorf("%w: userApiKey is required", errs.ErrConfigInvalid)
	}
	switch cfg.Region {
	case RegionUS, RegionEU:
	default:
		return fmt.Errorf("%w: region must be US or EU, got %q", errs.ErrConfigInvalid, cfg.Region)
	}
	switch cfg.Mode {
	case ModeSimulation, ModeInfrastructure, ModeHybrid:
	default:
		return fmt.Errorf("%w: mode must be simulation, infrastructure or hybrid, got %q", errs.ErrConfigInvalid, cfg.Mode)
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("%w: tickInterval must be positive", errs.ErrConfigInvalid)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("%w: batchSize must be positive", errs.ErrConfigInvalid)
	}
	if cfg.MaxBuffer <= 0 {
		return fmt.Errorf("%w: maxBuffer must be positive", errs.ErrConfigInvalid)
	}
	if cfg.RetryAttempts < 0 {
		return fmt.Errorf("%w: retryAttempts must be non-negative", errs.ErrConfigInvalid)
	}
	switch cfg.BackpressurePolicy {
	case BackpressureBlock, BackpressureReject:
	default:
		return fmt.Errorf("%w: backpressurePolicy must be block or reject, got %q", errs.ErrConfigInvalid, cfg.BackpressurePolicy)
	}
	if cfg.WorkerPoolSize <= 0 {
		return fmt.Errorf("%w: workerPoolSize must be positive", errs.ErrConfigInvalid)
	}
	if cfg.Simulation.AnomalyRate < 0 || cfg.Simulation.AnomalyRate > 1 {
		return fmt.Errorf("%w: simulation.anomalyRate must be within [0,1]", errs.ErrConfigInvalid)
	}
	if len(cfg.Kafka.BootstrapServers) > 0 || len(cfg.Kafka.ZookeeperHosts) > 0 {
		if cfg.Kafka.ClusterName == "" {
			return fmt.Errorf("%w: kafka.clusterName is required when broker hosts are configured", errs.ErrConfigInvalid)
		}
		switch cfg.Kafka.SASLMechanism {
		case "", SASLPlain, SASLScramSHA256, SASLScramSHA512:
		default:
			return fmt.Errorf("%w: kafka.saslMechanism must be one of PLAIN, SCRAM-SHA-256, SCRAM-SHA-512", errs.ErrConfigInvalid)
		}
		if cfg.Kafka.SASLMechanism != "" && (cfg.Kafka.SASLUsername == "" || cfg.Kafka.SASLPassword == "") {
			return fmt.Errorf("%w: kafka.saslUsername and kafka.saslPassword are required when saslMechanism is set", errs.ErrConfigInvalid)
		}
	}
	if cfg.LagCritThreshold < cfg.LagWarnThreshold {
		return fmt.Errorf("%w: lagCritThreshold must be >= lagWarnThreshold", errs.ErrConfigInvalid)
	}
	if err := validateSchema(cfg); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}
	return nil
}

// Endpoint returns the ingest host for the configured region, mirroring
// the US/EU split New Relic's real ingest endpoints use.
func (cfg Config) Endpoint() string {
	switch cfg.Region {
	case RegionEU:
		return "https://insights-collector.eu01.nr-data.net"
	default:
		return "https://insights-collector.newrelic.com"
	}
}

// MetricsEndpoint returns the metric-ingest host for the configured region.
func (cfg Config) MetricsEndpoint() string {
	switch cfg.Region {
	case RegionEU:
		return "https://metric-api.eu.newrelic.com/metric/v1"
	default:
		return "https://metric-api.newrelic.com/metric/v1"
	}
}

// GraphQLEndpoint returns the NerdGraph host used for verification queries
// and the query-backed collector.
func (cfg Config) GraphQLEndpoint() string {
	switch cfg.Region {
	case RegionEU:
		return "https://api.eu.newrelic.com/graphql"
	default:
		return "https://api.newrelic.com/graphql"
	}
}
