package entity

// Entity is the concrete tagged-variant value the registry stores: a
// shared Header plus the Identity that produced its GUID. Per-Kind
// golden metrics and health rules are computed from Header.Golden,
// keeping the type itself flat.
type Entity struct {
	Header
	Identity Identity
}

// HasGolden exposes an entity's headline metrics without tying callers
// to the concrete Entity type.
type HasGolden interface {
	GoldenMetrics() []GoldenMetric
}

func (e *Entity) GoldenMetrics() []GoldenMetric { return e.Golden }

// Healthy is the capability shared by everything that can report a
// boolean health state against a consumer-lag threshold.
type Healthy interface {
	IsHealthy(lagThreshold int64) bool
}

func metricValue(golden []GoldenMetric, name string) (float64, bool) {
	for _, m := range golden {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// IsHealthy applies the per-Kind health rule against the entity's
// current golden metrics. Missing metrics count as
// unhealthy for that rule term (a cautious default: absence is not proof
// of health).
func (e *Entity) IsHealthy(lagThreshold int64) bool {
	switch e.EntityType {
	case KindCluster:
		score, ok1 := metricValue(e.Golden, "health.score")
		errRate, ok2 := metricValue(e.Golden, "error.rate")
		avail, ok3 := metricValue(e.Golden, "availability")
		return ok1 && ok2 && ok3 && score >= 80 && errRate < 5 && avail >= 95
	case KindBroker:
		cpu, ok1 := metricValue(e.Golden, "cpu")
		mem, ok2 := metricValue(e.Golden, "memory")
		latency, ok3 := metricValue(e.Golden, "request.latency")
		return ok1 && ok2 && ok3 && cpu < 80 && mem < 80 && latency < 100
	case KindTopic:
		lag, ok1 := metricValue(e.Golden, "consumer.lag")
		errRate, ok2 := metricValue(e.Golden, "error.rate")
		in, ok3 := metricValue(e.Golden, "throughput.in")
		out, ok4 := metricValue(e.Golden, "throughput.out")
		if !(ok1 && ok2 && ok3 && ok4) {
			return false
		}
		if lag > 10000 || errRate > 5 {
			return false
		}
		return throughputBalanced(in, out, 0.5)
	case KindQueue:
		depth, ok1 := metricValue(e.Golden, "depth")
		processing, ok2 := metricValue(e.Golden, "processing.time")
		in, ok3 := metricValue(e.Golden, "throughput.in")
		out, ok4 := metricValue(e.Golden, "throughput.out")
		if !(ok1 && ok2 && ok3) {
			return false
		}
		if depth > queueDepthThreshold(e.Identity) || processing > 5000 {
			return false
		}
		if in > 0 {
			return ok4 && out/in >= 0.10
		}
		return true
	case KindConsumerGroup:
		maxLag, ok1 := metricValue(e.Golden, "maxLag")
		members, ok2 := metricValue(e.Golden, "memberCount")
		state, _ := e.Metadata["state"].(string)
		if !(ok1 && ok2) {
			return false
		}
		threshold := float64(lagThreshold)
		if threshold <= 0 {
			threshold = 10000
		}
		return state == "STABLE" && members > 0 && maxLag < threshold
	default:
		return false
	}
}

func throughputBalanced(in, out, maxImbalance float64) bool {
	if in == 0 && out == 0 {
		return true
	}
	total := in + out
	if total == 0 {
		return true
	}
	diff := in - out
	if diff < 0 {
		diff = -diff
	}
	return diff/total <= maxImbalance
}

func queueDepthThreshold(id Identity) float64 {
	q, ok := id.(QueueIdentity)
	if !ok {
		return 1000
	}
	switch q.QueueType {
	case QueueTypeDLQ:
		return 100
	case QueueTypePriority:
		return 500
	case QueueTypeFIFO:
		return 2000
	default:
		return 5000
	}
}
