package transform

import (
	"math"
	"strings"

	"github.com/newrelic/mq-telemetry-pipeline/internal/fieldmap"
)

var clusterNameChain = fieldmap.NewChain("clusterName", "cluster.name", "kafka.clusterName")

// fieldmapClusterName resolves the clusterName identity field every
// sample shape carries.
func fieldmapClusterName(f map[string]any) (string, bool) {
	return clusterNameChain.String(f)
}

// firstString resolves chain against f, falling back to def when absent.
func firstString(chain fieldmap.Chain, f map[string]any, def string) string {
	if v, ok := chain.String(f); ok {
		return v
	}
	return def
}

// addMetric resolves chain against f and, on success, stores it under
// name. A field that is present but uncoercible (non-numeric string,
// NaN, out of range) increments *invalid without aborting the whole
// sample; an absent field is simply skipped. Only a sample with no
// usable identity is fatal.
func addMetric(metrics map[string]float64, invalid *int, name string, chain fieldmap.Chain, f map[string]any) {
	raw, present := chain.Lookup(f)
	if !present {
		return
	}
	v, ok := fieldmap.Coerce(raw)
	if !ok || !isValidRange(name, v) {
		*invalid++
		return
	}
	metrics[name] = v
}

// isValidRange applies the numeric-coercion bounds: rate/count
// metrics outside [0, 1e15] are dropped; negative values on non-negative
// metrics are dropped. Every metric this package emits is non-negative by
// definition, so a single check covers both rules.
func isValidRange(name string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if v < 0 {
		return false
	}
	if v > 1e15 {
		return false
	}
	return true
}

// deriveThroughputTotal computes throughput.total = in + out whenever
// both halves are present.
func deriveThroughputTotal(metrics map[string]float64) {
	in, okIn := metrics["throughput.in.bytesPerSecond"]
	out, okOut := metrics["throughput.out.bytesPerSecond"]
	if okIn && okOut {
		metrics["throughput.total.bytesPerSecond"] = in + out
	}
}

// deriveByteUnits adds .mb/.gb mirrors for every *.bytes-suffixed
// metric and for the handful of bytesPerSecond throughput fields this
// package computes.
func deriveByteUnits(metrics map[string]float64) {
	const mb = 1024 * 1024
	const gb = 1024 * 1024 * 1024

	additions := map[string]float64{}
	for name, v := range metrics {
		if strings.HasSuffix(name, ".bytes") || strings.Contains(name, "bytesPerSecond") {
			base := strings.TrimSuffix(name, "PerSecond")
			additions[base+".mb"] = v / mb
			additions[base+".gb"] = v / gb
		}
	}
	for k, v := range additions {
		metrics[k] = v
	}
}

// cleanZeroAndNaN elides zero and NaN values from the emitted mapping
// unless the metric name is in the set of semantically-zero-meaningful
// metrics. Currently none of this package's metrics are
// zero-meaningful, so the exception set is empty but kept as an
// explicit allowlist.
var zeroMeaningful = map[string]bool{}

func cleanZeroAndNaN(metrics map[string]float64) {
	for name, v := range metrics {
		if math.IsNaN(v) {
			delete(metrics, name)
			continue
		}
		if v == 0 && !zeroMeaningful[name] {
			delete(metrics, name)
		}
	}
}
