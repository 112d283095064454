package orchestrator

import (
	"time"

	"github.com/newrelic/mq-telemetry-pipeline/internal/entity"
	"github.com/newrelic/mq-telemetry-pipeline/internal/relationship"
)

// rollupClusters recomputes each touched cluster's golden metrics
// (health.score, error.rate, availability) from its direct CONTAINS
// children, the way entity.Entity.IsHealthy expects to find them. This is
// the orchestrator's only consumer of relationship.Manager.GetRelated:
// the registry's Create* methods already record the CONTAINS edge at
// creation time, and this step reads it back to aggregate over it.
func (o *Orchestrator) rollupClusters(clusterGUIDs map[string]string, now time.Time) {
	if o.deps.Relations == nil || o.deps.Registry == nil {
		return
	}
	seen := make(map[string]bool, len(clusterGUIDs))
	for _, guid := range clusterGUIDs {
		if seen[guid] {
			continue
		}
		seen[guid] = true
		o.rollupCluster(guid, now)
	}
}

func (o *Orchestrator) rollupCluster(clusterGUID string, now time.Time) {
	containsType := relationship.TypeContains
	edges := o.deps.Relations.GetRelated(clusterGUID, &containsType, 1)
	if len(edges) == 0 {
		return
	}

	var healthy, total int
	var errRateSum, errRateN float64
	for _, edge := range edges {
		child, ok := o.deps.Registry.Get(edge.OtherGUID)
		if !ok {
			continue
		}
		total++
		if child.IsHealthy(o.deps.Config.LagCritThreshold) {
			healthy++
		}
		if child.EntityType == entity.KindTopic {
			for _, g := range child.Golden {
				if g.Name == "error.rate" {
					errRateSum += g.Value
					errRateN++
				}
			}
		}
	}
	if total == 0 {
		return
	}

	availability := 100 * float64(healthy) / float64(total)
	errRate := 0.0
	if errRateN > 0 {
		errRate = errRateSum / errRateN
	}
	healthScore := availability - errRate
	if healthScore < 0 {
		healthScore = 0
	}

	golden := []entity.GoldenMetric{
		{Name: "health.score", Value: healthScore, Timestamp: now},
		{Name: "error.rate", Value: errRate, Timestamp: now},
		{Name: "availability", Value: availability, Timestamp: now},
	}
	if err := o.deps.Registry.UpdateGolden(clusterGUID, golden, nil); err != nil {
		return
	}
}
