package verify

import (
	"fmt"
	"time"
)

// NewMasterSuite builds the master readiness gate. It passes only when
// every criterion holds: (a) non-zero recent samples for clusterName,
// (b) 100% presence of the UI-visibility fields required for the given
// provider, (c) at least one kafka.* dimensional metric in the last 5
// minutes, (d) freshness: max(timestamp) within freshnessWindow of now.
// Criteria (a), (b) and (d) read the sample tables in one query;
// criterion (c) reads the Metric table in a second.
func NewMasterSuite(clusterName string, requiredFields []string, freshnessWindow time.Duration, now func() time.Time) Suite {
	sampleQuery := fmt.Sprintf(
		"SELECT count(*), latest(timestamp) FROM MessageQueueBrokerSample, MessageQueueTopicSample WHERE clusterName = '%s' SINCE 10 minutes ago",
		clusterName,
	)
	metricQuery := fmt.Sprintf(
		"SELECT count(*) FROM Metric WHERE metricName LIKE 'kafka.%%' AND clusterName = '%s' SINCE 5 minutes ago",
		clusterName,
	)

	return Suite{
		Name:     "master",
		Critical: true,
		Tests: []Test{
			{
				ID:    "master.samples",
				Name:  "recent samples with UI-visibility fields and freshness",
				Query: sampleQuery,
				Validate: func(rows []map[string]any) (bool, string) {
					if len(rows) == 0 {
						return false, "no recent samples found for cluster"
					}
					row := rows[0]

					count, _ := row["count"].(float64)
					if count <= 0 {
						return false, "zero recent samples for cluster"
					}

					for _, field := range requiredFields {
						if _, present := row[field]; !present {
							return false, fmt.Sprintf("required UI-visibility field %q absent", field)
						}
					}

					latest, ok := row["latest.timestamp"].(float64)
					if !ok {
						return false, "no timestamp reported"
					}
					age := now().Sub(time.UnixMilli(int64(latest)))
					if age > freshnessWindow {
						return false, fmt.Sprintf("data is stale: latest sample is %s old", age)
					}
					if age < -freshnessWindow {
						return false, "latest sample timestamp is implausibly far in the future"
					}

					return true, "samples present, visible and fresh"
				},
			},
			{
				ID:       "master.dimensional-metrics",
				Name:     "at least one kafka.* dimensional metric present",
				Query:    metricQuery,
				Validate: nonZeroCount("count"),
			},
		},
	}
}

// DefaultSuites builds the standard non-master suite set: entities,
// golden-metrics, freshness. All three are always returned; nothing here
// reads the verificationSuite config option.
func DefaultSuites(clusterName string) []Suite {
	return []Suite{
		{
			Name:     "entities",
			Critical: true,
			Tests: []Test{
				{
					ID:   "entities.cluster-present",
					Name: "cluster entity synthesized",
					Query: fmt.Sprintf(
						"SELECT uniqueCount(entity.guid) FROM MessageQueue WHERE clusterName = '%s' SINCE 10 minutes ago", clusterName),
					Validate: nonZeroCount("uniqueCount.entity.guid"),
				},
			},
		},
		{
			Name:     "golden-metrics",
			Critical: false,
			Tests: []Test{
				{
					ID:   "golden-metrics.throughput-present",
					Name: "at least one kafka.* dimensional metric present",
					Query: fmt.Sprintf(
						"SELECT count(*) FROM Metric WHERE metricName LIKE 'kafka.%%' AND clusterName = '%s' SINCE 5 minutes ago", clusterName),
					Validate: nonZeroCount("count"),
				},
			},
		},
		{
			Name:     "freshness",
			Critical: false,
			Tests: []Test{
				{
					ID:   "freshness.recent-data",
					Name: "data freshness within 10 minutes",
					Query: fmt.Sprintf(
						"SELECT latest(timestamp) FROM MessageQueueBrokerSample WHERE clusterName = '%s' SINCE 10 minutes ago", clusterName),
					Validate: func(rows []map[string]any) (bool, string) {
						if len(rows) == 0 {
							return false, "no data in freshness window"
						}
						return true, "data present within freshness window"
					},
				},
			},
		},
	}
}

func nonZeroCount(field string) ValidateFunc {
	return func(rows []map[string]any) (bool, string) {
		if len(rows) == 0 {
			return false, "empty result set"
		}
		v, ok := rows[0][field].(float64)
		if !ok || v <= 0 {
			return false, fmt.Sprintf("%s is zero or missing", field)
		}
		return true, "non-zero"
	}
}
