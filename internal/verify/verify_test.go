package verify

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
)

type stubRunner struct {
	rows map[string][]map[string]any
	err  map[string]error
	calls []string
}

func (s *stubRunner) RunNRQL(ctx context.Context, nrql string) ([]map[string]any, error) {
	s.calls = append(s.calls, nrql)
	if err, ok := s.err[nrql]; ok {
		return nil, err
	}
	return s.rows[nrql], nil
}

func TestEngine_MasterGateReady(t *testing.T) {
	// Backend reports healthy readiness signals => verdict READY,
	// critical pass rate 100%, exit code 0.
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	samplesQuery := "SELECT count(*), latest(timestamp) FROM MessageQueueBrokerSample, MessageQueueTopicSample WHERE clusterName = 'c1' SINCE 10 minutes ago"
	metricsQuery := "SELECT count(*) FROM Metric WHERE metricName LIKE 'kafka.%' AND clusterName = 'c1' SINCE 5 minutes ago"
	entitiesQuery := "SELECT uniqueCount(entity.guid) FROM MessageQueue WHERE clusterName = 'c1' SINCE 10 minutes ago"
	freshnessQuery := "SELECT latest(timestamp) FROM MessageQueueBrokerSample WHERE clusterName = 'c1' SINCE 10 minutes ago"

	runner := &stubRunner{
		rows: map[string][]map[string]any{
			samplesQuery: {{
				"count":            100.0,
				"latest.timestamp": float64(now.Add(-2 * time.Minute).UnixMilli()),
				"provider":         "kafka",
				"awsAccountId":     "1234",
			}},
			metricsQuery: {{"count": 12.0}},
			entitiesQuery: {{"uniqueCount.entity.guid": 3.0}},
			freshnessQuery: {{"latest.timestamp": float64(now.Add(-2 * time.Minute).UnixMilli())}},
		},
	}

	master := NewMasterSuite("c1", []string{"provider", "awsAccountId"}, 10*time.Minute, func() time.Time { return now })
	clk := clock.NewFake(now)
	engine := New(runner, clk, master, DefaultSuites("c1"))
	engine.Throttle = 0

	report := engine.Run(context.Background())

	assert.Equal(t, VerdictReady, report.Verdict)
	assert.Equal(t, 1.0, report.CriticalPassRate())
	assert.Equal(t, 0, report.ExitCode())
	for _, tr := range report.Suites["master"].Tests {
		assert.True(t, tr.Passed, tr.ID)
	}
}

func TestEngine_MasterFailsWithoutDimensionalMetrics(t *testing.T) {
	// Fresh, UI-visible samples alone are not enough: the master gate
	// also requires at least one kafka.* dimensional metric.
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	samplesQuery := "SELECT count(*), latest(timestamp) FROM MessageQueueBrokerSample, MessageQueueTopicSample WHERE clusterName = 'c1' SINCE 10 minutes ago"

	runner := &stubRunner{
		rows: map[string][]map[string]any{
			samplesQuery: {{
				"count":            50.0,
				"latest.timestamp": float64(now.Add(-1 * time.Minute).UnixMilli()),
			}},
		},
	}

	master := NewMasterSuite("c1", nil, 10*time.Minute, func() time.Time { return now })
	engine := New(runner, clock.NewFake(now), master, DefaultSuites("c1"))
	engine.Throttle = 0

	report := engine.Run(context.Background())

	assert.Equal(t, VerdictNotReady, report.Verdict)
	_, goldenRan := report.Suites["golden-metrics"]
	assert.False(t, goldenRan, "non-critical suites must be skipped when any master test fails")
}

func TestEngine_MasterFailureSkipsNonCriticalSuites(t *testing.T) {
	masterQuery := "SELECT count(*), latest(timestamp) FROM MessageQueueBrokerSample, MessageQueueTopicSample WHERE clusterName = 'c1' SINCE 10 minutes ago"
	runner := &stubRunner{rows: map[string][]map[string]any{masterQuery: {}}}

	now := time.Now
	master := NewMasterSuite("c1", nil, 10*time.Minute, now)
	engine := New(runner, clock.NewFake(time.Now()), master, DefaultSuites("c1"))
	engine.Throttle = 0

	report := engine.Run(context.Background())

	assert.False(t, report.Suites["master"].Tests[0].Passed)
	_, goldenRan := report.Suites["golden-metrics"]
	assert.False(t, goldenRan, "non-critical suite must be skipped when master fails")
	_, entitiesRan := report.Suites["entities"]
	assert.True(t, entitiesRan, "critical suite must still run even when master fails")
	assert.Equal(t, VerdictNotReady, report.Verdict)
}

func TestEngine_StalenessFailsMaster(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	masterQuery := "SELECT count(*), latest(timestamp) FROM MessageQueueBrokerSample, MessageQueueTopicSample WHERE clusterName = 'c1' SINCE 10 minutes ago"
	runner := &stubRunner{
		rows: map[string][]map[string]any{
			masterQuery: {{
				"count":            10.0,
				"latest.timestamp": float64(now.Add(-30 * time.Minute).UnixMilli()),
			}},
		},
	}

	master := NewMasterSuite("c1", nil, 10*time.Minute, func() time.Time { return now })
	engine := New(runner, clock.NewFake(now), master, nil)
	engine.Throttle = 0

	result := engine.runTest(context.Background(), master.Tests[0])
	require.False(t, result.Passed)
	assert.Contains(t, result.Message, "stale")
}

func TestReport_WriteFile_KeyedByStartTimestamp(t *testing.T) {
	report := Report{
		RunID:     "run-1",
		Verdict:   VerdictReady,
		StartTime: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
		Suites:    map[string]SuiteResult{"master": {Critical: true}},
	}

	dir := t.TempDir()
	path, err := report.WriteFile(dir)
	require.NoError(t, err)
	assert.Contains(t, path, "verification-report-20260105T120000Z.json")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, VerdictReady, decoded.Verdict)
	assert.Equal(t, report.StartTime, decoded.StartTime)
}

func TestEngine_ThrottlesBetweenQueries(t *testing.T) {
	runner := &stubRunner{rows: map[string][]map[string]any{}}
	master := Suite{Name: "master", Critical: true, Tests: []Test{
		{ID: "m", Query: "Q0", Validate: func(rows []map[string]any) (bool, string) { return true, "" }},
	}}
	suites := []Suite{{Name: "s", Critical: true, Tests: []Test{
		{ID: "t1", Query: "Q1", Validate: func(rows []map[string]any) (bool, string) { return true, "" }},
	}}}

	engine := New(runner, clock.Real{}, master, suites)
	engine.Throttle = 10 * time.Millisecond

	start := time.Now()
	engine.Run(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
