// Package verify implements the verification engine: an ordered suite
// of named tests executed against the backend over NRQL, a
// master-predicate gate that short-circuits non-critical suites, and a
// structured pass/fail report with a run identifier.
package verify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/newrelic/mq-telemetry-pipeline/internal/clock"
)

// QueryRunner executes a single NRQL-shaped query against the backend
// and returns its raw result rows. Implemented by an adapter over
// internal/httpclient's GraphQL POST.
type QueryRunner interface {
	RunNRQL(ctx context.Context, nrql string) ([]map[string]any, error)
}

// Verdict is the top-level pass/fail classification of a verification
// run.
type Verdict string

const (
	VerdictReady     Verdict = "READY"
	VerdictPartial   Verdict = "PARTIAL"
	VerdictNotReady  Verdict = "NOT_READY"
)

// ValidateFunc inspects a test's query result rows and reports pass/fail
// with a human-readable message.
type ValidateFunc func(rows []map[string]any) (passed bool, message string)

// Test is one named check within a Suite.
type Test struct {
	ID       string
	Name     string
	Query    string
	Validate ValidateFunc
}

// Suite is a named, ordered group of Tests, tagged critical or not.
type Suite struct {
	Name     string
	Critical bool
	Tests    []Test
}

// TestResult is one Test's outcome.
type TestResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// SuiteResult is one Suite's outcome.
type SuiteResult struct {
	Critical bool         `json:"critical"`
	Tests    []TestResult `json:"tests"`
}

// Summary aggregates pass/fail counts across all executed suites.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Critical struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
	} `json:"critical"`
}

// Report is the structured verification artifact.
type Report struct {
	RunID     string                 `json:"runId"`
	Verdict   Verdict                `json:"verdict"`
	Summary   Summary                `json:"summary"`
	Suites    map[string]SuiteResult `json:"suites"`
	Duration  time.Duration          `json:"duration"`
	StartTime time.Time              `json:"startTime"`
	EndTime   time.Time              `json:"endTime"`
}

// CriticalPassRate returns the fraction (0..1) of critical tests that
// passed. An empty critical set reports 1.0 (nothing to fail).
func (r Report) CriticalPassRate() float64 {
	if r.Summary.Critical.Total == 0 {
		return 1.0
	}
	return float64(r.Summary.Critical.Passed) / float64(r.Summary.Critical.Total)
}

// ExitCode maps the report's critical pass rate to the process exit
// code convention (0 = all critical passed, 1 = critical failed).
func (r Report) ExitCode() int {
	if r.CriticalPassRate() >= 1.0 {
		return 0
	}
	return 1
}

// Engine runs an ordered list of Suites against runner, gated by a
// master suite that, on failure, skips every non-critical suite.
type Engine struct {
	runner  QueryRunner
	clk     clock.Clock
	master  Suite
	suites  []Suite
	// Throttle is the minimum delay between consecutive test queries, a
	// courtesy to the backend's rate limits.
	Throttle time.Duration
}

// New constructs an Engine. The master suite runs first, unconditionally;
// suites run afterward in order, skipped entirely (not merely their
// tests) when any master test fails and they are not critical.
func New(runner QueryRunner, clk clock.Clock, master Suite, suites []Suite) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{runner: runner, clk: clk, master: master, suites: suites, Throttle: 100 * time.Millisecond}
}

// Run executes the master suite then every other suite (subject to
// skipping, see New), sequentially with Throttle between queries, and
// returns the aggregated Report.
func (e *Engine) Run(ctx context.Context) Report {
	start := e.clk.Now()
	report := Report{
		RunID:  uuid.NewString(),
		Suites: map[string]SuiteResult{},
	}

	masterResult := SuiteResult{Critical: true}
	masterPassed := true
	for _, test := range e.master.Tests {
		tr := e.runTest(ctx, test)
		masterResult.Tests = append(masterResult.Tests, tr)
		tally(&report.Summary, true, tr)
		if !tr.Passed {
			masterPassed = false
		}
	}
	report.Suites["master"] = masterResult

	for _, suite := range e.suites {
		if !masterPassed && !suite.Critical {
			log.Warn("verify: skipping non-critical suite %q because the master predicate failed", suite.Name)
			continue
		}
		result := SuiteResult{Critical: suite.Critical}
		for _, test := range suite.Tests {
			tr := e.runTest(ctx, test)
			result.Tests = append(result.Tests, tr)
			tally(&report.Summary, suite.Critical, tr)
		}
		report.Suites[suite.Name] = result
	}

	report.EndTime = e.clk.Now()
	report.StartTime = start
	report.Duration = report.EndTime.Sub(start)
	report.Verdict = classify(report)
	return report
}

func (e *Engine) runTest(ctx context.Context, t Test) TestResult {
	e.clk.Sleep(e.Throttle)

	rows, err := e.runner.RunNRQL(ctx, t.Query)
	if err != nil {
		return TestResult{ID: t.ID, Name: t.Name, Passed: false, Message: err.Error()}
	}
	passed, msg := t.Validate(rows)
	return TestResult{ID: t.ID, Name: t.Name, Passed: passed, Message: msg}
}

func tally(s *Summary, critical bool, tr TestResult) {
	s.Total++
	if tr.Passed {
		s.Passed++
	} else {
		s.Failed++
	}
	if critical {
		s.Critical.Total++
		if tr.Passed {
			s.Critical.Passed++
		}
	}
}

func classify(r Report) Verdict {
	if r.Summary.Critical.Total > 0 && r.Summary.Critical.Passed < r.Summary.Critical.Total {
		return VerdictNotReady
	}
	if r.Summary.Total == r.Summary.Passed {
		return VerdictReady
	}
	return VerdictPartial
}
