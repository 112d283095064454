package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/httpclient"
	"github.com/newrelic/mq-telemetry-pipeline/internal/transform"
)

// nrqlResponse is the shape of a NerdGraph NRQL query response this
// adapter cares about: a flat list of event records under
// data.actor.account.nrql.results.
type nrqlResponse struct {
	Data struct {
		Actor struct {
			Account struct {
				NRQL struct {
					Results []map[string]any `json:"results"`
				} `json:"nrql"`
			} `json:"account"`
		} `json:"actor"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Query is the query-backed Collector adapter: it polls the backend via
// NerdGraph-shaped NRQL queries for each of the four raw sample types and
// re-emits the rows as transform.RawSample.
type Query struct {
	client      *httpclient.Client
	graphqlURL  string
	accountID   int64
}

// NewQuery constructs a Query collector posting against graphqlURL with
// client.
func NewQuery(client *httpclient.Client, graphqlURL string, accountID int64) *Query {
	return &Query{client: client, graphqlURL: graphqlURL, accountID: accountID}
}

var sampleQueries = map[string]string{
	transform.RawKafkaBrokerSample:   "KafkaBrokerSample",
	transform.RawKafkaTopicSample:    "KafkaTopicSample",
	transform.RawKafkaConsumerSample: "KafkaConsumerSample",
	transform.RawKafkaOffsetSample:   "KafkaOffsetSample",
}

// Fetch issues one NRQL query per raw sample type (`SELECT * FROM
// <EventType> SINCE <since> ago`) against the configured NerdGraph
// endpoint and streams the combined rows back as RawSample.
func (q *Query) Fetch(ctx context.Context, since time.Duration) (<-chan transform.RawSample, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)

	out := make(chan transform.RawSample, 64)
	go func() {
		defer close(out)
		defer cancel()

		for rawType, eventType := range sampleQueries {
			nrql := fmt.Sprintf("SELECT * FROM %s SINCE %d seconds ago LIMIT MAX", eventType, int(since.Seconds()))
			rows, err := q.runNRQL(fetchCtx, nrql)
			if err != nil {
				log.Warn("collector: query for %s failed: %v", eventType, err)
				continue
			}
			for _, row := range rows {
				select {
				case <-fetchCtx.Done():
					return
				case out <- transform.RawSample{EventType: rawType, Fields: row}:
				}
			}
		}
	}()

	return out, nil
}

func (q *Query) runNRQL(ctx context.Context, nrql string) ([]map[string]any, error) {
	gqlQuery := map[string]any{
		"query": `query($accountId: Int!, $nrql: Nrql!) {
			actor {
				account(id: $accountId) {
					nrql(query: $nrql) { results }
				}
			}
		}`,
		"variables": map[string]any{
			"accountId": q.accountID,
			"nrql":      nrql,
		},
	}

	body, err := q.client.PostJSON(ctx, q.graphqlURL, gqlQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSourceUnavailable, err)
	}

	var parsed nrqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding NRQL response: %v", errs.ErrSchemaMismatch, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrSourceUnavailable, parsed.Errors[0].Message)
	}

	return parsed.Data.Actor.Account.NRQL.Results, nil
}

var _ Collector = (*Query)(nil)
