package verify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/httpclient"
)

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

// GraphQLRunner implements QueryRunner over internal/httpclient against
// the NerdGraph endpoint, the same query shape internal/collector's
// Query adapter uses.
type GraphQLRunner struct {
	client     *httpclient.Client
	graphqlURL string
	accountID  int64
}

// NewGraphQLRunner constructs a GraphQLRunner.
func NewGraphQLRunner(client *httpclient.Client, graphqlURL string, accountID int64) *GraphQLRunner {
	return &GraphQLRunner{client: client, graphqlURL: graphqlURL, accountID: accountID}
}

// RunNRQL posts nrql as a GraphQL variable and returns the result rows.
func (g *GraphQLRunner) RunNRQL(ctx context.Context, nrql string) ([]map[string]any, error) {
	gqlQuery := map[string]any{
		"query": `query($accountId: Int!, $nrql: Nrql!) {
			actor {
				account(id: $accountId) {
					nrql(query: $nrql) { results }
				}
			}
		}`,
		"variables": map[string]any{
			"accountId": g.accountID,
			"nrql":      nrql,
		},
	}

	body, err := g.client.PostJSON(ctx, g.graphqlURL, gqlQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBackendUnavailable, err)
	}

	var parsed nrqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding NRQL response: %v", errs.ErrSchemaMismatch, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrBackendUnavailable, parsed.Errors[0].Message)
	}
	return parsed.Data.Actor.Account.NRQL.Results, nil
}

var _ QueryRunner = (*GraphQLRunner)(nil)
