package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newrelic/mq-telemetry-pipeline/internal/httpclient"
)

func TestQuery_Fetch_StreamsRowsFromNRQLResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := nrqlResponse{}
		resp.Data.Actor.Account.NRQL.Results = []map[string]any{
			{"broker.id": float64(1), "clusterName": "c1"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{APIKey: "k"})
	q := NewQuery(client, srv.URL, 12345)

	ch, err := q.Fetch(context.Background(), 5*time.Minute)
	require.NoError(t, err)

	var samples []string
	for s := range ch {
		samples = append(samples, s.EventType)
		assert.Equal(t, "c1", s.Fields["clusterName"])
	}
	assert.Len(t, samples, 4, "one row from each of the 4 sample-type queries")
}

func TestQuery_Fetch_SurfacesGraphQLErrorsAsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := nrqlResponse{}
		resp.Errors = []struct {
			Message string `json:"message"`
		}{{Message: "account not found"}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{APIKey: "k"})
	q := NewQuery(client, srv.URL, 12345)

	ch, err := q.Fetch(context.Background(), 5*time.Minute)
	require.NoError(t, err, "per-query failures are logged and skipped, not surfaced from Fetch itself")

	var count int
	for range ch {
		count++
	}
	assert.Equal(t, 0, count)
}
