package apollo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

func testClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000),
		WithRetryConfig(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		}),
	)
}

func TestEnrichCompany_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody EnrichRequest

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organization":{"id":"org-1","name":"Acme","estimated_num_employees":120}}`))
	})

	res, err := client.EnrichCompany(context.Background(), EnrichRequest{Domain: "acme.com"})
	require.NoError(t, err)

	assert.Equal(t, "/organizations/enrich", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "acme.com", gotBody.Domain)
	assert.Equal(t, "org-1", res.SourceID)
	assert.JSONEq(t, `{"id":"org-1","name":"Acme","estimated_num_employees":120}`, string(res.Payload))
}

func TestEnrichCompany_SendsSourceIDWhenKnown(t *testing.T) {
	var gotBody map[string]any
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"organization":{"id":"org-1"}}`))
	})

	_, err := client.EnrichCompany(context.Background(), EnrichRequest{SourceID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, "org-1", gotBody["id"])
}

func TestEnrichCompany_NoMatch(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organization":null}`))
	})

	_, err := client.EnrichCompany(context.Background(), EnrichRequest{Domain: "nobody.example"})
	assert.ErrorContains(t, err, "no organization")
}

func TestEnrichCompany_NoMatchMissingMember(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := client.EnrichCompany(context.Background(), EnrichRequest{Domain: "nobody.example"})
	assert.ErrorContains(t, err, "no organization")
}

func TestEnrichPerson_NoMatch(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"person":null}`))
	})

	_, err := client.EnrichPerson(context.Background(), EnrichRequest{Name: "Nobody"})
	assert.ErrorContains(t, err, "no person match")
}

func TestPost_RetriesOnTooManyRequests(t *testing.T) {
	var attempts int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"organization":{"id":"org-1"}}`))
	})

	res, err := client.EnrichCompany(context.Background(), EnrichRequest{Domain: "acme.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "org-1", res.SourceID)
}

func TestPost_DoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"bad domain"}`))
	})

	_, err := client.EnrichCompany(context.Background(), EnrichRequest{Domain: "???"})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestEnrichPerson_Success(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/match", r.URL.Path)
		w.Write([]byte(`{"person":{"id":"p-9","name":"Jordan Smith"}}`))
	})

	res, err := client.EnrichPerson(context.Background(), EnrichRequest{Name: "Jordan Smith"})
	require.NoError(t, err)
	assert.Equal(t, "p-9", res.SourceID)
}

func TestSearchCompanies_Success(t *testing.T) {
	var gotBody SearchQuery
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mixed_companies/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"organizations":[
			{"id":"org-1","name":"Acme","primary_domain":"acme.com","state":"CA","industry":"Software","estimated_num_employees":120},
			{"id":"org-2","name":"Beta","primary_domain":"beta.io","state":"NY","industry":"Fintech","estimated_num_employees":40}
		]}`))
	})

	results, err := client.SearchCompanies(context.Background(), SearchQuery{
		Industries: []string{"Software"},
		Locations:  []string{"CA"},
	})
	require.NoError(t, err)

	assert.Equal(t, 25, gotBody.PerPage, "default page size")
	require.Len(t, results, 2)
	assert.Equal(t, "org-1", results[0].ID)
	assert.Equal(t, "acme.com", results[0].Domain)
	assert.Equal(t, 120, results[0].EmployeeCount)
}

func TestSearchCompanies_EmptyResults(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organizations":[]}`))
	})

	results, err := client.SearchCompanies(context.Background(), SearchQuery{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
