// Package apollo provides a client for the Apollo.io enrichment and
// company search API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

// Client defines the Apollo operations the CLI uses.
type Client interface {
	// EnrichCompany enriches an organization. When SourceID is set the
	// request targets that organization directly; otherwise Apollo
	// resolves it from name/domain.
	EnrichCompany(ctx context.Context, req EnrichRequest) (*EnrichResult, error)
	// EnrichPerson enriches a contact.
	EnrichPerson(ctx context.Context, req EnrichRequest) (*EnrichResult, error)
	// SearchCompanies runs a filtered company search for prospecting.
	SearchCompanies(ctx context.Context, query SearchQuery) ([]CompanyResult, error)
}

// EnrichRequest identifies the entity to enrich.
type EnrichRequest struct {
	SourceID string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Domain   string `json:"domain,omitempty"`
}

// EnrichResult carries the provider's identifier for the entity plus the
// raw enrichment payload.
type EnrichResult struct {
	SourceID string
	Payload  json.RawMessage
}

// SearchQuery filters a company search.
type SearchQuery struct {
	Industries     []string `json:"organization_industries,omitempty"`
	Locations      []string `json:"organization_locations,omitempty"`
	EmployeeRanges []string `json:"organization_num_employees_ranges,omitempty"`
	Page           int      `json:"page,omitempty"`
	PerPage        int      `json:"per_page,omitempty"`
}

// CompanyResult is a single company from a search response.
type CompanyResult struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Domain        string `json:"primary_domain"`
	WebsiteURL    string `json:"website_url"`
	City          string `json:"city"`
	State         string `json:"state"`
	Industry      string `json:"industry"`
	EmployeeCount int    `json:"estimated_num_employees"`
}

// Option configures the Apollo client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a new Apollo client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.apollo.io/api/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("apollo", "request")
	return c
}

// post sends a JSON POST and returns the response body. Transient
// statuses (429, 5xx) are retried with backoff; the rate limiter gates
// each attempt.
func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: marshal request")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return nil, eris.Wrap(err, "apollo: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "apollo: read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("apollo: status %d: %s", resp.StatusCode, string(body)),
				resp.StatusCode,
			)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("apollo: unexpected status %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	})
}

type organizationEnvelope struct {
	Organization json.RawMessage `json:"organization"`
}

// Apollo signals "no match" with a 200 whose member is absent or a
// literal null; both mean there is no payload to persist.
func noMatch(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (c *httpClient) EnrichCompany(ctx context.Context, req EnrichRequest) (*EnrichResult, error) {
	body, err := c.post(ctx, "/organizations/enrich", req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: enrich company")
	}

	var env organizationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal enrich response")
	}
	if noMatch(env.Organization) {
		return nil, eris.Errorf("apollo: no organization for %q", req.Domain)
	}
	return &EnrichResult{
		SourceID: extractID(env.Organization),
		Payload:  env.Organization,
	}, nil
}

type personEnvelope struct {
	Person json.RawMessage `json:"person"`
}

func (c *httpClient) EnrichPerson(ctx context.Context, req EnrichRequest) (*EnrichResult, error) {
	body, err := c.post(ctx, "/people/match", req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: enrich person")
	}

	var env personEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal match response")
	}
	if noMatch(env.Person) {
		return nil, eris.Errorf("apollo: no person match for %q", req.Name)
	}
	return &EnrichResult{
		SourceID: extractID(env.Person),
		Payload:  env.Person,
	}, nil
}

type searchEnvelope struct {
	Organizations []CompanyResult `json:"organizations"`
}

func (c *httpClient) SearchCompanies(ctx context.Context, query SearchQuery) ([]CompanyResult, error) {
	if query.PerPage <= 0 {
		query.PerPage = 25
	}

	body, err := c.post(ctx, "/mixed_companies/search", query)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: search companies")
	}

	var env searchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal search response")
	}
	return env.Organizations, nil
}

func extractID(raw json.RawMessage) string {
	var idHolder struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &idHolder)
	return idHolder.ID
}
