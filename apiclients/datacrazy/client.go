package datacrazy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/go-querystring/query"
)

// DefaultBaseURL is the production DataCrazy API.
const DefaultBaseURL = "https://api.g1.datacrazy.io/api/v1"

// List endpoints, relative to the base url.
const (
	EndpointTags        = "/tags"
	EndpointProducts    = "/products"
	EndpointPipelines   = "/pipelines"
	EndpointLossReasons = "/business-loss-reasons"
	EndpointLeads       = "/leads"
	EndpointBusinesses  = "/businesses"
	EndpointActivities  = "/activities"
)

// EndpointPipelineStages returns the stages endpoint for a pipeline.
func EndpointPipelineStages(pipelineID string) string {
	return fmt.Sprintf("%s/%s/stages", EndpointPipelines, pipelineID)
}

// APIError is a non-retryable error status returned by the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleep is the default Sleeper.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// APIClient is a wrapper for making authenticated, rate limited calls to the
// DataCrazy API.
type APIClient struct {
	httpClient   *http.Client
	baseURL      string
	pageSize     int
	requestDelay time.Duration
	backoffBase  time.Duration
	maxBackoff   time.Duration
	sleep        Sleeper
	log          *slog.Logger
}

// Option configures an APIClient.
type Option func(*APIClient)

// WithPageSize sets the take value of each page request.
func WithPageSize(n int) Option {
	return func(c *APIClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRequestDelay sets the pause after every page.
func WithRequestDelay(d time.Duration) Option {
	return func(c *APIClient) { c.requestDelay = d }
}

// WithMaxBackoff caps the wait between rate limited retries.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *APIClient) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithSleeper replaces the function used for every wait.
func WithSleeper(s Sleeper) Option {
	return func(c *APIClient) {
		if s != nil {
			c.sleep = s
		}
	}
}

// NewAPIClient creates a new DataCrazy API client authenticating with apiKey as a
// bearer token. If no httpClient is provided http.DefaultClient is used as the base
// transport.
func NewAPIClient(
	baseURL string,
	apiKey string,
	httpClient *http.Client,
	logger *slog.Logger,
	opts ...Option,
) *APIClient {

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(
			os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelDebug},
		))
	}

	c := &APIClient{
		httpClient:   bearerClient(httpClient, apiKey),
		baseURL:      baseURL,
		pageSize:     100,
		requestDelay: 1100 * time.Millisecond,
		backoffBase:  time.Second,
		maxBackoff:   30 * time.Second,
		sleep:        sleep,
		log:          logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// pageQuery is the pagination query of every list endpoint.
type pageQuery struct {
	Skip int `url:"skip"`
	Take int `url:"take"`
}

// rawPage keeps data undecoded so a missing or non-array value can end pagination.
type rawPage struct {
	Data json.RawMessage `json:"data"`
}

// FetchAll retrieves every record of a list endpoint. Pages are requested until one
// returns fewer than take records, or has no data array. The request delay is
// observed after every page.
func (c *APIClient) FetchAll(ctx context.Context, endpoint string) ([]json.RawMessage, error) {

	var all []json.RawMessage
	q := pageQuery{Skip: 0, Take: c.pageSize}

	for {
		params, err := query.Values(q)
		if err != nil {
			return nil, fmt.Errorf("could not encode page query: %w", err)
		}
		requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())

		c.log.Debug(fmt.Sprintf("FetchAll %s: skip %d take %d", endpoint, q.Skip, q.Take))

		req, err := c.newRequest(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}

		var page rawPage
		if _, err := do(c, req, &page); err != nil {
			c.log.Error(fmt.Sprintf("FetchAll %s: failed at skip %d: %v", endpoint, q.Skip, err))
			return nil, fmt.Errorf("failed to fetch %s at skip %d: %w", endpoint, q.Skip, err)
		}

		records, ok := decodeArray(page.Data)
		if ok {
			all = append(all, records...)
			c.log.Debug(fmt.Sprintf("FetchAll %s: got %d items (total %d)", endpoint, len(records), len(all)))
		}

		if err := c.sleep(ctx, c.requestDelay); err != nil {
			return nil, err
		}

		if !ok || len(records) < q.Take {
			break
		}
		q.Skip += q.Take
	}

	c.log.Info(fmt.Sprintf("%s: retrieved %d records", endpoint, len(all)))
	return all, nil
}

// decodeArray reports false when data is absent or is not a JSON array.
func decodeArray(data json.RawMessage) ([]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false
	}
	return records, true
}

// Tags fetches all tags.
func (c *APIClient) Tags(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointTags)
}

// Products fetches all products.
func (c *APIClient) Products(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointProducts)
}

// Pipelines fetches all pipelines.
func (c *APIClient) Pipelines(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointPipelines)
}

// PipelineStages fetches the stages of one pipeline.
func (c *APIClient) PipelineStages(ctx context.Context, pipelineID string) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointPipelineStages(pipelineID))
}

// LossReasons fetches all business loss reasons.
func (c *APIClient) LossReasons(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointLossReasons)
}

// Leads fetches all leads.
func (c *APIClient) Leads(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointLeads)
}

// Businesses fetches all businesses.
func (c *APIClient) Businesses(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointBusinesses)
}

// Activities fetches all activities.
func (c *APIClient) Activities(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, EndpointActivities)
}

// Decode decodes raw records into typed values.
func Decode[T any](records []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, r := range records {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// newRequest is a helper to create a new HTTP request with common headers.
func (c *APIClient) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// backoff returns the wait before retry number attempt (zero based).
func (c *APIClient) backoff(attempt int) time.Duration {
	d := c.backoffBase
	for range attempt {
		d *= 2
		if d >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	return min(d, c.maxBackoff)
}

// do executes an HTTP request and decodes the JSON response into v. A 429 response
// is retried with exponential backoff until it succeeds or ctx is done. Any other
// error status is returned as an *APIError.
func do[T any](c *APIClient, req *http.Request, v *T) (*http.Response, error) {

	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			wait := c.backoff(attempt)
			c.log.Warn(fmt.Sprintf("rate limited, retrying in %s (attempt %d)", wait, attempt+1))
			if err := c.sleep(req.Context(), wait); err != nil {
				return nil, err
			}
			continue
		}

		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		if v != nil {
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return resp, nil
	}
}
