package datacrazy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// sleepRecorder is a Sleeper that records each wait instead of blocking.
type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

// setup creates a test environment for running API client tests. It returns a request
// multiplexer for registering handlers, the client configured to use the test server,
// the sleep recorder and a teardown function to close the server.
func setup(t *testing.T) (mux *http.ServeMux, client *APIClient, sleeps *sleepRecorder, teardown func()) {

	t.Helper()

	mux = http.NewServeMux()
	server := httptest.NewServer(mux)

	logger := slog.New(slog.NewTextHandler(
		os.Stdout,
		&slog.HandlerOptions{Level: slog.LevelDebug},
	))

	sleeps = &sleepRecorder{}
	client = NewAPIClient(server.URL, "test-key", server.Client(), logger, WithSleeper(sleeps.sleep))

	teardown = func() {
		server.Close()
	}
	return mux, client, sleeps, teardown
}

// pageJSON returns a page envelope holding n records with ids starting at offset.
func pageJSON(offset, n int) []byte {
	items := make([]string, n)
	for i := range n {
		items[i] = fmt.Sprintf(`{"id":"id-%d","name":"item %d"}`, offset+i, offset+i)
	}
	return []byte(`{"data":[` + strings.Join(items, ",") + `],"count":237}`)
}

func TestFetchAll_PaginationAndTermination(t *testing.T) {

	mux, client, sleeps, teardown := setup(t)
	defer teardown()

	sizes := []int{100, 100, 37}
	var callCount int
	mux.HandleFunc(EndpointLeads, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected method GET, got %s", r.Method)
		}
		if got, want := r.Header.Get("Authorization"), "Bearer test-key"; got != want {
			t.Errorf("authorization header got %q want %q", got, want)
		}
		if callCount >= len(sizes) {
			t.Fatalf("handler called too many times: %d", callCount+1)
		}
		skip := callCount * 100
		if got := r.URL.Query().Get("skip"); got != strconv.Itoa(skip) {
			t.Errorf("call %d: expected skip %d, got %s", callCount+1, skip, got)
		}
		if got := r.URL.Query().Get("take"); got != "100" {
			t.Errorf("call %d: expected take 100, got %s", callCount+1, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(pageJSON(skip, sizes[callCount]))
		callCount++
	})

	records, err := client.Leads(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := callCount, 3; got != want {
		t.Errorf("requests got %d want %d", got, want)
	}
	if got, want := len(records), 237; got != want {
		t.Fatalf("records got %d want %d", got, want)
	}

	leads, err := Decode[Lead](records)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := leads[236].ID, "id-236"; got != want {
		t.Errorf("last lead id got %s want %s", got, want)
	}

	want := []time.Duration{1100 * time.Millisecond, 1100 * time.Millisecond, 1100 * time.Millisecond}
	if diff := cmp.Diff(want, sleeps.waits); diff != "" {
		t.Errorf("request delays mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAll_RateLimitRetry(t *testing.T) {

	mux, client, sleeps, teardown := setup(t)
	defer teardown()

	var callCount int
	mux.HandleFunc(EndpointTags, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"Too Many Requests"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(pageJSON(0, 5))
	})

	records, err := client.Tags(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := callCount, 3; got != want {
		t.Errorf("requests got %d want %d", got, want)
	}
	if got, want := len(records), 5; got != want {
		t.Errorf("records got %d want %d", got, want)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 1100 * time.Millisecond}
	if diff := cmp.Diff(want, sleeps.waits); diff != "" {
		t.Errorf("waits mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAll_APIError(t *testing.T) {

	mux, client, _, teardown := setup(t)
	defer teardown()

	var callCount int
	mux.HandleFunc(EndpointBusinesses, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`internal failure`))
	})

	_, err := client.Businesses(context.Background())
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if got, want := apiErr.StatusCode, http.StatusInternalServerError; got != want {
		t.Errorf("status got %d want %d", got, want)
	}
	if got, want := apiErr.Body, "internal failure"; got != want {
		t.Errorf("body got %q want %q", got, want)
	}
	if callCount != 1 {
		t.Errorf("non-429 errors must not be retried, got %d calls", callCount)
	}
}

func TestFetchAll_DecodeError(t *testing.T) {

	mux, client, _, teardown := setup(t)
	defer teardown()

	mux.HandleFunc(EndpointProducts, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"p1"`))
	})

	_, err := client.Products(context.Background())
	if err == nil {
		t.Fatal("expected a decode error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to decode response") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFetchAll_NoDataArray(t *testing.T) {

	tests := []struct {
		name string
		body string
	}{
		{"missing data", `{"message":"ok"}`},
		{"null data", `{"data":null}`},
		{"object data", `{"data":{"id":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, client, _, teardown := setup(t)
			defer teardown()

			var callCount int
			mux.HandleFunc(EndpointActivities, func(w http.ResponseWriter, r *http.Request) {
				callCount++
				_, _ = w.Write([]byte(tt.body))
			})

			records, err := client.Activities(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != 0 {
				t.Errorf("expected no records, got %d", len(records))
			}
			if callCount != 1 {
				t.Errorf("expected 1 request, got %d", callCount)
			}
		})
	}
}

func TestFetchAll_PipelineStages(t *testing.T) {

	mux, client, _, teardown := setup(t)
	defer teardown()

	mux.HandleFunc("/pipelines/p-1/stages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"s1","name":"Novo","index":0},{"id":"s2","name":"Ganho","index":1}]}`))
	})

	records, err := client.PipelineStages(context.Background(), "p-1")
	if err != nil {
		t.Fatal(err)
	}
	stages, err := Decode[PipelineStage](records)
	if err != nil {
		t.Fatal(err)
	}
	want := []PipelineStage{{ID: "s1", Name: "Novo", Index: 0}, {ID: "s2", Name: "Ganho", Index: 1}}
	if diff := cmp.Diff(want, stages); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "k", server.Client(), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Tags(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {

	client := NewAPIClient("http://localhost", "", nil, slog.New(slog.DiscardHandler))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{60, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := client.backoff(tt.attempt); got != tt.want {
				t.Errorf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {

	records := []json.RawMessage{
		json.RawMessage(`{"id":"b1","code":7,"status":"won","products":[{"product":{"id":"p1","name":"Casa"},"quantity":2,"price":10.5}]}`),
		json.RawMessage(`{"id":"b2","status":"open","products":[{"name":"Avulso"}]}`),
	}
	got, err := Decode[Business](records)
	if err != nil {
		t.Fatal(err)
	}
	code := int64(7)
	want := []Business{
		{
			ID: "b1", Code: &code, Status: StatusWon,
			Products: []BusinessProduct{{Product: &Ref{ID: "p1", Name: "Casa"}, Quantity: 2, Price: 10.5}},
		},
		{
			ID: "b2", Status: StatusOpen,
			Products: []BusinessProduct{{Name: "Avulso"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("businesses mismatch (-want +got):\n%s", diff)
	}
	if got[1].Products[0].ProductID() != "" {
		t.Error("expected empty product id for a line without a product")
	}

	if _, err := Decode[Business]([]json.RawMessage{json.RawMessage(`{"id":`)}); err == nil {
		t.Error("expected error for malformed record")
	}
}

func TestPlatformContactHasStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{``, false},
		{`null`, false},
		{`false`, false},
		{`"DELIVERED"`, true},
		{`{"status":"read"}`, true},
	}
	for _, tt := range tests {
		pc := PlatformContact{LastContactStatus: json.RawMessage(tt.raw)}
		if got := pc.HasStatus(); got != tt.want {
			t.Errorf("HasStatus(%q) got %t want %t", tt.raw, got, tt.want)
		}
	}
}
