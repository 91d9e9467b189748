package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"
	"github.com/felipezacker/zcrm/dump"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// setup serves a small DataCrazy account. Handlers registered in overrides replace
// the defaults.
func setup(t *testing.T, overrides map[string]http.HandlerFunc) (*Extractor, string, *[]string) {

	t.Helper()

	var calls []string
	bodies := map[string]string{
		datacrazy.EndpointTags:                  `{"data":[{"id":"t1","name":"VIP"}]}`,
		datacrazy.EndpointProducts:              `{"data":[{"id":"p1","name":"Apto"}]}`,
		datacrazy.EndpointPipelines:             `{"data":[{"id":"pl1","name":"Vendas"},{"id":"pl2","name":"Locação"}]}`,
		datacrazy.EndpointPipelineStages("pl1"): `{"data":[{"id":"s1","name":"Novo","index":0}]}`,
		datacrazy.EndpointPipelineStages("pl2"): `{"data":[]}`,
		datacrazy.EndpointLossReasons:           `{"data":[{"id":"lr1","name":"Preço"}]}`,
		datacrazy.EndpointLeads:                 `{"data":[{"id":"l1","name":"Ana","extra":{"kept":1}}]}`,
		datacrazy.EndpointBusinesses:            `{"data":[{"id":"b1","leadId":"l1","stageId":"s1"}]}`,
		datacrazy.EndpointActivities:            `{"data":[{"id":"a1","title":"Ligar"}]}`,
	}

	mux := http.NewServeMux()
	for path, body := range bodies {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.URL.Path)
			if h, ok := overrides[path]; ok {
				h(w, r)
				return
			}
			_, _ = w.Write([]byte(body))
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := datacrazy.NewAPIClient(
		server.URL, "key", server.Client(), slog.New(slog.DiscardHandler),
		datacrazy.WithSleeper(noSleep),
	)
	dir := filepath.Join(t.TempDir(), "dumps")
	e := New(client, dir, log.New(io.Discard))
	e.now = func() time.Time { return time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC) }
	return e, dir, &calls
}

func TestRun(t *testing.T) {

	e, dir, calls := setup(t, nil)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCalls := []string{
		"/tags", "/products", "/pipelines", "/pipelines/pl1/stages", "/pipelines/pl2/stages",
		"/business-loss-reasons", "/leads", "/businesses", "/activities",
	}
	if diff := cmp.Diff(wantCalls, *calls); diff != "" {
		t.Errorf("request order mismatch (-want +got):\n%s", diff)
	}

	wantCounts := dump.Counts{
		Leads: 1, Businesses: 1, Products: 1, Tags: 1,
		Pipelines: 2, PipelineStages: 1, Activities: 1, LossReasons: 1,
	}
	if diff := cmp.Diff(wantCounts, summary.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	for _, f := range append(dump.EntityFiles, dump.FileComplete, dump.FileSummary) {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("expected file %s: %v", f, err)
		}
	}

	d, err := dump.Load(dir)
	if err != nil {
		t.Fatalf("dump written by Run must load: %v", err)
	}
	if got, want := len(d.PipelineStages["pl2"]), 0; got != want {
		t.Errorf("pl2 stages got %d want %d", got, want)
	}

	leads, err := os.ReadFile(filepath.Join(dir, dump.FileLeads))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(leads), `"kept": 1`) {
		t.Errorf("unconsumed lead fields were dropped:\n%s", leads)
	}
}

func TestRun_FailureKeepsFinishedEntities(t *testing.T) {

	e, dir, _ := setup(t, map[string]http.HandlerFunc{
		datacrazy.EndpointBusinesses: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		},
	})

	_, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *datacrazy.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected wrapped *APIError with status 502, got %v", err)
	}

	for _, f := range []string{dump.FileTags, dump.FileProducts, dump.FilePipelines, dump.FilePipelineStages, dump.FileLossReasons, dump.FileLeads} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("finished entity file %s should exist: %v", f, err)
		}
	}
	for _, f := range []string{dump.FileBusinesses, dump.FileActivities, dump.FileComplete, dump.FileSummary} {
		if _, err := os.Stat(filepath.Join(dir, f)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("file %s should not exist after a failed run", f)
		}
	}
}

func TestPrintSummary(t *testing.T) {

	var buf bytes.Buffer
	PrintSummary(&buf, &dump.Summary{
		Counts:        dump.Counts{Leads: 10126, Tags: 37},
		DumpDirectory: "/tmp/dumps",
	}, 95*time.Second)

	out := buf.String()
	for _, want := range []string{"DUMP COMPLETE", "Leads", "10126", "Tags", "37", "1m35s", "/tmp/dumps"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}
