package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"
	"github.com/felipezacker/zcrm/config"
	"github.com/felipezacker/zcrm/db"
	"github.com/felipezacker/zcrm/dump"
	"github.com/felipezacker/zcrm/migrate"
	"github.com/felipezacker/zcrm/validate"
)

// newTestApp returns an App reading answer from stdin and writing to a buffer.
func newTestApp(answer string, terminal bool) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return &App{
		stdout:     &out,
		stderr:     io.Discard,
		stdin:      strings.NewReader(answer),
		isTerminal: func() bool { return terminal },
		now:        time.Now,
	}, &out
}

// writeDump writes a small dump to a temporary directory. With gaps, a business
// references a lead missing from the dump.
func writeDump(t *testing.T, gaps bool) string {
	t.Helper()
	dir := t.TempDir()

	leadID := "l1"
	if gaps {
		leadID = "l-missing"
	}
	files := map[string]any{
		dump.FileTags:           []datacrazy.Tag{{ID: "t1", Name: "VIP"}},
		dump.FileProducts:       []datacrazy.Product{{ID: "p1", Name: "Apto", Price: 10}},
		dump.FilePipelines:      []datacrazy.Pipeline{{ID: "pl1", Name: "Vendas"}},
		dump.FilePipelineStages: map[string][]datacrazy.PipelineStage{"pl1": {{ID: "s1", Name: "Novo"}}},
		dump.FileLossReasons:    []datacrazy.LossReason{},
		dump.FileLeads:          []datacrazy.Lead{{ID: "l1", Name: "Ana", Tags: []datacrazy.Tag{{ID: "t1"}}}},
		dump.FileBusinesses:     []datacrazy.Business{{ID: "b1", LeadID: leadID, StageID: "s1", Status: "open"}},
		dump.FileActivities:     []datacrazy.Activity{},
	}
	for name, v := range files {
		if err := dump.WriteJSON(dir, name, v); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// sqliteTarget points the loader at a rehearsal database file.
func sqliteTarget(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rehearsal.db")
	t.Setenv(config.EnvDatabaseURL, path)
	t.Setenv(config.EnvDatabaseDriver, db.DriverSQLite)
	return path
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()
	store, err := db.NewConnection(db.DriverSQLite, path, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	mount, err := db.SchemaMount("")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.InitSchema(mount, db.SchemaFile); err != nil {
		t.Fatal(err)
	}
	n, err := store.Count(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestValidate(t *testing.T) {
	a, out := newTestApp("", false)
	if err := a.Validate(context.Background(), Options{Dir: writeDump(t, false)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "[OK] all validations passed") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestValidate_Gaps(t *testing.T) {
	a, out := newTestApp("", false)
	err := a.Validate(context.Background(), Options{Dir: writeDump(t, true)})
	if !errors.Is(err, validate.ErrIntegrityGaps) {
		t.Fatalf("got %v want ErrIntegrityGaps", err)
	}
	if !strings.Contains(out.String(), "leadId") {
		t.Errorf("report should name the gap category:\n%s", out.String())
	}
}

func TestValidate_MissingDump(t *testing.T) {
	a, _ := newTestApp("", false)
	err := a.Validate(context.Background(), Options{Dir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMigrate(t *testing.T) {

	tests := []struct {
		name      string
		opts      Options
		answer    string
		terminal  bool
		wantErr   error
		wantTags  int
		wantPrint string
	}{
		{
			name:      "force",
			opts:      Options{Force: true},
			wantTags:  1,
			wantPrint: "POST-MIGRATION COUNTS",
		},
		{
			name:      "confirmed",
			answer:    "y\n",
			terminal:  true,
			wantTags:  1,
			wantPrint: "Migrate 4 records into organization Rehearsal?",
		},
		{
			name:      "declined",
			answer:    "n\n",
			terminal:  true,
			wantTags:  0,
			wantPrint: "Migrate 4 records",
		},
		{
			name:     "not a terminal",
			wantErr:  ErrNotTerminal,
			wantTags: 0,
		},
		{
			name:      "dry run needs no confirmation",
			opts:      Options{DryRun: true},
			wantTags:  0,
			wantPrint: "(dry run)",
		},
		{
			name:      "single entity",
			opts:      Options{Force: true, Entity: migrate.EntityTags},
			wantTags:  1,
			wantPrint: "MIGRATION REPORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := sqliteTarget(t)
			a, out := newTestApp(tt.answer, tt.terminal)
			opts := tt.opts
			opts.Dir = writeDump(t, false)

			err := a.Migrate(context.Background(), opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := countRows(t, path, "tags"); got != tt.wantTags {
				t.Errorf("tags got %d want %d", got, tt.wantTags)
			}
			if !strings.Contains(out.String(), tt.wantPrint) {
				t.Errorf("output missing %q:\n%s", tt.wantPrint, out.String())
			}
		})
	}
}

func TestMigrate_GapsStillLoad(t *testing.T) {
	path := sqliteTarget(t)
	a, out := newTestApp("", false)

	err := a.Migrate(context.Background(), Options{Force: true, Dir: writeDump(t, true)})
	if err != nil {
		t.Fatalf("a deal with a missing lead should load, got %v", err)
	}
	if got := countRows(t, path, "deals"); got != 1 {
		t.Errorf("deals got %d want 1", got)
	}
	if !strings.Contains(out.String(), "references cleared: 1 contacts") {
		t.Errorf("report should mention the cleared reference:\n%s", out.String())
	}
}

func TestMigrate_PreFlight(t *testing.T) {

	t.Run("unknown entity", func(t *testing.T) {
		sqliteTarget(t)
		a, _ := newTestApp("", false)
		err := a.Migrate(context.Background(), Options{Force: true, Entity: "pipelines", Dir: writeDump(t, false)})
		if err == nil || !strings.Contains(err.Error(), "valid entities are") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing database url", func(t *testing.T) {
		t.Setenv(config.EnvDatabaseURL, "")
		a, _ := newTestApp("", false)
		err := a.Migrate(context.Background(), Options{Force: true, Dir: writeDump(t, false)})
		if !errors.Is(err, config.ErrMissingDatabaseURL) {
			t.Errorf("got %v want ErrMissingDatabaseURL", err)
		}
	})

	t.Run("missing dump", func(t *testing.T) {
		sqliteTarget(t)
		a, _ := newTestApp("", false)
		err := a.Migrate(context.Background(), Options{Force: true, Dir: t.TempDir()})
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("no organization", func(t *testing.T) {
		sqliteTarget(t)
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, db.SchemaFile), []byte(
			"CREATE TABLE IF NOT EXISTS organizations (id TEXT, name TEXT, created_at TEXT, deleted_at TEXT);",
		), 0o644); err != nil {
			t.Fatal(err)
		}
		cfgPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(cfgPath, []byte("target:\n  schema_dir: "+dir+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		a, _ := newTestApp("", false)
		err := a.Migrate(context.Background(), Options{ConfigPath: cfgPath, Force: true, Dir: writeDump(t, false)})
		if !errors.Is(err, db.ErrNoOrganization) {
			t.Errorf("got %v want ErrNoOrganization", err)
		}
	})

	t.Run("bad driver flag", func(t *testing.T) {
		sqliteTarget(t)
		a, _ := newTestApp("", false)
		err := a.Migrate(context.Background(), Options{Force: true, Driver: "mysql"})
		if err == nil || !strings.Contains(err.Error(), "--driver") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDump(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got, want := r.Header.Get("Authorization"), "Bearer test-key"; got != want {
			t.Errorf("authorization got %q want %q", got, want)
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := fmt.Sprintf("datacrazy:\n  base_url: %s\n  request_delay: 0s\n", server.URL)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvAPIKey, "test-key")

	a, out := newTestApp("", false)
	dir := t.TempDir()
	if err := a.Dump(context.Background(), Options{ConfigPath: cfgPath, Dir: dir}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// seven entity endpoints; no pipelines means no stage requests
	if got := calls.Load(); got != 7 {
		t.Errorf("requests got %d want 7", got)
	}
	if !strings.Contains(out.String(), "DUMP COMPLETE") {
		t.Errorf("missing summary:\n%s", out.String())
	}
	if _, err := dump.ReadSummary(dir); err != nil {
		t.Errorf("summary not written: %v", err)
	}
}

func TestDump_MissingAPIKey(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	a, _ := newTestApp("", false)
	if err := a.Dump(context.Background(), Options{Dir: t.TempDir()}); !errors.Is(err, config.ErrMissingAPIKey) {
		t.Errorf("got %v want ErrMissingAPIKey", err)
	}
}

func TestLogger(t *testing.T) {
	a, _ := newTestApp("", false)
	if _, err := a.logger("dump", "debug"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := a.logger("dump", "chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}
