// Package extract copies every record of a DataCrazy account into the snapshot files
// of the dump package.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"
	"github.com/felipezacker/zcrm/dump"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Extractor runs a full extraction into a dump directory.
type Extractor struct {
	client *datacrazy.APIClient
	dir    string
	log    *log.Logger
	now    func() time.Time
}

// New returns an Extractor writing to dir.
func New(client *datacrazy.APIClient, dir string, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{
		client: client,
		dir:    dir,
		log:    logger,
		now:    time.Now,
	}
}

// Run fetches every entity in dependency order. Each entity file is written as soon as
// that entity is complete, so entities finished before a failure remain usable. The
// complete dump and the summary are written only after every fetch succeeded.
func (e *Extractor) Run(ctx context.Context) (*dump.Summary, error) {

	snap := &dump.Snapshot{
		ExportedAt: e.now().UTC(),
		Data: dump.SnapshotData{
			PipelineStages: map[string][]json.RawMessage{},
		},
	}
	d := &snap.Data

	e.log.Info("starting extraction", "dir", e.dir)

	steps := []struct {
		label string
		file  string
		fetch func(context.Context) ([]json.RawMessage, error)
		dst   *[]json.RawMessage
	}{
		{"tags", dump.FileTags, e.client.Tags, &d.Tags},
		{"products", dump.FileProducts, e.client.Products, &d.Products},
		{"pipelines", dump.FilePipelines, e.client.Pipelines, &d.Pipelines},
		{"loss reasons", dump.FileLossReasons, e.client.LossReasons, &d.LossReasons},
		{"leads", dump.FileLeads, e.client.Leads, &d.Leads},
		{"businesses", dump.FileBusinesses, e.client.Businesses, &d.Businesses},
		{"activities", dump.FileActivities, e.client.Activities, &d.Activities},
	}

	for _, s := range steps {
		if err := e.entity(ctx, s.label, s.file, s.fetch, s.dst); err != nil {
			return nil, err
		}
		// Stages hang off pipelines and are fetched before loss reasons.
		if s.file == dump.FilePipelines {
			if err := e.stages(ctx, d); err != nil {
				return nil, err
			}
		}
	}

	e.log.Info("saving complete dump")
	if err := dump.WriteComplete(e.dir, snap); err != nil {
		return nil, err
	}

	summary := snap.Summary(e.dir)
	if err := dump.WriteSummary(e.dir, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// entity fetches one entity and writes its file.
func (e *Extractor) entity(
	ctx context.Context,
	label, file string,
	fetch func(context.Context) ([]json.RawMessage, error),
	dst *[]json.RawMessage,
) error {

	e.log.Info("extracting " + label)
	records, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", label, err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	*dst = records

	if err := dump.WriteJSON(e.dir, file, records); err != nil {
		return err
	}
	e.log.Info(fmt.Sprintf("total: %d %s", len(records), label), "file", file)
	return nil
}

// stages fetches the stages of every pipeline in d and writes them keyed by pipeline
// id.
func (e *Extractor) stages(ctx context.Context, d *dump.SnapshotData) error {

	pipelines, err := datacrazy.Decode[datacrazy.Pipeline](d.Pipelines)
	if err != nil {
		return fmt.Errorf("decoding pipelines: %w", err)
	}

	e.log.Info("extracting pipeline stages")
	for _, p := range pipelines {
		records, err := e.client.PipelineStages(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("extracting stages of pipeline %s: %w", p.ID, err)
		}
		if records == nil {
			records = []json.RawMessage{}
		}
		d.PipelineStages[p.ID] = records
		e.log.Info(fmt.Sprintf("got %d stages", len(records)), "pipeline", p.Name, "id", p.ID)
	}
	return dump.WriteJSON(e.dir, dump.FilePipelineStages, d.PipelineStages)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("252"))
	countStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Right).Width(8)
	ruleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// PrintSummary writes a human readable summary of a finished dump.
func PrintSummary(w io.Writer, s *dump.Summary, elapsed time.Duration) {
	rule := ruleStyle.Render("──────────────────────────────────────────────────")
	rows := []struct {
		label string
		n     int
	}{
		{"Leads", s.Counts.Leads},
		{"Businesses", s.Counts.Businesses},
		{"Products", s.Counts.Products},
		{"Tags", s.Counts.Tags},
		{"Pipelines", s.Counts.Pipelines},
		{"Pipeline stages", s.Counts.PipelineStages},
		{"Activities", s.Counts.Activities},
		{"Loss reasons", s.Counts.LossReasons},
	}

	fmt.Fprintln(w, titleStyle.Render("DUMP COMPLETE"))
	fmt.Fprintln(w, rule)
	for _, r := range rows {
		fmt.Fprintln(w, labelStyle.Render(r.label)+countStyle.Render(fmt.Sprint(r.n)))
	}
	fmt.Fprintln(w, labelStyle.Render("Duration")+countStyle.Render(elapsed.Round(time.Second).String()))
	fmt.Fprintln(w, labelStyle.Render("Location")+" "+s.DumpDirectory)
	fmt.Fprintln(w, rule)
}
