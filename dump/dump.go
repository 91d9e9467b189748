// Package dump defines the on-disk snapshot of a DataCrazy account: the file names,
// the raw snapshot written by the extractor, and the typed dump read back by the
// validator and the migrator.
package dump

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultDir is where snapshots are written and read unless configured otherwise.
var DefaultDir = filepath.Join("data", "dumps")

// Snapshot file names.
const (
	FileComplete       = "datacrazy-complete-dump.json"
	FileLeads          = "datacrazy-leads.json"
	FileBusinesses     = "datacrazy-businesses.json"
	FileProducts       = "datacrazy-products.json"
	FileTags           = "datacrazy-tags.json"
	FilePipelines      = "datacrazy-pipelines.json"
	FilePipelineStages = "datacrazy-pipeline-stages.json"
	FileActivities     = "datacrazy-activities.json"
	FileLossReasons    = "datacrazy-loss-reasons.json"
	FileSummary        = "datacrazy-dump-summary.json"
)

// EntityFiles lists the per-entity files in the order they are listed in a summary.
var EntityFiles = []string{
	FileLeads,
	FileBusinesses,
	FileProducts,
	FileTags,
	FilePipelines,
	FilePipelineStages,
	FileActivities,
	FileLossReasons,
}

// Snapshot is an undecoded copy of every record fetched from the API, so fields the
// migration ignores are preserved on disk.
type Snapshot struct {
	ExportedAt time.Time    `json:"exportedAt"`
	Data       SnapshotData `json:"data"`
}

// SnapshotData holds the raw records by entity. PipelineStages is keyed by pipeline
// id.
type SnapshotData struct {
	Tags           []json.RawMessage            `json:"tags"`
	Products       []json.RawMessage            `json:"products"`
	Pipelines      []json.RawMessage            `json:"pipelines"`
	PipelineStages map[string][]json.RawMessage `json:"pipelineStages"`
	LossReasons    []json.RawMessage            `json:"lossReasons"`
	Leads          []json.RawMessage            `json:"leads"`
	Businesses     []json.RawMessage            `json:"businesses"`
	Activities     []json.RawMessage            `json:"activities"`
}

// Counts are the number of records per entity.
type Counts struct {
	Leads          int `json:"leads"`
	Businesses     int `json:"businesses"`
	Products       int `json:"products"`
	Tags           int `json:"tags"`
	Pipelines      int `json:"pipelines"`
	PipelineStages int `json:"pipelineStages"`
	Activities     int `json:"activities"`
	LossReasons    int `json:"lossReasons"`
}

// SummaryFiles names the files written by a dump.
type SummaryFiles struct {
	Complete string   `json:"complete"`
	Entities []string `json:"entities"`
}

// Summary is written last by a successful dump.
type Summary struct {
	ExportedAt    time.Time    `json:"exportedAt"`
	Counts        Counts       `json:"summary"`
	Files         SummaryFiles `json:"files"`
	DumpDirectory string       `json:"dumpDirectory"`
}

// Counts returns the number of records per entity in the snapshot.
func (s *Snapshot) Counts() Counts {
	c := Counts{
		Leads:       len(s.Data.Leads),
		Businesses:  len(s.Data.Businesses),
		Products:    len(s.Data.Products),
		Tags:        len(s.Data.Tags),
		Pipelines:   len(s.Data.Pipelines),
		Activities:  len(s.Data.Activities),
		LossReasons: len(s.Data.LossReasons),
	}
	for _, stages := range s.Data.PipelineStages {
		c.PipelineStages += len(stages)
	}
	return c
}

// Summary builds the summary of the snapshot written to dir.
func (s *Snapshot) Summary(dir string) *Summary {
	entities := make([]string, len(EntityFiles))
	copy(entities, EntityFiles)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Summary{
		ExportedAt:    s.ExportedAt,
		Counts:        s.Counts(),
		Files:         SummaryFiles{Complete: FileComplete, Entities: entities},
		DumpDirectory: dir,
	}
}

// fileMode is the permission of the files written to the dump directory.
const fileMode os.FileMode = 0o644

// WriteJSON writes v as 2-space indented JSON to dir/name, creating dir if needed.
// The content goes to a temporary file in dir which is then renamed over name, so a
// reader never sees a partially written file.
func WriteJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create dump directory %s: %w", dir, err)
	}

	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	// CreateTemp makes the file owner only.
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not set mode of %s: %w", name, err)
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("could not move %s into place: %w", name, err)
	}
	return nil
}

// WriteComplete writes the complete snapshot file.
func WriteComplete(dir string, s *Snapshot) error {
	return WriteJSON(dir, FileComplete, s)
}

// WriteSummary writes the summary file.
func WriteSummary(dir string, s *Summary) error {
	return WriteJSON(dir, FileSummary, s)
}

// ReadSummary reads the summary of a previous dump.
func ReadSummary(dir string) (*Summary, error) {
	var s Summary
	if err := readJSON(filepath.Join(dir, FileSummary), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
