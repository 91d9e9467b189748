package dump

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"

	"golang.org/x/sync/errgroup"
)

// Dump is a decoded snapshot. It is not modified after Load returns.
type Dump struct {
	Dir            string
	Tags           []datacrazy.Tag
	Products       []datacrazy.Product
	Pipelines      []datacrazy.Pipeline
	PipelineStages map[string][]datacrazy.PipelineStage
	LossReasons    []datacrazy.LossReason
	Leads          []datacrazy.Lead
	Businesses     []datacrazy.Business
	Activities     []datacrazy.Activity
}

// Load reads and decodes the eight entity files in dir. The files are read
// concurrently. A missing or malformed file is an error naming that file.
func Load(dir string) (*Dump, error) {
	d := &Dump{Dir: dir}

	var g errgroup.Group
	g.Go(func() error { return readJSON(filepath.Join(dir, FileTags), &d.Tags) })
	g.Go(func() error { return readJSON(filepath.Join(dir, FileProducts), &d.Products) })
	g.Go(func() error { return readJSON(filepath.Join(dir, FilePipelines), &d.Pipelines) })
	g.Go(func() error { return readJSON(filepath.Join(dir, FilePipelineStages), &d.PipelineStages) })
	g.Go(func() error { return readJSON(filepath.Join(dir, FileLossReasons), &d.LossReasons) })
	g.Go(func() error { return readJSON(filepath.Join(dir, FileLeads), &d.Leads) })
	g.Go(func() error { return readJSON(filepath.Join(dir, FileBusinesses), &d.Businesses) })
	g.Go(func() error { return readJSON(filepath.Join(dir, FileActivities), &d.Activities) })

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if d.PipelineStages == nil {
		d.PipelineStages = map[string][]datacrazy.PipelineStage{}
	}
	return d, nil
}

// readJSON decodes the file at path into v.
func readJSON[T any](path string, v *T) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("dump file %s not found: %w", path, err)
		}
		return fmt.Errorf("could not read dump file %s: %w", path, err)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("could not parse dump file %s: %w", path, err)
	}
	return nil
}

// StageCount is the total number of pipeline stages.
func (d *Dump) StageCount() int {
	n := 0
	for _, s := range d.PipelineStages {
		n += len(s)
	}
	return n
}
