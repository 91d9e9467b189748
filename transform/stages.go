package transform

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"
)

// Defaults for board stages.
const (
	DefaultStageColor     = "#3B82F6"
	PlaceholderStageColor = "#9CA3AF"
	placeholderNameFormat = "[Migrado] Stage %d"
)

// PipelineOrder returns the ids of pipelines owning stages: pipelines in source order,
// then ids that only appear as keys of stages, sorted. The first id is the first
// board.
func PipelineOrder(pipelines []datacrazy.Pipeline, stages map[string][]datacrazy.PipelineStage) []string {
	seen := make(map[string]bool, len(pipelines))
	var order []string
	for _, p := range pipelines {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		order = append(order, p.ID)
	}
	var extra []string
	for id := range stages {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	return append(order, extra...)
}

// StageBoardIndex resolves the board of a business from its stage id.
type StageBoardIndex struct {
	boards     map[string]string
	firstBoard string
}

// BuildStageBoardIndex maps every stage id to its board. Stage ids referenced by
// businesses but missing from stages map to the first board, where their
// placeholder stages are created.
func BuildStageBoardIndex(
	stages map[string][]datacrazy.PipelineStage,
	pipelines []datacrazy.Pipeline,
	businesses []datacrazy.Business,
) *StageBoardIndex {

	idx := &StageBoardIndex{boards: map[string]string{}}
	order := PipelineOrder(pipelines, stages)
	if len(order) > 0 {
		idx.firstBoard = order[0]
	}
	for _, boardID := range order {
		for _, s := range stages[boardID] {
			idx.boards[s.ID] = boardID
		}
	}
	if idx.firstBoard == "" {
		return idx
	}
	for _, b := range businesses {
		if b.StageID == "" {
			continue
		}
		if _, ok := idx.boards[b.StageID]; !ok {
			idx.boards[b.StageID] = idx.firstBoard
		}
	}
	return idx
}

// FirstBoard is the board that receives placeholder stages, or "" when there are no
// boards.
func (idx *StageBoardIndex) FirstBoard() string {
	return idx.firstBoard
}

// Lookup returns the board and stage for a business stage id. An empty stage id
// resolves to the first board with no stage. Both are nil when no board exists.
func (idx *StageBoardIndex) Lookup(stageID string) (boardID, stage *string) {
	if stageID == "" {
		return optional(idx.firstBoard), nil
	}
	if b, ok := idx.boards[stageID]; ok {
		return &b, &stageID
	}
	return optional(idx.firstBoard), nil
}

// PlaceholderReport describes the stages synthesized for stage ids referenced by
// businesses but missing from the dump.
type PlaceholderReport struct {
	IDs []string
	// Deals counts the businesses moved onto placeholder stages.
	Deals int
	// Unattached lists missing stage ids skipped because there is no board.
	Unattached []string
}

// PrepareBoardStages maps pipeline stages to board stages, and appends one placeholder
// stage on the first board for each distinct missing stage id referenced by a
// business, in first seen order.
func PrepareBoardStages(
	stages map[string][]datacrazy.PipelineStage,
	pipelines []datacrazy.Pipeline,
	businesses []datacrazy.Business,
	orgID string,
	now time.Time,
) ([]BoardStage, PlaceholderReport) {

	var rows []BoardStage
	known := map[string]bool{}
	maxOrder := 0

	order := PipelineOrder(pipelines, stages)
	for _, boardID := range order {
		for _, s := range stages[boardID] {
			known[s.ID] = true
			maxOrder = max(maxOrder, s.Index)
			name := strings.TrimSpace(s.Name)
			rows = append(rows, BoardStage{
				ID:             s.ID,
				BoardID:        boardID,
				Name:           name,
				Label:          name,
				Color:          orDefault(s.Color, DefaultStageColor),
				Order:          s.Index,
				IsDefault:      s.Index == 0,
				OrganizationID: orgID,
				CreatedAt:      optional(s.CreatedAt),
			})
		}
	}

	var report PlaceholderReport
	missing := map[string]bool{}
	for _, b := range businesses {
		if b.StageID == "" || known[b.StageID] {
			continue
		}
		if len(order) == 0 {
			if !missing[b.StageID] {
				missing[b.StageID] = true
				report.Unattached = append(report.Unattached, b.StageID)
			}
			continue
		}
		report.Deals++
		if missing[b.StageID] {
			continue
		}
		missing[b.StageID] = true

		report.IDs = append(report.IDs, b.StageID)
		n := len(report.IDs)
		name := fmt.Sprintf(placeholderNameFormat, n)
		createdAt := now.UTC().Format(timestampFormat)
		rows = append(rows, BoardStage{
			ID:             b.StageID,
			BoardID:        order[0],
			Name:           name,
			Label:          name,
			Color:          PlaceholderStageColor,
			Order:          maxOrder + n,
			IsDefault:      false,
			OrganizationID: orgID,
			CreatedAt:      &createdAt,
		})
	}
	return rows, report
}
