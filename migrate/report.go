package migrate

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felipezacker/zcrm/transform"
)

// EntityResult is the outcome of one entity.
type EntityResult struct {
	Entity        string
	Table         string
	Rows          int
	Inserted      int
	Errors        []RowError
	BatchFailures int
	// Expected is the row count derived from the dump.
	Expected  int
	ErrorFile string
}

// TableCount is a table row count read after the migration.
type TableCount struct {
	Table    string
	Count    int
	Expected int
}

// Report is the result of a migration run.
type Report struct {
	DryRun       bool
	Entities     []EntityResult
	Counts       []TableCount
	Placeholders transform.PlaceholderReport
	// Nulled counts references written as null because their record is not in the dump.
	Nulled  transform.NulledRefs
	Elapsed time.Duration
}

// TotalInserted is the number of rows written.
func (r *Report) TotalInserted() int {
	n := 0
	for _, e := range r.Entities {
		n += e.Inserted
	}
	return n
}

// TotalErrors is the number of rows that could not be written.
func (r *Report) TotalErrors() int {
	n := 0
	for _, e := range r.Entities {
		n += len(e.Errors)
	}
	return n
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	entityStyle = lipgloss.NewStyle().Width(16)
	cellStyle   = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
	errorStyle  = cellStyle.Foreground(lipgloss.Color("9")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Print writes the report as a table.
func (r *Report) Print(w io.Writer) {
	rule := ruleStyle.Render("────────────────────────────────────────────────────────────")
	cell := func(n int) string { return cellStyle.Render(fmt.Sprint(n)) }
	errCell := func(n int) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprint(n))
		}
		return cell(n)
	}

	title := "MIGRATION REPORT"
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, headerStyle.Render(
		entityStyle.Render("Entity")+
			cellStyle.Render("Inserted")+
			cellStyle.Render("Errors")+
			cellStyle.Render("Batches")+
			cellStyle.Render("Expected"),
	))
	for _, e := range r.Entities {
		fmt.Fprintln(w, entityStyle.Render(e.Entity)+
			cell(e.Inserted)+
			errCell(len(e.Errors))+
			errCell(e.BatchFailures)+
			cell(e.Expected))
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, entityStyle.Render("TOTAL")+cell(r.TotalInserted())+errCell(r.TotalErrors()))
	fmt.Fprintln(w, entityStyle.Render("Duration")+cellStyle.Render(r.Elapsed.Round(time.Millisecond).String()))

	if n := len(r.Placeholders.IDs); n > 0 {
		fmt.Fprintf(w, "%d placeholder stages created for %d deals\n", n, r.Placeholders.Deals)
	}
	if n := r.Nulled; n != (transform.NulledRefs{}) {
		fmt.Fprintf(w, "references cleared: %d contacts, %d loss reasons, %d products, %d deals\n",
			n.Contacts, n.LossReasons, n.Products, n.Deals)
	}
	for _, e := range r.Entities {
		if e.ErrorFile != "" {
			fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("%s errors written to %s", e.Entity, e.ErrorFile)))
		}
	}

	if len(r.Counts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("POST-MIGRATION COUNTS"))
		fmt.Fprintln(w, rule)
		fmt.Fprintln(w, headerStyle.Render(
			entityStyle.Render("Table")+cellStyle.Render("Count")+cellStyle.Render("Expected"),
		))
		for _, c := range r.Counts {
			mark := okStyle.Render(" ok")
			if c.Count < c.Expected {
				mark = failStyle.Render(" short")
			}
			fmt.Fprintln(w, entityStyle.Render(c.Table)+cell(c.Count)+cell(c.Expected)+mark)
		}
	}
}
