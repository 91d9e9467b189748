// Package validate reports on the referential integrity of a dump before it is
// migrated.
package validate

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"
	"github.com/felipezacker/zcrm/dump"

	"github.com/charmbracelet/lipgloss"
)

// ErrIntegrityGaps is returned by the validate command when a dump has references
// to records it does not contain.
var ErrIntegrityGaps = errors.New("some foreign key references are missing")

// Target table names, in migration order.
const (
	TableTags        = "tags"
	TableLossReasons = "loss_reasons"
	TableProducts    = "products"
	TableBoards      = "boards"
	TableBoardStages = "board_stages"
	TableContacts    = "contacts"
	TableContactTags = "contact_tags"
	TableDeals       = "deals"
	TableDealItems   = "deal_items"
	TableActivities  = "activities"
)

// Tables lists the target tables in migration order.
var Tables = []string{
	TableTags,
	TableLossReasons,
	TableProducts,
	TableBoards,
	TableBoardStages,
	TableContacts,
	TableContactTags,
	TableDeals,
	TableDealItems,
	TableActivities,
}

// ContactStats describe the leads that become contacts.
type ContactStats struct {
	Total         int
	WithTags      int
	WithEmail     int
	WithPhone     int
	WithBirthDate int
	WithNotes     int
}

// DealStats describe the businesses that become deals.
type DealStats struct {
	Total          int
	Won            int
	Lost           int
	Open           int
	WithProducts   int
	DealItems      int
	WithLossReason int
}

// Gaps count references to records missing from the dump.
type Gaps struct {
	MissingLeads       int
	MissingStages      int
	MissingProducts    int
	MissingLossReasons int
}

// ActivityStats describe the activities.
type ActivityStats struct {
	Total       int
	WithDeal    int
	WithContact int
}

// TableCount is the number of rows expected in a target table.
type TableCount struct {
	Table string
	Count int
}

// Report is the result of Check.
type Report struct {
	Contacts    ContactStats
	Deals       DealStats
	Gaps        Gaps
	ContactTags int
	Activities  ActivityStats
	Expected    []TableCount
}

// Check computes the integrity report of d. It does not modify d.
func Check(d *dump.Dump) *Report {
	r := &Report{}

	for _, l := range d.Leads {
		r.Contacts.Total++
		if len(l.Tags) > 0 {
			r.Contacts.WithTags++
		}
		if l.Email != "" {
			r.Contacts.WithEmail++
		}
		if l.Phone != "" {
			r.Contacts.WithPhone++
		}
		if l.BirthDate != "" {
			r.Contacts.WithBirthDate++
		}
		if l.Notes != "" {
			r.Contacts.WithNotes++
		}
	}

	leadIDs := idSet(d.Leads, func(l datacrazy.Lead) string { return l.ID })
	productIDs := idSet(d.Products, func(p datacrazy.Product) string { return p.ID })
	lossReasonIDs := idSet(d.LossReasons, func(lr datacrazy.LossReason) string { return lr.ID })
	stageIDs := map[string]bool{}
	for _, stages := range d.PipelineStages {
		for _, s := range stages {
			stageIDs[s.ID] = true
		}
	}

	for _, b := range d.Businesses {
		r.Deals.Total++
		switch b.Status {
		case datacrazy.StatusWon:
			r.Deals.Won++
		case datacrazy.StatusLost:
			r.Deals.Lost++
		default:
			r.Deals.Open++
		}
		if len(b.Products) > 0 {
			r.Deals.WithProducts++
			r.Deals.DealItems += len(b.Products)
		}
		if b.LossReasonID != "" {
			r.Deals.WithLossReason++
		}

		if b.LeadID != "" && !leadIDs[b.LeadID] {
			r.Gaps.MissingLeads++
		}
		if b.StageID != "" && !stageIDs[b.StageID] {
			r.Gaps.MissingStages++
		}
		for _, item := range b.Products {
			if pid := item.ProductID(); pid != "" && !productIDs[pid] {
				r.Gaps.MissingProducts++
			}
		}
		if b.LossReasonID != "" && !lossReasonIDs[b.LossReasonID] {
			r.Gaps.MissingLossReasons++
		}
	}

	seen := map[string]bool{}
	for _, l := range d.Leads {
		for _, t := range l.Tags {
			k := l.ID + ":" + t.ID
			if !seen[k] {
				seen[k] = true
				r.ContactTags++
			}
		}
	}

	for _, a := range d.Activities {
		r.Activities.Total++
		if a.Business != nil {
			r.Activities.WithDeal++
		}
		if a.Lead != nil {
			r.Activities.WithContact++
		}
	}

	r.Expected = []TableCount{
		{TableTags, len(d.Tags)},
		{TableLossReasons, len(d.LossReasons)},
		{TableProducts, len(d.Products)},
		{TableBoards, len(d.Pipelines)},
		{TableBoardStages, d.StageCount()},
		{TableContacts, len(d.Leads)},
		{TableContactTags, r.ContactTags},
		{TableDeals, len(d.Businesses)},
		{TableDealItems, r.Deals.DealItems},
		{TableActivities, len(d.Activities)},
	}
	return r
}

func idSet[T any](records []T, id func(T) string) map[string]bool {
	set := make(map[string]bool, len(records))
	for _, r := range records {
		set[id(r)] = true
	}
	return set
}

// ExpectedFor returns the expected row count of table.
func (r *Report) ExpectedFor(table string) int {
	for _, tc := range r.Expected {
		if tc.Table == table {
			return tc.Count
		}
	}
	return 0
}

// Total is the number of rows the migration is expected to write.
func (r *Report) Total() int {
	n := 0
	for _, tc := range r.Expected {
		n += tc.Count
	}
	return n
}

// HasIntegrityGaps reports whether any reference points at a missing record.
func (r *Report) HasIntegrityGaps() bool {
	return len(r.GapCategories()) > 0
}

// GapCategories names the reference categories with missing records.
func (r *Report) GapCategories() []string {
	var c []string
	if r.Gaps.MissingLeads > 0 {
		c = append(c, "leadId")
	}
	if r.Gaps.MissingStages > 0 {
		c = append(c, "stageId")
	}
	if r.Gaps.MissingProducts > 0 {
		c = append(c, "product")
	}
	if r.Gaps.MissingLossReasons > 0 {
		c = append(c, "lossReason")
	}
	return c
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginTop(1)
	labelStyle   = lipgloss.NewStyle().PaddingLeft(2).Width(28)
	countStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	gapStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Print writes the report as human readable text.
func (r *Report) Print(w io.Writer) {
	heading := func(s string) { fmt.Fprintln(w, headingStyle.Render("=== "+s+" ===")) }
	line := func(label string, n int) {
		fmt.Fprintln(w, labelStyle.Render(label+":")+countStyle.Render(fmt.Sprint(n)))
	}
	gap := func(label string, n int) {
		style := countStyle
		if n > 0 {
			style = gapStyle
		}
		fmt.Fprintln(w, labelStyle.Render(label+":")+style.Render(fmt.Sprint(n)))
	}

	heading("CONTACTS (from leads)")
	line("Total", r.Contacts.Total)
	line("With tags", r.Contacts.WithTags)
	line("With email", r.Contacts.WithEmail)
	line("With phone", r.Contacts.WithPhone)
	line("With birthDate", r.Contacts.WithBirthDate)
	line("With notes", r.Contacts.WithNotes)

	heading("DEALS (from businesses)")
	line("Total", r.Deals.Total)
	line("Won", r.Deals.Won)
	line("Lost", r.Deals.Lost)
	line("Open", r.Deals.Open)
	line("With products", r.Deals.WithProducts)
	line("Deal items", r.Deals.DealItems)
	line("With loss reason", r.Deals.WithLossReason)
	gap("Missing leadId refs", r.Gaps.MissingLeads)
	gap("Missing stageId refs", r.Gaps.MissingStages)
	gap("Missing product refs", r.Gaps.MissingProducts)
	gap("Missing lossReason refs", r.Gaps.MissingLossReasons)

	heading("JUNCTION: contact_tags")
	line("Total unique links", r.ContactTags)

	heading("ACTIVITIES")
	line("Total", r.Activities.Total)
	line("With deal", r.Activities.WithDeal)
	line("With contact", r.Activities.WithContact)

	heading("TOTAL RECORDS TO MIGRATE")
	for _, tc := range r.Expected {
		line(tc.Table, tc.Count)
	}
	line("TOTAL", r.Total())

	fmt.Fprintln(w)
	if cats := r.GapCategories(); len(cats) > 0 {
		fmt.Fprintln(w, warnStyle.Render("[WARN] missing references: "+strings.Join(cats, ", ")))
		return
	}
	fmt.Fprintln(w, okStyle.Render("[OK] all validations passed"))
}
