// Package migrate loads a dump into the ZmobCRM database. Entities are transformed and
// written one after the other in foreign key order.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/felipezacker/zcrm/dump"
	"github.com/felipezacker/zcrm/transform"
	"github.com/felipezacker/zcrm/validate"
)

// ErrRowErrors is returned by the migrate command when some rows could not be written.
var ErrRowErrors = errors.New("some rows failed to migrate")

// Entity names accepted by --entity, in migration order.
const (
	EntityTags        = "tags"
	EntityLossReasons = "loss_reasons"
	EntityProducts    = "products"
	EntityBoards      = "boards"
	EntityStages      = "stages"
	EntityContacts    = "contacts"
	EntityContactTags = "contact_tags"
	EntityDeals       = "deals"
	EntityDealItems   = "deal_items"
	EntityActivities  = "activities"
)

// Entities lists the entity names in migration order.
var Entities = []string{
	EntityTags,
	EntityLossReasons,
	EntityProducts,
	EntityBoards,
	EntityStages,
	EntityContacts,
	EntityContactTags,
	EntityDeals,
	EntityDealItems,
	EntityActivities,
}

// Options configure a Migrator.
type Options struct {
	OrganizationID string
	BatchSize      int
	DryRun         bool
	// Entity limits the run to one entity when not empty.
	Entity string
	// ErrorsDir receives a migration-errors-{entity}.json file per entity with errors.
	ErrorsDir         string
	DisableTriggerRPC string
	EnableTriggerRPC  string
}

// Migrator writes a dump to a Store.
type Migrator struct {
	store Store
	opts  Options
	log   *log.Logger
	now   func() time.Time
}

// ValidateEntity reports an unknown entity name, listing the valid ones.
func ValidateEntity(name string) error {
	if name == "" || slices.Contains(Entities, name) {
		return nil
	}
	return fmt.Errorf("unknown entity %q, valid entities are: %s", name, strings.Join(Entities, ", "))
}

// New returns a Migrator. In dry run mode store is not used.
func New(store Store, opts Options, logger *log.Logger) (*Migrator, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := ValidateEntity(opts.Entity); err != nil {
		return nil, err
	}
	if opts.OrganizationID == "" {
		return nil, errors.New("no organization id provided")
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", opts.BatchSize)
	}
	if opts.ErrorsDir == "" {
		opts.ErrorsDir = "."
	}
	if opts.DryRun {
		store = dryRunStore{log: logger}
	}
	return &Migrator{
		store: store,
		opts:  opts,
		log:   logger,
		now:   time.Now,
	}, nil
}

// step writes the rows of one entity.
type step struct {
	entity   string
	table    string
	conflict []string
	rows     []transform.Row
}

// steps transforms d into the ordered write steps.
func (m *Migrator) steps(d *dump.Dump) ([]step, transform.PlaceholderReport, transform.NulledRefs) {
	org := m.opts.OrganizationID
	idx := transform.BuildStageBoardIndex(d.PipelineStages, d.Pipelines, d.Businesses)
	stages, placeholders := transform.PrepareBoardStages(d.PipelineStages, d.Pipelines, d.Businesses, org, m.now())
	deals, dealRefs := transform.PrepareDeals(d.Businesses, d.Leads, d.LossReasons, idx, org)
	items, itemRefs := transform.PrepareDealItems(d.Businesses, d.Products, org)
	activities, activityRefs := transform.PrepareActivities(d.Activities, d.Leads, d.Businesses, org)

	id := []string{"id"}
	return []step{
		{EntityTags, validate.TableTags, id, asRows(transform.PrepareTags(d.Tags, org))},
		{EntityLossReasons, validate.TableLossReasons, id, asRows(transform.PrepareLossReasons(d.LossReasons, org))},
		{EntityProducts, validate.TableProducts, id, asRows(transform.PrepareProducts(d.Products, org))},
		{EntityBoards, validate.TableBoards, id, asRows(transform.PrepareBoards(d.Pipelines, org))},
		{EntityStages, validate.TableBoardStages, id, asRows(stages)},
		{EntityContacts, validate.TableContacts, id, asRows(transform.PrepareContacts(d.Leads, org))},
		{EntityContactTags, validate.TableContactTags, []string{"contact_id", "tag_id"}, asRows(transform.PrepareContactTags(d.Leads))},
		{EntityDeals, validate.TableDeals, id, asRows(deals)},
		{EntityDealItems, validate.TableDealItems, id, asRows(items)},
		{EntityActivities, validate.TableActivities, id, asRows(activities)},
	}, placeholders, dealRefs.Add(itemRefs).Add(activityRefs)
}

// warnNulled logs the references cleared because their record is not in the dump.
func (m *Migrator) warnNulled(n transform.NulledRefs) {
	for _, c := range []struct {
		count int
		what  string
	}{
		{n.Contacts, "contact"},
		{n.LossReasons, "loss reason"},
		{n.Products, "product"},
		{n.Deals, "deal"},
	} {
		if c.count > 0 {
			m.log.Warn(fmt.Sprintf("cleared %d %s references missing from the dump, review them manually", c.count, c.what))
		}
	}
}

// Run migrates d. Row errors are reported, not returned; the returned error is a
// cancelled context or a failure to write an error file or read back counts.
func (m *Migrator) Run(ctx context.Context, d *dump.Dump) (*Report, error) {
	start := m.now()
	expected := validate.Check(d)

	steps, placeholders, nulled := m.steps(d)
	report := &Report{
		DryRun:       m.opts.DryRun,
		Placeholders: placeholders,
		Nulled:       nulled,
	}
	expectedFor := func(table string) int {
		n := expected.ExpectedFor(table)
		if table == validate.TableBoardStages {
			n += len(placeholders.IDs)
		}
		return n
	}
	if n := len(placeholders.IDs); n > 0 {
		m.log.Warn(fmt.Sprintf("created %d placeholder stages for %d deals", n, placeholders.Deals))
	}
	if n := len(placeholders.Unattached); n > 0 {
		m.log.Warn(fmt.Sprintf("no board for %d missing stages, deals keep no stage", n), "stages", placeholders.Unattached)
	}
	m.warnNulled(nulled)

	for _, s := range steps {
		if m.opts.Entity != "" && s.entity != m.opts.Entity {
			continue
		}
		m.log.Info("migrating " + s.entity)

		var res BatchResult
		var err error
		if s.entity == EntityDeals && !m.opts.DryRun {
			err = m.withDealTriggerDisabled(ctx, func() error {
				res, err = m.write(ctx, s)
				return err
			})
		} else {
			res, err = m.write(ctx, s)
		}
		if err != nil {
			return report, fmt.Errorf("migrating %s: %w", s.entity, err)
		}

		result := EntityResult{
			Entity:        s.entity,
			Table:         s.table,
			Rows:          len(s.rows),
			Inserted:      res.Inserted,
			Errors:        res.Errors,
			BatchFailures: res.BatchFailures,
			Expected:      expectedFor(s.table),
		}
		if len(res.Errors) > 0 {
			file := fmt.Sprintf("migration-errors-%s.json", s.entity)
			if err := dump.WriteJSON(m.opts.ErrorsDir, file, res.Errors); err != nil {
				return report, err
			}
			result.ErrorFile = filepath.Join(m.opts.ErrorsDir, file)
			m.log.Error(fmt.Sprintf("%d %s rows failed", len(res.Errors), s.entity), "file", result.ErrorFile)
		}
		report.Entities = append(report.Entities, result)
	}

	if !m.opts.DryRun {
		for _, table := range validate.Tables {
			n, err := m.store.Count(ctx, table)
			if err != nil {
				return report, err
			}
			report.Counts = append(report.Counts, TableCount{
				Table:    table,
				Count:    n,
				Expected: expectedFor(table),
			})
		}
	}

	report.Elapsed = m.now().Sub(start)
	return report, nil
}

// write upserts the rows of s. A dry run logs the whole entity in one call.
func (m *Migrator) write(ctx context.Context, s step) (BatchResult, error) {
	if m.opts.DryRun {
		if err := m.store.Upsert(ctx, s.table, s.conflict, asAny(s.rows), false); err != nil {
			return BatchResult{}, err
		}
		return BatchResult{Inserted: len(s.rows)}, nil
	}
	return BatchUpsert(ctx, m.store, s.table, s.conflict, s.rows, m.opts.BatchSize, m.log)
}

// withDealTriggerDisabled runs fn with the deals trigger disabled. Failing to toggle
// the trigger is logged and does not stop the run. The trigger is re-enabled however
// fn returns, including after the context is cancelled.
func (m *Migrator) withDealTriggerDisabled(ctx context.Context, fn func() error) error {
	if err := m.store.CallRPC(ctx, m.opts.DisableTriggerRPC); err != nil {
		m.log.Warn("could not disable the deals trigger, continuing", "rpc", m.opts.DisableTriggerRPC, "err", err)
	}
	defer func() {
		if err := m.store.CallRPC(context.WithoutCancel(ctx), m.opts.EnableTriggerRPC); err != nil {
			m.log.Warn("could not re-enable the deals trigger, re-enable manually", "rpc", m.opts.EnableTriggerRPC, "err", err)
		}
	}()
	return fn()
}
