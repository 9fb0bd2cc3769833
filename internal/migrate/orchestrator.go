package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aro-ch/mariamove/internal/dbserver"
	"github.com/aro-ch/mariamove/internal/state"
)

// Options gathers every environment- and flag-derived knob of a migration
// run into one immutable value, threaded through rather than read at call
// sites.
type Options struct {
	CustomerIDs          []int
	SeedUserIDs          []int
	Databases            []string
	BatchSize            int
	Force                bool
	ForceTables          []string // force-migrate patterns, in addition to env config
	SkipTables           []string
	AutoConfirmThreshold int64
	SkipLargeTables      bool
	AutoCreate           bool
}

// Orchestrator drives a full migration run: introspection, classification,
// and the phased routine and row copies, checkpointing after every table.
type Orchestrator struct {
	Source *dbserver.Instance
	Dest   *dbserver.Instance
	Store  *state.Store
	Opts   Options

	// ConfirmCopy is consulted before copying a reference table whose row
	// count exceeds the auto-confirm threshold. A nil func declines.
	ConfirmCopy func(database, table string, rows int64) bool
}

type runTally struct {
	completed int
	skipped   int
	failed    int
}

// Run migrates every requested database in sequence. A database that cannot
// be introspected or connected to is recorded and skipped; only the overall
// partial-failure result is returned at the end. A context cancellation
// (interrupt) stops between batches and propagates immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	var failedDatabases []string
	for _, database := range o.Opts.Databases {
		log.Infof("Migrating database %s from %s to %s", dbserver.EscapeIdentifier(database), o.Source, o.Dest)
		if err := o.migrateDatabase(ctx, database); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Errorf("Failed to migrate database %s: %s", dbserver.EscapeIdentifier(database), err)
			failedDatabases = append(failedDatabases, database)
		}
	}
	if len(failedDatabases) > 0 {
		return fmt.Errorf("failed to migrate %d of %d database(s): %s",
			len(failedDatabases), len(o.Opts.Databases), strings.Join(failedDatabases, ", "))
	}
	return nil
}

func (o *Orchestrator) migrateDatabase(ctx context.Context, database string) error {
	var srcTables []*dbserver.TableInfo
	var destNames []string
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		srcTables, err = o.Source.SchemaTables(database)
		return err
	})
	g.Go(func() (err error) {
		destNames, err = o.Dest.TableNames(database)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	destHas := make(map[string]bool, len(destNames))
	for _, name := range destNames {
		destHas[strings.ToLower(name)] = true
	}

	InferForeignKeys(srcTables)
	plans := BuildPlans(srcTables)

	srcPool, err := o.Source.Connect("", "")
	if err != nil {
		return err
	}
	// Foreign-key enforcement is disabled for every session of the write
	// pool, so phases need no dependency ordering. The setting is
	// session-scoped: closing the pool restores server defaults even on
	// interrupt or crash.
	destPool, err := o.Dest.Connect(database, "foreign_key_checks=0")
	if err != nil {
		return err
	}

	routines := &RoutineMigrator{Source: o.Source, Dest: o.Dest, Store: o.Store, Force: o.Opts.Force}
	routines.MigrateDatabase(database)

	streamer := &Streamer{
		Source:      srcPool,
		Dest:        destPool,
		BatchSize:   o.Opts.BatchSize,
		TenantIDs:   o.Opts.CustomerIDs,
		SeedUserIDs: o.Opts.SeedUserIDs,
	}
	schemaHelper := &SchemaMigrator{Source: o.Source, Dest: o.Dest}

	var tally runTally
	for _, class := range []Class{ClassDirectTenant, ClassDirectUser, ClassIndirect, ClassReference} {
		classPlans := plansOfClass(plans, class)
		if len(classPlans) == 0 {
			continue
		}
		log.Infof("Phase %s: %d %s table(s)", class.Phase(), len(classPlans), class)
		for _, p := range classPlans {
			if err := ctx.Err(); err != nil {
				return err
			}
			o.migrateTable(ctx, p, streamer, schemaHelper, destHas, &tally)
		}
	}

	log.Infof("Database %s done: %d completed, %d skipped, %d failed (of %d tables)",
		dbserver.EscapeIdentifier(database), tally.completed, tally.skipped, tally.failed, len(plans))
	return ctx.Err()
}

func plansOfClass(plans []*Plan, class Class) []*Plan {
	var result []*Plan
	for _, p := range plans {
		if p.Class == class {
			result = append(result, p)
		}
	}
	return result
}

// migrateTable runs one table through the policy gates and, if it survives
// them, the streamer. Every outcome is checkpointed; errors other than
// cancellation are absorbed into the failed state so the phase continues.
func (o *Orchestrator) migrateTable(ctx context.Context, p *Plan, streamer *Streamer, schemaHelper *SchemaMigrator, destHas map[string]bool, tally *runTally) {
	database, table := p.Table.Database, p.Table.Name
	qualified := p.Table.QualifiedName()

	if MatchesSkipPattern(o.Opts.SkipTables, database, table) {
		log.Infof("Skipping %s (skip-tables pattern)", qualified)
		o.Store.SetTable(database, table, state.StatusSkipped, 0, state.ReasonEnvSkipTables)
		tally.skipped++
		return
	}

	forced := MatchesForcePattern(o.Opts.ForceTables, database, table)
	if prev, ok := o.Store.Table(database, table); ok && prev.Status == state.StatusCompleted && !o.Opts.Force && !forced {
		log.Infof("Table %s already migrated (%d rows), skipping", qualified, prev.Rows)
		tally.skipped++
		return
	}

	if !destHas[strings.ToLower(table)] {
		if !o.Opts.AutoCreate {
			log.Errorf("Table %s does not exist on destination", qualified)
			o.Store.SetTable(database, table, state.StatusFailed, 0, "missing on destination")
			tally.failed++
			return
		}
		if err := schemaHelper.CreateTableStructure(database, table); err != nil {
			log.Errorf("Unable to create %s on destination: %s", qualified, err)
			o.Store.SetTable(database, table, state.StatusFailed, 0, err.Error())
			tally.failed++
			return
		}
		log.Infof("Created missing table %s on destination (foreign keys deferred)", qualified)
		destHas[strings.ToLower(table)] = true
	}

	// Large reference tables need an explicit go-ahead: either the operator's,
	// or a force pattern's
	if p.Class == ClassReference && !forced {
		count, err := streamer.CountRows(p, false)
		if err != nil {
			log.Errorf("Unable to count rows in %s: %s", qualified, err)
			o.Store.SetTable(database, table, state.StatusFailed, 0, err.Error())
			tally.failed++
			return
		}
		if count > o.Opts.AutoConfirmThreshold {
			if o.Opts.SkipLargeTables {
				log.Infof("Auto-skipping large reference table %s (%d rows > threshold %d)", qualified, count, o.Opts.AutoConfirmThreshold)
				o.Store.SetTable(database, table, state.StatusSkipped, 0, state.ReasonUserDeclined)
				tally.skipped++
				return
			}
			if o.ConfirmCopy == nil || !o.ConfirmCopy(database, table, count) {
				log.Infof("Declined reference table %s (%d rows)", qualified, count)
				o.Store.SetTable(database, table, state.StatusSkipped, 0, state.ReasonUserDeclined)
				tally.skipped++
				return
			}
		}
	}

	counts, err := streamer.CopyTable(ctx, p, forced)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted mid-table: leave any prior state untouched so the next
			// run retries from scratch
			return
		}
		log.Errorf("Failed to migrate %s: %s", qualified, err)
		o.Store.SetTable(database, table, state.StatusFailed, 0, err.Error())
		tally.failed++
		return
	}

	switch {
	case p.Class == ClassIndirect && !forced:
		log.Infof("Migrated %s: %d/%d rows via %s", qualified, counts.Inserted, counts.Found, p.Chain)
	default:
		log.Infof("Migrated %s: %d/%d rows (%d duplicate/failed)", qualified, counts.Inserted, counts.Found, counts.Failed)
	}
	o.Store.SetTable(database, table, state.StatusCompleted, counts.Inserted, "")
	tally.completed++
}
