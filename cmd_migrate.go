package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/skeema/mybase"

	"github.com/aro-ch/mariamove/internal/migrate"
	"github.com/aro-ch/mariamove/internal/state"
)

func init() {
	summary := "Migrate customer-scoped data from the source server to the destination"
	desc := `Copies a customer-scoped subset of rows from the source server into an
already-schema-initialized destination. Tables are classified by how their
rows relate to the requested customers: a direct customer_id column, a
user_id column filtered by the seed user ids, an inferred foreign-key path to
such a table, or pure reference data copied wholesale. Progress is
checkpointed after every table, so an interrupted run resumes where it left
off. Duplicate rows on the destination are suppressed, making re-runs
idempotent.`

	cmd := mybase.NewCommand("migrate", summary, desc, MigrateHandler)
	cmd.AddOption(mybase.StringOption("customer-ids", 0, "", "Customer ids whose data migrates (comma-separated)"))
	cmd.AddOption(mybase.StringOption("databases", 0, "", "Databases to migrate (comma-separated, or 'all')"))
	cmd.AddOption(mybase.BoolOption("force", 0, false, "Re-migrate tables and routines already recorded completed"))
	cmd.AddOption(mybase.StringOption("force-tables", 0, "", "Additional force-migrate patterns for this run"))
	cmd.AddOption(mybase.StringOption("batch-size", 0, strconv.Itoa(migrate.DefaultBatchSize), "Rows per fetch/insert batch"))
	cmd.AddOption(mybase.BoolOption("auto-create", 0, false, "Create missing destination tables (structure only, foreign keys deferred)"))
	CommandSuite.AddSubCommand(cmd)
}

// MigrateHandler is the handler method for `mariamove migrate`.
func MigrateHandler(cfg *mybase.Config) error {
	source, err := sourceInstance(cfg)
	if err != nil {
		return err
	}
	dest, err := destInstance(cfg)
	if err != nil {
		return err
	}
	defer source.CloseAll()
	defer dest.CloseAll()
	if err := source.CanConnect(); err != nil {
		return NewExitValue(CodeFatalError, "Unable to connect to source %s: %s", source, err)
	}
	if err := dest.CanConnect(); err != nil {
		return NewExitValue(CodeFatalError, "Unable to connect to destination %s: %s", dest, err)
	}

	customerIDs, err := customerIDsFromConfig(cfg, true)
	if err != nil {
		return err
	}
	seedUserIDs, err := parseIDList(cfg.Get("seed-user-ids"))
	if err != nil {
		return NewExitValue(CodeBadConfig, "Invalid seed-user-ids: %s", err)
	}
	databases, err := databasesFromConfig(cfg, source)
	if err != nil {
		return err
	}
	if len(databases) == 0 {
		return NewExitValue(CodeBadConfig, "No databases specified")
	}
	batchSize, err := strconv.Atoi(cfg.Get("batch-size"))
	if err != nil || batchSize < 1 {
		return NewExitValue(CodeBadConfig, "Invalid batch-size value %q", cfg.Get("batch-size"))
	}
	threshold, err := strconv.Atoi(cfg.Get("auto-confirm-threshold"))
	if err != nil || threshold < 0 {
		return NewExitValue(CodeBadConfig, "Invalid auto-confirm-threshold value %q", cfg.Get("auto-confirm-threshold"))
	}

	stateDir := cfg.Get("state-dir")
	InitAuditLog(stateDir)
	store, err := state.Open(stateDir, customerIDs)
	if err != nil {
		return NewExitValue(CodeFatalError, "%s", err)
	}
	defer store.Close()

	forceTables := migrate.SplitPatternList(cfg.Get("force-migrate-tables"))
	forceTables = append(forceTables, migrate.SplitPatternList(cfg.Get("force-tables"))...)

	orch := &migrate.Orchestrator{
		Source: source,
		Dest:   dest,
		Store:  store,
		Opts: migrate.Options{
			CustomerIDs:          customerIDs,
			SeedUserIDs:          seedUserIDs,
			Databases:            databases,
			BatchSize:            batchSize,
			Force:                cfg.GetBool("force"),
			ForceTables:          forceTables,
			SkipTables:           migrate.SplitPatternList(cfg.Get("skip-tables")),
			AutoConfirmThreshold: int64(threshold),
			SkipLargeTables:      cfg.GetBool("skip-large-tables"),
			AutoCreate:           cfg.GetBool("auto-create"),
		},
		ConfirmCopy: func(database, table string, rows int64) bool {
			answer := promptLine(fmt.Sprintf("Reference table %s.%s has %d rows. Copy all of them? (yes/no): ", database, table, rows))
			return answer == "yes" || answer == "y"
		},
	}

	// An interrupt lets the in-flight batch finish, then flushes state and
	// exits with code 1
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Migrating customers %v across %d database(s); state file %s", customerIDs, len(databases), store.Path())
	err = orch.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return NewExitValue(CodePartialError, "Migration interrupted; state flushed to %s", store.Path())
	} else if err != nil {
		return WrapExitCode(CodePartialError, err)
	}
	log.Info("Migration completed")
	return nil
}
