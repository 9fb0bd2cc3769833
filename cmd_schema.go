package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/skeema/mybase"

	"github.com/aro-ch/mariamove/internal/cleanup"
	"github.com/aro-ch/mariamove/internal/migrate"
)

func init() {
	summary := "Replicate whole database structures onto the destination"
	desc := `Creates identical database structures on the destination server: every
base table of the selected source databases, recreated in two passes. Pass
one creates all tables with foreign-key constraints stripped; pass two
re-applies the extracted constraints via ALTER TABLE. Deferring constraints
removes any ordering requirement and tolerates cycles in the foreign-key
graph. Existing destination tables of the same names are dropped and
recreated.`

	cmd := mybase.NewCommand("schema", summary, desc, SchemaHandler)
	cmd.AddOption(mybase.StringOption("databases", 0, "", "Databases to replicate (comma-separated, or 'all')"))
	cmd.AddOption(mybase.BoolOption("no-confirm", 0, false, "Skip the confirmation prompt"))
	CommandSuite.AddSubCommand(cmd)
}

// SchemaHandler is the handler method for `mariamove schema`.
func SchemaHandler(cfg *mybase.Config) error {
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

	databases, err := databasesFromConfig(cfg, source)
	if err != nil {
		return err
	}
	if len(databases) == 0 {
		return NewExitValue(CodeBadConfig, "No databases specified")
	}

	fmt.Printf("Databases to replicate onto %s: %s\n", dest, strings.Join(databases, ", "))
	if !cfg.GetBool("no-confirm") {
		confirmer := &cleanup.Confirmer{In: os.Stdin, Out: os.Stdout}
		if !confirmer.YesNo("Proceed with structural replication? Existing destination tables will be dropped") {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	sm := &migrate.SchemaMigrator{Source: source, Dest: dest}
	var failedDatabases []string
	for _, database := range databases {
		result, err := sm.MigrateDatabase(database)
		if err != nil {
			log.Errorf("Failed to replicate database %s: %s", database, err)
			failedDatabases = append(failedDatabases, database)
			continue
		}
		log.Infof("Replicated %s: %d table(s), %d foreign key(s), %d failure(s)",
			database, result.Tables, result.ForeignKeys, result.Failed)
		if result.Failed > 0 {
			failedDatabases = append(failedDatabases, database)
		}
	}

	if len(failedDatabases) > 0 {
		return NewExitValue(CodePartialError, "Completed with failures in: %s", strings.Join(failedDatabases, ", "))
	}
	log.Info("Structural replication completed")
	return nil
}
