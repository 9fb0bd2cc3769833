package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/skeema/mybase"

	"github.com/aro-ch/mariamove/internal/cleanup"
)

func init() {
	summary := "Delete migrated rows from the destination server"
	desc := `Deletes rows from destination tables, mirroring what a migration run
would have copied. Tables with a customer_id column are filtered to the
supplied customer ids; all other tables lose every row. Table discovery runs
against the source server, so only tables migration knows about are touched.
The operation requires typing the literal phrase 'DELETE DATA' unless
--no-confirm is supplied (dangerous). Use --dry-run to preview.`

	cmd := mybase.NewCommand("delete", summary, desc, DeleteHandler)
	cmd.AddOption(mybase.StringOption("databases", 0, "", "Databases to delete from (comma-separated, or 'all')"))
	cmd.AddOption(mybase.StringOption("tables", 0, "", "Restrict deletion to these tables (comma-separated)"))
	cmd.AddOption(mybase.StringOption("customer-ids", 0, "", "Customer ids filtering customer_id-bearing tables"))
	cmd.AddOption(mybase.BoolOption("dry-run", 0, false, "Show the plan without deleting anything"))
	cmd.AddOption(mybase.BoolOption("backup", 0, false, "mysqldump each database before deleting"))
	cmd.AddOption(mybase.BoolOption("no-confirm", 0, false, "Skip all confirmation prompts (DANGEROUS)"))
	CommandSuite.AddSubCommand(cmd)
}

// DeleteHandler is the handler method for `mariamove delete`.
func DeleteHandler(cfg *mybase.Config) error {
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

	var customerIDs []int
	raw := cfg.Get("customer-ids")
	if raw == "" {
		raw = promptLine("Customer ids to filter on (comma-separated), or 'none' to delete ALL rows: ")
	}
	if !strings.EqualFold(raw, "none") && raw != "" {
		if customerIDs, err = parseIDList(raw); err != nil {
			return NewExitValue(CodeBadConfig, "%s", err)
		}
	}
	if len(customerIDs) == 0 {
		log.Warn("No customer-id filter: tables will lose ALL rows")
	}

	log.Infof("Analyzing deletion scope on %s", dest)
	scope, err := cleanup.AnalyzeDelete(source, dest, databases, splitList(cfg.Get("tables")), customerIDs)
	if err != nil {
		return NewExitValue(CodeFatalError, "Unable to analyze deletion scope: %s", err)
	}

	showPlan := func() {
		fmt.Printf("\nDELETION PLAN — destination %s\n", dest)
		for _, db := range scope.Databases {
			fmt.Printf("  Database %s (%d tables)\n", db.Name, len(db.Tables))
			for _, target := range db.Tables {
				fmt.Printf("    %-40s %10d rows   %s\n", target.Table, target.Rows, target.Filter)
			}
		}
		fmt.Printf("Total: %d table(s), %d row(s)\n", scope.TotalTables, scope.TotalRows)
	}

	if scope.TotalRows == 0 {
		fmt.Println("No data to delete (tables are empty or absent on the destination).")
		return nil
	}
	if cfg.GetBool("dry-run") {
		showPlan()
		fmt.Println("\nDry run completed; nothing was deleted.")
		return nil
	}

	if !cfg.GetBool("no-confirm") {
		confirmer := &cleanup.Confirmer{In: os.Stdin, Out: os.Stdout}
		if !confirmer.MultiStep(fmt.Sprintf("delete %d rows from %d tables", scope.TotalRows, scope.TotalTables),
			cleanup.DeleteConfirmation, scope, showPlan) {
			return nil
		}
	}

	if cfg.GetBool("backup") {
		if _, err := cleanup.BackupDatabases(dest, databases, cfg.Get("backup-dir")); err != nil {
			log.Warnf("Backup failed: %s", err)
		}
	}

	deleted, logFile, err := cleanup.ExecuteDelete(dest, scope, customerIDs)
	if err != nil {
		return NewExitValue(CodeFatalError, "Deletion failed: %s", err)
	}
	log.Infof("Deleted %d row(s); audit log written to %s", deleted, logFile)
	return nil
}
