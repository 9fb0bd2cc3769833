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
	summary := "Drop migrated databases from the destination server"
	desc := `Drops entire databases from the destination. Only databases that also
exist on the source are eligible; destination-only databases are reported
and left untouched. The operation requires typing the literal phrase
'DROP DATABASES' unless --no-confirm is supplied (dangerous). Use --dry-run
to preview the plan without dropping anything.`

	cmd := mybase.NewCommand("drop", summary, desc, DropHandler)
	cmd.AddOption(mybase.StringOption("databases", 0, "", "Databases to drop (comma-separated)"))
	cmd.AddOption(mybase.BoolOption("all", 0, false, "Target every eligible destination database"))
	cmd.AddOption(mybase.BoolOption("dry-run", 0, false, "Show the plan without dropping anything"))
	cmd.AddOption(mybase.BoolOption("backup", 0, false, "mysqldump each database before dropping"))
	cmd.AddOption(mybase.BoolOption("no-confirm", 0, false, "Skip all confirmation prompts (DANGEROUS)"))
	CommandSuite.AddSubCommand(cmd)
}

// DropHandler is the handler method for `mariamove drop`.
func DropHandler(cfg *mybase.Config) error {
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

	databases := splitList(cfg.Get("databases"))
	if len(databases) == 0 && !cfg.GetBool("all") {
		return NewExitValue(CodeBadConfig, "Either --databases or --all is required")
	}

	log.Infof("Analyzing destination %s", dest)
	scope, err := cleanup.AnalyzeDrop(source, dest, databases)
	if err != nil {
		return NewExitValue(CodeFatalError, "Unable to analyze destination: %s", err)
	}

	showPlan := func() {
		fmt.Printf("\nDROP PLAN — destination %s\n", dest)
		for _, target := range scope.Databases {
			fmt.Printf("  %-30s %8.1f MB\n", target.Name, float64(target.Bytes)/1024/1024)
		}
		fmt.Printf("Total: %d database(s), %d table(s)\n", len(scope.Databases), scope.TotalTables)
		if len(scope.NotInSource) > 0 {
			fmt.Printf("Not in source (left untouched): %s\n", strings.Join(scope.NotInSource, ", "))
		}
	}

	if len(scope.Databases) == 0 {
		showPlan()
		fmt.Println("Nothing to drop.")
		return nil
	}
	if cfg.GetBool("dry-run") {
		showPlan()
		fmt.Println("\nDry run completed; nothing was dropped.")
		return nil
	}

	if !cfg.GetBool("no-confirm") {
		confirmer := &cleanup.Confirmer{In: os.Stdin, Out: os.Stdout}
		if !confirmer.MultiStep("drop entire databases", cleanup.DropConfirmation, scope, showPlan) {
			return nil
		}
	}

	if cfg.GetBool("backup") {
		names := make([]string, len(scope.Databases))
		for n, target := range scope.Databases {
			names[n] = target.Name
		}
		if _, err := cleanup.BackupDatabases(dest, names, cfg.Get("backup-dir")); err != nil {
			log.Warnf("Backup failed: %s", err)
		}
	}

	dropped, failed := cleanup.ExecuteDrop(dest, scope)
	log.Infof("Dropped %d database(s), %d failure(s)", dropped, failed)
	if len(scope.NotInSource) > 0 {
		log.Infof("Left untouched (not in source): %s", strings.Join(scope.NotInSource, ", "))
	}
	if failed > 0 {
		return NewExitValue(CodePartialError, "%d database(s) could not be dropped", failed)
	}
	return nil
}
