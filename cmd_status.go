package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/skeema/mybase"

	"github.com/aro-ch/mariamove/internal/state"
)

func init() {
	summary := "Show checkpointed migration progress for a customer-id set"
	desc := `Prints the persisted per-table and per-routine migration state for the
supplied customer ids, without connecting to either database server. The
state file is keyed by the sorted customer-id set, so the same ids always
map to the same file regardless of ordering.`

	cmd := mybase.NewCommand("status", summary, desc, StatusHandler)
	cmd.AddOption(mybase.StringOption("customer-ids", 0, "", "Customer ids of the run to inspect (comma-separated)"))
	CommandSuite.AddSubCommand(cmd)
}

// StatusHandler is the handler method for `mariamove status`.
func StatusHandler(cfg *mybase.Config) error {
	customerIDs, err := customerIDsFromConfig(cfg, false)
	if err != nil {
		return err
	}

	stateDir := cfg.Get("state-dir")
	path := filepath.Join(stateDir, state.FileName(customerIDs))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("No migration state recorded for customer ids %v (%s)\n", customerIDs, path)
		return nil
	}

	store := state.OpenReadOnly(stateDir, customerIDs)
	ck := store.Checkpoint()
	fmt.Printf("Migration state for customer ids %v\n", customerIDs)
	fmt.Printf("Created %s, last updated %s\n", ck.CreatedAt.Format("2006-01-02 15:04:05"), ck.UpdatedAt.Format("2006-01-02 15:04:05"))

	dbNames := make([]string, 0, len(ck.Databases))
	for name := range ck.Databases {
		dbNames = append(dbNames, name)
	}
	sort.Strings(dbNames)

	for _, dbName := range dbNames {
		ds := ck.Databases[dbName]
		fmt.Printf("\nDatabase %s\n", dbName)

		tableNames := make([]string, 0, len(ds.Tables))
		for name := range ds.Tables {
			tableNames = append(tableNames, name)
		}
		sort.Strings(tableNames)
		for _, name := range tableNames {
			ts := ds.Tables[name]
			line := fmt.Sprintf("  %-40s %-10s", name, ts.Status)
			switch ts.Status {
			case state.StatusCompleted:
				line += fmt.Sprintf(" %8d rows", ts.Rows)
			case state.StatusSkipped, state.StatusFailed:
				line += fmt.Sprintf(" (%s)", ts.Reason)
			}
			fmt.Println(line)
		}

		routineNames := make([]string, 0, len(ds.Routines))
		for name := range ds.Routines {
			routineNames = append(routineNames, name)
		}
		sort.Strings(routineNames)
		for _, name := range routineNames {
			rs := ds.Routines[name]
			fmt.Printf("  %-40s %-10s %s\n", name, rs.Status, rs.Type)
		}
	}
	return nil
}
