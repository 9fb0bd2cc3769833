package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/skeema/mybase"
	"golang.org/x/term"
)

const version = "1.3.0"
const rootDesc = `Mariamove performs selective, resumable data migration between two
MariaDB/MySQL servers. It copies a customer-scoped subset of rows from a
source server into a schema-initialized destination, deciding per table
whether rows are selected by a tenant column, a user column, an inferred
foreign-key path, or copied wholesale as reference data.`

// CommandSuite is the root command. It is global so that subcommands can be
// added to it via init() functions in each subcommand's source file.
var CommandSuite = mybase.NewCommandSuite("mariamove", version, rootDesc)

// envSource maps option names to the environment variables that supply their
// defaults. It satisfies mybase.OptionValuer, making the environment the
// lowest-precedence configuration source after option defaults; CLI values
// always win.
type envSource map[string]string

// OptionValue satisfies the mybase.OptionValuer interface.
func (source envSource) OptionValue(optionName string) (string, bool) {
	envName, ok := source[optionName]
	if !ok {
		return "", false
	}
	return os.LookupEnv(envName)
}

// environmentDefaults lists which env vars back which global options.
var environmentDefaults = envSource{
	"read-host":              "READ_DB_HOST",
	"read-port":              "READ_DB_PORT",
	"read-user":              "READ_DB_USER",
	"read-password":          "READ_DB_PASSWORD",
	"write-host":             "WRITE_DB_HOST",
	"write-port":             "WRITE_DB_PORT",
	"write-user":             "WRITE_DB_USER",
	"write-password":         "WRITE_DB_PASSWORD",
	"auto-confirm-threshold": "AUTO_CONFIRM_THRESHOLD",
	"seed-user-ids":          "SEED_USER_IDS",
	"force-migrate-tables":   "FORCE_MIGRATE_TABLES",
	"skip-tables":            "SKIP_TABLES",
	"state-dir":              "MIGRATION_STATE_DIR",
	"skip-large-tables":      "SKIP_LARGE_TABLES",
	"backup-dir":             "BACKUP_DIR",
}

// PromptPassword reads a password from STDIN without echoing the typed
// characters. Requires that STDIN is a TTY.
func PromptPassword(prompt string) (string, error) {
	stdin := int(syscall.Stdin)
	if !term.IsTerminal(stdin) {
		return "", fmt.Errorf("STDIN must be a TTY to read a password")
	}
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func main() {
	// Global options. The endpoint credentials default from the environment
	// via environmentDefaults; sub-commands may override the rest as needed.
	CommandSuite.AddOption(mybase.StringOption("read-host", 0, "", "Source (read) database hostname or IP"))
	CommandSuite.AddOption(mybase.StringOption("read-port", 0, "3306", "Port for the source database host"))
	CommandSuite.AddOption(mybase.StringOption("read-user", 0, "", "Username for the source database"))
	CommandSuite.AddOption(mybase.StringOption("read-password", 0, "", "Password for the source database; supply with no value to prompt").ValueOptional())
	CommandSuite.AddOption(mybase.StringOption("write-host", 0, "", "Destination (write) database hostname or IP"))
	CommandSuite.AddOption(mybase.StringOption("write-port", 0, "3306", "Port for the destination database host"))
	CommandSuite.AddOption(mybase.StringOption("write-user", 0, "", "Username for the destination database"))
	CommandSuite.AddOption(mybase.StringOption("write-password", 0, "", "Password for the destination database; supply with no value to prompt").ValueOptional())
	CommandSuite.AddOption(mybase.StringOption("auto-confirm-threshold", 0, "400", "Reference tables above this row count require confirmation"))
	CommandSuite.AddOption(mybase.StringOption("seed-user-ids", 0, "1,2", "User ids whose user_id-filtered rows migrate"))
	CommandSuite.AddOption(mybase.StringOption("force-migrate-tables", 0, "*.schema_version,*.flyway_schema_history", "Patterns of tables always migrated wholesale without prompting"))
	CommandSuite.AddOption(mybase.StringOption("skip-tables", 0, "", "Patterns of tables excluded from migration"))
	CommandSuite.AddOption(mybase.StringOption("state-dir", 0, ".migration_state", "Directory holding per-run checkpoint state"))
	CommandSuite.AddOption(mybase.BoolOption("skip-large-tables", 0, false, "Auto-skip large reference tables instead of prompting"))
	CommandSuite.AddOption(mybase.StringOption("backup-dir", 0, "deletion_backups", "Directory for pre-deletion mysqldump backups"))
	CommandSuite.AddOption(mybase.BoolOption("debug", 0, false, "Enable debug logging"))

	var cfg *mybase.Config

	defer func() {
		if err := recover(); err != nil {
			if cfg == nil || !cfg.GetBool("debug") {
				Exit(NewExitValue(CodeFatalError, fmt.Sprint(err)))
			} else {
				log.Error(err)
				log.Debug(string(debug.Stack()))
				Exit(NewExitValue(CodeFatalError, ""))
			}
		}
	}()

	cfg, err := mybase.ParseCLI(CommandSuite, os.Args)
	if err != nil {
		Exit(NewExitValue(CodeBadConfig, err.Error()))
	}
	cfg.AddSource(environmentDefaults)

	// Supplying a password option with no value prompts on STDIN
	for _, name := range []string{"read-password", "write-password"} {
		if cfg.SuppliedWithValue(name) || !cfg.Supplied(name) {
			continue
		}
		value, err := PromptPassword(fmt.Sprintf("Enter %s: ", name))
		if err != nil {
			Exit(NewExitValue(CodeBadConfig, err.Error()))
		}
		cfg.SetRuntimeOverride(name, value)
	}

	if cfg.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	Exit(cfg.HandleCommand())
}
