package migrate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nozzle/throttler"
	"github.com/pmezard/go-difflib/difflib"
	log "github.com/sirupsen/logrus"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// reForeignKeyClause matches one CONSTRAINT ... FOREIGN KEY clause inside
// SHOW CREATE TABLE output, including an optional leading comma and optional
// ON DELETE / ON UPDATE actions. It does not handle nested parens in exotic
// constraint options; stripping is an approximation, and a CREATE that still
// fails afterwards is logged with a diff rather than retried.
var reForeignKeyClause = regexp.MustCompile(`(?i),?\s*CONSTRAINT\s+` + "`[^`]+`" +
	`\s+FOREIGN\s+KEY\s*\([^)]+\)\s+REFERENCES\s+` + "`[^`]+`" +
	`\s*\([^)]+\)` +
	`(?:\s+ON\s+DELETE\s+(?:CASCADE|SET\s+NULL|NO\s+ACTION|RESTRICT))?` +
	`(?:\s+ON\s+UPDATE\s+(?:CASCADE|SET\s+NULL|NO\s+ACTION|RESTRICT))?`)

var (
	reDoubleComma   = regexp.MustCompile(`,\s*,`)
	reTrailingComma = regexp.MustCompile(`,\s*\)`)
)

// StripForeignKeys removes foreign-key constraint clauses from a CREATE
// TABLE statement, returning the modified statement plus the extracted
// clauses (without leading commas) for later re-application via ALTER TABLE.
func StripForeignKeys(create string) (string, []string) {
	var clauses []string
	for _, match := range reForeignKeyClause.FindAllString(create, -1) {
		clauses = append(clauses, strings.TrimPrefix(strings.TrimSpace(match), ","))
	}
	for n := range clauses {
		clauses[n] = strings.TrimSpace(clauses[n])
	}
	stripped := reForeignKeyClause.ReplaceAllString(create, "")
	stripped = reDoubleComma.ReplaceAllString(stripped, ",")
	stripped = reTrailingComma.ReplaceAllString(stripped, ")")
	return stripped, clauses
}

// SchemaResult summarizes one database's structural replication.
type SchemaResult struct {
	Tables      int
	ForeignKeys int
	Failed      int
}

// SchemaMigrator replicates table structures from source to destination in
// two passes: all tables created with foreign keys stripped first, then the
// extracted constraints re-applied with ALTER TABLE. Deferring constraints
// removes any table-ordering requirement and tolerates cycles in the
// foreign-key graph.
type SchemaMigrator struct {
	Source *dbserver.Instance
	Dest   *dbserver.Instance
}

// MigrateDatabase creates the database on the destination (if missing) and
// replicates every base table's structure. Existing destination tables are
// dropped and recreated. Per-table drop and create failures are counted, not
// fatal; a failure to fetch any table's SHOW CREATE TABLE from the source
// aborts the whole database with that error.
func (sm *SchemaMigrator) MigrateDatabase(database string) (SchemaResult, error) {
	var result SchemaResult

	if err := sm.Dest.CreateDatabase(database); err != nil {
		return result, fmt.Errorf("unable to create database %s on %s: %w", dbserver.EscapeIdentifier(database), sm.Dest, err)
	}
	names, err := sm.Source.TableNames(database)
	if err != nil {
		return result, err
	}
	if len(names) == 0 {
		log.Warnf("No tables found in database %s", dbserver.EscapeIdentifier(database))
		return result, nil
	}

	// SHOW CREATE TABLE cannot be bulk-fetched, so several goroutines fetch
	// concurrently; execution below stays serial.
	creates := make([]string, len(names))
	th := throttler.New(15, len(names))
	for n := range names {
		go func(n int) {
			var err error
			creates[n], err = sm.Source.ShowCreateTable(database, names[n])
			th.Done(err)
		}(n)
		if th.Throttle() > 0 {
			return result, th.Errs()[0]
		}
	}

	db, err := sm.Dest.Connect(database, "")
	if err != nil {
		return result, err
	}

	log.Infof("Pass 1: creating %d table structure(s) in %s without foreign keys", len(names), dbserver.EscapeIdentifier(database))
	clausesByTable := make(map[string][]string)
	for n, name := range names {
		stripped, clauses := StripForeignKeys(creates[n])
		if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", dbserver.EscapeIdentifier(name))); err != nil {
			log.Errorf("Unable to drop existing table %s: %s", dbserver.QualifiedName(database, name), err)
			result.Failed++
			continue
		}
		if _, err := db.Exec(stripped); err != nil {
			diff := difflib.UnifiedDiff{
				A:        difflib.SplitLines(creates[n]),
				B:        difflib.SplitLines(stripped),
				FromFile: "original",
				ToFile:   "stripped",
				Context:  2,
			}
			diffText, _ := difflib.GetUnifiedDiffString(diff)
			log.Warnf("CREATE TABLE for %s failed after stripping foreign keys: %s\n%s", dbserver.QualifiedName(database, name), err, diffText)
			result.Failed++
			continue
		}
		if len(clauses) > 0 {
			clausesByTable[name] = clauses
		}
		result.Tables++
	}

	if len(clausesByTable) == 0 {
		return result, nil
	}
	log.Infof("Pass 2: adding foreign key constraints in %s", dbserver.EscapeIdentifier(database))
	for _, name := range names {
		for _, clause := range clausesByTable[name] {
			alter := fmt.Sprintf("ALTER TABLE %s ADD %s", dbserver.EscapeIdentifier(name), clause)
			if _, err := db.Exec(alter); err != nil {
				log.Warnf("Unable to add foreign key to %s: %s", dbserver.QualifiedName(database, name), err)
				continue
			}
			result.ForeignKeys++
		}
	}
	return result, nil
}

// CreateTableStructure replicates a single table's structure, foreign keys
// stripped, onto the destination. Used when row migration encounters a table
// the destination lacks and auto-create is enabled.
func (sm *SchemaMigrator) CreateTableStructure(database, table string) error {
	create, err := sm.Source.ShowCreateTable(database, table)
	if err != nil {
		return err
	}
	if err := sm.Dest.CreateDatabase(database); err != nil {
		return err
	}
	db, err := sm.Dest.Connect(database, "")
	if err != nil {
		return err
	}
	stripped, _ := StripForeignKeys(create)
	_, err = db.Exec(stripped)
	return err
}
