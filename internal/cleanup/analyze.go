// Package cleanup implements the destructive inverse of migration: dropping
// destination databases or deleting filtered rows, behind dry-run analysis,
// multi-step confirmation, and optional mysqldump backups.
package cleanup

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/nozzle/throttler"
	log "github.com/sirupsen/logrus"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// TableTarget is one table slated for row deletion, with the row count and
// filter that will apply on the destination.
type TableTarget struct {
	Database        string
	Table           string
	Rows            int64
	Bytes           int64
	HasTenantColumn bool
	Filter          string
}

// DatabaseTarget groups a database's deletion targets (row-delete mode) or
// describes the whole database (drop mode).
type DatabaseTarget struct {
	Name   string
	Tables []*TableTarget
	Rows   int64
	Bytes  int64
}

// Scope is a full dry-run analysis of a destructive operation.
type Scope struct {
	Databases   []*DatabaseTarget
	TotalTables int
	TotalRows   int64
	NotInSource []string // destination databases with no source counterpart (drop mode)
}

// AnalyzeDrop determines which destination databases a drop would remove.
// Only databases that also exist on the source are targets; destination-only
// databases are reported separately and left alone. If databases is empty,
// every eligible destination database is targeted.
func AnalyzeDrop(source, dest *dbserver.Instance, databases []string) (*Scope, error) {
	sourceNames, err := source.SchemaNames()
	if err != nil {
		return nil, err
	}
	destNames, err := dest.SchemaNames()
	if err != nil {
		return nil, err
	}
	inSource := make(map[string]bool, len(sourceNames))
	for _, name := range sourceNames {
		inSource[strings.ToLower(name)] = true
	}
	requested := make(map[string]bool, len(databases))
	for _, name := range databases {
		requested[strings.ToLower(name)] = true
	}

	scope := &Scope{}
	for _, name := range destNames {
		if len(databases) > 0 && !requested[strings.ToLower(name)] {
			continue
		}
		if !inSource[strings.ToLower(name)] {
			scope.NotInSource = append(scope.NotInSource, name)
			continue
		}
		tableCount, bytes, err := schemaStats(dest, name)
		if err != nil {
			log.Warnf("Unable to analyze database %s: %s", dbserver.EscapeIdentifier(name), err)
			continue
		}
		scope.Databases = append(scope.Databases, &DatabaseTarget{Name: name, Bytes: bytes})
		scope.TotalTables += tableCount
	}
	return scope, nil
}

// AnalyzeDelete determines, per table, how many destination rows a row
// delete would remove. Table discovery happens against the source (matching
// what migration copied); counting happens against the destination. Tables
// restricted via onlyTables apply across all databases.
func AnalyzeDelete(source, dest *dbserver.Instance, databases, onlyTables []string, customerIDs []int) (*Scope, error) {
	only := make(map[string]bool, len(onlyTables))
	for _, t := range onlyTables {
		only[strings.ToLower(t)] = true
	}

	scope := &Scope{}
	for _, database := range databases {
		names, err := source.TableNames(database)
		if err != nil {
			log.Warnf("Unable to list tables in %s: %s", dbserver.EscapeIdentifier(database), err)
			continue
		}
		if len(only) > 0 {
			var kept []string
			for _, name := range names {
				if only[strings.ToLower(name)] {
					kept = append(kept, name)
				}
			}
			names = kept
		}
		if len(names) == 0 {
			continue
		}

		targets := make([]*TableTarget, len(names))
		th := throttler.New(10, len(names))
		for n := range names {
			go func(n int) {
				target, err := analyzeTable(dest, database, names[n], customerIDs)
				targets[n] = target
				th.Done(err)
			}(n)
			th.Throttle()
		}
		for _, err := range th.Errs() {
			log.Warnf("Error analyzing %s: %s", dbserver.EscapeIdentifier(database), err)
		}

		dt := &DatabaseTarget{Name: database}
		for _, target := range targets {
			if target == nil || target.Rows == 0 {
				continue
			}
			dt.Tables = append(dt.Tables, target)
			dt.Rows += target.Rows
			dt.Bytes += target.Bytes
		}
		if len(dt.Tables) > 0 {
			scope.Databases = append(scope.Databases, dt)
			scope.TotalTables += len(dt.Tables)
			scope.TotalRows += dt.Rows
		}
	}
	return scope, nil
}

func analyzeTable(dest *dbserver.Instance, database, table string, customerIDs []int) (*TableTarget, error) {
	target := &TableTarget{Database: database, Table: table}

	hasTenant, err := dest.HasTableColumn(database, table, "customer_id")
	if err != nil {
		return nil, err
	}
	target.HasTenantColumn = hasTenant

	db, err := dest.Connect("", "")
	if err != nil {
		return nil, err
	}
	if hasTenant && len(customerIDs) > 0 {
		query, args, err := sqlx.In(
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE `customer_id` IN (?)", dbserver.QualifiedName(database, table)),
			customerIDs)
		if err != nil {
			return nil, err
		}
		if err := db.Get(&target.Rows, query, args...); err != nil {
			return nil, countError(target, err)
		}
		target.Filter = fmt.Sprintf("customer_id IN (%s)", joinInts(customerIDs))
	} else {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", dbserver.QualifiedName(database, table))
		if err := db.Get(&target.Rows, query); err != nil {
			return nil, countError(target, err)
		}
		target.Filter = "ALL ROWS (no customer_id filter)"
	}

	if bytes, err := dest.TableSize(database, table); err == nil {
		target.Bytes = bytes
	}
	return target, nil
}

// countError downgrades a missing destination table to "nothing to delete".
func countError(target *TableTarget, err error) error {
	if dbserver.IsMissingTable(err) || dbserver.IsMissingDatabase(err) {
		target.Rows = 0
		return nil
	}
	return err
}

func schemaStats(in *dbserver.Instance, schema string) (tableCount int, bytes int64, err error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return 0, 0, err
	}
	var row struct {
		TableCount int   `db:"table_count"`
		Bytes      int64 `db:"total_bytes"`
	}
	query := `
		SELECT COUNT(*) AS table_count,
		       COALESCE(SUM(data_length + index_length), 0) AS total_bytes
		FROM   tables
		WHERE  table_schema = ?`
	err = db.Get(&row, query, schema)
	return row.TableCount, row.Bytes, err
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for n, id := range ids {
		parts[n] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
