package dbserver

import (
	"database/sql"
	"fmt"
	"strings"
)

/*
	Important note on information_schema queries in this file: MySQL 8.0
	changes information_schema column names to come back from queries in all
	caps, so we need to explicitly use AS clauses in order to get them back as
	lowercase and have sqlx Select() work.
*/

// TableInfo describes one table on the source server: its ordered column
// names (original case preserved) and its discovered foreign keys, explicit
// and implicit combined.
type TableInfo struct {
	Database    string
	Name        string
	Columns     []string
	ForeignKeys []*ForeignKey
}

// HasColumn returns true if the table has a column with the supplied name,
// compared case-insensitively.
func (t *TableInfo) HasColumn(name string) bool {
	return t.ColumnNamed(name) != ""
}

// ColumnNamed returns the column's actual (source-cased) name if the table
// has a column matching name case-insensitively, or "" if not.
func (t *TableInfo) ColumnNamed(name string) string {
	for _, col := range t.Columns {
		if strings.EqualFold(col, name) {
			return col
		}
	}
	return ""
}

// QualifiedName returns the table's backtick-escaped "`db`.`table`" form.
func (t *TableInfo) QualifiedName() string {
	return QualifiedName(t.Database, t.Name)
}

// SchemaNames returns all database names on the instance visible to the
// user, excluding system schemas.
func (in *Instance) SchemaNames() ([]string, error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return nil, err
	}
	var result []string
	query := `
		SELECT schema_name AS schema_name
		FROM   schemata
		WHERE  schema_name NOT IN ('information_schema', 'performance_schema', 'mysql', 'sys')`
	if err := db.Select(&result, query); err != nil {
		return nil, err
	}
	return result, nil
}

// HasSchema returns true if this instance has a database with the supplied
// name visible to the user. An error is only returned if the existence could
// not be determined at all.
func (in *Instance) HasSchema(name string) (bool, error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return false, err
	}
	var exists int
	query := `
		SELECT 1
		FROM   schemata
		WHERE  schema_name = ?`
	err = db.Get(&exists, query, name)
	if err == nil {
		return true, nil
	} else if err == sql.ErrNoRows {
		return false, nil
	}
	return false, err
}

// TableNames returns the base tables of a database, sorted by name. Views are
// excluded.
func (in *Instance) TableNames(schema string) ([]string, error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return nil, err
	}
	var result []string
	query := `
		SELECT   table_name AS table_name
		FROM     tables
		WHERE    table_schema = ?
		AND      table_type = 'BASE TABLE'
		ORDER BY table_name`
	if err := db.Select(&result, query, schema); err != nil {
		return nil, fmt.Errorf("querying information_schema.tables for %s: %w", EscapeIdentifier(schema), err)
	}
	return result, nil
}

// SchemaTables builds a TableInfo for every base table in the database:
// ordered columns plus explicit foreign keys. Implicit keys are added later
// by the migration planner.
func (in *Instance) SchemaTables(schema string) ([]*TableInfo, error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return nil, err
	}

	names, err := in.TableNames(schema)
	if err != nil {
		return nil, err
	}
	tables := make([]*TableInfo, len(names))
	byName := make(map[string]*TableInfo, len(names))
	for n, name := range names {
		tables[n] = &TableInfo{Database: schema, Name: name}
		byName[name] = tables[n]
	}

	// One query fetches every column of every table, in definition order
	var rawColumns []struct {
		TableName string `db:"table_name"`
		Name      string `db:"column_name"`
	}
	query := `
		SELECT   c.table_name AS table_name, c.column_name AS column_name
		FROM     columns c
		WHERE    c.table_schema = ?
		ORDER BY c.table_name, c.ordinal_position`
	if err := db.Select(&rawColumns, query, schema); err != nil {
		return nil, fmt.Errorf("querying information_schema.columns for %s: %w", EscapeIdentifier(schema), err)
	}
	for _, rawColumn := range rawColumns {
		if t, ok := byName[rawColumn.TableName]; ok {
			t.Columns = append(t.Columns, rawColumn.Name)
		}
	}

	fks, err := in.explicitForeignKeys(schema)
	if err != nil {
		return nil, err
	}
	for tableName, tableFKs := range fks {
		if t, ok := byName[tableName]; ok {
			t.ForeignKeys = tableFKs
		}
	}
	return tables, nil
}

// explicitForeignKeys returns the declared single-column foreign keys of a
// database, keyed by table name. Multi-column constraints contribute one
// entry per column; the filtering planner only follows the first.
func (in *Instance) explicitForeignKeys(schema string) (map[string][]*ForeignKey, error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return nil, err
	}
	var rawForeignKeys []struct {
		TableName            string `db:"table_name"`
		ColumnName           string `db:"column_name"`
		ReferencedTableName  string `db:"referenced_table_name"`
		ReferencedColumnName string `db:"referenced_column_name"`
	}
	query := `
		SELECT   kcu.table_name AS table_name, kcu.column_name AS column_name,
		         kcu.referenced_table_name AS referenced_table_name,
		         kcu.referenced_column_name AS referenced_column_name
		FROM     key_column_usage kcu
		WHERE    kcu.table_schema = ?
		AND      kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.table_name, kcu.ordinal_position`
	if err := db.Select(&rawForeignKeys, query, schema); err != nil {
		return nil, fmt.Errorf("querying key_column_usage for %s: %w", EscapeIdentifier(schema), err)
	}
	result := make(map[string][]*ForeignKey)
	for _, raw := range rawForeignKeys {
		result[raw.TableName] = append(result[raw.TableName], &ForeignKey{
			Column:           raw.ColumnName,
			ReferencedTable:  raw.ReferencedTableName,
			ReferencedColumn: raw.ReferencedColumnName,
		})
	}
	return result, nil
}

// HasTableColumn returns true if the named table has the supplied column,
// compared case-insensitively. A missing table simply reports false.
func (in *Instance) HasTableColumn(schema, table, column string) (bool, error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return false, err
	}
	var exists int
	query := `
		SELECT 1
		FROM   columns
		WHERE  table_schema = ? AND table_name = ? AND LOWER(column_name) = ?`
	err = db.Get(&exists, query, schema, table, strings.ToLower(column))
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ShowCreateTable returns a string with a CREATE TABLE statement,
// representing how the instance views the specified table as having been
// created.
func (in *Instance) ShowCreateTable(schema, table string) (string, error) {
	db, err := in.Connect(schema, "")
	if err != nil {
		return "", err
	}
	var createRows []struct {
		TableName       string `db:"Table"`
		CreateStatement string `db:"Create Table"`
	}
	query := fmt.Sprintf("SHOW CREATE TABLE %s", EscapeIdentifier(table))
	if err := db.Select(&createRows, query); err != nil {
		return "", err
	}
	if len(createRows) != 1 {
		return "", sql.ErrNoRows
	}
	return createRows[0].CreateStatement, nil
}

// TableSize returns an estimate of the table's size on-disk, based on data
// in information_schema. If the table or schema does not exist on this
// instance, the error will be sql.ErrNoRows.
func (in *Instance) TableSize(schema, table string) (int64, error) {
	var result int64
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return 0, err
	}
	err = db.Get(&result, `
		SELECT  data_length + index_length + data_free
		FROM    tables
		WHERE   table_schema = ? and table_name = ?`,
		schema, table)
	return result, err
}

// CreateDatabase creates the named database on the instance if it does not
// already exist, using the utf8mb4 charset the migration writes in.
func (in *Instance) CreateDatabase(name string) error {
	db, err := in.Connect("", "")
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", EscapeIdentifier(name)))
	return err
}

// DropDatabase drops the named database, closing any cached pools that were
// defaulted to it first.
func (in *Instance) DropDatabase(name string) error {
	prefix := fmt.Sprintf("%s?", name)
	in.Lock()
	for key, connPool := range in.connectionPool {
		if strings.HasPrefix(key, prefix) {
			connPool.Close()
			delete(in.connectionPool, key)
		}
	}
	in.Unlock()

	db, err := in.Connect("", "")
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("DROP DATABASE %s", EscapeIdentifier(name)))
	return err
}
