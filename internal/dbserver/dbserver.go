// Package dbserver manages connections to the source and destination
// MariaDB/MySQL servers and performs all schema introspection: databases,
// tables, columns, stored routines, and explicit foreign keys.
package dbserver

import (
	"fmt"
	"strings"
)

// ObjectType defines a class of object in a relational database system.
type ObjectType string

// Constants enumerating valid object types.
const (
	ObjectTypeDatabase ObjectType = "database"
	ObjectTypeTable    ObjectType = "table"
	ObjectTypeProc     ObjectType = "procedure"
	ObjectTypeFunc     ObjectType = "function"
)

// Caps returns the object type as an uppercase string.
func (ot ObjectType) Caps() string {
	return strings.ToUpper(string(ot))
}

// EscapeIdentifier is for use in safely escaping MySQL identifiers (database,
// table, column names). It doubles any backticks already present in the input
// string, and then returns the string wrapped in outer backticks.
func EscapeIdentifier(input string) string {
	escaped := strings.Replace(input, "`", "``", -1)
	return fmt.Sprintf("`%s`", escaped)
}

// QualifiedName returns a backtick-escaped "`db`.`table`" string.
func QualifiedName(database, table string) string {
	return fmt.Sprintf("%s.%s", EscapeIdentifier(database), EscapeIdentifier(table))
}

// systemDatabases enumerates schemas that are never migration targets.
var systemDatabases = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"mysql":              true,
	"sys":                true,
}

// IsSystemDatabase returns true if name refers to a server-internal schema.
func IsSystemDatabase(name string) bool {
	return systemDatabases[strings.ToLower(name)]
}
