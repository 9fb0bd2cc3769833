package dbserver

import "fmt"

// ForeignKey represents a single-column relationship from one table to
// another. Explicit foreign keys come from information_schema; implicit ones
// are inferred from column naming and carry no referenced column name.
type ForeignKey struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string // blank for implicit keys
	Implicit         bool
}

// JoinColumn returns the column on the referenced table to join against.
// Implicit keys have no introspected referenced column, so the literal "id"
// is assumed.
func (fk *ForeignKey) JoinColumn() string {
	if fk.ReferencedColumn == "" {
		return "id"
	}
	return fk.ReferencedColumn
}

// Origin describes how the key was discovered, for reporting.
func (fk *ForeignKey) Origin() string {
	if fk.Implicit {
		return "implicit"
	}
	return "explicit"
}

func (fk *ForeignKey) String() string {
	return fmt.Sprintf("%s -> %s.%s (%s)", fk.Column, fk.ReferencedTable, fk.JoinColumn(), fk.Origin())
}
