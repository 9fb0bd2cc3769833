package migrate

import (
	"strings"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// Class is the filtering category a table falls into. Every table is
// assigned exactly one class.
type Class int

// The four classes, in migration phase order.
const (
	ClassDirectTenant Class = iota // has a customer_id column
	ClassDirectUser                // has a user_id column (and no customer_id)
	ClassIndirect                  // reaches a tenant/user column through foreign keys
	ClassReference                 // no relationship at all; lookup/seed data
)

func (c Class) String() string {
	switch c {
	case ClassDirectTenant:
		return "direct-tenant"
	case ClassDirectUser:
		return "direct-user"
	case ClassIndirect:
		return "indirect"
	default:
		return "reference"
	}
}

// Phase returns the migration phase label tables of this class run in.
func (c Class) Phase() string {
	switch c {
	case ClassDirectTenant:
		return "1"
	case ClassDirectUser:
		return "1B"
	case ClassIndirect:
		return "1C"
	default:
		return "2"
	}
}

// Plan is a table's classification plus everything needed to emit its
// filtered SELECTs: the direct filter column, or the join chain for indirect
// tables.
type Plan struct {
	Table        *dbserver.TableInfo
	Class        Class
	FilterColumn string // source-cased; direct classes only
	Chain        *Chain // indirect class only
}

// BuildPlans classifies every table of a database. Tables must already carry
// their combined (explicit + implicit) foreign keys. A table having both
// customer_id and user_id classifies as direct-tenant; the tenant column
// always takes precedence.
func BuildPlans(tables []*dbserver.TableInfo) []*Plan {
	byLowerName := make(map[string]*dbserver.TableInfo, len(tables))
	for _, t := range tables {
		byLowerName[strings.ToLower(t.Name)] = t
	}

	plans := make([]*Plan, len(tables))
	for n, t := range tables {
		plans[n] = classify(t, byLowerName)
	}
	return plans
}

func classify(t *dbserver.TableInfo, byLowerName map[string]*dbserver.TableInfo) *Plan {
	if col := t.ColumnNamed(TenantColumn); col != "" {
		return &Plan{Table: t, Class: ClassDirectTenant, FilterColumn: col}
	}
	if col := t.ColumnNamed(UserColumn); col != "" {
		return &Plan{Table: t, Class: ClassDirectUser, FilterColumn: col}
	}
	if chain := ResolveChain(t, byLowerName); chain != nil {
		return &Plan{Table: t, Class: ClassIndirect, Chain: chain}
	}
	return &Plan{Table: t, Class: ClassReference}
}

// IDType returns which id set filters this plan's rows: the tenant ids, the
// seed user ids, or "" for unfiltered reference copies.
func (p *Plan) IDType() IDType {
	switch p.Class {
	case ClassDirectTenant:
		return IDTypeTenant
	case ClassDirectUser:
		return IDTypeUser
	case ClassIndirect:
		return p.Chain.IDType
	}
	return ""
}
