package migrate

import (
	"strings"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// Columns that make a table directly filterable.
const (
	TenantColumn = "customer_id"
	UserColumn   = "user_id"
)

// IDType says which id set a chain ultimately filters on.
type IDType string

// Valid IDType values.
const (
	IDTypeTenant IDType = "tenant"
	IDTypeUser   IDType = "user"
)

// maxChainDepth caps the resolver's traversal so a pathological schema can't
// send it arbitrarily deep; anything further out is treated as reference
// data.
const maxChainDepth = 8

// Chain is an ordered path from a table without tenant/user columns to one
// that bears such a column. Hops[i] is the foreign key joining Tables[i] to
// Tables[i+1]; FilterColumn is the tenant or user column (source-cased) on
// the final table.
type Chain struct {
	Tables       []string
	Hops         []*dbserver.ForeignKey
	IDType       IDType
	FilterColumn string
}

// String renders the chain the way reports display it, e.g.
// "ROLE_ACCESS_MAP -> ROLE".
func (c *Chain) String() string {
	return strings.Join(c.Tables, " -> ")
}

// ResolveChain walks the combined foreign-key graph outward from table,
// depth-first, until it reaches a table bearing a tenant or user column. The
// first terminating path found wins. A visited set prevents cycles; nil is
// returned if no path exists within the depth cap.
func ResolveChain(table *dbserver.TableInfo, byLowerName map[string]*dbserver.TableInfo) *Chain {
	visited := map[string]bool{strings.ToLower(table.Name): true}
	return resolve(table, byLowerName, visited, 1)
}

func resolve(table *dbserver.TableInfo, byLowerName map[string]*dbserver.TableInfo, visited map[string]bool, depth int) *Chain {
	if depth > maxChainDepth {
		return nil
	}
	for _, fk := range table.ForeignKeys {
		targetLower := strings.ToLower(fk.ReferencedTable)
		if visited[targetLower] {
			continue
		}
		target, ok := byLowerName[targetLower]
		if !ok {
			continue
		}
		if col := target.ColumnNamed(TenantColumn); col != "" {
			return &Chain{
				Tables:       []string{table.Name, target.Name},
				Hops:         []*dbserver.ForeignKey{fk},
				IDType:       IDTypeTenant,
				FilterColumn: col,
			}
		}
		if col := target.ColumnNamed(UserColumn); col != "" {
			return &Chain{
				Tables:       []string{table.Name, target.Name},
				Hops:         []*dbserver.ForeignKey{fk},
				IDType:       IDTypeUser,
				FilterColumn: col,
			}
		}
		visited[targetLower] = true
		if sub := resolve(target, byLowerName, visited, depth+1); sub != nil {
			return &Chain{
				Tables:       append([]string{table.Name}, sub.Tables...),
				Hops:         append([]*dbserver.ForeignKey{fk}, sub.Hops...),
				IDType:       sub.IDType,
				FilterColumn: sub.FilterColumn,
			}
		}
	}
	return nil
}
