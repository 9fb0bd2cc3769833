package migrate

import (
	"strings"
	"testing"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

func universe(tables ...*dbserver.TableInfo) map[string]*dbserver.TableInfo {
	result := make(map[string]*dbserver.TableInfo, len(tables))
	for _, t := range tables {
		result[strings.ToLower(t.Name)] = t
	}
	return result
}

func implicitFK(column, referencedTable string) *dbserver.ForeignKey {
	return &dbserver.ForeignKey{Column: column, ReferencedTable: referencedTable, Implicit: true}
}

func TestResolveChainSingleHop(t *testing.T) {
	role := table("STARFOX", "ROLE", "id", "customer_id")
	accessMap := table("STARFOX", "ROLE_ACCESS_MAP", "id", "role_id")
	accessMap.ForeignKeys = []*dbserver.ForeignKey{implicitFK("role_id", "ROLE")}

	chain := ResolveChain(accessMap, universe(role, accessMap))
	if chain == nil {
		t.Fatal("Expected a chain, got nil")
	}
	if chain.String() != "ROLE_ACCESS_MAP -> ROLE" {
		t.Errorf("Unexpected chain %q", chain)
	}
	if chain.IDType != IDTypeTenant || chain.FilterColumn != "customer_id" {
		t.Errorf("Unexpected terminal: idType=%s filterColumn=%s", chain.IDType, chain.FilterColumn)
	}
	if len(chain.Hops) != 1 || chain.Hops[0].Column != "role_id" {
		t.Errorf("Unexpected hops: %v", chain.Hops)
	}
}

func TestResolveChainMultiHop(t *testing.T) {
	account := table("APP", "ACCOUNT", "id", "CUSTOMER_ID") // column case preserved
	project := table("APP", "PROJECT", "id", "account_id")
	project.ForeignKeys = []*dbserver.ForeignKey{implicitFK("account_id", "ACCOUNT")}
	task := table("APP", "TASK", "id", "project_id")
	task.ForeignKeys = []*dbserver.ForeignKey{implicitFK("project_id", "PROJECT")}

	chain := ResolveChain(task, universe(account, project, task))
	if chain == nil {
		t.Fatal("Expected a chain, got nil")
	}
	if chain.String() != "TASK -> PROJECT -> ACCOUNT" {
		t.Errorf("Unexpected chain %q", chain)
	}
	if chain.FilterColumn != "CUSTOMER_ID" {
		t.Errorf("Filter column should preserve source case, got %q", chain.FilterColumn)
	}
	if len(chain.Hops) != 2 {
		t.Errorf("Expected 2 hops, got %d", len(chain.Hops))
	}
}

func TestResolveChainUserTerminal(t *testing.T) {
	users := table("AUTH", "users", "id", "user_id") // degenerate but direct-user-bearing
	pref := table("AUTH", "preference", "id", "users_id")
	pref.ForeignKeys = []*dbserver.ForeignKey{implicitFK("users_id", "users")}

	chain := ResolveChain(pref, universe(users, pref))
	if chain == nil {
		t.Fatal("Expected a chain, got nil")
	}
	if chain.IDType != IDTypeUser || chain.FilterColumn != "user_id" {
		t.Errorf("Expected user terminal, got idType=%s col=%s", chain.IDType, chain.FilterColumn)
	}
}

func TestResolveChainTenantWinsOverUser(t *testing.T) {
	// Terminal table bears both columns; tenant takes precedence
	owner := table("APP", "OWNER", "id", "user_id", "customer_id")
	child := table("APP", "CHILD", "id", "owner_id")
	child.ForeignKeys = []*dbserver.ForeignKey{implicitFK("owner_id", "OWNER")}

	chain := ResolveChain(child, universe(owner, child))
	if chain == nil || chain.IDType != IDTypeTenant {
		t.Fatalf("Expected tenant terminal, got %+v", chain)
	}
}

func TestResolveChainCycle(t *testing.T) {
	a := table("APP", "A", "id", "b_id")
	b := table("APP", "B", "id", "a_id")
	a.ForeignKeys = []*dbserver.ForeignKey{implicitFK("b_id", "B")}
	b.ForeignKeys = []*dbserver.ForeignKey{implicitFK("a_id", "A")}

	if chain := ResolveChain(a, universe(a, b)); chain != nil {
		t.Errorf("Cyclic graph with no terminal should resolve to nil, got %q", chain)
	}
}

func TestResolveChainDepthCap(t *testing.T) {
	// A linear chain of length maxChainDepth+2; the tenant table sits beyond
	// the cap and must not be reached
	tables := make([]*dbserver.TableInfo, maxChainDepth+2)
	for n := range tables {
		name := "T" + strings.Repeat("X", n)
		tables[n] = table("APP", name, "id")
	}
	tables[len(tables)-1].Columns = append(tables[len(tables)-1].Columns, "customer_id")
	for n := 0; n < len(tables)-1; n++ {
		tables[n].ForeignKeys = []*dbserver.ForeignKey{implicitFK("next_id", tables[n+1].Name)}
	}
	if chain := ResolveChain(tables[0], universe(tables...)); chain != nil {
		t.Errorf("Chain beyond the depth cap should resolve to nil, got %q", chain)
	}

	// Move the tenant column within reach and the chain resolves
	within := tables[maxChainDepth]
	within.Columns = append(within.Columns, "customer_id")
	if chain := ResolveChain(tables[0], universe(tables...)); chain == nil {
		t.Error("Chain within the depth cap should resolve")
	}
}

func TestResolveChainNoPath(t *testing.T) {
	isolated := table("APP", "LOOKUP", "id", "code")
	if chain := ResolveChain(isolated, universe(isolated)); chain != nil {
		t.Errorf("Isolated table should resolve to nil, got %q", chain)
	}
}
