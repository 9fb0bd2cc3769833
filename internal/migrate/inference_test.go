package migrate

import (
	"testing"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

func table(database, name string, columns ...string) *dbserver.TableInfo {
	return &dbserver.TableInfo{Database: database, Name: name, Columns: columns}
}

func fkStrings(t *dbserver.TableInfo) []string {
	result := make([]string, len(t.ForeignKeys))
	for n, fk := range t.ForeignKeys {
		result[n] = fk.String()
	}
	return result
}

func TestIdColumnStem(t *testing.T) {
	cases := []struct {
		column   string
		expected string
	}{
		{"role_id", "role"},
		{"roleid", "role"},
		{"customer_id", "customer"},
		{"name", ""},
		{"id", ""}, // bare id yields an empty stem
		{"paid", "pa"},
	}
	for _, tc := range cases {
		if actual := idColumnStem(tc.column); actual != tc.expected {
			t.Errorf("idColumnStem(%q) returned %q, expected %q", tc.column, actual, tc.expected)
		}
	}
}

func TestInferForeignKeys(t *testing.T) {
	role := table("STARFOX", "ROLE", "id", "customer_id", "name")
	accessMap := table("STARFOX", "ROLE_ACCESS_MAP", "id", "role_id", "access_right_id")
	accessRight := table("STARFOX", "ACCESS_RIGHT", "id", "code")
	tables := []*dbserver.TableInfo{role, accessMap, accessRight}

	InferForeignKeys(tables)

	if len(accessMap.ForeignKeys) != 2 {
		t.Fatalf("Expected 2 inferred keys on ROLE_ACCESS_MAP, found %d: %v", len(accessMap.ForeignKeys), fkStrings(accessMap))
	}
	first := accessMap.ForeignKeys[0]
	if first.Column != "role_id" || first.ReferencedTable != "ROLE" || !first.Implicit {
		t.Errorf("Unexpected first inferred key: %s", first)
	}
	if first.JoinColumn() != "id" {
		t.Errorf("Implicit key should join on literal id, got %q", first.JoinColumn())
	}
	// customer_id is reserved-adjacent but not in the reserved set; however
	// there is no CUSTOMER table in the universe, so no key appears on ROLE
	if len(role.ForeignKeys) != 0 {
		t.Errorf("Expected no inferred keys on ROLE, found %v", fkStrings(role))
	}
}

func TestInferForeignKeysReservedColumns(t *testing.T) {
	users := table("AUTH", "users", "id", "name")
	audit := table("AUTH", "audit_log", "id", "created_by", "updated_by", "user_id")
	InferForeignKeys([]*dbserver.TableInfo{users, audit})

	if len(audit.ForeignKeys) != 1 {
		t.Fatalf("Expected exactly 1 inferred key on audit_log, found %v", fkStrings(audit))
	}
	if fk := audit.ForeignKeys[0]; fk.Column != "user_id" || fk.ReferencedTable != "users" {
		t.Errorf("Unexpected inferred key: %s", fk)
	}
}

func TestInferForeignKeysPluralResolution(t *testing.T) {
	// order_id resolves against a table named "orders" via the stem+"s" rule
	orders := table("SHOP", "orders", "id", "total")
	lines := table("SHOP", "order_line", "id", "order_id")
	// categories_id resolves against a table named "categorie" via the
	// trailing-s trim rule
	categories := table("SHOP", "categorie", "id")
	products := table("SHOP", "product", "id", "categories_id")
	InferForeignKeys([]*dbserver.TableInfo{orders, lines, categories, products})

	if len(lines.ForeignKeys) != 1 || lines.ForeignKeys[0].ReferencedTable != "orders" {
		t.Errorf("order_id should infer against orders, found %v", fkStrings(lines))
	}
	if len(products.ForeignKeys) != 1 || products.ForeignKeys[0].ReferencedTable != "categorie" {
		t.Errorf("categories_id should infer against categorie via trailing-s trim, found %v", fkStrings(products))
	}
}

func TestInferForeignKeysExplicitPrecedence(t *testing.T) {
	role := table("STARFOX", "ROLE", "id", "customer_id")
	accessMap := table("STARFOX", "ROLE_ACCESS_MAP", "id", "role_id")
	accessMap.ForeignKeys = []*dbserver.ForeignKey{
		{Column: "role_id", ReferencedTable: "ROLE", ReferencedColumn: "id"},
	}
	InferForeignKeys([]*dbserver.TableInfo{role, accessMap})

	if len(accessMap.ForeignKeys) != 1 {
		t.Fatalf("Explicit key should suppress inference for the same column, found %v", fkStrings(accessMap))
	}
	if accessMap.ForeignKeys[0].Implicit {
		t.Error("Explicit key was replaced by an implicit one")
	}
}
