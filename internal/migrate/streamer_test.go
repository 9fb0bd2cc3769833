package migrate

import (
	"strings"
	"testing"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

func TestSelectPartsDirect(t *testing.T) {
	role := table("STARFOX", "ROLE", "id", "customer_id", "name")
	plans := BuildPlans([]*dbserver.TableInfo{role})

	columns, from, where := selectParts(plans[0], false)
	if len(columns) != 3 || columns[0] != "`id`" {
		t.Errorf("Unexpected column list %v", columns)
	}
	if from != "`STARFOX`.`ROLE`" {
		t.Errorf("Unexpected FROM %q", from)
	}
	if where != "`customer_id` IN (?)" {
		t.Errorf("Unexpected WHERE %q", where)
	}
}

func TestSelectPartsIndirect(t *testing.T) {
	role := table("STARFOX", "ROLE", "id", "customer_id")
	accessMap := table("STARFOX", "ROLE_ACCESS_MAP", "id", "role_id")
	tables := []*dbserver.TableInfo{role, accessMap}
	InferForeignKeys(tables)
	plans := BuildPlans(tables)

	var indirect *Plan
	for _, p := range plans {
		if p.Class == ClassIndirect {
			indirect = p
		}
	}
	if indirect == nil {
		t.Fatal("Expected ROLE_ACCESS_MAP to classify indirect")
	}

	columns, from, where := selectParts(indirect, false)
	if columns[0] != "t0.`id`" {
		t.Errorf("Indirect column list should be t0-qualified, got %v", columns)
	}
	expectedFrom := "`STARFOX`.`ROLE_ACCESS_MAP` AS t0 INNER JOIN `STARFOX`.`ROLE` AS t1 ON t0.`role_id` = t1.`id`"
	if from != expectedFrom {
		t.Errorf("Unexpected FROM:\n  actual:   %s\n  expected: %s", from, expectedFrom)
	}
	if where != "t1.`customer_id` IN (?)" {
		t.Errorf("Unexpected WHERE %q", where)
	}
}

func TestSelectPartsReferenceAndForced(t *testing.T) {
	lookup := table("STARFOX", "ACCESS_RIGHT", "id", "code")
	plans := BuildPlans([]*dbserver.TableInfo{lookup})
	_, from, where := selectParts(plans[0], false)
	if where != "" {
		t.Errorf("Reference tables are unfiltered, got WHERE %q", where)
	}
	if from != "`STARFOX`.`ACCESS_RIGHT`" {
		t.Errorf("Unexpected FROM %q", from)
	}

	// A force-listed direct table also copies wholesale
	role := table("STARFOX", "ROLE", "id", "customer_id")
	forcedPlans := BuildPlans([]*dbserver.TableInfo{role})
	_, _, where = selectParts(forcedPlans[0], true)
	if where != "" {
		t.Errorf("Forced copies are unfiltered, got WHERE %q", where)
	}
}

func TestBuildInsertIgnore(t *testing.T) {
	role := table("STARFOX", "ROLE", "id", "customer_id", "name")
	actual := buildInsertIgnore(role)
	expected := "INSERT IGNORE INTO `STARFOX`.`ROLE` (`id`, `customer_id`, `name`) VALUES (?, ?, ?)"
	if actual != expected {
		t.Errorf("Unexpected insert statement:\n  actual:   %s\n  expected: %s", actual, expected)
	}
}

func TestBuildInsertIgnoreEscaping(t *testing.T) {
	odd := table("db", "weird`name", "col`umn")
	actual := buildInsertIgnore(odd)
	if !strings.Contains(actual, "`weird``name`") || !strings.Contains(actual, "`col``umn`") {
		t.Errorf("Identifiers not escaped: %s", actual)
	}
}

func TestStreamerBatchSizeDefault(t *testing.T) {
	st := &Streamer{}
	if st.batchSize() != DefaultBatchSize {
		t.Errorf("Zero batch size should default to %d, got %d", DefaultBatchSize, st.batchSize())
	}
	st.BatchSize = 250
	if st.batchSize() != 250 {
		t.Errorf("Explicit batch size ignored, got %d", st.batchSize())
	}
}

func TestStreamerFilterIDs(t *testing.T) {
	st := &Streamer{TenantIDs: []int{1, 7}, SeedUserIDs: []int{1, 2}}
	if ids := st.filterIDs(IDTypeTenant); len(ids) != 2 || ids[1] != 7 {
		t.Errorf("Unexpected tenant ids %v", ids)
	}
	if ids := st.filterIDs(IDTypeUser); len(ids) != 2 || ids[1] != 2 {
		t.Errorf("Unexpected seed user ids %v", ids)
	}
}
