package migrate

import (
	"strings"
	"testing"
)

const sampleCreate = "CREATE TABLE `ROLE_ACCESS_MAP` (\n" +
	"  `id` int(11) NOT NULL AUTO_INCREMENT,\n" +
	"  `role_id` int(11) NOT NULL,\n" +
	"  `access_right_id` int(11) NOT NULL,\n" +
	"  PRIMARY KEY (`id`),\n" +
	"  KEY `fk_ram_role` (`role_id`),\n" +
	"  CONSTRAINT `fk_ram_role` FOREIGN KEY (`role_id`) REFERENCES `ROLE` (`id`) ON DELETE CASCADE,\n" +
	"  CONSTRAINT `fk_ram_right` FOREIGN KEY (`access_right_id`) REFERENCES `ACCESS_RIGHT` (`id`) ON DELETE SET NULL ON UPDATE NO ACTION\n" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

func TestStripForeignKeys(t *testing.T) {
	stripped, clauses := StripForeignKeys(sampleCreate)

	if len(clauses) != 2 {
		t.Fatalf("Expected 2 extracted clauses, got %d: %v", len(clauses), clauses)
	}
	if !strings.HasPrefix(clauses[0], "CONSTRAINT `fk_ram_role`") {
		t.Errorf("First clause should start with the constraint name, got %q", clauses[0])
	}
	if !strings.Contains(clauses[0], "ON DELETE CASCADE") {
		t.Errorf("First clause lost its ON DELETE action: %q", clauses[0])
	}
	if !strings.Contains(clauses[1], "ON UPDATE NO ACTION") {
		t.Errorf("Second clause lost its ON UPDATE action: %q", clauses[1])
	}
	for _, clause := range clauses {
		if strings.HasPrefix(clause, ",") {
			t.Errorf("Extracted clause retains leading comma: %q", clause)
		}
	}

	if strings.Contains(strings.ToUpper(stripped), "FOREIGN KEY") {
		t.Errorf("Stripped statement still contains a foreign key:\n%s", stripped)
	}
	if strings.Contains(stripped, ",,") {
		t.Errorf("Stripped statement contains a double comma:\n%s", stripped)
	}
	if strings.Contains(stripped, ",\n)") || strings.Contains(stripped, ", )") {
		t.Errorf("Stripped statement contains a trailing comma before close paren:\n%s", stripped)
	}
	// Non-FK content survives untouched
	for _, want := range []string{"`id` int(11) NOT NULL AUTO_INCREMENT", "PRIMARY KEY (`id`)", "KEY `fk_ram_role` (`role_id`)", "ENGINE=InnoDB"} {
		if !strings.Contains(stripped, want) {
			t.Errorf("Stripped statement lost %q:\n%s", want, stripped)
		}
	}
}

func TestStripForeignKeysNoConstraints(t *testing.T) {
	create := "CREATE TABLE `simple` (\n  `id` int NOT NULL,\n  PRIMARY KEY (`id`)\n) ENGINE=InnoDB"
	stripped, clauses := StripForeignKeys(create)
	if len(clauses) != 0 {
		t.Errorf("Expected no clauses, got %v", clauses)
	}
	if stripped != create {
		t.Errorf("Statement without constraints should pass through unchanged:\n%s", stripped)
	}
}

func TestStripForeignKeysCaseInsensitive(t *testing.T) {
	create := "CREATE TABLE `t` (\n  `a_id` int,\n  constraint `fk_a` foreign key (`a_id`) references `a` (`id`)\n)"
	stripped, clauses := StripForeignKeys(create)
	if len(clauses) != 1 {
		t.Fatalf("Lowercase constraint not matched: %v", clauses)
	}
	if strings.Contains(strings.ToLower(stripped), "foreign key") {
		t.Errorf("Lowercase constraint not stripped:\n%s", stripped)
	}
}

// Cyclic foreign keys are the reason for the two-pass design: each CREATE
// must come out clean, with both directions re-applicable afterwards.
func TestStripForeignKeysCyclic(t *testing.T) {
	createA := "CREATE TABLE `A` (\n  `id` int NOT NULL,\n  `b_id` int,\n  PRIMARY KEY (`id`),\n  CONSTRAINT `fk_a_b` FOREIGN KEY (`b_id`) REFERENCES `B` (`id`)\n) ENGINE=InnoDB"
	createB := "CREATE TABLE `B` (\n  `id` int NOT NULL,\n  `a_id` int,\n  PRIMARY KEY (`id`),\n  CONSTRAINT `fk_b_a` FOREIGN KEY (`a_id`) REFERENCES `A` (`id`)\n) ENGINE=InnoDB"

	strippedA, clausesA := StripForeignKeys(createA)
	strippedB, clausesB := StripForeignKeys(createB)
	if len(clausesA) != 1 || len(clausesB) != 1 {
		t.Fatalf("Expected one clause per table, got %d and %d", len(clausesA), len(clausesB))
	}
	for _, stripped := range []string{strippedA, strippedB} {
		if strings.Contains(stripped, "CONSTRAINT") {
			t.Errorf("Constraint left behind:\n%s", stripped)
		}
		if strings.Contains(stripped, ",\n)") {
			t.Errorf("Dangling comma before close paren:\n%s", stripped)
		}
	}
}
