package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileName(t *testing.T) {
	cases := []struct {
		ids      []int
		expected string
	}{
		{[]int{1, 7}, "migration_state_1_7.json"},
		{[]int{7, 1}, "migration_state_1_7.json"}, // order-independent
		{[]int{42}, "migration_state_42.json"},
	}
	for _, tc := range cases {
		if actual := FileName(tc.ids); actual != tc.expected {
			t.Errorf("FileName(%v) returned %q, expected %q", tc.ids, actual, tc.expected)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ids := []int{1, 7}

	s, err := Open(dir, ids)
	if err != nil {
		t.Fatalf("Unexpected error from Open: %s", err)
	}
	s.SetTable("STARFOX", "ROLE", StatusCompleted, 2, "")
	s.SetTable("STARFOX", "ACCESS_RIGHT", StatusSkipped, 0, ReasonUserDeclined)
	s.SetRoutine("STARFOX", "sp_audit", "PROCEDURE", StatusCompleted)
	s.Close()

	// A fresh Store sees everything the previous process flushed
	s2, err := Open(dir, []int{7, 1}) // different ordering, same file
	if err != nil {
		t.Fatalf("Unexpected error reopening store: %s", err)
	}
	defer s2.Close()

	if ts, ok := s2.Table("STARFOX", "ROLE"); !ok || ts.Status != StatusCompleted || ts.Rows != 2 {
		t.Errorf("ROLE state not persisted correctly: %+v (ok=%t)", ts, ok)
	}
	if ts, ok := s2.Table("STARFOX", "ACCESS_RIGHT"); !ok || ts.Status != StatusSkipped || ts.Reason != ReasonUserDeclined {
		t.Errorf("ACCESS_RIGHT state not persisted correctly: %+v (ok=%t)", ts, ok)
	}
	if rs, ok := s2.Routine("STARFOX", "sp_audit"); !ok || rs.Type != "PROCEDURE" || rs.Status != StatusCompleted {
		t.Errorf("Routine state not persisted correctly: %+v (ok=%t)", rs, ok)
	}
	if _, ok := s2.Table("STARFOX", "NOPE"); ok {
		t.Error("Nonexistent table reported as present")
	}
}

// Within a run, completed is terminal: a later failure may not regress it.
func TestStoreCompletedIsMonotone(t *testing.T) {
	s, err := Open(t.TempDir(), []int{1})
	if err != nil {
		t.Fatalf("Unexpected error from Open: %s", err)
	}
	defer s.Close()

	s.SetTable("DB", "T", StatusCompleted, 10, "")
	s.SetTable("DB", "T", StatusFailed, 0, "boom")
	if ts, _ := s.Table("DB", "T"); ts.Status != StatusCompleted || ts.Rows != 10 {
		t.Errorf("Completed table regressed to %+v", ts)
	}

	// Re-marking completed (e.g. a forced re-run) is still allowed
	s.SetTable("DB", "T", StatusCompleted, 12, "")
	if ts, _ := s.Table("DB", "T"); ts.Rows != 12 {
		t.Errorf("Forced completion not recorded: %+v", ts)
	}
}

func TestStoreCorruptFileFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName([]int{5}))
	if err := os.WriteFile(path, []byte("{not json"), 0666); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir, []int{5})
	if err != nil {
		t.Fatalf("Corrupt state file should not fail Open: %s", err)
	}
	defer s.Close()
	if len(s.Checkpoint().Databases) != 0 {
		t.Error("Corrupt state should load as empty")
	}

	// And a subsequent write replaces the corrupt file with valid JSON
	s.SetTable("DB", "T", StatusCompleted, 1, "")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var ck Checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		t.Errorf("State file still not valid JSON after write: %s", err)
	}
}

func TestStoreLockExcludesSecondProcess(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, []int{9})
	if err != nil {
		t.Fatalf("Unexpected error from Open: %s", err)
	}
	defer s.Close()

	if _, err := Open(dir, []int{9}); err == nil {
		t.Error("Second Open of the same customer-id set should fail while locked")
	}
	// A different id set is unaffected
	other, err := Open(dir, []int{10})
	if err != nil {
		t.Errorf("Unrelated id set should not be locked out: %s", err)
	} else {
		other.Close()
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	s := OpenReadOnly(t.TempDir(), []int{1, 2})
	if len(s.Checkpoint().Databases) != 0 {
		t.Error("Missing state file should load as empty")
	}
}
