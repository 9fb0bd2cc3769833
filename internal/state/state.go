// Package state persists per-run migration checkpoints, keyed by the sorted
// customer-id set, so interrupted or repeated runs can skip work that already
// completed. One file per id set lives under the state directory; every
// status transition is flushed immediately via write-temp-then-rename.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// Statuses a table or routine can terminate in.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Skip reasons recorded alongside StatusSkipped.
const (
	ReasonEnvSkipTables = "env_skip_tables"
	ReasonUserDeclined  = "user_declined"
)

// TableState records the outcome of one table's migration.
type TableState struct {
	Status    string    `json:"status"`
	Rows      int64     `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// RoutineState records the outcome of one stored routine's migration.
type RoutineState struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DatabaseState groups the per-table and per-routine outcomes of one
// database.
type DatabaseState struct {
	Tables   map[string]TableState   `json:"tables"`
	Routines map[string]RoutineState `json:"routines"`
}

// Checkpoint is the full on-disk structure for one customer-id set.
type Checkpoint struct {
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Databases map[string]*DatabaseState `json:"databases"`
}

// Store loads, mutates, and durably persists a Checkpoint. It also holds an
// advisory file lock so that only one process operates on a given
// customer-id set at a time.
type Store struct {
	path     string
	lock     *flock.Flock
	ck       *Checkpoint
	readOnly bool
}

// FileName returns the state file name for a customer-id set. Ids are sorted
// so that the key is independent of the order they were supplied in.
func FileName(customerIDs []int) string {
	sorted := append([]int(nil), customerIDs...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for n, id := range sorted {
		parts[n] = strconv.Itoa(id)
	}
	return fmt.Sprintf("migration_state_%s.json", strings.Join(parts, "_"))
}

// Open loads (or initializes) the checkpoint for the supplied customer-id
// set and acquires its lock. A missing file yields an empty checkpoint; a
// corrupt file yields an empty checkpoint with a warning, so a damaged state
// never blocks a run.
func Open(dir string, customerIDs []int) (*Store, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("unable to create state directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(customerIDs))
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("unable to lock state file %s: %w", path, err)
	} else if !locked {
		return nil, fmt.Errorf("state file %s is locked: another migration for this customer-id set is already running", path)
	}
	s := &Store{path: path, lock: lock}
	s.ck = load(path)
	return s, nil
}

// OpenReadOnly loads the checkpoint without locking or ever writing,
// for status display.
func OpenReadOnly(dir string, customerIDs []int) *Store {
	path := filepath.Join(dir, FileName(customerIDs))
	return &Store{path: path, ck: load(path), readOnly: true}
}

func load(path string) *Checkpoint {
	ck := &Checkpoint{
		CreatedAt: time.Now(),
		Databases: make(map[string]*DatabaseState),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ck
	} else if err != nil {
		log.Warnf("Ignoring unreadable state file %s: %s", path, err)
		return ck
	}
	if err := json.Unmarshal(data, ck); err != nil {
		log.Warnf("Ignoring corrupt state file %s: %s", path, err)
		return &Checkpoint{CreatedAt: time.Now(), Databases: make(map[string]*DatabaseState)}
	}
	if ck.Databases == nil {
		ck.Databases = make(map[string]*DatabaseState)
	}
	return ck
}

// Close releases the advisory lock.
func (s *Store) Close() {
	if s.lock != nil {
		s.lock.Unlock()
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Checkpoint exposes the loaded state for read-only traversal (status
// display, summaries).
func (s *Store) Checkpoint() *Checkpoint {
	return s.ck
}

func (s *Store) database(name string) *DatabaseState {
	ds, ok := s.ck.Databases[name]
	if !ok {
		ds = &DatabaseState{
			Tables:   make(map[string]TableState),
			Routines: make(map[string]RoutineState),
		}
		s.ck.Databases[name] = ds
	}
	if ds.Tables == nil {
		ds.Tables = make(map[string]TableState)
	}
	if ds.Routines == nil {
		ds.Routines = make(map[string]RoutineState)
	}
	return ds
}

// Table returns the recorded state of a table, with ok=false if the table
// has no entry yet.
func (s *Store) Table(database, table string) (TableState, bool) {
	ds, ok := s.ck.Databases[database]
	if !ok || ds.Tables == nil {
		return TableState{}, false
	}
	ts, ok := ds.Tables[table]
	return ts, ok
}

// Routine returns the recorded state of a routine, with ok=false if it has
// no entry yet.
func (s *Store) Routine(database, routine string) (RoutineState, bool) {
	ds, ok := s.ck.Databases[database]
	if !ok || ds.Routines == nil {
		return RoutineState{}, false
	}
	rs, ok := ds.Routines[routine]
	return rs, ok
}

// SetTable records a table's terminal status and flushes to disk. Within a
// run, a completed table is never regressed to failed.
func (s *Store) SetTable(database, table, status string, rows int64, reason string) {
	ds := s.database(database)
	if prev, ok := ds.Tables[table]; ok && prev.Status == StatusCompleted && status == StatusFailed {
		return
	}
	ds.Tables[table] = TableState{
		Status:    status,
		Rows:      rows,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	s.flush()
}

// SetRoutine records a routine's terminal status and flushes to disk.
func (s *Store) SetRoutine(database, routine, routineType, status string) {
	ds := s.database(database)
	ds.Routines[routine] = RoutineState{
		Type:      routineType,
		Status:    status,
		Timestamp: time.Now(),
	}
	s.flush()
}

// flush serializes the checkpoint and atomically replaces the state file.
// Failures are logged rather than returned: a checkpointing problem should
// never abort a migration mid-table.
func (s *Store) flush() {
	if s.readOnly {
		return
	}
	s.ck.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s.ck, "", "  ")
	if err != nil {
		log.Warnf("Unable to serialize migration state: %s", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0666); err != nil {
		log.Warnf("Unable to write migration state to %s: %s", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Warnf("Unable to replace migration state file %s: %s", s.path, err)
	}
}
