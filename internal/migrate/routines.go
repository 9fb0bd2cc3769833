package migrate

import (
	log "github.com/sirupsen/logrus"

	"github.com/aro-ch/mariamove/internal/dbserver"
	"github.com/aro-ch/mariamove/internal/state"
)

// RoutineCounts summarizes one database's routine replication.
type RoutineCounts struct {
	Migrated int
	Skipped  int
	Failed   int
}

// RoutineMigrator copies stored procedures and functions from source to
// destination via SHOW CREATE followed by drop-and-create. Routine failures
// never block table migration.
type RoutineMigrator struct {
	Source *dbserver.Instance
	Dest   *dbserver.Instance
	Store  *state.Store
	Force  bool
}

// MigrateDatabase replicates every visible routine of one database.
// Routines already recorded completed are left untouched unless force is
// active.
func (rm *RoutineMigrator) MigrateDatabase(database string) RoutineCounts {
	var counts RoutineCounts

	routines, err := rm.Source.SchemaRoutines(database)
	if err != nil {
		log.Errorf("Unable to list routines in %s: %s", dbserver.EscapeIdentifier(database), err)
		return counts
	}
	if len(routines) == 0 {
		return counts
	}
	log.Infof("Phase 0: migrating %d routine(s) in %s", len(routines), dbserver.EscapeIdentifier(database))

	for _, r := range routines {
		if prev, ok := rm.Store.Routine(database, r.Name); ok && prev.Status == state.StatusCompleted && !rm.Force {
			log.Infof("%s %s already migrated, skipping", r.Type, r.Name)
			counts.Skipped++
			continue
		}
		if err := rm.migrateRoutine(database, r); err != nil {
			log.Errorf("Unable to migrate %s %s in %s: %s", r.Type, r.Name, dbserver.EscapeIdentifier(database), err)
			rm.Store.SetRoutine(database, r.Name, r.Type.Caps(), state.StatusFailed)
			counts.Failed++
			continue
		}
		rm.Store.SetRoutine(database, r.Name, r.Type.Caps(), state.StatusCompleted)
		counts.Migrated++
	}
	return counts
}

func (rm *RoutineMigrator) migrateRoutine(database string, r *dbserver.Routine) error {
	create, err := rm.Source.ShowCreateRoutine(database, r)
	if err != nil {
		return err
	}
	// The pool's default schema supplies the USE context for the create
	db, err := rm.Dest.Connect(database, "")
	if err != nil {
		return err
	}
	if _, err := db.Exec(r.DropStatement()); err != nil {
		return err
	}
	_, err = db.Exec(create)
	return err
}
