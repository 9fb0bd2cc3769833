package dbserver

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/VividCortex/mysqlerr"
	"github.com/jmoiron/sqlx"
)

// Routine represents a stored procedure or function on the source server.
type Routine struct {
	Name string
	Type ObjectType // ObjectTypeProc or ObjectTypeFunc
}

// DropStatement returns a SQL statement that, if run, would drop this
// routine.
func (r *Routine) DropStatement() string {
	return fmt.Sprintf("DROP %s IF EXISTS %s", r.Type.Caps(), EscapeIdentifier(r.Name))
}

func (r *Routine) String() string {
	return fmt.Sprintf("%s %s", r.Type, r.Name)
}

// SchemaRoutines returns the stored procedures and functions of a database.
// Routines whose definition is not visible to the user are excluded, since
// they could not be replicated anyway.
func (in *Instance) SchemaRoutines(schema string) ([]*Routine, error) {
	db, err := in.Connect("information_schema", "")
	if err != nil {
		return nil, err
	}
	var rawRoutines []struct {
		Name string `db:"routine_name"`
		Type string `db:"routine_type"`
	}
	query := `
		SELECT   r.routine_name AS routine_name, UPPER(r.routine_type) AS routine_type
		FROM     routines r
		WHERE    r.routine_schema = ? AND r.routine_definition IS NOT NULL
		ORDER BY r.routine_name`
	if err := db.Select(&rawRoutines, query, schema); err != nil {
		return nil, fmt.Errorf("querying information_schema.routines for %s: %w", EscapeIdentifier(schema), err)
	}
	routines := make([]*Routine, 0, len(rawRoutines))
	for _, raw := range rawRoutines {
		r := &Routine{Name: raw.Name, Type: ObjectType(strings.ToLower(raw.Type))}
		if r.Type != ObjectTypeProc && r.Type != ObjectTypeFunc {
			return nil, fmt.Errorf("unsupported routine type %s found in %s.%s", raw.Type, schema, raw.Name)
		}
		routines = append(routines, r)
	}
	return routines, nil
}

// ShowCreateRoutine returns the complete CREATE statement for a routine, as
// the server reports it.
func (in *Instance) ShowCreateRoutine(schema string, routine *Routine) (string, error) {
	db, err := in.Connect(schema, "")
	if err != nil {
		return "", err
	}
	return showCreateRoutine(db, routine)
}

func showCreateRoutine(db *sqlx.DB, routine *Routine) (create string, err error) {
	query := fmt.Sprintf("SHOW CREATE %s %s", routine.Type.Caps(), EscapeIdentifier(routine.Name))
	if routine.Type == ObjectTypeProc {
		var createRows []struct {
			CreateStatement sql.NullString `db:"Create Procedure"`
		}
		err = db.Select(&createRows, query)
		if (err == nil && len(createRows) != 1) || IsServerError(err, mysqlerr.ER_SP_DOES_NOT_EXIST) {
			err = sql.ErrNoRows
		} else if err == nil {
			create = createRows[0].CreateStatement.String
		}
	} else if routine.Type == ObjectTypeFunc {
		var createRows []struct {
			CreateStatement sql.NullString `db:"Create Function"`
		}
		err = db.Select(&createRows, query)
		if (err == nil && len(createRows) != 1) || IsServerError(err, mysqlerr.ER_SP_DOES_NOT_EXIST) {
			err = sql.ErrNoRows
		} else if err == nil {
			create = createRows[0].CreateStatement.String
		}
	} else {
		err = fmt.Errorf("object type %s is not a routine", routine.Type)
	}
	if err == nil {
		create = strings.Replace(create, "\r\n", "\n", -1)
	}
	return
}
