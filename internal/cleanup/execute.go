package cleanup

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/aro-ch/mariamove/internal/dbserver"
)

// DeletionRecord is one table's entry in the audit log written after a row
// delete.
type DeletionRecord struct {
	Database    string `json:"database"`
	Table       string `json:"table"`
	RowsDeleted *int64 `json:"rows_deleted,omitempty"`
	Filter      string `json:"filter,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DeletionLog is the structured audit trail for one row-delete run.
type DeletionLog struct {
	Timestamp  time.Time        `json:"timestamp"`
	TargetHost string           `json:"target_host"`
	TargetPort int              `json:"target_port"`
	Deletions  []DeletionRecord `json:"deletions"`
}

// ExecuteDrop drops every database in scope from the destination. Per-
// database failures are logged and counted; the rest proceed.
func ExecuteDrop(dest *dbserver.Instance, scope *Scope) (dropped, failed int) {
	for _, target := range scope.Databases {
		log.Infof("Dropping database %s", dbserver.EscapeIdentifier(target.Name))
		if err := dest.DropDatabase(target.Name); err != nil {
			log.Errorf("Unable to drop database %s: %s", dbserver.EscapeIdentifier(target.Name), err)
			failed++
			continue
		}
		dropped++
	}
	return dropped, failed
}

// ExecuteDelete removes the analyzed rows from the destination, one DELETE
// per table, and writes the audit log file. Foreign-key enforcement is
// disabled on the deleting sessions only; server defaults apply again as
// soon as those sessions close.
func ExecuteDelete(dest *dbserver.Instance, scope *Scope, customerIDs []int) (totalDeleted int64, logFile string, err error) {
	deletionLog := &DeletionLog{
		Timestamp:  time.Now(),
		TargetHost: dest.Host,
		TargetPort: dest.Port,
	}

	db, err := dest.Connect("", "foreign_key_checks=0")
	if err != nil {
		return 0, "", err
	}

	for _, dbTarget := range scope.Databases {
		log.Infof("Deleting from database %s", dbserver.EscapeIdentifier(dbTarget.Name))
		for _, target := range dbTarget.Tables {
			deleted, delErr := deleteRows(db, target, customerIDs)
			if delErr != nil {
				log.Errorf("Unable to delete from %s: %s", dbserver.QualifiedName(target.Database, target.Table), delErr)
				deletionLog.Deletions = append(deletionLog.Deletions, DeletionRecord{
					Database: target.Database,
					Table:    target.Table,
					Error:    delErr.Error(),
				})
				continue
			}
			log.Infof("Deleted %d row(s) from %s", deleted, dbserver.QualifiedName(target.Database, target.Table))
			totalDeleted += deleted
			deletionLog.Deletions = append(deletionLog.Deletions, DeletionRecord{
				Database:    target.Database,
				Table:       target.Table,
				RowsDeleted: &deleted,
				Filter:      target.Filter,
			})
		}
	}

	logFile = fmt.Sprintf("deletion_log_%s.json", time.Now().Format("20060102_150405"))
	if writeErr := writeDeletionLog(logFile, deletionLog); writeErr != nil {
		log.Warnf("Unable to write deletion log %s: %s", logFile, writeErr)
	}
	return totalDeleted, logFile, nil
}

func deleteRows(db *sqlx.DB, target *TableTarget, customerIDs []int) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s", dbserver.QualifiedName(target.Database, target.Table))
	var args []interface{}
	if target.HasTenantColumn && len(customerIDs) > 0 {
		var err error
		query, args, err = sqlx.In(fmt.Sprintf("%s WHERE `customer_id` IN (?)", query), customerIDs)
		if err != nil {
			return 0, err
		}
	}
	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func writeDeletionLog(path string, deletionLog *DeletionLog) error {
	data, err := json.MarshalIndent(deletionLog, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0666)
}
