package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aro-ch/mariamove/internal/dbserver"
	"github.com/aro-ch/mariamove/internal/shellout"
)

// backupTimeout bounds each mysqldump invocation.
const backupTimeout = 300 * time.Second

// BackupDatabases dumps each database from the destination server into a
// timestamped directory before a destructive operation, one .sql file per
// database via mysqldump. Individual dump failures are warnings, never hard
// errors; the operation proceeds regardless.
func BackupDatabases(dest *dbserver.Instance, databases []string, backupDir string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("backup_before_deletion_%s", timestamp))
	if err := os.MkdirAll(backupPath, 0777); err != nil {
		return "", fmt.Errorf("unable to create backup directory %s: %w", backupPath, err)
	}
	log.Infof("Backing up destination databases to %s", backupPath)

	vars := map[string]string{
		"HOST":     dest.Host,
		"PORT":     strconv.Itoa(dest.Port),
		"USER":     dest.User,
		"PASSWORD": dest.Password,
	}
	template := "mysqldump -h {HOST} -P {PORT} -u {USER} --databases {DB}"
	if dest.Password != "" {
		template = "mysqldump -h {HOST} -P {PORT} -u {USER} -p{PASSWORDX} --databases {DB}"
	}

	for _, database := range databases {
		vars["DB"] = database
		cmd, err := shellout.New(template).WithVariables(vars)
		if err != nil {
			log.Warnf("Unable to build backup command for %s: %s", database, err)
			continue
		}
		outFile := filepath.Join(backupPath, database+".sql")
		f, err := os.Create(outFile)
		if err != nil {
			log.Warnf("Unable to create backup file %s: %s", outFile, err)
			continue
		}
		log.Infof("Backing up %s: %s", database, cmd)
		err = cmd.WithTimeout(backupTimeout).WithStdout(f).Run()
		f.Close()
		if err != nil {
			log.Warnf("Backup of %s failed: %s", database, err)
			continue
		}
		if fi, err := os.Stat(outFile); err == nil {
			log.Infof("Backed up %s (%.1f MB)", database, float64(fi.Size())/1024/1024)
		}
	}
	return backupPath, nil
}
