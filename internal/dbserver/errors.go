package dbserver

import (
	"errors"

	"github.com/VividCortex/mysqlerr"
	"github.com/go-sql-driver/mysql"
)

// IsServerError returns true if err came from the database server and its
// error number matches any of the supplied values.
func IsServerError(err error, errcodes ...uint16) bool {
	var merr *mysql.MySQLError
	if !errors.As(err, &merr) {
		return false
	}
	for _, code := range errcodes {
		if merr.Number == code {
			return true
		}
	}
	return false
}

// IsDuplicateEntry returns true if err indicates a primary or unique key
// conflict.
func IsDuplicateEntry(err error) bool {
	return IsServerError(err, mysqlerr.ER_DUP_ENTRY)
}

// IsMissingTable returns true if err indicates the referenced table does not
// exist.
func IsMissingTable(err error) bool {
	return IsServerError(err, mysqlerr.ER_NO_SUCH_TABLE)
}

// IsMissingDatabase returns true if err indicates the referenced database
// does not exist.
func IsMissingDatabase(err error) bool {
	return IsServerError(err, mysqlerr.ER_BAD_DB_ERROR)
}

// IsAccessError returns true if err indicates an authentication or
// authorization problem, at connection time or query time. There is no sense
// in retrying a connection or query upon encountering this type of error.
func IsAccessError(err error) bool {
	return IsServerError(err,
		mysqlerr.ER_ACCESS_DENIED_ERROR,
		mysqlerr.ER_BAD_HOST_ERROR,
		mysqlerr.ER_DBACCESS_DENIED_ERROR,
		mysqlerr.ER_HOST_NOT_PRIVILEGED,
		mysqlerr.ER_HOST_IS_BLOCKED,
		mysqlerr.ER_SPECIFIC_ACCESS_DENIED_ERROR,
	)
}
