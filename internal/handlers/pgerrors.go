package handlers

import "errors"

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// pgSQLErr matches the pgconn.PgError carried inside gorm errors without
// importing the driver package directly.
type pgSQLErr interface {
	SQLState() string
}

func sqlState(err error) string {
	var pgErr pgSQLErr
	if errors.As(err, &pgErr) {
		return pgErr.SQLState()
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return sqlState(err) == pgForeignKeyViolation
}
