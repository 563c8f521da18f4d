package repository

import (
	"github.com/jmoiron/sqlx"

	"github.com/tourops/dispatch-core/internal/database"
)

// inClauseQuery expands a `?`-placeholder query containing one IN (?)
// slice argument using sqlx.In, leaving `?` placeholders for the caller
// to Rebind to the driver's `$n` style.
func inClauseQuery(query string, args ...interface{}) (string, []interface{}, error) {
	return sqlx.In(query, args...)
}

// rebind rebinds a `?`-placeholder query to the Postgres `$n` style.
func rebind(db database.DB, query string) string {
	return db.Rebind(query)
}
