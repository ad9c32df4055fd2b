// Package sqlxrepos implements the repositories on PostgreSQL via sqlx.
package sqlxrepos

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/plantel/backend/core"
)

// getExec resolves the executor a query should run on: the service-provided
// one (usually a transaction) when present, the repository's DB otherwise.
func getExec(db *sqlx.DB, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if tx, ok := svcExec[0].(*sql.Tx); ok {
			return &sqlx.Tx{Tx: tx, Mapper: db.Mapper}
		}
	}
	return db
}
