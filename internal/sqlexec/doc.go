// Package sqlexec adapts a database/sql connection pool to the
// executor.Executor capability.
//
// Two SQLite drivers are registered: "sqlite3" (mattn/go-sqlite3, cgo) and
// "sqlite" (modernc.org/sqlite, pure Go). Any other database/sql driver
// can be used if the caller registers it.
package sqlexec
