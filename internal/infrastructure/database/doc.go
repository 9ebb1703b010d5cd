// Package database provides SQLite connectivity for BellBot Core.
//
// This package manages:
//   - Opening the SQLite database with WAL mode and busy timeout
//   - Running embedded SQL migrations (see the migrations package)
//   - Connection health checks
//   - Graceful shutdown
//
// # Concurrency
//
// SQLite supports a single writer. The pool is restricted to one open
// connection so that the message dispatcher and the HTTP handlers serialise
// their writes at the driver level; single-row updates are therefore atomic
// with respect to each other.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: "./data/bellbot.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
