// Package database provides SQLite persistence for the Gray Logic DALI bridge.
//
// This package wraps database/sql with the mattn/go-sqlite3 driver and
// manages the bridge's local frame-history store.
//
// # Features
//
//   - WAL journal mode for concurrent reads during writes
//   - Busy timeout to avoid "database is locked" errors
//   - Embedded schema migrations (migrations/*.up.sql, *.down.sql)
//   - Health check for liveness reporting
//   - Restrictive file permissions (0600)
//
// # Migrations
//
// Migration files are embedded in the binary and named
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql for
// rollback. Each migration runs in its own transaction and is recorded
// in the schema_migrations table.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        "./data/graydali.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
