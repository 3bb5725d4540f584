// Package database provides SQLite connection management for Shopfloor Core.
//
// This package manages:
//   - Opening the SQLite database with WAL mode and busy timeout pragmas
//   - Embedded SQL migrations (applied in version order, one transaction each)
//   - Health checks and graceful close
//
// SQLite is configured for a single writer connection; concurrent reads are
// served through WAL mode. Machine registrations change rarely, so this is
// more than sufficient and keeps the deployment dependency-free.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/shopfloor.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
