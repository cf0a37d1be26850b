// Package database opens the tcplink SQLite file and applies its schema
// migrations.
//
// Open configures WAL mode, the busy timeout and foreign keys, and keeps a
// single connection. Migrations are .up.sql/.down.sql pairs named
// YYYYMMDD_HHMMSS_description; the migrations package registers the
// embedded set.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// The database file is created with mode 0600.
package database
