// Package database opens the SQLite store and applies schema migrations.
//
// The store holds device definitions, the routine execution log and the
// command log. Live device state is never persisted; it is rebuilt from the
// devices on start.
//
// Connections use WAL mode and a busy timeout from config. The file is
// created with 0600 permissions since definitions may include device web
// passwords.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a
// default, and every up file ships with a down file.
package database
