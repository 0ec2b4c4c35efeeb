// Package database opens the SQLite file that holds the rule engine's
// execution history and applies its schema migrations.
//
// The connection runs with WAL journaling and a busy timeout; the pool is
// capped at one connection because SQLite allows a single writer.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// with an optional matching .down.sql. The migrations package embeds them and
// assigns MigrationsFS at init time. Each migration runs in its own
// transaction and is recorded in schema_migrations, so Migrate is safe to call
// on every start.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
