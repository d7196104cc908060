package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDatabase opens the SQLite database at the given path and applies pragmas.
// _txlock=immediate makes BEGIN take a RESERVED lock up front, serializing
// write transactions; the unique index on cache_states.file_path is then the
// only arbiter concurrent ingests need.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=10000")
	if err != nil {
		return nil, err
	}
	if err := ApplyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ApplyPragmas sets session pragmas for durability and concurrency.
func ApplyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// InitDatabase opens or creates the registry database and initializes the
// schema, applying forward-only migrations to existing databases.
func InitDatabase(path string) (*sql.DB, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(GetSchema()); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrateDatabase applies idempotent forward-only migrations.
func migrateDatabase(db *sql.DB) error {
	// Migration: is_missing soft-delete column on cache states (older
	// databases hard-deleted rows for vanished paths).
	if err := addColumnIfMissing(db, "cache_states", "is_missing", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	// Migration: per-reference enrichment tracking.
	return addColumnIfMissing(db, "asset_references", "enrichment_level", "INTEGER NOT NULL DEFAULT 0")
}

func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + decl)
	return err
}
