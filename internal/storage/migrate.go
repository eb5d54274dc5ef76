package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/emsi-ai/tariff-engine/internal/config"
)

// Open opens a database connection for the configured driver and applies
// connection pool settings.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		// Foreign keys must be enabled per connection for the schema's
		// delete cascades to apply.
		dsn := cfg.SQLite.Path + "?_foreign_keys=on"
		if cfg.SQLite.JournalMode != "" {
			dsn += fmt.Sprintf("&_journal_mode=%s", cfg.SQLite.JournalMode)
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if cfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
		}
		return db, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		} else {
			db.SetConnMaxLifetime(5 * time.Minute)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS documents (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	language   TEXT NOT NULL DEFAULT 'unknown',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id BIGINT REFERENCES documents(id) ON DELETE CASCADE,
	text        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS product_metadata (
	id              BIGSERIAL PRIMARY KEY,
	code_sh         TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	product_type    TEXT,
	product_state   TEXT,
	boning          TEXT,
	animal_age      TEXT,
	anatomical_part TEXT,
	specific_use    TEXT,
	import_duty     DOUBLE PRECISION,
	tpi             DOUBLE PRECISION,
	vat             DOUBLE PRECISION,
	preferentials   TEXT NOT NULL DEFAULT '',
	quotas          TEXT,
	chunk_id        TEXT UNIQUE REFERENCES chunks(id) ON DELETE CASCADE,
	keywords        TEXT NOT NULL DEFAULT '',
	synonyms        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_metadata_code ON product_metadata(code_sh);
CREATE INDEX IF NOT EXISTS idx_metadata_type_state ON product_metadata(product_type, product_state);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS documents (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	language   TEXT NOT NULL DEFAULT 'unknown',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id INTEGER REFERENCES documents(id) ON DELETE CASCADE,
	text        TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS product_metadata (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	code_sh         TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	product_type    TEXT,
	product_state   TEXT,
	boning          TEXT,
	animal_age      TEXT,
	anatomical_part TEXT,
	specific_use    TEXT,
	import_duty     REAL,
	tpi             REAL,
	vat             REAL,
	preferentials   TEXT NOT NULL DEFAULT '',
	quotas          TEXT,
	chunk_id        TEXT UNIQUE REFERENCES chunks(id) ON DELETE CASCADE,
	keywords        TEXT NOT NULL DEFAULT '',
	synonyms        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_metadata_code ON product_metadata(code_sh);
CREATE INDEX IF NOT EXISTS idx_metadata_type_state ON product_metadata(product_type, product_state);
`

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema := schemaSQLite
	if driver == "postgres" {
		schema = schemaPostgres
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
