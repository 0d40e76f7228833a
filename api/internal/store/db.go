package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"             // pure Go SQLite driver
)

var ErrNotFound = sql.ErrNoRows

// Driver picks the database/sql driver for a DSN: postgres URLs go to pgx,
// everything else is treated as a SQLite path.
func Driver(dsn string) string {
	d := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database DSN is empty")
	}
	driver := Driver(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer; in-memory databases are per connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// The DDL sticks to types both Postgres and SQLite accept.
var schema = []string{
	`create table if not exists history (
  id         text primary key,
  owner_id   bigint not null,
  created_at bigint not null,
  seq        bigint not null default 0,
  subject    text not null,
  answer     text not null,
  image      bytea
)`,
	`create index if not exists history_owner_created on history (owner_id, created_at desc, seq desc)`,
	`create table if not exists settings (
  owner_id bigint not null,
  name     text not null,
  value    text not null,
  primary key (owner_id, name)
)`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
