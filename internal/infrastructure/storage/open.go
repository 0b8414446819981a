package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"GradScrape/internal/config"
	"GradScrape/internal/ports"
)

// DriverMemory selects the go-memdb store.
const DriverMemory = "memory"

// Open builds the record store named by cfg.Driver and, for SQL backends,
// applies the schema when AutoMigrate is set.
func Open(ctx context.Context, cfg config.DatabaseConfig) (ports.RecordStore, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), DriverMemory) {
		return NewMemStore()
	}

	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	store, err := OpenSQL(ctx, dialect, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// OpenSQL opens and pings a SQL-backed store without migrating it.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, maxOpen int) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open %s store: empty dsn", dialect)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between the pool and an open transaction.
	if dialect == DialectSQLite {
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}

	store := NewSQLStore(db, dialect)
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	return store, nil
}
