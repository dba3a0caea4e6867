package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"
)

// Options tunes the connection pool. Zero values keep the database/sql defaults.
type Options struct {
	QueryLog        bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Index describes a secondary index created by EnsureCreated.
type Index struct {
	Model   any
	Name    string
	Columns []string
}

// Open returns a bun handle for dsn. Postgres handles are lazy: no
// connection is dialed until the first query.
func Open(dsn string, opts Options) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)
	if IsSQLiteDSN(dsn) {
		db, err = openSQLite(dsn)
	} else {
		db, err = openPostgres(dsn)
	}
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if opts.QueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	return db, nil
}

func openPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func openSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Reasonable pragmas for an app server
	if _, err := sqldb.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// EnsureCreated creates the tables for models and the given indexes when
// they do not exist yet. It never alters existing objects.
func EnsureCreated(ctx context.Context, db bun.IDB, models []any, indexes ...Index) error {
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().
			Model(idx.Model).
			Index(idx.Name).
			Column(idx.Columns...).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}
	return nil
}

// HealthStatus is the result of a single ping against the pool.
type HealthStatus struct {
	Healthy      bool      `json:"healthy"`
	ResponseTime string    `json:"response_time"`
	OpenConns    int       `json:"open_conns"`
	InUse        int       `json:"in_use"`
	Idle         int       `json:"idle"`
	LastError    string    `json:"last_error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Health pings db and reports pool statistics.
func Health(ctx context.Context, db *bun.DB) HealthStatus {
	start := time.Now()
	err := db.PingContext(ctx)
	stats := db.Stats()

	hs := HealthStatus{
		Healthy:      err == nil,
		ResponseTime: time.Since(start).String(),
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		CheckedAt:    start.UTC(),
	}
	if err != nil {
		hs.LastError = err.Error()
	}
	return hs
}
