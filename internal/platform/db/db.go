package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"hrflow/internal/platform/config"
)

type Pool = pgxpool.Pool

func Connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	if cfg.DatabaseMaxConns > 0 {
		poolCfg.MaxConns = cfg.DatabaseMaxConns
	}
	if cfg.DatabaseMinConns > 0 && cfg.DatabaseMinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.DatabaseMinConns
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// OpenSQLite opens path with foreign keys on and immediate transactions, so
// a transaction takes the write lock when it begins. ":memory:" databases are
// pinned to one connection; each connection would otherwise see its own database.
func OpenSQLite(path string) (*sql.DB, error) {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")

	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		params.Set("_journal_mode", "WAL")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	conn, err := sql.Open("sqlite3", "file:"+strings.TrimPrefix(path, "file:")+sep+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return conn, nil
}
