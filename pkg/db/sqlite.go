package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens the embedded store at path. ":memory:" gives a private
// in-memory database; the pool is limited to one connection so that every
// caller sees the same database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	dsn := "file:" + strings.TrimPrefix(path, "file:") + "?_time_format=sqlite&_pragma=busy_timeout(5000)"

	logger.Info("Opening SQLite store", zap.String("path", path))

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return conn, nil
}
