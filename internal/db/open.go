package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = time.Hour
	defaultPingTimeout     = 5 * time.Second
)

// Open connects to the database selected by the DSN shape and verifies the connection.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	var dialector gorm.Dialector
	if isPostgresDSN(trimmed) {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(normalizeSQLiteDSN(trimmed))
	}

	conn, errOpen := gorm.Open(dialector, &gorm.Config{})
	if errOpen != nil {
		return nil, fmt.Errorf("db: open: %w", errOpen)
	}

	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: get sql db: %w", errDB)
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if errPing := sqlDB.PingContext(pingCtx); errPing != nil {
		return nil, fmt.Errorf("db: ping: %w", errPing)
	}

	return conn, nil
}

// isPostgresDSN reports whether the DSN targets PostgreSQL.
func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return true
	}
	// Key-value form: "host=... user=... dbname=...".
	return strings.Contains(lower, "host=") && strings.Contains(lower, "dbname=")
}

// normalizeSQLiteDSN applies the file: prefix and default pragmas to SQLite DSNs.
func normalizeSQLiteDSN(dsn string) string {
	normalized := strings.TrimSpace(dsn)
	if !strings.HasPrefix(strings.ToLower(normalized), "file:") {
		normalized = "file:" + normalized
	}
	if strings.Contains(normalized, "_busy_timeout") || strings.Contains(normalized, "mode=memory") || strings.Contains(normalized, ":memory:") {
		return normalized
	}
	separator := "?"
	if strings.Contains(normalized, "?") {
		separator = "&"
	}
	return normalized + separator + strings.Join([]string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_foreign_keys=on",
		"_synchronous=NORMAL",
	}, "&")
}
