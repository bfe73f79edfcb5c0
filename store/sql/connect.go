package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ConnectConfig carries the settings go-persistence-bun needs to open and
// supervise a database connection.
type ConnectConfig struct {
	Debug       bool
	Driver      string
	Server      string
	PingTimeout time.Duration
}

func (c ConnectConfig) GetDebug() bool { return c.Debug }

func (c ConnectConfig) GetDriver() string { return c.Driver }

func (c ConnectConfig) GetServer() string { return c.Server }

func (c ConnectConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout > 0 {
		return c.PingTimeout
	}
	return 5 * time.Second
}

func (c ConnectConfig) GetOtelIdentifier() string { return "go-ingest" }

// Connect opens the configured database and wraps it in a persistence
// client. Supported drivers are postgres and sqlite3.
func Connect(cfg ConnectConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	dsn := strings.TrimSpace(cfg.Server)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: connection string is required")
	}

	var dialect schema.Dialect
	switch driver {
	case "postgres", "pg", "postgresql":
		driver = "postgres"
		dialect = pgdialect.New()
	case "sqlite", "sqlite3":
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s: %w", driver, err)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return client, nil
}
