package sqlstore_test

import (
	"fmt"
	"testing"
	"time"

	sqlstore "github.com/goliatone/go-ingest/store/sql"
)

func TestConnect_SQLite(t *testing.T) {
	client, err := sqlstore.Connect(sqlstore.ConnectConfig{
		Driver: "sqlite",
		Server: fmt.Sprintf("file:ingest-connect-%d?mode=memory&cache=shared", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if client.DB() == nil {
		t.Fatalf("expected a bun handle")
	}
}

func TestConnect_RejectsBadConfig(t *testing.T) {
	if _, err := sqlstore.Connect(sqlstore.ConnectConfig{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected error for missing connection string")
	}
	if _, err := sqlstore.Connect(sqlstore.ConnectConfig{Driver: "oracle", Server: "dsn"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
