// Package dbtest opens throwaway in-memory sqlite databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/fitlife/fitlife-sync/pkg/config"
	"github.com/fitlife/fitlife-sync/pkg/db"
)

// SQLiteConfig returns a shared-cache in-memory sqlite config unique to t.
func SQLiteConfig(t testing.TB) config.DBConfig {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}
}

// New opens a database migrated with models and closes it on cleanup.
func New(t testing.TB, models ...any) *db.Client {
	t.Helper()
	client, err := db.New(context.Background(), SQLiteConfig(t), nil)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if len(models) > 0 {
		if err := client.Migrate(context.Background(), models...); err != nil {
			t.Fatalf("migrating test database: %v", err)
		}
	}
	return client
}
