// Package testutil opens throwaway Postgres schemas for integration tests.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tap-racer/internal/config"
	"tap-racer/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const initMigration = "000001_init.up.sql"

// OpenTestStore creates a fresh schema named after a new ULID, applies the init
// migration to it and returns a store bound to that schema. The schema is
// dropped when the test finishes. The test is skipped when no test database
// is configured.
func OpenTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg, err := config.LoadTest()
	if err != nil {
		t.Skipf("skip test db: %v", err)
	}
	ctx := context.Background()
	schema := "t_" + strings.ToLower(store.NewID())

	if err := execOnBase(ctx, cfg.PostgresDSN, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_ = execOnBase(context.Background(), cfg.PostgresDSN, "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
	})

	st, err := store.New(ctx, withSearchPath(cfg.PostgresDSN, schema))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)

	ddl, err := readMigration(cfg.MigrationsDir)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := st.Pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return st
}

func execOnBase(ctx context.Context, dsn, sql string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	_, err = pool.Exec(ctx, sql)
	return err
}

// readMigration loads the init migration from dir, or from the nearest
// migrations directory above the working directory when dir is empty.
func readMigration(dir string) (string, error) {
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, initMigration))
		return string(b), err
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for cur := wd; ; cur = filepath.Dir(cur) {
		b, err := os.ReadFile(filepath.Join(cur, "migrations", initMigration))
		if err == nil {
			return string(b), nil
		}
		if filepath.Dir(cur) == cur {
			break
		}
	}
	return "", fmt.Errorf("%s not found above %s", initMigration, wd)
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}
