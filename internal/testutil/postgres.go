package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"circulation/internal/repositories"
)

// PostgresURLEnv names the connection string used by the Postgres-backed
// tests. They are skipped when it is unset or the server is unreachable.
const PostgresURLEnv = "CIRCULATION_TEST_DATABASE_URL"

// NewPostgresDB migrates a fresh schema on the server named by PostgresURLEnv
// and returns a pooled handle whose search_path points at it. The schema is
// dropped when the test ends.
func NewPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(PostgresURLEnv))
	if dsn == "" {
		t.Skipf("skipping: %s is not set", PostgresURLEnv)
	}

	cfg, err := pgx.ParseConfig(dsn)
	require.NoError(t, err)
	admin := stdlib.OpenDB(*cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := admin.PingContext(ctx); err != nil {
		_ = admin.Close()
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close()
	})

	scoped := cfg.Copy()
	scoped.RuntimeParams["search_path"] = schema
	sqlDB := stdlib.OpenDB(*scoped)
	sqlDB.SetMaxOpenConns(10)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// Registered after the schema cleanup, so it runs first.
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repositories.Migrate(db))
	return db
}
