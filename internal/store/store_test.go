package store_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/db"
	"github.com/persistorai/recall/internal/db/migrations"
	"github.com/persistorai/recall/internal/dbpool"
	"github.com/persistorai/recall/internal/store"
)

// testDimensions keeps test vectors small.
const testDimensions = 4

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var (
	sharedEnv *testEnv
	envOnce   sync.Once
	envErr    error
)

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	envOnce.Do(func() {
		ctx := context.Background()

		log := logrus.New()
		log.SetLevel(logrus.ErrorLevel)

		pool, err := dbpool.NewPool(ctx, dbURL, 5)
		if err != nil {
			envErr = err
			return
		}

		if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
			envErr = err
			return
		}

		if _, err := db.EnsureVectorDimensions(ctx, pool, log, testDimensions); err != nil {
			envErr = err
			return
		}

		sharedEnv = &testEnv{pool: pool, log: log}
	})

	if envErr != nil {
		t.Fatalf("setting up test DB: %v", envErr)
	}

	return sharedEnv
}

// setupTestBase returns a Base and a unique scope string. Every row a test
// creates must carry the scope (as chunk source, asset ref prefix or person
// name prefix) so cleanup can find it.
func setupTestBase(t *testing.T) (store.Base, string) {
	t.Helper()

	env := getTestEnv(t)
	scope := "test-" + uuid.New().String()[:8]

	t.Cleanup(func() {
		ctx := context.Background()
		like := scope + "%"
		env.pool.Exec(ctx, "DELETE FROM chunks WHERE source = $1", scope)                         //nolint:errcheck // best-effort cleanup
		env.pool.Exec(ctx, "DELETE FROM asset_edges WHERE src_ref LIKE $1 OR dst_ref LIKE $1", like) //nolint:errcheck // best-effort cleanup
		env.pool.Exec(ctx, "DELETE FROM person_asset_links WHERE asset_ref LIKE $1", like)          //nolint:errcheck // best-effort cleanup
		env.pool.Exec(ctx, "UPDATE persons SET merged_into = NULL WHERE canonical_name LIKE $1", like) //nolint:errcheck // best-effort cleanup
		env.pool.Exec(ctx, "DELETE FROM persons WHERE canonical_name LIKE $1", like)                //nolint:errcheck // best-effort cleanup
	})

	return store.Base{Pool: env.pool, Log: env.log}, scope
}
