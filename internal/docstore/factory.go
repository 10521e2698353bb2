package docstore

import (
	"context"
	"fmt"
	"os"

	"pantry/internal/infra/docstore/memory"
	"pantry/internal/infra/docstore/mysql"
	"pantry/internal/infra/docstore/postgres"
	infraS3 "pantry/internal/infra/docstore/s3"
	"pantry/internal/infra/docstore/sqlite"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Open selects a Store implementation using environment variables.
// Defaults to sqlite when unset.
//
//	PANTRY_STORE_DRIVER: memory|sqlite|postgres|mysql|s3 (default sqlite)
//	PANTRY_SQLITE_PATH: path to sqlite file (default ./pantry.db)
//	PANTRY_POSTGRES_DSN: postgres DSN when driver=postgres
//	PANTRY_MYSQL_DSN: mysql DSN when driver=mysql
//	(S3 specific variables documented in infra/docstore/s3)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("PANTRY_STORE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return sqlite.NewStore(os.Getenv("PANTRY_SQLITE_PATH"))
	case DriverPostgres:
		return postgres.NewStore(ctx, os.Getenv("PANTRY_POSTGRES_DSN"))
	case DriverMySQL:
		return mysql.NewStore(ctx, os.Getenv("PANTRY_MYSQL_DSN"))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memory.New() }

// NewS3 constructs an S3-backed Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}
