// Package integration runs the sales plan stack against a real SQL Server
// started with testcontainers.
package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmssql "github.com/testcontainers/testcontainers-go/modules/mssql"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormsqlserver "gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/salesplan/backend/internal/infrastructure/migration"
	"github.com/salesplan/backend/internal/infrastructure/persistence"
	"github.com/salesplan/backend/migrations"
)

const (
	mssqlImage    = "mcr.microsoft.com/mssql/server:2022-CU14-ubuntu-22.04"
	mssqlPassword = "SalesPlan!Test42"
)

var (
	sharedOnce sync.Once
	sharedDSN  string
	sharedErr  error
)

// TestDB is a migrated and seeded connection to the shared container
type TestDB struct {
	Database *persistence.Database
	DSN      string
}

// NewTestDB returns a connection to the shared SQL Server container, starting
// and migrating it on first use. The container lives for the whole test binary.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sharedOnce.Do(func() {
		sharedDSN, sharedErr = startContainer(context.Background())
	})
	require.NoError(t, sharedErr, "Failed to start SQL Server container")

	db := connect(t, sharedDSN)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return &TestDB{Database: db, DSN: sharedDSN}
}

func startContainer(ctx context.Context) (string, error) {
	container, err := tcmssql.Run(ctx, mssqlImage,
		tcmssql.WithAcceptEULA(),
		tcmssql.WithPassword(mssqlPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Recovery is complete.").WithStartupTimeout(3*time.Minute)),
	)
	if err != nil {
		return "", err
	}

	dsn, err := container.ConnectionString(ctx)
	if err != nil {
		return "", err
	}

	db, err := gorm.Open(gormsqlserver.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return "", err
	}
	defer sqlDB.Close()

	m, err := migration.New(sqlDB, migrations.FS, migration.Config{}, zap.NewNop())
	if err != nil {
		return "", err
	}
	if err := m.Up(); err != nil {
		return "", err
	}
	return dsn, nil
}

func connect(t *testing.T, dsn string) *persistence.Database {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormsqlserver.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return persistence.NewDatabaseFromGorm(db)
}
