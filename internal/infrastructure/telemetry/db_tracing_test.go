package telemetry

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db, err := gorm.Open(sqlserver.New(sqlserver.Config{
		Conn:       mockDB,
		DriverName: "sqlserver",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db, _ := newMockGorm(t)
	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{Enabled: false}, zap.NewNop()))
	assert.Nil(t, db.Callback().Raw().Get("salesplan:before_raw"))
}

func TestRegisterDBTracing_RecordsRawQuery(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	recorder := tracetest.NewSpanRecorder()
	tp, err := NewTracerProviderWithProcessor(Config{ServiceName: "test", SamplingRatio: 1}, recorder, zap.NewNop())
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	db, mock := newMockGorm(t)
	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{
		Enabled: true,
		DBName:  "SalesPlanDB",
	}, zap.NewNop()))
	assert.NotNil(t, db.Callback().Raw().Get("salesplan:before_raw"))

	mock.ExpectQuery("SELECT TOP 1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	var n int
	require.NoError(t, db.WithContext(context.Background()).Raw("SELECT TOP 1 1 AS n").Scan(&n).Error)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	var found bool
	for _, s := range spans {
		for _, kv := range s.Attributes() {
			if kv.Key == "db.system" && kv.Value.AsString() == "mssql" {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a span tagged db.system=mssql")
}
