package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/application/assistant"
	appsalesplan "github.com/salesplan/backend/internal/application/salesplan"
	"github.com/salesplan/backend/internal/domain/nlquery"
	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/export"
	"github.com/salesplan/backend/internal/infrastructure/persistence"
)

// seededRows is the number of rows the seed migration inserts
const seededRows = 3

func newRepository(t *testing.T) (*persistence.GormSalesPlanRepository, *TestDB) {
	testDB := NewTestDB(t)
	return persistence.NewGormSalesPlanRepository(testDB.Database.DB, "dbo", "SalesPlanTable"), testDB
}

func TestSalesPlanRepository_Integration(t *testing.T) {
	repo, testDB := newRepository(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, testDB.Database.Ping(ctx))
	})

	t.Run("Preview returns at most limit rows", func(t *testing.T) {
		records, err := repo.Preview(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, records, 2)

		records, err = repo.Preview(ctx, 1000)
		require.NoError(t, err)
		assert.Len(t, records, seededRows)
	})

	t.Run("FindByKey", func(t *testing.T) {
		key := salesplan.RecordKey{DocumentNo: "SO/24-25/1221", LineNo: 20000}
		record, err := repo.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, record.Key())
		assert.Equal(t, "Beta Power", record.CustomerName)
		assert.Equal(t, "5000", record.Amount.String())
	})

	t.Run("FindByKey missing row", func(t *testing.T) {
		_, err := repo.FindByKey(ctx, salesplan.RecordKey{DocumentNo: "SO/00-00/0000", LineNo: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("DescribeColumns", func(t *testing.T) {
		cols, err := repo.DescribeColumns(ctx)
		require.NoError(t, err)
		require.Len(t, cols, len(salesplan.ColumnNames()))
		assert.Equal(t, "DocumentNo", cols[0].Name)
		assert.Equal(t, 1, cols[0].Position)
	})

	t.Run("RunReadOnly truncates", func(t *testing.T) {
		rs, err := repo.RunReadOnly(ctx, "SELECT TOP 100 [DocumentNo], [LineNo] FROM dbo.SalesPlanTable", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"DocumentNo", "LineNo"}, rs.Columns)
		assert.Len(t, rs.Rows, 2)
		assert.True(t, rs.Truncated)
	})
}

func TestSalesPlanServices_Integration(t *testing.T) {
	repo, _ := newRepository(t)
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("seed rows reconcile cleanly", func(t *testing.T) {
		report, err := appsalesplan.NewAuditService(repo, log).Audit(ctx, 1000, 0)
		require.NoError(t, err)
		assert.Equal(t, seededRows, report.RowsChecked)
		assert.Equal(t, seededRows, report.Clean)
		assert.Empty(t, report.Violations)
	})

	t.Run("csv export has a header and every row", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := appsalesplan.NewExportService(repo).Export(ctx, export.FormatCSV, 1000, &buf)
		require.NoError(t, err)
		assert.Equal(t, seededRows, n)

		lines, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, lines, seededRows+1)
		assert.Equal(t, "DocumentNo", lines[0][0])
	})

	t.Run("templated question runs against the table", func(t *testing.T) {
		fy2024 := func() time.Time { return time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC) }
		svc := assistant.NewService(repo, nlquery.NewRouter(nlquery.DefaultSynonyms()), nil,
			assistant.Config{MaxRows: 50}, log, assistant.WithClock(fy2024))

		result, err := svc.Ask(ctx, "Total amount by month for current FY")
		require.NoError(t, err)
		assert.Equal(t, assistant.SourceTemplate, result.Source)
		assert.Contains(t, result.SQL, "'2024-25'")
		assert.Len(t, result.Rows, 2)
	})

	t.Run("unsafe statement never reaches the database", func(t *testing.T) {
		svc := assistant.NewService(repo, nil, nil, assistant.Config{}, log)
		check, err := svc.Check("DROP TABLE dbo.SalesPlanTable")
		require.NoError(t, err)
		assert.False(t, check.Valid)

		records, err := repo.Preview(ctx, 1000)
		require.NoError(t, err)
		assert.Len(t, records, seededRows)
	})
}
