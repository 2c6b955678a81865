package salesplan

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/domain/shared"
)

func TestAuditService_Clean(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Preview", mock.Anything, 1000).Return([]salesplan.SalesPlanRecord{
		cleanRecord("SO/24-25/1220", 10000),
		cleanRecord("SO/24-25/1220", 20000),
	}, nil)

	core, logs := observer.New(zapcore.InfoLevel)
	report, err := NewAuditService(repo, zap.New(core)).Audit(context.Background(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, report.RowsChecked)
	assert.Equal(t, 2, report.Clean)
	assert.Empty(t, report.Violations)
	assert.Equal(t, 1, logs.FilterMessage("Sales plan audit clean").Len())
}

func TestAuditService_FindsViolations(t *testing.T) {
	bad := cleanRecord("SO/24-25/1221", 10000)
	bad.Quantity = decimal.NewFromInt(5)
	bad.MMMMYY = "Aug-24"
	dup := cleanRecord("SO/24-25/1220", 10000)

	repo := new(MockRepository)
	repo.On("Preview", mock.Anything, 50).Return([]salesplan.SalesPlanRecord{
		cleanRecord("SO/24-25/1220", 10000), bad, dup,
	}, nil)

	core, logs := observer.New(zapcore.WarnLevel)
	report, err := NewAuditService(repo, zap.New(core)).Audit(context.Background(), 50, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, report.RowsChecked)
	assert.Equal(t, 1, report.Clean)
	assert.Equal(t, 1, report.ByRule[salesplan.RuleQuantityReconciles])
	assert.Equal(t, 1, report.ByRule[salesplan.RuleMMMMYYMatchesOrder])
	assert.Equal(t, 1, report.ByRule[salesplan.RuleDuplicateKey])
	assert.Len(t, report.Violations, 3)
	assert.False(t, report.Truncated)

	entries := logs.FilterMessage("Sales plan audit found violations").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["clean_rows"])
}

func TestAuditService_SampleLimitsViolations(t *testing.T) {
	var records []salesplan.SalesPlanRecord
	for i := 1; i <= 5; i++ {
		r := cleanRecord("SO/24-25/9", i)
		r.Quantity = decimal.NewFromInt(9)
		records = append(records, r)
	}
	repo := new(MockRepository)
	repo.On("Preview", mock.Anything, 1000).Return(records, nil)

	report, err := NewAuditService(repo, nil).Audit(context.Background(), 1000, 2)
	require.NoError(t, err)
	assert.Len(t, report.Violations, 2)
	assert.True(t, report.Truncated)
	assert.Equal(t, 5, report.ByRule[salesplan.RuleQuantityReconciles])
}

func TestAuditService_RepositoryError(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Preview", mock.Anything, 1000).Return(nil, shared.ErrQueryTimeout)

	_, err := NewAuditService(repo, nil).Audit(context.Background(), 0, 0)
	assert.ErrorIs(t, err, shared.ErrQueryTimeout)
}
