package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/salesplan/backend/internal/domain/salesplan"
)

// MockRepository is a mock implementation of salesplan.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Preview(ctx context.Context, limit int) ([]salesplan.SalesPlanRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]salesplan.SalesPlanRecord), args.Error(1)
}

func (m *MockRepository) FindByKey(ctx context.Context, key salesplan.RecordKey) (*salesplan.SalesPlanRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*salesplan.SalesPlanRecord), args.Error(1)
}

func (m *MockRepository) DescribeColumns(ctx context.Context) ([]salesplan.ColumnInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]salesplan.ColumnInfo), args.Error(1)
}

func (m *MockRepository) RunReadOnly(ctx context.Context, query string, maxRows int) (*salesplan.ResultSet, error) {
	args := m.Called(ctx, query, maxRows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*salesplan.ResultSet), args.Error(1)
}

func sampleRecord(doc string, line int) salesplan.SalesPlanRecord {
	return salesplan.SalesPlanRecord{
		DocumentNo:          doc,
		LineNo:              line,
		CustomerName:        "Acme Industries",
		OrderDate:           time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		Amount:              decimal.RequireFromString("12500.50"),
		Quantity:            decimal.NewFromInt(2),
		OutstandingQuantity: decimal.Zero,
		QuantityInvoiced:    decimal.NewFromInt(2),
		OrderFY:             "2024-25",
		DocumentMonthNumber: 7,
		OrderMonthNumber:    4,
		OrderYear:           2024,
		MonthYear:           202407,
		MMMMYY:              "Jul-24",
	}
}
