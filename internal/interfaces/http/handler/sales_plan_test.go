package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appsalesplan "github.com/salesplan/backend/internal/application/salesplan"
	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/interfaces/http/dto"
	"github.com/salesplan/backend/internal/interfaces/http/middleware"
)

func newSalesPlanRouter(repo *MockRepository) *gin.Engine {
	h := NewSalesPlanHandler(
		appsalesplan.NewPlanService(repo, zap.NewNop()),
		appsalesplan.NewAuditService(repo, zap.NewNop()),
		appsalesplan.NewExportService(repo),
	)

	middleware.SetupValidator()
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/records", h.ListRecords)
	r.GET("/records/lookup", h.GetRecord)
	r.GET("/columns", h.ListColumns)
	r.GET("/audit", h.Audit)
	r.GET("/export", h.Export)
	return r
}

func get(r *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestSalesPlanHandler_ListRecords(t *testing.T) {
	t.Run("returns rows with meta", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Preview", mock.Anything, 5).Return([]salesplan.SalesPlanRecord{
			sampleRecord("SO/24-25/001", 10000),
			sampleRecord("SO/24-25/001", 20000),
		}, nil)

		w := get(newSalesPlanRouter(repo), "/records?limit=5")

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 2, resp.Meta.Count)
		assert.Equal(t, 5, resp.Meta.Limit)
		assert.False(t, resp.Meta.Cached)
		assert.Contains(t, w.Body.String(), `"document_no":"SO/24-25/001"`)
		assert.Contains(t, w.Body.String(), `"amount":"12500.5"`)
		repo.AssertExpectations(t)
	})

	t.Run("limit above cap is clamped", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Preview", mock.Anything, salesplan.MaxPreviewRows).Return([]salesplan.SalesPlanRecord{}, nil)

		w := get(newSalesPlanRouter(repo), "/records?limit=50000")

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, salesplan.MaxPreviewRows, resp.Meta.Limit)
		assert.Equal(t, 0, resp.Meta.Count)
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		w := get(newSalesPlanRouter(new(MockRepository)), "/records?limit=lots")

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeResponse(t, w).Error.Code)
	})

	t.Run("database down", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Preview", mock.Anything, salesplan.MaxPreviewRows).Return(nil, shared.ErrDatabaseUnavailable)

		w := get(newSalesPlanRouter(repo), "/records")

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		info := decodeResponse(t, w).Error
		assert.Equal(t, dto.ErrCodeDatabaseUnavailable, info.Code)
		assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), info.RequestID)
	})
}

func TestSalesPlanHandler_GetRecord(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo := new(MockRepository)
		rec := sampleRecord("SO/24-25/12200", 10000)
		repo.On("FindByKey", mock.Anything, salesplan.RecordKey{DocumentNo: "SO/24-25/12200", LineNo: 10000}).Return(&rec, nil)

		w := get(newSalesPlanRouter(repo), "/records/lookup?document_no=SO/24-25/12200&line_no=10000")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"line_no":10000`)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("FindByKey", mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound.WithDetail("no sales plan row SO/1#1"))

		w := get(newSalesPlanRouter(repo), "/records/lookup?document_no=SO/1&line_no=1")

		require.Equal(t, http.StatusNotFound, w.Code)
		info := decodeResponse(t, w).Error
		assert.Equal(t, dto.ErrCodeNotFound, info.Code)
		assert.Equal(t, "no sales plan row SO/1#1", info.Message)
	})

	t.Run("missing key part", func(t *testing.T) {
		repo := new(MockRepository)
		w := get(newSalesPlanRouter(repo), "/records/lookup?document_no=SO/1")

		require.Equal(t, http.StatusBadRequest, w.Code)
		info := decodeResponse(t, w).Error
		assert.Equal(t, dto.ErrCodeValidation, info.Code)
		require.Len(t, info.Details, 1)
		assert.Equal(t, "line_no", info.Details[0].Field)
		repo.AssertNotCalled(t, "FindByKey", mock.Anything, mock.Anything)
	})
}

func TestSalesPlanHandler_ListColumns(t *testing.T) {
	repo := new(MockRepository)
	repo.On("DescribeColumns", mock.Anything).Return([]salesplan.ColumnInfo{
		{Schema: "dbo", Table: "SalesPlanTable", Name: "DocumentNo", DataType: "nvarchar", Position: 1},
		{Schema: "dbo", Table: "SalesPlanTable", Name: "CustomerCode", DataType: "nvarchar", Position: 2},
	}, nil)

	w := get(newSalesPlanRouter(repo), "/columns")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, 2, resp.Meta.Count)
	assert.Contains(t, w.Body.String(), `"name":"CustomerCode"`)
}

func TestSalesPlanHandler_Audit(t *testing.T) {
	repo := new(MockRepository)
	bad := sampleRecord("SO/2", 10000)
	bad.MonthYear = 202408
	repo.On("Preview", mock.Anything, 100).Return([]salesplan.SalesPlanRecord{
		sampleRecord("SO/1", 10000),
		bad,
	}, nil)

	w := get(newSalesPlanRouter(repo), "/audit?limit=100&sample=10")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"rows_checked":2`)
	assert.Contains(t, body, `"clean_rows":1`)
	assert.Contains(t, body, `"`+string(salesplan.RuleMonthYearMatchesOrder)+`":1`)
}

func TestSalesPlanHandler_Audit_SampleOutOfRange(t *testing.T) {
	w := get(newSalesPlanRouter(new(MockRepository)), "/audit?sample=5000")

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
}

func TestSalesPlanHandler_Export(t *testing.T) {
	records := []salesplan.SalesPlanRecord{sampleRecord("SO/1", 10000)}

	t.Run("csv by default", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Preview", mock.Anything, 20).Return(records, nil)

		w := get(newSalesPlanRouter(repo), "/export?limit=20")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="sales_plan.csv"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, "1", w.Header().Get("X-Row-Count"))

		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "DocumentNo,"))
		assert.Contains(t, lines[1], "SO/1")
	})

	t.Run("xlsx", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Preview", mock.Anything, salesplan.MaxPreviewRows).Return(records, nil)

		w := get(newSalesPlanRouter(repo), "/export?format=XLSX")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `attachment; filename="sales_plan.xlsx"`, w.Header().Get("Content-Disposition"))
		assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
		assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))
	})

	t.Run("unsupported format", func(t *testing.T) {
		repo := new(MockRepository)
		w := get(newSalesPlanRouter(repo), "/export?format=pdf")

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
		repo.AssertNotCalled(t, "Preview", mock.Anything, mock.Anything)
	})

	t.Run("failure is still json", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Preview", mock.Anything, mock.Anything).Return(nil, shared.ErrQueryTimeout)

		w := get(newSalesPlanRouter(repo), "/export")

		require.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Empty(t, w.Header().Get("Content-Disposition"))
		assert.Equal(t, dto.ErrCodeQueryTimeout, decodeResponse(t, w).Error.Code)
	})
}
