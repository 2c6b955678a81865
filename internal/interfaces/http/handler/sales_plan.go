package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appsalesplan "github.com/salesplan/backend/internal/application/salesplan"
	"github.com/salesplan/backend/internal/domain/salesplan"
	"github.com/salesplan/backend/internal/infrastructure/export"
	"github.com/salesplan/backend/internal/interfaces/http/dto"
)

// ExportFileName is the attachment name used for downloads, without extension
const ExportFileName = "sales_plan"

// SalesPlanHandler serves the read-only views of the sales plan table
type SalesPlanHandler struct {
	BaseHandler
	plans   *appsalesplan.PlanService
	audits  *appsalesplan.AuditService
	exports *appsalesplan.ExportService
}

// NewSalesPlanHandler creates a new SalesPlanHandler
func NewSalesPlanHandler(plans *appsalesplan.PlanService, audits *appsalesplan.AuditService, exports *appsalesplan.ExportService) *SalesPlanHandler {
	return &SalesPlanHandler{
		plans:   plans,
		audits:  audits,
		exports: exports,
	}
}

// ListRecords returns the first rows of the table
// GET /sales-plan/records?limit=
func (h *SalesPlanHandler) ListRecords(c *gin.Context) {
	var req dto.RecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.plans.Preview(c.Request.Context(), req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result, dto.Meta{
		Count:  result.Count(),
		Limit:  result.Limit,
		Cached: result.Cached,
	})
}

// GetRecord returns one row by document number and line number
// GET /sales-plan/records/lookup?document_no=&line_no=
func (h *SalesPlanHandler) GetRecord(c *gin.Context) {
	var req dto.LookupRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	record, err := h.plans.Get(c.Request.Context(), salesplan.RecordKey{
		DocumentNo: req.DocumentNo,
		LineNo:     req.LineNo,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, record)
}

// ListColumns returns the column catalog of the table
// GET /sales-plan/columns
func (h *SalesPlanHandler) ListColumns(c *gin.Context) {
	cols, err := h.plans.Columns(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, cols, dto.Meta{Count: len(cols), Limit: len(cols)})
}

// Audit reconciles the derived columns of the first rows
// GET /sales-plan/audit?limit=&sample=
func (h *SalesPlanHandler) Audit(c *gin.Context) {
	var req dto.AuditRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	report, err := h.audits.Audit(c.Request.Context(), req.Limit, req.Sample)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}

// Export downloads the first rows as CSV or XLSX. The file is rendered in
// memory so a failure can still be answered with a JSON error.
// GET /sales-plan/export?format=&limit=
func (h *SalesPlanHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var buf bytes.Buffer
	rows, err := h.exports.Export(c.Request.Context(), format, req.Limit, &buf)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFileName+"."+format))
	c.Header("X-Row-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, export.ContentType(format), buf.Bytes())
}
