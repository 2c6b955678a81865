package dto

import "time"

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Details   []ValidationDetail `json:"details,omitempty"`
	Reasons   []string           `json:"reasons,omitempty"`
}

// ValidationDetail describes one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta describes the size of a row listing
type Meta struct {
	Count     int  `json:"count"`
	Limit     int  `json:"limit"`
	Truncated bool `json:"truncated,omitempty"`
	Cached    bool `json:"cached,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewSuccessResponseWithMeta creates a success response with listing meta
func NewSuccessResponseWithMeta(data interface{}, meta Meta) Response {
	return Response{
		Success: true,
		Data:    data,
		Meta:    &meta,
	}
}

// NewErrorResponse creates an error response with a normalized code
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      NormalizeErrorCode(code),
			Message:   message,
			Timestamp: time.Now(),
		},
	}
}

// NewErrorResponseWithRequestID creates an error response tagged with the request ID
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	resp := NewErrorResponse(code, message)
	resp.Error.RequestID = requestID
	return resp
}

// NewQueryErrorResponse creates an error response listing why a statement was refused
func NewQueryErrorResponse(code, message, requestID string, reasons []string) Response {
	resp := NewErrorResponseWithRequestID(code, message, requestID)
	resp.Error.Reasons = reasons
	return resp
}

// NewValidationErrorResponse creates a 400 response with per-field details
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	resp := NewErrorResponseWithRequestID(ErrCodeValidation, message, requestID)
	resp.Error.Details = details
	return resp
}

// RecordsRequest holds the row listing query parameters
type RecordsRequest struct {
	Limit int `form:"limit"`
}

// LookupRequest identifies one row by its composite key
type LookupRequest struct {
	DocumentNo string `form:"document_no" binding:"required,max=50"`
	LineNo     int    `form:"line_no" binding:"required,min=1"`
}

// AuditRequest holds the reconciliation query parameters
type AuditRequest struct {
	Limit  int `form:"limit"`
	Sample int `form:"sample" binding:"omitempty,min=0,max=1000"`
}

// ExportRequest holds the download query parameters
type ExportRequest struct {
	Format string `form:"format" binding:"omitempty,oneof=csv xlsx CSV XLSX"`
	Limit  int    `form:"limit"`
}

// AskRequest carries a natural-language question
type AskRequest struct {
	Question string `json:"question" binding:"required,max=1000"`
}

// CheckRequest carries a statement to run through the SQL guard
type CheckRequest struct {
	SQL string `json:"sql" binding:"required,max=8000"`
}
