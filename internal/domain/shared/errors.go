package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrUnsafeQuery         = NewDomainError("UNSAFE_QUERY", "Only a single read-only SELECT statement is allowed")
	ErrInvalidQuery        = NewDomainError("INVALID_QUERY", "The query references unknown objects or is malformed")
	ErrQueryTimeout        = NewDomainError("QUERY_TIMEOUT", "The query did not complete in time")
	ErrDatabaseUnavailable = NewDomainError("DB_UNAVAILABLE", "The database is unavailable")
	ErrUpstreamUnavailable = NewDomainError("UPSTREAM_UNAVAILABLE", "The SQL generation service is unavailable")
)

// WithDetail returns a copy of e with a more specific message and the same code
func (e *DomainError) WithDetail(message string) *DomainError {
	return &DomainError{Code: e.Code, Message: message}
}

// Is reports whether target is a DomainError with the same code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}
