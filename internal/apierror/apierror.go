// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

// Kinds that originate in the transport layer rather than the domain.
const (
	KindUnauthorized = "unauthorized"
	KindRateLimited  = "rate_limited"
	KindInternal     = "internal"
	KindValidation   = "validation"
	KindNotFound     = "not_found"
)

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Error  string            `json:"error"`
	Kind   string            `json:"errorKind"`
	Fields map[string]string `json:"fields,omitempty"`

	// Set for insufficient_stock only.
	ItemID    string `json:"itemId,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func New(kind, msg string) *APIError {
	return &APIError{Error: msg, Kind: kind}
}

// NewValidation wraps multiple field errors.
func NewValidation(msg string, fields map[string]string) *APIError {
	if msg == "" {
		msg = "validation failed"
	}
	return &APIError{Error: msg, Kind: KindValidation, Fields: fields}
}

// Internal is the opaque 500 body; details go to the log only.
func Internal() *APIError {
	return New(KindInternal, "internal server error")
}
