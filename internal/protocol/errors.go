package protocol

// Error kind tags exposed to clients in the error envelope.
const (
	ErrKindInvalidAuth     = "authentication_error"
	ErrKindForbiddenRegion = "permission_error"
	ErrKindBadRequest      = "invalid_request_error"
	ErrKindNotFoundModel   = "not_found_error"
	ErrKindRateLimited     = "rate_limit_error"
	ErrKindBilling         = "billing_error"
	ErrKindContextLength   = "invalid_request_error"
	ErrKindUpstream        = "api_error"
	ErrKindCancelled       = "cancelled"
	ErrKindInternal        = "api_error"
)

// ErrorResponse is the Anthropic error envelope returned on every
// client-visible failure.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error kind tag and a human-readable message.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(kind, message string) ErrorResponse {
	return ErrorResponse{
		Type:  "error",
		Error: ErrorDetail{Type: kind, Message: message},
	}
}
