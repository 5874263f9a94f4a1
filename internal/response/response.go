package response

// SuccessResponse is the generic success payload.
type SuccessResponse struct {
	Message string `json:"message" example:"Operation completed successfully"`
}

// ErrorResponse is the generic error payload.
type ErrorResponse struct {
	// Machine-readable error code
	// example: VALIDATION_ERROR
	Code string `json:"code"`

	// Human-readable message
	// example: End time must be after the start time
	Message string `json:"message"`

	// Optional extra detail
	Details string `json:"details,omitempty"`
}

// TokenResponse carries a freshly issued token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Stable error codes used across handlers.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeReferenceConflict = "REFERENCE_CONFLICT"
	CodeForbidden         = "FORBIDDEN"
	CodeDB                = "DB_ERROR"
)
