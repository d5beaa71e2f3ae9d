package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeForbidden              = "forbidden"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeIdentityRequired       = "identity_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeInvalidSelection = "invalid_selection"
	ErrCodeUnknownAction    = "unknown_action"

	// WebSocket errors
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Resource errors
	ErrCodeNotFound        = "not_found"
	ErrCodeSessionNotFound = "session_not_found"

	// Session errors
	ErrCodeSessionClosed        = "session_closed"
	ErrCodeInvalidSessionState  = "invalid_session_state"
	ErrCodeSubmissionInProgress = "submission_in_progress"
	ErrCodeStartFailed          = "start_failed"
	ErrCodeSubmitFailed         = "submit_failed"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
