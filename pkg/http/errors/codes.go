package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"

	// Model errors
	ErrCodeUnsupportedModel = "unsupported_model"

	// Preload errors
	ErrCodePreloadThrottled = "preload_throttled"

	// Content errors
	ErrCodeNotEnoughCategories = "not_enough_categories"
	ErrCodeNoChoices           = "no_choices"

	// Server errors
	ErrCodeInternalError = "internal_error"
	ErrCodeUpstreamError = "upstream_error"
)
