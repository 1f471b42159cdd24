package handlers

// Error codes carried in the "code" field of every error body. Clients
// branch on these, never on the message.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeInternal         = "internal_error"

	// ErrCodeValidation rejects a check-in field; the body names the field.
	ErrCodeValidation = "validation_failed"

	ErrCodeTrendingFailed = "trending_failed"
	ErrCodeStreakFailed   = "streak_failed"
	ErrCodeHistoryFailed  = "history_failed"
	ErrCodeStatsFailed    = "stats_failed"
)
