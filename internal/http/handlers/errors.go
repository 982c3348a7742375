// Package handlers defines HTTP-layer error codes used across all API
// endpoints.
//
// This file centralizes the symbolic error code constants mapped to HTTP
// responses via the `fail()` helper. These codes give clients a stable,
// machine-readable error taxonomy alongside the human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes (bad_request, not_found, conflict, …) mirror common HTTP
//     status semantics.
//   - Domain-specific codes are reserved for business errors a status alone
//     cannot convey (analysis_failed, auth_url_failed, …).
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeAnswerFailed     = "answer_failed"
	ErrCodeAnalysisFailed   = "analysis_failed"
	ErrCodeAuthURLFailed    = "auth_url_failed"
	ErrCodeStatusFailed     = "status_check_failed"
	ErrCodeDisconnectFailed = "disconnect_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
