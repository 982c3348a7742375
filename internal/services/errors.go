// Package services defines the business logic for conversations, analyses,
// and integration connections. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyContent is returned when a user message carries neither text
	// nor a metadata payload.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrTooLong is returned when a message exceeds the maximum configured
	// length limit.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidRole is returned when a message role is outside the allowed
	// set (user, assistant, system).
	ErrInvalidRole = errors.New("invalid message role")

	// ErrEmptyDomain is returned when an analysis is requested without a
	// domain to audit.
	ErrEmptyDomain = errors.New("analysis domain is empty")

	// ErrAnalysisNotFound indicates that the requested analysis does not exist.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrAnalysisFinished is returned when an event targets an analysis that
	// already reached a terminal state.
	ErrAnalysisFinished = errors.New("analysis already finished")

	// ErrUnknownProvider is returned when an integration request names a
	// provider the server is not configured for.
	ErrUnknownProvider = errors.New("unknown integration provider")

	// ErrMissingSession is returned when an integration mutation arrives
	// without a session id. Status checks tolerate the absence (a fresh id is
	// issued instead); connect and disconnect do not.
	ErrMissingSession = errors.New("session id is required")

	// ErrConnectionNotFound indicates no connection row exists for the given
	// session and provider.
	ErrConnectionNotFound = errors.New("integration connection not found")
)
