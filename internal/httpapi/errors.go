package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/twincitiespublictelevision/pbs-partner/internal/sessions"
	"github.com/twincitiespublictelevision/pbs-partner/internal/transport"
)

// Classify maps a service error to an HTTP status and an error envelope code.
// Both HTTP front ends use it.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, sessions.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, sessions.ErrMissingSelector):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, sessions.ErrUnknownCommand):
		return http.StatusBadRequest, "unknown_command"
	case errors.Is(err, sessions.ErrInvalidValue):
		return http.StatusBadRequest, "invalid_value"
	case errors.Is(err, sessions.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, transport.ErrNotConnected):
		return http.StatusConflict, "not_attached"
	case errors.Is(err, transport.ErrClosed):
		return http.StatusConflict, "player_closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "command_failed"
	}
}
