package server

import "net/http"

// Error A server-side error with a corresponding code
type Error struct {
	HTTPStatus int
	Message    string
}

var (
	// ErrUnknownRoute - no handler for the requested path
	ErrUnknownRoute = &Error{
		HTTPStatus: http.StatusNotFound,
		Message:    "Not found",
	}
	// ErrRequestTimeout - the storage operation did not complete in time
	ErrRequestTimeout = &Error{
		HTTPStatus: http.StatusGatewayTimeout,
		Message:    "Request timed out",
	}
	// ErrRequestCancelled - the client went away before the operation completed
	ErrRequestCancelled = &Error{
		HTTPStatus: http.StatusServiceUnavailable,
		Message:    "Request cancelled",
	}
	// ErrIDExhausted - no unused blob id could be generated
	ErrIDExhausted = &Error{
		HTTPStatus: http.StatusServiceUnavailable,
		Message:    "Could not allocate a file id, try again",
	}
	// ErrInternal - anything unexpected
	ErrInternal = &Error{
		HTTPStatus: http.StatusInternalServerError,
		Message:    "Internal server error",
	}
	// ErrInvalidClientOrigin - the share link origin is not an absolute http(s) URL
	ErrInvalidClientOrigin = &Error{
		HTTPStatus: http.StatusInternalServerError,
		Message:    "Invalid client origin",
	}
	// ErrInvalidCORSOrigin - a CORS origin is not an absolute http(s) URL
	ErrInvalidCORSOrigin = &Error{
		HTTPStatus: http.StatusInternalServerError,
		Message:    "Invalid CORS origin",
	}
)

func (e *Error) Error() string {
	return e.Message
}
