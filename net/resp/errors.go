package resp

import (
	"net/http"

	"github.com/ncobase/runner/ecode"
)

// BadRequest indicates a bad request.
func BadRequest(msg string, details ...any) *Exception {
	return newException(http.StatusBadRequest, ecode.ParamErr, msg, details...)
}

// NotFound indicates that the requested resource is not found.
func NotFound(msg string, details ...any) *Exception {
	return newException(http.StatusNotFound, ecode.NotFound, msg, details...)
}

// Conflict indicates a conflict error.
func Conflict(msg string, details ...any) *Exception {
	return newException(http.StatusConflict, ecode.Conflict, msg, details...)
}

// InternalServer indicates a server error.
func InternalServer(msg string, details ...any) *Exception {
	return newException(http.StatusInternalServerError, ecode.ServerErr, msg, details...)
}

// Unavailable indicates a dependency the request needs is down.
func Unavailable(msg string, details ...any) *Exception {
	return newException(http.StatusServiceUnavailable, ecode.ServiceUnavailable, msg, details...)
}
