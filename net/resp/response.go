package resp

import (
	"encoding/json"
	"net/http"

	"github.com/ncobase/runner/ecode"
)

// Exception is a failure response. Status is the HTTP status; when zero it
// is derived from Code.
type Exception struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
}

type message struct {
	Message string `json:"message"`
}

func newException(status, code int, msg string, details ...any) *Exception {
	e := &Exception{Status: status, Code: code, Message: msg}
	if len(details) > 0 {
		e.Errors = details[0]
	}
	return e
}

// Success writes data with 200 OK.
func Success(w http.ResponseWriter, data ...any) {
	WithStatusCode(w, http.StatusOK, data...)
}

// WithStatusCode writes data with the given status. A string is wrapped as
// {"message": ...}; no data writes {"message": "ok"}.
func WithStatusCode(w http.ResponseWriter, status int, data ...any) {
	var body any = message{Message: "ok"}
	if len(data) > 0 && data[0] != nil {
		if s, ok := data[0].(string); ok {
			body = message{Message: s}
		} else {
			body = data[0]
		}
	}
	writeJSON(w, status, body)
}

// Fail writes e. A nil e is an internal server error.
func Fail(w http.ResponseWriter, e *Exception) {
	out := Exception{Code: ecode.ServerErr}
	if e != nil {
		out = *e
	}
	if out.Code == 0 {
		out.Code = ecode.RequestErr
	}
	if out.Message == "" {
		out.Message = ecode.Text(out.Code)
	}
	status := out.Status
	if status == 0 {
		status = ecode.ToHTTPStatus(out.Code)
	}
	writeJSON(w, status, &out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
