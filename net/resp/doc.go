// Package resp writes the JSON envelopes of the HTTP surface.
//
// Success responses carry the payload as is, or {"message": ...} when there
// is none. Failures carry a business code from ecode:
//
//	{
//	  "code": -404,
//	  "message": "job does not exist",
//	  "errors": {...}
//	}
//
// Usage:
//
//	resp.Success(w, job)
//	resp.WithStatusCode(w, http.StatusCreated, job)
//	resp.Fail(w, resp.NotFound(ecode.NotExist("job")))
package resp
