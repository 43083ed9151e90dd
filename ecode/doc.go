// Package ecode defines the business error codes returned in API responses
// and maps them to messages and HTTP statuses.
//
// Codes follow a numbering scheme:
//   - 0: success
//   - -400 to -499: request errors
//   - -404, -409: resource errors
//   - -500 and below: server errors
//
// Usage with the resp package:
//
//	resp.Fail(w, &resp.Exception{
//	    Status:  http.StatusNotFound,
//	    Code:    ecode.NotFound,
//	    Message: ecode.NotExist("job"),
//	})
package ecode
