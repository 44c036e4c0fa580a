// Package types defines the error envelope returned by the Aegis HTTP API.
//
// Every non-2xx response has the shape
//
//	{"error": {"message": "...", "type": "invalid_request_error", "param": "prompt", "code": "missing_field", "request_id": "..."}}
//
// The HTTP status is derived from the type, so handlers build an
// ErrorResponse and call Write.
package types
