// Package middleware provides the HTTP middleware of the Aegis API.
//
// # Middleware Chain
//
// The server assembles the chain outermost first:
//
//	Recovery(RequestID(Logging(CORS(Timeout(Authenticate(RateLimit(mux)))))))
//
// Recovery sits outside everything so a panic anywhere still produces the
// standard error body. RequestID runs before Logging so every log line of a
// request, including the access log, carries its request_id. Authenticate
// runs before the rate limiter so callers are limited per user rather than
// per address.
//
// # Request ID
//
// A client-supplied X-Request-ID is kept when it is at most 128 characters
// of [A-Za-z0-9-_.:]; otherwise a UUID is generated. The id is echoed in
// the response and becomes the governance request id.
//
// # Authentication
//
// Authenticate verifies "Authorization: Bearer <jwt>" with the identity
// token manager. Probe and metrics paths are public. Failures answer 401
// with a WWW-Authenticate header and never reveal why the token was
// rejected.
package middleware
