// Package webhook hosts the HTTP endpoint the service delivers auth and
// logout callbacks to.
//
// The service calls the endpoint with the callback fields as query or form
// parameters. The server turns them into a payload map and hands it to a
// callback.Handler, which does all cryptographic verification.
//
// # Security Model
//
// - Body size limits enforced before parsing (413)
// - Token bucket rate limiting across all clients (429)
// - Signature failures answer a generic 403 with no details
// - Replayed callbacks are rejected by BLAKE3 digest (409)
// - Request logging excludes payloads and key material
//
// # Configuration
//
//	callback:
//	  listen: "127.0.0.1:8081"
//	  path: /callback
//	  max_body_size: 64KB
//	  max_clock_skew: 5m
//	  rate_limit:
//	    per_second: 20
//	    burst: 50
//
// # Request Flow
//
//  1. GET or POST arrives at the configured path
//  2. Rate limit checked (429)
//  3. Body size checked (413)
//  4. Query and form parameters merged, first value wins (400 if malformed)
//  5. Digest of the callback's own parameters looked up in the journal and
//     among deliveries in flight (409 if already handled)
//  6. Callback verified by the handler (403 or 400 on failure)
//  7. Outcome recorded in the journal
//  8. 200 OK returned with the callback type and outcome
//
// # Error Responses
//
// - 400 Bad Request: malformed or unrecognized callback
// - 403 Forbidden: de-orbit signature did not verify
// - 409 Conflict: callback already handled
// - 413 Payload Too Large: body exceeds max_body_size
// - 429 Too Many Requests: rate limit exceeded
// - 500 Internal Server Error: journal failure
package webhook
