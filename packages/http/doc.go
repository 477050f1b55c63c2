// Package http is the live transport for replayed requests.
//
// It wraps the standard library's http package with:
//   - Configurable timeouts, redirects, proxy and TLS verification
//   - Connection pooling sized for many concurrent virtual users
//   - Per-request timing breakdown (blocked, connecting, TLS, sending,
//     waiting, receiving) collected with net/http/httptrace
//   - HMAC signing for hashed request headers
package http
