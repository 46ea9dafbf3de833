// Package session owns client<->server session reliability helpers.
//
// Ownership boundary:
// - transport timeouts and reconnect backoff
// - tls settings for wss endpoints
// - the outbox of update requests awaiting a server result
package session
