// Package timeouts defines shared timeout constants used across commands.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// SettlementRequest caps a single call to the settlement gateway. The
// gateway must answer with a definite success or failure inside this
// window; expiry is reported as a retryable transfer failure, never as
// an assumed success.
const SettlementRequest = 30 * time.Second
