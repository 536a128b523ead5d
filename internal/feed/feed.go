// Package feed maintains connections to external trade-event sources and
// delivers decoded events, one at a time, to a synchronous handler. The
// source does not read the next frame until the handler returns, so
// handler latency directly throttles ingestion.
package feed

import "tickvault/internal/domain"

// Handler consumes one decoded event. It must not be called concurrently.
type Handler func(domain.Event)
