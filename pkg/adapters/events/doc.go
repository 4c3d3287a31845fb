// Package events provides outbound relays for lifecycle events.
//
// Implementations:
//   - redis: Redis Streams, one stream per run, for external observers
package events
