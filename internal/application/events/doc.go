// Package events provides the per-run lifecycle event publisher.
//
// A Publisher is created for each run and discarded with it; there is no
// process-wide bus. Delivery is synchronous and in subscription order, so
// observers see events in the exact order state transitions happen.
package events
