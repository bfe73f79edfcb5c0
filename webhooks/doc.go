// Package webhooks implements the inbound delivery path: the idempotency
// gate that consults the delivery ledger before any domain side effect,
// and the processor that drives verification, the gate, the domain
// handler, and dead-letter routing for a single delivery.
package webhooks
