// Package core defines the domain model and contracts for the ingestion
// reliability layer: the webhook delivery ledger, the dead-letter side
// channel, and checkpointed backfill jobs. Storage backends, gates, and
// coordinators in the sibling packages implement and consume these
// contracts.
package core
