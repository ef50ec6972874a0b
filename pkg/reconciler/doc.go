// Package reconciler keeps the local store consistent with server truth.
//
// Two collaborators live here. The Reconciler is the event-driven half:
// it receives authoritative proposal events from the realtime client and
// folds them into the store, superseding any local in-flight operation or
// optimistic projection for the same proposal. The Sweeper is the
// time-driven half: a background loop that rescues stalled operations
// (converting deadline violations into retries while budget remains,
// failing them once it runs out) and purges records past their retention
// windows.
//
// Both halves tolerate every interleaving with the responder: last writer
// wins per proposal, and a reconciliation that finds nothing to do is a
// no-op, not an error.
package reconciler
