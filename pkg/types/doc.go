/*
Package types defines the core data structures shared across swapsync's
client-side state layer.

The types package contains the domain model for proposal-response tracking:
operations, optimistic updates, classified errors, rollback records, and the
activity-feed records synthesized from both local API calls and server-pushed
WebSocket events. All other packages depend on types; types depends on
nothing but the standard library.

# Core Types

ProposalOperation:
  - One per proposal id with an operation in progress or recently failed
  - Loading flag held while a network call is outstanding
  - Seq tags the operation instance so superseded calls become no-ops
  - RetryCount is the single authoritative retry counter

OptimisticUpdate:
  - Locally assumed final status applied before server confirmation
  - Cleared on any terminal outcome or authoritative push

ErrorInfo / RetryAttempt:
  - Classified failure records, capped history (100 entries)
  - RetryAttempt is derived bookkeeping for manual-retry display

RollbackRecord / SuccessRecord / RecentResponse:
  - Short-lived feedback records with fixed retention windows
  - RecentResponse carries a Source marking which path produced it

# Lifecycle

An operation is created by Begin (superseding any prior entry for the same
proposal), mutated on each retry, removed on success, kept with an error on
terminal failure, removed unconditionally when an authoritative status event
arrives, or swept once it exceeds its deadline.

# Bounds

	DefaultOperationTimeout  30s  per-operation default deadline
	MaxOperationTimeout      120s absolute cap, stale-operation safety net
	DefaultMaxRetries        3    orchestrator retry budget
	MaxErrorHistory          100  classified error history cap
	MaxRecentResponses       20   activity feed cap
	MaxSuccessRecords        10   success feedback cap
	RollbackRetention        10m  rollback record lifetime
	SuccessRetention         5m   success record lifetime
*/
package types
