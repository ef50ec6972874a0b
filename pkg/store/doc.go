/*
Package store holds all client-side proposal-response state for swapsync.

The store is the single shared resource between the responder (local
accept/reject orchestration), the real-time middleware (server-pushed
reconciliation), and the sweep (timeout and retention maintenance). The three
never call each other; they communicate only by reading and writing the store.

# Architecture

	┌───────────────────── STATE STORE ─────────────────────┐
	│                                                        │
	│  operations          map[proposalID]ProposalOperation  │
	│    - supersede semantics: Begin always wins            │
	│    - Seq guard: superseded completions are no-ops      │
	│                                                        │
	│  optimistic sets     accepted / rejected               │
	│    - mutual exclusion per proposal id                  │
	│    - cleared on every terminal outcome                 │
	│                                                        │
	│  error history       bounded (100) + per-proposal map  │
	│  retry attempts      derived bookkeeping               │
	│  rollback records    10 minute retention               │
	│  success records     last 10, 5 minute retention       │
	│  recent responses    last 20, local + remote sources   │
	└────────────────────────────────────────────────────────┘

# Concurrency

All mutations run under one mutex and are synchronous: there is no
interleaving within a single reducer call. Interleaving happens only between
calls, at the callers' suspension points (network I/O, backoff sleeps,
WebSocket delivery). For a single proposal id the last writer wins; none of
the writing paths may assume exclusivity, which is why ApplyStatusEvent
treats "no operation found" and "operation found and loading" as equally
valid starting states.

The Seq field on operations is the superseded-call guard: Complete, Fail and
MarkRetry mutate only when the caller presents the Seq of the entry it
began. ApplyStatusEvent and Remove ignore Seq; server truth always wins.

# Ownership

No network or timer side effects originate here. Persistence of the
non-authoritative activity feed lives in pkg/journal; in-flight operations
and optimistic sets are never persisted.
*/
package store
