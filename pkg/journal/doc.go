// Package journal persists the activity feed across sessions.
//
// Only non-authoritative state is written: recent responses, success
// records and rollback records. In-flight operations never touch disk.
// An operation exists to be resolved by the process that started it;
// restoring one into a fresh session would create an entry no retry loop
// owns, so a restart simply forgets whatever was loading.
//
// Entries are keyed by timestamp so chronological reads and retention
// pruning are both cursor walks.
package journal
