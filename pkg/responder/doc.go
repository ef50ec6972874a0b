// Package responder orchestrates the accept/reject workflow for swap
// proposals.
//
// A Respond call moves through four phases:
//
//	guard      reject the call when an operation for the proposal is
//	           already loading (ErrOperationInProgress)
//	project    register the operation in the store and mark the
//	           optimistic status unless disabled
//	resolve    call the remote API, classifying failures and retrying
//	           transient ones with exponential backoff
//	commit     write exactly one terminal outcome (success or failure)
//	           back to the store
//
// The resolve phase never writes terminal state directly. It returns a
// BatchOutcome that the caller commits, which lets RespondBatch aggregate
// the outcomes of many proposals and commit them under a single store lock.
// Sequence guards inside the store make a commit a silent no-op when the
// operation was superseded by a newer call or by an authoritative server
// event while the request was in flight.
//
// Authentication failures are special-cased: they never consume a retry
// slot and publish an auth.required event so the surrounding application
// can redirect to sign-in.
package responder
