package store

import (
	"sync"
	"time"

	"github.com/stayswap/swapsync/pkg/types"
)

// Store holds all client-side proposal-response state: in-flight operations,
// optimistic projections, error history, rollback records, and the activity
// feed. It is the single shared resource between the responder, the real-time
// middleware, and the sweep; they communicate only by reading and writing it.
//
// Every mutation runs under one lock, so individual reducer calls are atomic
// with respect to each other. No mutation performs network or timer work.
type Store struct {
	mu  sync.RWMutex
	seq uint64

	operations         map[string]*types.ProposalOperation
	optimisticAccepted map[string]struct{}
	optimisticRejected map[string]struct{}

	errorHistory   []types.ErrorInfo
	proposalErrors map[string]types.ErrorInfo
	retryAttempts  map[string]*types.RetryAttempt

	rollbacks map[string]*types.RollbackRecord
	successes []types.SuccessRecord
	recent    []types.RecentResponse

	now func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		operations:         make(map[string]*types.ProposalOperation),
		optimisticAccepted: make(map[string]struct{}),
		optimisticRejected: make(map[string]struct{}),
		proposalErrors:     make(map[string]types.ErrorInfo),
		retryAttempts:      make(map[string]*types.RetryAttempt),
		rollbacks:          make(map[string]*types.RollbackRecord),
		now:                time.Now,
	}
}

// Begin creates or replaces the operation for a proposal. A new call always
// supersedes a stale entry: the returned snapshot carries a fresh Seq that
// completion handlers must present back.
func (s *Store) Begin(proposalID string, action types.ResponseAction, optimisticStatus *types.ProposalStatus, timeout time.Duration, maxRetries int) types.ProposalOperation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timeout <= 0 {
		timeout = types.DefaultOperationTimeout
	}
	if timeout > types.MaxOperationTimeout {
		timeout = types.MaxOperationTimeout
	}
	if maxRetries <= 0 {
		maxRetries = types.DefaultMaxRetries
	}

	s.seq++
	op := &types.ProposalOperation{
		ProposalID: proposalID,
		Action:     action,
		Loading:    true,
		StartTime:  s.now(),
		Timeout:    timeout,
		MaxRetries: maxRetries,
		Seq:        s.seq,
	}
	if optimisticStatus != nil {
		op.Optimistic = &types.OptimisticUpdate{
			Status:    *optimisticStatus,
			Timestamp: op.StartTime,
		}
		s.markOptimisticLocked(proposalID, *optimisticStatus)
	}
	s.operations[proposalID] = op
	return *op
}

// Complete removes the operation on success, appends feed records, and clears
// the optimistic projection. Returns false without mutating anything when the
// operation no longer exists or has been superseded (Seq mismatch).
func (s *Store) Complete(proposalID string, seq uint64, status types.ProposalStatus, respondedBy string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked(proposalID, seq, status, respondedBy)
}

func (s *Store) completeLocked(proposalID string, seq uint64, status types.ProposalStatus, respondedBy string) bool {
	op, ok := s.operations[proposalID]
	if !ok || op.Seq != seq {
		return false
	}

	now := s.now()
	delete(s.operations, proposalID)
	s.clearOptimisticLocked(proposalID)
	delete(s.rollbacks, proposalID)
	delete(s.retryAttempts, proposalID)
	delete(s.proposalErrors, proposalID)

	s.appendSuccessLocked(types.SuccessRecord{
		ProposalID: proposalID,
		Action:     op.Action,
		Timestamp:  now,
	})
	s.appendRecentLocked(types.RecentResponse{
		ProposalID:  proposalID,
		Status:      status,
		RespondedBy: respondedBy,
		RespondedAt: now,
		Source:      types.SourceLocal,
	})
	return true
}

// Fail marks the operation terminally failed: loading stops, the error is
// recorded, and a rollback record is stored when an original status was
// captured before the optimistic update. The operation entry is kept so the
// user can retry or roll back. Seq-guarded like Complete.
func (s *Store) Fail(proposalID string, seq uint64, errInfo types.ErrorInfo, originalStatus *types.ProposalStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(proposalID, seq, errInfo, originalStatus)
}

func (s *Store) failLocked(proposalID string, seq uint64, errInfo types.ErrorInfo, originalStatus *types.ProposalStatus) bool {
	op, ok := s.operations[proposalID]
	if !ok || op.Seq != seq {
		return false
	}

	op.Loading = false
	op.Error = errInfo.Message
	s.clearOptimisticLocked(proposalID)
	s.recordErrorLocked(errInfo)

	if originalStatus != nil {
		s.rollbacks[proposalID] = &types.RollbackRecord{
			ProposalID:     proposalID,
			OriginalStatus: *originalStatus,
			Timestamp:      s.now(),
		}
	}
	return true
}

// MarkRetry increments the authoritative retry counter before a re-attempt
// and accumulates the triggering error in the per-proposal retry bookkeeping.
// Seq-guarded; a superseded operation's retry is a no-op.
func (s *Store) MarkRetry(proposalID string, seq uint64, errInfo types.ErrorInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.operations[proposalID]
	if !ok || op.Seq != seq {
		return false
	}

	op.RetryCount++
	op.Error = ""
	op.Loading = true
	op.StartTime = s.now()

	attempt := s.retryAttempts[proposalID]
	if attempt == nil {
		attempt = &types.RetryAttempt{}
		s.retryAttempts[proposalID] = attempt
	}
	attempt.Count++
	attempt.LastAttempt = s.now()
	attempt.Errors = append(attempt.Errors, errInfo)
	return true
}

// BatchOutcome is one resolved entry of a batch response, applied by
// CommitBatch under a single lock acquisition
type BatchOutcome struct {
	ProposalID     string
	Seq            uint64
	Success        bool
	Retried        bool // resolved only after one or more retries
	Status         types.ProposalStatus
	RespondedBy    string
	ErrInfo        types.ErrorInfo
	OriginalStatus *types.ProposalStatus
}

// CommitBatch applies the outcomes of a batch response as one atomic store
// update. Individual entries keep their Seq guards: an entry superseded
// while the batch was running is skipped. The returned slice reports, per
// outcome, whether the write was applied.
func (s *Store) CommitBatch(outcomes []BatchOutcome) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := make([]bool, len(outcomes))
	for i, o := range outcomes {
		if o.Success {
			applied[i] = s.completeLocked(o.ProposalID, o.Seq, o.Status, o.RespondedBy)
		} else {
			applied[i] = s.failLocked(o.ProposalID, o.Seq, o.ErrInfo, o.OriginalStatus)
		}
	}
	return applied
}

// ClearError clears the terminal error on a failed operation and marks it
// loading again, used by manual retry. Returns the operation snapshot.
func (s *Store) ClearError(proposalID string, maxRetries int) (types.ProposalOperation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.operations[proposalID]
	if !ok || op.Loading {
		return types.ProposalOperation{}, false
	}

	s.seq++
	op.Seq = s.seq
	op.Error = ""
	op.Loading = true
	op.RetryCount = 0
	op.StartTime = s.now()
	if maxRetries > 0 {
		op.MaxRetries = maxRetries
	}
	return *op, true
}

// Remove unconditionally deletes the operation for a proposal. Used by
// successful completion paths and by external reconciliation.
func (s *Store) Remove(proposalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.operations, proposalID)
}

// Operation returns a snapshot of the tracked operation for a proposal
func (s *Store) Operation(proposalID string) (types.ProposalOperation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[proposalID]
	if !ok {
		return types.ProposalOperation{}, false
	}
	return *op, true
}

// TrackedProposalIDs returns the ids of all proposals with a tracked operation
func (s *Store) TrackedProposalIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.operations))
	for id := range s.operations {
		ids = append(ids, id)
	}
	return ids
}
