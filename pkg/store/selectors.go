package store

import (
	"time"

	"github.com/stayswap/swapsync/pkg/types"
)

// OperationStatistics aggregates the shape of the tracked state
type OperationStatistics struct {
	Tracked            int
	Loading            int
	Failed             int
	OptimisticAccepted int
	OptimisticRejected int
	SuccessRecords     int
	RecentResponses    int
	RollbackRecords    int
}

// ErrorStatistics aggregates the classified error history
type ErrorStatistics struct {
	Total     int
	Retryable int
	ByClass   map[types.ErrorClass]int
}

// IsActive reports whether an operation is currently loading for a proposal.
// This is the duplicate-submission guard consulted by the responder.
func (s *Store) IsActive(proposalID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[proposalID]
	return ok && op.Loading
}

// CanRetry reports whether a failed operation exists with retry meaning:
// not loading, carrying an error
func (s *Store) CanRetry(proposalID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[proposalID]
	return ok && !op.Loading && op.Error != ""
}

// TimeRemaining returns how long before a loading operation times out.
// Zero when no loading operation exists or the deadline has passed.
func (s *Store) TimeRemaining(proposalID string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[proposalID]
	if !ok || !op.Loading {
		return 0
	}
	remaining := op.Deadline().Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// OperationStatistics returns aggregate counts over all tracked state
func (s *Store) OperationStatistics() OperationStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := OperationStatistics{
		Tracked:            len(s.operations),
		OptimisticAccepted: len(s.optimisticAccepted),
		OptimisticRejected: len(s.optimisticRejected),
		SuccessRecords:     len(s.successes),
		RecentResponses:    len(s.recent),
		RollbackRecords:    len(s.rollbacks),
	}
	for _, op := range s.operations {
		if op.Loading {
			stats.Loading++
		} else if op.Error != "" {
			stats.Failed++
		}
	}
	return stats
}

// ErrorStatistics returns aggregate counts over the error history
func (s *Store) ErrorStatistics() ErrorStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ErrorStatistics{
		ByClass: make(map[types.ErrorClass]int),
	}
	for _, info := range s.errorHistory {
		stats.Total++
		if info.Retryable {
			stats.Retryable++
		}
		stats.ByClass[info.Type]++
	}
	return stats
}
