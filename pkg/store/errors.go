package store

import (
	"github.com/stayswap/swapsync/pkg/types"
)

// RecordError appends a classified error to the bounded history and to the
// per-proposal error map, independent of any tracked operation
func (s *Store) RecordError(errInfo types.ErrorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordErrorLocked(errInfo)
}

func (s *Store) recordErrorLocked(errInfo types.ErrorInfo) {
	s.errorHistory = append(s.errorHistory, errInfo)
	if len(s.errorHistory) > types.MaxErrorHistory {
		s.errorHistory = s.errorHistory[len(s.errorHistory)-types.MaxErrorHistory:]
	}
	if errInfo.ProposalID != "" {
		s.proposalErrors[errInfo.ProposalID] = errInfo
	}
}

// OperationError returns the transient error string on a failed operation
func (s *Store) OperationError(proposalID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if op, ok := s.operations[proposalID]; ok {
		return op.Error
	}
	return ""
}

// ProposalError returns the last classified error recorded for a proposal
func (s *Store) ProposalError(proposalID string) (types.ErrorInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.proposalErrors[proposalID]
	return info, ok
}

// ErrorHistory returns a copy of the bounded classified-error history
func (s *Store) ErrorHistory() []types.ErrorInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]types.ErrorInfo, len(s.errorHistory))
	copy(history, s.errorHistory)
	return history
}

// RetryAttempts returns the derived retry bookkeeping for a proposal
func (s *Store) RetryAttempts(proposalID string) (types.RetryAttempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempt, ok := s.retryAttempts[proposalID]
	if !ok {
		return types.RetryAttempt{}, false
	}
	out := *attempt
	out.Errors = append([]types.ErrorInfo(nil), attempt.Errors...)
	return out, true
}
