package store

import (
	"fmt"

	"github.com/stayswap/swapsync/pkg/types"
)

// SweepResult summarizes one timeout-and-cleanup pass
type SweepResult struct {
	Retried       []string
	TimedOut      []string
	PurgedOps     int
	PurgedRecords int
}

// SweepTimeouts scans loading operations for deadline violations. An
// operation past its deadline with retry budget left is converted to an
// internal retry: retry count incremented, start time reset, error cleared.
// This is a last resort for operations whose own retry loop stalled; an
// operation the responder is actively driving keeps its deadline refreshed
// by MarkRetry, so the two paths do not double-count one logical attempt.
// Exhausted operations are failed with a timeout error and their optimistic
// projection cleared. Operations already in a terminal state (not loading)
// are never touched: they sit for manual retry or rollback until PurgeStale
// evicts them, and their failure is reported exactly once.
func (s *Store) SweepTimeouts() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var result SweepResult

	for id, op := range s.operations {
		if !op.Loading {
			continue
		}
		if !now.After(op.Deadline()) {
			continue
		}

		if op.RetryCount < op.MaxRetries {
			op.RetryCount++
			op.StartTime = now
			op.Error = ""
			op.Loading = true
			result.Retried = append(result.Retried, id)
			continue
		}

		op.Loading = false
		op.Error = fmt.Sprintf("operation timed out after %d retries", op.RetryCount)
		s.clearOptimisticLocked(id)
		s.recordErrorLocked(types.ErrorInfo{
			Type:       types.ErrorTimeout,
			Message:    op.Error,
			Timestamp:  now,
			Retryable:  false,
			ProposalID: id,
		})
		result.TimedOut = append(result.TimedOut, id)
	}
	return result
}

// PurgeStale garbage-collects everything past its retention window:
// operations older than the absolute cap regardless of retry state, rollback
// records past the rollback cutoff, and success records past theirs.
func (s *Store) PurgeStale() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var result SweepResult

	for id, op := range s.operations {
		if now.Sub(op.StartTime) > types.MaxOperationTimeout {
			delete(s.operations, id)
			s.clearOptimisticLocked(id)
			result.PurgedOps++
		}
	}

	for id, rec := range s.rollbacks {
		if now.Sub(rec.Timestamp) > types.RollbackRetention {
			delete(s.rollbacks, id)
			result.PurgedRecords++
		}
	}

	kept := s.successes[:0]
	for _, rec := range s.successes {
		if now.Sub(rec.Timestamp) <= types.SuccessRetention {
			kept = append(kept, rec)
		} else {
			result.PurgedRecords++
		}
	}
	s.successes = kept

	return result
}
