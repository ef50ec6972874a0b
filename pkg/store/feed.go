package store

import (
	"github.com/stayswap/swapsync/pkg/types"
)

// RecentResponses returns a copy of the activity feed, newest last
func (s *Store) RecentResponses() []types.RecentResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.RecentResponse, len(s.recent))
	copy(out, s.recent)
	return out
}

// SuccessRecords returns a copy of the transient success feedback records
func (s *Store) SuccessRecords() []types.SuccessRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.SuccessRecord, len(s.successes))
	copy(out, s.successes)
	return out
}

// Rollback returns the rollback record for a proposal, if one exists
func (s *Store) Rollback(proposalID string) (types.RollbackRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.rollbacks[proposalID]
	if !ok {
		return types.RollbackRecord{}, false
	}
	return *rec, true
}

// RollbackRecords returns a copy of every rollback record
func (s *Store) RollbackRecords() []types.RollbackRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.RollbackRecord, 0, len(s.rollbacks))
	for _, rec := range s.rollbacks {
		out = append(out, *rec)
	}
	return out
}

// DiscardRollback removes the rollback record for a proposal
func (s *Store) DiscardRollback(proposalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rollbacks, proposalID)
}

// AppendRecent adds an activity-feed entry directly, used by rollback to
// surface the restored status
func (s *Store) AppendRecent(resp types.RecentResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp.RespondedAt.IsZero() {
		resp.RespondedAt = s.now()
	}
	s.appendRecentLocked(resp)
}

// RestoreFeed seeds the activity feed and rollback records from a persisted
// journal at startup. In-flight operations and optimistic sets are never
// restored: a restarted client does not own calls it can no longer observe.
func (s *Store) RestoreFeed(recent []types.RecentResponse, successes []types.SuccessRecord, rollbacks []types.RollbackRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recent {
		s.appendRecentLocked(r)
	}
	for _, rec := range successes {
		s.appendSuccessLocked(rec)
	}
	for i := range rollbacks {
		rec := rollbacks[i]
		s.rollbacks[rec.ProposalID] = &rec
	}
}

func (s *Store) appendRecentLocked(resp types.RecentResponse) {
	s.recent = append(s.recent, resp)
	if len(s.recent) > types.MaxRecentResponses {
		s.recent = s.recent[len(s.recent)-types.MaxRecentResponses:]
	}
}

func (s *Store) appendSuccessLocked(rec types.SuccessRecord) {
	s.successes = append(s.successes, rec)
	if len(s.successes) > types.MaxSuccessRecords {
		s.successes = s.successes[len(s.successes)-types.MaxSuccessRecords:]
	}
}
