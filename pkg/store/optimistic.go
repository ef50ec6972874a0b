package store

import (
	"github.com/stayswap/swapsync/pkg/types"
)

// MarkAccepted records the optimistic assumption that a proposal will be
// accepted. Removes any optimistic rejection first: a proposal id appears in
// at most one of the two sets.
func (s *Store) MarkAccepted(proposalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markOptimisticLocked(proposalID, types.ProposalStatusAccepted)
}

// MarkRejected records the optimistic assumption that a proposal will be
// rejected, removing any optimistic acceptance first
func (s *Store) MarkRejected(proposalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markOptimisticLocked(proposalID, types.ProposalStatusRejected)
}

// ClearOptimistic removes the proposal from both optimistic sets
func (s *Store) ClearOptimistic(proposalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearOptimisticLocked(proposalID)
}

// ClearAllOptimistic drops every optimistic entry
func (s *Store) ClearAllOptimistic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimisticAccepted = make(map[string]struct{})
	s.optimisticRejected = make(map[string]struct{})
}

// IsOptimisticallyAccepted reports whether the UI should assume acceptance
func (s *Store) IsOptimisticallyAccepted(proposalID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.optimisticAccepted[proposalID]
	return ok
}

// IsOptimisticallyRejected reports whether the UI should assume rejection
func (s *Store) IsOptimisticallyRejected(proposalID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.optimisticRejected[proposalID]
	return ok
}

func (s *Store) markOptimisticLocked(proposalID string, status types.ProposalStatus) {
	switch status {
	case types.ProposalStatusAccepted:
		delete(s.optimisticRejected, proposalID)
		s.optimisticAccepted[proposalID] = struct{}{}
	case types.ProposalStatusRejected:
		delete(s.optimisticAccepted, proposalID)
		s.optimisticRejected[proposalID] = struct{}{}
	}
}

func (s *Store) clearOptimisticLocked(proposalID string) {
	delete(s.optimisticAccepted, proposalID)
	delete(s.optimisticRejected, proposalID)
}
