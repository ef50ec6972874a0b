package store

import (
	"github.com/stayswap/swapsync/pkg/types"
)

// ApplyStatusEvent merges an authoritative server-pushed status event into
// local state. The server result supersedes whatever exists locally:
//
//  1. Any tracked operation for the proposal is removed, regardless of Seq or
//     loading state (an in-flight call that resolves later fails its Seq
//     guard and becomes a no-op).
//  2. The optimistic projection is cleared whether or not it agreed.
//  3. A RecentResponse and SuccessRecord are synthesized so activity feeds
//     stay consistent regardless of which path produced the outcome.
//  4. Any rollback record is discarded; rollback is meaningless once
//     authoritative data exists.
//
// The operation is idempotent: at-least-once delivery of the same event
// leaves the store in the same terminal state.
func (s *Store) ApplyStatusEvent(ev types.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.operations, ev.ProposalID)
	s.clearOptimisticLocked(ev.ProposalID)
	delete(s.rollbacks, ev.ProposalID)
	delete(s.retryAttempts, ev.ProposalID)
	delete(s.proposalErrors, ev.ProposalID)

	if s.hasRemoteResponseLocked(ev) {
		return
	}

	s.appendRecentLocked(types.RecentResponse{
		ProposalID:    ev.ProposalID,
		Status:        ev.Status,
		RespondedBy:   ev.RespondedBy,
		RespondedAt:   ev.RespondedAt,
		Source:        types.SourceRemote,
		PaymentStatus: ev.PaymentStatus,
	})

	// Expired proposals are outcomes but not successes
	if ev.Status == types.ProposalStatusAccepted || ev.Status == types.ProposalStatusRejected {
		action := types.ActionReject
		if ev.Status == types.ProposalStatusAccepted {
			action = types.ActionAccept
		}
		s.appendSuccessLocked(types.SuccessRecord{
			ProposalID: ev.ProposalID,
			Action:     action,
			Timestamp:  ev.RespondedAt,
		})
	}
}

// UpdateRecentPaymentStatus patches the latest feed entry for a proposal when
// a payment or blockchain update arrives after the status event
func (s *Store) UpdateRecentPaymentStatus(proposalID, paymentStatus string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].ProposalID == proposalID {
			s.recent[i].PaymentStatus = paymentStatus
			return
		}
	}
}

func (s *Store) hasRemoteResponseLocked(ev types.StatusEvent) bool {
	for i := len(s.recent) - 1; i >= 0; i-- {
		r := s.recent[i]
		if r.ProposalID == ev.ProposalID && r.Source == types.SourceRemote &&
			r.Status == ev.Status && r.RespondedAt.Equal(ev.RespondedAt) {
			return true
		}
	}
	return false
}
