package reconciler

import (
	"github.com/rs/zerolog"
	"github.com/stayswap/swapsync/pkg/events"
	"github.com/stayswap/swapsync/pkg/log"
	"github.com/stayswap/swapsync/pkg/store"
	"github.com/stayswap/swapsync/pkg/types"
)

// Reconciler applies authoritative server events to the store. It is the
// handler behind the realtime client: whatever the server says about a
// proposal wins over any local in-flight or optimistic state.
type Reconciler struct {
	store  *store.Store
	broker *events.Broker
	logger zerolog.Logger
}

// NewReconciler creates a reconciler over the shared store
func NewReconciler(st *store.Store, broker *events.Broker) *Reconciler {
	return &Reconciler{
		store:  st,
		broker: broker,
		logger: log.WithComponent("reconciler"),
	}
}

// ApplyStatusEvent folds an authoritative status event into the store and
// announces the reconciliation. Safe to call at any point in an operation's
// lifecycle, including when no operation exists.
func (r *Reconciler) ApplyStatusEvent(ev types.StatusEvent) {
	r.store.ApplyStatusEvent(ev)

	r.logger.Info().
		Str("proposal_id", ev.ProposalID).
		Str("status", string(ev.Status)).
		Str("responded_by", ev.RespondedBy).
		Msg("proposal reconciled from server event")

	r.broker.Publish(&events.Event{
		Type:       events.EventProposalReconciled,
		ProposalID: ev.ProposalID,
		Message:    "proposal status confirmed by server",
		Metadata:   map[string]string{"status": string(ev.Status)},
	})
}

// ApplyPaymentUpdate patches the payment status on the proposal's most
// recent feed entry
func (r *Reconciler) ApplyPaymentUpdate(proposalID, paymentStatus string) {
	r.store.UpdateRecentPaymentStatus(proposalID, paymentStatus)

	eventType := events.EventPaymentCompleted
	if paymentStatus != "completed" {
		eventType = events.EventPaymentFailed
	}
	r.broker.Publish(&events.Event{
		Type:       eventType,
		ProposalID: proposalID,
		Message:    "payment status updated",
		Metadata:   map[string]string{"payment_status": paymentStatus},
	})
}

// ApplyBlockchainRecord announces that the swap was recorded on the ledger
func (r *Reconciler) ApplyBlockchainRecord(proposalID, txHash string) {
	r.logger.Info().
		Str("proposal_id", proposalID).
		Str("tx_hash", txHash).
		Msg("swap recorded on ledger")

	r.broker.Publish(&events.Event{
		Type:       events.EventBlockchainRecorded,
		ProposalID: proposalID,
		Message:    "swap recorded on ledger",
		Metadata:   map[string]string{"tx_hash": txHash},
	})
}
