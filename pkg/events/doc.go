/*
Package events provides the in-memory notification broker for swapsync.

The responder and the real-time middleware both publish here: terminal
operation outcomes, payment and blockchain sub-results, retry successes,
connection state changes, and the global re-authentication signal. The UI
layer subscribes and renders notifications; formatting and localization are
out of scope for this module.

# Delivery Semantics

Publish is non-blocking: events flow through a buffered channel (100) into a
broadcast loop, and each subscriber owns a buffered channel (50). A full
subscriber buffer skips delivery rather than blocking the publisher, so the
broker is suitable for notifications but never for authoritative state.
Components that must agree on state do so through the store, not the broker.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventAuthRequired:
				redirectToLogin()
			case events.EventProposalAccepted:
				showToast(event)
			}
		}
	}()

# Event Types

Terminal outcomes:
  - proposal.accepted, proposal.rejected: local operation succeeded
  - operation.failed: terminal failure (metadata carries error_type)
  - operation.retry_succeeded: success on attempt > 0

Sub-results:
  - payment.completed, payment.failed, blockchain.recorded

Signals:
  - auth.required: global re-authentication, bypasses normal surfacing
  - network.error: terminal network failure
  - connection.lost, connection.restored: WebSocket transport state
  - proposal.reconciled: a pushed status event superseded local state
*/
package events
