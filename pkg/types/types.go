package types

import (
	"fmt"
	"time"
)

// ProposalStatus represents the server-known state of a swap proposal
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusExpired  ProposalStatus = "expired"
)

// ResponseAction is the action a responder takes on a proposal
type ResponseAction string

const (
	ActionAccept ResponseAction = "accept"
	ActionReject ResponseAction = "reject"
)

// Status returns the proposal status a successful action resolves to
func (a ResponseAction) Status() ProposalStatus {
	if a == ActionAccept {
		return ProposalStatusAccepted
	}
	return ProposalStatusRejected
}

// Valid reports whether the action is one of the known response actions
func (a ResponseAction) Valid() bool {
	return a == ActionAccept || a == ActionReject
}

// Default and maximum bounds for operation tracking
const (
	DefaultOperationTimeout = 30 * time.Second
	MaxOperationTimeout     = 120 * time.Second
	DefaultMaxRetries       = 3

	// History caps
	MaxErrorHistory    = 100
	MaxRecentResponses = 20
	MaxSuccessRecords  = 10

	// Retention cutoffs for swept records
	RollbackRetention = 10 * time.Minute
	SuccessRetention  = 5 * time.Minute
)

// Proposal is the client's view of a swap proposal
type Proposal struct {
	ID           string         `json:"id"`
	BookingID    string         `json:"bookingId"`
	SwapTargetID string         `json:"swapTargetId,omitempty"`
	ProposerID   string         `json:"proposerId"`
	ResponderID  string         `json:"responderId"`
	Status       ProposalStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	RespondedAt  time.Time      `json:"respondedAt,omitempty"`
}

// OptimisticUpdate records the locally assumed outcome of an in-flight operation
type OptimisticUpdate struct {
	Status    ProposalStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

// ProposalOperation tracks one in-flight or recently failed accept/reject
// operation for a proposal. Exactly one operation exists per proposal id;
// a new Begin supersedes any previous entry.
type ProposalOperation struct {
	ProposalID string         `json:"proposalId"`
	Action     ResponseAction `json:"action"`
	Loading    bool           `json:"loading"`
	Error      string         `json:"error,omitempty"`
	StartTime  time.Time      `json:"startTime"`
	Timeout    time.Duration  `json:"timeout"`
	RetryCount int            `json:"retryCount"`
	MaxRetries int            `json:"maxRetries"`

	// Seq identifies this operation instance. Completion handlers compare
	// it against the store's current entry so a superseded call cannot
	// resurrect stale state.
	Seq uint64 `json:"seq"`

	Optimistic *OptimisticUpdate `json:"optimisticUpdate,omitempty"`
}

// Deadline returns the instant the operation times out
func (op *ProposalOperation) Deadline() time.Time {
	timeout := op.Timeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	if timeout > MaxOperationTimeout {
		timeout = MaxOperationTimeout
	}
	return op.StartTime.Add(timeout)
}

// ErrorClass categorizes a failure for retry-policy purposes
type ErrorClass string

const (
	ErrorNetwork    ErrorClass = "network"
	ErrorPermission ErrorClass = "permission"
	ErrorValidation ErrorClass = "validation"
	ErrorTimeout    ErrorClass = "timeout"
	ErrorServer     ErrorClass = "server"
	ErrorUnknown    ErrorClass = "unknown"
)

// ErrorInfo is a classified failure recorded in the error history
type ErrorInfo struct {
	Type       ErrorClass        `json:"type"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Retryable  bool              `json:"retryable"`
	ProposalID string            `json:"proposalId,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// RetryAttempt accumulates retry bookkeeping per proposal. It is derived
// information: ProposalOperation.RetryCount is the authoritative counter.
type RetryAttempt struct {
	Count       int         `json:"count"`
	LastAttempt time.Time   `json:"lastAttempt"`
	Errors      []ErrorInfo `json:"errors,omitempty"`
}

// RollbackRecord captures the last known status before an optimistic change,
// so a failed operation can be undone on request
type RollbackRecord struct {
	ProposalID     string         `json:"proposalId"`
	OriginalStatus ProposalStatus `json:"originalStatus"`
	Timestamp      time.Time      `json:"timestamp"`
}

// SuccessRecord is a transient UI-feedback record for a completed operation
type SuccessRecord struct {
	ProposalID string         `json:"proposalId"`
	Action     ResponseAction `json:"action"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ResponseSource distinguishes which path produced a RecentResponse
type ResponseSource string

const (
	SourceLocal  ResponseSource = "local"  // orchestrator resolved the call
	SourceRemote ResponseSource = "remote" // server pushed the outcome
)

// RecentResponse is an activity-feed entry for a concluded proposal,
// real or synthesized from a pushed event. Not authoritative state.
type RecentResponse struct {
	ProposalID    string         `json:"proposalId"`
	Status        ProposalStatus `json:"status"`
	RespondedBy   string         `json:"respondedBy,omitempty"`
	RespondedAt   time.Time      `json:"respondedAt"`
	Source        ResponseSource `json:"source"`
	PaymentStatus string         `json:"paymentStatus,omitempty"`
}

// PaymentTransaction is the payment sub-result of an accepted proposal
type PaymentTransaction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount,omitempty"`
}

// BlockchainTransaction is the ledger sub-result of a recorded swap
type BlockchainTransaction struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

// Swap describes the booking exchange created by an accepted proposal
type Swap struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposalId"`
	BookingID  string `json:"bookingId"`
	TargetID   string `json:"targetId,omitempty"`
}

// RespondResult is the server's answer to an accept or reject call
type RespondResult struct {
	Proposal   *Proposal              `json:"proposal"`
	Swap       *Swap                  `json:"swap,omitempty"`
	Payment    *PaymentTransaction    `json:"paymentTransaction,omitempty"`
	Blockchain *BlockchainTransaction `json:"blockchainTransaction,omitempty"`
}

// StatusEvent is an authoritative proposal-status update pushed over the
// WebSocket feed
type StatusEvent struct {
	ProposalID      string         `json:"proposalId"`
	Status          ProposalStatus `json:"status"`
	RespondedBy     string         `json:"respondedBy,omitempty"`
	RespondedAt     time.Time      `json:"respondedAt"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	PaymentStatus   string         `json:"paymentStatus,omitempty"`
}

// WebSocket channel naming
func ProposalChannel(id string) string             { return fmt.Sprintf("proposal:%s", id) }
func UserProposalsChannel(userID string) string    { return fmt.Sprintf("user_proposals:%s", userID) }
func ProposalActivityChannel(userID string) string { return fmt.Sprintf("proposal_activity:%s", userID) }
func ProposalNotificationsChannel(userID string) string {
	return fmt.Sprintf("proposal_notifications:%s", userID)
}
