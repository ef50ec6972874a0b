package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stayswap/swapsync/pkg/api"
	"github.com/stayswap/swapsync/pkg/events"
	"github.com/stayswap/swapsync/pkg/failure"
	"github.com/stayswap/swapsync/pkg/log"
	"github.com/stayswap/swapsync/pkg/metrics"
	"github.com/stayswap/swapsync/pkg/store"
	"github.com/stayswap/swapsync/pkg/types"
)

var (
	// ErrOperationInProgress is returned when a response for the same
	// proposal is already loading (duplicate-submission guard)
	ErrOperationInProgress = errors.New("operation already in progress for this proposal")

	// ErrNoRollbackData is returned by Rollback when no rollback record
	// exists for the proposal
	ErrNoRollbackData = errors.New("no rollback data for this proposal")

	// ErrSuperseded is returned when an in-flight call resolved after its
	// operation was replaced or reconciled away; no state was written
	ErrSuperseded = errors.New("operation superseded before resolution")

	// ErrNotRetryable is returned by Retry when no failed operation exists
	ErrNotRetryable = errors.New("no failed operation to retry")
)

// RespondError is the caller-visible terminal failure of a Respond call
type RespondError struct {
	Class       types.ErrorClass
	Code        string
	Message     string
	ShouldRetry bool
	UserAction  string
}

func (e *RespondError) Error() string {
	return fmt.Sprintf("%s error responding to proposal: %s", e.Class, e.Message)
}

// Options tunes a single Respond call
type Options struct {
	Reason             string // rejection reason, forwarded to the API
	DisableOptimistic  bool   // batch mode forgoes optimistic UI
	MaxRetries         int    // 0 means the default (3)
	Timeout            time.Duration
	OriginalStatus     *types.ProposalStatus // status before the optimistic change, enables rollback
	AutoProcessPayment bool
	SwapTargetID       string
}

// BatchResult is the per-proposal outcome of a RespondBatch call
type BatchResult struct {
	ProposalID string
	Result     *types.RespondResult
	Err        error
}

// Responder orchestrates accept/reject workflows: duplicate guard,
// optimistic projection, bounded retry with exponential backoff, and exactly
// one terminal outcome per call. It owns no state of its own beyond wiring;
// everything shared lives in the store.
type Responder struct {
	store  *store.Store
	api    api.Client
	broker *events.Broker
	logger zerolog.Logger

	// baseDelay overrides every policy's backoff base when non-zero.
	// Tests set it to keep backoff sleeps negligible.
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewResponder creates a responder around the shared store, the remote API
// and the notification broker
func NewResponder(st *store.Store, client api.Client, broker *events.Broker) *Responder {
	return &Responder{
		store:  st,
		api:    client,
		broker: broker,
		logger: log.WithComponent("responder"),
		sleep:  waitWithContext,
	}
}

// Respond accepts or rejects a proposal on behalf of responderID. Exactly
// one terminal outcome is recorded per call: either the operation completes
// or it fails, regardless of how many internal retries occurred. Returns
// ErrOperationInProgress without touching the store when a call for the same
// proposal is already loading.
func (r *Responder) Respond(ctx context.Context, proposalID, responderID string, action types.ResponseAction, opts Options) (*types.RespondResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("invalid response action %q", action)
	}
	if r.store.IsActive(proposalID) {
		return nil, ErrOperationInProgress
	}

	var optimistic *types.ProposalStatus
	if !opts.DisableOptimistic {
		status := action.Status()
		optimistic = &status
	}
	op := r.store.Begin(proposalID, action, optimistic, opts.Timeout, opts.MaxRetries)

	outcome, result, err := r.run(ctx, op, responderID, opts, false)
	if outcome != nil {
		r.notifyCommitted(*outcome, op.Action, result, r.commit(*outcome))
	}
	return result, err
}

// RespondBatch responds to several proposals sequentially with optimistic
// updates disabled, collecting per-proposal results and committing every
// terminal outcome as one atomic store update.
func (r *Responder) RespondBatch(ctx context.Context, proposalIDs []string, responderID string, action types.ResponseAction, opts Options) []BatchResult {
	opts.DisableOptimistic = true

	results := make([]BatchResult, 0, len(proposalIDs))
	outcomes := make([]store.BatchOutcome, 0, len(proposalIDs))
	outcomeResults := make([]*types.RespondResult, 0, len(proposalIDs))

	for _, id := range proposalIDs {
		if r.store.IsActive(id) {
			results = append(results, BatchResult{ProposalID: id, Err: ErrOperationInProgress})
			continue
		}
		op := r.store.Begin(id, action, nil, opts.Timeout, opts.MaxRetries)
		outcome, result, err := r.run(ctx, op, responderID, opts, false)
		if outcome != nil {
			outcomes = append(outcomes, *outcome)
			outcomeResults = append(outcomeResults, result)
		}
		results = append(results, BatchResult{ProposalID: id, Result: result, Err: err})
	}

	applied := r.store.CommitBatch(outcomes)
	for i, outcome := range outcomes {
		r.notifyCommitted(outcome, action, outcomeResults[i], applied[i])
	}
	return results
}

// Retry re-runs a previously failed operation with a reduced retry budget.
// The existing error is cleared before the new attempt.
func (r *Responder) Retry(ctx context.Context, proposalID, responderID string, opts Options) (*types.RespondResult, error) {
	if !r.store.CanRetry(proposalID) {
		return nil, ErrNotRetryable
	}
	op, ok := r.store.ClearError(proposalID, 2)
	if !ok {
		return nil, ErrNotRetryable
	}

	outcome, result, err := r.run(ctx, op, responderID, opts, true)
	if outcome != nil {
		r.notifyCommitted(*outcome, op.Action, result, r.commit(*outcome))
	}
	return result, err
}

// Rollback restores a proposal's previously known status after a failed
// operation, discards the rollback record, and removes the operation entry.
// Fails with ErrNoRollbackData when no record exists; the store is left
// unchanged in that case.
func (r *Responder) Rollback(proposalID string) (types.ProposalStatus, error) {
	rec, ok := r.store.Rollback(proposalID)
	if !ok {
		return "", ErrNoRollbackData
	}

	r.store.AppendRecent(types.RecentResponse{
		ProposalID: proposalID,
		Status:     rec.OriginalStatus,
		Source:     types.SourceLocal,
	})
	r.store.DiscardRollback(proposalID)
	r.store.Remove(proposalID)
	r.store.ClearOptimistic(proposalID)

	r.logger.Info().
		Str("proposal_id", proposalID).
		Str("restored_status", string(rec.OriginalStatus)).
		Msg("rolled back proposal to previous status")
	return rec.OriginalStatus, nil
}

// run drives the retry loop for one operation. It never writes terminal
// state itself; the returned outcome is committed by the caller so batch
// mode can aggregate commits. A nil outcome means the operation was
// superseded mid-flight and nothing must be written.
func (r *Responder) run(ctx context.Context, op types.ProposalOperation, responderID string, opts Options, manualRetry bool) (*store.BatchOutcome, *types.RespondResult, error) {
	proposalID := op.ProposalID
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OperationDuration)

	maxRetries := op.MaxRetries

	for attempt := 0; ; attempt++ {
		result, callErr := r.call(ctx, proposalID, responderID, op.Action, opts)
		if callErr == nil {
			status := op.Action.Status()
			if result.Proposal != nil {
				status = result.Proposal.Status
			}
			// Notifications wait for the commit: a success superseded by
			// reconciliation writes nothing and must announce nothing
			return &store.BatchOutcome{
				ProposalID:  proposalID,
				Seq:         op.Seq,
				Success:     true,
				Retried:     attempt > 0 || manualRetry,
				Status:      status,
				RespondedBy: responderID,
			}, result, nil
		}

		statusCode, code, message := unpackError(callErr)

		if failure.IsAuthFailure(statusCode, message) {
			// Dedicated redirect-to-login signal alongside the notification
			r.broker.Publish(&events.Event{
				Type:       events.EventAuthRequired,
				ProposalID: proposalID,
				Message:    "session expired, please sign in again",
			})
			r.broker.Publish(&events.Event{
				Type:       events.EventOperationFailed,
				ProposalID: proposalID,
				Message:    "could not respond to the proposal: authentication required",
				Metadata:   map[string]string{"error_type": string(types.ErrorPermission)},
			})
			metrics.OperationsTotal.WithLabelValues(string(op.Action), "auth_failure").Inc()
			errInfo := failure.Info(proposalID, statusCode, code, message, time.Now())
			return &store.BatchOutcome{
					ProposalID:     proposalID,
					Seq:            op.Seq,
					ErrInfo:        errInfo,
					OriginalStatus: opts.OriginalStatus,
				}, nil, &RespondError{
					Class:       errInfo.Type,
					Code:        code,
					Message:     message,
					ShouldRetry: false,
					UserAction:  "sign in again",
				}
		}

		class := failure.Classify(statusCode, message)
		policy := failure.Policy(class)
		errInfo := failure.Info(proposalID, statusCode, code, message, time.Now())
		metrics.ErrorsTotal.WithLabelValues(string(class)).Inc()

		budget := maxRetries
		if policy.MaxRetries < budget {
			budget = policy.MaxRetries
		}
		if policy.Retryable && attempt < budget {
			if !r.store.MarkRetry(proposalID, op.Seq, errInfo) {
				// Reconciled or superseded while we were failing: stop quietly
				r.logger.Debug().Str("proposal_id", proposalID).Msg("retry skipped, operation superseded")
				return nil, nil, ErrSuperseded
			}
			delay := failure.Delay(r.backoffBase(policy), attempt)
			r.logger.Warn().
				Str("proposal_id", proposalID).
				Str("error_type", string(class)).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("transient failure, retrying proposal response")
			metrics.RetriesTotal.Inc()
			if err := r.sleep(ctx, delay); err != nil {
				return r.terminalFailure(op, opts, errInfo, code, message, policy)
			}
			continue
		}

		return r.terminalFailure(op, opts, errInfo, code, message, policy)
	}
}

func (r *Responder) terminalFailure(op types.ProposalOperation, opts Options, errInfo types.ErrorInfo, code, message string, policy failure.RetryPolicy) (*store.BatchOutcome, *types.RespondResult, error) {
	r.notifyFailure(op.ProposalID, errInfo, code, message)
	metrics.OperationsTotal.WithLabelValues(string(op.Action), "failure").Inc()

	userAction := "try again later"
	if !policy.Retryable {
		userAction = "contact support if the problem persists"
	}
	return &store.BatchOutcome{
			ProposalID:     op.ProposalID,
			Seq:            op.Seq,
			ErrInfo:        errInfo,
			OriginalStatus: opts.OriginalStatus,
		}, nil, &RespondError{
			Class:       errInfo.Type,
			Code:        code,
			Message:     policy.UserMessage,
			ShouldRetry: policy.Retryable,
			UserAction:  userAction,
		}
}

// commit writes one terminal outcome to the store. Seq guards inside the
// store make this a no-op when the operation was superseded meanwhile;
// the return value reports whether the write was applied.
func (r *Responder) commit(outcome store.BatchOutcome) bool {
	if outcome.Success {
		if !r.store.Complete(outcome.ProposalID, outcome.Seq, outcome.Status, outcome.RespondedBy) {
			r.logger.Debug().Str("proposal_id", outcome.ProposalID).Msg("completion skipped, operation superseded")
			return false
		}
		return true
	}
	if !r.store.Fail(outcome.ProposalID, outcome.Seq, outcome.ErrInfo, outcome.OriginalStatus) {
		r.logger.Debug().Str("proposal_id", outcome.ProposalID).Msg("failure skipped, operation superseded")
		return false
	}
	return true
}

// notifyCommitted publishes the success notification for an outcome that
// was actually written
func (r *Responder) notifyCommitted(outcome store.BatchOutcome, action types.ResponseAction, result *types.RespondResult, applied bool) {
	if !applied || !outcome.Success {
		return
	}
	r.notifySuccess(outcome.ProposalID, action, result, outcome.Retried)
	metrics.OperationsTotal.WithLabelValues(string(action), "success").Inc()
}

func (r *Responder) call(ctx context.Context, proposalID, responderID string, action types.ResponseAction, opts Options) (*types.RespondResult, error) {
	if action == types.ActionAccept {
		return r.api.AcceptProposal(ctx, api.AcceptRequest{
			ProposalID:         proposalID,
			UserID:             responderID,
			AutoProcessPayment: opts.AutoProcessPayment,
			SwapTargetID:       opts.SwapTargetID,
		})
	}
	return r.api.RejectProposal(ctx, api.RejectRequest{
		ProposalID:   proposalID,
		UserID:       responderID,
		Reason:       opts.Reason,
		SwapTargetID: opts.SwapTargetID,
	})
}

func (r *Responder) notifySuccess(proposalID string, action types.ResponseAction, result *types.RespondResult, retried bool) {
	eventType := events.EventProposalRejected
	message := "swap proposal rejected"
	if action == types.ActionAccept {
		eventType = events.EventProposalAccepted
		message = "swap proposal accepted"
	}
	r.broker.Publish(&events.Event{
		Type:       eventType,
		ProposalID: proposalID,
		Message:    message,
	})

	if result.Payment != nil {
		paymentType := events.EventPaymentCompleted
		if !strings.EqualFold(result.Payment.Status, "completed") {
			paymentType = events.EventPaymentFailed
		}
		r.broker.Publish(&events.Event{
			Type:       paymentType,
			ProposalID: proposalID,
			Message:    fmt.Sprintf("payment %s", result.Payment.Status),
			Metadata:   map[string]string{"payment_id": result.Payment.ID},
		})
	}
	if result.Blockchain != nil {
		r.broker.Publish(&events.Event{
			Type:       events.EventBlockchainRecorded,
			ProposalID: proposalID,
			Message:    "swap recorded on ledger",
			Metadata:   map[string]string{"tx_hash": result.Blockchain.Hash},
		})
	}
	if retried {
		r.broker.Publish(&events.Event{
			Type:       events.EventRetrySucceeded,
			ProposalID: proposalID,
			Message:    "proposal response succeeded after retry",
		})
	}
}

func (r *Responder) notifyFailure(proposalID string, errInfo types.ErrorInfo, code, message string) {
	eventType := events.EventOperationFailed
	switch {
	case errInfo.Type == types.ErrorNetwork:
		eventType = events.EventNetworkError
	case strings.Contains(strings.ToLower(code), "payment") || strings.Contains(strings.ToLower(message), "payment"):
		eventType = events.EventPaymentFailed
	}
	r.broker.Publish(&events.Event{
		Type:       eventType,
		ProposalID: proposalID,
		Message:    failure.Policy(errInfo.Type).UserMessage,
		Metadata:   map[string]string{"error_type": string(errInfo.Type), "code": code},
	})
}

func (r *Responder) backoffBase(policy failure.RetryPolicy) time.Duration {
	if r.baseDelay > 0 {
		return r.baseDelay
	}
	return policy.BaseDelay
}

func unpackError(err error) (statusCode int, code, message string) {
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, httpErr.Code, httpErr.Message
	}
	return 0, "", err.Error()
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
