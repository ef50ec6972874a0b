package responder

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stayswap/swapsync/pkg/api"
	"github.com/stayswap/swapsync/pkg/events"
	"github.com/stayswap/swapsync/pkg/log"
	"github.com/stayswap/swapsync/pkg/store"
	"github.com/stayswap/swapsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

// fakeAPI scripts per-call outcomes and counts network calls
type fakeAPI struct {
	calls     int
	responses []fakeResponse
}

type fakeResponse struct {
	result *types.RespondResult
	err    error
}

func (f *fakeAPI) next() (*types.RespondResult, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.result, r.err
}

func (f *fakeAPI) AcceptProposal(ctx context.Context, req api.AcceptRequest) (*types.RespondResult, error) {
	return f.next()
}

func (f *fakeAPI) RejectProposal(ctx context.Context, req api.RejectRequest) (*types.RespondResult, error) {
	return f.next()
}

func (f *fakeAPI) GetProposalStatus(ctx context.Context, proposalID string) (*api.ProposalStatusResponse, error) {
	return &api.ProposalStatusResponse{Status: types.ProposalStatusPending}, nil
}

func okResult(id string, status types.ProposalStatus) fakeResponse {
	return fakeResponse{result: &types.RespondResult{
		Proposal: &types.Proposal{ID: id, Status: status},
	}}
}

func httpFailure(code int, msg string) fakeResponse {
	return fakeResponse{err: &api.HTTPError{StatusCode: code, Message: msg}}
}

func newTestResponder(t *testing.T, client api.Client) (*Responder, *store.Store, events.Subscriber) {
	t.Helper()
	st := store.NewStore()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	sub := broker.Subscribe()
	t.Cleanup(func() { broker.Unsubscribe(sub) })

	r := NewResponder(st, client, broker)
	r.baseDelay = time.Millisecond
	return r, st, sub
}

// drainEvents collects every event delivered within a short window
func drainEvents(sub events.Subscriber) []*events.Event {
	var out []*events.Event
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-sub:
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}

func eventTypes(evs []*events.Event) []events.EventType {
	out := make([]events.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// TestRespondFirstTrySuccess is Scenario A: clean success leaves no tracked
// state and emits one success notification
func TestRespondFirstTrySuccess(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{okResult("p1", types.ProposalStatusAccepted)}}
	r, st, sub := newTestResponder(t, client)

	result, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, client.calls)

	_, tracked := st.Operation("p1")
	assert.False(t, tracked)
	assert.False(t, st.IsOptimisticallyAccepted("p1"))
	assert.False(t, st.IsOptimisticallyRejected("p1"))

	evs := drainEvents(sub)
	assert.Equal(t, []events.EventType{events.EventProposalAccepted}, eventTypes(evs))
}

// TestRespondRetriesThenSucceeds is Scenario B: two network failures then
// success means exactly 3 calls and a retry-succeeded notification
func TestRespondRetriesThenSucceeds(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{
		httpFailure(0, "network unreachable"),
		httpFailure(0, "connection reset"),
		okResult("p1", types.ProposalStatusAccepted),
	}}
	r, st, sub := newTestResponder(t, client)

	result, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{MaxRetries: 3})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, client.calls)

	_, tracked := st.Operation("p1")
	assert.False(t, tracked)
	assert.False(t, st.IsOptimisticallyAccepted("p1"))

	typs := eventTypes(drainEvents(sub))
	assert.Contains(t, typs, events.EventProposalAccepted)
	assert.Contains(t, typs, events.EventRetrySucceeded)
}

// TestRespondPermissionFailure is Scenario C: a 403 makes exactly one call,
// no retries, terminal fail state with a rollback record
func TestRespondPermissionFailure(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{httpFailure(403, "forbidden")}}
	r, st, _ := newTestResponder(t, client)

	original := types.ProposalStatusPending
	_, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{
		OriginalStatus: &original,
	})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)

	var respErr *RespondError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, types.ErrorPermission, respErr.Class)
	assert.False(t, respErr.ShouldRetry)

	op, tracked := st.Operation("p1")
	require.True(t, tracked)
	assert.False(t, op.Loading)
	assert.NotEmpty(t, op.Error)

	rollback, ok := st.Rollback("p1")
	require.True(t, ok)
	assert.Equal(t, types.ProposalStatusPending, rollback.OriginalStatus)
}

// TestRespondDuplicateGuard tests that a second call while loading is
// rejected without mutating the store
func TestRespondDuplicateGuard(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{okResult("p1", types.ProposalStatusAccepted)}}
	r, st, _ := newTestResponder(t, client)

	st.Begin("p1", types.ActionAccept, nil, 0, 0)
	before := st.OperationStatistics()

	_, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{})
	assert.ErrorIs(t, err, ErrOperationInProgress)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, before, st.OperationStatistics())
}

// TestRespondSupersededByReconciliation is Scenario D: an authoritative
// event removing the operation mid-flight means the eventual resolution
// writes nothing
func TestRespondSupersededByReconciliation(t *testing.T) {
	st := store.NewStore()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	// The remote call reconciles the proposal away before resolving
	client := &reconcilingAPI{store: st}
	r := NewResponder(st, client, broker)
	r.baseDelay = time.Millisecond

	result, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{})
	require.NoError(t, err)
	require.NotNil(t, result)

	// The completion was skipped: no local feed entry was appended on top
	// of the reconciled one, and no operation exists
	_, tracked := st.Operation("p1")
	assert.False(t, tracked)

	recent := st.RecentResponses()
	require.Len(t, recent, 1)
	assert.Equal(t, types.SourceRemote, recent[0].Source)

	// The skipped completion must not announce a success of its own
	assert.NotContains(t, eventTypes(drainEvents(sub)), events.EventProposalAccepted)
}

// reconcilingAPI applies a status event while the call is in flight
type reconcilingAPI struct {
	store *store.Store
}

func (f *reconcilingAPI) AcceptProposal(ctx context.Context, req api.AcceptRequest) (*types.RespondResult, error) {
	f.store.ApplyStatusEvent(types.StatusEvent{
		ProposalID:  req.ProposalID,
		Status:      types.ProposalStatusAccepted,
		RespondedAt: time.Now(),
	})
	return &types.RespondResult{
		Proposal: &types.Proposal{ID: req.ProposalID, Status: types.ProposalStatusAccepted},
	}, nil
}

func (f *reconcilingAPI) RejectProposal(ctx context.Context, req api.RejectRequest) (*types.RespondResult, error) {
	return nil, errors.New("not used")
}

func (f *reconcilingAPI) GetProposalStatus(ctx context.Context, proposalID string) (*api.ProposalStatusResponse, error) {
	return nil, errors.New("not used")
}

// TestRespondBatchPartialFailure is Scenario E: p1 succeeds and p2 fails,
// with no optimistic entries for either id
func TestRespondBatchPartialFailure(t *testing.T) {
	client := &perProposalAPI{outcomes: map[string]fakeResponse{
		"p1": okResult("p1", types.ProposalStatusRejected),
		"p2": httpFailure(400, "proposal already answered"),
	}}
	r, st, _ := newTestResponder(t, client)

	results := r.RespondBatch(context.Background(), []string{"p1", "p2"}, "u1", types.ActionReject, Options{})
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)

	assert.False(t, st.IsOptimisticallyRejected("p1"))
	assert.False(t, st.IsOptimisticallyRejected("p2"))

	_, tracked := st.Operation("p1")
	assert.False(t, tracked)
	op, tracked := st.Operation("p2")
	require.True(t, tracked)
	assert.False(t, op.Loading)
	assert.NotEmpty(t, op.Error)
}

// perProposalAPI scripts outcomes keyed by proposal id
type perProposalAPI struct {
	outcomes map[string]fakeResponse
}

func (f *perProposalAPI) respond(id string) (*types.RespondResult, error) {
	r := f.outcomes[id]
	return r.result, r.err
}

func (f *perProposalAPI) AcceptProposal(ctx context.Context, req api.AcceptRequest) (*types.RespondResult, error) {
	return f.respond(req.ProposalID)
}

func (f *perProposalAPI) RejectProposal(ctx context.Context, req api.RejectRequest) (*types.RespondResult, error) {
	return f.respond(req.ProposalID)
}

func (f *perProposalAPI) GetProposalStatus(ctx context.Context, proposalID string) (*api.ProposalStatusResponse, error) {
	return nil, errors.New("not used")
}

// TestRespondAuthShortCircuit tests that a 401 stops immediately and raises
// the re-authentication signal
func TestRespondAuthShortCircuit(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{httpFailure(401, "token expired")}}
	r, st, sub := newTestResponder(t, client)

	_, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)

	typs := eventTypes(drainEvents(sub))
	assert.Contains(t, typs, events.EventAuthRequired)

	op, tracked := st.Operation("p1")
	require.True(t, tracked)
	assert.False(t, op.Loading)
}

// TestRespondRetryBudget tests the maxRetries+1 network-call bound
func TestRespondRetryBudget(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{httpFailure(0, "network down")}}
	r, _, _ := newTestResponder(t, client)

	_, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{MaxRetries: 3})
	require.Error(t, err)
	assert.Equal(t, 4, client.calls) // maxRetries + 1
}

// TestManualRetry tests Retry over a failed operation
func TestManualRetry(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{
		httpFailure(500, "internal error"),
		httpFailure(500, "internal error"),
		httpFailure(500, "internal error"),
		okResult("p1", types.ProposalStatusAccepted),
	}}
	r, st, sub := newTestResponder(t, client)

	_, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{})
	require.Error(t, err)
	require.True(t, st.CanRetry("p1"))

	result, err := r.Retry(context.Background(), "p1", "u1", Options{})
	require.NoError(t, err)
	require.NotNil(t, result)

	_, tracked := st.Operation("p1")
	assert.False(t, tracked)

	typs := eventTypes(drainEvents(sub))
	assert.Contains(t, typs, events.EventRetrySucceeded)
}

// TestManualRetryRequiresFailedOperation tests the Retry precondition
func TestManualRetryRequiresFailedOperation(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{okResult("p1", types.ProposalStatusAccepted)}}
	r, _, _ := newTestResponder(t, client)

	_, err := r.Retry(context.Background(), "p1", "u1", Options{})
	assert.ErrorIs(t, err, ErrNotRetryable)
}

// TestRollback tests restoring the prior status and discarding the record
func TestRollback(t *testing.T) {
	client := &fakeAPI{responses: []fakeResponse{httpFailure(403, "forbidden")}}
	r, st, _ := newTestResponder(t, client)

	original := types.ProposalStatusPending
	_, err := r.Respond(context.Background(), "p1", "u1", types.ActionAccept, Options{
		OriginalStatus: &original,
	})
	require.Error(t, err)

	restored, err := r.Rollback("p1")
	require.NoError(t, err)
	assert.Equal(t, types.ProposalStatusPending, restored)

	_, ok := st.Rollback("p1")
	assert.False(t, ok)
	_, tracked := st.Operation("p1")
	assert.False(t, tracked)

	recent := st.RecentResponses()
	require.NotEmpty(t, recent)
	assert.Equal(t, types.ProposalStatusPending, recent[len(recent)-1].Status)
}

// TestRollbackWithoutRecord tests the no-rollback-data error
func TestRollbackWithoutRecord(t *testing.T) {
	client := &fakeAPI{}
	r, st, _ := newTestResponder(t, client)
	before := st.OperationStatistics()

	_, err := r.Rollback("p1")
	assert.ErrorIs(t, err, ErrNoRollbackData)
	assert.Equal(t, before, st.OperationStatistics())
}

// TestRespondInvalidAction tests action validation
func TestRespondInvalidAction(t *testing.T) {
	client := &fakeAPI{}
	r, _, _ := newTestResponder(t, client)

	_, err := r.Respond(context.Background(), "p1", "u1", types.ResponseAction("defer"), Options{})
	assert.Error(t, err)
	assert.Equal(t, 0, client.calls)
}
