package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stayswap/swapsync/pkg/events"
	"github.com/stayswap/swapsync/pkg/log"
	"github.com/stayswap/swapsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

// fakeConn is a scripted transport. Frames pushed to inbound are returned
// by Read; outbound records every written envelope.
type fakeConn struct {
	inbound chan []byte
	readErr error

	mu       sync.Mutex
	outbound []envelope
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (f *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data, ok := <-f.inbound:
		if !ok {
			err := f.readErr
			if err == nil {
				err = errors.New("connection reset")
			}
			return 0, nil, err
		}
		return websocket.MessageText, data, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.mu.Lock()
	f.outbound = append(f.outbound, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close(code websocket.StatusCode, reason string) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) sent() []envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]envelope, len(f.outbound))
	copy(out, f.outbound)
	return out
}

// recordingHandler captures everything dispatched off the socket
type recordingHandler struct {
	mu         sync.Mutex
	statuses   []types.StatusEvent
	payments   []paymentUpdate
	blockchain []blockchainRecord
}

func (h *recordingHandler) ApplyStatusEvent(ev types.StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, ev)
}

func (h *recordingHandler) ApplyPaymentUpdate(proposalID, paymentStatus string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payments = append(h.payments, paymentUpdate{ProposalID: proposalID, PaymentStatus: paymentStatus})
}

func (h *recordingHandler) ApplyBlockchainRecord(proposalID, txHash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blockchain = append(h.blockchain, blockchainRecord{ProposalID: proposalID, TransactionHash: txHash})
}

func (h *recordingHandler) statusEvents() []types.StatusEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.StatusEvent, len(h.statuses))
	copy(out, h.statuses)
	return out
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *recordingHandler, *events.Broker) {
	t.Helper()
	handler := &recordingHandler{}
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	c := NewClient("ws://localhost/events", handler, broker, opts...)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c, handler, broker
}

func frame(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(envelope{Type: eventType, Payload: raw})
	require.NoError(t, err)
	return data
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestConnectSubscribesTrackedChannels(t *testing.T) {
	c, _, _ := newTestClient(t)
	fc := newFakeConn()
	c.dial = func(ctx context.Context, url string) (conn, error) { return fc, nil }

	require.NoError(t, c.SubscribeProposal(context.Background(), "p1"))
	require.NoError(t, c.SetUser(context.Background(), "u1"))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())

	channels := make(map[string]bool)
	for _, env := range fc.sent() {
		require.Equal(t, "subscribe", env.Type)
		channels[env.Channel] = true
	}
	assert.True(t, channels["proposal:p1"])
	assert.True(t, channels["user_proposals:u1"])
	assert.True(t, channels["proposal_activity:u1"])
	assert.True(t, channels["proposal_notifications:u1"])

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, fc.closed)
}

func TestDispatchStatusEvents(t *testing.T) {
	c, handler, _ := newTestClient(t)
	fc := newFakeConn()
	c.dial = func(ctx context.Context, url string) (conn, error) { return fc, nil }
	require.NoError(t, c.Connect(context.Background()))

	respondedAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	fc.inbound <- frame(t, wireStatusChanged, types.StatusEvent{
		ProposalID:  "p1",
		Status:      types.ProposalStatusAccepted,
		RespondedBy: "u2",
		RespondedAt: respondedAt,
	})
	// proposal_rejected carries no explicit status; the type implies it
	fc.inbound <- frame(t, wireProposalRejected, map[string]string{"proposalId": "p2"})
	fc.inbound <- frame(t, wirePaymentUpdated, paymentUpdate{ProposalID: "p1", PaymentStatus: "completed"})
	fc.inbound <- frame(t, wireBlockchainRecorded, blockchainRecord{ProposalID: "p1", TransactionHash: "0xabc"})

	waitFor(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.statuses) == 2 && len(handler.payments) == 1 && len(handler.blockchain) == 1
	})

	statuses := handler.statusEvents()
	assert.Equal(t, "p1", statuses[0].ProposalID)
	assert.Equal(t, types.ProposalStatusAccepted, statuses[0].Status)
	assert.Equal(t, respondedAt, statuses[0].RespondedAt)
	assert.Equal(t, "p2", statuses[1].ProposalID)
	assert.Equal(t, types.ProposalStatusRejected, statuses[1].Status)
	assert.False(t, statuses[1].RespondedAt.IsZero())

	c.Disconnect()
}

func TestDispatchIgnoresMalformedAndUnknownFrames(t *testing.T) {
	c, handler, _ := newTestClient(t)
	fc := newFakeConn()
	c.dial = func(ctx context.Context, url string) (conn, error) { return fc, nil }
	require.NoError(t, c.Connect(context.Background()))

	fc.inbound <- []byte("{not json")
	fc.inbound <- frame(t, "presence_changed", map[string]string{"userId": "u9"})
	fc.inbound <- frame(t, wireStatusChanged, types.StatusEvent{
		ProposalID: "p1",
		Status:     types.ProposalStatusExpired,
	})

	waitFor(t, func() bool { return len(handler.statusEvents()) == 1 })
	assert.Equal(t, types.ProposalStatusExpired, handler.statusEvents()[0].Status)

	c.Disconnect()
}

func TestReconnectResubscribesAfterUncleanClose(t *testing.T) {
	c, _, _ := newTestClient(t)

	first := newFakeConn()
	second := newFakeConn()
	conns := []*fakeConn{first, second}
	var mu sync.Mutex
	c.dial = func(ctx context.Context, url string) (conn, error) {
		mu.Lock()
		defer mu.Unlock()
		fc := conns[0]
		if len(conns) > 1 {
			conns = conns[1:]
		}
		return fc, nil
	}

	require.NoError(t, c.SubscribeProposal(context.Background(), "p1"))
	require.NoError(t, c.Connect(context.Background()))

	// Unclean close of the first connection
	close(first.inbound)

	waitFor(t, func() bool {
		for _, env := range second.sent() {
			if env.Type == "subscribe" && env.Channel == "proposal:p1" {
				return true
			}
		}
		return false
	})
	assert.Equal(t, StateConnected, c.State())

	c.Disconnect()
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	handler := &recordingHandler{}
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	c := NewClient("ws://localhost/events", handler, broker)

	// sleep signals when the backoff starts and blocks until released
	backoffEntered := make(chan struct{}, 1)
	release := make(chan struct{})
	c.sleep = func(ctx context.Context, d time.Duration) error {
		backoffEntered <- struct{}{}
		<-release
		return nil
	}

	first := newFakeConn()
	var mu sync.Mutex
	dials := 0
	c.dial = func(ctx context.Context, url string) (conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return first, nil
	}

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, StateConnected, c.State())

	// Unclean close puts the read loop into reconnect backoff
	close(first.inbound)
	<-backoffEntered

	// An explicit disconnect while the backoff sleeps must stick
	c.Disconnect()
	require.Equal(t, StateDisconnected, c.State())
	close(release)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	totalDials := dials
	mu.Unlock()
	assert.Equal(t, 1, totalDials)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestReconnectGivesUpAfterMaxRetries(t *testing.T) {
	c, _, broker := newTestClient(t, WithMaxRetries(2))
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	dials := 0
	c.dial = func(ctx context.Context, url string) (conn, error) {
		dials++
		return nil, errors.New("connection refused")
	}

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, dials) // initial attempt + 2 retries
	assert.Equal(t, StateDisconnected, c.State())

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventConnectionLost, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected connection.lost event")
	}
}

func TestReconnectDelayDoubles(t *testing.T) {
	c, _, _ := newTestClient(t, WithBaseDelay(2*time.Second))

	assert.Equal(t, 2*time.Second, c.reconnectDelay(1))
	assert.Equal(t, 4*time.Second, c.reconnectDelay(2))
	assert.Equal(t, 8*time.Second, c.reconnectDelay(3))
	assert.Equal(t, 32*time.Second, c.reconnectDelay(5))
}

func TestClearUserForgetsSubscriptions(t *testing.T) {
	c, _, _ := newTestClient(t)
	fc := newFakeConn()
	c.dial = func(ctx context.Context, url string) (conn, error) { return fc, nil }

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.SetUser(context.Background(), "u1"))
	require.NoError(t, c.SubscribeProposal(context.Background(), "p1"))
	require.Len(t, c.TrackedProposals(), 1)

	c.ClearUser(context.Background())
	assert.Empty(t, c.TrackedProposals())

	unsubscribed := make(map[string]bool)
	for _, env := range fc.sent() {
		if env.Type == "unsubscribe" {
			unsubscribed[env.Channel] = true
		}
	}
	assert.True(t, unsubscribed["proposal:p1"])
	assert.True(t, unsubscribed["user_proposals:u1"])

	c.Disconnect()
}

func TestThrottleRejectsPendingConnect(t *testing.T) {
	th := NewThrottle(100 * time.Millisecond)

	wait, err := th.Acquire("proposal-ws")
	require.NoError(t, err)
	assert.Zero(t, wait)
	assert.True(t, th.Pending("proposal-ws"))

	_, err = th.Acquire("proposal-ws")
	assert.ErrorIs(t, err, ErrConnectPending)

	// Independent services are unaffected
	_, err = th.Acquire("payments-ws")
	assert.NoError(t, err)

	th.Release("proposal-ws")
	assert.False(t, th.Pending("proposal-ws"))
}

func TestThrottleDebounce(t *testing.T) {
	th := NewThrottle(time.Second)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	_, err := th.Acquire("proposal-ws")
	require.NoError(t, err)
	th.Release("proposal-ws")

	// 400ms later the remaining debounce window applies
	now = now.Add(400 * time.Millisecond)
	wait, err := th.Acquire("proposal-ws")
	require.NoError(t, err)
	assert.Equal(t, 600*time.Millisecond, wait)
	th.Release("proposal-ws")

	now = now.Add(2 * time.Second)
	wait, err = th.Acquire("proposal-ws")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestConnectWithThrottlePendingIsNoOp(t *testing.T) {
	th := NewThrottle(0)
	c, _, _ := newTestClient(t, WithThrottle(th))

	_, err := th.Acquire(serviceName)
	require.NoError(t, err)

	dials := 0
	c.dial = func(ctx context.Context, url string) (conn, error) {
		dials++
		return newFakeConn(), nil
	}

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 0, dials)
	assert.Equal(t, StateDisconnected, c.State())
}
