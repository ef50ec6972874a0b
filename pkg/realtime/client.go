package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stayswap/swapsync/pkg/events"
	"github.com/stayswap/swapsync/pkg/log"
	"github.com/stayswap/swapsync/pkg/metrics"
	"github.com/stayswap/swapsync/pkg/types"
	"nhooyr.io/websocket"
)

// ConnState is the connection state machine position
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

const (
	// serviceName identifies this client to the connection throttle
	serviceName = "proposal-ws"

	DefaultMaxRetries = 5
	DefaultBaseDelay  = 2 * time.Second
)

// Inbound event type names on the wire
const (
	wireProposalAccepted   = "proposal_accepted"
	wireProposalRejected   = "proposal_rejected"
	wireStatusChanged      = "proposal_status_changed"
	wirePaymentUpdated     = "proposal_payment_updated"
	wireBlockchainRecorded = "proposal_blockchain_recorded"
)

// envelope is the wire framing for every inbound and outbound message
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// paymentUpdate is the payload of a proposal_payment_updated event
type paymentUpdate struct {
	ProposalID    string `json:"proposalId"`
	PaymentStatus string `json:"paymentStatus"`
}

// blockchainRecord is the payload of a proposal_blockchain_recorded event
type blockchainRecord struct {
	ProposalID      string `json:"proposalId"`
	TransactionHash string `json:"transactionHash"`
}

// Handler consumes authoritative events read off the socket. The
// reconciler implements it.
type Handler interface {
	ApplyStatusEvent(ev types.StatusEvent)
	ApplyPaymentUpdate(proposalID, paymentStatus string)
	ApplyBlockchainRecord(proposalID, txHash string)
}

// conn is the subset of the websocket connection the client uses,
// extracted so tests can inject a scripted transport
type conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Client maintains one WebSocket connection to the proposal event stream,
// tracks channel subscriptions across reconnects, and dispatches inbound
// events to the handler.
type Client struct {
	url      string
	handler  Handler
	broker   *events.Broker
	throttle *Throttle
	logger   zerolog.Logger

	maxRetries int
	baseDelay  time.Duration

	mu        sync.Mutex
	state     ConnState
	conn      conn
	proposals map[string]struct{}
	userID    string
	attempt   int
	readStop  context.CancelFunc

	// gen is bumped by Disconnect. A reconnect sleeping in backoff carries
	// the gen it was scheduled under and aborts if it no longer matches,
	// so an explicit disconnect stays disconnected.
	gen uint64

	dial  func(ctx context.Context, url string) (conn, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// Option adjusts client construction
type Option func(*Client)

// WithThrottle attaches a connection throttle checked before every dial
func WithThrottle(t *Throttle) Option {
	return func(c *Client) { c.throttle = t }
}

// WithMaxRetries overrides the reconnect attempt cap
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay overrides the reconnect backoff base
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// NewClient creates a realtime client for the given stream URL. The handler
// receives every authoritative proposal event; the broker carries
// connection lifecycle notifications.
func NewClient(url string, handler Handler, broker *events.Broker, opts ...Option) *Client {
	c := &Client{
		url:        url,
		handler:    handler,
		broker:     broker,
		logger:     log.WithComponent("realtime"),
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		state:      StateDisconnected,
		proposals:  make(map[string]struct{}),
		dial:       dialWebsocket,
		sleep:      sleepWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func dialWebsocket(ctx context.Context, url string) (conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current connection state
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the event stream and starts the read loop. A connect while
// one is already pending (locally or per the throttle) is a no-op. Dial
// failures feed the reconnect backoff.
func (c *Client) Connect(ctx context.Context) error {
	if c.throttle != nil {
		wait, err := c.throttle.Acquire(serviceName)
		if err == ErrConnectPending {
			return nil
		}
		defer c.throttle.Release(serviceName)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.connect(ctx, false, gen)
}

func (c *Client) connect(ctx context.Context, isReconnect bool, gen uint64) error {
	c.mu.Lock()
	if c.gen != gen || c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, err := c.dial(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Warn().Err(err).Str("url", c.url).Msg("event stream dial failed")
		return c.scheduleReconnect(ctx, gen)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = ws
	c.state = StateConnected
	c.attempt = 0
	c.readStop = cancel
	channels := c.subscribedChannelsLocked()
	c.mu.Unlock()

	for _, ch := range channels {
		if err := c.send(readCtx, envelope{Type: "subscribe", Channel: ch}); err != nil {
			c.logger.Warn().Err(err).Str("channel", ch).Msg("resubscribe failed")
		}
	}

	if isReconnect {
		metrics.ReconnectsTotal.Inc()
		c.broker.Publish(&events.Event{
			Type:    events.EventConnectionRestored,
			Message: "event stream connection restored",
		})
	}
	c.logger.Info().Str("url", c.url).Int("channels", len(channels)).Msg("event stream connected")

	go c.readLoop(readCtx, ws)
	return nil
}

// Disconnect closes the connection cleanly, unsubscribing every channel
// first. No reconnect is scheduled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	ws := c.conn
	cancel := c.readStop
	channels := c.subscribedChannelsLocked()
	c.conn = nil
	c.readStop = nil
	c.state = StateDisconnected
	c.gen++
	c.attempt = 0
	c.mu.Unlock()

	if ws == nil {
		return
	}
	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	for _, ch := range channels {
		_ = ws.Write(ctx, websocket.MessageText, mustMarshal(envelope{Type: "unsubscribe", Channel: ch}))
	}
	_ = ws.Close(websocket.StatusNormalClosure, "client disconnect")
	if cancel != nil {
		cancel()
	}
	c.logger.Info().Msg("event stream disconnected")
}

// SubscribeProposal tracks a proposal id and, when connected, subscribes to
// its channel. Tracked ids are resubscribed automatically after reconnects.
func (c *Client) SubscribeProposal(ctx context.Context, proposalID string) error {
	c.mu.Lock()
	c.proposals[proposalID] = struct{}{}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(ctx, envelope{Type: "subscribe", Channel: types.ProposalChannel(proposalID)})
}

// UnsubscribeProposal stops tracking a proposal id
func (c *Client) UnsubscribeProposal(ctx context.Context, proposalID string) error {
	c.mu.Lock()
	delete(c.proposals, proposalID)
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(ctx, envelope{Type: "unsubscribe", Channel: types.ProposalChannel(proposalID)})
}

// SetUser registers the authenticated user and subscribes to their
// proposal, activity and notification channels
func (c *Client) SetUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.userID = userID
	connected := c.state == StateConnected
	channels := userChannels(userID)
	c.mu.Unlock()

	if !connected {
		return nil
	}
	for _, ch := range channels {
		if err := c.send(ctx, envelope{Type: "subscribe", Channel: ch}); err != nil {
			return err
		}
	}
	return nil
}

// ClearUser unsubscribes everything and forgets the tracked user and
// proposal ids. Called on logout.
func (c *Client) ClearUser(ctx context.Context) {
	c.mu.Lock()
	channels := c.subscribedChannelsLocked()
	c.userID = ""
	c.proposals = make(map[string]struct{})
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return
	}
	for _, ch := range channels {
		_ = c.send(ctx, envelope{Type: "unsubscribe", Channel: ch})
	}
}

// TrackedProposals returns the proposal ids currently subscribed
func (c *Client) TrackedProposals() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.proposals))
	for id := range c.proposals {
		out = append(out, id)
	}
	return out
}

func userChannels(userID string) []string {
	return []string{
		types.UserProposalsChannel(userID),
		types.ProposalActivityChannel(userID),
		types.ProposalNotificationsChannel(userID),
	}
}

// subscribedChannelsLocked lists every channel the current subscription
// state implies. Caller holds c.mu.
func (c *Client) subscribedChannelsLocked() []string {
	var out []string
	if c.userID != "" {
		out = append(out, userChannels(c.userID)...)
	}
	for id := range c.proposals {
		out = append(out, types.ProposalChannel(id))
	}
	return out
}

func (c *Client) send(ctx context.Context, env envelope) error {
	c.mu.Lock()
	ws := c.conn
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("not connected")
	}
	return ws.Write(ctx, websocket.MessageText, mustMarshal(env))
}

func mustMarshal(env envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		panic(err) // envelope fields are all marshalable
	}
	return data
}

// readLoop reads frames until the connection drops. A clean close ends the
// loop; anything else schedules a reconnect.
func (c *Client) readLoop(ctx context.Context, ws conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != ws {
				// Disconnect or a newer connection already took over
				return
			}

			c.mu.Lock()
			c.conn = nil
			c.state = StateDisconnected
			gen := c.gen
			c.mu.Unlock()

			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("event stream read failed")
			_ = c.scheduleReconnect(context.Background(), gen)
			return
		}
		c.dispatch(data)
	}
}

// dispatch parses one inbound frame and hands it to the handler
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("malformed event frame")
		return
	}
	metrics.WSEventsTotal.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case wireProposalAccepted, wireProposalRejected, wireStatusChanged:
		var ev types.StatusEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.logger.Warn().Err(err).Str("type", env.Type).Msg("malformed status event payload")
			return
		}
		if ev.Status == "" {
			switch env.Type {
			case wireProposalAccepted:
				ev.Status = types.ProposalStatusAccepted
			case wireProposalRejected:
				ev.Status = types.ProposalStatusRejected
			}
		}
		if ev.RespondedAt.IsZero() {
			ev.RespondedAt = time.Now()
		}
		c.handler.ApplyStatusEvent(ev)

	case wirePaymentUpdated:
		var p paymentUpdate
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("malformed payment event payload")
			return
		}
		c.handler.ApplyPaymentUpdate(p.ProposalID, p.PaymentStatus)

	case wireBlockchainRecorded:
		var b blockchainRecord
		if err := json.Unmarshal(env.Payload, &b); err != nil {
			c.logger.Warn().Err(err).Msg("malformed blockchain event payload")
			return
		}
		c.handler.ApplyBlockchainRecord(b.ProposalID, b.TransactionHash)

	default:
		c.logger.Debug().Str("type", env.Type).Msg("ignoring unknown event type")
	}
}

// scheduleReconnect applies the backoff policy after an unclean disconnect
// or dial failure. After maxRetries attempts it gives up and publishes the
// terminal connection.lost signal. A Disconnect issued at any point before
// the backoff elapses cancels the attempt.
func (c *Client) scheduleReconnect(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	if attempt > c.maxRetries {
		c.logger.Error().Int("attempts", attempt-1).Msg("giving up on event stream reconnect")
		c.broker.Publish(&events.Event{
			Type:    events.EventConnectionLost,
			Message: "event stream unreachable, max reconnect attempts reached",
		})
		return fmt.Errorf("max reconnect attempts (%d) reached", c.maxRetries)
	}

	delay := c.reconnectDelay(attempt)
	c.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("scheduling event stream reconnect")
	if err := c.sleep(ctx, delay); err != nil {
		return err
	}
	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		return nil
	}
	return c.connect(ctx, true, gen)
}

// reconnectDelay is baseDelay doubled per prior attempt
func (c *Client) reconnectDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
