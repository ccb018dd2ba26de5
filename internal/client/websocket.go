package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
)

// ErrConnectionClosed resolves control requests still waiting when the connection is torn down.
var ErrConnectionClosed = errs.E(errs.Network, "subscriber", errors.New("websocket connection closed"))

// LogsNotification represents a logs notification
type LogsNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string      `json:"signature"`
				Err       interface{} `json:"err"`
				Logs      []string    `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (n *LogsNotification) Signature() string { return n.Params.Result.Value.Signature }
func (n *LogsNotification) Logs() []string    { return n.Params.Result.Value.Logs }
func (n *LogsNotification) Failed() bool      { return n.Params.Result.Value.Err != nil }
func (n *LogsNotification) Slot() uint64      { return n.Params.Result.Context.Slot }

// ControlKind selects what a control request does.
type ControlKind int

const (
	ControlSubscribe ControlKind = iota
	ControlUnsubscribe
	ControlHealth
)

// ControlRequest is handled by the connection's control goroutine. Reply is
// resolved exactly once.
type ControlRequest struct {
	Kind           ControlKind
	Mentions       string
	SubscriptionID uint64
	Reply          chan ControlReply
}

// ControlReply answers a ControlRequest.
type ControlReply struct {
	SubscriptionID uint64
	Healthy        bool
	Received       uint64
	Err            error
}

type wsMessage struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *uint64           `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  interface{}       `json:"params,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *jsonrpc.RPCError `json:"error,omitempty"`
}

type pendingCall struct {
	kind     ControlKind
	mentions string
	subID    uint64
	reply    chan ControlReply
}

// Subscriber holds a logsSubscribe connection. Run owns the socket; the
// heartbeat, reader and control handler run while it is up.
type Subscriber struct {
	url            string
	logger         *logger.Logger
	dialer         *websocket.Dialer
	pingInterval   time.Duration
	readTimeout    time.Duration
	reconnectDelay time.Duration

	notifications chan LogsNotification
	control       chan ControlRequest

	mu       sync.RWMutex
	mentions []string
	active   map[uint64]string
	pending  map[uint64]pendingCall

	nextID   atomic.Uint64
	received atomic.Uint64
	running  atomic.Bool
}

// SubscriberConfig contains configuration for the subscriber
type SubscriberConfig struct {
	URL            string
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	ReconnectDelay time.Duration
	Buffer         int
}

// NewSubscriber creates a subscriber; nothing is dialled until Run.
func NewSubscriber(cfg SubscriberConfig, log *logger.Logger) *Subscriber {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Buffer == 0 {
		cfg.Buffer = 1024
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	return &Subscriber{
		url:            cfg.URL,
		logger:         log,
		dialer:         &dialer,
		pingInterval:   cfg.PingInterval,
		readTimeout:    cfg.ReadTimeout,
		reconnectDelay: cfg.ReconnectDelay,
		notifications:  make(chan LogsNotification, cfg.Buffer),
		control:        make(chan ControlRequest),
		active:         make(map[uint64]string),
		pending:        make(map[uint64]pendingCall),
	}
}

// Notifications delivers decoded logsNotification messages.
func (s *Subscriber) Notifications() <-chan LogsNotification {
	return s.notifications
}

// Listen keeps Run going, reconnecting after each teardown until ctx ends.
func (s *Subscriber) Listen(ctx context.Context) error {
	for {
		err := s.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WithError(err).WithField("delay", s.reconnectDelay).Warn("⚠️ Connection lost, attempting to reconnect...")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

// Run dials once and serves the connection until the reader or the control
// handler stops, the heartbeat fails to write, or ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.WithField("url", s.url).Info("🔌 Connecting to Solana WebSocket...")

	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			s.logger.WithFields(logrus.Fields{
				"status_code": resp.StatusCode,
				"url":         s.url,
			}).Error("❌ WebSocket connection failed")
		}
		return errs.E(errs.Network, "subscriber dial", err)
	}
	defer conn.Close()

	conn.SetReadLimit(1024 * 1024)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	s.running.Store(true)
	defer s.running.Store(false)

	s.logger.WithField("url", s.url).Info("✅ WebSocket connected successfully")

	if err := s.resubscribe(conn); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := heartbeat(runCtx, conn, s.pingInterval, s.logger); err != nil {
			stopped <- err
		}
	}()
	go func() {
		defer wg.Done()
		stopped <- s.readLoop(runCtx, conn)
	}()
	go func() {
		defer wg.Done()
		stopped <- s.controlLoop(runCtx, conn)
	}()

	var reason error
	select {
	case reason = <-stopped:
	case <-ctx.Done():
		reason = ctx.Err()
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.Close()
	wg.Wait()

	s.failPending()
	s.logger.WithError(reason).Info("🛑 WebSocket connection closed")
	return reason
}

// resubscribe replays every known subscription on a fresh connection.
func (s *Subscriber) resubscribe(conn *websocket.Conn) error {
	s.mu.Lock()
	s.active = make(map[uint64]string)
	mentions := append([]string(nil), s.mentions...)
	s.mu.Unlock()

	for _, m := range mentions {
		if err := s.send(conn, pendingCall{kind: ControlSubscribe, mentions: m}); err != nil {
			return err
		}
	}
	if len(mentions) > 0 {
		s.logger.WithField("subscriptions", len(mentions)).Info("📡 Resubscribed")
	}
	return nil
}

// heartbeat returns nil when ctx ends and an error only when a ping cannot be written.
func heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return errs.E(errs.Network, "heartbeat", err)
			}
			log.Debug("🏓 Sent ping")
		}
	}
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer s.logger.Debug("🛑 Message handler stopped")

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Error("❌ WebSocket read error")
			}
			return errs.E(errs.Network, "websocket read", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.WithError(err).WithField("data", truncate(string(data), 200)).Error("❌ Failed to unmarshal WebSocket message")
			continue
		}

		if msg.ID != nil {
			s.resolve(*msg.ID, msg)
			continue
		}

		if msg.Method != "logsNotification" {
			continue
		}

		var n LogsNotification
		if err := json.Unmarshal(data, &n); err != nil {
			s.logger.WithError(err).Error("❌ Failed to unmarshal logs notification")
			continue
		}
		s.received.Add(1)

		select {
		case s.notifications <- n:
		default:
			s.logger.WithField("signature", n.Signature()).Warn("⚠️ Notification buffer full, dropping")
		}
	}
}

func (s *Subscriber) controlLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.control:
			switch req.Kind {
			case ControlHealth:
				req.Reply <- ControlReply{Healthy: true, Received: s.received.Load()}
			case ControlSubscribe:
				if err := s.subscribe(conn, req); err != nil {
					return err
				}
			case ControlUnsubscribe:
				if err := s.send(conn, pendingCall{kind: ControlUnsubscribe, subID: req.SubscriptionID, reply: req.Reply}); err != nil {
					return err
				}
			default:
				req.Reply <- ControlReply{Err: fmt.Errorf("unknown control request %d", req.Kind)}
			}
		}
	}
}

// subscribe records the mention before the frame goes out, so a connection
// lost ahead of the ack replays it on reconnect. A mention that is already
// confirmed answers with its id; one whose replay is in flight takes over
// that call's reply.
func (s *Subscriber) subscribe(conn *websocket.Conn, req ControlRequest) error {
	s.mu.Lock()
	for id, m := range s.active {
		if m == req.Mentions {
			s.mu.Unlock()
			req.Reply <- ControlReply{SubscriptionID: id}
			return nil
		}
	}
	for id, call := range s.pending {
		if call.kind == ControlSubscribe && call.mentions == req.Mentions && call.reply == nil {
			call.reply = req.Reply
			s.pending[id] = call
			s.mu.Unlock()
			return nil
		}
	}
	if !contains(s.mentions, req.Mentions) {
		s.mentions = append(s.mentions, req.Mentions)
	}
	s.mu.Unlock()

	return s.send(conn, pendingCall{kind: ControlSubscribe, mentions: req.Mentions, reply: req.Reply})
}

// send writes the subscribe/unsubscribe frame and parks the call until the
// reader sees the matching id.
func (s *Subscriber) send(conn *websocket.Conn, call pendingCall) error {
	id := s.nextID.Add(1)

	msg := wsMessage{JSONRPC: "2.0", ID: &id}
	switch call.kind {
	case ControlSubscribe:
		msg.Method = "logsSubscribe"
		msg.Params = logsSubscribeParams(call.mentions)
	case ControlUnsubscribe:
		msg.Method = "logsUnsubscribe"
		msg.Params = []interface{}{call.subID}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.mu.Lock()
	s.pending[id] = call
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"method": msg.Method,
		"id":     id,
	}).Debug("📤 Sending WebSocket message")

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		if call.reply != nil {
			call.reply <- ControlReply{Err: errs.E(errs.Network, msg.Method, err)}
		}
		return errs.E(errs.Network, msg.Method, err)
	}
	return nil
}

func (s *Subscriber) resolve(id uint64, msg wsMessage) {
	s.mu.Lock()
	call, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	reply := ControlReply{}
	switch {
	case msg.Error != nil:
		reply.Err = errs.Errorf(errs.Rpc, "subscriber", "RPC error %d: %s", msg.Error.Code, msg.Error.Message)
		if call.kind == ControlSubscribe {
			s.forget(call.mentions)
		}
		if call.reply == nil {
			s.logger.WithError(reply.Err).WithField("mentions", call.mentions).Error("❌ Resubscribe rejected")
		}
	case call.kind == ControlSubscribe:
		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			reply.Err = errs.E(errs.Parse, "logsSubscribe", err)
			break
		}
		reply.SubscriptionID = subID
		s.mu.Lock()
		s.active[subID] = call.mentions
		if !contains(s.mentions, call.mentions) {
			s.mentions = append(s.mentions, call.mentions)
		}
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"subscription": subID,
			"mentions":     call.mentions,
		}).Info("✅ WebSocket subscription confirmed")
	case call.kind == ControlUnsubscribe:
		reply.SubscriptionID = call.subID
		s.mu.Lock()
		mentions := s.active[call.subID]
		delete(s.active, call.subID)
		s.mentions = remove(s.mentions, mentions)
		s.mu.Unlock()
		s.logger.WithField("subscription", call.subID).Info("🗑️ Subscription cancelled")
	}

	if call.reply != nil {
		call.reply <- reply
	}
}

// forget drops a rejected mention unless another subscription still serves it.
func (s *Subscriber) forget(mentions string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.active {
		if m == mentions {
			return
		}
	}
	s.mentions = remove(s.mentions, mentions)
}

// failPending answers every parked call with ErrConnectionClosed. Subscribe
// mentions stay recorded and are replayed by the next connection.
func (s *Subscriber) failPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uint64]pendingCall)
	s.mu.Unlock()

	for _, call := range pending {
		if call.reply != nil {
			call.reply <- ControlReply{Err: ErrConnectionClosed}
		}
	}
}

func (s *Subscriber) do(ctx context.Context, req ControlRequest) (ControlReply, error) {
	req.Reply = make(chan ControlReply, 1)
	select {
	case s.control <- req:
	case <-ctx.Done():
		return ControlReply{}, ctx.Err()
	}
	select {
	case reply := <-req.Reply:
		return reply, reply.Err
	case <-ctx.Done():
		return ControlReply{}, ctx.Err()
	}
}

// Subscribe asks for logs mentioning an address ("all" for every transaction).
// Asking again for a confirmed mention returns the existing id.
func (s *Subscriber) Subscribe(ctx context.Context, mentions string) (uint64, error) {
	reply, err := s.do(ctx, ControlRequest{Kind: ControlSubscribe, Mentions: mentions})
	return reply.SubscriptionID, err
}

func (s *Subscriber) Unsubscribe(ctx context.Context, subscriptionID uint64) error {
	_, err := s.do(ctx, ControlRequest{Kind: ControlUnsubscribe, SubscriptionID: subscriptionID})
	return err
}

// Health reports whether the control handler is serving and how many notifications arrived.
func (s *Subscriber) Health(ctx context.Context) (ControlReply, error) {
	return s.do(ctx, ControlRequest{Kind: ControlHealth})
}

// Running reports whether a connection is currently up.
func (s *Subscriber) Running() bool {
	return s.running.Load()
}

// Subscriptions returns the confirmed subscription ids.
func (s *Subscriber) Subscriptions() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

func logsSubscribeParams(mentions string) []interface{} {
	filter := interface{}("all")
	if mentions != "" && mentions != "all" {
		filter = map[string]interface{}{"mentions": []string{mentions}}
	}
	return []interface{}{
		filter,
		map[string]interface{}{"commitment": CommitmentProcessed},
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
