package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
	"pump-sniper-go/internal/pricing"
	"pump-sniper-go/internal/pumpfun"
)

type curveWatch struct {
	curve solana.PublicKey
	subID uint64
}

type accountMessage struct {
	ID     *uint64           `json:"id,omitempty"`
	Method string            `json:"method,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *jsonrpc.RPCError `json:"error,omitempty"`
	Params struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value *struct {
				Data *rpc.DataBytesOrJSON `json:"data"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// CurveSubscriber watches the bonding curve of each subscribed mint over
// accountSubscribe and writes every new spot price into the cache.
// Mints subscribed while no connection is up are sent once Run connects.
type CurveSubscriber struct {
	url            string
	logger         *logger.Logger
	dialer         *websocket.Dialer
	cache          *pricing.PriceCache
	pingInterval   time.Duration
	readTimeout    time.Duration
	reconnectDelay time.Duration

	mu      sync.RWMutex
	mints   map[string]*curveWatch
	bySub   map[uint64]string
	pending map[uint64]string
	conn    *websocket.Conn
	running bool

	writeMu sync.Mutex
	nextID  atomic.Uint64
	updates atomic.Uint64
}

func NewCurveSubscriber(cfg SubscriberConfig, cache *pricing.PriceCache, log *logger.Logger) *CurveSubscriber {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	return &CurveSubscriber{
		url:            cfg.URL,
		logger:         log,
		dialer:         &dialer,
		cache:          cache,
		pingInterval:   cfg.PingInterval,
		readTimeout:    cfg.ReadTimeout,
		reconnectDelay: cfg.ReconnectDelay,
		mints:          make(map[string]*curveWatch),
		bySub:          make(map[uint64]string),
		pending:        make(map[uint64]string),
	}
}

// Subscribe starts streaming the curve price of mint. Subscribing twice is a no-op.
func (s *CurveSubscriber) Subscribe(_ context.Context, mint solana.PublicKey) error {
	curve, err := pumpfun.DeriveBondingCurve(mint)
	if err != nil {
		return errs.E(errs.Internal, "curve subscribe", err)
	}

	key := mint.String()
	s.mu.Lock()
	if _, ok := s.mints[key]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mints[key] = &curveWatch{curve: curve}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.write(conn, "accountSubscribe", accountSubscribeParams(curve), key)
}

// Unsubscribe stops streaming mint and drops its cached price.
func (s *CurveSubscriber) Unsubscribe(_ context.Context, mint solana.PublicKey) error {
	key := mint.String()
	s.mu.Lock()
	w, ok := s.mints[key]
	delete(s.mints, key)
	if ok && w.subID != 0 {
		delete(s.bySub, w.subID)
	}
	conn := s.conn
	s.mu.Unlock()

	if !ok {
		return nil
	}
	s.cache.Remove(key)
	if conn == nil || w.subID == 0 {
		return nil
	}
	return s.write(conn, "accountUnsubscribe", []interface{}{w.subID}, "")
}

// GetPrice returns the streamed price of a subscribed mint while it is fresh.
func (s *CurveSubscriber) GetPrice(mint solana.PublicKey) (float64, bool) {
	key := mint.String()
	s.mu.RLock()
	_, ok := s.mints[key]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return s.cache.Get(key)
}

// Running reports whether a connection is currently up.
func (s *CurveSubscriber) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Watched returns how many mints are subscribed.
func (s *CurveSubscriber) Watched() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mints)
}

// Updates counts the curve notifications applied to the cache.
func (s *CurveSubscriber) Updates() uint64 {
	return s.updates.Load()
}

// Listen keeps Run going, reconnecting after each teardown until ctx ends.
func (s *CurveSubscriber) Listen(ctx context.Context) error {
	for {
		err := s.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WithError(err).WithField("delay", s.reconnectDelay).Warn("⚠️ Curve stream lost, attempting to reconnect...")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

// Run dials once, subscribes every watched mint and applies notifications
// until the reader stops, a ping fails, or ctx is cancelled.
func (s *CurveSubscriber) Run(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return errs.E(errs.Network, "curve subscriber dial", err)
	}
	defer conn.Close()

	conn.SetReadLimit(1024 * 1024)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	s.mu.Lock()
	s.conn = conn
	s.running = true
	s.bySub = make(map[uint64]string)
	s.pending = make(map[uint64]string)
	watched := make(map[string]solana.PublicKey, len(s.mints))
	for key, w := range s.mints {
		w.subID = 0
		watched[key] = w.curve
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.WithFields(logrus.Fields{
		"url":   s.url,
		"mints": len(watched),
	}).Info("✅ Curve price stream connected")

	for key, curve := range watched {
		if err := s.write(conn, "accountSubscribe", accountSubscribeParams(curve), key); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
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

	s.logger.WithError(reason).Info("🛑 Curve price stream closed")
	return reason
}

func (s *CurveSubscriber) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.E(errs.Network, "curve stream read", err)
		}

		var msg accountMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.WithError(err).WithField("data", truncate(string(data), 200)).Warn("⚠️ Failed to decode curve message")
			continue
		}

		switch {
		case msg.ID != nil:
			s.ack(conn, *msg.ID, msg)
		case msg.Method == "accountNotification":
			value := msg.Params.Result.Value
			if value == nil || value.Data == nil {
				continue
			}
			s.apply(msg.Params.Subscription, value.Data.GetBinary(), msg.Params.Result.Context.Slot)
		}
	}
}

func (s *CurveSubscriber) ack(conn *websocket.Conn, id uint64, msg accountMessage) {
	s.mu.Lock()
	key, ok := s.pending[id]
	delete(s.pending, id)
	if !ok || key == "" {
		s.mu.Unlock()
		return
	}
	if msg.Error != nil {
		s.mu.Unlock()
		s.logger.WithField("mint", key).Errorf("❌ Curve subscription rejected: %s", msg.Error.Message)
		return
	}
	var subID uint64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		s.mu.Unlock()
		s.logger.WithField("mint", key).WithError(err).Error("❌ Bad curve subscription ack")
		return
	}
	w, held := s.mints[key]
	if held {
		w.subID = subID
		s.bySub[subID] = key
	}
	s.mu.Unlock()

	if !held {
		// unsubscribed before the ack arrived
		_ = s.write(conn, "accountUnsubscribe", []interface{}{subID}, "")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"mint":         key,
		"subscription": subID,
	}).Debug("📡 Curve subscription confirmed")
}

func (s *CurveSubscriber) apply(subID uint64, data []byte, slot uint64) {
	s.mu.RLock()
	key, ok := s.bySub[subID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	curve, err := pumpfun.DecodeBondingCurve(data)
	if err != nil {
		s.logger.WithField("mint", key).WithError(err).Warn("⚠️ Failed to decode curve update")
		return
	}
	price, ok := curve.SpotPrice()
	if !ok {
		return
	}
	s.cache.Put(key, price)
	s.updates.Add(1)

	s.logger.WithFields(logrus.Fields{
		"mint":     key,
		"price":    price,
		"slot":     slot,
		"complete": curve.Complete,
	}).Debug("📈 Curve price updated")
}

// write sends one request; mint is remembered against its id so the ack can
// be matched. Unsubscribes pass an empty mint.
func (s *CurveSubscriber) write(conn *websocket.Conn, method string, params []interface{}, mint string) error {
	id := s.nextID.Add(1)
	data, err := json.Marshal(wsMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return errs.E(errs.Serialization, method, err)
	}

	s.mu.Lock()
	s.pending[id] = mint
	s.mu.Unlock()

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return errs.E(errs.Network, method, err)
	}
	return nil
}

func accountSubscribeParams(account solana.PublicKey) []interface{} {
	return []interface{}{
		account.String(),
		map[string]interface{}{"encoding": "base64", "commitment": CommitmentProcessed},
	}
}
