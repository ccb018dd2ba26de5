package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
)

const testSignature = "5h6xBEauJ3PK6SWCZ1PGjBvj8vDdWG3KpwATGy1ARAXFSDwt8GFXM7W5Ncn16wmqokgpiKRLuS83KUxyZyv2sUYv"

// wsServer answers logsSubscribe with subscription id 42 and then pushes one
// notification. closeAfter makes it drop the socket once the notification is sent.
func wsServer(t *testing.T, closeAfter bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     uint64        `json:"id"`
				Method string        `json:"method"`
				Params []interface{} `json:"params"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}

			switch req.Method {
			case "logsSubscribe":
				_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42})
				_ = conn.WriteJSON(map[string]interface{}{
					"jsonrpc": "2.0",
					"method":  "logsNotification",
					"params": map[string]interface{}{
						"subscription": 42,
						"result": map[string]interface{}{
							"context": map[string]interface{}{"slot": 100},
							"value": map[string]interface{}{
								"signature": testSignature,
								"err":       nil,
								"logs":      []string{"Program log: Instruction: Create"},
							},
						},
					},
				})
				if closeAfter {
					return
				}
			case "logsUnsubscribe":
				_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriberSubscribeAndReceive(t *testing.T) {
	srv := wsServer(t, false)
	sub := NewSubscriber(SubscriberConfig{URL: wsURL(srv), PingInterval: 50 * time.Millisecond}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	defer reqCancel()

	id, err := sub.Subscribe(reqCtx, "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	select {
	case n := <-sub.Notifications():
		assert.Equal(t, "logsNotification", n.Method)
		assert.Equal(t, testSignature, n.Signature())
		assert.False(t, n.Failed())
		assert.Equal(t, uint64(100), n.Slot())
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}

	health, err := sub.Health(reqCtx)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.Equal(t, uint64(1), health.Received)
	assert.Equal(t, []uint64{42}, sub.Subscriptions())

	require.NoError(t, sub.Unsubscribe(reqCtx, 42))
	assert.Empty(t, sub.Subscriptions())

	// several heartbeats pass without tearing the connection down
	time.Sleep(200 * time.Millisecond)
	assert.True(t, sub.Running())

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, sub.Running())
}

func TestSubscriberTearsDownWhenReaderStops(t *testing.T) {
	srv := wsServer(t, true)
	sub := NewSubscriber(SubscriberConfig{URL: wsURL(srv), PingInterval: time.Hour}, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	_, err := sub.Subscribe(ctx, "all")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.Network))
		assert.NoError(t, ctx.Err())
	case <-ctx.Done():
		t.Fatal("connection was not torn down after the server closed it")
	}
}

func TestSubscriberReplaysMentionLostBeforeAck(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns, subscribes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		first := conns.Add(1) == 1

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     uint64 `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}
			if req.Method != "logsSubscribe" {
				continue
			}
			subscribes.Add(1)
			if first {
				return
			}
			_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42})
		}
	}))
	t.Cleanup(srv.Close)

	sub := NewSubscriber(SubscriberConfig{
		URL:            wsURL(srv),
		PingInterval:   time.Hour,
		ReconnectDelay: 20 * time.Millisecond,
	}, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = sub.Listen(ctx) }()

	_, err := sub.Subscribe(ctx, "all")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Network))

	require.Eventually(t, func() bool {
		return len(sub.Subscriptions()) == 1
	}, 3*time.Second, 10*time.Millisecond, "mention was not replayed on the new connection")
	assert.Equal(t, []uint64{42}, sub.Subscriptions())

	id, err := sub.Subscribe(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, int32(2), subscribes.Load(), "a confirmed mention is not sent again")
	assert.Equal(t, int32(2), conns.Load())
}

func TestSubscriberDialFailure(t *testing.T) {
	sub := NewSubscriber(SubscriberConfig{URL: "ws://127.0.0.1:1"}, logger.NewNop())
	err := sub.Run(context.Background())
	assert.True(t, errs.IsKind(err, errs.Network))
}

func TestLogsSubscribeParams(t *testing.T) {
	all := logsSubscribeParams("all")
	assert.Equal(t, "all", all[0])

	mention := logsSubscribeParams("abc")
	filter := mention[0].(map[string]interface{})
	assert.Equal(t, []string{"abc"}, filter["mentions"])
}
