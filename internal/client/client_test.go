package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
)

func rpcServer(t *testing.T, handler func(req Request) (int, string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		var req Request
		_ = json.Unmarshal(body, &req)
		status, payload := handler(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestPool(t *testing.T, endpoints []string, rotate bool, opts ...Option) *Pool {
	t.Helper()
	p, err := NewPool(PoolConfig{Endpoints: endpoints, Rotate: rotate, Timeout: 2 * time.Second}, logger.NewNop(), opts...)
	require.NoError(t, err)
	return p
}

func TestNewPoolRequiresEndpoints(t *testing.T) {
	_, err := NewPool(PoolConfig{}, logger.NewNop())
	assert.True(t, errs.IsKind(err, errs.Config))
}

func TestRotationCyclesStartIndex(t *testing.T) {
	p := newTestPool(t, []string{"a", "b", "c"}, true)
	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, p.nextStart())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)

	fixed := newTestPool(t, []string{"a", "b", "c"}, false)
	assert.Equal(t, 0, fixed.nextStart())
	assert.Equal(t, 0, fixed.nextStart())
}

func TestRequestFallsThroughToThirdEndpoint(t *testing.T) {
	bad1, hits1 := rpcServer(t, func(Request) (int, string) { return http.StatusServiceUnavailable, "down" })
	bad2, hits2 := rpcServer(t, func(Request) (int, string) { return http.StatusTooManyRequests, "slow down" })
	good, hits3 := rpcServer(t, func(req Request) (int, string) {
		assert.Equal(t, "getSlot", req.Method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":4242}`
	})

	p := newTestPool(t, []string{bad1.URL, bad2.URL, good.URL}, false)

	slot, err := p.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), slot)
	assert.Equal(t, int32(1), hits1.Load())
	assert.Equal(t, int32(1), hits2.Load())
	assert.Equal(t, int32(1), hits3.Load())
}

func TestRequestTreatsRPCErrorAndGarbageAsContinuable(t *testing.T) {
	rpcErr, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"node is behind"}}`
	})
	garbage, _ := rpcServer(t, func(Request) (int, string) { return http.StatusOK, `<html>` })
	good, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":99}}`
	})

	p := newTestPool(t, []string{rpcErr.URL, garbage.URL, good.URL}, false)
	bal, err := p.GetBalance(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), bal)
}

func TestRequestAllEndpointsFail(t *testing.T) {
	bad, _ := rpcServer(t, func(Request) (int, string) { return http.StatusTooManyRequests, "Too many requests" })

	p := newTestPool(t, []string{bad.URL, bad.URL}, true)
	err := p.Request(context.Background(), "getSlot", nil, nil)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Rpc))
	assert.True(t, errors.Is(err, ErrEndpointsUnavailable))
	assert.True(t, errs.IsRateLimited(err))
}

func TestRequestWrongShapedResultTriesNextEndpoint(t *testing.T) {
	wrong, wrongHits := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"not-an-object"}`
	})
	good, goodHits := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":99}}`
	})

	p := newTestPool(t, []string{wrong.URL, good.URL}, false)
	balance, err := p.GetBalance(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), balance)
	assert.Equal(t, int32(1), wrongHits.Load())
	assert.Equal(t, int32(1), goodHits.Load())

	only := newTestPool(t, []string{wrong.URL}, false)
	_, err = only.GetBalance(context.Background(), solana.SystemProgramID)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Rpc))
	assert.Contains(t, err.Error(), "failed to decode result")
}

type fakeTransport struct {
	calls atomic.Int32
	body  []byte
	err   error
}

func (f *fakeTransport) Call(ctx context.Context, endpoint, method string, params []interface{}) ([]byte, error) {
	f.calls.Add(1)
	return f.body, f.err
}

func TestInjectedTransportIsTriedFirst(t *testing.T) {
	direct, directHits := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":1}`
	})

	tr := &fakeTransport{body: []byte(`{"jsonrpc":"2.0","result":777}`)}
	p := newTestPool(t, []string{direct.URL}, false, WithTransport(tr))

	slot, err := p.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(777), slot)
	assert.Equal(t, int32(1), tr.calls.Load())
	assert.Equal(t, int32(0), directHits.Load())
}

func TestFailedTransportFallsBackToDirectCall(t *testing.T) {
	direct, directHits := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":5}`
	})

	tr := &fakeTransport{err: errors.New("sdk unavailable")}
	p := newTestPool(t, []string{direct.URL}, false, WithTransport(tr))

	slot, err := p.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), slot)
	assert.Equal(t, int32(1), directHits.Load())
}

func TestTransportRPCErrorSkipsEndpoint(t *testing.T) {
	direct, directHits := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":5}`
	})

	tr := &fakeTransport{body: []byte(`{"jsonrpc":"2.0","error":{"code":-1,"message":"nope"}}`)}
	p := newTestPool(t, []string{direct.URL}, false, WithTransport(tr))

	err := p.Request(context.Background(), "getSlot", nil, nil)
	assert.True(t, errors.Is(err, ErrEndpointsUnavailable))
	assert.Equal(t, int32(0), directHits.Load())
}

func TestSDKTransportAgainstServer(t *testing.T) {
	srv, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":31337}`
	})

	p := newTestPool(t, []string{srv.URL}, false, WithTransport(NewSDKTransport(nil)))
	slot, err := p.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), slot)
}

func TestGetAccountInfo(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	srv, _ := rpcServer(t, func(req Request) (int, string) {
		if req.Params[0] == solana.SystemProgramID.String() {
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":null}}`
		}
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":{"data":["` +
			base64.StdEncoding.EncodeToString(payload) + `","base64"],"lamports":1,"owner":"x"}}}`
	})
	p := newTestPool(t, []string{srv.URL}, false)

	data, err := p.GetAccountInfo(context.Background(), solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = p.GetAccountInfo(context.Background(), solana.SystemProgramID)
	assert.True(t, errs.IsKind(err, errs.NotFound))
}

func TestGetTransactionNullIsNotFound(t *testing.T) {
	srv, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":null}`
	})
	p := newTestPool(t, []string{srv.URL}, false)

	_, err := p.GetTransaction(context.Background(), "sig")
	assert.True(t, errs.IsKind(err, errs.NotFound))
}

func TestSendAndConfirmTransaction(t *testing.T) {
	sig := solana.Signature{9, 9, 9}
	var polls atomic.Int32
	srv, _ := rpcServer(t, func(req Request) (int, string) {
		switch req.Method {
		case "sendTransaction":
			opts := req.Params[1].(map[string]interface{})
			assert.Equal(t, "base64", opts["encoding"])
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"` + sig.String() + `"}`
		case "getSignatureStatuses":
			if polls.Add(1) < 2 {
				return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[null]}}`
			}
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[{"slot":2,"confirmations":1,"err":null,"confirmationStatus":"confirmed"}]}}`
		}
		return http.StatusBadRequest, ""
	})
	p := newTestPool(t, []string{srv.URL}, false, WithPollInterval(10*time.Millisecond))

	got, err := p.SendTransaction(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	require.NoError(t, p.ConfirmTransaction(context.Background(), got, time.Second))
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestConfirmTransactionOnChainFailure(t *testing.T) {
	srv, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[{"slot":2,"err":{"InstructionError":[0,"Custom"]},"confirmationStatus":"processed"}]}}`
	})
	p := newTestPool(t, []string{srv.URL}, false, WithPollInterval(10*time.Millisecond))

	err := p.ConfirmTransaction(context.Background(), solana.Signature{1}, time.Second)
	assert.True(t, errs.IsKind(err, errs.Transaction))
}

func TestGetTokenAccountBalance(t *testing.T) {
	srv, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":{"amount":"123456789","decimals":6,"uiAmount":123.456789}}}`
	})
	p := newTestPool(t, []string{srv.URL}, false)

	amount, err := p.GetTokenAccountBalance(context.Background(), solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), amount)
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first time", []error{nil}, 1, false},
		{"retries rate limit then succeeds", []error{errors.New("429 Too Many Requests"), nil}, 2, false},
		{"does not retry other errors", []error{errors.New("boom"), nil}, 1, true},
		{"gives up after attempts", []error{errors.New("Too many requests"), errors.New("Too many requests"), errors.New("Too many requests")}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
				e := tt.errs[calls]
				calls++
				return e
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":1}`
	})
	p := newTestPool(t, []string{srv.URL}, false, WithRateLimit(0.001, 1))

	require.NoError(t, p.Request(context.Background(), "getSlot", nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Request(ctx, "getSlot", nil, nil)
	assert.True(t, errs.IsKind(err, errs.Network))
}
