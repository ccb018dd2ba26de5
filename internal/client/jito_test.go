package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
)

func TestJitoSenderSendTransaction(t *testing.T) {
	sig := solana.Signature{7, 7, 7}
	wire := []byte{0xde, 0xad, 0xbe, 0xef}

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sendTransaction", req.Method)
		assert.Equal(t, base64.StdEncoding.EncodeToString(wire), req.Params[0])
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"` + sig.String() + `"}`))
	}))
	defer srv.Close()

	j := NewJitoSender(JitoConfig{Endpoint: srv.URL, Timeout: time.Second}, logger.NewNop())
	got, err := j.SendTransaction(context.Background(), wire)
	require.NoError(t, err)
	assert.Equal(t, sig, got)
	assert.Equal(t, "/api/v1/transactions", gotPath)
}

func TestJitoSenderErrors(t *testing.T) {
	srv, _ := rpcServer(t, func(Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bundle rejected"}}`
	})
	j := NewJitoSender(JitoConfig{Endpoint: srv.URL}, logger.NewNop())

	_, err := j.SendTransaction(context.Background(), []byte{1})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Transaction))

	_, err = j.SendBundle(context.Background(), [][]byte{{1}, {2}})
	assert.True(t, errs.IsKind(err, errs.Rpc))
}

func TestJitoGetTipAccounts(t *testing.T) {
	tip := solana.SystemProgramID
	srv, _ := rpcServer(t, func(req Request) (int, string) {
		assert.Equal(t, "getTipAccounts", req.Method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":["` + tip.String() + `"]}`
	})
	j := NewJitoSender(JitoConfig{Endpoint: srv.URL}, logger.NewNop())

	accounts, err := j.GetTipAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{tip}, accounts)
}
