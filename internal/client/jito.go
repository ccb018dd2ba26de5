package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
)

// JitoSender submits signed transactions to a block engine instead of the RPC pool.
type JitoSender struct {
	endpoint  string
	transport *HTTPTransport
	logger    *logger.Logger
}

// JitoConfig contains configuration for the block-engine sender
type JitoConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// NewJitoSender creates a new block-engine sender
func NewJitoSender(cfg JitoConfig, log *logger.Logger) *JitoSender {
	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"x-jito-auth": cfg.APIKey}
	}
	return &JitoSender{
		endpoint:  cfg.Endpoint,
		transport: NewHTTPTransport(cfg.Timeout, headers),
		logger:    log,
	}
}

func (j *JitoSender) call(ctx context.Context, path, method string, params []interface{}, out interface{}) error {
	raw, err := j.transport.Call(ctx, j.endpoint+path, method, params)
	if err != nil {
		return errs.E(errs.Network, method, err)
	}
	resp, err := decodeEnvelope(raw)
	if err != nil {
		return errs.E(errs.Rpc, method, err)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return errs.E(errs.Serialization, method, fmt.Errorf("failed to decode result: %w", err))
	}
	return nil
}

// SendTransaction sends one signed transaction through the block engine.
func (j *JitoSender) SendTransaction(ctx context.Context, wire []byte) (solana.Signature, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(wire),
		map[string]interface{}{"encoding": "base64"},
	}

	var sig string
	if err := j.call(ctx, "/api/v1/transactions", "sendTransaction", params, &sig); err != nil {
		return solana.Signature{}, errs.E(errs.Transaction, "jito sendTransaction", err)
	}

	out, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return solana.Signature{}, errs.E(errs.Parse, "jito sendTransaction", err)
	}

	j.logger.WithFields(logrus.Fields{
		"signature": sig,
		"endpoint":  j.endpoint,
	}).Info("🚀 Transaction sent via block engine")
	return out, nil
}

// SendBundle sends up to five signed transactions as one atomic bundle.
func (j *JitoSender) SendBundle(ctx context.Context, wires [][]byte) (string, error) {
	encoded := make([]string, len(wires))
	for i, w := range wires {
		encoded[i] = base64.StdEncoding.EncodeToString(w)
	}
	params := []interface{}{encoded, map[string]interface{}{"encoding": "base64"}}

	var bundleID string
	if err := j.call(ctx, "/api/v1/bundles", "sendBundle", params, &bundleID); err != nil {
		return "", err
	}

	j.logger.WithFields(logrus.Fields{
		"bundle_id":    bundleID,
		"transactions": len(wires),
	}).Info("📦 Bundle sent")
	return bundleID, nil
}

// GetTipAccounts lists the accounts the block engine accepts tips on.
func (j *JitoSender) GetTipAccounts(ctx context.Context) ([]solana.PublicKey, error) {
	var accounts []string
	if err := j.call(ctx, "/api/v1/bundles", "getTipAccounts", []interface{}{}, &accounts); err != nil {
		return nil, err
	}

	out := make([]solana.PublicKey, 0, len(accounts))
	for _, a := range accounts {
		pk, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			return nil, errs.E(errs.Parse, "getTipAccounts", err)
		}
		out = append(out, pk)
	}
	return out, nil
}
