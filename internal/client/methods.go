package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"pump-sniper-go/internal/errs"
)

// Commitment levels used by the helpers
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// Confirmed reports whether the status reached at least confirmed.
func (s *SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// GetTransaction returns the raw getTransaction result in "json" encoding.
func (p *Pool) GetTransaction(ctx context.Context, signature string) (json.RawMessage, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     CommitmentConfirmed,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var raw json.RawMessage
	if err := p.Request(ctx, "getTransaction", params, &raw); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, errs.Errorf(errs.NotFound, "getTransaction", "transaction %s not found", signature)
	}
	return raw, nil
}

// GetAccountInfo returns the account's raw data.
func (p *Pool) GetAccountInfo(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	params := []interface{}{
		account.String(),
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": CommitmentProcessed,
		},
	}

	var result struct {
		Value *struct {
			Data     []string `json:"data"`
			Lamports uint64   `json:"lamports"`
			Owner    string   `json:"owner"`
		} `json:"value"`
	}
	if err := p.Request(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, errs.Errorf(errs.NotFound, "getAccountInfo", "account %s not found", account)
	}
	if len(result.Value.Data) == 0 {
		return nil, errs.Errorf(errs.Parse, "getAccountInfo", "account %s has no data field", account)
	}

	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, errs.E(errs.Parse, "getAccountInfo", fmt.Errorf("failed to decode account data: %w", err))
	}
	return data, nil
}

// GetAccountData satisfies the strategy engine's chain reader.
func (p *Pool) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return p.GetAccountInfo(ctx, account)
}

// GetLatestBlockhash gets the latest blockhash
func (p *Pool) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	params := []interface{}{map[string]interface{}{"commitment": CommitmentFinalized}}

	var result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := p.Request(ctx, "getLatestBlockhash", params, &result); err != nil {
		return solana.Hash{}, err
	}

	hash, err := solana.HashFromBase58(result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, errs.E(errs.Parse, "getLatestBlockhash", err)
	}
	return hash, nil
}

// SendTransaction submits signed wire bytes and returns the signature.
func (p *Pool) SendTransaction(ctx context.Context, wire []byte) (solana.Signature, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(wire),
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       p.skipPreflight,
			"preflightCommitment": CommitmentProcessed,
		},
	}

	var sig string
	if err := p.Request(ctx, "sendTransaction", params, &sig); err != nil {
		return solana.Signature{}, errs.E(errs.Transaction, "sendTransaction", err)
	}

	out, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return solana.Signature{}, errs.E(errs.Parse, "sendTransaction", err)
	}
	return out, nil
}

// GetBalance gets account balance in lamports
func (p *Pool) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := p.Request(ctx, "getBalance", []interface{}{account.String()}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetTokenAccountBalance returns the raw token amount held by a token account.
func (p *Pool) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	params := []interface{}{
		account.String(),
		map[string]interface{}{"commitment": CommitmentConfirmed},
	}

	var result struct {
		Value *struct {
			Amount   string `json:"amount"`
			Decimals uint8  `json:"decimals"`
		} `json:"value"`
	}
	if err := p.Request(ctx, "getTokenAccountBalance", params, &result); err != nil {
		return 0, err
	}
	if result.Value == nil {
		return 0, errs.Errorf(errs.NotFound, "getTokenAccountBalance", "token account %s not found", account)
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, errs.E(errs.Parse, "getTokenAccountBalance", err)
	}
	return amount, nil
}

// GetSignatureStatuses gets signature statuses; unknown signatures come back nil.
func (p *Pool) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*SignatureStatus, error) {
	sigs := make([]string, len(signatures))
	for i, s := range signatures {
		sigs[i] = s.String()
	}
	params := []interface{}{
		sigs,
		map[string]interface{}{"searchTransactionHistory": true},
	}

	var result struct {
		Value []*SignatureStatus `json:"value"`
	}
	if err := p.Request(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// ConfirmTransaction polls the signature status until it is confirmed,
// fails on-chain, or timeout elapses.
func (p *Pool) ConfirmTransaction(ctx context.Context, signature solana.Signature, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := p.GetSignatureStatuses(ctx, signature)
		if err == nil && len(statuses) > 0 && statuses[0] != nil {
			status := statuses[0]
			if status.Err != nil {
				return errs.Errorf(errs.Transaction, "confirm transaction", "transaction %s failed: %v", signature, status.Err)
			}
			if status.Confirmed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errs.Errorf(errs.Network, "confirm transaction", "transaction %s not confirmed: %v", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetSlot gets current slot
func (p *Pool) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := p.Request(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}
