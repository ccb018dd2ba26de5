package signer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"

	"pump-sniper-go/internal/errs"
)

// Signer produces signed wire bytes for transactions paid by PublicKey.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(ctx context.Context, tx *solana.Transaction) ([]byte, error)
	IsReady() bool
}

// ErrSigningDeclined is returned when no signing agent is connected or it refuses.
var ErrSigningDeclined = errs.E(errs.Unauthorized, "sign", errors.New("signing declined or unavailable"))

// KeyConfig names where a local key comes from. The first non-empty source wins.
type KeyConfig struct {
	PrivateKey  string
	KeypairFile string
	Mnemonic    string
	Passphrase  string
}

// LocalSigner signs with an in-memory ed25519 key.
type LocalSigner struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

// NewLocalSigner loads a key from the first configured source.
func NewLocalSigner(cfg KeyConfig) (*LocalSigner, error) {
	switch {
	case cfg.PrivateKey != "":
		return FromBase58(cfg.PrivateKey)
	case cfg.KeypairFile != "":
		return FromKeygenFile(cfg.KeypairFile)
	case cfg.Mnemonic != "":
		return FromMnemonic(cfg.Mnemonic, cfg.Passphrase)
	}
	return nil, errs.Errorf(errs.InvalidKeypair, "load signer", "no key material configured")
}

// FromBase58 loads a 64-byte secret key encoded as base58.
func FromBase58(secret string) (*LocalSigner, error) {
	account, err := types.AccountFromBase58(strings.TrimSpace(secret))
	if err != nil {
		return nil, errs.E(errs.InvalidKeypair, "load base58 key", err)
	}
	return fromAccount(account)
}

// FromKeygenFile loads a solana-keygen JSON keypair file.
func FromKeygenFile(path string) (*LocalSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errs.E(errs.InvalidKeypair, "load keygen file", err)
	}
	return fromPrivateKey(key)
}

// FromMnemonic derives the key the way solana-keygen does without a derivation
// path: the first 32 bytes of the BIP-39 seed are the ed25519 seed.
func FromMnemonic(mnemonic, passphrase string) (*LocalSigner, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errs.Errorf(errs.InvalidKeypair, "load mnemonic", "invalid BIP-39 mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	account, err := types.AccountFromSeed(seed[:32])
	if err != nil {
		return nil, errs.E(errs.InvalidKeypair, "load mnemonic", err)
	}
	return fromAccount(account)
}

// Generate creates a fresh random key. Used for dry runs and tests.
func Generate() (*LocalSigner, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, errs.E(errs.InvalidKeypair, "generate key", err)
	}
	return fromPrivateKey(key)
}

func fromAccount(account types.Account) (*LocalSigner, error) {
	return fromPrivateKey(solana.PrivateKey(account.PrivateKey))
}

func fromPrivateKey(key solana.PrivateKey) (*LocalSigner, error) {
	if len(key) != 64 {
		return nil, errs.Errorf(errs.InvalidKeypair, "load key", "expected 64-byte key, got %d", len(key))
	}
	return &LocalSigner{key: key, pub: key.PublicKey()}, nil
}

func (s *LocalSigner) PublicKey() solana.PublicKey { return s.pub }

func (s *LocalSigner) IsReady() bool { return true }

// PrivateKey exposes the key for callers that need to export it.
func (s *LocalSigner) PrivateKey() solana.PrivateKey { return s.key }

// Sign signs tx in place and returns its wire encoding.
func (s *LocalSigner) Sign(_ context.Context, tx *solana.Transaction) ([]byte, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return nil, errs.E(errs.Wallet, "sign transaction", err)
	}

	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.Serialization, "sign transaction", err)
	}
	return wire, nil
}

// SignFunc hands unsigned wire bytes to an external agent and returns the signed bytes.
type SignFunc func(ctx context.Context, unsigned []byte) ([]byte, error)

// DelegatedSigner forwards signing to an external agent such as a hardware or browser wallet.
type DelegatedSigner struct {
	pub solana.PublicKey

	mu sync.RWMutex
	fn SignFunc
}

// NewDelegatedSigner creates a signer for pub. fn may be nil until an agent connects.
func NewDelegatedSigner(pub solana.PublicKey, fn SignFunc) *DelegatedSigner {
	return &DelegatedSigner{pub: pub, fn: fn}
}

// Connect attaches a signing agent.
func (d *DelegatedSigner) Connect(fn SignFunc) {
	d.mu.Lock()
	d.fn = fn
	d.mu.Unlock()
}

// Disconnect detaches the signing agent.
func (d *DelegatedSigner) Disconnect() {
	d.Connect(nil)
}

func (d *DelegatedSigner) PublicKey() solana.PublicKey { return d.pub }

func (d *DelegatedSigner) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fn != nil
}

// Sign serialises tx with empty signature slots and asks the agent to sign it.
func (d *DelegatedSigner) Sign(ctx context.Context, tx *solana.Transaction) ([]byte, error) {
	d.mu.RLock()
	fn := d.fn
	d.mu.RUnlock()
	if fn == nil {
		return nil, ErrSigningDeclined
	}

	if required := int(tx.Message.Header.NumRequiredSignatures); len(tx.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	unsigned, err := tx.MarshalBinary()
	if err != nil {
		return nil, errs.E(errs.Serialization, "delegated sign", err)
	}

	signed, err := fn(ctx, unsigned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningDeclined, err)
	}
	if len(signed) == 0 {
		return nil, ErrSigningDeclined
	}
	return signed, nil
}
