package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
)

const (
	maxBodyBytes   = 1 << 20
	defaultTimeout = 5 * time.Second

	// Metaplex account key for a metadata account (Key::MetadataV1)
	keyMetadataV1 = 4
)

// TokenMetadata is what gets attached to a holding.
type TokenMetadata struct {
	Name        string `json:"name,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	URI         string `json:"uri,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Onchain is the decoded head of a Metaplex metadata account.
type Onchain struct {
	UpdateAuthority solana.PublicKey
	Mint            solana.PublicKey
	Name            string
	Symbol          string
	URI             string
}

// Offchain is the JSON document an on-chain URI points at.
type Offchain struct {
	Name        string
	Symbol      string
	Description string
	Image       string
}

// DerivePDA returns the Metaplex metadata account of mint.
func DerivePDA(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindTokenMetadataAddress(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive metadata account: %w", err)
	}
	return addr, nil
}

// DecodeOnchain reads key, update authority, mint, name, symbol and uri.
// Fixed-width strings come back with their NUL padding trimmed.
func DecodeOnchain(data []byte) (*Onchain, error) {
	if len(data) < 1+32+32+4 {
		return nil, errs.Errorf(errs.Parse, "decode metadata", "account data too short: %d bytes", len(data))
	}
	if data[0] != keyMetadataV1 {
		return nil, errs.Errorf(errs.Parse, "decode metadata", "unexpected account key %d", data[0])
	}

	dec := bin.NewBorshDecoder(data[1:])
	out := &Onchain{}

	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, errs.E(errs.Parse, "decode metadata", err)
	}
	mint, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, errs.E(errs.Parse, "decode metadata", err)
	}
	out.UpdateAuthority = solana.PublicKeyFromBytes(authority)
	out.Mint = solana.PublicKeyFromBytes(mint)

	for _, dst := range []*string{&out.Name, &out.Symbol, &out.URI} {
		s, err := dec.ReadString()
		if err != nil {
			return nil, errs.E(errs.Parse, "decode metadata", err)
		}
		*dst = strings.TrimRight(s, "\x00")
	}
	return out, nil
}

// ParseOffchain accepts the loose shapes launchpads publish: alternate key
// names, localized objects and single-element arrays.
func ParseOffchain(body []byte) (*Offchain, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errs.E(errs.Parse, "parse offchain metadata", err)
	}

	out := &Offchain{
		Name:   firstString(doc, "name", "title", "token_name"),
		Symbol: firstString(doc, "symbol", "ticker"),
		Image:  firstString(doc, "image", "image_url", "imageUri"),
	}
	if d, ok := doc["description"].(string); ok {
		out.Description = d
	}
	return out, nil
}

func firstString(doc map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			return strings.TrimSpace(val)
		case map[string]interface{}:
			if s, ok := val["en"].(string); ok {
				return s
			}
			names := make([]string, 0, len(val))
			for k := range val {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				if s, ok := val[k].(string); ok {
					return s
				}
			}
		case []interface{}:
			if len(val) > 0 {
				if s, ok := val[0].(string); ok {
					return s
				}
			}
		default:
			return fmt.Sprint(val)
		}
	}
	return ""
}

// AccountFetcher reads raw account data. *client.Pool satisfies it.
type AccountFetcher interface {
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// Fetcher resolves on-chain metadata and follows its URI.
type Fetcher struct {
	accounts AccountFetcher
	http     *http.Client
	logger   *logger.Logger
}

func NewFetcher(accounts AccountFetcher, timeout time.Duration, log *logger.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Fetcher{
		accounts: accounts,
		http:     &http.Client{Timeout: timeout},
		logger:   log,
	}
}

// Fetch returns whatever metadata can be found for mint. A failed off-chain
// fetch is logged and the on-chain fields are still returned.
func (f *Fetcher) Fetch(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	pda, err := DerivePDA(mint)
	if err != nil {
		return nil, errs.E(errs.Internal, "fetch metadata", err)
	}

	data, err := f.accounts.GetAccountData(ctx, pda)
	if err != nil {
		return nil, err
	}
	onchain, err := DecodeOnchain(data)
	if err != nil {
		return nil, err
	}

	md := &TokenMetadata{Name: onchain.Name, Symbol: onchain.Symbol, URI: onchain.URI}
	if !isHTTP(onchain.URI) {
		return md, nil
	}

	off, err := f.FetchOffchain(ctx, onchain.URI)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"mint":  mint.String(),
			"uri":   onchain.URI,
			"error": err.Error(),
		}).Warn("⚠️ Failed to fetch off-chain metadata")
		return md, nil
	}

	if md.Name == "" {
		md.Name = off.Name
	}
	if md.Symbol == "" {
		md.Symbol = off.Symbol
	}
	md.Description = off.Description
	md.Image = off.Image
	return md, nil
}

// FetchOffchain downloads and parses the JSON document at uri.
func (f *Fetcher) FetchOffchain(ctx context.Context, uri string) (*Offchain, error) {
	if !isHTTP(uri) {
		return nil, errs.Errorf(errs.Parse, "fetch offchain metadata", "invalid metadata URI %q", uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errs.E(errs.Network, "fetch offchain metadata", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, errs.E(errs.Network, "fetch offchain metadata", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Errorf(errs.Network, "fetch offchain metadata", "HTTP error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errs.E(errs.Network, "fetch offchain metadata", err)
	}
	return ParseOffchain(body)
}

func isHTTP(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}
