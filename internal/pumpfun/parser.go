package pumpfun

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"pump-sniper-go/internal/errs"
)

// ErrNotCreation is returned when a transaction carries no pump.fun create instruction.
var ErrNotCreation = errs.E(errs.NotFound, "parse create transaction", fmt.Errorf("no pump.fun create instruction"))

// create instruction account positions
const (
	createAccountMint         = 0
	createAccountBondingCurve = 2
	createAccountUser         = 7
	createMinAccounts         = 8
)

// CreateInfo holds the addresses extracted from a token creation.
type CreateInfo struct {
	Signature    string           `json:"signature,omitempty"`
	Mint         solana.PublicKey `json:"mint"`
	BondingCurve solana.PublicKey `json:"bonding_curve"`
	Holder       solana.PublicKey `json:"holder"`
	Creator      solana.PublicKey `json:"creator"`
	Inner        bool             `json:"inner"`
}

// HasPumpSuffix reports whether the mint carries the usual pump.fun vanity suffix.
func (c *CreateInfo) HasPumpSuffix() bool {
	return strings.HasSuffix(c.Mint.String(), MintSuffix)
}

// rawTransaction is the subset of a getTransaction (encoding "json") result the parser reads.
type rawTransaction struct {
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys  []json.RawMessage `json:"accountKeys"`
			Instructions []rawInstruction  `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
	Meta *struct {
		InnerInstructions []struct {
			Index        int              `json:"index"`
			Instructions []rawInstruction `json:"instructions"`
		} `json:"innerInstructions"`
		LoadedAddresses *struct {
			Writable []string `json:"writable"`
			Readonly []string `json:"readonly"`
		} `json:"loadedAddresses"`
	} `json:"meta"`
}

type rawInstruction struct {
	ProgramID      string            `json:"programId"`
	ProgramIDIndex *int              `json:"programIdIndex"`
	Accounts       []json.RawMessage `json:"accounts"`
	Data           string            `json:"data"`
}

// ParseCreateTransaction scans top-level then inner instructions for a pump.fun
// create and extracts mint, curve, creator and the curve's token account.
func ParseCreateTransaction(raw []byte) (*CreateInfo, error) {
	var tx rawTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, errs.E(errs.Parse, "parse create transaction", err)
	}
	keys, err := normalizeAccountKeys(&tx)
	if err != nil {
		return nil, err
	}

	var sig string
	if len(tx.Transaction.Signatures) > 0 {
		sig = tx.Transaction.Signatures[0]
	}

	for _, ix := range tx.Transaction.Message.Instructions {
		info, err := extractCreate(ix, keys)
		if err != nil {
			return nil, err
		}
		if info != nil {
			info.Signature = sig
			return finishCreate(info)
		}
	}
	if tx.Meta != nil {
		for _, inner := range tx.Meta.InnerInstructions {
			for _, ix := range inner.Instructions {
				info, err := extractCreate(ix, keys)
				if err != nil {
					return nil, err
				}
				if info != nil {
					info.Signature = sig
					info.Inner = true
					return finishCreate(info)
				}
			}
		}
	}
	return nil, ErrNotCreation
}

func normalizeAccountKeys(tx *rawTransaction) ([]string, error) {
	rawKeys := tx.Transaction.Message.AccountKeys
	if len(rawKeys) == 0 {
		return nil, errs.Errorf(errs.Parse, "parse create transaction", "missing accountKeys")
	}

	keys := make([]string, 0, len(rawKeys))
	for i, rk := range rawKeys {
		var s string
		if err := json.Unmarshal(rk, &s); err == nil {
			keys = append(keys, s)
			continue
		}
		var obj struct {
			Pubkey string `json:"pubkey"`
		}
		if err := json.Unmarshal(rk, &obj); err != nil || obj.Pubkey == "" {
			return nil, errs.Errorf(errs.Parse, "parse create transaction", "account key %d has unknown shape", i)
		}
		keys = append(keys, obj.Pubkey)
	}

	if tx.Meta != nil && tx.Meta.LoadedAddresses != nil {
		keys = append(keys, tx.Meta.LoadedAddresses.Writable...)
		keys = append(keys, tx.Meta.LoadedAddresses.Readonly...)
	}
	return keys, nil
}

// extractCreate returns nil, nil for instructions that are not a pump.fun
// create. Once program and discriminator match, a bad account list is a Parse error.
func extractCreate(ix rawInstruction, keys []string) (*CreateInfo, error) {
	programID := ix.ProgramID
	if programID == "" && ix.ProgramIDIndex != nil {
		idx := *ix.ProgramIDIndex
		if idx < 0 || idx >= len(keys) {
			return nil, nil
		}
		programID = keys[idx]
	}
	if programID != ProgramID.String() {
		return nil, nil
	}

	data, err := base58.Decode(ix.Data)
	if err != nil || !CreateDiscriminator.Matches(data) {
		return nil, nil
	}
	if len(ix.Accounts) < createMinAccounts {
		return nil, errs.Errorf(errs.Parse, "parse create transaction",
			"create instruction has %d accounts, want at least %d", len(ix.Accounts), createMinAccounts)
	}

	mint, ok := resolveAccount(ix.Accounts[createAccountMint], keys)
	if !ok {
		return nil, errs.Errorf(errs.Parse, "parse create transaction", "unresolvable mint account")
	}
	curve, ok := resolveAccount(ix.Accounts[createAccountBondingCurve], keys)
	if !ok {
		return nil, errs.Errorf(errs.Parse, "parse create transaction", "unresolvable bonding curve account")
	}
	user, ok := resolveAccount(ix.Accounts[createAccountUser], keys)
	if !ok {
		return nil, errs.Errorf(errs.Parse, "parse create transaction", "unresolvable user account")
	}
	return &CreateInfo{Mint: mint, BondingCurve: curve, Creator: user}, nil
}

// resolveAccount accepts either an index into keys or a literal base58 address.
func resolveAccount(raw json.RawMessage, keys []string) (solana.PublicKey, bool) {
	var idx int
	if err := json.Unmarshal(raw, &idx); err == nil {
		if idx < 0 || idx >= len(keys) {
			return solana.PublicKey{}, false
		}
		pk, err := solana.PublicKeyFromBase58(keys[idx])
		return pk, err == nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return solana.PublicKey{}, false
	}
	pk, err := solana.PublicKeyFromBase58(s)
	return pk, err == nil
}

func finishCreate(info *CreateInfo) (*CreateInfo, error) {
	holder, err := DeriveAssociatedBondingCurve(info.Mint, info.BondingCurve)
	if err != nil {
		return nil, errs.E(errs.Parse, "parse create transaction", err)
	}
	info.Holder = holder
	return info, nil
}
