package pumpfun

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/pricing"
)

const (
	bondingCurveMinLen         = 49
	bondingCurveWithCreatorLen = 81

	globalFeeRecipientOffset = 41
)

// BondingCurveState is a decoded bonding curve account. Decode a fresh one per read.
type BondingCurveState struct {
	VirtualTokenReserves uint64            `json:"virtual_token_reserves"`
	VirtualSOLReserves   uint64            `json:"virtual_sol_reserves"`
	RealTokenReserves    uint64            `json:"real_token_reserves"`
	RealSOLReserves      uint64            `json:"real_sol_reserves"`
	TokenTotalSupply     uint64            `json:"token_total_supply"`
	Complete             bool              `json:"complete"`
	Creator              *solana.PublicKey `json:"creator,omitempty"`
}

// DecodeBondingCurve parses raw bonding curve account data.
func DecodeBondingCurve(data []byte) (*BondingCurveState, error) {
	if len(data) < bondingCurveMinLen {
		return nil, errs.Errorf(errs.Parse, "decode bonding curve", "account data too short: %d bytes", len(data))
	}
	if !bondingCurveAccountDiscriminator.Matches(data) {
		return nil, errs.Errorf(errs.Parse, "decode bonding curve", "unexpected discriminator %x", data[:8])
	}

	state := &BondingCurveState{
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[8:16]),
		VirtualSOLReserves:   binary.LittleEndian.Uint64(data[16:24]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[24:32]),
		RealSOLReserves:      binary.LittleEndian.Uint64(data[32:40]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[40:48]),
		Complete:             data[48] != 0,
	}
	if len(data) >= bondingCurveWithCreatorLen {
		creator := solana.PublicKeyFromBytes(data[49:81])
		if !creator.IsZero() {
			state.Creator = &creator
		}
	}
	return state, nil
}

// SpotPrice returns the SOL-per-token price implied by the virtual reserves.
func (s *BondingCurveState) SpotPrice() (float64, bool) {
	return pricing.SpotPrice(s.VirtualSOLReserves, s.VirtualTokenReserves)
}

// BuyQuote returns the tokens received for lamports, before protocol fees.
func (s *BondingCurveState) BuyQuote(lamports uint64) uint64 {
	return pricing.BuyQuote(s.VirtualSOLReserves, s.VirtualTokenReserves, lamports)
}

// SellQuote returns the lamports received for tokens, before protocol fees.
func (s *BondingCurveState) SellQuote(tokens uint64) uint64 {
	return pricing.SellQuote(s.VirtualSOLReserves, s.VirtualTokenReserves, tokens)
}

// LiquiditySOL is the real SOL pooled in the curve.
func (s *BondingCurveState) LiquiditySOL() float64 {
	return pricing.LamportsToSOL(s.RealSOLReserves)
}

// DecodeGlobalFeeRecipient reads the fee recipient out of the Global account.
func DecodeGlobalFeeRecipient(data []byte) (solana.PublicKey, error) {
	if len(data) < globalFeeRecipientOffset+32 {
		return solana.PublicKey{}, errs.Errorf(errs.Parse, "decode global", "account data too short: %d bytes", len(data))
	}
	if !globalAccountDiscriminator.Matches(data) {
		return solana.PublicKey{}, errs.Errorf(errs.Parse, "decode global", "unexpected discriminator %x", data[:8])
	}
	return solana.PublicKeyFromBytes(data[globalFeeRecipientOffset : globalFeeRecipientOffset+32]), nil
}
