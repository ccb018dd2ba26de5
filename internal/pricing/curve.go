package pricing

import (
	"math"
	"math/big"
)

const (
	LamportsPerSOL = 1_000_000_000

	// TokenUnit is the number of base units in one whole pump.fun token (6 decimals).
	TokenUnit = 1_000_000

	// SpotScale converts lamports per token base unit into SOL per whole token.
	SpotScale = 1e-3

	bpsDenominator = 10_000
)

// SpotPrice returns the curve price in SOL per whole token.
// The second return value is false when the token reserves are empty.
func SpotPrice(virtualSOL, virtualToken uint64) (float64, bool) {
	if virtualToken == 0 {
		return 0, false
	}
	return (float64(virtualSOL) / float64(virtualToken)) * SpotScale, true
}

// BuyQuote returns the tokens received for lamportsIn against the virtual reserves.
func BuyQuote(virtualSOL, virtualToken, lamportsIn uint64) uint64 {
	if virtualSOL == 0 || virtualToken == 0 {
		return 0
	}
	k := invariant(virtualSOL, virtualToken)

	denom := new(big.Int).SetUint64(virtualSOL)
	denom.Add(denom, new(big.Int).SetUint64(lamportsIn))

	newToken := new(big.Int).Quo(k, denom)
	out := new(big.Int).SetUint64(virtualToken)
	out.Sub(out, newToken)
	if out.Sign() <= 0 {
		return 0
	}
	return out.Uint64()
}

// SellQuote returns the lamports received for tokensIn against the virtual reserves.
func SellQuote(virtualSOL, virtualToken, tokensIn uint64) uint64 {
	if virtualSOL == 0 || virtualToken == 0 {
		return 0
	}
	k := invariant(virtualSOL, virtualToken)

	denom := new(big.Int).SetUint64(virtualToken)
	denom.Add(denom, new(big.Int).SetUint64(tokensIn))

	newSOL := new(big.Int).Quo(k, denom)
	out := new(big.Int).SetUint64(virtualSOL)
	out.Sub(out, newSOL)
	if out.Sign() <= 0 {
		return 0
	}
	return out.Uint64()
}

func invariant(virtualSOL, virtualToken uint64) *big.Int {
	return new(big.Int).Mul(
		new(big.Int).SetUint64(virtualSOL),
		new(big.Int).SetUint64(virtualToken),
	)
}

// ApplyFee deducts feeBps basis points from amount.
func ApplyFee(amount, feeBps uint64) uint64 {
	if feeBps == 0 {
		return amount
	}
	if feeBps >= bpsDenominator {
		return 0
	}
	v := new(big.Int).SetUint64(amount)
	v.Mul(v, new(big.Int).SetUint64(bpsDenominator-feeBps))
	v.Quo(v, big.NewInt(bpsDenominator))
	return v.Uint64()
}

// MaxSOLCost raises lamports by the slippage tolerance.
func MaxSOLCost(lamports, slippageBps uint64) uint64 {
	v := new(big.Int).SetUint64(lamports)
	v.Mul(v, new(big.Int).SetUint64(bpsDenominator+slippageBps))
	v.Quo(v, big.NewInt(bpsDenominator))
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

// MinSOLOutput lowers lamports by the slippage tolerance.
func MinSOLOutput(lamports, slippageBps uint64) uint64 {
	return ApplyFee(lamports, slippageBps)
}

// TokensForSOL converts a SOL amount at a SOL-per-token price into token base units.
func TokensForSOL(sol, price float64) uint64 {
	if price <= 0 || sol <= 0 {
		return 0
	}
	return uint64((sol / price) * TokenUnit)
}

// SOLForTokens values token base units at a SOL-per-token price.
func SOLForTokens(tokens uint64, price float64) float64 {
	return float64(tokens) / TokenUnit * price
}

func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Round(sol * LamportsPerSOL))
}

func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// PnLPercent is the percentage change from entry to current. Zero entry yields zero.
func PnLPercent(entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	return (current - entry) / entry * 100
}
