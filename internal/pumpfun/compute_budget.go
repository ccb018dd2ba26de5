package pumpfun

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// ComputeBudget instruction indices
const (
	SetComputeUnitLimitInstruction uint8 = 2
	SetComputeUnitPriceInstruction uint8 = 3
)

// Default compute unit limits per operation
const (
	DefaultBuyComputeUnits  uint32 = 400_000
	DefaultSellComputeUnits uint32 = 180_000
)

// ComputeBudget holds the per-transaction limit and the priority fee in micro-lamports per unit.
type ComputeBudget struct {
	UnitLimit uint32
	UnitPrice uint64
}

func NewSetComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = SetComputeUnitLimitInstruction
	binary.LittleEndian.PutUint32(data[1:5], units)
	return solana.NewInstruction(solana.ComputeBudget, []*solana.AccountMeta{}, data)
}

func NewSetComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = SetComputeUnitPriceInstruction
	binary.LittleEndian.PutUint64(data[1:9], microLamports)
	return solana.NewInstruction(solana.ComputeBudget, []*solana.AccountMeta{}, data)
}

// Instructions returns the limit instruction and, when a priority fee is set, the price instruction.
func (b ComputeBudget) Instructions() []solana.Instruction {
	var out []solana.Instruction
	if b.UnitLimit > 0 {
		out = append(out, NewSetComputeUnitLimitInstruction(b.UnitLimit))
	}
	if b.UnitPrice > 0 {
		out = append(out, NewSetComputeUnitPriceInstruction(b.UnitPrice))
	}
	return out
}
