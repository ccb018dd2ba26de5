package pumpfun

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// BuyArgs is the borsh argument struct of the buy instruction.
type BuyArgs struct {
	Amount      uint64
	MaxSOLCost  uint64
	TrackVolume *bool
}

// SellArgs is the borsh argument struct of the sell instruction.
type SellArgs struct {
	Amount       uint64
	MinSOLOutput uint64
}

// MarshalWithEncoder writes the args in borsh layout; TrackVolume is an Option<bool>.
func (a BuyArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(a.Amount, binary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteUint64(a.MaxSOLCost, binary.LittleEndian); err != nil {
		return err
	}
	if a.TrackVolume == nil {
		return enc.WriteOption(false)
	}
	if err := enc.WriteOption(true); err != nil {
		return err
	}
	return enc.WriteBool(*a.TrackVolume)
}

func (a SellArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(a.Amount, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint64(a.MinSOLOutput, binary.LittleEndian)
}

// EncodeBuyData returns discriminator || borsh(args).
func EncodeBuyData(args BuyArgs) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(BuyDiscriminator.Bytes())
	if err := args.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode buy args: %w", err)
	}
	return buf.Bytes(), nil
}

func EncodeSellData(args SellArgs) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(SellDiscriminator.Bytes())
	if err := args.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode sell args: %w", err)
	}
	return buf.Bytes(), nil
}

// tradeAccountMetas is the account list shared by buy and sell. The creator
// vault goes last and only when the creator is known.
func tradeAccountMetas(a *CurveAccounts) []*solana.AccountMeta {
	metas := []*solana.AccountMeta{
		solana.Meta(GlobalAccount),
		solana.Meta(a.FeeRecipient).WRITE(),
		solana.Meta(a.Mint),
		solana.Meta(a.BondingCurve).WRITE(),
		solana.Meta(a.AssociatedBondingCurve).WRITE(),
		solana.Meta(a.AssociatedUser).WRITE(),
		solana.Meta(a.User).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(EventAuthority),
		solana.Meta(ProgramID),
		solana.Meta(a.GlobalVolume).WRITE(),
		solana.Meta(a.UserVolume).WRITE(),
		solana.Meta(FeeConfig),
		solana.Meta(FeeProgramID),
	}
	if a.CreatorVault != nil {
		metas = append(metas, solana.Meta(*a.CreatorVault).WRITE())
	}
	return metas
}

// NewBuyInstruction builds a pump.fun buy against the resolved curve accounts.
func NewBuyInstruction(a *CurveAccounts, args BuyArgs) (solana.Instruction, error) {
	data, err := EncodeBuyData(args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ProgramID, tradeAccountMetas(a), data), nil
}

// NewSellInstruction builds a pump.fun sell against the resolved curve accounts.
func NewSellInstruction(a *CurveAccounts, args SellArgs) (solana.Instruction, error) {
	data, err := EncodeSellData(args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ProgramID, tradeAccountMetas(a), data), nil
}

// The associated-token-account package only builds Create, which fails when
// the account exists.
const ataCreateIdempotent uint8 = 1

// NewCreateATAIdempotentInstruction creates owner's token account for mint if it is missing.
func NewCreateATAIdempotentInstruction(payer, owner, mint, ata solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		[]*solana.AccountMeta{
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(ata).WRITE(),
			solana.Meta(owner),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.TokenProgramID),
		},
		[]byte{ataCreateIdempotent},
	)
}

// NewCloseAccountInstruction closes an emptied token account and refunds rent to dest.
func NewCloseAccountInstruction(account, dest, owner solana.PublicKey) solana.Instruction {
	return token.NewCloseAccountInstruction(
		account,
		dest,
		owner,
		[]solana.PublicKey{},
	).Build()
}

// NewTransferInstruction moves lamports between system accounts.
func NewTransferInstruction(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}
