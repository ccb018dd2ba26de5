package pumpfun

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

func findPDA(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive program address: %w", err)
	}
	return addr, nil
}

func DeriveGlobal() (solana.PublicKey, error) {
	return findPDA([]byte(seedGlobal))
}

// DeriveBondingCurve returns the curve account for a mint.
func DeriveBondingCurve(mint solana.PublicKey) (solana.PublicKey, error) {
	return findPDA([]byte(seedBondingCurve), mint.Bytes())
}

// DeriveAssociatedBondingCurve returns the curve's token account for the mint.
func DeriveAssociatedBondingCurve(mint, bondingCurve solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(bondingCurve, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated bonding curve: %w", err)
	}
	return addr, nil
}

func DeriveEventAuthority() (solana.PublicKey, error) {
	return findPDA([]byte(seedEventAuthority))
}

func DeriveCreatorVault(creator solana.PublicKey) (solana.PublicKey, error) {
	return findPDA([]byte(seedCreatorVault), creator.Bytes())
}

func DeriveGlobalVolumeAccumulator() (solana.PublicKey, error) {
	return findPDA([]byte(seedGlobalVolumeAccumulator))
}

func DeriveUserVolumeAccumulator(user solana.PublicKey) (solana.PublicKey, error) {
	return findPDA([]byte(seedUserVolumeAccumulator), user.Bytes())
}

// DeriveUserTokenAccount returns the user's associated token account for mint.
func DeriveUserTokenAccount(user, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(user, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive user token account: %w", err)
	}
	return addr, nil
}

// CurveAccounts groups every address a trade against one mint touches.
type CurveAccounts struct {
	Mint                   solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	User                   solana.PublicKey
	AssociatedUser         solana.PublicKey
	GlobalVolume           solana.PublicKey
	UserVolume             solana.PublicKey
	FeeRecipient           solana.PublicKey
	Creator                *solana.PublicKey
	CreatorVault           *solana.PublicKey
}

// DeriveCurveAccounts resolves the full account set for a trade by user on mint.
// creator may be nil when it is not yet known.
func DeriveCurveAccounts(mint, user solana.PublicKey, creator *solana.PublicKey) (*CurveAccounts, error) {
	curve, err := DeriveBondingCurve(mint)
	if err != nil {
		return nil, err
	}
	assocCurve, err := DeriveAssociatedBondingCurve(mint, curve)
	if err != nil {
		return nil, err
	}
	assocUser, err := DeriveUserTokenAccount(user, mint)
	if err != nil {
		return nil, err
	}
	globalVol, err := DeriveGlobalVolumeAccumulator()
	if err != nil {
		return nil, err
	}
	userVol, err := DeriveUserVolumeAccumulator(user)
	if err != nil {
		return nil, err
	}

	accounts := &CurveAccounts{
		Mint:                   mint,
		BondingCurve:           curve,
		AssociatedBondingCurve: assocCurve,
		User:                   user,
		AssociatedUser:         assocUser,
		GlobalVolume:           globalVol,
		UserVolume:             userVol,
		FeeRecipient:           FeeRecipient,
	}
	if creator != nil && !creator.IsZero() {
		vault, err := DeriveCreatorVault(*creator)
		if err != nil {
			return nil, err
		}
		c := *creator
		accounts.Creator = &c
		accounts.CreatorVault = &vault
	}
	return accounts, nil
}
