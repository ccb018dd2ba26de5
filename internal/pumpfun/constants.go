package pumpfun

import (
	"github.com/gagliardetto/solana-go"

	"pump-sniper-go/pkg/anchor"
)

// pump.fun program addresses
var (
	ProgramID      = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	GlobalAccount  = solana.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	FeeRecipient   = solana.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")
	EventAuthority = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
	FeeProgramID   = solana.MustPublicKeyFromBase58("pfeeUxB6jkeY1Hxd7CsFCAjcbHA9rWtchMGdZ6VojVZ")
	FeeConfig      = solana.MustPublicKeyFromBase58("8Wf5TiAheLUqBrKXeYg2JtAFFMWtKdG2BSFgqUcPVwTt")
)

// Instruction discriminators, sha256("global:<name>")[:8].
var (
	BuyDiscriminator    = anchor.Discriminator{102, 6, 61, 18, 1, 218, 235, 234}
	SellDiscriminator   = anchor.Discriminator{51, 230, 133, 164, 1, 127, 131, 173}
	CreateDiscriminator = anchor.Discriminator{24, 30, 200, 40, 5, 28, 7, 119}
)

var (
	bondingCurveAccountDiscriminator = anchor.AccountDiscriminator("BondingCurve")
	globalAccountDiscriminator       = anchor.AccountDiscriminator("Global")
	createEventDiscriminator         = anchor.EventDiscriminator("CreateEvent")
)

// PDA seeds
const (
	seedGlobal                  = "global"
	seedBondingCurve            = "bonding-curve"
	seedEventAuthority          = "__event_authority"
	seedCreatorVault            = "creator-vault"
	seedGlobalVolumeAccumulator = "global_volume_accumulator"
	seedUserVolumeAccumulator   = "user_volume_accumulator"
)

// MintSuffix is the vanity suffix pump.fun mints normally carry.
const MintSuffix = "pump"
