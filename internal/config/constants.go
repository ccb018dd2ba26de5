package config

// Solana network endpoints
const (
	SolanaMainnetRPC = "https://api.mainnet-beta.solana.com"
	SolanaDevnetRPC  = "https://api.devnet.solana.com"

	// WebSocket endpoints
	SolanaMainnetWS = "wss://api.mainnet-beta.solana.com"
	SolanaDevnetWS  = "wss://api.devnet.solana.com"

	// Jito block engine
	JitoMainnetEngine = "https://mainnet.block-engine.jito.wtf"
	JitoDevnetEngine  = "https://devnet.block-engine.jito.wtf"
)

// Trading limits
const (
	DefaultBuyAmountSOL = 0.1
	DefaultSlippageBps  = 500
	MaxSlippageBps      = 10_000
	DefaultFeeBps       = 100
)

// Storage backends
const (
	StorageFile = "file"
	StorageKV   = "kv"
)

// JitoTipAccounts are the mainnet tip accounts published by the block engine.
var JitoTipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

// GetRPCEndpoint returns RPC endpoint based on network
func GetRPCEndpoint(network string) string {
	switch network {
	case "devnet":
		return SolanaDevnetRPC
	default:
		return SolanaMainnetRPC
	}
}

// GetWSEndpoint returns WebSocket endpoint based on network
func GetWSEndpoint(network string) string {
	switch network {
	case "devnet":
		return SolanaDevnetWS
	default:
		return SolanaMainnetWS
	}
}

// GetJitoEndpoint returns the block engine base URL based on network
func GetJitoEndpoint(network string) string {
	switch network {
	case "devnet":
		return JitoDevnetEngine
	default:
		return JitoMainnetEngine
	}
}
