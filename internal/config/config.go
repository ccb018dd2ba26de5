package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pump-sniper-go/internal/errs"
)

// EnvPrefix prefixes every environment override, e.g. PUMPSNIPER_TRADING_BUY_AMOUNT_SOL.
const EnvPrefix = "PUMPSNIPER"

// Config represents the application configuration
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc" yaml:"rpc"`
	Wallet    WalletConfig    `mapstructure:"wallet" yaml:"wallet"`
	Trading   TradingConfig   `mapstructure:"trading" yaml:"trading"`
	Strategy  StrategyConfig  `mapstructure:"strategy" yaml:"strategy"`
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Jito      JitoConfig      `mapstructure:"jito" yaml:"jito"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// RPCConfig contains the JSON-RPC and WebSocket endpoints
type RPCConfig struct {
	Network         string        `mapstructure:"network" yaml:"network"`
	Endpoints       []string      `mapstructure:"endpoints" yaml:"endpoints"`
	WSEndpoint      string        `mapstructure:"ws_endpoint" yaml:"ws_endpoint"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Rotate          bool          `mapstructure:"rotate" yaml:"rotate"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
	UseSDKTransport bool          `mapstructure:"use_sdk_transport" yaml:"use_sdk_transport"`
	SkipPreflight   bool          `mapstructure:"skip_preflight" yaml:"skip_preflight"`
}

// WalletConfig names the key material. The first non-empty source wins.
type WalletConfig struct {
	PrivateKey  string `mapstructure:"private_key" yaml:"private_key"`
	KeypairFile string `mapstructure:"keypair_file" yaml:"keypair_file"`
	Mnemonic    string `mapstructure:"mnemonic" yaml:"mnemonic"`
	Passphrase  string `mapstructure:"passphrase" yaml:"passphrase"`
	Address     string `mapstructure:"address" yaml:"address"`
	Delegated   bool   `mapstructure:"delegated" yaml:"delegated"`
}

// HasKey reports whether any local key source is set.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.KeypairFile != "" || w.Mnemonic != ""
}

// TradingConfig contains trading-related settings
type TradingConfig struct {
	BuyAmountSOL      float64       `mapstructure:"buy_amount_sol" yaml:"buy_amount_sol"`
	SlippageBps       uint64        `mapstructure:"slippage_bps" yaml:"slippage_bps"`
	PriorityFee       uint64        `mapstructure:"priority_fee" yaml:"priority_fee"`
	ComputeUnitsBuy   uint32        `mapstructure:"compute_units_buy" yaml:"compute_units_buy"`
	ComputeUnitsSell  uint32        `mapstructure:"compute_units_sell" yaml:"compute_units_sell"`
	MaxHeldCoins      int           `mapstructure:"max_held_coins" yaml:"max_held_coins"`
	CloseATA          bool          `mapstructure:"close_ata" yaml:"close_ata"`
	TrackVolume       bool          `mapstructure:"track_volume" yaml:"track_volume"`
	MonitorInterval   time.Duration `mapstructure:"monitor_interval" yaml:"monitor_interval"`
	SellMaxAttempts   int           `mapstructure:"sell_max_attempts" yaml:"sell_max_attempts"`
	SellBaseDelay     time.Duration `mapstructure:"sell_base_delay" yaml:"sell_base_delay"`
	Confirm           bool          `mapstructure:"confirm" yaml:"confirm"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	FetchFeeRecipient bool          `mapstructure:"fetch_fee_recipient" yaml:"fetch_fee_recipient"`
	FeeBps            uint64        `mapstructure:"fee_bps" yaml:"fee_bps"`
}

// StrategyConfig contains the default entry and exit rules
type StrategyConfig struct {
	TakeProfitPercent  float64       `mapstructure:"take_profit_percent" yaml:"take_profit_percent"`
	StopLossPercent    float64       `mapstructure:"stop_loss_percent" yaml:"stop_loss_percent"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SaferSniping       bool          `mapstructure:"safer_sniping" yaml:"safer_sniping"`
	MinTokensThreshold uint64        `mapstructure:"min_tokens_threshold" yaml:"min_tokens_threshold"`
	MaxSOLPerToken     float64       `mapstructure:"max_sol_per_token" yaml:"max_sol_per_token"`
	MinLiquiditySOL    float64       `mapstructure:"min_liquidity_sol" yaml:"min_liquidity_sol"`
}

// DetectionConfig contains log filtering and worker pool settings
type DetectionConfig struct {
	Patterns        []string      `mapstructure:"patterns" yaml:"patterns"`
	Exclude         []string      `mapstructure:"exclude" yaml:"exclude"`
	SeenCapacity    int           `mapstructure:"seen_capacity" yaml:"seen_capacity"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	QueueSize       int           `mapstructure:"queue_size" yaml:"queue_size"`
	FetchAttempts   int           `mapstructure:"fetch_attempts" yaml:"fetch_attempts"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval" yaml:"metrics_interval"`
}

type CacheConfig struct {
	PriceTTL time.Duration `mapstructure:"price_ttl" yaml:"price_ttl"`
	Capacity int           `mapstructure:"capacity" yaml:"capacity"`
}

type StorageConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Dir       string `mapstructure:"dir" yaml:"dir"`
	DBPath    string `mapstructure:"db_path" yaml:"db_path"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// JitoConfig contains block-engine settings
type JitoConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	TipLamports uint64 `mapstructure:"tip_lamports" yaml:"tip_lamports"`
	TipAccount  string `mapstructure:"tip_account" yaml:"tip_account"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	LogToFile   bool   `mapstructure:"log_to_file" yaml:"log_to_file"`
	LogFilePath string `mapstructure:"log_file_path" yaml:"log_file_path"`
	TradeLogDir string `mapstructure:"trade_log_dir" yaml:"trade_log_dir"`
}

// LoadConfig loads configuration from the .env file, the config file and
// environment variables, in increasing order of precedence.
func LoadConfig(configPath string, envPath string) (*Config, error) {
	if err := loadEnvFile(envPath); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errs.E(errs.Config, "read config", err)
		}
	}

	processEnvSubstitution(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errs.E(errs.Config, "unmarshal config", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// loadEnvFile loads envPath, or ./.env when envPath is empty. A missing
// default file is not an error; variables already set are kept.
func loadEnvFile(envPath string) error {
	path := envPath
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if envPath == "" && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errs.E(errs.Config, "load env file", err)
	}
	return nil
}

// processEnvSubstitution expands ${VAR:-default} in every string value,
// including the elements of string lists.
func processEnvSubstitution(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		switch value := v.Get(key).(type) {
		case string:
			if strings.Contains(value, "${") {
				v.Set(key, expandEnvVars(value))
			}
		case []interface{}:
			out := make([]interface{}, len(value))
			for i, item := range value {
				if s, ok := item.(string); ok {
					out[i] = expandEnvVars(s)
				} else {
					out[i] = item
				}
			}
			v.Set(key, out)
		case []string:
			out := make([]string, len(value))
			for i, s := range value {
				out[i] = expandEnvVars(s)
			}
			v.Set(key, out)
		}
	}
}

// expandEnvVars expands environment variables in the format ${VAR:-default}
func expandEnvVars(value string) string {
	result := value
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		varName, defaultValue := expr, ""
		if i := strings.Index(expr, ":-"); i >= 0 {
			varName, defaultValue = expr[:i], expr[i+2:]
		}

		envValue := os.Getenv(varName)
		if envValue == "" {
			envValue = defaultValue
		}
		result = result[:start] + envValue + result[end+1:]
	}
	return result
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.network", "mainnet")
	v.SetDefault("rpc.endpoints", []string{})
	v.SetDefault("rpc.ws_endpoint", "")
	v.SetDefault("rpc.api_key", "")
	v.SetDefault("rpc.rotate", true)
	v.SetDefault("rpc.timeout", 10*time.Second)
	v.SetDefault("rpc.rate_limit", 0.0)
	v.SetDefault("rpc.burst", 10)
	v.SetDefault("rpc.use_sdk_transport", false)
	v.SetDefault("rpc.skip_preflight", true)

	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.keypair_file", "")
	v.SetDefault("wallet.mnemonic", "")
	v.SetDefault("wallet.passphrase", "")
	v.SetDefault("wallet.address", "")
	v.SetDefault("wallet.delegated", false)

	v.SetDefault("trading.buy_amount_sol", DefaultBuyAmountSOL)
	v.SetDefault("trading.slippage_bps", DefaultSlippageBps)
	v.SetDefault("trading.priority_fee", 100_000)
	v.SetDefault("trading.compute_units_buy", 400_000)
	v.SetDefault("trading.compute_units_sell", 180_000)
	v.SetDefault("trading.max_held_coins", 10)
	v.SetDefault("trading.close_ata", true)
	v.SetDefault("trading.track_volume", false)
	v.SetDefault("trading.monitor_interval", 2*time.Second)
	v.SetDefault("trading.sell_max_attempts", 3)
	v.SetDefault("trading.sell_base_delay", 500*time.Millisecond)
	v.SetDefault("trading.confirm", false)
	v.SetDefault("trading.confirm_timeout", 30*time.Second)
	v.SetDefault("trading.fetch_fee_recipient", true)
	v.SetDefault("trading.fee_bps", DefaultFeeBps)

	v.SetDefault("strategy.take_profit_percent", 30.0)
	v.SetDefault("strategy.stop_loss_percent", -20.0)
	v.SetDefault("strategy.timeout", time.Hour)
	v.SetDefault("strategy.safer_sniping", true)
	v.SetDefault("strategy.min_tokens_threshold", 1_000_000)
	v.SetDefault("strategy.max_sol_per_token", 0.0001)
	v.SetDefault("strategy.min_liquidity_sol", 0.01)

	v.SetDefault("detection.patterns", []string{"Program log: Instruction: Create", "Program log: Instruction: create"})
	v.SetDefault("detection.exclude", []string{"CreateTokenAccount"})
	v.SetDefault("detection.seen_capacity", 10_000)
	v.SetDefault("detection.workers", 4)
	v.SetDefault("detection.queue_size", 256)
	v.SetDefault("detection.fetch_attempts", 3)
	v.SetDefault("detection.metrics_interval", time.Minute)

	v.SetDefault("cache.price_ttl", time.Second)
	v.SetDefault("cache.capacity", 1024)

	v.SetDefault("storage.backend", StorageFile)
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.db_path", "data/pumpsniper.db")
	v.SetDefault("storage.namespace", "pumpsniper:")

	v.SetDefault("jito.enabled", false)
	v.SetDefault("jito.endpoint", "")
	v.SetDefault("jito.api_key", "")
	v.SetDefault("jito.tip_lamports", 0)
	v.SetDefault("jito.tip_account", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "custom")
	v.SetDefault("logging.log_to_file", false)
	v.SetDefault("logging.log_file_path", "logs/bot.log")
	v.SetDefault("logging.trade_log_dir", "trades")
}

// validateConfig fills network-derived endpoints and rejects unusable settings.
func validateConfig(config *Config) error {
	if len(config.RPC.Endpoints) == 0 {
		config.RPC.Endpoints = []string{GetRPCEndpoint(config.RPC.Network)}
	}
	if config.RPC.WSEndpoint == "" {
		config.RPC.WSEndpoint = GetWSEndpoint(config.RPC.Network)
	}
	if config.Jito.Enabled && config.Jito.Endpoint == "" {
		config.Jito.Endpoint = GetJitoEndpoint(config.RPC.Network)
	}

	var problems []string
	for _, ep := range config.RPC.Endpoints {
		if strings.TrimSpace(ep) == "" {
			problems = append(problems, "rpc.endpoints must not contain empty entries")
			break
		}
	}
	if config.Wallet.Delegated {
		if config.Wallet.Address == "" {
			problems = append(problems, "wallet.address is required when wallet.delegated is set")
		}
	} else if !config.Wallet.HasKey() {
		problems = append(problems, "one of wallet.private_key, wallet.keypair_file or wallet.mnemonic is required")
	}
	if config.Trading.BuyAmountSOL <= 0 {
		problems = append(problems, "trading.buy_amount_sol must be positive")
	}
	if config.Trading.SlippageBps > MaxSlippageBps {
		problems = append(problems, fmt.Sprintf("trading.slippage_bps must be at most %d", MaxSlippageBps))
	}
	if config.Trading.FeeBps > MaxSlippageBps {
		problems = append(problems, fmt.Sprintf("trading.fee_bps must be at most %d", MaxSlippageBps))
	}
	if config.Strategy.TakeProfitPercent <= 0 {
		problems = append(problems, "strategy.take_profit_percent must be positive")
	}
	if config.Strategy.StopLossPercent >= 0 {
		problems = append(problems, "strategy.stop_loss_percent must be negative")
	}
	switch config.Storage.Backend {
	case StorageFile, StorageKV:
	default:
		problems = append(problems, fmt.Sprintf("storage.backend must be %q or %q", StorageFile, StorageKV))
	}
	if config.Jito.TipLamports > 0 && config.Jito.TipAccount == "" {
		config.Jito.TipAccount = JitoTipAccounts[0]
	}

	if len(problems) > 0 {
		return errs.Errorf(errs.Config, "validate config", "%s", strings.Join(problems, "; "))
	}
	return nil
}
