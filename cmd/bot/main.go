package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/olekukonko/tablewriter"

	"pump-sniper-go/internal/bot"
	"pump-sniper-go/internal/client"
	"pump-sniper-go/internal/config"
	"pump-sniper-go/internal/detection"
	"pump-sniper-go/internal/logger"
	"pump-sniper-go/internal/metadata"
	"pump-sniper-go/internal/pricing"
	"pump-sniper-go/internal/signer"
	"pump-sniper-go/internal/storage"
	"pump-sniper-go/internal/strategy"
)

const Version = "2.0.0"

// CLI flags
var (
	configFile     = flag.String("config", "", "Path to config file (default configs/bot.yaml)")
	envFile        = flag.String("env", "", "Path to .env file")
	modeFlag       = flag.String("mode", string(bot.ModeDryRun), "Run mode (dry-run/real)")
	logLevel       = flag.String("log-level", "", "Log level override (debug/info/warn/error)")
	statusInterval = flag.Duration("status-interval", time.Minute, "How often to print the portfolio table (0 disables)")
)

func main() {
	flag.Parse()

	boot := logger.NewNop()
	if l, err := logger.NewLogger(logger.LogConfig{Level: "info", Format: "custom"}); err == nil {
		boot = l
	}

	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		boot.WithError(err).Fatal("❌ Failed to load configuration")
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	mode, err := bot.ParseMode(*modeFlag)
	if err != nil {
		boot.WithError(err).Fatal("❌ Invalid mode")
	}

	log, err := logger.NewLogger(logger.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		LogToFile:   cfg.Logging.LogToFile,
		LogFilePath: cfg.Logging.LogFilePath,
		TradeLogDir: cfg.Logging.TradeLogDir,
	})
	if err != nil {
		boot.WithError(err).Fatal("❌ Failed to initialize logger")
	}
	defer log.Close()

	app, err := NewApp(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to create application")
	}
	defer app.Close()

	if err := app.Run(mode); err != nil {
		log.WithError(err).Fatal("❌ Bot stopped with error")
	}
}

// App owns the process-level resources around the bot.
type App struct {
	config *config.Config
	logger *logger.Logger
	signer signer.Signer
	store  storage.Store
	curves *client.CurveSubscriber
	bot    *bot.Bot
}

func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	s, err := buildSigner(cfg.Wallet)
	if err != nil {
		return nil, err
	}

	poolOpts := []client.Option{client.WithRateLimit(cfg.RPC.RateLimit, cfg.RPC.Burst)}
	if cfg.RPC.UseSDKTransport {
		poolOpts = append(poolOpts, client.WithTransport(client.NewSDKTransport(nil)))
	}
	pool, err := client.NewPool(client.PoolConfig{
		Endpoints:     cfg.RPC.Endpoints,
		Rotate:        cfg.RPC.Rotate,
		Timeout:       cfg.RPC.Timeout,
		APIKey:        cfg.RPC.APIKey,
		SkipPreflight: cfg.RPC.SkipPreflight,
	}, log, poolOpts...)
	if err != nil {
		return nil, err
	}

	subscriber := client.NewSubscriber(client.SubscriberConfig{URL: cfg.RPC.WSEndpoint}, log)

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	journal, err := logger.NewTradeLogger(cfg.Logging.TradeLogDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade logger: %w", err)
	}

	cache := pricing.NewPriceCache(cfg.Cache.Capacity, cfg.Cache.PriceTTL)
	curves := client.NewCurveSubscriber(client.SubscriberConfig{URL: cfg.RPC.WSEndpoint}, cache, log)

	engineOpts := []strategy.Option{
		strategy.WithJournal(journal),
		strategy.WithPriceCache(cache),
		strategy.WithPriceSubscriber(curves),
	}
	if cfg.Jito.Enabled {
		jito := client.NewJitoSender(client.JitoConfig{
			Endpoint: cfg.Jito.Endpoint,
			APIKey:   cfg.Jito.APIKey,
			Timeout:  cfg.RPC.Timeout,
		}, log)
		engineOpts = append(engineOpts, strategy.WithSubmitter(jito))
		log.WithField("endpoint", cfg.Jito.Endpoint).Info("🛡️ Block engine submission enabled")
	}

	trading, err := tradingConfig(cfg)
	if err != nil {
		return nil, err
	}

	b, err := bot.New(bot.Config{
		Trading:             trading,
		Strategy:            strategyConfig(cfg.Strategy),
		Settings:            settingsFromConfig(cfg),
		Detection:           detectionConfig(cfg),
		RefreshFeeRecipient: cfg.Trading.FetchFeeRecipient,
	}, bot.Deps{
		Chain:         pool,
		Fetcher:       pool,
		Signer:        s,
		Store:         store,
		Feed:          subscriber,
		Metadata:      metadata.NewFetcher(pool, 0, log),
		Logger:        log,
		EngineOptions: engineOpts,
	})
	if err != nil {
		return nil, err
	}

	return &App{config: cfg, logger: log, signer: s, store: store, curves: curves, bot: b}, nil
}

func buildSigner(w config.WalletConfig) (signer.Signer, error) {
	if w.Delegated {
		pub, err := solana.PublicKeyFromBase58(w.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid wallet.address: %w", err)
		}
		// a front end connects the callback later
		return signer.NewDelegatedSigner(pub, nil), nil
	}
	local, err := signer.NewLocalSigner(signer.KeyConfig{
		PrivateKey:  w.PrivateKey,
		KeypairFile: w.KeypairFile,
		Mnemonic:    w.Mnemonic,
		Passphrase:  w.Passphrase,
	})
	if err != nil {
		return nil, err
	}
	return local, nil
}

func openStore(c config.StorageConfig) (storage.Store, error) {
	if c.Backend == config.StorageKV {
		kv, err := storage.NewKVStore(c.DBPath, c.Namespace)
		if err != nil {
			return nil, err
		}
		return kv, nil
	}
	fs, err := storage.NewFileStore(c.Dir)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func tradingConfig(cfg *config.Config) (strategy.TradingConfig, error) {
	t := strategy.TradingConfig{
		SlippageBps:      cfg.Trading.SlippageBps,
		PriorityFee:      cfg.Trading.PriorityFee,
		ComputeUnitsBuy:  cfg.Trading.ComputeUnitsBuy,
		ComputeUnitsSell: cfg.Trading.ComputeUnitsSell,
		MaxHeldCoins:     cfg.Trading.MaxHeldCoins,
		CloseATA:         cfg.Trading.CloseATA,
		TrackVolume:      cfg.Trading.TrackVolume,
		MonitorInterval:  cfg.Trading.MonitorInterval,
		SellMaxAttempts:  cfg.Trading.SellMaxAttempts,
		SellBaseDelay:    cfg.Trading.SellBaseDelay,
		Confirm:          cfg.Trading.Confirm,
		ConfirmTimeout:   cfg.Trading.ConfirmTimeout,
		FeeBps:           cfg.Trading.FeeBps,
		TipLamports:      cfg.Jito.TipLamports,
	}
	if cfg.Jito.TipLamports > 0 {
		tip, err := solana.PublicKeyFromBase58(cfg.Jito.TipAccount)
		if err != nil {
			return t, fmt.Errorf("invalid jito.tip_account: %w", err)
		}
		t.TipAccount = tip
	}
	return t, nil
}

func strategyConfig(s config.StrategyConfig) strategy.Config {
	return strategy.Config{
		TakeProfitPercent:  s.TakeProfitPercent,
		StopLossPercent:    s.StopLossPercent,
		Timeout:            s.Timeout,
		SaferSniping:       s.SaferSniping,
		MinTokensThreshold: s.MinTokensThreshold,
		MaxSOLPerToken:     s.MaxSOLPerToken,
		MinLiquiditySOL:    s.MinLiquiditySOL,
	}
}

// settingsFromConfig seeds bot_settings on first run; stored settings win afterwards.
func settingsFromConfig(cfg *config.Config) bot.UserSettings {
	return bot.UserSettings{
		TakeProfitPercent:  cfg.Strategy.TakeProfitPercent,
		StopLossPercent:    cfg.Strategy.StopLossPercent,
		TimeoutSeconds:     int64(cfg.Strategy.Timeout / time.Second),
		BuyAmountSOL:       cfg.Trading.BuyAmountSOL,
		MaxHeldCoins:       cfg.Trading.MaxHeldCoins,
		SaferSniping:       cfg.Strategy.SaferSniping,
		MinTokensThreshold: cfg.Strategy.MinTokensThreshold,
		MaxSOLPerToken:     cfg.Strategy.MaxSOLPerToken,
		SlippageBps:        cfg.Trading.SlippageBps,
	}
}

func detectionConfig(cfg *config.Config) detection.Config {
	d := detection.DefaultConfig()
	d.Patterns = cfg.Detection.Patterns
	d.Exclude = cfg.Detection.Exclude
	d.SeenCapacity = cfg.Detection.SeenCapacity
	d.Workers = cfg.Detection.Workers
	d.QueueSize = cfg.Detection.QueueSize
	d.FetchAttempts = cfg.Detection.FetchAttempts
	d.MetricsInterval = cfg.Detection.MetricsInterval
	return d
}

// Run starts the bot and blocks until a signal arrives or the bot stops.
func (a *App) Run(mode bot.Mode) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.LogStartup(Version, string(mode), len(a.config.RPC.Endpoints))

	if err := a.bot.ConnectWallet(ctx, a.signer.PublicKey().String()); err != nil {
		return err
	}
	if err := a.bot.StartBot(ctx, mode); err != nil {
		return err
	}
	if mode == bot.ModeReal {
		go func() {
			if err := a.curves.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Warn("⚠️ Curve price stream stopped")
			}
		}()
	}

	var tick <-chan time.Time
	if *statusInterval > 0 {
		ticker := time.NewTicker(*statusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			printStatus(os.Stdout, a.bot.GetStatus(), a.bot.GetPortfolio())
		case <-a.bot.Done():
			printStatus(os.Stdout, a.bot.GetStatus(), a.bot.GetPortfolio())
			a.logger.LogShutdown(shutdownReason(ctx))
			return nil
		}
	}
}

func shutdownReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "signal received"
	}
	return "bot loops exited"
}

func (a *App) Close() {
	if closer, ok := a.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.WithError(err).Warn("⚠️ Failed to close store")
		}
	}
}

func printStatus(w io.Writer, st bot.Status, holdings []strategy.Holding) {
	s := st.Detection
	fmt.Fprintf(w, "\n📊 %s | received %d | detected %d | duplicates %d | failures %d | uptime %s\n",
		st, s.Received, s.Detected, s.Duplicates, s.Failures, st.Uptime(time.Now()).Truncate(time.Second))

	if len(holdings) == 0 {
		fmt.Fprintln(w, "  no open holdings")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Mint", "Symbol", "Tokens", "Entry (SOL)", "Spent (SOL)", "Held", "State")
	for _, h := range holdings {
		table.Append(
			h.Mint.Short(4),
			h.Symbol(),
			fmt.Sprintf("%.2f", float64(h.Amount)/pricing.TokenUnit),
			fmt.Sprintf("%.10f", h.EntryPrice),
			fmt.Sprintf("%.4f", h.SpentSOL),
			time.Since(h.EntryTime).Truncate(time.Second).String(),
			h.State.String(),
		)
	}
	table.Render()
}
