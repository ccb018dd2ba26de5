package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/client"
	"pump-sniper-go/internal/detection"
	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
	"pump-sniper-go/internal/metadata"
	"pump-sniper-go/internal/pumpfun"
	"pump-sniper-go/internal/signer"
	"pump-sniper-go/internal/storage"
	"pump-sniper-go/internal/strategy"
)

// maxStoredTrades bounds the bot_trades record.
const maxStoredTrades = 1000

var (
	ErrAlreadyRunning = errs.E(errs.Internal, "start bot", errors.New("bot already running"))
	ErrNotRunning     = errs.E(errs.Internal, "stop bot", errors.New("bot not running"))
)

// Feed is the live log subscription. *client.Subscriber satisfies it.
type Feed interface {
	Listen(ctx context.Context) error
	Subscribe(ctx context.Context, mentions string) (uint64, error)
	Notifications() <-chan client.LogsNotification
}

// MetadataSource resolves token metadata. *metadata.Fetcher satisfies it.
type MetadataSource interface {
	Fetch(ctx context.Context, mint solana.PublicKey) (*metadata.TokenMetadata, error)
}

// Config is the static part of the bot's setup.
type Config struct {
	Trading   strategy.TradingConfig
	Strategy  strategy.Config
	Settings  UserSettings
	Detection detection.Config

	// Mentions is the address the log subscription filters on.
	Mentions            string
	RefreshFeeRecipient bool

	// SubscribeRetry is the wait between failed attempts to subscribe.
	SubscribeRetry time.Duration
}

// Deps are the capabilities the bot is built from.
type Deps struct {
	Chain         strategy.Chain
	Fetcher       detection.TxFetcher
	Signer        signer.Signer
	Store         storage.Store
	Feed          Feed
	Metadata      MetadataSource
	Logger        *logger.Logger
	EngineOptions []strategy.Option
}

// Bot wires detection, the strategy engine and persistence behind the
// operations an operator or a front end calls.
type Bot struct {
	cfg      Config
	engine   *strategy.Engine
	detector *detection.Detector
	signer   signer.Signer
	store    storage.Store
	feed     Feed
	meta     MetadataSource
	logger   *logger.Logger
	now      func() time.Time

	mu        sync.RWMutex
	running   bool
	mode      Mode
	startedAt time.Time
	settings  UserSettings
	account   *UserAccount
	trades    []strategy.TradeRecord
	cancel    context.CancelFunc
	done      chan struct{}

	persistMu sync.Mutex
}

// New builds the bot and restores settings, holdings and trades from the store.
func New(cfg Config, deps Deps) (*Bot, error) {
	if deps.Signer == nil || deps.Store == nil || deps.Chain == nil {
		return nil, errs.Errorf(errs.Config, "new bot", "signer, store and chain are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if cfg.Mentions == "" {
		cfg.Mentions = pumpfun.ProgramID.String()
	}
	if cfg.SubscribeRetry <= 0 {
		cfg.SubscribeRetry = 2 * time.Second
	}

	b := &Bot{
		cfg:    cfg,
		signer: deps.Signer,
		store:  deps.Store,
		feed:   deps.Feed,
		meta:   deps.Metadata,
		logger: deps.Logger,
		now:    time.Now,
	}

	settings, err := b.loadSettings()
	if err != nil {
		return nil, err
	}
	b.settings = settings

	trading := cfg.Trading
	trading.MaxHeldCoins = settings.MaxHeldCoins
	trading.SlippageBps = settings.SlippageBps

	opts := append([]strategy.Option{}, deps.EngineOptions...)
	opts = append(opts, strategy.WithTradeHook(b.recordTrade))
	b.engine = strategy.NewEngine(trading, deps.Chain, deps.Signer, deps.Logger, opts...)

	if deps.Fetcher != nil {
		b.detector = detection.NewDetector(cfg.Detection, deps.Fetcher, deps.Logger)
	}

	if err := b.restore(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bot) loadSettings() (UserSettings, error) {
	settings, ok, err := storage.LoadJSON[UserSettings](b.store, storage.KeySettings)
	if err != nil {
		return UserSettings{}, err
	}
	if ok {
		if err := settings.Validate(); err == nil {
			return settings, nil
		}
		b.logger.WithError(err).Warn("⚠️ Stored settings invalid, using configured defaults")
	}

	settings = b.cfg.Settings
	if settings == (UserSettings{}) {
		settings = DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return UserSettings{}, err
	}
	return settings, storage.SaveJSON(b.store, storage.KeySettings, settings)
}

func (b *Bot) restore() error {
	holdings, _, err := storage.LoadJSON[[]strategy.Holding](b.store, storage.KeyHoldings)
	if err != nil {
		return err
	}
	trades, _, err := storage.LoadJSON[[]strategy.TradeRecord](b.store, storage.KeyTrades)
	if err != nil {
		return err
	}
	prev, ok, err := storage.LoadJSON[persistedState](b.store, storage.KeyState)
	if err != nil {
		return err
	}

	restored := b.engine.Restore(holdings)
	b.trades = trades

	fields := logrus.Fields{
		"holdings": restored,
		"trades":   len(trades),
	}
	if ok {
		fields["last_mode"] = string(prev.Mode)
		if prev.Running {
			fields["unclean_shutdown"] = true
		}
	}
	b.logger.WithFields(fields).Info("💾 State restored")
	return nil
}

// Engine exposes the strategy engine for callers that need quotes.
func (b *Bot) Engine() *strategy.Engine { return b.engine }

// ConnectWallet binds address to this bot. The address must be the signer's
// key; its account record is created on first connect.
func (b *Bot) ConnectWallet(ctx context.Context, address string) error {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return errs.E(errs.Wallet, "connect wallet", err)
	}
	if !pub.Equals(b.signer.PublicKey()) {
		return errs.Errorf(errs.Unauthorized, "connect wallet", "wallet %s does not match the configured signer", address)
	}

	key := storage.UserKey(address)
	account, ok, err := storage.LoadJSON[UserAccount](b.store, key)
	if err != nil {
		return err
	}

	now := b.now()
	b.mu.Lock()
	if !ok {
		account = UserAccount{
			WalletAddress:   address,
			CreatedAt:       now,
			TotalProfitLoss: decimal.Zero,
			Settings:        b.settings,
		}
	}
	account.LastActive = now
	b.account = &account
	b.mu.Unlock()

	if err := storage.SaveJSON(b.store, key, account); err != nil {
		return err
	}

	b.logger.WithFields(logrus.Fields{
		"wallet":       address,
		"new_account":  !ok,
		"total_trades": account.TotalTrades,
	}).Info("👛 Wallet connected")
	return nil
}

// Account returns the connected wallet's record, if any.
func (b *Bot) Account() (UserAccount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.account == nil {
		return UserAccount{}, false
	}
	return *b.account, true
}

func parseMint(mint string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, errs.E(errs.Parse, "parse mint", err)
	}
	return pk, nil
}

// ExecuteBuy buys mint for solAmount SOL, or the configured buy amount when
// solAmount is zero.
func (b *Bot) ExecuteBuy(ctx context.Context, mint string, solAmount float64) (*strategy.Holding, error) {
	pk, err := parseMint(mint)
	if err != nil {
		return nil, err
	}

	settings := b.Settings()
	if solAmount <= 0 {
		solAmount = settings.BuyAmountSOL
	}

	h, err := b.engine.Buy(ctx, strategy.BuyRequest{
		Mint:      pk,
		AmountSOL: solAmount,
		Strategy:  settings.Strategy(b.cfg.Strategy),
	})
	if err != nil {
		return nil, err
	}

	if md := b.attachMetadata(ctx, pk); md != nil {
		h.Metadata = md
	}
	return h, nil
}

// ExecuteSell sells fraction of the holding in mint, fraction in (0, 1].
func (b *Bot) ExecuteSell(ctx context.Context, mint string, fraction float64) (*strategy.TradeRecord, error) {
	pk, err := parseMint(mint)
	if err != nil {
		return nil, err
	}
	return b.engine.Sell(ctx, pk, fraction, strategy.ReasonManual)
}

// GetPortfolio returns the open holdings, oldest first.
func (b *Bot) GetPortfolio() []strategy.Holding {
	return b.engine.Holdings()
}

// Trades returns the recorded trades, oldest first.
func (b *Bot) Trades() []strategy.TradeRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]strategy.TradeRecord(nil), b.trades...)
}

func (b *Bot) Settings() UserSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// UpdateSettings validates and persists s. Exit and entry rules apply to the
// next buy; slippage and max_held_coins apply from the next restart.
func (b *Bot) UpdateSettings(s UserSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := storage.SaveJSON(b.store, storage.KeySettings, s); err != nil {
		return err
	}

	b.mu.Lock()
	b.settings = s
	account := b.account
	if account != nil {
		account.Settings = s
	}
	var snapshot UserAccount
	if account != nil {
		snapshot = *account
	}
	b.mu.Unlock()

	if account != nil {
		if err := storage.SaveJSON(b.store, storage.UserKey(snapshot.WalletAddress), snapshot); err != nil {
			return err
		}
	}
	b.logger.WithFields(logrus.Fields{
		"take_profit": s.TakeProfitPercent,
		"stop_loss":   s.StopLossPercent,
		"buy_amount":  s.BuyAmountSOL,
	}).Info("⚙️ Settings updated")
	return nil
}

// GetStatus reports whether the loops run and what they have seen.
func (b *Bot) GetStatus() Status {
	b.mu.RLock()
	st := Status{
		Running:   b.running,
		Mode:      b.mode,
		Wallet:    b.signer.PublicKey().String(),
		Trades:    len(b.trades),
		StartedAt: b.startedAt,
	}
	b.mu.RUnlock()

	st.Holdings = len(b.engine.Holdings())
	if b.detector != nil {
		st.Detection = b.detector.Metrics()
	}
	return st
}

// recordTrade is the engine's trade hook: it keeps the trade list, the
// holdings and the connected account in the store in step with the engine.
func (b *Bot) recordTrade(rec strategy.TradeRecord) {
	b.persistMu.Lock()
	defer b.persistMu.Unlock()

	b.mu.Lock()
	b.trades = append(b.trades, rec)
	if len(b.trades) > maxStoredTrades {
		b.trades = append([]strategy.TradeRecord(nil), b.trades[len(b.trades)-maxStoredTrades:]...)
	}
	trades := append([]strategy.TradeRecord(nil), b.trades...)

	var account *UserAccount
	if b.account != nil {
		b.account.TotalTrades++
		b.account.LastActive = rec.Timestamp
		if rec.ProfitLoss != nil {
			b.account.TotalProfitLoss = b.account.TotalProfitLoss.Add(*rec.ProfitLoss)
		}
		snapshot := *b.account
		account = &snapshot
	}
	b.mu.Unlock()

	if err := storage.SaveJSON(b.store, storage.KeyTrades, trades); err != nil {
		b.logger.WithError(err).Error("❌ Failed to persist trades")
	}
	if err := storage.SaveJSON(b.store, storage.KeyHoldings, b.engine.Holdings()); err != nil {
		b.logger.WithError(err).Error("❌ Failed to persist holdings")
	}
	if account != nil {
		if err := storage.SaveJSON(b.store, storage.UserKey(account.WalletAddress), account); err != nil {
			b.logger.WithError(err).Error("❌ Failed to persist account")
		}
	}
}

func (b *Bot) fetchMetadata(ctx context.Context, mint solana.PublicKey) *metadata.TokenMetadata {
	if b.meta == nil {
		return nil
	}
	md, err := b.meta.Fetch(ctx, mint)
	if err != nil {
		b.logger.WithToken(mint.String()).WithError(err).Warn("⚠️ Metadata unavailable")
		return nil
	}
	return md
}

// attachMetadata fetches metadata for a fresh holding, attaches it and
// persists the holdings again, since the buy hook saved them without it.
func (b *Bot) attachMetadata(ctx context.Context, mint solana.PublicKey) *metadata.TokenMetadata {
	md := b.fetchMetadata(ctx, mint)
	if md == nil {
		return nil
	}
	b.engine.AttachMetadata(mint, md)

	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	if err := storage.SaveJSON(b.store, storage.KeyHoldings, b.engine.Holdings()); err != nil {
		b.logger.WithError(err).Error("❌ Failed to persist holdings")
	}
	return md
}

func (b *Bot) saveState() {
	b.mu.RLock()
	st := persistedState{
		Running:   b.running,
		Mode:      b.mode,
		Wallet:    b.signer.PublicKey().String(),
		StartedAt: b.startedAt,
	}
	b.mu.RUnlock()
	if !st.Running {
		st.StoppedAt = b.now()
	}

	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	if err := storage.SaveJSON(b.store, storage.KeyState, st); err != nil {
		b.logger.WithError(err).Error("❌ Failed to persist bot state")
	}
	if err := storage.SaveJSON(b.store, storage.KeyHoldings, b.engine.Holdings()); err != nil {
		b.logger.WithError(err).Error("❌ Failed to persist holdings")
	}
}
