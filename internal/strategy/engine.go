package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
	"pump-sniper-go/internal/metadata"
	"pump-sniper-go/internal/pricing"
	"pump-sniper-go/internal/pumpfun"
	"pump-sniper-go/internal/signer"
)

var (
	ErrAlreadyHeld  = errs.E(errs.Transaction, "buy", errors.New("mint already held"))
	ErrMaxHoldings  = errs.E(errs.Transaction, "buy", errors.New("max held coins reached"))
	ErrNotHeld      = errs.E(errs.NotFound, "sell", errors.New("no open holding for mint"))
	ErrSellInFlight = errs.E(errs.Transaction, "sell", errors.New("sell already in progress"))

	// ErrRejected wraps the reason an entry failed the safer-sniping rules.
	ErrRejected = errors.New("entry rejected")
)

// Chain is the RPC surface the engine needs. *client.Pool satisfies it.
type Chain interface {
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, wire []byte) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, signature solana.Signature, timeout time.Duration) error
}

// Submitter is an alternative send path such as a block engine.
type Submitter interface {
	SendTransaction(ctx context.Context, wire []byte) (solana.Signature, error)
}

// PriceSubscriber streams curve prices for held mints.
// *client.CurveSubscriber satisfies it.
type PriceSubscriber interface {
	Subscribe(ctx context.Context, mint solana.PublicKey) error
	Unsubscribe(ctx context.Context, mint solana.PublicKey) error
	GetPrice(mint solana.PublicKey) (float64, bool)
}

// Journal records executed trades. *logger.TradeLogger satisfies it.
type Journal interface {
	LogTrade(trade logger.TradeEntry) error
}

// TradingConfig controls how trades are built and sent.
type TradingConfig struct {
	SlippageBps      uint64
	PriorityFee      uint64
	ComputeUnitsBuy  uint32
	ComputeUnitsSell uint32
	MaxHeldCoins     int
	CloseATA         bool
	TrackVolume      bool
	MonitorInterval  time.Duration
	SellMaxAttempts  int
	SellBaseDelay    time.Duration
	Confirm          bool
	ConfirmTimeout   time.Duration
	FeeBps           uint64
	FeeRecipient     solana.PublicKey
	TipLamports      uint64
	TipAccount       solana.PublicKey
}

func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		SlippageBps:      500,
		PriorityFee:      100_000,
		ComputeUnitsBuy:  pumpfun.DefaultBuyComputeUnits,
		ComputeUnitsSell: pumpfun.DefaultSellComputeUnits,
		MaxHeldCoins:     10,
		CloseATA:         true,
		MonitorInterval:  2 * time.Second,
		SellMaxAttempts:  3,
		SellBaseDelay:    500 * time.Millisecond,
		ConfirmTimeout:   30 * time.Second,
		FeeBps:           100,
	}
}

// Backoff is the wait before sell retry attempt+1: base*2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base << uint(attempt)
}

// Option configures an Engine.
type Option func(*Engine)

func WithSubmitter(s Submitter) Option {
	return func(e *Engine) { e.submitter = s }
}

func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithTradeHook registers fn to run after every executed trade.
func WithTradeHook(fn func(TradeRecord)) Option {
	return func(e *Engine) { e.onTrade = fn }
}

func WithPriceCache(c *pricing.PriceCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithPriceSubscriber streams the price of every open holding; the monitor
// falls back to curve reads when no streamed price is fresh.
func WithPriceSubscriber(p PriceSubscriber) Option {
	return func(e *Engine) { e.prices = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the active holdings and drives them from buy to close.
type Engine struct {
	cfg       TradingConfig
	chain     Chain
	signer    signer.Signer
	submitter Submitter
	journal   Journal
	cache     *pricing.PriceCache
	prices    PriceSubscriber
	logger    *logger.Logger
	onTrade   func(TradeRecord)
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error

	mu           sync.Mutex
	holdings     map[string]*Holding
	buying       map[string]bool
	selling      map[string]bool
	feeRecipient solana.PublicKey
}

func NewEngine(cfg TradingConfig, chain Chain, s signer.Signer, log *logger.Logger, opts ...Option) *Engine {
	def := DefaultTradingConfig()
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.SellMaxAttempts <= 0 {
		cfg.SellMaxAttempts = def.SellMaxAttempts
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &Engine{
		cfg:          cfg,
		chain:        chain,
		signer:       s,
		logger:       log,
		now:          time.Now,
		sleep:        sleepCtx,
		holdings:     make(map[string]*Holding),
		buying:       make(map[string]bool),
		selling:      make(map[string]bool),
		feeRecipient: cfg.FeeRecipient,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = pricing.NewPriceCache(1024, time.Second)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RefreshFeeRecipient reads the current fee recipient from the Global account.
func (e *Engine) RefreshFeeRecipient(ctx context.Context) error {
	data, err := e.chain.GetAccountData(ctx, pumpfun.GlobalAccount)
	if err != nil {
		return err
	}
	recipient, err := pumpfun.DecodeGlobalFeeRecipient(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.feeRecipient = recipient
	e.mu.Unlock()

	e.logger.WithField("fee_recipient", recipient.String()).Info("🏦 Fee recipient loaded")
	return nil
}

func (e *Engine) feeRecipientAddr() solana.PublicKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.feeRecipient.IsZero() {
		return pumpfun.FeeRecipient
	}
	return e.feeRecipient
}

// Quote reads the bonding curve of mint and returns it with its spot price.
// The price is also written to the cache.
func (e *Engine) Quote(ctx context.Context, mint solana.PublicKey) (*pumpfun.BondingCurveState, float64, error) {
	addr, err := pumpfun.DeriveBondingCurve(mint)
	if err != nil {
		return nil, 0, errs.E(errs.Internal, "quote", err)
	}
	data, err := e.chain.GetAccountData(ctx, addr)
	if err != nil {
		return nil, 0, err
	}
	curve, err := pumpfun.DecodeBondingCurve(data)
	if err != nil {
		return nil, 0, err
	}
	price, ok := curve.SpotPrice()
	if !ok {
		return nil, 0, errs.Errorf(errs.Parse, "quote", "bonding curve of %s has no token reserves", mint)
	}
	e.cache.Put(mint.String(), price)
	return curve, price, nil
}

// CurrentPrice prefers a streamed price, then the cache, then a fresh curve read.
func (e *Engine) CurrentPrice(ctx context.Context, mint solana.PublicKey) (float64, error) {
	if e.prices != nil {
		if price, ok := e.prices.GetPrice(mint); ok {
			return price, nil
		}
	}
	if price, ok := e.cache.Lookup(mint.String()); ok {
		return price, nil
	}
	_, price, err := e.Quote(ctx, mint)
	return price, err
}

// EntryQuote is a priced, policy-checked buy that has not been sent.
type EntryQuote struct {
	Curve      *pumpfun.BondingCurveState
	Price      float64
	Lamports   uint64
	Tokens     uint64
	MaxSOLCost uint64
	Accept     bool
	Reason     string
}

// EvaluateEntry prices a buy of amountSOL and runs the entry rules on it.
func (e *Engine) EvaluateEntry(ctx context.Context, mint solana.PublicKey, amountSOL float64, cfg Config) (*EntryQuote, error) {
	lamports := pricing.SOLToLamports(amountSOL)
	if lamports == 0 {
		return nil, errs.Errorf(errs.Transaction, "buy", "buy amount must be positive, got %v", amountSOL)
	}

	curve, price, err := e.Quote(ctx, mint)
	if err != nil {
		return nil, err
	}

	q := &EntryQuote{
		Curve:      curve,
		Price:      price,
		Lamports:   lamports,
		Tokens:     pricing.ApplyFee(curve.BuyQuote(lamports), e.cfg.FeeBps),
		MaxSOLCost: pricing.MaxSOLCost(lamports, e.cfg.SlippageBps),
	}
	q.Accept, q.Reason = cfg.ShouldBuy(curve, q.Tokens, price)
	return q, nil
}

// BuyRequest asks the engine to open a position.
type BuyRequest struct {
	Mint      solana.PublicKey
	Creator   *solana.PublicKey
	AmountSOL float64
	Strategy  Config
	Metadata  *metadata.TokenMetadata
}

func (e *Engine) reserveBuy(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, held := e.holdings[key]; held || e.buying[key] {
		return ErrAlreadyHeld
	}
	if e.cfg.MaxHeldCoins > 0 && len(e.holdings)+len(e.buying) >= e.cfg.MaxHeldCoins {
		return ErrMaxHoldings
	}
	e.buying[key] = true
	return nil
}

func (e *Engine) releaseBuy(key string) {
	e.mu.Lock()
	delete(e.buying, key)
	e.mu.Unlock()
}

// Buy prices, signs and submits a buy. On success the holding is Monitoring.
// On failure nothing is tracked and the candidate stays Detected.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*Holding, error) {
	key := req.Mint.String()
	if err := e.reserveBuy(key); err != nil {
		return nil, err
	}
	defer e.releaseBuy(key)

	e.logger.LogTradeAttempt(TradeBuy, key, req.AmountSOL)

	q, err := e.EvaluateEntry(ctx, req.Mint, req.AmountSOL, req.Strategy)
	if err != nil {
		e.logger.LogTradeError(TradeBuy, key, req.AmountSOL, err)
		return nil, err
	}
	if !q.Accept {
		e.logger.LogFilterReject(key, q.Reason)
		return nil, fmt.Errorf("%w: %s", ErrRejected, q.Reason)
	}
	if q.Tokens == 0 {
		return nil, errs.Errorf(errs.Transaction, "buy", "quote for %s yields no tokens", key)
	}

	creator := req.Creator
	if creator == nil || creator.IsZero() {
		creator = q.Curve.Creator
	}
	accounts, err := pumpfun.DeriveCurveAccounts(req.Mint, e.signer.PublicKey(), creator)
	if err != nil {
		return nil, errs.E(errs.Internal, "buy", err)
	}
	accounts.FeeRecipient = e.feeRecipientAddr()

	ixs, err := e.buyInstructions(accounts, q)
	if err != nil {
		return nil, err
	}

	sent := time.Now()
	sig, err := e.submit(ctx, ixs)
	if err != nil {
		e.logger.LogTradeError(TradeBuy, key, req.AmountSOL, err)
		return nil, err
	}
	e.logger.LogLatency("buy_submit", time.Since(sent))

	spent := pricing.LamportsToSOL(q.Lamports)
	h := &Holding{
		Mint:         req.Mint,
		Creator:      accounts.Creator,
		Amount:       q.Tokens,
		EntryPrice:   spent / (float64(q.Tokens) / pricing.TokenUnit),
		SpentSOL:     spent,
		EntryTime:    e.now(),
		BuySignature: sig.String(),
		State:        StateBought,
		Config:       req.Strategy,
		Metadata:     req.Metadata,
	}

	if e.cfg.Confirm {
		if err := e.chain.ConfirmTransaction(ctx, sig, e.cfg.ConfirmTimeout); err != nil {
			e.logger.WithFields(h.LogFields()).WithError(err).Warn("⚠️ Buy sent but not confirmed")
			return nil, err
		}
	}
	h.State = StateMonitoring

	e.mu.Lock()
	e.holdings[key] = h
	out := *h
	e.mu.Unlock()

	e.logger.LogTradeSuccess(TradeBuy, key, spent, sig.String(), h.EntryPrice)
	e.record(newTradeRecord(&out, TradeBuy, sig.String(), spent, q.Tokens, h.EntryPrice, h.EntryTime))
	e.watch(ctx, req.Mint)
	return &out, nil
}

func (e *Engine) watch(ctx context.Context, mint solana.PublicKey) {
	if e.prices == nil {
		return
	}
	if err := e.prices.Subscribe(ctx, mint); err != nil {
		e.logger.WithField("mint", mint.String()).WithError(err).Warn("⚠️ Price stream unavailable, polling curve")
	}
}

func (e *Engine) unwatch(ctx context.Context, mint solana.PublicKey) {
	if e.prices == nil {
		return
	}
	if err := e.prices.Unsubscribe(ctx, mint); err != nil {
		e.logger.WithField("mint", mint.String()).WithError(err).Warn("⚠️ Failed to stop price stream")
	}
}

// WatchHoldings streams prices for every open holding, typically after Restore.
func (e *Engine) WatchHoldings(ctx context.Context) int {
	if e.prices == nil {
		return 0
	}
	holdings := e.Holdings()
	for _, h := range holdings {
		e.watch(ctx, h.Mint)
	}
	return len(holdings)
}

func (e *Engine) buyInstructions(accounts *pumpfun.CurveAccounts, q *EntryQuote) ([]solana.Instruction, error) {
	budget := pumpfun.ComputeBudget{UnitLimit: e.cfg.ComputeUnitsBuy, UnitPrice: e.cfg.PriorityFee}
	ixs := budget.Instructions()
	ixs = append(ixs, pumpfun.NewCreateATAIdempotentInstruction(accounts.User, accounts.User, accounts.Mint, accounts.AssociatedUser))

	track := e.cfg.TrackVolume
	buy, err := pumpfun.NewBuyInstruction(accounts, pumpfun.BuyArgs{
		Amount:      q.Tokens,
		MaxSOLCost:  q.MaxSOLCost,
		TrackVolume: &track,
	})
	if err != nil {
		return nil, errs.E(errs.Serialization, "buy", err)
	}
	ixs = append(ixs, buy)

	if e.cfg.TipLamports > 0 && !e.cfg.TipAccount.IsZero() {
		ixs = append(ixs, pumpfun.NewTransferInstruction(accounts.User, e.cfg.TipAccount, e.cfg.TipLamports))
	}
	return ixs, nil
}

func (e *Engine) beginSell(key string) (Holding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.holdings[key]
	if !ok {
		return Holding{}, ErrNotHeld
	}
	if e.selling[key] {
		return Holding{}, ErrSellInFlight
	}
	e.selling[key] = true
	return *h, nil
}

func (e *Engine) endSell(key string) {
	e.mu.Lock()
	delete(e.selling, key)
	e.mu.Unlock()
}

// Sell sells fraction of the holding in mint, fraction in (0, 1]. A full sell
// closes the holding with reason; a partial one leaves it Monitoring.
// When every attempt fails the holding is left untouched.
func (e *Engine) Sell(ctx context.Context, mint solana.PublicKey, fraction float64, reason CloseReason) (*TradeRecord, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, errs.Errorf(errs.Transaction, "sell", "sell fraction %v outside (0, 1]", fraction)
	}

	key := mint.String()
	h, err := e.beginSell(key)
	if err != nil {
		return nil, err
	}
	defer e.endSell(key)

	amount := h.Amount
	if fraction < 1 {
		amount = uint64(float64(h.Amount) * fraction)
	}
	if amount == 0 {
		return nil, errs.Errorf(errs.Transaction, "sell", "sell of %v leaves nothing to sell", fraction)
	}
	full := amount == h.Amount

	e.logger.LogTradeAttempt(TradeSell, key, float64(amount))

	curve, price, err := e.Quote(ctx, mint)
	if err != nil {
		e.logger.LogTradeError(TradeSell, key, float64(amount), err)
		return nil, err
	}
	lamportsOut := pricing.ApplyFee(curve.SellQuote(amount), e.cfg.FeeBps)

	creator := h.Creator
	if creator == nil {
		creator = curve.Creator
	}
	accounts, err := pumpfun.DeriveCurveAccounts(mint, e.signer.PublicKey(), creator)
	if err != nil {
		return nil, errs.E(errs.Internal, "sell", err)
	}
	accounts.FeeRecipient = e.feeRecipientAddr()

	ixs, err := e.sellInstructions(accounts, amount, pricing.MinSOLOutput(lamportsOut, e.cfg.SlippageBps), full)
	if err != nil {
		return nil, err
	}

	sig, err := e.submitWithBackoff(ctx, ixs)
	if err != nil {
		e.logger.LogTradeError(TradeSell, key, float64(amount), err)
		return nil, err
	}

	proceeds := pricing.LamportsToSOL(lamportsOut)
	cost := h.SpentSOL * float64(amount) / float64(h.Amount)

	e.mu.Lock()
	if live, ok := e.holdings[key]; ok {
		if full {
			live.State = StateClosed
			live.Reason = reason
			delete(e.holdings, key)
		} else {
			live.Amount -= amount
			live.SpentSOL -= cost
		}
	}
	e.mu.Unlock()
	if full {
		e.unwatch(ctx, mint)
	}

	rec := newTradeRecord(&h, TradeSell, sig.String(), proceeds, amount, price, e.now())
	pl := decimal.NewFromFloat(proceeds - cost)
	pct := decimal.NewFromFloat(pricing.PnLPercent(cost, proceeds))
	rec.ProfitLoss = &pl
	rec.ProfitLossPercent = &pct
	rec.Reason = reason.String()

	e.logger.LogTradeSuccess(TradeSell, key, proceeds, sig.String(), price)
	e.record(rec)
	return &rec, nil
}

// Close sells the whole holding.
func (e *Engine) Close(ctx context.Context, mint solana.PublicKey, reason CloseReason) (*TradeRecord, error) {
	return e.Sell(ctx, mint, 1, reason)
}

func (e *Engine) sellInstructions(accounts *pumpfun.CurveAccounts, amount, minOut uint64, full bool) ([]solana.Instruction, error) {
	budget := pumpfun.ComputeBudget{UnitLimit: e.cfg.ComputeUnitsSell, UnitPrice: e.cfg.PriorityFee}
	ixs := budget.Instructions()

	sell, err := pumpfun.NewSellInstruction(accounts, pumpfun.SellArgs{Amount: amount, MinSOLOutput: minOut})
	if err != nil {
		return nil, errs.E(errs.Serialization, "sell", err)
	}
	ixs = append(ixs, sell)

	if full && e.cfg.CloseATA {
		ixs = append(ixs, pumpfun.NewCloseAccountInstruction(accounts.AssociatedUser, accounts.User, accounts.User))
	}
	return ixs, nil
}

// submit signs ixs against a fresh blockhash and sends them, preferring the
// submitter when one is configured.
func (e *Engine) submit(ctx context.Context, ixs []solana.Instruction) (solana.Signature, error) {
	blockhash, err := e.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(e.signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, errs.E(errs.Serialization, "build transaction", err)
	}
	wire, err := e.signer.Sign(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}

	if e.submitter != nil {
		sig, err := e.submitter.SendTransaction(ctx, wire)
		if err == nil {
			return sig, nil
		}
		e.logger.WithError(err).Warn("⚠️ Block engine submission failed, falling back to RPC")
	}
	return e.chain.SendTransaction(ctx, wire)
}

func (e *Engine) submitWithBackoff(ctx context.Context, ixs []solana.Instruction) (solana.Signature, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.SellMaxAttempts; attempt++ {
		sig, err := e.submit(ctx, ixs)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		if attempt == e.cfg.SellMaxAttempts-1 {
			break
		}

		delay := Backoff(e.cfg.SellBaseDelay, attempt)
		e.logger.WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		}).Warn("🔄 Sell submission failed, retrying")

		if err := e.sleep(ctx, delay); err != nil {
			return solana.Signature{}, errs.E(errs.Network, "sell", err)
		}
	}
	return solana.Signature{}, lastErr
}

func (e *Engine) record(rec TradeRecord) {
	if e.journal != nil {
		if err := e.journal.LogTrade(rec); err != nil {
			e.logger.WithError(err).Warn("⚠️ Failed to journal trade")
		}
	}
	if e.onTrade != nil {
		e.onTrade(rec)
	}
}

// CheckHoldings evaluates every Monitoring holding once and closes those
// whose exit condition is met. Closes run concurrently.
func (e *Engine) CheckHoldings(ctx context.Context) {
	var wg sync.WaitGroup
	for _, h := range e.Holdings() {
		if h.State != StateMonitoring {
			continue
		}

		price, err := e.CurrentPrice(ctx, h.Mint)
		if err != nil {
			e.logger.WithFields(h.LogFields()).WithError(err).Warn("⚠️ Failed to read price")
			continue
		}

		held := e.now().Sub(h.EntryTime)
		reason, ok := h.Config.Evaluate(h.EntryPrice, price, held)
		if !ok {
			e.logger.WithFields(h.LogFields()).WithFields(logrus.Fields{
				"price":   price,
				"pnl_pct": pricing.PnLPercent(h.EntryPrice, price),
			}).Debug("📈 Holding checked")
			continue
		}

		e.logger.WithFields(h.LogFields()).WithFields(logrus.Fields{
			"price":   price,
			"reason":  reason.String(),
			"held_s":  int64(held.Seconds()),
			"pnl_pct": pricing.PnLPercent(h.EntryPrice, price),
		}).Info("🎯 Exit condition met")

		wg.Add(1)
		go func(mint solana.PublicKey, reason CloseReason) {
			defer wg.Done()
			if _, err := e.Close(ctx, mint, reason); err != nil && !errors.Is(err, ErrSellInFlight) {
				e.logger.WithField("mint", mint.String()).WithError(err).Error("❌ Close failed, holding stays monitored")
			}
		}(h.Mint, reason)
	}
	wg.Wait()
}

// Monitor runs CheckHoldings on every tick until ctx ends.
func (e *Engine) Monitor(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()

	e.logger.WithField("interval", e.cfg.MonitorInterval.String()).Info("👀 Holding monitor started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.CheckHoldings(ctx)
		}
	}
}

// Holdings returns copies of the active holdings, oldest first.
func (e *Engine) Holdings() []Holding {
	e.mu.Lock()
	out := make([]Holding, 0, len(e.holdings))
	for _, h := range e.holdings {
		out = append(out, *h)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

func (e *Engine) Holding(mint solana.PublicKey) (Holding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.holdings[mint.String()]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Restore loads previously persisted holdings. Closed ones are skipped.
func (e *Engine) Restore(holdings []Holding) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for i := range holdings {
		h := holdings[i]
		if h.State == StateClosed || h.Amount == 0 {
			continue
		}
		h.State = StateMonitoring
		e.holdings[h.Mint.String()] = &h
		n++
	}
	return n
}

// AttachMetadata sets md on the holding in mint, if still open.
func (e *Engine) AttachMetadata(mint solana.PublicKey, md *metadata.TokenMetadata) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.holdings[mint.String()]
	if ok {
		h.Metadata = md
	}
	return ok
}
