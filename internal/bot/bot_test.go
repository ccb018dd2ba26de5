package bot

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-sniper-go/internal/client"
	"pump-sniper-go/internal/detection"
	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
	"pump-sniper-go/internal/metadata"
	"pump-sniper-go/internal/pricing"
	"pump-sniper-go/internal/pumpfun"
	"pump-sniper-go/internal/signer"
	"pump-sniper-go/internal/storage"
	"pump-sniper-go/internal/strategy"
	"pump-sniper-go/pkg/anchor"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

func curveBytes(vsol, vtok uint64) []byte {
	buf := new(bytes.Buffer)
	buf.Write(anchor.AccountDiscriminator("BondingCurve").Bytes())
	for _, v := range []uint64{vtok, vsol, vtok / 2, 1_000_000_000, 1_000_000_000_000_000} {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	buf.WriteByte(0)
	return buf.Bytes()
}

type fakeChain struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey][]byte
	sent     int
}

func (f *fakeChain) setCurve(t *testing.T, mint solana.PublicKey, vsol uint64) {
	t.Helper()
	addr, err := pumpfun.DeriveBondingCurve(mint)
	require.NoError(t, err)
	f.mu.Lock()
	f.accounts[addr] = curveBytes(vsol, 1_073_000_191_000_000)
	f.mu.Unlock()
}

func (f *fakeChain) GetAccountData(_ context.Context, pk solana.PublicKey) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.accounts[pk]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "getAccountInfo", "account %s not found", pk)
	}
	return data, nil
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (f *fakeChain) SendTransaction(context.Context, []byte) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return solana.Signature{byte(f.sent)}, nil
}

func (f *fakeChain) ConfirmTransaction(context.Context, solana.Signature, time.Duration) error {
	return nil
}

func (f *fakeChain) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fakeFeed struct {
	ch         chan client.LogsNotification
	subscribed chan string

	// failures is how many Subscribe calls fail before one succeeds.
	failures int32
	attempts atomic.Int32
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan client.LogsNotification, 8), subscribed: make(chan string, 1)}
}

func (f *fakeFeed) Listen(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeFeed) Subscribe(_ context.Context, mentions string) (uint64, error) {
	if f.attempts.Add(1) <= f.failures {
		return 0, client.ErrConnectionClosed
	}
	f.subscribed <- mentions
	return 7, nil
}

func (f *fakeFeed) Notifications() <-chan client.LogsNotification { return f.ch }

type noTx struct{}

func (noTx) GetTransaction(context.Context, string) (json.RawMessage, error) {
	return nil, errs.Errorf(errs.NotFound, "getTransaction", "not found")
}

type fakeMeta struct{}

func (fakeMeta) Fetch(_ context.Context, mint solana.PublicKey) (*metadata.TokenMetadata, error) {
	return &metadata.TokenMetadata{Name: "Moon Cat", Symbol: "MCAT", Image: "https://img/" + mint.String()}, nil
}

type fixture struct {
	bot    *Bot
	chain  *fakeChain
	feed   *fakeFeed
	store  storage.Store
	signer *signer.LocalSigner
}

func newFixture(t *testing.T, store storage.Store, s *signer.LocalSigner) *fixture {
	t.Helper()
	if store == nil {
		fs, err := storage.NewFileStore(t.TempDir())
		require.NoError(t, err)
		store = fs
	}
	if s == nil {
		var err error
		s, err = signer.Generate()
		require.NoError(t, err)
	}
	chain := &fakeChain{accounts: make(map[solana.PublicKey][]byte)}
	feed := newFakeFeed()

	b, err := New(Config{
		Trading:   strategy.DefaultTradingConfig(),
		Strategy:  strategy.DefaultConfig(),
		Detection: detection.DefaultConfig(),

		SubscribeRetry: 10 * time.Millisecond,
	}, Deps{
		Chain:         chain,
		Fetcher:       noTx{},
		Signer:        s,
		Store:         store,
		Feed:          feed,
		Metadata:      fakeMeta{},
		Logger:        logger.NewNop(),
		EngineOptions: []strategy.Option{strategy.WithPriceCache(pricing.NewPriceCache(8, 0))},
	})
	require.NoError(t, err)
	return &fixture{bot: b, chain: chain, feed: feed, store: store, signer: s}
}

func TestNewPersistsDefaultSettings(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Equal(t, DefaultSettings(), f.bot.Settings())

	stored, ok, err := storage.LoadJSON[UserSettings](f.store, storage.KeySettings)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultSettings(), stored)

	custom := DefaultSettings()
	custom.TakeProfitPercent = 80
	require.NoError(t, f.bot.UpdateSettings(custom))

	again := newFixture(t, f.store, f.signer)
	assert.Equal(t, 80.0, again.bot.Settings().TakeProfitPercent)

	bad := custom
	bad.StopLossPercent = 5
	assert.True(t, errs.IsKind(f.bot.UpdateSettings(bad), errs.Config))
}

func TestConnectWallet(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	err := f.bot.ConnectWallet(ctx, "not-a-key")
	assert.True(t, errs.IsKind(err, errs.Wallet))

	err = f.bot.ConnectWallet(ctx, newKey(t).String())
	assert.True(t, errs.IsKind(err, errs.Unauthorized))

	addr := f.signer.PublicKey().String()
	require.NoError(t, f.bot.ConnectWallet(ctx, addr))

	acct, ok, err := storage.LoadJSON[UserAccount](f.store, storage.UserKey(addr))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, addr, acct.WalletAddress)
	assert.Equal(t, DefaultSettings(), acct.Settings)

	created := acct.CreatedAt
	require.NoError(t, f.bot.ConnectWallet(ctx, addr))
	acct, _, err = storage.LoadJSON[UserAccount](f.store, storage.UserKey(addr))
	require.NoError(t, err)
	assert.True(t, created.Equal(acct.CreatedAt))
}

func TestBuySellPersistsState(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.bot.ConnectWallet(ctx, f.signer.PublicKey().String()))

	mint := newKey(t)
	f.chain.setCurve(t, mint, 30_000_000_000)

	h, err := f.bot.ExecuteBuy(ctx, mint.String(), 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, h.SpentSOL, 1e-12)
	require.NotNil(t, h.Metadata)
	assert.Equal(t, "MCAT", h.Metadata.Symbol)

	portfolio := f.bot.GetPortfolio()
	require.Len(t, portfolio, 1)
	assert.Equal(t, "MCAT", portfolio[0].Symbol())

	held, _, err := storage.LoadJSON[[]strategy.Holding](f.store, storage.KeyHoldings)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, mint, held[0].Mint)
	assert.Equal(t, strategy.StateMonitoring, held[0].State)
	require.NotNil(t, held[0].Metadata, "holdings are saved again once metadata arrives")
	assert.Equal(t, "MCAT", held[0].Metadata.Symbol)

	f.chain.setCurve(t, mint, 45_000_000_000)
	rec, err := f.bot.ExecuteSell(ctx, mint.String(), 1)
	require.NoError(t, err)
	assert.Equal(t, "manual", rec.Reason)
	assert.True(t, rec.ProfitLoss.IsPositive())
	assert.Empty(t, f.bot.GetPortfolio())

	held, _, err = storage.LoadJSON[[]strategy.Holding](f.store, storage.KeyHoldings)
	require.NoError(t, err)
	assert.Empty(t, held)

	trades, _, err := storage.LoadJSON[[]strategy.TradeRecord](f.store, storage.KeyTrades)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, strategy.TradeBuy, trades[0].TradeType)
	assert.Equal(t, strategy.TradeSell, trades[1].TradeType)

	acct, ok := f.bot.Account()
	require.True(t, ok)
	assert.Equal(t, 2, acct.TotalTrades)
	assert.True(t, acct.TotalProfitLoss.Equal(*rec.ProfitLoss))

	_, err = f.bot.ExecuteSell(ctx, "bad", 1)
	assert.True(t, errs.IsKind(err, errs.Parse))
}

func TestRestoreAcrossRestart(t *testing.T) {
	f := newFixture(t, nil, nil)
	mint := newKey(t)
	f.chain.setCurve(t, mint, 30_000_000_000)
	_, err := f.bot.ExecuteBuy(context.Background(), mint.String(), 0.05)
	require.NoError(t, err)

	again := newFixture(t, f.store, f.signer)
	portfolio := again.bot.GetPortfolio()
	require.Len(t, portfolio, 1)
	assert.Equal(t, mint, portfolio[0].Mint)
	assert.Len(t, again.bot.Trades(), 1)
	assert.Equal(t, 1, again.bot.GetStatus().Trades)
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.bot.StopBot(), ErrNotRunning)
	assert.Error(t, f.bot.StartBot(ctx, Mode("paper")))

	require.NoError(t, f.bot.StartBot(ctx, ModeDryRun))
	assert.ErrorIs(t, f.bot.StartBot(ctx, ModeDryRun), ErrAlreadyRunning)

	select {
	case m := <-f.feed.subscribed:
		assert.Equal(t, pumpfun.ProgramID.String(), m)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription")
	}

	n := client.LogsNotification{Method: "logsNotification"}
	n.Params.Result.Value.Signature = "sig-1"
	n.Params.Result.Value.Logs = []string{"Program log: Instruction: Create"}
	f.feed.ch <- n

	require.Eventually(t, func() bool {
		return f.bot.GetStatus().Detection.Received == 1
	}, 2*time.Second, 10*time.Millisecond)

	st := f.bot.GetStatus()
	assert.True(t, st.Running)
	assert.Equal(t, ModeDryRun, st.Mode)
	assert.Equal(t, f.signer.PublicKey().String(), st.Wallet)

	require.NoError(t, f.bot.StopBot())
	assert.False(t, f.bot.GetStatus().Running)

	state, ok, err := storage.LoadJSON[persistedState](f.store, storage.KeyState)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, state.Running)
	assert.Equal(t, ModeDryRun, state.Mode)
	assert.False(t, state.StoppedAt.IsZero())
}

func TestStartBotRetriesSubscribeAfterDroppedConnection(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.feed.failures = 2

	require.NoError(t, f.bot.StartBot(context.Background(), ModeDryRun))
	defer f.bot.StopBot()

	select {
	case m := <-f.feed.subscribed:
		assert.Equal(t, pumpfun.ProgramID.String(), m)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not retried")
	}
	assert.Equal(t, int32(3), f.feed.attempts.Load())
	assert.True(t, f.bot.GetStatus().Running, "a failed subscribe must not stop the bot")

	select {
	case <-f.bot.Done():
		t.Fatal("bot stopped after a failed subscribe")
	default:
	}
}

func TestStartBotStopsWithContext(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.bot.StartBot(ctx, ModeReal))

	cancel()
	select {
	case <-f.bot.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.False(t, f.bot.GetStatus().Running)
}

func TestHandleCandidate(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	mint := newKey(t)
	f.chain.setCurve(t, mint, 30_000_000_000)
	c := &detection.Candidate{Mint: mint, Creator: newKey(t), Name: "Event Name", Symbol: "EVT"}

	f.bot.handleCandidate(ctx, ModeDryRun, c)
	assert.Empty(t, f.bot.GetPortfolio())
	assert.Equal(t, 0, f.chain.sentCount())

	f.bot.handleCandidate(ctx, ModeReal, c)
	portfolio := f.bot.GetPortfolio()
	require.Len(t, portfolio, 1)
	assert.Equal(t, "MCAT", portfolio[0].Symbol())
	assert.Equal(t, c.Creator, *portfolio[0].Creator)
	assert.Equal(t, 1, f.chain.sentCount())

	missing := &detection.Candidate{Mint: newKey(t)}
	f.bot.handleCandidate(ctx, ModeReal, missing)
	assert.Len(t, f.bot.GetPortfolio(), 1)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Dry-Run")
	require.NoError(t, err)
	assert.Equal(t, ModeDryRun, m)

	m, err = ParseMode("real")
	require.NoError(t, err)
	assert.Equal(t, ModeReal, m)

	_, err = ParseMode("yolo")
	assert.True(t, errs.IsKind(err, errs.Config))
}
