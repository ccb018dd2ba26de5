package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-sniper-go/internal/client"
	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/pumpfun"
	"pump-sniper-go/pkg/anchor"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

func notification(sig string, failed bool, logs ...string) *client.LogsNotification {
	n := &client.LogsNotification{Method: "logsNotification"}
	n.Params.Result.Value.Signature = sig
	n.Params.Result.Value.Logs = logs
	if failed {
		n.Params.Result.Value.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	}
	return n
}

type fakeFetcher struct {
	mu    sync.Mutex
	txs   map[string]json.RawMessage
	errs  []error
	calls int
}

func (f *fakeFetcher) GetTransaction(_ context.Context, sig string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	raw, ok := f.txs[sig]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "getTransaction", "transaction %s not found", sig)
	}
	return raw, nil
}

type createFixture struct {
	mint, curve, user, creator solana.PublicKey
}

func createTx(t *testing.T, fx createFixture, withEvent bool) json.RawMessage {
	t.Helper()

	other := newKey(t)
	data := append(pumpfun.CreateDiscriminator.Bytes(), 4, 0, 0, 0, 'n', 'a', 'm', 'e')
	accounts := []string{
		fx.mint.String(), other.String(), fx.curve.String(), other.String(),
		other.String(), other.String(), other.String(), fx.user.String(),
	}

	var logs []string
	if withEvent {
		buf := new(bytes.Buffer)
		buf.Write(anchor.EventDiscriminator("CreateEvent").Bytes())
		enc := bin.NewBorshEncoder(buf)
		require.NoError(t, enc.WriteString("Moon Cat"))
		require.NoError(t, enc.WriteString("MCAT"))
		require.NoError(t, enc.WriteString("https://example.org/mcat.json"))
		buf.Write(fx.mint.Bytes())
		buf.Write(fx.curve.Bytes())
		buf.Write(fx.user.Bytes())
		buf.Write(fx.creator.Bytes())
		logs = []string{
			"Program log: Instruction: Create",
			"Program data: " + base64.StdEncoding.EncodeToString(buf.Bytes()),
		}
	}

	tx := map[string]interface{}{
		"slot": 321,
		"transaction": map[string]interface{}{
			"signatures": []string{"sig"},
			"message": map[string]interface{}{
				"accountKeys": []string{fx.user.String()},
				"instructions": []interface{}{
					map[string]interface{}{
						"programId": pumpfun.ProgramID.String(),
						"accounts":  accounts,
						"data":      base58.Encode(data),
					},
				},
			},
		},
		"meta": map[string]interface{}{"err": nil, "logMessages": logs},
	}
	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	return raw
}

func TestFilterScenarioC(t *testing.T) {
	f := NewFilter(nil, nil)

	sig, ok := f.Evaluate(notification("abc", false, "Program log: Instruction: Create"))
	assert.True(t, ok)
	assert.Equal(t, "abc", sig)

	_, ok = f.Evaluate(notification("abc", true, "Program log: Instruction: Create"))
	assert.False(t, ok)
}

func TestFilterRejects(t *testing.T) {
	f := NewFilter(nil, nil)

	tests := []struct {
		name string
		n    *client.LogsNotification
	}{
		{"nil", nil},
		{"wrong method", func() *client.LogsNotification {
			n := notification("a", false, "Program log: Instruction: Create")
			n.Method = "accountNotification"
			return n
		}()},
		{"no match", notification("a", false, "Program log: Instruction: Buy")},
		{"token account only", notification("a", false, "Program log: Instruction: CreateTokenAccount")},
		{"empty signature", notification("", false, "Program log: Instruction: Create")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := f.Evaluate(tt.n)
			assert.False(t, ok)
		})
	}

	sig, ok := f.Evaluate(notification("b", false,
		"Program log: Instruction: CreateTokenAccount",
		"Program log: Instruction: create",
	))
	assert.True(t, ok)
	assert.Equal(t, "b", sig)

	custom := NewFilter([]string{"Instruction: Launch"}, []string{})
	_, ok = custom.Evaluate(notification("c", false, "Program log: Instruction: Launch"))
	assert.True(t, ok)
}

func TestSeenSetEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewSeenSet(2)
	assert.True(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("c"))

	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	assert.True(t, s.Contains("c"))
	assert.Equal(t, 2, s.Len())
}

func TestDispatchDeduplicates(t *testing.T) {
	d := NewDetector(DefaultConfig(), &fakeFetcher{}, nil)

	assert.True(t, d.Dispatch("MintA"))
	assert.False(t, d.Dispatch("MintA"))

	m := d.Metrics()
	assert.Equal(t, uint64(1), m.Passed)
	assert.Equal(t, uint64(1), m.Duplicates)
}

func TestEvaluateCounts(t *testing.T) {
	d := NewDetector(DefaultConfig(), &fakeFetcher{}, nil)

	d.Evaluate(notification("a", false, "Program log: Instruction: Create"))
	d.Evaluate(notification("b", true, "Program log: Instruction: Create"))
	d.Evaluate(notification("c", false, "Program log: Instruction: Sell"))
	d.Evaluate(notification("d", false, "Program log: Instruction: Buy"))

	m := d.Metrics()
	assert.Equal(t, uint64(4), m.Received)
	assert.Equal(t, uint64(3), m.Filtered)
	assert.InDelta(t, 75.0, m.FilterEffectiveness(), 1e-9)
	assert.LessOrEqual(t, m.Filtered, m.Received)
}

func TestProcessProducesCandidate(t *testing.T) {
	fx := createFixture{mint: newKey(t), curve: newKey(t), user: newKey(t), creator: newKey(t)}
	fetcher := &fakeFetcher{txs: map[string]json.RawMessage{"sig1": createTx(t, fx, true)}}
	d := NewDetector(DefaultConfig(), fetcher, nil)

	cand, err := d.Process(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, fx.mint, cand.Mint)
	assert.Equal(t, fx.curve, cand.BondingCurve)
	assert.Equal(t, fx.creator, cand.Creator)
	assert.Equal(t, "Moon Cat", cand.Name)
	assert.Equal(t, "MCAT", cand.Symbol)
	assert.Equal(t, uint64(321), cand.Slot)
	assert.False(t, cand.DetectedAt.IsZero())
	assert.Equal(t, strings.HasSuffix(fx.mint.String(), "pump"), cand.PumpSuffix)
	assert.Equal(t, cand.PumpSuffix, cand.LogFields()["vanity"])

	_, err = d.Process(context.Background(), "sig1")
	assert.ErrorIs(t, err, ErrDuplicate)

	m := d.Metrics()
	assert.Equal(t, uint64(1), m.Detected)
	assert.Equal(t, uint64(1), m.Passed)
	assert.Equal(t, uint64(1), m.Duplicates)
	assert.InDelta(t, 100.0, m.SuccessRate(), 1e-9)
}

func TestProcessWithoutEventKeepsInstructionCreator(t *testing.T) {
	fx := createFixture{mint: newKey(t), curve: newKey(t), user: newKey(t)}
	fetcher := &fakeFetcher{txs: map[string]json.RawMessage{"sig1": createTx(t, fx, false)}}
	d := NewDetector(DefaultConfig(), fetcher, nil)

	cand, err := d.Process(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, fx.user, cand.Creator)
	assert.Empty(t, cand.Name)
}

func TestProcessRetriesRateLimit(t *testing.T) {
	fx := createFixture{mint: newKey(t), curve: newKey(t), user: newKey(t), creator: newKey(t)}
	fetcher := &fakeFetcher{
		txs:  map[string]json.RawMessage{"sig1": createTx(t, fx, true)},
		errs: []error{errs.Errorf(errs.Rpc, "getTransaction", "HTTP error 429: Too many requests")},
	}
	cfg := DefaultConfig()
	cfg.RetryBase = time.Millisecond
	d := NewDetector(cfg, fetcher, nil)

	_, err := d.Process(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestProcessCountsFailures(t *testing.T) {
	fetcher := &fakeFetcher{txs: map[string]json.RawMessage{
		"garbage": json.RawMessage(`{"transaction":{"message":{"accountKeys":["x"],"instructions":[]}}}`),
	}}
	d := NewDetector(DefaultConfig(), fetcher, nil)

	_, err := d.Process(context.Background(), "missing")
	assert.True(t, errs.IsKind(err, errs.NotFound))

	_, err = d.Process(context.Background(), "garbage")
	assert.True(t, errors.Is(err, pumpfun.ErrNotCreation))

	assert.Equal(t, uint64(2), d.Metrics().Failures)
	assert.Equal(t, uint64(0), d.Metrics().Detected)
}

func TestPipelineEmitsCandidates(t *testing.T) {
	fx := createFixture{mint: newKey(t), curve: newKey(t), user: newKey(t), creator: newKey(t)}
	fetcher := &fakeFetcher{txs: map[string]json.RawMessage{
		"sig1": createTx(t, fx, true),
		"sig2": createTx(t, fx, true),
	}}
	cfg := DefaultConfig()
	cfg.Workers = 2
	d := NewDetector(cfg, fetcher, nil)
	p := NewPipeline(d, cfg, nil)

	in := make(chan client.LogsNotification, 4)
	in <- *notification("sig1", false, "Program log: Instruction: Create")
	in <- *notification("sig2", false, "Program log: Instruction: Create")
	in <- *notification("sig3", false, "Program log: Instruction: Buy")
	close(in)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), in) }()

	var got []*Candidate
	for c := range p.Candidates() {
		got = append(got, c)
	}
	require.NoError(t, <-done)

	require.Len(t, got, 1)
	assert.Equal(t, fx.mint, got[0].Mint)

	m := d.Metrics()
	assert.Equal(t, uint64(3), m.Received)
	assert.Equal(t, uint64(1), m.Filtered)
	assert.Equal(t, uint64(1), m.Passed)
	assert.Equal(t, uint64(1), m.Duplicates)
}

func TestPipelineStopsOnCancel(t *testing.T) {
	d := NewDetector(DefaultConfig(), &fakeFetcher{}, nil)
	p := NewPipeline(d, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, make(chan client.LogsNotification)) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	_, open := <-p.Candidates()
	assert.False(t, open)
}
