package detection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/client"
	"pump-sniper-go/internal/logger"
	"pump-sniper-go/internal/pumpfun"
)

// ErrDuplicate is returned by Process for a mint that has already been handled.
var ErrDuplicate = errors.New("mint already processed")

// TxFetcher fetches a transaction by signature. *client.Pool satisfies it.
type TxFetcher interface {
	GetTransaction(ctx context.Context, signature string) (json.RawMessage, error)
}

// Config controls filtering, deduplication and the worker pool.
type Config struct {
	Patterns        []string
	Exclude         []string
	SeenCapacity    int
	FetchAttempts   int
	RetryBase       time.Duration
	Workers         int
	QueueSize       int
	MetricsInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Patterns:        DefaultPatterns,
		Exclude:         DefaultExclude,
		SeenCapacity:    10000,
		FetchAttempts:   3,
		RetryBase:       200 * time.Millisecond,
		Workers:         4,
		QueueSize:       256,
		MetricsInterval: time.Minute,
	}
}

// Candidate is a freshly created token ready for the strategy to evaluate.
type Candidate struct {
	Signature    string               `json:"signature"`
	Mint         solana.PublicKey     `json:"mint"`
	BondingCurve solana.PublicKey     `json:"bonding_curve"`
	Holder       solana.PublicKey     `json:"holder"`
	Creator      solana.PublicKey     `json:"creator"`
	Name         string               `json:"name,omitempty"`
	Symbol       string               `json:"symbol,omitempty"`
	URI          string               `json:"uri,omitempty"`
	Slot         uint64               `json:"slot,omitempty"`
	DetectedAt   time.Time            `json:"detected_at"`
	Latency      time.Duration        `json:"latency"`
	PumpSuffix   bool                 `json:"pump_suffix"`
	Event        *pumpfun.CreateEvent `json:"-"`
}

func (c *Candidate) LogFields() logrus.Fields {
	return logrus.Fields{
		"signature":  c.Signature,
		"mint":       c.Mint.String(),
		"creator":    c.Creator.String(),
		"name":       c.Name,
		"symbol":     c.Symbol,
		"slot":       c.Slot,
		"latency_ms": c.Latency.Milliseconds(),
		"vanity":     c.PumpSuffix,
	}
}

// txEnvelope is the part of a getTransaction result used for enrichment.
type txEnvelope struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		LogMessages []string `json:"logMessages"`
	} `json:"meta"`
}

// Detector turns matched notifications into deduplicated candidates.
type Detector struct {
	cfg     Config
	filter  *Filter
	seen    *SeenSet
	metrics *Metrics
	fetcher TxFetcher
	logger  *logger.Logger
}

func NewDetector(cfg Config, fetcher TxFetcher, log *logger.Logger) *Detector {
	def := DefaultConfig()
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = def.SeenCapacity
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = def.FetchAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Detector{
		cfg:     cfg,
		filter:  NewFilter(cfg.Patterns, cfg.Exclude),
		seen:    NewSeenSet(cfg.SeenCapacity),
		metrics: &Metrics{},
		fetcher: fetcher,
		logger:  log,
	}
}

func (d *Detector) Metrics() Snapshot { return d.metrics.Snapshot() }

// Evaluate counts n as received and runs it through the log filter.
func (d *Detector) Evaluate(n *client.LogsNotification) (string, bool) {
	d.metrics.received.Add(1)
	sig, ok := d.filter.Evaluate(n)
	if !ok {
		d.metrics.filtered.Add(1)
		return "", false
	}
	return sig, true
}

// Dispatch is the seen-set gate. It reports whether mint is new and counts a
// pass or a duplicate accordingly.
func (d *Detector) Dispatch(mint string) bool {
	if !d.seen.Add(mint) {
		d.metrics.duplicates.Add(1)
		return false
	}
	d.metrics.passed.Add(1)
	return true
}

// Process fetches and parses the transaction behind signature.
func (d *Detector) Process(ctx context.Context, signature string) (*Candidate, error) {
	start := time.Now()

	var raw json.RawMessage
	err := client.WithRetry(ctx, d.cfg.FetchAttempts, d.cfg.RetryBase, func(ctx context.Context) error {
		var err error
		raw, err = d.fetcher.GetTransaction(ctx, signature)
		return err
	})
	if err != nil {
		d.metrics.failures.Add(1)
		return nil, err
	}

	info, err := pumpfun.ParseCreateTransaction(raw)
	if err != nil {
		d.metrics.failures.Add(1)
		return nil, err
	}

	cand := &Candidate{
		Signature:    signature,
		Mint:         info.Mint,
		BondingCurve: info.BondingCurve,
		Holder:       info.Holder,
		Creator:      info.Creator,
		PumpSuffix:   info.HasPumpSuffix(),
	}
	enrich(cand, raw)

	if !d.Dispatch(cand.Mint.String()) {
		d.logger.WithFields(logrus.Fields{
			"mint":      cand.Mint.String(),
			"signature": signature,
		}).Debug("🔁 Duplicate mint skipped")
		return nil, ErrDuplicate
	}

	cand.DetectedAt = time.Now()
	cand.Latency = cand.DetectedAt.Sub(start)
	d.metrics.detected.Add(1)

	d.logger.LogTokenDiscovered(cand.Mint.String(), cand.Creator.String(), cand.Name, cand.Symbol)
	return cand, nil
}

// enrich fills name, symbol and the creator argument from the create event in the logs.
func enrich(c *Candidate, raw json.RawMessage) {
	var env txEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	c.Slot = env.Slot
	if env.Meta == nil {
		return
	}
	ev, ok := pumpfun.DecodeCreateEvent(env.Meta.LogMessages)
	if !ok || !ev.Mint.Equals(c.Mint) {
		return
	}
	c.Event = ev
	c.Name, c.Symbol, c.URI = ev.Name, ev.Symbol, ev.URI
	if ev.Creator != nil && !ev.Creator.IsZero() {
		c.Creator = *ev.Creator
	}
}
