package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/detection"
	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/metadata"
	"pump-sniper-go/internal/strategy"
)

// StartBot starts the subscription, the detection pipeline and, in real
// mode, the holding monitor. The loops run until StopBot or ctx ends.
func (b *Bot) StartBot(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	if b.feed == nil || b.detector == nil {
		return errs.Errorf(errs.Config, "start bot", "no log feed or transaction fetcher configured")
	}
	if mode == ModeReal && !b.signer.IsReady() {
		return errs.Errorf(errs.Unauthorized, "start bot", "signer is not ready for real trading")
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.running = true
	b.mode = mode
	b.startedAt = b.now()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	if mode == ModeReal && b.cfg.RefreshFeeRecipient {
		if err := b.engine.RefreshFeeRecipient(runCtx); err != nil {
			b.logger.WithError(err).Warn("⚠️ Could not read fee recipient, using default")
		}
	}

	pipeline := detection.NewPipeline(b.detector, b.cfg.Detection, b.logger)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := b.feed.Listen(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.WithError(err).Error("❌ Log subscription stopped")
		}
	}()
	go func() {
		defer wg.Done()
		b.subscribe(runCtx)
	}()
	go func() {
		defer wg.Done()
		_ = pipeline.Run(runCtx, b.feed.Notifications())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.consume(runCtx, mode, pipeline.Candidates())
	}()

	if mode == ModeReal {
		if n := b.engine.WatchHoldings(runCtx); n > 0 {
			b.logger.WithField("holdings", n).Info("📡 Streaming prices for restored holdings")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.engine.Monitor(runCtx)
		}()
	}

	go func() {
		wg.Wait()
		cancel()
		b.mu.Lock()
		b.running = false
		b.cancel = nil
		b.mu.Unlock()
		b.saveState()
		close(done)
	}()

	b.saveState()
	b.logger.WithFields(logrus.Fields{
		"mode":     string(mode),
		"wallet":   b.signer.PublicKey().String(),
		"holdings": len(b.engine.Holdings()),
	}).Info("🎯 Bot started - listening for new tokens!")
	return nil
}

// subscribe retries until the feed confirms the subscription or ctx ends.
// A failed attempt never stops the bot; the feed replays known mentions
// when it reconnects.
func (b *Bot) subscribe(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		id, err := b.feed.Subscribe(ctx, b.cfg.Mentions)
		if err == nil {
			b.logger.WithFields(logrus.Fields{
				"mentions":        b.cfg.Mentions,
				"subscription_id": id,
			}).Info("📡 Subscribed to program logs")
			return
		}
		if ctx.Err() != nil {
			return
		}
		b.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   b.cfg.SubscribeRetry,
		}).Warn("⚠️ Failed to subscribe to program logs, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.SubscribeRetry):
		}
	}
}

// StopBot cancels the loops and waits for them to finish.
func (b *Bot) StopBot() error {
	b.mu.Lock()
	if !b.running || b.cancel == nil {
		b.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	<-done

	b.logger.LogShutdown("stop requested")
	return nil
}

// Done is closed when the loops of the current run have exited.
func (b *Bot) Done() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return b.done
}

// consume handles candidates concurrently and returns once the pipeline has
// closed its output and every handler is done.
func (b *Bot) consume(ctx context.Context, mode Mode, candidates <-chan *detection.Candidate) {
	var wg sync.WaitGroup
	for c := range candidates {
		wg.Add(1)
		go func(c *detection.Candidate) {
			defer wg.Done()
			b.handleCandidate(ctx, mode, c)
		}(c)
	}
	wg.Wait()
}

func (b *Bot) handleCandidate(ctx context.Context, mode Mode, c *detection.Candidate) {
	settings := b.Settings()
	cfg := settings.Strategy(b.cfg.Strategy)

	if mode == ModeDryRun {
		q, err := b.engine.EvaluateEntry(ctx, c.Mint, settings.BuyAmountSOL, cfg)
		if err != nil {
			b.logger.WithFields(c.LogFields()).WithError(err).Warn("⚠️ Dry run quote failed")
			return
		}
		if !q.Accept {
			b.logger.LogFilterReject(c.Mint.String(), q.Reason)
			return
		}
		b.logger.WithFields(c.LogFields()).WithFields(logrus.Fields{
			"amount_sol":   settings.BuyAmountSOL,
			"tokens":       q.Tokens,
			"price":        q.Price,
			"max_sol_cost": q.MaxSOLCost,
		}).Info("🧪 Dry run: would buy")
		return
	}

	creator := c.Creator
	req := strategy.BuyRequest{
		Mint:      c.Mint,
		Creator:   &creator,
		AmountSOL: settings.BuyAmountSOL,
		Strategy:  cfg,
	}
	if c.Name != "" || c.Symbol != "" || c.URI != "" {
		req.Metadata = &metadata.TokenMetadata{Name: c.Name, Symbol: c.Symbol, URI: c.URI}
	}

	_, err := b.engine.Buy(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, strategy.ErrRejected):
		return
	case errors.Is(err, strategy.ErrAlreadyHeld), errors.Is(err, strategy.ErrMaxHoldings):
		b.logger.WithFields(c.LogFields()).WithError(err).Info("⏭️ Candidate skipped")
		return
	default:
		b.logger.WithFields(c.LogFields()).WithError(err).Warn("⚠️ Buy failed, candidate dropped")
		return
	}

	b.attachMetadata(ctx, c.Mint)
}
