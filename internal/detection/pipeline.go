package detection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/client"
	"pump-sniper-go/internal/logger"
	"pump-sniper-go/internal/pumpfun"
)

// Pipeline fans matched signatures out to a fixed set of workers and
// publishes the resulting candidates. Run may only be called once.
type Pipeline struct {
	detector   *Detector
	workers    int
	interval   time.Duration
	queue      chan string
	candidates chan *Candidate
	logger     *logger.Logger
}

func NewPipeline(d *Detector, cfg Config, log *logger.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = def.MetricsInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		detector:   d,
		workers:    cfg.Workers,
		interval:   cfg.MetricsInterval,
		queue:      make(chan string, cfg.QueueSize),
		candidates: make(chan *Candidate, cfg.QueueSize),
		logger:     log,
	}
}

// Candidates is closed once Run returns.
func (p *Pipeline) Candidates() <-chan *Candidate {
	return p.candidates
}

// Run consumes notifications until ctx ends or the channel closes.
func (p *Pipeline) Run(ctx context.Context, notifications <-chan client.LogsNotification) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}

	p.logger.WithField("workers", p.workers).Info("🔍 Detection pipeline started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	defer func() {
		close(p.queue)
		wg.Wait()
		close(p.candidates)
		p.logger.WithFields(p.detector.Metrics().Fields()).Info("🛑 Detection pipeline stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.logger.WithFields(p.detector.Metrics().Fields()).Info("📊 Detection metrics")
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			p.enqueue(&n)
		}
	}
}

func (p *Pipeline) enqueue(n *client.LogsNotification) {
	sig, ok := p.detector.Evaluate(n)
	if !ok {
		return
	}

	select {
	case p.queue <- sig:
	default:
		p.logger.WithFields(logrus.Fields{
			"signature":  sig,
			"queue_size": cap(p.queue),
		}).Warn("⚠️ Detection queue full, dropping event")
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	for sig := range p.queue {
		if ctx.Err() != nil {
			continue
		}

		cand, err := p.detector.Process(ctx, sig)
		switch {
		case err == nil:
		case errors.Is(err, ErrDuplicate), errors.Is(err, pumpfun.ErrNotCreation):
			continue
		default:
			p.logger.WithFields(logrus.Fields{
				"worker":    id,
				"signature": sig,
				"error":     err.Error(),
			}).Warn("⚠️ Failed to process creation")
			continue
		}

		select {
		case p.candidates <- cand:
		case <-ctx.Done():
		}
	}
}
