package crawler

import (
	"context"
	"math/rand"
	"time"

	"github.com/ternarybob/recap/internal/common"
	"golang.org/x/time/rate"
)

// Pacer spaces page requests so the crawl stays polite: a token-bucket
// limiter enforces the minimum delay between requests, and a random jitter
// on top keeps the request pattern from looking mechanical.
type Pacer struct {
	limiter     *rate.Limiter
	randomDelay time.Duration
}

// NewPacer builds a pacer from fetcher configuration.
func NewPacer(cfg *common.FetcherConfig) *Pacer {
	delay := common.MustDuration(cfg.RequestDelay)
	return &Pacer{
		limiter:     rate.NewLimiter(rate.Every(delay), 1),
		randomDelay: common.MustDuration(cfg.RandomDelay),
	}
}

// Wait blocks until the next request is allowed or the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	if p.randomDelay <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(p.randomDelay)))
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
