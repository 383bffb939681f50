package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder waits for a token before each embedding request.
type RateLimitedEmbedder struct {
	next    Embedder
	limiter *rate.Limiter
}

func NewRateLimitedEmbedder(next Embedder, perSecond float64, burst int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return r.next.Embed(ctx, text)
}

func (r *RateLimitedEmbedder) ModelName() string {
	return r.next.ModelName()
}
