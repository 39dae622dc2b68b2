package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
)

// RateLimited spaces out calls to a generator. A zero or negative rate disables limiting.
type RateLimited struct {
	next    ports.Generator
	limiter *rate.Limiter
}

func NewRateLimited(next ports.Generator, rps float64) ports.Generator {
	if rps <= 0 {
		return next
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Generate(ctx context.Context, prompt domain.Prompt, params domain.GenerationParams) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "rate limit wait", domain.WrapError(domain.ErrTemporary, "rate limit wait", err))
	}
	return r.next.Generate(ctx, prompt, params)
}
