package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

// strategy is one step of the answer fallback chain.
type strategy struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// firstSuccess tries strategies in order and returns the first non-empty text.
// Every attempt is recorded. Blank output counts as a generation failure.
func firstSuccess(ctx context.Context, strategies []strategy) (string, string, []domain.StrategyAttempt, error) {
	attempts := make([]domain.StrategyAttempt, 0, len(strategies))
	var errs []error
	for _, s := range strategies {
		start := time.Now()
		text, err := s.run(ctx)
		if err == nil && strings.TrimSpace(text) == "" {
			err = domain.WrapError(domain.ErrGeneration, s.name, errors.New("empty output"))
		}
		attempt := domain.StrategyAttempt{Strategy: s.name, Duration: time.Since(start)}
		if err != nil {
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		attempts = append(attempts, attempt)
		return strings.TrimSpace(text), s.name, attempts, nil
	}
	if len(errs) == 0 {
		return "", "", attempts, errors.New("no strategies")
	}
	return "", "", attempts, errors.Join(errs...)
}
