package risk

import (
	"context"
	"errors"
	"log"
	"time"

	"swap-guard/internal/domain"
	"swap-guard/internal/observability"
)

// DefaultScoreTimeout bounds a single model call when none is configured.
const DefaultScoreTimeout = 3 * time.Second

// FallbackScorer wraps a Scorer with an enforced timeout and the local rule.
// Score never returns an error.
type FallbackScorer struct {
	inner   Scorer
	timeout time.Duration
	logger  *log.Logger
}

// WithFallback wraps inner. A nil inner always uses the local rule.
func WithFallback(inner Scorer, timeout time.Duration, logger *log.Logger) *FallbackScorer {
	if timeout <= 0 {
		timeout = DefaultScoreTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackScorer{inner: inner, timeout: timeout, logger: logger}
}

type scoreOutcome struct {
	result *domain.RiskResult
	err    error
}

// Score returns the model result, or the local rule on any failure or timeout.
func (f *FallbackScorer) Score(ctx context.Context, a Assessment) (*domain.RiskResult, error) {
	if f.inner == nil {
		return f.fallback(a, "disabled"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan scoreOutcome, 1)
	go func() {
		res, err := f.inner.Score(ctx, a)
		done <- scoreOutcome{result: res, err: err}
	}()

	// The select returns on timeout even if the inner scorer ignores ctx
	select {
	case out := <-done:
		observability.RecordRiskScorerLatency(time.Since(start).Seconds())
		if out.err != nil {
			reason := "transport"
			if errors.Is(out.err, ErrInvalidResponse) {
				reason = "parse"
			} else if errors.Is(out.err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			f.logger.Printf("risk model failed (%s): %v; using local rule", reason, out.err)
			return f.fallback(a, reason), nil
		}
		if out.result == nil {
			return f.fallback(a, "parse"), nil
		}
		observability.RecordRiskResult(string(domain.RiskSourceModel), out.result.Score)
		return out.result, nil
	case <-ctx.Done():
		f.logger.Printf("risk model timed out after %v; using local rule", f.timeout)
		return f.fallback(a, "timeout"), nil
	}
}

func (f *FallbackScorer) fallback(a Assessment, reason string) *domain.RiskResult {
	observability.RecordRiskFallback(reason)
	res := LocalRule(a, reason)
	observability.RecordRiskResult(string(domain.RiskSourceFallback), res.Score)
	return res
}

var _ Scorer = (*FallbackScorer)(nil)
