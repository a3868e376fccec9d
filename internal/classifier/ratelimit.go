package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/freshness/internal/platform/logger"
	"golang.org/x/time/rate"
)

// RateLimited bounds how fast and how long calls to the wrapped Classifier
// may run. Waiting for a token counts against the caller's context, not
// the per-call timeout.
type RateLimited struct {
	inner   Classifier
	limiter *rate.Limiter
	timeout time.Duration
}

// NewRateLimited wraps inner with a token bucket of perSecond tokens and the
// given burst. A non-positive timeout disables the per-call deadline.
func NewRateLimited(inner Classifier, perSecond float64, burst int, timeout time.Duration) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
		timeout: timeout,
	}
}

// Classify implements Classifier.
func (r *RateLimited) Classify(ctx context.Context, in Input) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrTransient, err)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.inner.Classify(callCtx, in)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		logger.FromContext(ctx).Warn("classifier call timed out",
			slog.Duration("timeout", r.timeout),
			slog.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("%w: call timed out after %s", ErrTransient, r.timeout)
	}
	return resp, err
}
