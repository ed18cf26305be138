package verifier

import (
	"context"
	"time"

	"github.com/thep200/github-verifier/pkg/log"
)

// withBackoff bọc một lần submit chunk: khi gặp lỗi quota thì retry chính chunk đó
// với exponential backoff thay vì bỏ qua và nhảy sang chunk tiếp theo.
// Lỗi không phải quota được trả về ngay để caller fallback.
func withBackoff(ctx context.Context, logger log.Logger, base, maxDelay time.Duration, maxRetries int, fn func() error) error {
	delay := base

	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !IsQuotaError(err) || attempt >= maxRetries {
			return err
		}

		logger.Warn(ctx, "Quota exceeded, retrying chunk after %v (attempt %d/%d): %v",
			delay, attempt+1, maxRetries, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
