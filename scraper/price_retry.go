package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryOptions configures navigation retries
type RetryOptions struct {
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // fixed pause between attempts
	Timeout    time.Duration // per attempt
	// Sleep waits between attempts; tests replace it to skip the pause.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryOptions returns default retry options
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 3,
		Backoff:    3 * time.Second,
		Timeout:    60 * time.Second,
		Sleep:      sleepContext,
	}
}

// NavigateWithRetry loads url, retrying on failure with a fixed backoff.
// It returns an error wrapping ErrNavigation once every attempt has failed.
func NavigateWithRetry(ctx context.Context, logger zerolog.Logger, page Page, url string, opts RetryOptions) error {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	attempts := opts.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		navCtx, cancel := ctx, context.CancelFunc(func() {})
		if opts.Timeout > 0 {
			navCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		lastErr = page.Navigate(navCtx, url)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrNavigation, ctx.Err())
		}

		logger.Warn().Err(lastErr).Int("attempt", attempt).Int("max_attempts", attempts).Msg("🔄 navigation failed")
		if attempt < attempts {
			if err := sleep(ctx, opts.Backoff); err != nil {
				return fmt.Errorf("%w: %v", ErrNavigation, err)
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrNavigation, url, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
