// Package retry re-runs operations that fail with transient errors.
//
// The image fetcher uses it to give a candidate URL a second chance after a
// network error or a 5xx/429 response. Permanent failures (404, decode
// errors, cancelled contexts) return immediately.
//
//	body, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
//		return c.get(ctx, url)
//	}, &retry.Config{
//		MaxAttempts: 2,
//		Backoff:     &retry.ConstantBackoff{Delay: time.Second},
//	})
package retry
