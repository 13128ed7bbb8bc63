// Package resilience retries transient failures of outbound calls with
// exponential backoff.
//
//	key, err := resilience.Retry(ctx, resilience.RetryConfig{
//	    MaxAttempts: 2,
//	    RetryIf:     func(err error) bool { return errors.Is(err, ErrJWKSFetch) },
//	}, func(attempt int) (*rsa.PublicKey, error) {
//	    return cache.Key(ctx, issuer, uri, kid, attempt > 1)
//	})
package resilience
