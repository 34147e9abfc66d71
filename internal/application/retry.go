package application

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
)

// withConflictRetry runs op up to attempts times while it fails with a
// ConcurrencyConflict. Any other error is returned at once. op must re-read
// everything it depends on.
func withConflictRetry(ctx context.Context, attempts int, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 250 * time.Millisecond
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil || domain.IsKind(err, domain.KindConcurrencyConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
