package surface

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Condition is polled by Await. A non-nil error aborts the wait.
type Condition func(ctx context.Context) (bool, error)

// Await polls cond every interval until it reports true, returns an error,
// timeout elapses (ErrTimeout) or ctx is done (ctx.Err()).
func Await(ctx context.Context, cond Condition, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	b := retry.NewConstant(interval)
	if timeout > 0 {
		b = retry.WithMaxDuration(timeout, b)
	}

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(ErrTimeout)
		}
		return nil
	})
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
