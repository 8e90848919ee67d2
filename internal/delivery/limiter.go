package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

// AttemptLimiter counts OTP entries per order. Once MaxAttempts entries
// accumulate inside the window the order is locked until the buyer requests
// a new code. A correct entry resets the count.
type AttemptLimiter struct {
	counter     redis.Counter
	maxAttempts int
	window      time.Duration
}

func NewAttemptLimiter(counter redis.Counter, maxAttempts int, window time.Duration) (*AttemptLimiter, error) {
	if counter == nil {
		return nil, fmt.Errorf("counter required")
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("attempt window must be positive")
	}
	return &AttemptLimiter{counter: counter, maxAttempts: maxAttempts, window: window}, nil
}

func (l *AttemptLimiter) key(orderID uuid.UUID) string {
	return l.counter.CounterKey("otp_attempts", orderID.String())
}

// Attempt reserves one OTP entry for the order and returns the entries left
// after it. The counter is bumped before the code is compared, so concurrent
// guesses cannot get past MaxAttempts; once it is exceeded Attempt fails with
// OTP_LOCKED.
func (l *AttemptLimiter) Attempt(ctx context.Context, orderID uuid.UUID) (int, error) {
	count, err := l.counter.IncrWithTTL(ctx, l.key(orderID), l.window)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record otp attempt")
	}
	if int(count) > l.maxAttempts {
		return 0, lockedError(l.maxAttempts)
	}
	return l.maxAttempts - int(count), nil
}

// Reset clears the counter after a resend or a successful delivery.
func (l *AttemptLimiter) Reset(ctx context.Context, orderID uuid.UUID) error {
	if err := l.counter.Del(ctx, l.key(orderID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset otp attempts")
	}
	return nil
}

func lockedError(max int) error {
	return pkgerrors.New(pkgerrors.CodeOTPLocked, "too many incorrect codes; request a new code").
		WithDetails(map[string]any{"max_attempts": max})
}
