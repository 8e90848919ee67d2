package delivery

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

type memoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
	ttls   map[string]time.Duration
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{values: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCounter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key]++
	if m.values[key] == 1 {
		m.ttls[key] = ttl
	}
	return m.values[key], nil
}

func (m *memoryCounter) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return strconv.FormatInt(v, 10), nil
}

func (m *memoryCounter) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryCounter) CounterKey(parts ...string) string {
	return "test:" + strings.Join(parts, ":")
}

func TestAttemptLimiterLocksAfterMaxAttempts(t *testing.T) {
	counter := newMemoryCounter()
	limiter, err := NewAttemptLimiter(counter, 3, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	orderID := uuid.New()

	for i := 0; i < 3; i++ {
		remaining, err := limiter.Attempt(ctx, orderID)
		if err != nil {
			t.Fatalf("attempt %d unexpectedly locked: %v", i, err)
		}
		if remaining != 2-i {
			t.Fatalf("expected %d remaining, got %d", 2-i, remaining)
		}
	}

	if _, err := limiter.Attempt(ctx, orderID); !pkgerrors.IsCode(err, pkgerrors.CodeOTPLocked) {
		t.Fatalf("expected OTP_LOCKED, got %v", err)
	}
	if ttl := counter.ttls[counter.CounterKey("otp_attempts", orderID.String())]; ttl != time.Hour {
		t.Fatalf("expected window ttl, got %s", ttl)
	}

	if err := limiter.Reset(ctx, orderID); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if _, err := limiter.Attempt(ctx, orderID); err != nil {
		t.Fatalf("expected unlocked after reset, got %v", err)
	}
}

func TestAttemptLimiterAdmitsAtMostMaxConcurrentAttempts(t *testing.T) {
	limiter, err := NewAttemptLimiter(newMemoryCounter(), 3, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	orderID := uuid.New()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		locked   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limiter.Attempt(context.Background(), orderID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case pkgerrors.IsCode(err, pkgerrors.CodeOTPLocked):
				locked++
			}
		}()
	}
	wg.Wait()

	if admitted != 3 || locked != 17 {
		t.Fatalf("expected 3 admitted and 17 locked, got %d and %d", admitted, locked)
	}
}

func TestAttemptLimiterValidatesConfig(t *testing.T) {
	if _, err := NewAttemptLimiter(nil, 3, time.Hour); err == nil {
		t.Fatal("expected counter error")
	}
	if _, err := NewAttemptLimiter(newMemoryCounter(), 0, time.Hour); err == nil {
		t.Fatal("expected attempts error")
	}
	if _, err := NewAttemptLimiter(newMemoryCounter(), 3, 0); err == nil {
		t.Fatal("expected window error")
	}
}
