package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/orderflow/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type fakeLocks struct {
	locks map[string]*fakeLock
	ttls  map[string]time.Duration
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{locks: map[string]*fakeLock{}, ttls: map[string]time.Duration{}}
}

func (f *fakeLocks) factory(job string, ttl time.Duration) (Lock, error) {
	f.ttls[job] = ttl
	if l, ok := f.locks[job]; ok {
		return l, nil
	}
	l := &fakeLock{}
	f.locks[job] = l
	return l, nil
}

type testJob struct {
	name  string
	err   error
	runs  int
	every time.Duration
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type scheduledJob struct {
	testJob
}

func (s *scheduledJob) Every() time.Duration { return s.every }

func newTestService(t *testing.T, locks *fakeLocks, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Locks:    locks.factory,
		Interval: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	locks := newFakeLocks()
	service := newTestService(t, locks, success, failure)

	service.runCycle(context.Background())

	if success.runs != 1 {
		t.Fatalf("expected success job to run once, ran %d", success.runs)
	}
	if failure.runs != 1 {
		t.Fatalf("expected failure job to run once, ran %d", failure.runs)
	}
}

func TestServiceKeepsLockAfterSuccessAndReleasesOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	locks := newFakeLocks()
	service := newTestService(t, locks, success, failure)

	ctx := context.Background()
	service.runCycle(ctx)
	service.runCycle(ctx)

	if success.runs != 1 {
		t.Fatalf("held lock should skip the second run, ran %d", success.runs)
	}
	if locks.locks["success"].releases != 0 {
		t.Fatalf("successful job must keep its lock")
	}
	if failure.runs != 2 {
		t.Fatalf("failed job should retry on the next tick, ran %d", failure.runs)
	}
	if locks.locks["fail"].releases != 2 {
		t.Fatalf("expected failed job to release each time, got %d", locks.locks["fail"].releases)
	}
}

func TestServiceLockTTLFollowsJobCadence(t *testing.T) {
	everyTick := &testJob{name: "tick"}
	slow := &scheduledJob{testJob{name: "slow", every: 10 * time.Minute}}
	fast := &scheduledJob{testJob{name: "fast", every: time.Second}}
	locks := newFakeLocks()
	service := newTestService(t, locks, everyTick, slow, fast)

	service.runCycle(context.Background())

	if got := locks.ttls["tick"]; got != 54*time.Second {
		t.Fatalf("expected tick job ttl 54s, got %s", got)
	}
	if got := locks.ttls["slow"]; got != 9*time.Minute {
		t.Fatalf("expected slow job ttl 9m, got %s", got)
	}
	if got := locks.ttls["fast"]; got != 54*time.Second {
		t.Fatalf("cadence below the tick should clamp to the tick, got %s", got)
	}
}

func TestNewServiceRequiresLocks(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without a lock factory")
	}
}
