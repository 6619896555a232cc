package workpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"trapcat/internal/workpool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunVisitsEveryIndexWithinLimit(t *testing.T) {
	const n = 40
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		seen     = make([]int32, n)
	)
	err := workpool.Run(context.Background(), n, 3, func(ctx context.Context, i int) error {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&seen[i], 1)
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, count := range seen {
		if count != 1 {
			t.Fatalf("index %d visited %d times", i, count)
		}
	}
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestRunStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	err := workpool.Run(context.Background(), 100, 2, func(ctx context.Context, i int) error {
		if i == 5 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := workpool.Run(ctx, 10, 2, func(ctx context.Context, i int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBoundedReturnsValue(t *testing.T) {
	got, err := workpool.Bounded(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Bounded = %d, %v", got, err)
	}
}

func TestBoundedTimesOut(t *testing.T) {
	_, err := workpool.Bounded(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, workpool.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestBoundedParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := workpool.Bounded(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTrackerSerializesProgress(t *testing.T) {
	var calls []int
	tracker := workpool.NewTracker("check", 20, func(phase string, done, total int) {
		if phase != "check" || total != 20 {
			t.Errorf("unexpected progress call %s %d/%d", phase, done, total)
		}
		calls = append(calls, done)
	})
	err := workpool.Run(context.Background(), 20, 5, func(ctx context.Context, i int) error {
		tracker.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if tracker.Completed() != 20 {
		t.Fatalf("expected 20 completed, got %d", tracker.Completed())
	}
	if len(calls) != 21 || calls[0] != 0 || calls[20] != 20 {
		t.Fatalf("unexpected progress calls: %v", calls)
	}
	for i := 1; i < len(calls); i++ {
		if calls[i] != calls[i-1]+1 {
			t.Fatalf("progress must be monotonic: %v", calls)
		}
	}
}
