package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLimiter_FirstWaitIsImmediate(t *testing.T) {
	l := New(time.Second)
	defer l.Stop()

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("first Wait() should be immediate")
	}
	if l.LastRequest().IsZero() {
		t.Error("LastRequest() should be set after a successful Wait()")
	}
}

func TestLimiter_EnforcesInterval(t *testing.T) {
	l := New(100 * time.Millisecond)
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait() failed: %v", err)
	}

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("second Wait() failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 80*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Errorf("second Wait() took %v, want ~100ms", elapsed)
	}
}

func TestLimiter_ConcurrentCallersAreSerialized(t *testing.T) {
	interval := 40 * time.Millisecond
	l := New(interval)
	defer l.Stop()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(context.Background()); err != nil {
				t.Errorf("Wait() failed: %v", err)
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(times) != 4 {
		t.Fatalf("got %d admissions, want 4", len(times))
	}
	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	// Four requests need at least three full intervals.
	if span := last.Sub(first); span < 3*interval-10*time.Millisecond {
		t.Errorf("admissions spanned %v, want >= %v", span, 3*interval)
	}
}

func TestLimiter_WaitContextCanceled(t *testing.T) {
	l := New(10 * time.Second)
	defer l.Stop()

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() should fail when context canceled")
	}
}

func TestLimiter_StopReleasesWaiters(t *testing.T) {
	l := New(10 * time.Second)
	_ = l.Wait(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- l.Wait(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	l.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Wait() after Stop() = %v, want ErrStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Stop()")
	}

	l.Stop() // idempotent
}

func TestLimiter_ZeroIntervalDisablesLimiting(t *testing.T) {
	l := New(0)
	defer l.Stop()

	start := time.Now()
	for range 20 {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("zero interval should not delay requests")
	}
}
