package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitSpacesAcquisitions(t *testing.T) {
	// 1200 calls/minute = one slot every 50ms.
	l := New(1200)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	elapsed := time.Since(start)

	// First acquisition is immediate, the next two are gated.
	if elapsed < 90*time.Millisecond {
		t.Errorf("3 acquisitions took %v, want >= ~100ms", elapsed)
	}
}

func TestAcquisitionCounter(t *testing.T) {
	l := New(6000)
	ctx := context.Background()

	if l.Acquisitions() != 0 {
		t.Fatalf("fresh limiter reports %d acquisitions", l.Acquisitions())
	}
	for i := 0; i < 4; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := l.Acquisitions(); got != 4 {
		t.Errorf("acquisitions = %d, want 4", got)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	// One call per minute: the second Wait cannot complete quickly.
	l := New(1)
	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(cancelled); err == nil {
		t.Error("expected error from cancelled Wait")
	}
	if got := l.Acquisitions(); got != 1 {
		t.Errorf("cancelled wait counted as acquisition: %d", got)
	}
}

func TestNonPositiveRateClamped(t *testing.T) {
	l := New(0)
	if l.Interval() <= 0 {
		t.Error("expected positive interval for clamped rate")
	}
}
