package retry

import (
	"errors"
	"testing"
	"time"
)

func TestDelayCapsAtCeiling(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 10 * time.Second, Jitter: 0}
	d := b.Delay(10)
	if d != 10*time.Second {
		t.Fatalf("expected delay to cap at 10s, got %s", d)
	}
}

func TestDelayDoublesBeforeCapping(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute, Jitter: 0}
	if d := b.Delay(0); d != time.Second {
		t.Fatalf("attempt 0: expected 1s, got %s", d)
	}
	if d := b.Delay(2); d != 4*time.Second {
		t.Fatalf("attempt 2: expected 4s, got %s", d)
	}
}

func TestDelayJitterStaysWithinBounds(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute, Jitter: 0.2}
	for i := 0; i < 50; i++ {
		d := b.Delay(0)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jittered delay %s out of expected ±20%% bounds", d)
		}
	}
}

func TestLoopStopsOnSuccess(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Cap: time.Millisecond, Jitter: 0}
	attempts := 0
	err := b.Loop(make(chan struct{}), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestLoopStopsOnSignal(t *testing.T) {
	b := Backoff{Base: 10 * time.Millisecond, Cap: 10 * time.Millisecond, Jitter: 0}
	stop := make(chan struct{})
	close(stop)
	err := b.Loop(stop, func() error { return errors.New("always fails") })
	if err == nil {
		t.Fatal("expected last error to be returned after stop")
	}
}
