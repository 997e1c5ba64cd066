// Package retry implements the capped exponential backoff policy spec.md
// §4.2 requires for transient RPC errors (base ~1s, cap ~60s, jitter
// ±20%). Generalized from the teacher's inline retry loop in
// pkg/intent/discovery.go (plain `1<<retries * time.Second`, no jitter, no
// cap) into a small reusable helper. The finality loop uses it when
// re-establishing its proof subscription; the other loops do not.
package retry

import (
	"math/rand"
	"time"
)

// Backoff computes capped exponential delays with jitter.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64 // fraction, e.g. 0.2 for ±20%
}

// Default matches spec.md §4.2: base ~1s, cap ~60s, jitter ±20%.
func Default() Backoff {
	return Backoff{Base: time.Second, Cap: 60 * time.Second, Jitter: 0.2}
}

// Delay returns the delay to wait before retry attempt n (0-indexed).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	if d > b.Cap {
		d = b.Cap
	}
	if b.Jitter > 0 {
		delta := float64(d) * b.Jitter
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*delta)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Loop retries fn until it succeeds or ctx-style cancellation is requested
// via the stop channel, sleeping Delay(n) between attempts. It returns the
// last error if stop fires before fn succeeds.
func (b Backoff) Loop(stop <-chan struct{}, fn func() error) error {
	var lastErr error
	for n := 0; ; n++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-stop:
			return lastErr
		case <-time.After(b.Delay(n)):
		}
	}
}
