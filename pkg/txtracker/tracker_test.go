package txtracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

func watchWith(statuses ...chain.TxStatus) WatchFunc {
	return func(ctx context.Context, tx chain.Hash) (<-chan chain.TxStatus, <-chan error, func()) {
		statusCh := make(chan chain.TxStatus, len(statuses))
		for _, s := range statuses {
			statusCh <- s
		}
		return statusCh, make(chan error), func() {}
	}
}

func TestTrackReturnsFinalized(t *testing.T) {
	tr := New(watchWith(chain.TxPending, chain.TxInBlock, chain.TxFinalized), time.Second)
	res := tr.Track(context.Background(), chain.Hash{1})
	if res.Status != chain.TxFinalized {
		t.Fatalf("expected Finalized, got %s", res.Status)
	}
	if res.CorrelationID == uuid.Nil {
		t.Fatal("expected a non-nil correlation id")
	}
}

func TestTrackAssignsDistinctCorrelationIDsPerCall(t *testing.T) {
	tr := New(watchWith(chain.TxFinalized), time.Second)
	a := tr.Track(context.Background(), chain.Hash{1})
	b := tr.Track(context.Background(), chain.Hash{1})
	if a.CorrelationID == b.CorrelationID {
		t.Fatal("expected distinct correlation ids across separate Track calls")
	}
}

func TestTrackStallsOnMortalityExpiry(t *testing.T) {
	watch := func(ctx context.Context, tx chain.Hash) (<-chan chain.TxStatus, <-chan error, func()) {
		return make(chan chain.TxStatus), make(chan error), func() {}
	}
	tr := New(watch, 20*time.Millisecond)
	res := tr.Track(context.Background(), chain.Hash{1})
	if res.Status != chain.TxStalled {
		t.Fatalf("expected Stalled, got %s", res.Status)
	}
}

func TestTrackReturnsInvalidatedOnSubmissionError(t *testing.T) {
	watch := func(ctx context.Context, tx chain.Hash) (<-chan chain.TxStatus, <-chan error, func()) {
		errc := make(chan error, 1)
		errc <- errors.New("nonce too low")
		return make(chan chain.TxStatus), errc, func() {}
	}
	tr := New(watch, time.Second)
	res := tr.Track(context.Background(), chain.Hash{1})
	if res.Status != chain.TxInvalidated {
		t.Fatalf("expected Invalidated, got %s", res.Status)
	}
	if res.Err == nil {
		t.Fatal("expected submission error to be surfaced")
	}
}

func TestTrackRespectsContextCancellation(t *testing.T) {
	watch := func(ctx context.Context, tx chain.Hash) (<-chan chain.TxStatus, <-chan error, func()) {
		return make(chan chain.TxStatus), make(chan error), func() {}
	}
	tr := New(watch, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := tr.Track(ctx, chain.Hash{1})
	if res.Status != chain.TxStalled {
		t.Fatalf("expected Stalled on cancellation, got %s", res.Status)
	}
}

func TestNonceManagerNextAdvances(t *testing.T) {
	nm := NewNonceManager(5, func(ctx context.Context) (uint64, error) { return 99, nil })
	if n := nm.Next(); n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
	if n := nm.Next(); n != 6 {
		t.Fatalf("expected 6, got %d", n)
	}
}

func TestNonceManagerRefreshOnConflict(t *testing.T) {
	nm := NewNonceManager(5, func(ctx context.Context) (uint64, error) { return 99, nil })
	if err := nm.RefreshOnConflict(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := nm.Next(); n != 99 {
		t.Fatalf("expected refreshed nonce 99, got %d", n)
	}
}
