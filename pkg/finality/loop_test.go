package finality

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/retry"
)

// fakeFinalityChain implements chain.ChainWithFinality. Only the source side
// ever sends on its own proofs channel; only the target side tracks
// submissions and bestAtTarget.
type fakeFinalityChain struct {
	id chain.ID

	proofsCh chan chain.FinalityProof

	mu           sync.Mutex
	bestAtTarget chain.BlockNumber
	submitted    []chain.FinalityProof
}

func newFakeFinalityChain(id chain.ID) *fakeFinalityChain {
	return &fakeFinalityChain{id: id, proofsCh: make(chan chain.FinalityProof, 16)}
}

func (f *fakeFinalityChain) ID() chain.ID { return f.id }

func (f *fakeFinalityChain) BestHeader(ctx context.Context) (chain.Header, chain.Hash, error) {
	return chain.Header{}, chain.Hash{}, nil
}

func (f *fakeFinalityChain) HeaderByNumber(ctx context.Context, n chain.BlockNumber) (chain.Header, chain.Hash, error) {
	return chain.Header{Number: n}, chain.Hash{}, nil
}

func (f *fakeFinalityChain) RuntimeVersion(ctx context.Context) (chain.RuntimeVersion, error) {
	return chain.RuntimeVersion{}, nil
}

func (f *fakeFinalityChain) FinalizedHeader(ctx context.Context) (chain.Header, chain.Hash, error) {
	return chain.Header{}, chain.Hash{}, nil
}

func (f *fakeFinalityChain) SubscribeFinality(ctx context.Context) (<-chan chain.FinalityProof, <-chan error, error) {
	return f.proofsCh, make(chan error), nil
}

func (f *fakeFinalityChain) BestFinalizedAtTarget(ctx context.Context) (chain.BlockNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bestAtTarget, nil
}

func (f *fakeFinalityChain) SubmitFinalityProof(ctx context.Context, proof chain.FinalityProof) (chain.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, proof)
	if proof.TargetNumber > f.bestAtTarget {
		f.bestAtTarget = proof.TargetNumber
	}
	return chain.Hash{byte(proof.TargetNumber)}, nil
}

func (f *fakeFinalityChain) submissions() []chain.FinalityProof {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chain.FinalityProof, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func instantWatch(ctx context.Context, tx chain.Hash) (<-chan chain.TxStatus, <-chan error, func()) {
	ch := make(chan chain.TxStatus, 1)
	ch <- chain.TxFinalized
	return ch, make(chan error), func() {}
}

// TestLoopCoalescesFinalityBurst reproduces the coalesced-finality scenario
// end to end: headers 100, 101 (mandatory), 102, 103 (non-mandatory) all
// arrive before the loop's first tick. The loop must submit 101 then 103,
// in that order, and never submit 100 or 102 on their own.
func TestLoopCoalescesFinalityBurst(t *testing.T) {
	source := newFakeFinalityChain("source")
	target := newFakeFinalityChain("target")

	loop := NewLoop("a-to-b", source, target, instantWatch, &Strategy{}, nil, 50*time.Millisecond,
		retry.Backoff{Base: time.Millisecond, Cap: 10 * time.Millisecond, Jitter: 0}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	source.proofsCh <- proof(100, false)
	source.proofsCh <- proof(101, true)
	source.proofsCh <- proof(102, false)
	source.proofsCh <- proof(103, false)

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if len(target.submissions()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for 2 submissions, got %d", len(target.submissions()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	subs := target.submissions()
	if len(subs) < 2 {
		t.Fatalf("expected at least 2 submissions, got %d", len(subs))
	}
	if subs[0].TargetNumber != 101 || !subs[0].Mandatory {
		t.Fatalf("expected first submission to be mandatory proof 101, got %+v", subs[0])
	}
	if subs[1].TargetNumber != 103 {
		t.Fatalf("expected second submission to be coalesced proof 103, got %+v", subs[1])
	}
}
