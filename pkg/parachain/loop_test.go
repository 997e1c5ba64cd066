package parachain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

// fakeParachainChain implements chain.ChainWithParachains. The source side
// serves ParachainHead reads; the target side serves HeadAtTarget reads and
// records SubmitParachainHeads calls.
type fakeParachainChain struct {
	id    chain.ID
	heads map[chain.ParachainID]chain.Hash // source-side: current head per parachain

	mu        sync.Mutex
	atTarget  map[chain.ParachainID]chain.Hash // target-side: what's on record
	submitted []submittedBatch
}

type submittedBatch struct {
	anchor chain.BlockNumber
	proofs []chain.ParachainHeadProof
}

func newFakeParachainChain(id chain.ID) *fakeParachainChain {
	return &fakeParachainChain{
		id:       id,
		heads:    map[chain.ParachainID]chain.Hash{},
		atTarget: map[chain.ParachainID]chain.Hash{},
	}
}

func (f *fakeParachainChain) ID() chain.ID { return f.id }
func (f *fakeParachainChain) BestHeader(ctx context.Context) (chain.Header, chain.Hash, error) {
	return chain.Header{}, chain.Hash{}, nil
}
func (f *fakeParachainChain) HeaderByNumber(ctx context.Context, n chain.BlockNumber) (chain.Header, chain.Hash, error) {
	return chain.Header{Number: n}, chain.Hash{}, nil
}
func (f *fakeParachainChain) RuntimeVersion(ctx context.Context) (chain.RuntimeVersion, error) {
	return chain.RuntimeVersion{}, nil
}

func (f *fakeParachainChain) ParachainHead(ctx context.Context, p chain.ParachainID, anchor chain.Hash, anchorNumber chain.BlockNumber) (chain.ParachainHeadProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return chain.ParachainHeadProof{
		Parachain:   p,
		RelayHeader: anchor,
		RelayNumber: anchorNumber,
		Head:        f.heads[p],
	}, nil
}

func (f *fakeParachainChain) HeadAtTarget(ctx context.Context, p chain.ParachainID) (chain.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atTarget[p], nil
}

func (f *fakeParachainChain) SubmitParachainHeads(ctx context.Context, proofs []chain.ParachainHeadProof) (chain.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var anchorNumber chain.BlockNumber
	for _, p := range proofs {
		f.atTarget[p.Parachain] = p.Head
		anchorNumber = p.RelayNumber
	}
	f.submitted = append(f.submitted, submittedBatch{anchor: anchorNumber, proofs: proofs})
	return chain.Hash{byte(anchorNumber)}, nil
}

func (f *fakeParachainChain) submissions() []submittedBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]submittedBatch, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func (f *fakeParachainChain) setHead(p chain.ParachainID, h chain.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads[p] = h
}

// fixedAnchor always reports the relay chain as finalized at a single
// (hash, number) pair, simulating a relay chain that has already jumped
// straight from block 1000 to block 2000 with nothing relayed in between.
type fixedAnchor struct {
	hash   chain.Hash
	number chain.BlockNumber
}

func (a fixedAnchor) BestFinalizedRelayHeader(ctx context.Context) (chain.Hash, chain.BlockNumber, error) {
	return a.hash, a.number, nil
}

func instantWatch(ctx context.Context, tx chain.Hash) (<-chan chain.TxStatus, <-chan error, func()) {
	ch := make(chan chain.TxStatus, 1)
	ch <- chain.TxFinalized
	return ch, make(chan error), func() {}
}

// TestLoopSubmitsOnceForSparseFinalityJump reproduces the scenario where the
// relay chain's finalized head jumps directly from block 1000 to block 2000
// with no intermediate relaying: the parachain loop must submit exactly one
// batch, anchored at 2000, and never resubmit once the target is in sync.
func TestLoopSubmitsOnceForSparseFinalityJump(t *testing.T) {
	source := newFakeParachainChain("source")
	target := newFakeParachainChain("target")
	source.setHead(2000, chain.Hash{0xAA})

	anchor := fixedAnchor{hash: chain.Hash{7}, number: 2000}

	loop := NewLoop("a-to-b", source, target, anchor, []chain.ParachainID{2000}, instantWatch,
		&Strategy{}, nil, 50*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(1 * time.Second)
	for len(target.submissions()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a submission")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Give a few more ticks a chance to run, to prove idempotency.
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	subs := target.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected exactly one submission, got %d: %+v", len(subs), subs)
	}
	if subs[0].anchor != 2000 {
		t.Fatalf("expected submission anchored at relay block 2000, got %d", subs[0].anchor)
	}
	if len(subs[0].proofs) != 1 || subs[0].proofs[0].Parachain != 2000 {
		t.Fatalf("expected a single parachain-2000 head proof, got %+v", subs[0].proofs)
	}
}
