package bootstrap

import (
	"context"
	"testing"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

type fakeFinalityChain struct {
	id       chain.ID
	finalHdr chain.Header
	finalHash chain.Hash

	submitted []chain.FinalityProof
}

func (f *fakeFinalityChain) ID() chain.ID { return f.id }
func (f *fakeFinalityChain) BestHeader(ctx context.Context) (chain.Header, chain.Hash, error) {
	return f.finalHdr, f.finalHash, nil
}
func (f *fakeFinalityChain) HeaderByNumber(ctx context.Context, n chain.BlockNumber) (chain.Header, chain.Hash, error) {
	return f.finalHdr, f.finalHash, nil
}
func (f *fakeFinalityChain) RuntimeVersion(ctx context.Context) (chain.RuntimeVersion, error) {
	return chain.RuntimeVersion{SpecVersion: 1, TransactionVersion: 1}, nil
}
func (f *fakeFinalityChain) FinalizedHeader(ctx context.Context) (chain.Header, chain.Hash, error) {
	return f.finalHdr, f.finalHash, nil
}
func (f *fakeFinalityChain) SubscribeFinality(ctx context.Context) (<-chan chain.FinalityProof, <-chan error, error) {
	return nil, nil, nil
}
func (f *fakeFinalityChain) BestFinalizedAtTarget(ctx context.Context) (chain.BlockNumber, error) {
	return 0, chain.ErrUnsupported
}
func (f *fakeFinalityChain) SubmitFinalityProof(ctx context.Context, proof chain.FinalityProof) (chain.Hash, error) {
	f.submitted = append(f.submitted, proof)
	return chain.Hash{byte(proof.TargetNumber)}, nil
}

func TestInitBridgeSubmitsSourceFinalizedHeader(t *testing.T) {
	source := &fakeFinalityChain{id: "source", finalHdr: chain.Header{Number: 42, StateRoot: chain.Hash{9}}, finalHash: chain.Hash{7}}
	target := &fakeFinalityChain{id: "target"}

	tx, err := InitBridge(context.Background(), source, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tx != (chain.Hash{42}) {
		t.Fatalf("unexpected tx hash %v", tx)
	}
	if len(target.submitted) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(target.submitted))
	}
	got := target.submitted[0]
	if got.TargetNumber != 42 || got.TargetHash != (chain.Hash{7}) || !got.Mandatory {
		t.Fatalf("unexpected proof submitted: %+v", got)
	}
}
