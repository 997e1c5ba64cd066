package client

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

// FakePalletClient is an in-memory PalletClient used by this package's unit
// tests, modeled on the teacher's pattern of small hand-rolled fakes
// (e.g. BlockInfoProvider implementations in the batch package tests)
// rather than a generated-mock framework.
type FakePalletClient struct {
	mu sync.Mutex

	// RejectNext, if set, is returned (and cleared) on the next call to
	// any method below, letting tests simulate a single rejected
	// submission.
	RejectNext error

	Submitted []Submission
}

// Submission records one accepted call for assertions in tests.
type Submission struct {
	Call    string
	Encoded []byte
	Hash    chain.Hash
}

func (f *FakePalletClient) record(call string, encoded []byte) (chain.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RejectNext != nil {
		err := f.RejectNext
		f.RejectNext = nil
		return chain.Hash{}, err
	}

	h := chain.Hash(sha256.Sum256(append([]byte(call+":"), encoded...)))
	f.Submitted = append(f.Submitted, Submission{Call: call, Encoded: encoded, Hash: h})
	return h, nil
}

func (f *FakePalletClient) SubmitFinalityProof(_ context.Context, encoded []byte) (chain.Hash, error) {
	return f.record("submit_finality_proof", encoded)
}

func (f *FakePalletClient) SubmitParachainHeads(_ context.Context, encoded []byte) (chain.Hash, error) {
	return f.record("submit_parachain_heads", encoded)
}

func (f *FakePalletClient) ReceiveMessagesProof(_ context.Context, encoded []byte) (chain.Hash, error) {
	return f.record("receive_messages_proof", encoded)
}

func (f *FakePalletClient) ReceiveMessagesDeliveryProof(_ context.Context, encoded []byte) (chain.Hash, error) {
	return f.record("receive_messages_delivery_proof", encoded)
}

func (f *FakePalletClient) ReportEquivocation(_ context.Context, encoded []byte) (chain.Hash, error) {
	return f.record("report_equivocation", encoded)
}

// Count returns how many times call was submitted successfully.
func (f *FakePalletClient) Count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.Submitted {
		if s.Call == call {
			n++
		}
	}
	return n
}
