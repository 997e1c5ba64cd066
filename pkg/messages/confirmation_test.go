package messages

import (
	"context"
	"testing"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/race"
)

func TestConfirmationDecideIdleWhenNoGap(t *testing.T) {
	s := &ConfirmationStrategy{}
	action, err := s.Decide(context.Background(), ConfirmationSourceState{ConfirmedSrc: 10}, ConfirmationTargetState{Received: 10})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Idle {
		t.Fatalf("expected Idle when confirmed already matches received, got %+v", action)
	}
}

// TestConfirmationDecideSubmitsPiggybackProof reproduces scenario 6: target
// has delivered nonces 1..100, source still believes latest_confirmed=0.
func TestConfirmationDecideSubmitsPiggybackProof(t *testing.T) {
	s := &ConfirmationStrategy{}
	action, err := s.Decide(context.Background(),
		ConfirmationSourceState{ConfirmedSrc: 0},
		ConfirmationTargetState{Received: 100, Proof: []byte("inbound-proof")})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Submit {
		t.Fatalf("expected Submit, got %+v", action)
	}

	received, ok := decodeNonce(action.Encoded)
	if !ok || received != 100 {
		t.Fatalf("expected decoded nonce 100, got %d ok=%v", received, ok)
	}

	proof, ok := s.TakeProof(received)
	if !ok || string(proof) != "inbound-proof" {
		t.Fatalf("expected TakeProof to return the decided proof, got %q ok=%v", proof, ok)
	}
}

func TestRewardLedgerPrunesUpToConfirmedNonce(t *testing.T) {
	l := NewRewardLedger()
	for n := chain.Nonce(1); n <= 100; n++ {
		l.CreditDelivery("relayer-r", n, 1)
	}
	if l.Outstanding() != 100 {
		t.Fatalf("expected 100 outstanding entries, got %d", l.Outstanding())
	}

	pruned := l.PruneConfirmed(100)
	if len(pruned) != 1 || pruned[0] != "relayer-r" {
		t.Fatalf("expected relayer-r to be pruned, got %v", pruned)
	}
	if l.Outstanding() != 0 {
		t.Fatalf("expected 0 outstanding entries after pruning, got %d", l.Outstanding())
	}
}
