package parachain

import (
	"context"
	"testing"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/race"
)

func headProof(id chain.ParachainID, head byte, anchorNumber chain.BlockNumber) chain.ParachainHeadProof {
	return chain.ParachainHeadProof{
		Parachain:   id,
		Head:        chain.Hash{head},
		RelayNumber: anchorNumber,
	}
}

func TestStaleHeadsFiltersUnchanged(t *testing.T) {
	heads := []chain.ParachainHeadProof{
		headProof(2000, 0xAA, 100),
		headProof(1000, 0xBB, 100),
	}
	atTarget := map[chain.ParachainID]chain.Hash{
		2000: {0xAA}, // unchanged
		1000: {0xCC}, // stale
	}
	stale := StaleHeads(heads, atTarget)
	if len(stale) != 1 || stale[0].Parachain != 1000 {
		t.Fatalf("expected only parachain 1000 to be stale, got %+v", stale)
	}
}

func TestStaleHeadsIncludesUnknownParachains(t *testing.T) {
	heads := []chain.ParachainHeadProof{headProof(2000, 0xAA, 100)}
	stale := StaleHeads(heads, map[chain.ParachainID]chain.Hash{})
	if len(stale) != 1 {
		t.Fatalf("expected unrecorded parachain to count as stale, got %+v", stale)
	}
}

func TestDecideIdempotentWhenNothingStale(t *testing.T) {
	s := &Strategy{}
	heads := []chain.ParachainHeadProof{headProof(2000, 0xAA, 100)}
	action, err := s.Decide(context.Background(),
		SourceState{Anchor: chain.Hash{1}, AnchorNumber: 100, Heads: heads},
		TargetState{HeadsAtTarget: map[chain.ParachainID]chain.Hash{2000: {0xAA}}})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Idle {
		t.Fatalf("expected Idle on unchanged heads (idempotent resubmission), got %+v", action)
	}
}

func TestDecideAndTakeBatchRoundtrip(t *testing.T) {
	s := &Strategy{}
	anchor := chain.Hash{9}
	heads := []chain.ParachainHeadProof{headProof(2000, 0xAA, 2000)}
	action, err := s.Decide(context.Background(),
		SourceState{Anchor: anchor, AnchorNumber: 2000, Heads: heads},
		TargetState{HeadsAtTarget: map[chain.ParachainID]chain.Hash{}})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Submit {
		t.Fatalf("expected Submit, got %+v", action)
	}

	batch, ok := s.TakeBatch(anchor)
	if !ok || len(batch) != 1 || batch[0].Parachain != 2000 {
		t.Fatalf("expected TakeBatch to return the decided batch, got %+v ok=%v", batch, ok)
	}

	if _, ok := s.TakeBatch(chain.Hash{99}); ok {
		t.Fatal("expected TakeBatch to reject an anchor mismatch")
	}
}
