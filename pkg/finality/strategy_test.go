package finality

import (
	"context"
	"testing"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/race"
)

func proof(n chain.BlockNumber, mandatory bool) chain.FinalityProof {
	return chain.FinalityProof{
		TargetNumber: n,
		Mandatory:    mandatory,
		Payload:      []byte{byte(n)},
	}
}

func TestDecideIdleWhenNothingAheadOfTarget(t *testing.T) {
	s := &Strategy{}
	action, err := s.Decide(context.Background(),
		SourceState{Candidates: []chain.FinalityProof{proof(100, false)}},
		TargetState{BestAtTarget: 100})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Idle {
		t.Fatalf("expected Idle, got %+v", action)
	}
}

func TestDecideSubmitsSoleCandidate(t *testing.T) {
	s := &Strategy{}
	action, err := s.Decide(context.Background(),
		SourceState{Candidates: []chain.FinalityProof{proof(103, false)}},
		TargetState{BestAtTarget: 99})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Submit {
		t.Fatalf("expected Submit, got %+v", action)
	}
	if string(action.Encoded) != string(proof(103, false).Payload) {
		t.Fatalf("expected proof for 103, got %q", action.Encoded)
	}
}

// TestDecideCoalescesAroundMandatory reproduces the scenario: headers
// 100, 101 (mandatory), 102, 103 (non-mandatory) are all pending, target is
// at 99. The first tick must submit 101 (earliest pending mandatory), never
// 100, 102, or 103. Once the target advances to 101, the next tick must
// coalesce 102 and 103 into a single submission for 103.
func TestDecideCoalescesAroundMandatory(t *testing.T) {
	s := &Strategy{}
	candidates := []chain.FinalityProof{
		proof(100, false),
		proof(101, true),
		proof(102, false),
		proof(103, false),
	}

	action, err := s.Decide(context.Background(), SourceState{Candidates: candidates}, TargetState{BestAtTarget: 99})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Submit || string(action.Encoded) != string(proof(101, true).Payload) {
		t.Fatalf("first tick: expected submit of mandatory proof 101, got %+v", action)
	}

	action, err = s.Decide(context.Background(), SourceState{Candidates: candidates}, TargetState{BestAtTarget: 101})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Submit || string(action.Encoded) != string(proof(103, false).Payload) {
		t.Fatalf("second tick: expected coalesced submit of 103, got %+v", action)
	}
}

func TestDecideNeverSkipsMandatoryForHigherNonMandatory(t *testing.T) {
	s := &Strategy{}
	candidates := []chain.FinalityProof{
		proof(105, false),
		proof(102, true),
	}
	action, err := s.Decide(context.Background(), SourceState{Candidates: candidates}, TargetState{BestAtTarget: 100})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Submit || string(action.Encoded) != string(proof(102, true).Payload) {
		t.Fatalf("expected mandatory 102 to win over higher non-mandatory 105, got %+v", action)
	}
}

func TestDecideOnlyMandatorySkipsNonMandatory(t *testing.T) {
	s := &Strategy{OnlyMandatory: true}
	action, err := s.Decide(context.Background(),
		SourceState{Candidates: []chain.FinalityProof{proof(103, false)}},
		TargetState{BestAtTarget: 99})
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != race.Idle {
		t.Fatalf("expected Idle under OnlyMandatory with no mandatory proof pending, got %+v", action)
	}
}

func TestDecideRejectsWrongStateTypes(t *testing.T) {
	s := &Strategy{}
	if _, err := s.Decide(context.Background(), "not-a-source-state", TargetState{}); err == nil {
		t.Fatal("expected error for wrong source state type")
	}
	if _, err := s.Decide(context.Background(), SourceState{}, "not-a-target-state"); err == nil {
		t.Fatal("expected error for wrong target state type")
	}
}
