// Package finality implements the Finality Loop (spec.md §4.2): it
// forwards finality proofs of source headers so the target's on-chain
// light client advances. Mandatory proofs (those enacting a voter-set
// change) are submitted in order and never skipped; non-mandatory proofs
// may be coalesced, only the highest pending one is submitted.
package finality

import (
	"context"
	"fmt"
	"sort"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/race"
)

// SourceState is what ReadSource hands the strategy: every finality proof
// observed since the last successfully-tracked submission, in no
// particular order.
type SourceState struct {
	Candidates []chain.FinalityProof
}

// TargetState is what ReadTarget hands the strategy: the target's current
// view of the best finalized source header.
type TargetState struct {
	BestAtTarget chain.BlockNumber
}

// Strategy implements race.Strategy for the Finality Loop.
type Strategy struct {
	// OnlyMandatory mirrors the --only-mandatory-headers CLI flag
	// (spec.md §6): when set, non-mandatory proofs are never submitted,
	// only voter-set-change proofs are relayed.
	OnlyMandatory bool
}

// Decide implements race.Strategy. source must be a SourceState, target a
// TargetState.
func (s *Strategy) Decide(ctx context.Context, source, target interface{}) (race.Action, error) {
	src, ok := source.(SourceState)
	if !ok {
		return race.Action{}, fmt.Errorf("finality: unexpected source state type %T", source)
	}
	tgt, ok := target.(TargetState)
	if !ok {
		return race.Action{}, fmt.Errorf("finality: unexpected target state type %T", target)
	}

	candidates := make([]chain.FinalityProof, len(src.Candidates))
	copy(candidates, src.Candidates)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].TargetNumber < candidates[j].TargetNumber
	})

	// Mandatory proofs must be delivered in voter-set order and can
	// never be skipped: the earliest pending mandatory proof always
	// wins the tick.
	for _, c := range candidates {
		if c.TargetNumber > tgt.BestAtTarget && c.Mandatory {
			return submitAction(c), nil
		}
	}

	if s.OnlyMandatory {
		return race.Action{Kind: race.Idle}, nil
	}

	// No mandatory proof is pending: coalesce non-mandatory candidates
	// down to the single highest one ahead of the target.
	var best *chain.FinalityProof
	for i := range candidates {
		c := candidates[i]
		if c.TargetNumber <= tgt.BestAtTarget {
			continue
		}
		if best == nil || c.TargetNumber > best.TargetNumber {
			best = &candidates[i]
		}
	}
	if best == nil {
		return race.Action{Kind: race.Idle}, nil
	}
	return submitAction(*best), nil
}

func submitAction(p chain.FinalityProof) race.Action {
	kind := "non-mandatory"
	if p.Mandatory {
		kind = "mandatory"
	}
	return race.Action{
		Kind:        race.Submit,
		Encoded:     p.Payload,
		Description: fmt.Sprintf("%s finality proof for block %d (voter set %d)", kind, p.TargetNumber, p.VoterSet),
	}
}
