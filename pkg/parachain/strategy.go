// Package parachain implements the Parachain Loop (spec.md §4.3): it reads
// a parachain's head as stored in the relay chain's state at the relay
// header the target already considers finalized, and submits it whenever
// it differs from what the target currently has on record. Resubmission is
// naturally idempotent: an unchanged head never appears in the stale set.
package parachain

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/race"
)

// SourceState is what ReadSource hands the strategy: the relay header this
// tick is anchored at, and the parachain heads read there.
type SourceState struct {
	Anchor       chain.Hash
	AnchorNumber chain.BlockNumber
	Heads        []chain.ParachainHeadProof
}

// TargetState is what ReadTarget hands the strategy: the parachain heads
// the target currently has on record, by parachain ID.
type TargetState struct {
	HeadsAtTarget map[chain.ParachainID]chain.Hash
}

// StaleHeads returns the subset of heads whose value differs from (or is
// absent from) atTarget, sorted by parachain ID for deterministic batching.
func StaleHeads(heads []chain.ParachainHeadProof, atTarget map[chain.ParachainID]chain.Hash) []chain.ParachainHeadProof {
	out := make([]chain.ParachainHeadProof, 0, len(heads))
	for _, h := range heads {
		if cur, ok := atTarget[h.Parachain]; !ok || cur != h.Head {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Parachain < out[j].Parachain })
	return out
}

// Strategy implements race.Strategy for the Parachain Loop. Because a
// submission batches every stale head anchored at the same relay header
// into one extrinsic, race.Action's single Encoded field carries only the
// anchor hash; the batch itself is stashed and handed to the loop's Submit
// via TakeBatch, valid only for that same anchor (a tick is never
// concurrent with its own submit, so this requires no extra handshake).
type Strategy struct {
	mu         sync.Mutex
	lastAnchor chain.Hash
	lastBatch  []chain.ParachainHeadProof
}

// Decide implements race.Strategy. source must be a SourceState, target a
// TargetState.
func (s *Strategy) Decide(ctx context.Context, source, target interface{}) (race.Action, error) {
	src, ok := source.(SourceState)
	if !ok {
		return race.Action{}, fmt.Errorf("parachain: unexpected source state type %T", source)
	}
	tgt, ok := target.(TargetState)
	if !ok {
		return race.Action{}, fmt.Errorf("parachain: unexpected target state type %T", target)
	}

	stale := StaleHeads(src.Heads, tgt.HeadsAtTarget)
	if len(stale) == 0 {
		return race.Action{Kind: race.Idle}, nil
	}

	s.mu.Lock()
	s.lastAnchor = src.Anchor
	s.lastBatch = stale
	s.mu.Unlock()

	return race.Action{
		Kind:        race.Submit,
		Encoded:     append([]byte(nil), src.Anchor[:]...),
		Description: fmt.Sprintf("%d parachain head(s) anchored at relay block %d", len(stale), src.AnchorNumber),
	}, nil
}

// TakeBatch returns the stale-head batch computed by the most recent Decide
// call, if it was anchored at the given relay header. ok is false if no
// batch is pending for that anchor (e.g. a stale or repeated submit call).
func (s *Strategy) TakeBatch(anchor chain.Hash) (batch []chain.ParachainHeadProof, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAnchor != anchor {
		return nil, false
	}
	return s.lastBatch, true
}
