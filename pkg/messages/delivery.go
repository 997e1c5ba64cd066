package messages

import (
	"context"
	"fmt"
	"sync"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/race"
)

// Caps bounds one delivery batch, enforced simultaneously (spec.md §4.4.1).
type Caps struct {
	MaxExtrinsicSize uint64 // (i) total proof+metadata bytes
	MaxWeight        uint64 // (ii) target-block weight budget for delivery, typically <=50%
	MaxUnconfirmed   uint64 // (iii) hard protocol limit on the inbound lane's unconfirmed window
	MaxMessagesPerTx uint64 // (iv) configurable count cap
}

// BuildDeliveryBatch walks envelopes in nonce order and returns the longest
// nonce-contiguous prefix that fits under the size, weight and count caps at
// once. MaxUnconfirmed is not consulted here: the loop applies it to the
// range it reads before calling this. envelopes must
// already be sorted by ascending nonce with no gaps (as OutboundMessages
// guarantees for a single range read). ok is false if no envelope fits.
func BuildDeliveryBatch(envelopes []chain.MessageEnvelope, caps Caps) (rng chain.NonceRange, ok bool) {
	if len(envelopes) == 0 {
		return chain.NonceRange{}, false
	}

	var size, weight, count uint64
	last := envelopes[0].Nonce
	included := uint64(0)

	for _, e := range envelopes {
		if caps.MaxMessagesPerTx > 0 && count+1 > caps.MaxMessagesPerTx {
			break
		}
		if caps.MaxExtrinsicSize > 0 && size+e.Size > caps.MaxExtrinsicSize {
			break
		}
		if caps.MaxWeight > 0 && weight+e.Weight > caps.MaxWeight {
			break
		}
		size += e.Size
		weight += e.Weight
		count++
		last = e.Nonce
		included++
	}

	if included == 0 {
		return chain.NonceRange{}, false
	}
	return chain.NonceRange{From: envelopes[0].Nonce, To: last}, true
}

// DeliverySourceState is what readSource precomputes: a nonce-contiguous
// batch already trimmed to every cap, its storage proof, and the target
// receive-window this batch was computed against (so Decide can detect a
// competing relayer having moved target state in the meantime).
type DeliverySourceState struct {
	Range          chain.NonceRange
	Proof          []byte
	DispatchWeight uint64
	ReceivedAtRead chain.Nonce
}

// DeliveryTargetState is the target inbound lane's current received nonce.
type DeliveryTargetState struct {
	Received chain.Nonce
}

// DeliveryStrategy implements race.Strategy for the delivery race
// (spec.md §4.4.1).
type DeliveryStrategy struct {
	RelayerID string

	mu        sync.Mutex
	lastRange chain.NonceRange
	lastProof []byte
	lastWeight uint64
}

// Decide implements race.Strategy. Per spec.md §5's "if best-target changed
// mid-iteration, the iteration is restarted": if target.Received has moved
// since the batch was computed in readSource, this tick does nothing and
// lets the next tick recompute fresh — this is exactly how a race loss
// (scenario 3) resolves to "no action" rather than a doomed resubmission.
func (s *DeliveryStrategy) Decide(ctx context.Context, source, target interface{}) (race.Action, error) {
	src, ok := source.(DeliverySourceState)
	if !ok {
		return race.Action{}, fmt.Errorf("messages: unexpected delivery source state type %T", source)
	}
	tgt, ok := target.(DeliveryTargetState)
	if !ok {
		return race.Action{}, fmt.Errorf("messages: unexpected delivery target state type %T", target)
	}

	if src.Range.Count() == 0 {
		return race.Action{Kind: race.Idle}, nil
	}
	if tgt.Received != src.ReceivedAtRead {
		return race.Action{Kind: race.Idle}, nil
	}

	s.mu.Lock()
	s.lastRange = src.Range
	s.lastProof = src.Proof
	s.lastWeight = src.DispatchWeight
	s.mu.Unlock()

	return race.Action{
		Kind:        race.Submit,
		Encoded:     encodeRange(src.Range),
		Description: fmt.Sprintf("receive_messages_proof relayer=%s nonces=%d..%d", s.RelayerID, src.Range.From, src.Range.To),
	}, nil
}

// TakeBatch returns the proof and dispatch weight for the decided range, if
// it matches rng.
func (s *DeliveryStrategy) TakeBatch(rng chain.NonceRange) (proof []byte, weight uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRange != rng {
		return nil, 0, false
	}
	return s.lastProof, s.lastWeight, true
}

func encodeRange(r chain.NonceRange) []byte {
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		b[i] = byte(r.From >> (8 * (7 - i)))
		b[8+i] = byte(r.To >> (8 * (7 - i)))
	}
	return b
}

func decodeRange(b []byte) (chain.NonceRange, bool) {
	if len(b) != 16 {
		return chain.NonceRange{}, false
	}
	var from, to chain.Nonce
	for i := 0; i < 8; i++ {
		from = from<<8 | chain.Nonce(b[i])
		to = to<<8 | chain.Nonce(b[8+i])
	}
	return chain.NonceRange{From: from, To: to}, true
}
