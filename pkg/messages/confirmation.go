package messages

import (
	"context"
	"fmt"
	"sync"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/race"
)

// ConfirmationSourceState is the source outbound lane's current confirmed
// nonce (the delivery-race counterpart's "received" value, as last observed
// by source).
type ConfirmationSourceState struct {
	ConfirmedSrc chain.Nonce
}

// ConfirmationTargetState is the target inbound lane's received nonce and
// its storage proof, read fresh every tick.
type ConfirmationTargetState struct {
	Received chain.Nonce
	Proof    []byte
}

// ConfirmationStrategy implements race.Strategy for the confirmation race
// (spec.md §4.4.2): it is always safe to submit as long as there is a gap,
// since the proof only ever moves source.latest_confirmed forward.
type ConfirmationStrategy struct {
	mu           sync.Mutex
	lastReceived chain.Nonce
	lastProof    []byte
}

// Decide implements race.Strategy.
func (s *ConfirmationStrategy) Decide(ctx context.Context, source, target interface{}) (race.Action, error) {
	src, ok := source.(ConfirmationSourceState)
	if !ok {
		return race.Action{}, fmt.Errorf("messages: unexpected confirmation source state type %T", source)
	}
	tgt, ok := target.(ConfirmationTargetState)
	if !ok {
		return race.Action{}, fmt.Errorf("messages: unexpected confirmation target state type %T", target)
	}

	if tgt.Received <= src.ConfirmedSrc {
		return race.Action{Kind: race.Idle}, nil
	}

	s.mu.Lock()
	s.lastReceived = tgt.Received
	s.lastProof = tgt.Proof
	s.mu.Unlock()

	return race.Action{
		Kind:        race.Submit,
		Encoded:     encodeNonce(tgt.Received),
		Description: fmt.Sprintf("receive_messages_delivery_proof confirming up to nonce %d", tgt.Received),
	}, nil
}

// TakeProof returns the proof for the decided confirmation, if it matches
// received.
func (s *ConfirmationStrategy) TakeProof(received chain.Nonce) (proof []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReceived != received {
		return nil, false
	}
	return s.lastProof, true
}

func encodeNonce(n chain.Nonce) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * (7 - i)))
	}
	return b
}

func decodeNonce(b []byte) (chain.Nonce, bool) {
	if len(b) != 8 {
		return 0, false
	}
	var n chain.Nonce
	for i := 0; i < 8; i++ {
		n = n<<8 | chain.Nonce(b[i])
	}
	return n, true
}
