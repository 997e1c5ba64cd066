package chain

import "context"

// Capability-set polymorphism (spec.md §9): every concrete chain
// implementation registers for the capabilities it actually has, and each
// loop is parameterized by the narrowest capability pair it requires. This
// generalizes the teacher's single ChainExecutionStrategy interface (one
// big interface per chain platform) into one small interface per concern.

// Chain is the capability every relayed chain must have: basic header
// reads and a runtime-version check for the Runtime-Version Guard (§4.1).
type Chain interface {
	ID() ID
	BestHeader(ctx context.Context) (Header, Hash, error)
	HeaderByNumber(ctx context.Context, n BlockNumber) (Header, Hash, error)
	RuntimeVersion(ctx context.Context) (RuntimeVersion, error)
}

// ChainWithFinality is implemented by chains that produce finality proofs
// (source side of the Finality Loop, §4.2) or that can report the best
// finalized header known to them (target side).
type ChainWithFinality interface {
	Chain

	// FinalizedHeader returns the chain's own view of its best finalized
	// header.
	FinalizedHeader(ctx context.Context) (Header, Hash, error)

	// SubscribeFinality delivers a FinalityProof for every newly
	// finalized header. The returned channel is closed when ctx is
	// done; RPC transport errors surface on errc.
	SubscribeFinality(ctx context.Context) (proofs <-chan FinalityProof, errc <-chan error, err error)

	// BestFinalizedAtTarget reads the target's view of the best
	// finalized source header (i.e. the on-chain light client's head).
	// Only meaningful when this Chain value represents the *target* of
	// a finality relay; source-side implementations may return
	// ErrUnsupported.
	BestFinalizedAtTarget(ctx context.Context) (BlockNumber, error)

	// SubmitFinalityProof submits a finality proof to this chain's
	// on-chain bridge pallet, returning the submitted transaction hash.
	SubmitFinalityProof(ctx context.Context, proof FinalityProof) (Hash, error)
}

// ChainWithParachains is implemented by chains that can read a parachain
// head from relay-chain storage (source) or accept a parachain head
// submission (target).
type ChainWithParachains interface {
	Chain

	// ParachainHead reads the current head of p as stored at the
	// relay-chain header anchor, with its storage read-proof.
	ParachainHead(ctx context.Context, p ParachainID, anchor Hash, anchorNumber BlockNumber) (ParachainHeadProof, error)

	// HeadAtTarget reads the parachain head the target currently has on
	// record for p.
	HeadAtTarget(ctx context.Context, p ParachainID) (Hash, error)

	// SubmitParachainHeads submits one or more parachain head proofs,
	// anchored at the same relay header.
	SubmitParachainHeads(ctx context.Context, proofs []ParachainHeadProof) (Hash, error)
}

// ChainWithMessages is implemented by chains that host message lanes
// (bridge-messages pallet), on either the outbound (source) or inbound
// (target) side.
type ChainWithMessages interface {
	Chain

	// LaneState reads the lane's current nonce-counter snapshot.
	LaneState(ctx context.Context, lane LaneID) (LaneState, error)

	// OutboundMessages reads message envelopes and their storage proof
	// for the half-open nonce range (from, to].
	OutboundMessages(ctx context.Context, lane LaneID, from, to Nonce) ([]MessageEnvelope, []byte, error)

	// InboundLaneProof reads the target inbound lane's storage state and
	// its storage proof, used to build a delivery-confirmation proof.
	InboundLaneProof(ctx context.Context, lane LaneID) ([]byte, error)

	// SubmitMessagesProof submits a delivery batch to the target's
	// inbound lane.
	SubmitMessagesProof(ctx context.Context, relayer string, lane LaneID, nonces NonceRange, proof []byte, dispatchWeight uint64) (Hash, error)

	// SubmitMessagesDeliveryProof submits a confirmation proof to the
	// source's outbound lane.
	SubmitMessagesDeliveryProof(ctx context.Context, lane LaneID, proof []byte) (Hash, error)
}

// ChainWithSigning is implemented by chains that can sign and track
// locally-nonced extrinsics.
type ChainWithSigning interface {
	Chain

	// SignerNonce returns the signer's current on-chain account nonce.
	SignerNonce(ctx context.Context, signer string) (uint64, error)

	// WatchTransaction subscribes to in-block/finalization notifications
	// for a submitted transaction hash.
	WatchTransaction(ctx context.Context, tx Hash) (status <-chan TxStatus, err <-chan error, cancel func())
}

// NonceRange is a closed interval of nonces [From, To], used when building
// or submitting a delivery batch.
type NonceRange struct {
	From, To Nonce
}

// Count returns the number of nonces in the range, 0 if empty or invalid.
func (r NonceRange) Count() uint64 {
	if r.To < r.From {
		return 0
	}
	return uint64(r.To-r.From) + 1
}

// ErrUnsupported is returned by capability methods that are structurally
// present on an interface but not meaningful for a particular concrete
// chain/direction (e.g. BestFinalizedAtTarget called on a source-only
// client).
var ErrUnsupported = unsupportedError{}

type unsupportedError struct{}

func (unsupportedError) Error() string { return "chain: capability not supported by this client" }
