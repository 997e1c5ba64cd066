// Package chain defines the chain-agnostic data model and capability
// interfaces shared by every relay loop: header and hash types, finality
// and parachain-head proofs, message lanes and their nonce counters, and
// a bounded in-memory header chain index (HeaderIndex).
package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ID is a chain identifier, as carried on the wire between relay loops and
// log lines. Concrete chains use short human names ("source", "target",
// "relay") rather than numeric genesis-hash identifiers, since the relay
// never needs to disambiguate beyond the direction it was configured for.
type ID string

// BlockNumber is an unsigned 32-bit block height, matching Substrate-style
// chains' block number encoding.
type BlockNumber uint32

// Hash is a 32-byte block or storage hash.
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("0x%x", [32]byte(h))
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalJSON encodes h as a 0x-prefixed hex string, matching the wire
// format Substrate-style node RPCs use for hashes (and go-ethereum's
// common.Hash, whose convention this mirrors).
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h[:]))
}

// UnmarshalJSON decodes a 0x-prefixed hex string into h.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("chain: invalid hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("chain: hash %q has wrong length %d, want %d", s, len(b), len(h))
	}
	copy(h[:], b)
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Header is a minimal Substrate-style block header: enough for the relay to
// decide ancestry and to anchor storage proofs, without decoding the
// chain-specific digest log contents.
type Header struct {
	ParentHash     Hash
	Number         BlockNumber
	StateRoot      Hash
	ExtrinsicsRoot Hash
	// Digest holds opaque consensus-engine log entries (e.g. GRANDPA
	// voter-set change announcements). The relay does not decode these;
	// finality-specific extraction lives in FinalityProof.
	Digest [][]byte
}

// String renders the header's number and parent hash for log lines. Header
// has no method that computes its own block hash; callers take the hash
// that the node RPC returns alongside the header.
func (h Header) String() string {
	return fmt.Sprintf("Header{number=%d parent=%s}", h.Number, h.ParentHash)
}

// VoterSetID identifies a consensus voter set (GRANDPA authority set, or
// equivalent). Voter sets change rarely; a finality proof that changes the
// voter set is "mandatory" per spec and must never be skipped.
type VoterSetID uint64

// VoterSet is the set of identities authorized to finalize blocks under a
// given VoterSetID.
type VoterSet struct {
	ID         VoterSetID
	Authorities [][]byte // opaque public keys, one per authority
}

// FinalityProof is a blob proving that a source header at Number was
// finalized under voter set VoterSet. The relay treats the proof payload
// (commit signatures, ancestry votes, any embedded voter-set-change
// justifications) as opaque; it reads only the metadata fields below and
// submits Payload verbatim.
type FinalityProof struct {
	// TargetNumber is the header number this proof finalizes.
	TargetNumber BlockNumber
	// TargetHash is the hash of the header this proof finalizes.
	TargetHash Hash
	// VoterSet is the voter set that produced the commit.
	VoterSet VoterSetID
	// Mandatory is true when this proof enacts a voter-set change; such
	// proofs must be delivered in voter-set order and can never be
	// skipped or coalesced away.
	Mandatory bool
	// Payload is the opaque proof bytes (commit signatures, ancestry
	// votes, justifications) submitted to the target pallet verbatim.
	Payload []byte
}

// ParachainID identifies a parachain anchored in a relay chain's state.
type ParachainID uint32

// ParachainHeadProof is a storage proof read at a finalized relay-chain
// header, attesting the current head of a specific parachain.
type ParachainHeadProof struct {
	Parachain ParachainID
	// RelayHeader is the relay-chain header hash this proof is anchored
	// at; the target must already consider this header finalized.
	RelayHeader Hash
	RelayNumber BlockNumber
	// Head is the parachain head hash read from storage key paras(P).
	Head Hash
	// Proof is the opaque storage read-proof bytes.
	Proof []byte
}

// LaneID identifies an ordered, uni-directional message channel.
type LaneID [4]byte

func (l LaneID) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x", l[0], l[1], l[2], l[3])
}

// Nonce is a per-lane monotonically increasing message index.
type Nonce uint64

// MessageEnvelope is an opaque payload plus declared dispatch weight and
// size. The relay never decodes Payload; it only measures Size and reads
// Weight when packing delivery batches.
type MessageEnvelope struct {
	Lane    LaneID
	Nonce   Nonce
	Payload []byte
	Size    uint64
	Weight  uint64
}

// LaneState is the immutable nonce-counter snapshot for one lane, read
// fresh on every scheduler tick and then discarded (see spec.md §9 "Nonce
// graphs and lane state" — no shared mutable graphs).
type LaneState struct {
	Lane LaneID

	// Source-side counters.
	LatestGenerated  Nonce // highest nonce ever emitted
	LatestConfirmedSrc Nonce // highest nonce whose delivery is confirmed back (reward due)

	// Target-side counters.
	LatestReceived     Nonce // highest nonce accepted by target
	LatestConfirmedTgt Nonce // highest nonce whose reward-payout propagated back from source

	ObservedAt time.Time
}

// CheckInvariant verifies the lane-state ordering invariant from spec.md
// §3/§8:
//
//	LatestGenerated >= LatestReceived >= LatestConfirmedSrc >= LatestConfirmedTgt
func (s LaneState) CheckInvariant() error {
	if s.LatestGenerated < s.LatestReceived {
		return fmt.Errorf("lane %s: generated %d < received %d", s.Lane, s.LatestGenerated, s.LatestReceived)
	}
	if s.LatestReceived < s.LatestConfirmedSrc {
		return fmt.Errorf("lane %s: received %d < confirmed_src %d", s.Lane, s.LatestReceived, s.LatestConfirmedSrc)
	}
	if s.LatestConfirmedSrc < s.LatestConfirmedTgt {
		return fmt.Errorf("lane %s: confirmed_src %d < confirmed_tgt %d", s.Lane, s.LatestConfirmedSrc, s.LatestConfirmedTgt)
	}
	return nil
}

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus string

const (
	TxPending     TxStatus = "Pending"
	TxInBlock     TxStatus = "InBlock"
	TxFinalized   TxStatus = "Finalized"
	TxStalled     TxStatus = "Stalled"
	TxInvalidated TxStatus = "Invalidated"
)

// IsTerminal reports whether a status ends a transaction tracker's wait.
func (s TxStatus) IsTerminal() bool {
	switch s {
	case TxFinalized, TxStalled, TxInvalidated:
		return true
	default:
		return false
	}
}

// RuntimeVersion is the (spec_version, transaction_version) pair exposed by
// state_getRuntimeVersion.
type RuntimeVersion struct {
	SpecVersion        uint32
	TransactionVersion uint32
}
