// Package signer implements the Signer collaborator contract (spec.md
// §6.3): a key reference that signs constructed extrinsics with a mortality
// and tip policy. Modeled on the teacher's EVM strategy signing path
// (pkg/chain/strategy/evm_strategy.go), generalized away from EVM-specific
// gas fields to a chain-agnostic (mortality, tip) policy, and extended with
// the development `//Name` seed convention Substrate tooling uses for test
// keys.
package signer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

// MortalityPolicy controls how long a submitted extrinsic remains valid.
type MortalityPolicy struct {
	// Period is the number of blocks the extrinsic stays valid for,
	// counted from BirthBlock.
	Period uint32
	// BirthBlock anchors the mortality window.
	BirthBlock chain.BlockNumber
}

// TipPolicy controls the tip (priority fee) attached to a submission.
type TipPolicy struct {
	Tip uint64
}

// Signer produces signed, nonced, mortal extrinsics for one account on one
// chain. Per spec.md §5, a Signer is exclusive to one loop. config.Registry
// reports a second claim on a signer as ErrSignerConflict (pkg/relayerr),
// but no relay subcommand calls it, so a shared signer is not detected at
// startup.
type Signer interface {
	// Address returns the signer's public account identifier.
	Address() string
	// Sign produces a detached signature over payload.
	Sign(payload []byte) ([]byte, error)
	// PublicKey returns the raw public key bytes.
	PublicKey() []byte
}

// ecdsaSigner implements Signer with a secp256k1 key, matching the
// teacher's EVM strategy signing path.
type ecdsaSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// FromHexKey builds a Signer from a hex-encoded secp256k1 private key (no
// "0x" prefix required), mirroring EVMStrategyConfig.PrivateKeyHex in the
// teacher.
func FromHexKey(hexKey string) (Signer, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %w", err)
	}
	return &ecdsaSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

// FromDevSeed derives a deterministic development key from a `//Name`
// seed string (e.g. "//Alice"), the convention Substrate tooling uses for
// well-known test accounts. It must never be used for a production signer;
// callers are expected to gate this behind an explicit development flag.
func FromDevSeed(seed string) (Signer, error) {
	if !strings.HasPrefix(seed, "//") {
		return nil, fmt.Errorf("signer: dev seed must start with //, got %q", seed)
	}
	digest := sha256.Sum256([]byte("dev-seed:" + seed))
	key, err := crypto.ToECDSA(digest[:])
	if err != nil {
		return nil, fmt.Errorf("signer: derive dev key: %w", err)
	}
	return &ecdsaSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

func (s *ecdsaSigner) Address() string { return s.address }

func (s *ecdsaSigner) Sign(payload []byte) ([]byte, error) {
	hash := sha256.Sum256(payload)
	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign: %w", err)
	}
	return sig, nil
}

func (s *ecdsaSigner) PublicKey() []byte {
	return crypto.FromECDSAPub(&s.key.PublicKey)
}

// Extrinsic is a signed, mortal, tipped call ready for submission.
type Extrinsic struct {
	Call      []byte
	Signature []byte
	Signer    string
	Nonce     uint64
	Mortality MortalityPolicy
	Tip       TipPolicy
}

// Build signs call with the given account nonce, mortality and tip policy,
// producing an Extrinsic ready for SubmitExtrinsic.
func Build(s Signer, call []byte, nonce uint64, mortality MortalityPolicy, tip TipPolicy) (Extrinsic, error) {
	signingPayload := append(append([]byte{}, call...), encodeMortalityAndNonce(mortality, nonce, tip)...)
	sig, err := s.Sign(signingPayload)
	if err != nil {
		return Extrinsic{}, err
	}
	return Extrinsic{
		Call:      call,
		Signature: sig,
		Signer:    s.Address(),
		Nonce:     nonce,
		Mortality: mortality,
		Tip:       tip,
	}, nil
}

func encodeMortalityAndNonce(m MortalityPolicy, nonce uint64, tip TipPolicy) []byte {
	buf := make([]byte, 0, 20)
	buf = appendUint32(buf, m.Period)
	buf = appendUint32(buf, uint32(m.BirthBlock))
	buf = appendUint64(buf, nonce)
	buf = appendUint64(buf, tip.Tip)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
