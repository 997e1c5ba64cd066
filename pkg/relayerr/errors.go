// Package relayerr defines the relay's error taxonomy (spec.md §7) and a
// small classification helper. Modeled on the teacher's sentinel-error
// style (pkg/batch/errors.go, pkg/ledger/errors.go): plain errors.New
// values, no wrapping framework, because the teacher never reaches for one.
package relayerr

import "errors"

// Kind classifies an error for retry/abort policy.
type Kind string

const (
	// Transient: RPC timeout, network blip, node not ready. Retry with
	// backoff; never surfaced to the operator.
	Transient Kind = "transient"
	// Stale: a submitted tx was rejected because state moved underneath
	// it. Re-read and rebuild; counts as normal flow.
	Stale Kind = "stale"
	// Invalid: a proof was rejected as malformed. Log ERROR, drop,
	// continue — never re-submit the same proof.
	Invalid Kind = "invalid"
	// Incompatible: the runtime-version guard tripped. Abort the
	// affected loop(s); process exits 2.
	Incompatible Kind = "incompatible"
	// Fatal: signer missing, configuration contradiction. Exit 1 at
	// startup, ERROR during operation.
	Fatal Kind = "fatal"
	// Starvation: no mandatory proof available from source. ERROR the
	// loop, use long backoff; reflected in stall metrics.
	Starvation Kind = "starvation"
)

// Error wraps a Kind with the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel errors shared across loops.
var (
	// ErrNoMandatoryProof signals the Starvation condition: the source
	// has a pending voter-set change but no proof for it is available
	// yet.
	ErrNoMandatoryProof = errors.New("relay: mandatory finality proof unavailable from source")
	// ErrProofRejected signals the Invalid condition for a proof the
	// target pallet rejected as stale, wrong voter set, or malformed.
	ErrProofRejected = errors.New("relay: proof rejected by target")
	// ErrSignerConflict signals two loops configured to share one
	// signer, forbidden per spec.md §5.
	ErrSignerConflict = errors.New("relay: signer is already exclusively owned by another loop")
	// ErrNonceTooLow signals the tracker's locally-held nonce is stale.
	ErrNonceTooLow = errors.New("relay: submission rejected, nonce too low")
)
