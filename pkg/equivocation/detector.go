// Package equivocation implements the Equivocation Detector (spec.md §4.7):
// it watches a source chain's consensus vote stream for two votes cast by
// the same voter, in the same round, at the same height, for different
// block hashes, and reports that as on-chain evidence. Modeled on CometBFT's
// DuplicateVoteEvidence (the same "two conflicting signed votes" shape),
// mapped from CometBFT's own voter set onto a GRANDPA-style voter here.
package equivocation

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/client"
	"github.com/paritytech/parity-bridges-common/pkg/logging"
)

// Vote is one signed consensus vote, as observed on the wire.
type Vote struct {
	Voter     []byte // the voter's raw public key
	Round     uint64
	Height    chain.BlockNumber
	BlockHash chain.Hash
	Signature []byte
}

func (v Vote) key() voteKey {
	var voter [32]byte
	copy(voter[:], v.Voter)
	return voteKey{voter: voter, round: v.Round, height: v.Height}
}

type voteKey struct {
	voter  [32]byte
	round  uint64
	height chain.BlockNumber
}

// VoteSource streams every vote a source chain's nodes gossip, for the
// Detector to watch. A concrete implementation subscribes to the node's
// GRANDPA vote-gossip RPC (or equivalent); that transport is out of scope
// here, matching how the rest of this package treats chain data as opaque.
type VoteSource interface {
	SubscribeVotes(ctx context.Context) (votes <-chan Vote, errc <-chan error, err error)
}

// Evidence is a pair of votes proving one voter double-voted at the same
// height and round.
type Evidence struct {
	VoteA, VoteB Vote
}

// Detector watches a VoteSource and reports Evidence through a PalletClient.
type Detector struct {
	Source VoteSource
	Pallet client.PalletClient

	logger *log.Logger
	seen   map[voteKey]Vote
}

// New builds a Detector.
func New(name string, source VoteSource, pallet client.PalletClient) *Detector {
	return &Detector{
		Source: source,
		Pallet: pallet,
		logger: logging.New("Equivocation:"+name, nil),
		seen:   map[voteKey]Vote{},
	}
}

// Run subscribes to the vote stream and reports every conflicting pair it
// observes until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	votes, errc, err := d.Source.SubscribeVotes(ctx)
	if err != nil {
		return fmt.Errorf("equivocation: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			d.logger.Printf("vote stream error: %v", err)
		case v, ok := <-votes:
			if !ok {
				return nil
			}
			if evidence, found := d.Observe(v); found {
				d.logger.Printf("equivocation detected: voter=%x height=%d round=%d", v.Voter, v.Height, v.Round)
				if _, err := d.report(ctx, evidence); err != nil {
					d.logger.Printf("failed to report equivocation: %v", err)
				}
			}
		}
	}
}

// Observe records v and reports whether it conflicts with a previously seen
// vote from the same voter at the same height and round.
func (d *Detector) Observe(v Vote) (Evidence, bool) {
	k := v.key()
	prior, ok := d.seen[k]
	d.seen[k] = v
	if !ok {
		return Evidence{}, false
	}
	if prior.BlockHash == v.BlockHash {
		return Evidence{}, false
	}
	return Evidence{VoteA: prior, VoteB: v}, true
}

func (d *Detector) report(ctx context.Context, e Evidence) (chain.Hash, error) {
	return d.Pallet.ReportEquivocation(ctx, encodeEvidence(e))
}

func encodeEvidence(e Evidence) []byte {
	var buf bytes.Buffer
	writeVote(&buf, e.VoteA)
	writeVote(&buf, e.VoteB)
	return buf.Bytes()
}

func writeVote(buf *bytes.Buffer, v Vote) {
	buf.Write(v.Voter)
	buf.Write(v.BlockHash[:])
	buf.Write(v.Signature)
}
