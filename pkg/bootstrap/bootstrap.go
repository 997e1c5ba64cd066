// Package bootstrap implements the init-bridge one-shot operation
// (spec.md §6 CLI table): before a finality loop can run, the target's
// on-chain light client needs an initial source header to treat as
// finalized. It builds its own first-submission proof (the header's state
// root followed by its digest entries, marked mandatory) and submits it
// once, with no race against a competing proof — there is nothing to race
// against on an empty light client. It does not read the source's voter
// set: the submitted proof's VoterSet is left zero.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/guard"
	"github.com/paritytech/parity-bridges-common/pkg/logging"
)

// InitBridge reads source's current finalized header and submits it to
// target as the light client's genesis-of-relaying point. It refuses to run
// if a compatibility Guard is supplied and reports Incompatible.
func InitBridge(ctx context.Context, source, target chain.ChainWithFinality, g *guard.Guard) (chain.Hash, error) {
	logger := logging.New("Bootstrap", nil)

	if g != nil {
		verdict, err := g.Check(ctx)
		if err != nil {
			return chain.Hash{}, fmt.Errorf("bootstrap: runtime guard check: %w", err)
		}
		if verdict == guard.Incompatible {
			return chain.Hash{}, fmt.Errorf("bootstrap: target runtime incompatible, refusing to initialize")
		}
	}

	header, hash, err := source.FinalizedHeader(ctx)
	if err != nil {
		return chain.Hash{}, fmt.Errorf("bootstrap: read source finalized header: %w", err)
	}

	var payload bytes.Buffer
	payload.Write(header.StateRoot[:])
	for _, entry := range header.Digest {
		payload.Write(entry)
	}

	proof := chain.FinalityProof{
		TargetNumber: header.Number,
		TargetHash:   hash,
		Mandatory:    true,
		Payload:      payload.Bytes(),
	}

	tx, err := target.SubmitFinalityProof(ctx, proof)
	if err != nil {
		return chain.Hash{}, fmt.Errorf("bootstrap: submit initial finality proof: %w", err)
	}
	logger.Printf("initialized target light client at source header %d (%s), tx=%s", header.Number, hash, tx)
	return tx, nil
}
