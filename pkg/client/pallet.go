package client

import (
	"context"
	"fmt"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

// PalletClient is the typed surface of the five on-chain bridge pallet
// calls (spec.md §6.2). Each call is idempotent on repeated valid
// submission and rejects with a well-defined error on obsoleteness,
// incompatibility, or an invalid proof — the concrete implementation below
// just forwards the already-encoded extrinsic to author_submitExtrinsic;
// encoding is the caller's (strategy's) responsibility, keeping this
// package chain-codec-agnostic.
type PalletClient interface {
	SubmitFinalityProof(ctx context.Context, encoded []byte) (chain.Hash, error)
	SubmitParachainHeads(ctx context.Context, encoded []byte) (chain.Hash, error)
	ReceiveMessagesProof(ctx context.Context, encoded []byte) (chain.Hash, error)
	ReceiveMessagesDeliveryProof(ctx context.Context, encoded []byte) (chain.Hash, error)
	ReportEquivocation(ctx context.Context, encoded []byte) (chain.Hash, error)
}

// RPCPalletClient implements PalletClient over an RPC transport. All five
// calls reduce to author_submitExtrinsic once a strategy has SCALE-encoded
// (or chain-specific-encoded) the call; this type exists to give each call
// its own name and error context in logs and metrics.
type RPCPalletClient struct {
	rpc *RPC
}

// NewRPCPalletClient wraps rpc as a PalletClient.
func NewRPCPalletClient(rpc *RPC) *RPCPalletClient {
	return &RPCPalletClient{rpc: rpc}
}

func (p *RPCPalletClient) submit(ctx context.Context, call string, encoded []byte) (chain.Hash, error) {
	h, err := p.rpc.SubmitExtrinsic(ctx, encoded)
	if err != nil {
		return chain.Hash{}, fmt.Errorf("client: %s: %w", call, err)
	}
	return h, nil
}

func (p *RPCPalletClient) SubmitFinalityProof(ctx context.Context, encoded []byte) (chain.Hash, error) {
	return p.submit(ctx, "submit_finality_proof", encoded)
}

func (p *RPCPalletClient) SubmitParachainHeads(ctx context.Context, encoded []byte) (chain.Hash, error) {
	return p.submit(ctx, "submit_parachain_heads", encoded)
}

func (p *RPCPalletClient) ReceiveMessagesProof(ctx context.Context, encoded []byte) (chain.Hash, error) {
	return p.submit(ctx, "receive_messages_proof", encoded)
}

func (p *RPCPalletClient) ReceiveMessagesDeliveryProof(ctx context.Context, encoded []byte) (chain.Hash, error) {
	return p.submit(ctx, "receive_messages_delivery_proof", encoded)
}

func (p *RPCPalletClient) ReportEquivocation(ctx context.Context, encoded []byte) (chain.Hash, error) {
	return p.submit(ctx, "report_equivocation", encoded)
}
