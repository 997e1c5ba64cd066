// Package client implements the Chain Client Facade (spec.md §4/§6): a
// minimal abstract transport over each collaborator node's JSON-RPC
// surface, plus typed wrappers for the five bridge-pallet calls. The
// transport itself is go-ethereum's generic *rpc.Client — it speaks
// arbitrary JSON-RPC method names and params, which is exactly the shape a
// Substrate-style node's chain_getHeader/state_getStorage/author_*
// surface needs, and it is already a direct teacher dependency (used by
// the teacher's EVM chain strategy).
package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

// DefaultCallTimeout is the per-call RPC timeout (spec.md §5 "Timeouts").
const DefaultCallTimeout = 60 * time.Second

// RPC wraps a go-ethereum generic JSON-RPC client with the specific calls a
// Substrate-style node RPC surface exposes (spec.md §6.1).
type RPC struct {
	client      *ethrpc.Client
	callTimeout time.Duration
}

// Dial connects to a node's JSON-RPC endpoint (http(s):// or ws(s)://).
func Dial(ctx context.Context, url string) (*RPC, error) {
	c, err := ethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return &RPC{client: c, callTimeout: DefaultCallTimeout}, nil
}

// WithCallTimeout returns a shallow copy of r using the given per-call
// timeout.
func (r *RPC) WithCallTimeout(d time.Duration) *RPC {
	cp := *r
	cp.callTimeout = d
	return &cp
}

func (r *RPC) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.client.CallContext(ctx, result, method, args...)
}

// Close releases the underlying transport.
func (r *RPC) Close() {
	r.client.Close()
}

// rpcHeader is the wire shape returned by chain_getHeader.
type rpcHeader struct {
	ParentHash     chain.Hash `json:"parentHash"`
	Number         uint32     `json:"number"`
	StateRoot      chain.Hash `json:"stateRoot"`
	ExtrinsicsRoot chain.Hash `json:"extrinsicsRoot"`
}

func (h rpcHeader) toHeader() chain.Header {
	return chain.Header{
		ParentHash:     h.ParentHash,
		Number:         chain.BlockNumber(h.Number),
		StateRoot:      h.StateRoot,
		ExtrinsicsRoot: h.ExtrinsicsRoot,
	}
}

// GetHeader calls chain_getHeader for the given block hash, or the best
// header when hash is the zero hash.
func (r *RPC) GetHeader(ctx context.Context, hash chain.Hash) (chain.Header, chain.Hash, error) {
	var h rpcHeader
	arg := interface{}(nil)
	if !hash.IsZero() {
		arg = hash
	}
	if err := r.call(ctx, &h, "chain_getHeader", arg); err != nil {
		return chain.Header{}, chain.Hash{}, fmt.Errorf("client: chain_getHeader: %w", err)
	}

	var gotHash chain.Hash
	if err := r.call(ctx, &gotHash, "chain_getBlockHash", h.Number); err != nil {
		return chain.Header{}, chain.Hash{}, fmt.Errorf("client: chain_getBlockHash: %w", err)
	}
	return h.toHeader(), gotHash, nil
}

// GetFinalizedHead calls chain_getFinalizedHead then chain_getHeader to
// resolve the header for it.
func (r *RPC) GetFinalizedHead(ctx context.Context) (chain.Header, chain.Hash, error) {
	var finalizedHash chain.Hash
	if err := r.call(ctx, &finalizedHash, "chain_getFinalizedHead"); err != nil {
		return chain.Header{}, chain.Hash{}, fmt.Errorf("client: chain_getFinalizedHead: %w", err)
	}
	var h rpcHeader
	if err := r.call(ctx, &h, "chain_getHeader", finalizedHash); err != nil {
		return chain.Header{}, chain.Hash{}, fmt.Errorf("client: chain_getHeader(finalized): %w", err)
	}
	return h.toHeader(), finalizedHash, nil
}

// GetRuntimeVersion calls state_getRuntimeVersion.
func (r *RPC) GetRuntimeVersion(ctx context.Context) (chain.RuntimeVersion, error) {
	var v struct {
		SpecVersion        uint32 `json:"specVersion"`
		TransactionVersion uint32 `json:"transactionVersion"`
	}
	if err := r.call(ctx, &v, "state_getRuntimeVersion"); err != nil {
		return chain.RuntimeVersion{}, fmt.Errorf("client: state_getRuntimeVersion: %w", err)
	}
	return chain.RuntimeVersion{SpecVersion: v.SpecVersion, TransactionVersion: v.TransactionVersion}, nil
}

// GetStorageProof calls state_getReadProof for one or more keys at a given
// block hash.
func (r *RPC) GetStorageProof(ctx context.Context, at chain.Hash, keys ...string) ([]byte, error) {
	var res struct {
		Proof []string `json:"proof"`
	}
	if err := r.call(ctx, &res, "state_getReadProof", keys, at); err != nil {
		return nil, fmt.Errorf("client: state_getReadProof: %w", err)
	}
	var out []byte
	for _, p := range res.Proof {
		b, err := hex.DecodeString(strings.TrimPrefix(p, "0x"))
		if err != nil {
			return nil, fmt.Errorf("client: state_getReadProof: invalid proof node: %w", err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// GetStorage calls state_getStorage for a single key at a given block hash.
func (r *RPC) GetStorage(ctx context.Context, key string, at chain.Hash) ([]byte, error) {
	var hexVal *string
	arg := interface{}(nil)
	if !at.IsZero() {
		arg = at
	}
	if err := r.call(ctx, &hexVal, "state_getStorage", key, arg); err != nil {
		return nil, fmt.Errorf("client: state_getStorage: %w", err)
	}
	if hexVal == nil {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(*hexVal, "0x"))
	if err != nil {
		return nil, fmt.Errorf("client: state_getStorage: invalid hex response: %w", err)
	}
	return b, nil
}

// SubmitExtrinsic submits a signed, SCALE-encoded (or chain-specific)
// extrinsic via author_submitExtrinsic and returns its hash.
func (r *RPC) SubmitExtrinsic(ctx context.Context, encoded []byte) (chain.Hash, error) {
	var h chain.Hash
	hexEncoded := "0x" + hex.EncodeToString(encoded)
	if err := r.call(ctx, &h, "author_submitExtrinsic", hexEncoded); err != nil {
		return chain.Hash{}, fmt.Errorf("client: author_submitExtrinsic: %w", err)
	}
	return h, nil
}

// SubscribeNewHeads subscribes to new best-header notifications. The
// returned subscription must be unsubscribed by the caller.
func (r *RPC) SubscribeNewHeads(ctx context.Context) (*ethrpc.ClientSubscription, chan rpcHeader, error) {
	ch := make(chan rpcHeader)
	sub, err := r.client.Subscribe(ctx, "chain", ch, "subscribeNewHeads")
	if err != nil {
		return nil, nil, fmt.Errorf("client: subscribeNewHeads: %w", err)
	}
	return sub, ch, nil
}

// SubscribeFinalizedHeads subscribes to newly finalized header
// notifications.
func (r *RPC) SubscribeFinalizedHeads(ctx context.Context) (*ethrpc.ClientSubscription, chan rpcHeader, error) {
	ch := make(chan rpcHeader)
	sub, err := r.client.Subscribe(ctx, "chain", ch, "subscribeFinalizedHeads")
	if err != nil {
		return nil, nil, fmt.Errorf("client: subscribeFinalizedHeads: %w", err)
	}
	return sub, ch, nil
}

// AccountNextIndex calls system_accountNextIndex, returning the next nonce
// the node would accept for address (including any already-pending
// extrinsics in its transaction pool).
func (r *RPC) AccountNextIndex(ctx context.Context, address string) (uint64, error) {
	var nonce uint64
	if err := r.call(ctx, &nonce, "system_accountNextIndex", address); err != nil {
		return 0, fmt.Errorf("client: system_accountNextIndex: %w", err)
	}
	return nonce, nil
}

// PendingExtrinsics calls author_pendingExtrinsics, used by the Transaction
// Tracker to detect whether a submission is still outstanding after a
// reconnect.
func (r *RPC) PendingExtrinsics(ctx context.Context) ([][]byte, error) {
	var hexList []string
	if err := r.call(ctx, &hexList, "author_pendingExtrinsics"); err != nil {
		return nil, fmt.Errorf("client: author_pendingExtrinsics: %w", err)
	}
	out := make([][]byte, len(hexList))
	for i, h := range hexList {
		b, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
		if err != nil {
			return nil, fmt.Errorf("client: author_pendingExtrinsics: invalid entry: %w", err)
		}
		out[i] = b
	}
	return out, nil
}
