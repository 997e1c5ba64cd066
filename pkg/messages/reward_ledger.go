package messages

import (
	"sync"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

// RewardLedger tracks, per lane, which relayer is owed a reward for each
// delivered-but-not-yet-confirmed nonce, and the running total each relayer
// is still owed. spec.md §3's nonce table implies this bookkeeping
// (`last_reward_pending`, `last_delivered_nonce_holder`) without naming a
// type for it; real parity-bridges-common-style relays track it explicitly
// so the confirmation race's piggybacked prune has something to prune.
type RewardLedger struct {
	mu sync.Mutex

	// holder is the relayer credited for each delivered nonce still
	// awaiting confirmation (source.latest_confirmed < nonce <=
	// target.latest_received).
	holder map[chain.Nonce]string
	// pending is each relayer's total reward still owed at source.
	pending map[string]uint64
}

// NewRewardLedger returns an empty ledger.
func NewRewardLedger() *RewardLedger {
	return &RewardLedger{
		holder:  make(map[chain.Nonce]string),
		pending: make(map[string]uint64),
	}
}

// CreditDelivery records that relayer delivered nonce and is owed amount,
// pending confirmation. Called once per nonce as soon as the target RPC
// accepts a delivery submission, before its inclusion is tracked.
func (l *RewardLedger) CreditDelivery(relayer string, nonce chain.Nonce, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder[nonce] = relayer
	l.pending[relayer] += amount
}

// PruneConfirmed removes the bookkeeping for every nonce <= upTo, now that
// source has confirmed their delivery and owes the credited relayers.
// Returns the set of relayers whose entries were pruned this call, for
// logging; the reward total itself remains in pending until paid out
// on-chain (out of scope here — payout is the pallet's concern).
func (l *RewardLedger) PruneConfirmed(upTo chain.Nonce) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	for nonce, relayer := range l.holder {
		if nonce <= upTo {
			delete(l.holder, nonce)
			seen[relayer] = true
		}
	}
	pruned := make([]string, 0, len(seen))
	for r := range seen {
		pruned = append(pruned, r)
	}
	return pruned
}

// PendingFor returns the reward total currently owed to relayer.
func (l *RewardLedger) PendingFor(relayer string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending[relayer]
}

// Outstanding reports how many delivered-but-unconfirmed nonces are still
// tracked, across all relayers.
func (l *RewardLedger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.holder)
}
