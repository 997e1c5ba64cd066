package chain

import (
	"fmt"
	"sync"
)

// IndexEntry is one entry in a HeaderIndex: a block number mapped to its
// hash, finality status, and the voter set active when it was produced.
type IndexEntry struct {
	Hash      Hash
	Finalized bool
	VoterSet  VoterSetID
}

// HeaderIndex is a sparse, size-bounded, in-memory index from block number
// to (hash, finality status, voter-set id) for one source chain. Finalized
// entries are immutable once inserted; unfinalized entries may be pruned or
// overwritten on reorg. There is no persisted state (spec.md §6): the index
// holds only what its caller inserts and starts empty after a restart. No
// relay loop in this module reads or writes it.
//
// Modeled on the teacher's bounded AccountCache (LRU eviction over a plain
// map guarded by one mutex); specialized here to evict the oldest-inserted
// unfinalized entry first (Get does not refresh an entry's position) and
// never to evict finalized entries.
type HeaderIndex struct {
	mu sync.RWMutex

	entries map[BlockNumber]IndexEntry
	// accessOrder tracks unfinalized entries only, oldest first, so we
	// can evict them under maxUnfinalized without ever touching
	// finalized (immutable) entries.
	accessOrder    []BlockNumber
	maxUnfinalized int
}

// NewHeaderIndex creates an index that keeps at most maxUnfinalized
// unfinalized entries (0 means unbounded).
func NewHeaderIndex(maxUnfinalized int) *HeaderIndex {
	return &HeaderIndex{
		entries:        make(map[BlockNumber]IndexEntry),
		maxUnfinalized: maxUnfinalized,
	}
}

// Insert records or overwrites the entry for n. Inserting over a finalized
// entry with conflicting data is a reorg-of-finality bug upstream and is
// rejected; unfinalized entries may always be overwritten (reorg).
func (idx *HeaderIndex) Insert(n BlockNumber, e IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.entries[n]; ok && existing.Finalized {
		if existing.Hash != e.Hash {
			return finalityConflictError{number: n, have: existing.Hash, got: e.Hash}
		}
		// Re-inserting the same hash over a finalized entry, finalized
		// or not, is a no-op: the finalized entry is kept as it is.
		return nil
	}

	if _, wasTracked := idx.entries[n]; !wasTracked && !e.Finalized {
		idx.accessOrder = append(idx.accessOrder, n)
	}
	idx.entries[n] = e

	if e.Finalized {
		idx.removeFromAccessOrder(n)
	}
	idx.evictIfNeeded()
	return nil
}

// Get returns the entry for n, if present.
func (idx *HeaderIndex) Get(n BlockNumber) (IndexEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[n]
	return e, ok
}

// Prune drops unfinalized entries at or below n (used after finality
// advances far enough that stale reorg candidates are no longer relevant).
func (idx *HeaderIndex) Prune(n BlockNumber) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.accessOrder[:0]
	for _, num := range idx.accessOrder {
		if num <= n {
			delete(idx.entries, num)
			continue
		}
		kept = append(kept, num)
	}
	idx.accessOrder = kept
}

func (idx *HeaderIndex) removeFromAccessOrder(n BlockNumber) {
	for i, num := range idx.accessOrder {
		if num == n {
			idx.accessOrder = append(idx.accessOrder[:i], idx.accessOrder[i+1:]...)
			return
		}
	}
}

func (idx *HeaderIndex) evictIfNeeded() {
	if idx.maxUnfinalized <= 0 {
		return
	}
	for len(idx.accessOrder) > idx.maxUnfinalized {
		oldest := idx.accessOrder[0]
		idx.accessOrder = idx.accessOrder[1:]
		delete(idx.entries, oldest)
	}
}

type finalityConflictError struct {
	number   BlockNumber
	have, got Hash
}

func (e finalityConflictError) Error() string {
	return fmt.Sprintf("chain: conflicting finalized hash at block %d: have %s got %s",
		e.number, e.have, e.got)
}
