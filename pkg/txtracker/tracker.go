// Package txtracker implements the Transaction Tracker (spec.md §4.6): for
// one submitted transaction, it subscribes to in-block/finalization
// notifications, enforces a mortality deadline, detects invalidation
// (reorg), and reports any watch error as TxInvalidated. Modeled on the
// teacher's ConfirmationTracker poll loop (pkg/batch/confirmation_tracker.go),
// generalized from "poll for N confirmations" to "subscribe and wait for a
// terminal TxStatus, or time out".
package txtracker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/logging"
)

// WatchFunc subscribes to status notifications for a submitted transaction.
// Implementations correspond to chain.ChainWithSigning.WatchTransaction.
type WatchFunc func(ctx context.Context, tx chain.Hash) (status <-chan chain.TxStatus, errc <-chan error, cancel func())

// Tracker tracks one in-flight transaction to a terminal state.
type Tracker struct {
	watch     WatchFunc
	mortality time.Duration
	logger    *log.Logger
}

// New builds a Tracker that waits at most mortality for a terminal status.
func New(watch WatchFunc, mortality time.Duration) *Tracker {
	return &Tracker{watch: watch, mortality: mortality, logger: logging.New("TxTracker", nil)}
}

// Result is the outcome of tracking one submission.
type Result struct {
	// CorrelationID ties this submission's tracker log lines together,
	// independent of the tx hash (which changes on resubmission after a
	// nonce refresh). Only the tracker logs it.
	CorrelationID uuid.UUID
	Status        chain.TxStatus
	// Err carries the error that ended tracking: one received from the
	// WatchFunc's error channel (Status TxInvalidated), or ctx's error when
	// ctx was cancelled (Status TxStalled). It is nil otherwise.
	Err error
}

// Track blocks until the transaction reaches a terminal TxStatus
// (Finalized, Stalled, or Invalidated) or ctx is cancelled. A mortality
// deadline that elapses with no terminal status yields TxStalled, freeing
// the scheduler's in-flight slot (spec.md §4.6). Each call is stamped with
// a fresh correlation ID so its log lines can be grepped out of a process
// running many submissions concurrently.
func (t *Tracker) Track(ctx context.Context, tx chain.Hash) Result {
	correlationID := uuid.New()
	statusCh, errc, cancel := t.watch(ctx, tx)
	defer cancel()

	deadline := time.NewTimer(t.mortality)
	defer deadline.Stop()

	t.logger.Printf("tracking tx %s [%s]", tx, correlationID)

	for {
		select {
		case <-ctx.Done():
			return Result{CorrelationID: correlationID, Status: chain.TxStalled, Err: ctx.Err()}

		case <-deadline.C:
			t.logger.Printf("tx %s [%s] exceeded mortality window, marking Stalled", tx, correlationID)
			return Result{CorrelationID: correlationID, Status: chain.TxStalled}

		case err, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			t.logger.Printf("tx %s [%s] submission error: %v", tx, correlationID, err)
			return Result{CorrelationID: correlationID, Status: chain.TxInvalidated, Err: err}

		case status, ok := <-statusCh:
			if !ok {
				statusCh = nil
				continue
			}
			if status.IsTerminal() {
				t.logger.Printf("tx %s [%s] reached terminal status %s", tx, correlationID, status)
				return Result{CorrelationID: correlationID, Status: status}
			}
			// Pending/InBlock: keep waiting.
		}
	}
}

// NonceManager holds a locally-tracked account nonce and refreshes it from
// the node when the target reports nonce-too-low, per spec.md §4.6 "Nonce
// management".
type NonceManager struct {
	current uint64
	refresh func(ctx context.Context) (uint64, error)
}

// NewNonceManager seeds the manager with the current on-chain nonce and a
// refresh function used after a conflict.
func NewNonceManager(initial uint64, refresh func(ctx context.Context) (uint64, error)) *NonceManager {
	return &NonceManager{current: initial, refresh: refresh}
}

// Next returns the nonce to use for the next submission and advances the
// local counter.
func (n *NonceManager) Next() uint64 {
	v := n.current
	n.current++
	return v
}

// RefreshOnConflict re-reads the nonce from the node after a nonce-too-low
// rejection, per spec.md §4.6.
func (n *NonceManager) RefreshOnConflict(ctx context.Context) error {
	v, err := n.refresh(ctx)
	if err != nil {
		return err
	}
	n.current = v
	return nil
}
