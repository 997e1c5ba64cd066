// Package race implements the shared Race Scheduler skeleton (spec.md
// §4.5): an event-coalescing loop that re-reads minimal source/target
// state, asks a Strategy what to do, and hands any resulting transaction to
// the Transaction Tracker, not invoking the strategy again until the
// tracker reports a terminal status. The finality, parachain, and message
// loops all instantiate this skeleton with a different Strategy.
//
// Modeled on the teacher's batch.Scheduler (pkg/batch/scheduler.go): a
// timer-driven background goroutine with Start/Stop/Pause/Resume and a
// single callback invoked when work is ready, generalized from "fire a
// batch-ready callback on a fixed interval" to "coalesce notifications,
// consult a pluggable strategy, and serialize on one in-flight submission".
package race

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/logging"
	"github.com/paritytech/parity-bridges-common/pkg/txtracker"
)

// ActionKind distinguishes an idle tick from one producing a transaction.
type ActionKind string

const (
	Idle   ActionKind = "Idle"
	Submit ActionKind = "Submit"
)

// Action is a Strategy's verdict for one tick.
type Action struct {
	Kind ActionKind
	// Encoded is the strategy's key for what to submit (for example an
	// encoded nonce range or nonce); the Submit func decodes it, builds
	// and signs the call. Only meaningful when Kind == Submit.
	Encoded []byte
	// Description is a short human label used in logs ("proof for block
	// 103", "delivery nonces 6..10").
	Description string
}

// Strategy decides what to do given freshly-read source and target state.
// source and target are whatever concrete snapshot type the instantiating
// loop reads (chain.Header, chain.LaneState, a parachain-head tuple, …);
// the scheduler treats them opaquely, matching spec.md §9's "Strategy that,
// given (source_state, target_state), returns either Idle or a
// Transaction".
type Strategy interface {
	Decide(ctx context.Context, source, target interface{}) (Action, error)
}

// ReadFunc re-reads one side's minimal state for the strategy.
type ReadFunc func(ctx context.Context) (interface{}, error)

// SubmitFunc submits an Action's encoded call and returns the resulting
// transaction hash.
type SubmitFunc func(ctx context.Context, action Action) (chain.Hash, error)

// Config wires one instantiation of the scheduler skeleton.
type Config struct {
	Name           string // used in log lines, e.g. "finality:a-to-b"
	ReadSource     ReadFunc
	ReadTarget     ReadFunc
	Strategy       Strategy
	Submit         SubmitFunc
	Tracker        *txtracker.Tracker
	// Notify carries "best header updated" / "source finalized" type
	// events (spec.md §4.5 point 1). A nil channel means the scheduler
	// falls back to polling at MinTickInterval only.
	Notify <-chan struct{}
	// MinTickInterval is the re-read coalescing floor (spec.md §4.5
	// point 2, "~500ms floor"). Defaults to 500ms.
	MinTickInterval time.Duration
}

// Scheduler runs the shared skeleton for one strategy instantiation.
type Scheduler struct {
	cfg    Config
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Scheduler from cfg, filling in defaults.
func New(cfg Config) *Scheduler {
	if cfg.MinTickInterval <= 0 {
		cfg.MinTickInterval = 500 * time.Millisecond
	}
	return &Scheduler{cfg: cfg, logger: logging.New("Race:"+cfg.Name, nil)}
}

// Start runs the scheduler loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.MinTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.cfg.Notify:
			s.drainCoalesced()
			s.tick(ctx)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// drainCoalesced collapses a burst of pending notifications into the one
// that is about to be handled (spec.md §4.5 point 2: "a storm of
// notifications collapses to at most one re-read per tick").
func (s *Scheduler) drainCoalesced() {
	for {
		select {
		case <-s.cfg.Notify:
		default:
			return
		}
	}
}

// tick performs one re-read/decide/submit/track cycle. It blocks on the
// tracker's terminal status before returning, which is what serializes
// submissions onto a single in-flight slot (spec.md §4.5 point 4, §5
// "submissions are serialized").
func (s *Scheduler) tick(ctx context.Context) {
	source, err := s.cfg.ReadSource(ctx)
	if err != nil {
		s.logger.Printf("read source state failed: %v", err)
		return
	}
	target, err := s.cfg.ReadTarget(ctx)
	if err != nil {
		s.logger.Printf("read target state failed: %v", err)
		return
	}

	action, err := s.cfg.Strategy.Decide(ctx, source, target)
	if err != nil {
		s.logger.Printf("strategy decide failed: %v", err)
		return
	}
	if action.Kind == Idle {
		return
	}

	s.logger.Printf("submitting: %s", action.Description)
	hash, err := s.cfg.Submit(ctx, action)
	if err != nil {
		s.logger.Printf("submission failed: %v", err)
		return
	}

	result := s.cfg.Tracker.Track(ctx, hash)
	switch result.Status {
	case chain.TxFinalized:
		s.logger.Printf("tx %s finalized: %s", hash, action.Description)
	case chain.TxStalled:
		s.logger.Printf("tx %s stalled, slot freed: %s", hash, action.Description)
	case chain.TxInvalidated:
		s.logger.Printf("tx %s invalidated (reorg or rejection), re-read on next tick: %s", hash, action.Description)
	}
}
