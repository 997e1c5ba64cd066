package finality

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/guard"
	"github.com/paritytech/parity-bridges-common/pkg/logging"
	"github.com/paritytech/parity-bridges-common/pkg/race"
	"github.com/paritytech/parity-bridges-common/pkg/retry"
	"github.com/paritytech/parity-bridges-common/pkg/txtracker"
)

// Loop wires the Finality Loop's subscription, strategy, guard, and tracker
// around the shared race.Scheduler skeleton.
type Loop struct {
	Source chain.ChainWithFinality
	Target chain.ChainWithFinality
	Watch  txtracker.WatchFunc // target's WatchTransaction, passed in since it lives on ChainWithSigning

	Strategy  *Strategy
	Guard     *guard.Guard // may be nil to skip the runtime-version check
	Mortality time.Duration
	Backoff   retry.Backoff

	logger *log.Logger

	mu      sync.Mutex
	pending []chain.FinalityProof
	notify  chan struct{}

	sched *race.Scheduler
}

// NewLoop builds a Loop ready to Run. If mortality is zero it defaults to
// 2 minutes; if backoff is the zero value it defaults to retry.Default().
func NewLoop(name string, source, target chain.ChainWithFinality, watch txtracker.WatchFunc, strategy *Strategy, g *guard.Guard, mortality time.Duration, backoff retry.Backoff, tickInterval time.Duration) *Loop {
	if mortality <= 0 {
		mortality = 2 * time.Minute
	}
	if backoff == (retry.Backoff{}) {
		backoff = retry.Default()
	}
	l := &Loop{
		Source:    source,
		Target:    target,
		Watch:     watch,
		Strategy:  strategy,
		Guard:     g,
		Mortality: mortality,
		Backoff:   backoff,
		logger:    logging.New("Finality:"+name, nil),
		notify:    make(chan struct{}, 1),
	}
	tracker := txtracker.New(watch, mortality)
	l.sched = race.New(race.Config{
		Name:       "finality:" + name,
		ReadSource: l.readSource,
		ReadTarget: l.readTarget,
		Strategy:   l.Strategy,
		Submit:     l.submit,
		Tracker:         tracker,
		Notify:          l.notify,
		MinTickInterval: tickInterval,
	})
	return l
}

// Run starts the subscription-collection goroutine and the scheduler, and
// blocks until ctx is cancelled. If a Guard is set, Run registers a callback
// that cancels the loop when the Guard reports Incompatible (spec.md §4.1);
// the loop does not run the Guard's checks itself, so the abort happens only
// if some caller runs Guard.Check or Guard.Run. Run returns nil either way.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if l.Guard != nil {
		l.Guard.OnIncompatible(func(guard.Compatibility, chain.RuntimeVersion) {
			cancel()
		})
	}

	go l.collect(ctx)

	l.sched.Start(ctx)
	<-ctx.Done()
	l.sched.Stop()
	return nil
}

// collect subscribes to the source's finality proof stream and buffers
// candidates for the scheduler to read. A subscription that errors out is
// re-established with capped exponential backoff, retried forever: spec.md
// §4.2 treats "mandatory proof unavailable because the source subscription
// is down" as fatal-for-progress but not fatal-for-the-loop.
func (l *Loop) collect(ctx context.Context) {
	stop := ctx.Done()
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		proofs, errc, err := l.Source.SubscribeFinality(ctx)
		if err != nil {
			l.logger.Printf("subscribe to finality proofs failed: %v, retrying", err)
			select {
			case <-stop:
				return
			case <-time.After(l.Backoff.Delay(attempt)):
			}
			attempt++
			continue
		}
		attempt = 0

		if !l.drain(ctx, proofs, errc) {
			return
		}
		l.logger.Printf("finality proof subscription closed, re-subscribing")
	}
}

// drain reads from an established subscription until it ends or ctx is
// cancelled. It returns false when the loop should stop entirely.
func (l *Loop) drain(ctx context.Context, proofs <-chan chain.FinalityProof, errc <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errc:
			if !ok {
				return true
			}
			l.logger.Printf("finality proof subscription error: %v", err)
			return true
		case p, ok := <-proofs:
			if !ok {
				return true
			}
			l.mu.Lock()
			l.pending = append(l.pending, p)
			l.mu.Unlock()
			select {
			case l.notify <- struct{}{}:
			default:
			}
		}
	}
}

func (l *Loop) readSource(ctx context.Context) (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := make([]chain.FinalityProof, len(l.pending))
	copy(snapshot, l.pending)
	return SourceState{Candidates: snapshot}, nil
}

func (l *Loop) readTarget(ctx context.Context) (interface{}, error) {
	best, err := l.Target.BestFinalizedAtTarget(ctx)
	if err != nil {
		return nil, err
	}
	return TargetState{BestAtTarget: best}, nil
}

func (l *Loop) submit(ctx context.Context, action race.Action) (chain.Hash, error) {
	l.mu.Lock()
	var proof chain.FinalityProof
	found := false
	for _, c := range l.pending {
		if string(c.Payload) == string(action.Encoded) {
			proof = c
			found = true
			break
		}
	}
	l.mu.Unlock()
	if !found {
		return chain.Hash{}, errProofNotFound{}
	}

	hash, err := l.Target.SubmitFinalityProof(ctx, proof)
	if err != nil {
		return chain.Hash{}, err
	}

	// Prune every candidate the just-submitted proof already supersedes:
	// once 103 lands, 101 and 102 (if still pending) are moot too.
	l.mu.Lock()
	kept := l.pending[:0]
	for _, c := range l.pending {
		if c.TargetNumber > proof.TargetNumber {
			kept = append(kept, c)
		}
	}
	l.pending = kept
	l.mu.Unlock()

	return hash, nil
}

type errProofNotFound struct{}

func (errProofNotFound) Error() string { return "finality: decided proof vanished from pending set before submit" }
