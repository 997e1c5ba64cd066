package parachain

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/guard"
	"github.com/paritytech/parity-bridges-common/pkg/logging"
	"github.com/paritytech/parity-bridges-common/pkg/race"
	"github.com/paritytech/parity-bridges-common/pkg/txtracker"
)

// RelayAnchorReader reads the relay-chain header the target already
// considers finalized; every parachain head proof this tick reads must be
// anchored at this same header so the target's storage-proof verification
// has a finalized root to check against.
type RelayAnchorReader interface {
	BestFinalizedRelayHeader(ctx context.Context) (chain.Hash, chain.BlockNumber, error)
}

// Loop wires the Parachain Loop's anchor read, per-parachain head reads,
// strategy, and tracker around the shared race.Scheduler skeleton.
type Loop struct {
	Source     chain.ChainWithParachains
	Target     chain.ChainWithParachains
	Anchor     RelayAnchorReader
	Parachains []chain.ParachainID
	Watch      txtracker.WatchFunc

	Strategy  *Strategy
	Guard     *guard.Guard
	Mortality time.Duration

	logger *log.Logger
	sched  *race.Scheduler
}

// NewLoop builds a Loop ready to Run.
func NewLoop(name string, source, target chain.ChainWithParachains, anchor RelayAnchorReader, parachains []chain.ParachainID, watch txtracker.WatchFunc, strategy *Strategy, g *guard.Guard, mortality time.Duration, tickInterval time.Duration) *Loop {
	if mortality <= 0 {
		mortality = 2 * time.Minute
	}
	l := &Loop{
		Source:     source,
		Target:     target,
		Anchor:     anchor,
		Parachains: parachains,
		Watch:      watch,
		Strategy:   strategy,
		Guard:      g,
		Mortality:  mortality,
		logger:     logging.New("Parachain:"+name, nil),
	}
	tracker := txtracker.New(watch, mortality)
	l.sched = race.New(race.Config{
		Name:            "parachain:" + name,
		ReadSource:      l.readSource,
		ReadTarget:      l.readTarget,
		Strategy:        l.Strategy,
		Submit:          l.submit,
		Tracker:         tracker,
		MinTickInterval: tickInterval,
	})
	return l
}

// Run starts the scheduler and blocks until ctx is cancelled. If a Guard is
// set, Run registers a callback that cancels the loop when the Guard reports
// Incompatible; the loop does not run the Guard's checks itself, so the
// abort happens only if some caller runs Guard.Check or Guard.Run. Run
// returns nil either way.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if l.Guard != nil {
		l.Guard.OnIncompatible(func(guard.Compatibility, chain.RuntimeVersion) {
			cancel()
		})
	}

	l.sched.Start(ctx)
	<-ctx.Done()
	l.sched.Stop()
	return nil
}

func (l *Loop) readSource(ctx context.Context) (interface{}, error) {
	anchorHash, anchorNumber, err := l.Anchor.BestFinalizedRelayHeader(ctx)
	if err != nil {
		return nil, err
	}

	heads := make([]chain.ParachainHeadProof, 0, len(l.Parachains))
	for _, p := range l.Parachains {
		proof, err := l.Source.ParachainHead(ctx, p, anchorHash, anchorNumber)
		if err != nil {
			return nil, err
		}
		heads = append(heads, proof)
	}
	return SourceState{Anchor: anchorHash, AnchorNumber: anchorNumber, Heads: heads}, nil
}

func (l *Loop) readTarget(ctx context.Context) (interface{}, error) {
	atTarget := make(map[chain.ParachainID]chain.Hash, len(l.Parachains))
	for _, p := range l.Parachains {
		h, err := l.Target.HeadAtTarget(ctx, p)
		if err != nil {
			return nil, err
		}
		atTarget[p] = h
	}
	return TargetState{HeadsAtTarget: atTarget}, nil
}

func (l *Loop) submit(ctx context.Context, action race.Action) (chain.Hash, error) {
	var anchor chain.Hash
	if len(action.Encoded) != len(anchor) {
		return chain.Hash{}, errors.New("parachain: decided action's anchor has the wrong length")
	}
	copy(anchor[:], action.Encoded)

	batch, ok := l.Strategy.TakeBatch(anchor)
	if !ok {
		return chain.Hash{}, errors.New("parachain: decided batch vanished before submit")
	}
	return l.Target.SubmitParachainHeads(ctx, batch)
}
