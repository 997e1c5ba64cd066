package messages

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

// Loop wires the delivery and confirmation sub-races for one lane, one
// direction, around two independent race.Scheduler instances (spec.md
// §4.4: "two intertwined sub-races running concurrently per lane").
type Loop struct {
	Lane      chain.LaneID
	RelayerID string
	Caps      Caps

	Source chain.ChainWithMessages
	Target chain.ChainWithMessages

	WatchTarget txtracker.WatchFunc // tracks delivery submissions, landed on Target
	WatchSource txtracker.WatchFunc // tracks confirmation submissions, landed on Source

	Ledger *RewardLedger

	// GuardTarget/GuardSource are optional. Run registers a callback on each
	// that cancels only its own sub-race (delivery for GuardTarget,
	// confirmation for GuardSource) when it reports Incompatible, matching
	// scenario 4 ("other directional loop, if unaffected, keeps running").
	// The loop does not run the guards' checks itself, so the cancel happens
	// only if some caller runs Guard.Check or Guard.Run.
	GuardTarget *guard.Guard
	GuardSource *guard.Guard

	Mortality    time.Duration
	TickInterval time.Duration

	logger *log.Logger

	delivery  *DeliveryStrategy
	confirm   *ConfirmationStrategy
	deliverySched *race.Scheduler
	confirmSched  *race.Scheduler
}

// NewLoop builds a Loop ready to Run.
func NewLoop(name string, lane chain.LaneID, relayerID string, caps Caps, source, target chain.ChainWithMessages,
	watchTarget, watchSource txtracker.WatchFunc, ledger *RewardLedger, mortality, tickInterval time.Duration) *Loop {
	if mortality <= 0 {
		mortality = 2 * time.Minute
	}
	if ledger == nil {
		ledger = NewRewardLedger()
	}

	l := &Loop{
		Lane:         lane,
		RelayerID:    relayerID,
		Caps:         caps,
		Source:       source,
		Target:       target,
		WatchTarget:  watchTarget,
		WatchSource:  watchSource,
		Ledger:       ledger,
		Mortality:    mortality,
		TickInterval: tickInterval,
		logger:       logging.New("Messages:"+name+":"+lane.String(), nil),
		delivery:     &DeliveryStrategy{RelayerID: relayerID},
		confirm:      &ConfirmationStrategy{},
	}

	l.deliverySched = race.New(race.Config{
		Name:            "messages:delivery:" + name + ":" + lane.String(),
		ReadSource:      l.readDeliverySource,
		ReadTarget:      l.readDeliveryTarget,
		Strategy:        l.delivery,
		Submit:          l.submitDelivery,
		Tracker:         txtracker.New(watchTarget, mortality),
		MinTickInterval: tickInterval,
	})
	l.confirmSched = race.New(race.Config{
		Name:            "messages:confirm:" + name + ":" + lane.String(),
		ReadSource:      l.readConfirmSource,
		ReadTarget:      l.readConfirmTarget,
		Strategy:        l.confirm,
		Submit:          l.submitConfirmation,
		Tracker:         txtracker.New(watchSource, mortality),
		MinTickInterval: tickInterval,
	})
	return l
}

// Run starts both sub-race schedulers and blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deliveryCtx, cancelDelivery := context.WithCancel(ctx)
	confirmCtx, cancelConfirm := context.WithCancel(ctx)
	defer cancelDelivery()
	defer cancelConfirm()

	if l.GuardTarget != nil {
		l.GuardTarget.OnIncompatible(func(guard.Compatibility, chain.RuntimeVersion) { cancelDelivery() })
	}
	if l.GuardSource != nil {
		l.GuardSource.OnIncompatible(func(guard.Compatibility, chain.RuntimeVersion) { cancelConfirm() })
	}

	l.deliverySched.Start(deliveryCtx)
	l.confirmSched.Start(confirmCtx)
	<-ctx.Done()
	l.deliverySched.Stop()
	l.confirmSched.Stop()
	return nil
}

func (l *Loop) readDeliverySource(ctx context.Context) (interface{}, error) {
	targetLane, err := l.Target.LaneState(ctx, l.Lane)
	if err != nil {
		return nil, err
	}
	sourceLane, err := l.Source.LaneState(ctx, l.Lane)
	if err != nil {
		return nil, err
	}

	// The reward ledger is pruned here, at the top of every delivery-race
	// read, so a relayer's bookkeeping clears on the delivery following a
	// confirmation landing (spec.md §8 scenario 6: "pruned on the
	// subsequent delivery").
	if pruned := l.Ledger.PruneConfirmed(sourceLane.LatestConfirmedSrc); len(pruned) > 0 {
		l.logger.Printf("pruned reward bookkeeping for relayers %v up to confirmed nonce %d", pruned, sourceLane.LatestConfirmedSrc)
	}

	from := targetLane.LatestReceived
	to := sourceLane.LatestGenerated
	if l.Caps.MaxUnconfirmed > 0 {
		if cap := targetLane.LatestConfirmedTgt + chain.Nonce(l.Caps.MaxUnconfirmed); to > cap {
			to = cap
		}
	}
	if to <= from {
		return DeliverySourceState{ReceivedAtRead: from}, nil
	}

	envelopes, proof, err := l.Source.OutboundMessages(ctx, l.Lane, from, to)
	if err != nil {
		return nil, err
	}
	rng, ok := BuildDeliveryBatch(envelopes, l.Caps)
	if !ok {
		return DeliverySourceState{ReceivedAtRead: from}, nil
	}

	var weight uint64
	for _, e := range envelopes {
		if e.Nonce >= rng.From && e.Nonce <= rng.To {
			weight += e.Weight
		}
	}

	return DeliverySourceState{Range: rng, Proof: proof, DispatchWeight: weight, ReceivedAtRead: from}, nil
}

func (l *Loop) readDeliveryTarget(ctx context.Context) (interface{}, error) {
	st, err := l.Target.LaneState(ctx, l.Lane)
	if err != nil {
		return nil, err
	}
	return DeliveryTargetState{Received: st.LatestReceived}, nil
}

func (l *Loop) submitDelivery(ctx context.Context, action race.Action) (chain.Hash, error) {
	rng, ok := decodeRange(action.Encoded)
	if !ok {
		return chain.Hash{}, errors.New("messages: malformed delivery action")
	}
	proof, weight, ok := l.delivery.TakeBatch(rng)
	if !ok {
		return chain.Hash{}, errors.New("messages: decided delivery batch vanished before submit")
	}

	hash, err := l.Target.SubmitMessagesProof(ctx, l.RelayerID, l.Lane, rng, proof, weight)
	if err != nil {
		return chain.Hash{}, err
	}
	for n := rng.From; n <= rng.To; n++ {
		l.Ledger.CreditDelivery(l.RelayerID, n, 1)
	}
	return hash, nil
}

func (l *Loop) readConfirmSource(ctx context.Context) (interface{}, error) {
	st, err := l.Source.LaneState(ctx, l.Lane)
	if err != nil {
		return nil, err
	}
	return ConfirmationSourceState{ConfirmedSrc: st.LatestConfirmedSrc}, nil
}

func (l *Loop) readConfirmTarget(ctx context.Context) (interface{}, error) {
	st, err := l.Target.LaneState(ctx, l.Lane)
	if err != nil {
		return nil, err
	}
	proof, err := l.Target.InboundLaneProof(ctx, l.Lane)
	if err != nil {
		return nil, err
	}
	return ConfirmationTargetState{Received: st.LatestReceived, Proof: proof}, nil
}

func (l *Loop) submitConfirmation(ctx context.Context, action race.Action) (chain.Hash, error) {
	received, ok := decodeNonce(action.Encoded)
	if !ok {
		return chain.Hash{}, errors.New("messages: malformed confirmation action")
	}
	proof, ok := l.confirm.TakeProof(received)
	if !ok {
		return chain.Hash{}, errors.New("messages: decided confirmation proof vanished before submit")
	}
	return l.Source.SubmitMessagesDeliveryProof(ctx, l.Lane, proof)
}
