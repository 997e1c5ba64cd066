// Package guard implements the Runtime-Version Guard (spec.md §4.1): an
// abort-safety check comparing the bundled (spec_version, transaction_version)
// against what the target node reports, on startup and periodically during
// operation.
package guard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/logging"
)

// Compatibility is the guard's verdict.
type Compatibility string

const (
	Compatible   Compatibility = "Compatible"
	SpecOnly     Compatibility = "SpecOnly"
	Incompatible Compatibility = "Incompatible"
)

// RuntimeVersionReader is the minimal capability the guard needs: reading
// the target's current runtime version. chain.Chain satisfies this.
type RuntimeVersionReader interface {
	RuntimeVersion(ctx context.Context) (chain.RuntimeVersion, error)
}

// Policy controls how a SpecOnly bump is treated: permissive (logged but
// allowed, the spec.md default) or restrictive (treated as Incompatible).
// spec.md §9 Open Question (b) leaves this a deployment flag.
type Policy struct {
	SpecOnlyRestrictive bool
}

// Guard periodically compares a bundled RuntimeVersion against what the
// target reports.
type Guard struct {
	mu       sync.Mutex
	bundled  chain.RuntimeVersion
	reader   RuntimeVersionReader
	policy   Policy
	loopName string
	logger   *log.Logger

	onIncompatible func(Compatibility, chain.RuntimeVersion)
}

// New constructs a Guard for loopName, bundled against the given expected
// RuntimeVersion.
func New(loopName string, bundled chain.RuntimeVersion, reader RuntimeVersionReader, policy Policy) *Guard {
	return &Guard{
		bundled:  bundled,
		reader:   reader,
		policy:   policy,
		loopName: loopName,
		logger:   logging.New("RuntimeGuard:"+loopName, nil),
	}
}

// OnIncompatible registers a callback invoked exactly once when Check first
// observes Incompatible; loops use this to trigger their abort path.
func (g *Guard) OnIncompatible(fn func(Compatibility, chain.RuntimeVersion)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onIncompatible = fn
}

// Check reads the target's current runtime version and classifies it.
func (g *Guard) Check(ctx context.Context) (Compatibility, error) {
	current, err := g.reader.RuntimeVersion(ctx)
	if err != nil {
		return "", err
	}

	verdict := g.classify(current)

	switch verdict {
	case Incompatible:
		logging.Aborting(g.logger, g.loopName, incompatibleError{bundled: g.bundled, observed: current})
		g.mu.Lock()
		cb := g.onIncompatible
		g.onIncompatible = nil
		g.mu.Unlock()
		if cb != nil {
			cb(verdict, current)
		}
	case SpecOnly:
		g.logger.Printf("target spec_version bumped %d -> %d (transaction_version unchanged at %d)",
			g.bundled.SpecVersion, current.SpecVersion, current.TransactionVersion)
	}

	return verdict, nil
}

func (g *Guard) classify(observed chain.RuntimeVersion) Compatibility {
	if observed.TransactionVersion != g.bundled.TransactionVersion {
		return Incompatible
	}
	if observed.SpecVersion != g.bundled.SpecVersion {
		if g.policy.SpecOnlyRestrictive {
			return Incompatible
		}
		return SpecOnly
	}
	return Compatible
}

// Run polls Check every interval until ctx is cancelled or an Incompatible
// verdict is observed, at which point it returns immediately so the caller
// can exit the loop.
func (g *Guard) Run(ctx context.Context, interval time.Duration) error {
	if v, err := g.Check(ctx); err != nil {
		return err
	} else if v == Incompatible {
		return incompatibleError{bundled: g.bundled}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v, err := g.Check(ctx)
			if err != nil {
				g.logger.Printf("runtime version check failed: %v", err)
				continue
			}
			if v == Incompatible {
				return incompatibleError{bundled: g.bundled}
			}
		}
	}
}

type incompatibleError struct {
	bundled, observed chain.RuntimeVersion
}

func (e incompatibleError) Error() string {
	return "guard: target runtime incompatible: bundled transaction_version does not match target"
}
