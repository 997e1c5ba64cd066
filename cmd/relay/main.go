// Command relay is the bridge relay's CLI surface (spec.md §6): one
// subcommand per loop the process can run, each taking its own flag set.
// Modeled on the teacher's flag.Parse + signal.Notify + graceful-shutdown
// shape in its own main.go, generalized from one monolithic process into
// one subcommand per loop kind.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/bootstrap"
	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/client"
	"github.com/paritytech/parity-bridges-common/pkg/config"
	"github.com/paritytech/parity-bridges-common/pkg/equivocation"
	"github.com/paritytech/parity-bridges-common/pkg/finality"
	"github.com/paritytech/parity-bridges-common/pkg/guard"
	"github.com/paritytech/parity-bridges-common/pkg/messages"
	"github.com/paritytech/parity-bridges-common/pkg/parachain"
	"github.com/paritytech/parity-bridges-common/pkg/relayerr"
	"github.com/paritytech/parity-bridges-common/pkg/retry"
	"github.com/paritytech/parity-bridges-common/pkg/signer"
)

// Exit codes (spec.md §6): 0 clean drain, 1 config error, 2 runtime-version
// incompatibility, 3 fatal protocol error.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitIncompatible  = 2
	exitFatalProtocol = 3
)

// drainTimeout is the drain bound named in the shutdown log line. The
// SIGINT/SIGTERM handler does not wait on it: in-flight trackers are
// abandoned as soon as the running context is cancelled. Every on-chain call
// this relay makes is idempotent, so an abandoned tracker costs nothing but
// a log line.
const drainTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitConfigError)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "init-bridge":
		err = runInitBridge(args)
	case "relay-headers":
		err = runRelayHeaders(args)
	case "relay-parachains":
		err = runRelayParachains(args)
	case "relay-messages":
		err = runRelayMessages(args)
	case "relay-headers-and-messages":
		err = runRelayHeadersAndMessages(args)
	case "detect-equivocations":
		err = runDetectEquivocations(args)
	default:
		usage()
		os.Exit(exitConfigError)
	}

	if err == nil {
		os.Exit(exitOK)
	}
	log.Printf("relay: %v", err)
	switch {
	case relayerr.Is(err, relayerr.Incompatible):
		os.Exit(exitIncompatible)
	case relayerr.Is(err, relayerr.Fatal):
		os.Exit(exitConfigError)
	default:
		os.Exit(exitFatalProtocol)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: relay <subcommand> [flags]

subcommands:
  init-bridge                 submit the source's current finalized header to target
  relay-headers                relay finality proofs from source to target
  relay-parachains              relay parachain head proofs from source to target
  relay-messages                relay message deliveries and confirmations for one lane
  relay-headers-and-messages    run both the headers and messages loops together
  detect-equivocations           watch source for double-voting and report it to source`)
}

// newFlagSet builds a subcommand's flag set. A -config file, if given
// anywhere in args, is loaded first so its values become each flag's
// default; flags passed after it on the command line still win.
func newFlagSet(name string, args []string) (*flag.FlagSet, *config.Config) {
	cfg := config.Default()
	if path := scanConfigFlag(args); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			log.Fatalf("relay: %v", err)
		}
		cfg = loaded
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfg.BindFlags(fs)
	fs.String("config", "", "YAML config file to load defaults from")
	return fs, &cfg
}

func scanConfigFlag(args []string) string {
	for i, a := range args {
		if a == "-config" || a == "--config" {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		if strings.HasPrefix(a, "-config=") {
			return strings.TrimPrefix(a, "-config=")
		}
		if strings.HasPrefix(a, "--config=") {
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

// runningContext wires SIGINT/SIGTERM into a context that is cancelled as
// soon as a signal arrives. There is no second drain context: in-flight
// trackers stop with this context rather than running on for drainTimeout.
// The returned func stops signal delivery.
func runningContext() (ctx context.Context, drain func()) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Printf("relay: shutdown signal received, draining in-flight submissions (up to %s)", drainTimeout)
		cancel()
	}()
	return ctx, func() { signal.Stop(quit) }
}

func buildSigner(dev bool, e config.Endpoint) (signer.Signer, error) {
	if e.Signer == "" {
		return nil, nil
	}
	if len(e.Signer) >= 2 && e.Signer[:2] == "//" {
		if !dev {
			return nil, relayerr.New(relayerr.Fatal, fmt.Errorf("//DevSeed signers require -dev"))
		}
		return signer.FromDevSeed(e.Signer)
	}
	return signer.FromHexKey(e.Signer)
}

func dialChain(ctx context.Context, id chain.ID, dev bool, e config.Endpoint) (*client.SubstrateChain, error) {
	rpc, err := client.Dial(ctx, e.URL())
	if err != nil {
		return nil, relayerr.New(relayerr.Transient, err)
	}
	s, err := buildSigner(dev, e)
	if err != nil {
		return nil, err
	}
	c := client.NewSubstrateChain(client.SubstrateChainConfig{
		ID:     id,
		RPC:    rpc,
		Pallet: client.NewRPCPalletClient(rpc),
		Signer: s,
	})
	if s != nil {
		if err := c.SeedNonce(ctx); err != nil {
			return nil, relayerr.New(relayerr.Transient, err)
		}
	}
	return c, nil
}

func buildGuard(ctx context.Context, loopName string, target *client.SubstrateChain) (*guard.Guard, error) {
	bundled, err := target.RuntimeVersion(ctx)
	if err != nil {
		return nil, relayerr.New(relayerr.Transient, err)
	}
	return guard.New(loopName, bundled, target, guard.Policy{}), nil
}

func runInitBridge(args []string) error {
	fs, cfg := newFlagSet("init-bridge", args)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := runningContext()
	defer stop()

	source, err := dialChain(ctx, "source", cfg.Dev, cfg.Source)
	if err != nil {
		return err
	}
	target, err := dialChain(ctx, "target", cfg.Dev, cfg.Target)
	if err != nil {
		return err
	}
	g, err := buildGuard(ctx, "init-bridge", target)
	if err != nil {
		return err
	}

	tx, err := bootstrap.InitBridge(ctx, source, target, g)
	if err != nil {
		return err
	}
	log.Printf("relay: init-bridge submitted tx %s", tx)
	return nil
}

func runRelayHeaders(args []string) error {
	fs, cfg := newFlagSet("relay-headers", args)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireSigners(&cfg.Target); err != nil {
		return err
	}

	ctx, stop := runningContext()
	defer stop()

	source, err := dialChain(ctx, "source", cfg.Dev, cfg.Source)
	if err != nil {
		return err
	}
	target, err := dialChain(ctx, "target", cfg.Dev, cfg.Target)
	if err != nil {
		return err
	}
	g, err := buildGuard(ctx, "relay-headers", target)
	if err != nil {
		return err
	}

	strategy := &finality.Strategy{OnlyMandatory: cfg.OnlyMandatoryHeaders}
	loop := finality.NewLoop("source-to-target", source, target, target.WatchTransaction, strategy, g,
		cfg.Mortality, retry.Default(), 500*time.Millisecond)
	return loop.Run(ctx)
}

func runRelayParachains(args []string) error {
	fs, cfg := newFlagSet("relay-parachains", args)
	parachainsFlag := fs.String("parachains", "2000", "comma-separated list of parachain ids to relay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireSigners(&cfg.Target); err != nil {
		return err
	}
	parachains, err := parseParachainIDs(*parachainsFlag)
	if err != nil {
		return relayerr.New(relayerr.Fatal, err)
	}

	ctx, stop := runningContext()
	defer stop()

	relay, err := dialChain(ctx, "relay", cfg.Dev, cfg.Source)
	if err != nil {
		return err
	}
	target, err := dialChain(ctx, "target", cfg.Dev, cfg.Target)
	if err != nil {
		return err
	}
	g, err := buildGuard(ctx, "relay-parachains", target)
	if err != nil {
		return err
	}

	strategy := &parachain.Strategy{}
	loop := parachain.NewLoop("relay-to-target", relay, target, relay, parachains,
		target.WatchTransaction, strategy, g, cfg.Mortality, 500*time.Millisecond)
	return loop.Run(ctx)
}

func parseParachainIDs(csv string) ([]chain.ParachainID, error) {
	var ids []chain.ParachainID
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid parachain id %q: %w", part, err)
		}
		ids = append(ids, chain.ParachainID(n))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no parachain ids given")
	}
	return ids, nil
}

func runRelayMessages(args []string) error {
	fs, cfg := newFlagSet("relay-messages", args)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireSigners(&cfg.Source, &cfg.Target); err != nil {
		return err
	}
	lane, err := cfg.ParseLaneID()
	if err != nil {
		return err
	}

	ctx, stop := runningContext()
	defer stop()

	source, err := dialChain(ctx, "source", cfg.Dev, cfg.Source)
	if err != nil {
		return err
	}
	target, err := dialChain(ctx, "target", cfg.Dev, cfg.Target)
	if err != nil {
		return err
	}

	caps := messages.Caps{
		MaxExtrinsicSize: 4 * 1024 * 1024,
		MaxWeight:        500_000_000_000,
		MaxUnconfirmed:   8192,
		MaxMessagesPerTx: 128,
	}
	loop := messages.NewLoop("source-to-target", lane, target.Address(), caps, source, target,
		target.WatchTransaction, source.WatchTransaction, nil, cfg.Mortality, 500*time.Millisecond)
	return loop.Run(ctx)
}

func runRelayHeadersAndMessages(args []string) error {
	fs, cfg := newFlagSet("relay-headers-and-messages", args)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireSigners(&cfg.Source, &cfg.Target); err != nil {
		return err
	}
	lane, err := cfg.ParseLaneID()
	if err != nil {
		return err
	}

	ctx, stop := runningContext()
	defer stop()

	source, err := dialChain(ctx, "source", cfg.Dev, cfg.Source)
	if err != nil {
		return err
	}
	target, err := dialChain(ctx, "target", cfg.Dev, cfg.Target)
	if err != nil {
		return err
	}
	g, err := buildGuard(ctx, "relay-headers-and-messages", target)
	if err != nil {
		return err
	}

	headers := finality.NewLoop("source-to-target", source, target, target.WatchTransaction,
		&finality.Strategy{OnlyMandatory: cfg.OnlyMandatoryHeaders}, g, cfg.Mortality, retry.Default(), 500*time.Millisecond)

	caps := messages.Caps{MaxExtrinsicSize: 4 * 1024 * 1024, MaxWeight: 500_000_000_000, MaxUnconfirmed: 8192, MaxMessagesPerTx: 128}
	msgs := messages.NewLoop("source-to-target", lane, target.Address(), caps, source, target,
		target.WatchTransaction, source.WatchTransaction, nil, cfg.Mortality, 500*time.Millisecond)

	errc := make(chan error, 2)
	go func() { errc <- headers.Run(ctx) }()
	go func() { errc <- msgs.Run(ctx) }()

	<-ctx.Done()
	<-errc
	<-errc
	return nil
}

func runDetectEquivocations(args []string) error {
	fs, cfg := newFlagSet("detect-equivocations", args)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := runningContext()
	defer stop()

	source, err := dialChain(ctx, "source", cfg.Dev, cfg.Source)
	if err != nil {
		return err
	}

	detector := equivocation.New("source", noVoteSource{}, client.NewRPCPalletClient(source.RPC()))
	return detector.Run(ctx)
}

// noVoteSource is a placeholder VoteSource until a node exposes a concrete
// vote-gossip subscription; detect-equivocations otherwise has nothing to
// subscribe to.
type noVoteSource struct{}

func (noVoteSource) SubscribeVotes(ctx context.Context) (<-chan equivocation.Vote, <-chan error, error) {
	votes := make(chan equivocation.Vote)
	go func() {
		<-ctx.Done()
		close(votes)
	}()
	return votes, make(chan error), nil
}
