// Package config loads the flags a relay subcommand needs (spec.md §6): one
// endpoint description per side, the signer each side submits with, and the
// per-lane/loop tuning knobs. Modeled on the teacher's pkg/config/config.go
// Load/Validate split — a flat struct populated from flag.FlagSet, then
// validated separately from parsing so a caller can load once and validate
// against whichever subcommand's requirements apply.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
	"github.com/paritytech/parity-bridges-common/pkg/relayerr"
)

// Endpoint describes one side of a bridge: where to dial, and which signer
// (if any) submits transactions on it.
type Endpoint struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Secure bool   `yaml:"secure"`
	Signer string `yaml:"signer"` // "" (no submissions from this side), "//DevSeed", or a hex private key
}

// URL builds the ws(s):// endpoint URL this Endpoint dials.
func (e Endpoint) URL() string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
}

// Config is the full set of flags a relay subcommand accepts. Not every
// subcommand uses every field: relay-headers leaves Lane unused,
// relay-messages leaves OnlyMandatoryHeaders unused, and so on — Validate
// checks only the fields every subcommand shares, and subcommands that
// submit call RequireSigners for the sides they submit on.
type Config struct {
	Source Endpoint `yaml:"source"`
	Target Endpoint `yaml:"target"`

	Lane string `yaml:"lane"` // hex-encoded 4-byte lane id, e.g. "00000000"

	PrometheusHost string `yaml:"prometheus_host"`
	PrometheusPort int    `yaml:"prometheus_port"`

	Mortality            time.Duration `yaml:"-"`
	OnlyMandatoryHeaders bool          `yaml:"only_mandatory_headers"`

	// RelayerMode names the relayer's reward stance, "rational" or
	// "altruistic" (spec.md §9 Open Question (c)). Validate rejects any
	// other value; no relay loop reads the field, so both values submit
	// the same batches.
	RelayerMode string `yaml:"relayer_mode"`

	Dev bool `yaml:"dev"` // allow //DevSeed signers; refuse them otherwise
}

// LoadFile reads a YAML config file and overlays it onto Default(), matching
// the teacher's pkg/config/anchor_config.go YAML-file loading convention.
// Command-line flags bound afterwards with BindFlags take precedence over
// whatever this sets, since BindFlags wires each flag's default to the
// struct field's current value at bind time.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	// time.Duration has no YAML literal convention, so the mortality knob is
	// expressed in the file as a duration string and unmarshalled
	// separately from the rest of the (directly yaml-tagged) struct.
	var withDuration struct {
		Config             `yaml:",inline"`
		MortalitySpec string `yaml:"transaction_mortality"`
	}
	withDuration.Config = cfg
	withDuration.MortalitySpec = cfg.Mortality.String()
	if err := yaml.Unmarshal(data, &withDuration); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg = withDuration.Config
	if withDuration.MortalitySpec != "" {
		d, err := time.ParseDuration(withDuration.MortalitySpec)
		if err != nil {
			return cfg, fmt.Errorf("config: transaction_mortality %q: %w", withDuration.MortalitySpec, err)
		}
		cfg.Mortality = d
	}
	return cfg, nil
}

// Default returns a Config populated with the relay's baseline flag
// defaults, ready to have BindFlags layered over a flag.FlagSet.
func Default() Config {
	return Config{
		Source:         Endpoint{Host: "127.0.0.1", Port: 9944},
		Target:         Endpoint{Host: "127.0.0.1", Port: 9945},
		Lane:           "00000000",
		PrometheusHost: "127.0.0.1",
		PrometheusPort: 9616,
		Mortality:      2 * time.Minute,
		RelayerMode:    "rational",
	}
}

// BindFlags registers c's fields on fs. Call fs.Parse after this, then
// Validate.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Source.Host, "source-host", c.Source.Host, "source chain RPC host")
	fs.IntVar(&c.Source.Port, "source-port", c.Source.Port, "source chain RPC port")
	fs.BoolVar(&c.Source.Secure, "source-secure", c.Source.Secure, "dial the source endpoint over wss")
	fs.StringVar(&c.Source.Signer, "source-signer", c.Source.Signer, "source-side signer: hex private key or //DevSeed")

	fs.StringVar(&c.Target.Host, "target-host", c.Target.Host, "target chain RPC host")
	fs.IntVar(&c.Target.Port, "target-port", c.Target.Port, "target chain RPC port")
	fs.BoolVar(&c.Target.Secure, "target-secure", c.Target.Secure, "dial the target endpoint over wss")
	fs.StringVar(&c.Target.Signer, "target-signer", c.Target.Signer, "target-side signer: hex private key or //DevSeed")

	fs.StringVar(&c.Lane, "lane", c.Lane, "hex-encoded 4-byte lane id")

	fs.StringVar(&c.PrometheusHost, "prometheus-host", c.PrometheusHost, "bind host for the internal metrics registry")
	fs.IntVar(&c.PrometheusPort, "prometheus-port", c.PrometheusPort, "bind port for the internal metrics registry")

	fs.DurationVar(&c.Mortality, "transaction-mortality", c.Mortality, "how long a submitted extrinsic remains valid before it is considered stalled")
	fs.BoolVar(&c.OnlyMandatoryHeaders, "only-mandatory-headers", c.OnlyMandatoryHeaders, "relay only mandatory (voter-set-change) finality proofs")
	fs.StringVar(&c.RelayerMode, "relayer-mode", c.RelayerMode, "rational or altruistic (validated; no relay loop reads it)")

	fs.BoolVar(&c.Dev, "dev", c.Dev, "allow //DevSeed development signers")
}

// ParseLaneID decodes the configured Lane hex string.
func (c Config) ParseLaneID() (chain.LaneID, error) {
	var id chain.LaneID
	s := strings.TrimPrefix(c.Lane, "0x")
	if len(s) != 8 {
		return id, fmt.Errorf("config: lane %q must be 8 hex characters (4 bytes)", c.Lane)
	}
	for i := 0; i < 4; i++ {
		var b int
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return id, fmt.Errorf("config: lane %q: %w", c.Lane, err)
		}
		id[i] = byte(b)
	}
	return id, nil
}

// Validate checks the fields every subcommand needs regardless of which
// direction(s) it runs: non-empty endpoint hosts, a well-formed lane id, a
// known relayer mode, and a positive mortality. It
// does not check signer presence — callers that submit transactions call
// RequireSigners for the sides they submit on.
func (c Config) Validate() error {
	var problems []string

	if c.Source.Host == "" {
		problems = append(problems, "source-host must not be empty")
	}
	if c.Target.Host == "" {
		problems = append(problems, "target-host must not be empty")
	}
	if _, err := c.ParseLaneID(); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.RelayerMode {
	case "rational", "altruistic":
	default:
		problems = append(problems, fmt.Sprintf("relayer-mode must be rational or altruistic, got %q", c.RelayerMode))
	}
	if c.Mortality <= 0 {
		problems = append(problems, "transaction-mortality must be positive")
	}

	if len(problems) > 0 {
		return relayerr.New(relayerr.Fatal, fmt.Errorf("config: %s", strings.Join(problems, "; ")))
	}
	return nil
}

// RequireSigners checks that every side in sides has a non-empty signer
// configured, and that a //DevSeed signer is only used with Dev set — the
// startup-time half of spec.md §5's "signer exclusive to one loop" rule;
// the other half (no two loops sharing a signer) is enforced by Registry.
func (c Config) RequireSigners(sides ...*Endpoint) error {
	for _, e := range sides {
		if e.Signer == "" {
			return relayerr.New(relayerr.Fatal, fmt.Errorf("config: a signer is required for this side but none was configured"))
		}
		if strings.HasPrefix(e.Signer, "//") && !c.Dev {
			return relayerr.New(relayerr.Fatal, fmt.Errorf("config: //DevSeed signers require -dev"))
		}
	}
	return nil
}

// Registry tracks which signer strings are already owned by a running loop
// in this process, enforcing spec.md §5: "multiple loops using the same
// signer is forbidden by configuration and checked at startup."
type Registry struct {
	owned map[string]string // signer -> owning loop name
}

// NewRegistry returns an empty signer Registry.
func NewRegistry() *Registry {
	return &Registry{owned: map[string]string{}}
}

// Claim registers signer as exclusively owned by loopName, failing if some
// other loop already claimed it.
func (r *Registry) Claim(loopName, signer string) error {
	if signer == "" {
		return nil
	}
	if owner, ok := r.owned[signer]; ok && owner != loopName {
		return relayerr.New(relayerr.Fatal, fmt.Errorf("config: signer already claimed by loop %q: %w", owner, relayerr.ErrSignerConflict))
	}
	r.owned[signer] = loopName
	return nil
}
