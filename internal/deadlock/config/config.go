// Package config holds the runtime options of the deadlock detector.
//
// Options follow the sanitizer-runtime convention of a single environment
// variable with colon-separated key=value flags:
//
//	DEADLOCK_OPTIONS="capacity=64:strategy=basic:verbosity=1"
//
// A YAML options file can carry the same settings for deployments that
// version their configuration; the env variable points at it with
// config=/path/to/file.yaml, and any further env flags override the file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/kolkov/deadlockdetector/internal/deadlock/bitvector"
	"github.com/kolkov/deadlockdetector/internal/deadlock/bvgraph"
)

// EnvVar is the environment variable the options are read from.
const EnvVar = "DEADLOCK_OPTIONS"

// Adjacency strategies for the lock-order graph rows.
const (
	StrategyBasic    = "basic"
	StrategyTwoLevel = "twolevel"
	StrategyRoaring  = "roaring"
)

// DefaultCapacity is the default size of the tracked-mutex ID space.
// Low hundreds covers typical programs; the graph's query cost is
// quadratic in this number, so it is deliberately small.
const DefaultCapacity = 128

// Config is the complete option set. The zero value is not valid; start
// from Default.
type Config struct {
	// Capacity is the fixed number of simultaneously tracked mutexes.
	Capacity int `yaml:"capacity"`

	// Strategy selects the adjacency bit vector backend.
	Strategy string `yaml:"strategy"`

	// Symbolizer is the path to an external llvm-symbolizer-compatible
	// tool. Empty means in-process symbolization.
	Symbolizer string `yaml:"symbolizer"`

	// LogPath, when set, is the file reports are appended to instead of
	// stderr. The file is created if missing.
	LogPath string `yaml:"log_path"`

	// Verbosity controls diagnostic logging: 0 warnings only, 1 adds
	// lifecycle info, 2 and above adds debug detail. Reports themselves
	// are always emitted.
	Verbosity int `yaml:"verbosity"`

	// AbortOnReport exits the program after the first report, for CI
	// runs that treat an inversion as a hard failure.
	AbortOnReport bool `yaml:"abort_on_report"`

	// RequireVersion, when set, is the minimum runtime version this
	// configuration expects, for example "v0.2.0". Validation fails on
	// an older runtime instead of silently ignoring unknown semantics.
	RequireVersion string `yaml:"require_version"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Capacity: DefaultCapacity,
		Strategy: StrategyTwoLevel,
	}
}

// FromEnv builds the configuration from DEADLOCK_OPTIONS on top of the
// defaults. A malformed option is a configuration error, not a reason to
// guess: the error names the offending flag.
func FromEnv() (Config, error) {
	return Parse(os.Getenv(EnvVar))
}

// Parse builds the configuration from an option string in the
// DEADLOCK_OPTIONS syntax.
func Parse(opts string) (Config, error) {
	c := Default()
	if opts == "" {
		return c, nil
	}

	pairs := strings.Split(opts, ":")

	// A config file is applied first so explicit env flags win over it,
	// regardless of where the config= flag sits in the string.
	for _, p := range pairs {
		if path, ok := strings.CutPrefix(p, "config="); ok {
			if err := c.loadFile(path); err != nil {
				return c, err
			}
		}
	}

	for _, p := range pairs {
		if p == "" || strings.HasPrefix(p, "config=") {
			continue
		}
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return c, fmt.Errorf("config: malformed option %q, want key=value", p)
		}
		if err := c.apply(key, value); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading options file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) apply(key, value string) error {
	switch key {
	case "capacity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: capacity=%q is not an integer", value)
		}
		c.Capacity = n
	case "strategy":
		c.Strategy = value
	case "symbolizer":
		c.Symbolizer = value
	case "log_path":
		c.LogPath = value
	case "verbosity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: verbosity=%q is not an integer", value)
		}
		c.Verbosity = n
	case "abort_on_report":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: abort_on_report=%q is not a boolean", value)
		}
		c.AbortOnReport = b
	case "require_version":
		c.RequireVersion = value
	default:
		return fmt.Errorf("config: unknown option %q", key)
	}
	return nil
}

// Validate checks the configuration against the running runtime version
// (the facade's Version constant).
func (c Config) Validate(runtimeVersion string) error {
	if c.Capacity <= 0 {
		return fmt.Errorf("config: capacity must be positive, got %d", c.Capacity)
	}
	switch c.Strategy {
	case StrategyBasic, StrategyTwoLevel, StrategyRoaring:
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Strategy)
	}
	if c.RequireVersion != "" {
		if !semver.IsValid(c.RequireVersion) {
			return fmt.Errorf("config: require_version %q is not a valid semantic version", c.RequireVersion)
		}
		if !semver.IsValid(runtimeVersion) {
			return fmt.Errorf("config: runtime version %q is not a valid semantic version", runtimeVersion)
		}
		if semver.Compare(runtimeVersion, c.RequireVersion) < 0 {
			return fmt.Errorf("config: runtime %s is older than required %s", runtimeVersion, c.RequireVersion)
		}
	}
	return nil
}

// Factory returns the bit vector constructor for the configured strategy.
// Validate first; an unknown strategy panics here.
func (c Config) Factory() bvgraph.Factory {
	switch c.Strategy {
	case StrategyBasic:
		return func(size int) bitvector.BitVector { return bitvector.NewBasic(size) }
	case StrategyTwoLevel:
		return func(size int) bitvector.BitVector { return bitvector.NewTwoLevel(size) }
	case StrategyRoaring:
		return func(size int) bitvector.BitVector { return bitvector.NewRoaring(size) }
	}
	panic(fmt.Sprintf("config: unknown strategy %q", c.Strategy))
}

// NewLogger returns the runtime's diagnostic logger at the configured
// verbosity. Diagnostics are structured; reports are not logged through
// it, their text format is part of the runtime's contract.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case c.Verbosity >= 2:
		level = slog.LevelDebug
	case c.Verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
