// Package config loads and validates the proxy's configuration: listeners,
// their pools, and the routing policy applied per listener.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration document.
type Config struct {
	Listeners map[string]ListenerConfig `mapstructure:"listeners"`
	StatsAddr string                    `mapstructure:"stats_addr"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	AdminAddr string                    `mapstructure:"admin_addr"`
	DrainMs   int                       `mapstructure:"drain_ms"`
}

// LoggingConfig configures process-wide logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ListenerConfig is one named client-facing listener.
type ListenerConfig struct {
	Protocol string                `mapstructure:"protocol"`
	Address  string                `mapstructure:"address"`
	Pools    map[string]PoolConfig `mapstructure:"pools"`
	Routing  RoutingConfig         `mapstructure:"routing"`
	// AcceptRatePerSecond caps how fast this listener admits new
	// connections. Zero (the default) leaves the accept loop unthrottled.
	AcceptRatePerSecond float64 `mapstructure:"accept_rate_per_second"`
}

// RoutingConfig selects and parameterizes a listener's Router.
type RoutingConfig struct {
	Type string `mapstructure:"type"` // fixed, warmup, shadow
}

// PoolConfig is one named logical upstream: a set of backend addresses plus
// the distribution/hash/timeout/cooloff knobs governing how requests are
// spread over them.
type PoolConfig struct {
	Addresses []string          `mapstructure:"addresses"`
	Options   PoolOptionsConfig `mapstructure:"options"`
}

// PoolOptionsConfig holds the recognized per-pool option keys.
type PoolOptionsConfig struct {
	Distribution          string  `mapstructure:"distribution"` // random, modulo, rendezvous
	Hash                  string  `mapstructure:"hash"`         // md5, xxhash
	CooloffTimeoutMs      int     `mapstructure:"cooloff_timeout_ms"`
	TimeoutMs             int     `mapstructure:"timeout_ms"`
	ConnectionsPerBackend int     `mapstructure:"connections_per_backend"`
	NoKeyPolicy           string  `mapstructure:"no_key_policy"` // first_backend, broadcast
	FailureThreshold      int     `mapstructure:"failure_threshold"`
	FailureWindowMs       int     `mapstructure:"failure_window_ms"`
	BlockAdminCommands    *bool   `mapstructure:"block_admin_commands"`
	// QueryRatePerSecond caps how fast this pool dispatches requests to its
	// backends. Zero (the default) leaves the pool unthrottled.
	QueryRatePerSecond float64 `mapstructure:"query_rate_per_second"`
	// DenyPatterns are additional regexes matched against the upper-cased
	// command name, blocked alongside the static admin-command table.
	DenyPatterns []string `mapstructure:"deny_patterns"`
}

const (
	defaultDistribution     = "random"
	defaultHash             = "md5"
	defaultCooloffTimeoutMs = 10000
	defaultTimeoutMs        = 1000
	defaultConnectionsPerBE = 1
	defaultNoKeyPolicy      = "first_backend"
	defaultFailureThreshold = 3
	defaultFailureWindowMs  = 10000
	defaultDrainMs          = 3000
)

// Load reads the YAML/JSON configuration at path, applies defaults, and
// validates the result. An empty path is an error — the CLI contract
// requires SYNCHROTRON_CONFIG to name a real file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty (set SYNCHROTRON_CONFIG)")
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("stats_addr", ":9121")
	v.SetDefault("admin_addr", ":9090")
	v.SetDefault("drain_ms", defaultDrainMs)
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DrainMs <= 0 {
		c.DrainMs = defaultDrainMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	for lname, l := range c.Listeners {
		for pname, p := range l.Pools {
			o := &p.Options
			if o.Distribution == "" {
				o.Distribution = defaultDistribution
			}
			if o.Hash == "" {
				o.Hash = defaultHash
			}
			if o.CooloffTimeoutMs <= 0 {
				o.CooloffTimeoutMs = defaultCooloffTimeoutMs
			}
			if o.TimeoutMs <= 0 {
				o.TimeoutMs = defaultTimeoutMs
			}
			if o.ConnectionsPerBackend <= 0 {
				o.ConnectionsPerBackend = defaultConnectionsPerBE
			}
			if o.NoKeyPolicy == "" {
				o.NoKeyPolicy = defaultNoKeyPolicy
			}
			if o.FailureThreshold <= 0 {
				o.FailureThreshold = defaultFailureThreshold
			}
			if o.FailureWindowMs <= 0 {
				o.FailureWindowMs = defaultFailureWindowMs
			}
			if o.BlockAdminCommands == nil {
				t := true
				o.BlockAdminCommands = &t
			}
			p.Options = *o
			l.Pools[pname] = p
		}
		c.Listeners[lname] = l
	}
}

// Validate checks structural invariants the proxy relies on at startup.
func (c *Config) Validate() error {
	if len(c.Listeners) == 0 {
		return fmt.Errorf("at least one listener is required")
	}

	validDistribution := map[string]bool{"random": true, "modulo": true, "rendezvous": true}
	validHash := map[string]bool{"md5": true, "xxhash": true}
	validNoKeyPolicy := map[string]bool{"first_backend": true, "broadcast": true}
	validRouting := map[string]bool{"fixed": true, "warmup": true, "shadow": true}

	for name, l := range c.Listeners {
		if l.Protocol != "redis" {
			return fmt.Errorf("listener %q: unsupported protocol %q", name, l.Protocol)
		}
		if l.Address == "" {
			return fmt.Errorf("listener %q: address is required", name)
		}
		if !validRouting[l.Routing.Type] {
			return fmt.Errorf("listener %q: invalid routing.type %q", name, l.Routing.Type)
		}
		switch l.Routing.Type {
		case "fixed":
			if _, ok := l.Pools["default"]; !ok {
				return fmt.Errorf("listener %q: fixed routing requires a %q pool", name, "default")
			}
		case "warmup":
			if _, ok := l.Pools["warm"]; !ok {
				return fmt.Errorf("listener %q: warmup routing requires a %q pool", name, "warm")
			}
			if _, ok := l.Pools["cold"]; !ok {
				return fmt.Errorf("listener %q: warmup routing requires a %q pool", name, "cold")
			}
		case "shadow":
			if _, ok := l.Pools["default"]; !ok {
				return fmt.Errorf("listener %q: shadow routing requires a %q pool", name, "default")
			}
			if _, ok := l.Pools["shadow"]; !ok {
				return fmt.Errorf("listener %q: shadow routing requires a %q pool", name, "shadow")
			}
		}

		if len(l.Pools) == 0 {
			return fmt.Errorf("listener %q: at least one pool is required", name)
		}
		for pname, p := range l.Pools {
			if len(p.Addresses) == 0 {
				return fmt.Errorf("listener %q, pool %q: at least one address is required", name, pname)
			}
			if !validDistribution[p.Options.Distribution] {
				return fmt.Errorf("listener %q, pool %q: invalid distribution %q", name, pname, p.Options.Distribution)
			}
			if !validHash[p.Options.Hash] {
				return fmt.Errorf("listener %q, pool %q: invalid hash %q", name, pname, p.Options.Hash)
			}
			if !validNoKeyPolicy[p.Options.NoKeyPolicy] {
				return fmt.Errorf("listener %q, pool %q: invalid no_key_policy %q", name, pname, p.Options.NoKeyPolicy)
			}
		}
	}
	return nil
}

// CooloffTimeout returns the configured cool-off duration.
func (o PoolOptionsConfig) CooloffTimeout() time.Duration {
	return time.Duration(o.CooloffTimeoutMs) * time.Millisecond
}

// Timeout returns the configured per-request timeout.
func (o PoolOptionsConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// FailureWindow returns the configured consecutive-failure window.
func (o PoolOptionsConfig) FailureWindow() time.Duration {
	return time.Duration(o.FailureWindowMs) * time.Millisecond
}

// DrainTimeout returns the configured shutdown drain bound.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainMs) * time.Millisecond
}
