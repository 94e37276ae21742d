package conversation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/substratelabs/recall/memory"
)

// Backend tags select the durable store at startup.
const (
	BackendMem     = "mem"
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendRedis   = "redis"
	BackendFile    = "file"
	BackendNoop    = "noop"
)

// DefaultMaxHistory bounds a persisted conversation when the caller
// does not configure a trim limit.
const DefaultMaxHistory = 100

// Config is the caller-owned configuration consumed by the memory core.
// Validate runs before first use; invalid configuration is fatal at
// startup, never discovered mid-turn.
type Config struct {
	// Backend selects the durable store implementation.
	Backend string `yaml:"backend"`

	// Path locates the sqlite database or append-log file for the
	// backends that need one.
	Path string `yaml:"path,omitempty"`

	// RedisURL is the connection string for the redis backend.
	RedisURL string `yaml:"redis_url,omitempty"`

	// LoadPastConversations is the per-channel restore limit applied
	// when a key is first seen. 0 disables restoration; new turns
	// still persist.
	LoadPastConversations int `yaml:"load_past_conversations"`

	// MaxHistory is the trim bound applied before each persist.
	// Defaults to DefaultMaxHistory.
	MaxHistory int `yaml:"max_history"`

	// HybridWeights blends vector and keyword scores during recall.
	// Defaults to (0.7, 0.3).
	HybridWeights memory.Weights `yaml:"hybrid_weights"`

	// OpTimeout bounds each backend call, as a Go duration string
	// (e.g. "5s"). Defaults to the facade's timeout.
	OpTimeout string `yaml:"op_timeout,omitempty"`
}

// DefaultConfig returns a runnable in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Backend:               BackendMem,
		LoadPastConversations: 10,
		MaxHistory:            DefaultMaxHistory,
		HybridWeights:         memory.DefaultWeights(),
	}
}

// LoadConfig reads a YAML config file. Missing optional fields take
// their defaults; the result is validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that must never reach a turn.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMem, BackendSQLite, BackendChromem, BackendRedis, BackendFile, BackendNoop:
	case "":
		return fmt.Errorf("conversation: backend is required")
	default:
		return fmt.Errorf("conversation: unknown backend %q", c.Backend)
	}

	if c.LoadPastConversations < 0 {
		return fmt.Errorf("conversation: load_past_conversations must be >= 0, got %d", c.LoadPastConversations)
	}
	if c.MaxHistory == 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("conversation: max_history must be positive, got %d", c.MaxHistory)
	}

	if c.HybridWeights.Vector == 0 && c.HybridWeights.Keyword == 0 {
		c.HybridWeights = memory.DefaultWeights()
	}
	if err := c.HybridWeights.Validate(); err != nil {
		return err
	}

	if c.OpTimeout != "" {
		d, err := time.ParseDuration(c.OpTimeout)
		if err != nil {
			return fmt.Errorf("conversation: invalid op_timeout %q: %w", c.OpTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("conversation: op_timeout must be positive, got %q", c.OpTimeout)
		}
	}

	switch c.Backend {
	case BackendSQLite, BackendFile:
		if c.Path == "" {
			return fmt.Errorf("conversation: backend %q requires path", c.Backend)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("conversation: backend %q requires redis_url", c.Backend)
		}
	}
	return nil
}

// Timeout returns the parsed OpTimeout, or the facade default.
func (c *Config) Timeout() time.Duration {
	if c.OpTimeout == "" {
		return memory.DefaultTimeout
	}
	d, err := time.ParseDuration(c.OpTimeout)
	if err != nil {
		return memory.DefaultTimeout
	}
	return d
}
