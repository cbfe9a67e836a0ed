// Package bootstrap wires a concrete backend's factories into the
// process-wide registries (mutex, eventflag, thread, fixedpool,
// varpool, timer) in dependency order, tunes GOMAXPROCS for the
// container it's running in, and resolves the ThreadPool size a host
// should use (ResolvedPoolSize); it creates no pool itself.
//
// Grounded on the shape of TheEntropyCollective/noisefs's
// pkg/common/config (JSON config struct, environment-variable
// overrides with a package prefix, Validate()) and
// pkg/tools/bootstrap (a dedicated wiring package separate from the
// packages it wires), re-scoped to this module's much smaller surface
// (no IPFS/FUSE/WebUI/Tor — this module has nothing resembling those
// concerns).
package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Config holds the knobs a host application can set before calling
// Init: backend-independent pool sizing, the priority range the
// backend should advertise, and how long Destroy-on-shutdown should
// wait for in-flight work.
type Config struct {
	// ThreadPoolSize is the number of reusable workers a host's
	// ThreadPool should have; Init only logs it and creates no pool.
	// Zero selects DefaultPoolSize().
	ThreadPoolSize int `json:"thread_pool_size"`

	// ThreadPoolStackSize is passed through to thread.Create for every
	// pool worker. Zero lets the backend pick its own default.
	ThreadPoolStackSize uint `json:"thread_pool_stack_size"`

	// PriorityLow/PriorityHigh bound the priority range backend/posix
	// advertises via SetPriorityRange before any Thread is created.
	PriorityLow  int `json:"priority_low"`
	PriorityHigh int `json:"priority_high"`

	// ShutdownTimeoutMillis bounds how long a host's shutdown sequence
	// should wait for a ThreadPool's in-flight tasks before giving up
	// and destroying it anyway. Not enforced by this package itself —
	// it's a convention recorded here for callers to read.
	ShutdownTimeoutMillis int64 `json:"shutdown_timeout_millis"`
}

// DefaultConfig returns a Config with conservative, host-independent
// defaults: pool size 0 (meaning "ask DefaultPoolSize()"), priority
// range [0, 10] (backend/posix's own default), and a five-second
// shutdown allowance.
func DefaultConfig() *Config {
	return &Config{
		ThreadPoolSize:        0,
		ThreadPoolStackSize:   0,
		PriorityLow:           0,
		PriorityHigh:          10,
		ShutdownTimeoutMillis: 5000,
	}
}

// LoadConfig builds a Config starting from DefaultConfig, optionally
// overlaying a JSON file (missing files are ignored, matching the
// teacher's LoadConfig), then applying OSWRAP_* environment overrides,
// then validating the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("bootstrap: loading config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, c)
}

// applyEnvironmentOverrides reads OSWRAP_* environment variables,
// the prefix this module's host applications use, matching
// pkg/common/config's NOISEFS_* convention. Invalid values are
// ignored rather than treated as errors, so a malformed env var never
// prevents startup.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("OSWRAP_THREAD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ThreadPoolSize = n
		}
	}
	if v := os.Getenv("OSWRAP_THREAD_POOL_STACK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ThreadPoolStackSize = uint(n)
		}
	}
	if v := os.Getenv("OSWRAP_PRIORITY_LOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PriorityLow = n
		}
	}
	if v := os.Getenv("OSWRAP_PRIORITY_HIGH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PriorityHigh = n
		}
	}
	if v := os.Getenv("OSWRAP_SHUTDOWN_TIMEOUT_MILLIS"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n >= 0 {
			c.ShutdownTimeoutMillis = n
		}
	}
}

// Validate rejects configurations that would make the backend's
// priority range or pool sizing nonsensical.
func (c *Config) Validate() error {
	if c.PriorityLow > c.PriorityHigh {
		return fmt.Errorf("priority_low (%d) must be <= priority_high (%d)", c.PriorityLow, c.PriorityHigh)
	}
	if c.ThreadPoolSize < 0 {
		return fmt.Errorf("thread_pool_size must be non-negative, got %d", c.ThreadPoolSize)
	}
	if c.ShutdownTimeoutMillis < 0 {
		return fmt.Errorf("shutdown_timeout_millis must be non-negative, got %d", c.ShutdownTimeoutMillis)
	}
	return nil
}

// ResolvedPoolSize returns c.ThreadPoolSize if the caller set one
// explicitly (> 0), otherwise DefaultPoolSize().
func (c *Config) ResolvedPoolSize() int {
	if c.ThreadPoolSize > 0 {
		return c.ThreadPoolSize
	}
	return DefaultPoolSize()
}

// DefaultPoolSize reports a reasonable default ThreadPool worker count
// for the host machine: gopsutil's physical core count when it can be
// determined, falling back to runtime.NumCPU()'s logical count — never
// fewer than one worker.
func DefaultPoolSize() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
