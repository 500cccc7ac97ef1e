// Package config loads the daemon's TOML configuration file, per
// spec.md §6, and resolves the XDG-derived default paths for the Unix
// socket and the config file itself.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

// Config is the top-level daemon configuration, loaded from a TOML
// file. No environment variables or flags are overlaid onto it. The
// daemon applies Listen.SocketPath, Scrollback.MaxLines and
// Agent.StuckAfterSeconds; the other fields are parsed but not applied.
type Config struct {
	Listen      ListenConfig      `toml:"listen"`
	Scrollback  ScrollbackConfig  `toml:"scrollback"`
	Arbitration ArbitrationConfig `toml:"arbitration"`
	Agent       AgentConfig       `toml:"agent"`
	Sideband    SidebandConfig    `toml:"sideband"`
}

// ListenConfig describes the daemon's IPC endpoint (spec.md §6).
type ListenConfig struct {
	// SocketPath overrides the default XDG-derived Unix socket path.
	SocketPath string `toml:"socket_path"`
	// TCPAddr is the tcp_addr setting. It is parsed but not used: the
	// daemon listens only on the Unix socket.
	TCPAddr string `toml:"tcp_addr"`
}

// ScrollbackConfig overrides the scrollback buffer's default cap.
type ScrollbackConfig struct {
	MaxLines int `toml:"max_lines"`
}

// ArbitrationConfig holds lockout durations, in milliseconds. The
// daemon does not apply them; the arbitrator always uses its built-in
// DefaultInputLockout and DefaultLayoutLockout.
type ArbitrationConfig struct {
	InputLockoutMs  int `toml:"input_lockout_ms"`
	LayoutLockoutMs int `toml:"layout_lockout_ms"`
}

// AgentConfig holds agent-detector timing. StuckAfterSeconds sets the
// no-output window after which an agent pane is reported stuck.
// StateBroadcastDebounceMs is parsed but not applied; detectors always
// use their built-in debounce.
type AgentConfig struct {
	StateBroadcastDebounceMs int `toml:"state_broadcast_debounce_ms"`
	StuckAfterSeconds        int `toml:"stuck_after_seconds"`
}

// SidebandConfig holds sideband executor capacity limits. The daemon
// does not apply them; the executor always uses DefaultRateLimit,
// DefaultBurst and DefaultQueueDepth.
type SidebandConfig struct {
	RateLimitPerSecond int `toml:"rate_limit_per_second"`
	Burst              int `toml:"burst"`
	QueueDepth         int `toml:"queue_depth"`
}

// DefaultSocketPath returns the default Unix socket path the daemon
// listens on: under $XDG_RUNTIME_DIR, falling back to a UID-scoped temp
// path, per spec.md §6.
func DefaultSocketPath() string {
	path, err := xdg.RuntimeFile("ccmux/ccmux.sock")
	if err == nil {
		return path
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("ccmux-%d.sock", os.Getuid()))
}

// Default returns a Config populated with the daemon's built-in
// defaults, used when no TOML file is present and as the base that a
// loaded file is merged onto.
func Default() Config {
	return Config{
		Listen: ListenConfig{SocketPath: DefaultSocketPath()},
		Scrollback: ScrollbackConfig{
			MaxLines: 10_000,
		},
		Arbitration: ArbitrationConfig{
			InputLockoutMs:  2000,
			LayoutLockoutMs: 5000,
		},
		Agent: AgentConfig{
			StateBroadcastDebounceMs: 100,
			StuckAfterSeconds:        30,
		},
		Sideband: SidebandConfig{
			RateLimitPerSecond: 20,
			Burst:              40,
			QueueDepth:         64,
		},
	}
}

// Load reads a TOML file at path and overlays its fields onto the
// built-in defaults. A missing file is not an error: the defaults are
// returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfigPath returns the conventional location of the daemon's
// TOML config file: $XDG_CONFIG_HOME/ccmux/config.toml.
func DefaultConfigPath() string {
	path, err := xdg.ConfigFile("ccmux/config.toml")
	if err != nil {
		return filepath.Join(xdg.ConfigHome, "ccmux", "config.toml")
	}
	return path
}
