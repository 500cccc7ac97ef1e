// Package autostart implements the client-side connection lifecycle
// from spec.md §4.12: before dialing the daemon, a client checks
// whether the socket is present and connectable; if not, it locates a
// daemon binary, spawns it detached, and polls until the socket comes
// up or a deadline passes.
package autostart

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// DefaultTimeout is how long Ensure polls for the socket to appear
// before giving up (spec.md §4.12: "default ≈ 2 s").
const DefaultTimeout = 2 * time.Second

// DefaultRetryInterval is the delay between successive poll attempts
// (spec.md §4.12: "default ≈ 200 ms").
const DefaultRetryInterval = 200 * time.Millisecond

// ErrTimeout is returned when the daemon does not become reachable
// before the configured timeout elapses.
var ErrTimeout = errors.New("autostart: daemon did not become ready in time")

// Options configures Ensure's polling and binary-resolution behavior.
type Options struct {
	// Timeout bounds the total time spent waiting for the socket to
	// accept connections. Zero uses DefaultTimeout.
	Timeout time.Duration
	// RetryInterval is the delay between poll attempts. Zero uses
	// DefaultRetryInterval.
	RetryInterval time.Duration
	// DaemonBinaryName is the executable name to look for, both
	// alongside the running client binary and on PATH. Defaults to
	// "ccmuxd".
	DaemonBinaryName string
	// ExtraArgs are appended to the daemon invocation (e.g. --config
	// <path> carrying the resolved configuration file through to the
	// spawned process).
	ExtraArgs []string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.DaemonBinaryName == "" {
		o.DaemonBinaryName = "ccmuxd"
	}
	return o
}

// IsServerNotRunning reports whether err looks like "the daemon isn't
// up": socket file absent or connection refused. Per spec.md §4.12,
// this is the trigger condition for the auto-start path, alongside an
// explicit protocol-level ServerNotRunning error the caller may also
// want to check for.
func IsServerNotRunning(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

// Reachable reports whether a Unix socket at path currently accepts
// connections.
func Reachable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 250*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ensure makes sure a daemon is listening on socketPath, spawning one
// if necessary, and blocks until it is reachable or opts.Timeout
// elapses.
func Ensure(ctx context.Context, socketPath string, opts Options) error {
	opts = opts.withDefaults()

	if Reachable(socketPath) {
		return nil
	}

	bin, err := locateDaemonBinary(opts.DaemonBinaryName)
	if err != nil {
		return err
	}

	if err := spawnDetached(bin, opts.ExtraArgs); err != nil {
		return fmt.Errorf("autostart: could not start daemon: %w", err)
	}

	deadline := time.Now().Add(opts.Timeout)
	for time.Now().Before(deadline) {
		if Reachable(socketPath) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
	return ErrTimeout
}

// locateDaemonBinary prefers a binary next to the currently running
// executable, falling back to a PATH lookup.
func locateDaemonBinary(name string) (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("autostart: daemon binary %q not found next to client or on PATH", name)
}

// spawnDetached starts the daemon with no inherited stdio, in its own
// session so it outlives the spawning client.
func spawnDetached(bin string, args []string) error {
	cmd := exec.Command(bin, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd.Start()
}
