package autostart_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/autostart"
)

func TestReachableFalseForMissingSocket(t *testing.T) {
	assert.False(t, autostart.Reachable(filepath.Join(t.TempDir(), "no.sock")))
}

func TestReachableTrueForListeningSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	assert.True(t, autostart.Reachable(sockPath))
}

func TestEnsureNoOpWhenAlreadyReachable(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	err = autostart.Ensure(context.Background(), sockPath, autostart.Options{})
	assert.NoError(t, err)
}

func TestEnsureTimesOutWhenNoBinaryCanMakeItReachable(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "never.sock")

	// A "daemon" that exits immediately without ever creating the
	// socket: Ensure should poll until its short timeout and report
	// ErrTimeout rather than hang.
	fakeDaemon := filepath.Join(dir, "ccmuxd-fake")
	require.NoError(t, os.WriteFile(fakeDaemon, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	err := autostart.Ensure(context.Background(), sockPath, autostart.Options{
		Timeout:          300 * time.Millisecond,
		RetryInterval:    50 * time.Millisecond,
		DaemonBinaryName: fakeDaemon,
	})
	assert.ErrorIs(t, err, autostart.ErrTimeout)
}

func TestEnsureReturnsErrorWhenBinaryMissing(t *testing.T) {
	err := autostart.Ensure(context.Background(), filepath.Join(t.TempDir(), "x.sock"), autostart.Options{
		DaemonBinaryName: "ccmuxd-definitely-not-on-path-xyz",
	})
	assert.Error(t, err)
}
