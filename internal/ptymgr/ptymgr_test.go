package ptymgr_test

import (
	"bufio"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/ptymgr"
)

func TestSpawnWriteAndReadBack(t *testing.T) {
	m := ptymgr.New()
	paneID := uuid.New()

	h, err := m.Spawn(paneID, ptymgr.Config{
		Command: []string{"/bin/cat"},
		Cols:    80,
		Rows:    24,
	})
	require.NoError(t, err)
	require.NotNil(t, h)

	reader, err := m.Reader(paneID)
	require.NoError(t, err)

	_, err = m.Write(paneID, []byte("hello\n"))
	require.NoError(t, err)

	br := bufio.NewReader(reader)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\r\n", line)

	m.Remove(paneID)
}

func TestPollExitsReportsExit(t *testing.T) {
	m := ptymgr.New()
	paneID := uuid.New()

	_, err := m.Spawn(paneID, ptymgr.Config{
		Command: []string{"/bin/sh", "-c", "exit 3"},
		Cols:    80,
		Rows:    24,
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	var events []ptymgr.ExitEvent
	for time.Now().Before(deadline) {
		events = m.PollExits()
		if len(events) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	require.Len(t, events, 1)
	assert.Equal(t, paneID, events[0].PaneID)
	assert.Equal(t, 3, events[0].ExitCode)
}

func TestResizeUnknownPaneErrors(t *testing.T) {
	m := ptymgr.New()
	err := m.Resize(uuid.New(), 80, 24)
	assert.ErrorIs(t, err, ptymgr.ErrNotFound)
}

func TestContextEnv(t *testing.T) {
	env := ptymgr.ContextEnv("s1", "main", "w1", "p1")
	assert.Contains(t, env, "CCMUX_SESSION_ID=s1")
	assert.Contains(t, env, "CCMUX_SESSION_NAME=main")
	assert.Contains(t, env, "CCMUX_WINDOW_ID=w1")
	assert.Contains(t, env, "CCMUX_PANE_ID=p1")
}
