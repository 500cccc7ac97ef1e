package sideband_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ianremillard/ccmux/internal/sideband"
)

func TestExecutorDispatchesToHandler(t *testing.T) {
	var calls int32
	done := make(chan struct{}, 1)

	exec := sideband.NewExecutor(func(ctx context.Context, paneID string, cmd sideband.Command) error {
		atomic.AddInt32(&calls, 1)
		done <- struct{}{}
		return nil
	})

	exec.Submit(context.Background(), "pane-1", sideband.Focus{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestExecutorDropsBeyondQueueDepth(t *testing.T) {
	block := make(chan struct{})
	var calls int32
	var wg sync.WaitGroup
	wg.Add(1)

	exec := sideband.NewExecutor(func(ctx context.Context, paneID string, cmd sideband.Command) error {
		atomic.AddInt32(&calls, 1)
		if atomic.LoadInt32(&calls) == 1 {
			wg.Done()
			<-block
		}
		return nil
	})

	ctx := context.Background()
	for i := 0; i < sideband.DefaultQueueDepth+20; i++ {
		exec.Submit(ctx, "pane-flood", sideband.Focus{})
	}

	wg.Wait()
	close(block)

	assert.LessOrEqual(t, int(atomic.LoadInt32(&calls)), sideband.DefaultQueueDepth+1)
}

func TestExecutorClosePaneStopsWorker(t *testing.T) {
	exec := sideband.NewExecutor(func(ctx context.Context, paneID string, cmd sideband.Command) error {
		return nil
	})
	exec.Submit(context.Background(), "pane-2", sideband.Focus{})
	exec.ClosePane("pane-2")
}
