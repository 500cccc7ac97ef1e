package sideband

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Handler performs the side effect of a single sideband command against
// the live object tree / PTY manager. It is supplied by the daemon so
// this package stays independent of internal/tree and internal/ptymgr.
type Handler func(ctx context.Context, paneID string, cmd Command) error

// DefaultRateLimit is the maximum sustained rate of sideband commands
// accepted from a single pane, before the burst allowance is spent.
const DefaultRateLimit = rate.Limit(20) // commands/sec

// DefaultBurst is the number of commands a pane may issue back-to-back
// before DefaultRateLimit starts throttling it.
const DefaultBurst = 40

// DefaultQueueDepth bounds how many commands may be queued per pane
// before new commands are dropped rather than executed.
const DefaultQueueDepth = 64

// Executor runs sideband commands asynchronously, one worker goroutine
// per pane, capacity-limited so a runaway or malicious child process
// cannot flood the daemon with sideband traffic.
type Executor struct {
	handle Handler

	rateLimit  rate.Limit
	burst      int
	queueDepth int

	mu    sync.Mutex
	panes map[string]*paneQueue
}

type paneQueue struct {
	limiter *rate.Limiter
	jobs    chan job
	cancel  context.CancelFunc
}

type job struct {
	cmd Command
}

// NewExecutor builds an executor that dispatches commands to handle.
func NewExecutor(handle Handler) *Executor {
	return &Executor{
		handle:     handle,
		rateLimit:  DefaultRateLimit,
		burst:      DefaultBurst,
		queueDepth: DefaultQueueDepth,
		panes:      make(map[string]*paneQueue),
	}
}

// Submit enqueues a command for asynchronous execution against paneID.
// If the pane's queue is full, or the pane's rate limit is exhausted,
// the command is dropped and a warning is logged, per
// the capacity-limited executor requirement in spec.md §4.4.
func (e *Executor) Submit(ctx context.Context, paneID string, cmd Command) {
	e.mu.Lock()
	pq, ok := e.panes[paneID]
	if !ok {
		pq = e.startPaneWorker(ctx, paneID)
		e.panes[paneID] = pq
	}
	e.mu.Unlock()

	if !pq.limiter.Allow() {
		log.Warn().Str("pane_id", paneID).Msg("sideband command dropped: rate limit exceeded")
		return
	}

	select {
	case pq.jobs <- job{cmd: cmd}:
	default:
		log.Warn().Str("pane_id", paneID).Msg("sideband command dropped: queue full")
	}
}

func (e *Executor) startPaneWorker(ctx context.Context, paneID string) *paneQueue {
	workerCtx, cancel := context.WithCancel(ctx)
	pq := &paneQueue{
		limiter: rate.NewLimiter(e.rateLimit, e.burst),
		jobs:    make(chan job, e.queueDepth),
		cancel:  cancel,
	}

	go func() {
		for {
			select {
			case <-workerCtx.Done():
				return
			case j := <-pq.jobs:
				callCtx, cancelCall := context.WithTimeout(workerCtx, 5*time.Second)
				if err := e.handle(callCtx, paneID, j.cmd); err != nil {
					log.Error().Err(err).Str("pane_id", paneID).Msg("sideband command failed")
				}
				cancelCall()
			}
		}
	}()

	return pq
}

// ClosePane stops the worker goroutine backing paneID and forgets its
// queue. Called when a pane is destroyed so its goroutine doesn't leak.
func (e *Executor) ClosePane(paneID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pq, ok := e.panes[paneID]; ok {
		pq.cancel()
		delete(e.panes, paneID)
	}
}
