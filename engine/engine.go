package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielNg25/block-reaction/blockchain"
	"github.com/danielNg25/block-reaction/core/configs"
	"github.com/danielNg25/block-reaction/core/results"
)

// pendingTransaction tracks one submitted transfer until its receipt is
// observed. Created at submission, removed exactly once on confirmation.
type pendingTransaction struct {
	hash               string
	sentBlockNumber    uint64
	sentAt             time.Time
	sentBlockTimestamp uint64
	feeRate            *big.Int
}

// Status is the progress snapshot exposed to the lifecycle layer.
type Status struct {
	BlocksSeen uint64
	Sent       uint64
	Confirmed  uint64
	Budget     uint64
}

// Engine reacts to new blocks by submitting value transfers and measuring
// how long each takes to confirm, in wall-clock time and in blocks. It owns
// all mutable run state; the caller only starts it, stops it and reads the
// progress predicates.
type Engine struct {
	cfg     *configs.Config
	client  blockchain.Client
	feed    BlockFeed
	cache   *ParamCache
	results *results.Collector
	metrics *Metrics

	// Tick intervals, fixed defaults overridden only by tests.
	confirmInterval time.Duration
	refreshInterval time.Duration

	mu      sync.Mutex
	pending map[string]pendingTransaction

	blocksSeen uint64 // Accessed atomically
	txSent     uint64 // Accessed atomically, budget-gated

	running      uint32 // Accessed atomically, 1 while started and not closed
	cancel       context.CancelFunc
	group        *errgroup.Group
	completed    chan struct{}
	completeOnce sync.Once
	feedStopOnce sync.Once
	closeOnce    sync.Once
}

// New assembles an engine over the given collaborators. A nil metrics set
// gets replaced with an unregistered one.
func New(cfg *configs.Config, client blockchain.Client, feed BlockFeed, collector *results.Collector, metrics *Metrics) *Engine {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Engine{
		cfg:             cfg,
		client:          client,
		feed:            feed,
		cache:           NewParamCache(client),
		results:         collector,
		metrics:         metrics,
		confirmInterval: confirmationInterval,
		refreshInterval: refreshInterval,
		pending:         make(map[string]pendingTransaction),
		completed:       make(chan struct{}),
	}
}

// Start begins the run: the block feed, the dispatch loop, the confirmation
// monitor and the background refresher. It fails if the feed cannot start.
func (e *Engine) Start() error {
	if !atomic.CompareAndSwapUint32(&e.running, 0, 1) {
		return errors.New("engine already started")
	}

	if err := e.feed.Start(); err != nil {
		atomic.StoreUint32(&e.running, 0)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	group, ctx := errgroup.WithContext(ctx)
	e.group = group

	group.Go(func() error { return e.dispatchLoop(ctx) })
	group.Go(func() error { return e.monitorLoop(ctx) })
	group.Go(func() error { return e.refreshLoop(ctx) })

	return nil
}

// Stop halts the block feed so no further blocks trigger sends. The monitor
// and refresher keep running, letting already-pending transfers resolve;
// callers that do not want to wait follow up with Close. Idempotent.
func (e *Engine) Stop() {
	e.feedStopOnce.Do(func() {
		e.feed.Stop()
	})
}

// Close forces the run down: the feed is halted and the background loops are
// cancelled. In-flight chain calls are not aborted; the loops exit after the
// current one completes. Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.Stop()
		if e.cancel != nil {
			e.cancel()
			e.group.Wait()
		}
		atomic.StoreUint32(&e.running, 0)
	})
}

// Done is closed once the confirmed count reaches the budget. The caller
// decides whether completion ends the process.
func (e *Engine) Done() <-chan struct{} {
	return e.completed
}

// IsRunning reports whether the engine has been started and not yet closed.
func (e *Engine) IsRunning() bool {
	return atomic.LoadUint32(&e.running) == 1
}

// ShouldContinue reports whether the engine still has budget for further
// submissions.
func (e *Engine) ShouldContinue() bool {
	return atomic.LoadUint64(&e.txSent) < e.cfg.Budget
}

// IsCompleted reports whether every budgeted transfer has been confirmed.
func (e *Engine) IsCompleted() bool {
	return uint64(e.results.Count()) >= e.cfg.Budget
}

// Status returns a progress snapshot for display.
func (e *Engine) Status() Status {
	return Status{
		BlocksSeen: atomic.LoadUint64(&e.blocksSeen),
		Sent:       atomic.LoadUint64(&e.txSent),
		Confirmed:  uint64(e.results.Count()),
		Budget:     e.cfg.Budget,
	}
}

// dispatchLoop consumes block events until the feed closes or the run is
// cancelled.
func (e *Engine) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case block, ok := <-e.feed.Events():
			if !ok {
				return nil
			}
			e.handleBlock(ctx, block)
		}
	}
}
