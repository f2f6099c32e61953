package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielNg25/block-reaction/blockchain"
)

// Default interval between height polls. Short enough that several blocks
// rarely accumulate between ticks on typical block times.
const defaultPollInterval = 50 * time.Millisecond

// PollingFeed is the pull block feed: it records the chain height at start
// as its baseline, then periodically polls the height and replays every
// block in the gap in increasing order. The baseline only advances past a
// block after that block has been delivered, so a fetch failure means the
// block is retried on the next tick and nothing is ever skipped.
type PollingFeed struct {
	client   blockchain.Client
	interval time.Duration

	baseline uint64 // Last delivered block number, owned by the poll loop

	events   chan blockchain.Block
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

func NewPollingFeed(client blockchain.Client, interval time.Duration) *PollingFeed {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &PollingFeed{
		client:   client,
		interval: interval,
		events:   make(chan blockchain.Block, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start records the current chain height as the baseline and begins polling.
func (f *PollingFeed) Start() error {
	height, err := f.client.BlockHeight(context.Background())
	if err != nil {
		return err
	}

	f.baseline = height
	f.started = true
	go f.run()

	zap.L().Info("polling feed started",
		zap.Uint64("baseline", height),
		zap.Duration("interval", f.interval))

	return nil
}

// Stop halts the poll loop. Idempotent. Returns once the loop has exited
// and the event channel is closed.
func (f *PollingFeed) Stop() {
	f.stopOnce.Do(func() {
		close(f.quit)
	})

	if f.started {
		<-f.done
	}
}

// Events delivers blocks in strictly increasing number order.
func (f *PollingFeed) Events() <-chan blockchain.Block {
	return f.events
}

func (f *PollingFeed) run() {
	defer close(f.done)
	defer close(f.events)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.quit:
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

// poll replays every block the chain produced since the baseline.
func (f *PollingFeed) poll() {
	height, err := f.client.BlockHeight(context.Background())
	if err != nil {
		zap.L().Warn("height query failed",
			zap.Error(err))
		return
	}

	for next := f.baseline + 1; next <= height; next++ {
		block, err := f.client.BlockByNumber(context.Background(), next)
		if err != nil {
			// Retried on the next tick; the baseline stays put so the
			// block is not skipped.
			zap.L().Warn("block fetch failed",
				zap.Uint64("number", next),
				zap.Error(err))
			return
		}

		select {
		case f.events <- block:
			f.baseline = next
		case <-f.quit:
			return
		}
	}
}
