package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielNg25/block-reaction/blockchain"
)

// How long to wait after losing the subscription before reconnecting.
const reconnectBackoff = 5 * time.Second

// SubscriptionFeed is the push block feed: it holds a persistent new-head
// subscription and resolves every notification into a full block. On
// connection loss it backs off and re-subscribes; a notification that cannot
// be resolved is logged and dropped without terminating the subscription.
type SubscriptionFeed struct {
	client  blockchain.Client
	backoff time.Duration

	events   chan blockchain.Block
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

func NewSubscriptionFeed(client blockchain.Client) *SubscriptionFeed {
	return &SubscriptionFeed{
		client:  client,
		backoff: reconnectBackoff,
		events:  make(chan blockchain.Block, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start opens the initial subscription. A failure here is a startup error;
// only losses after a successful subscribe are retried.
func (f *SubscriptionFeed) Start() error {
	sub, err := f.client.SubscribeNewHeads(context.Background())
	if err != nil {
		return err
	}

	f.started = true
	go f.run(sub)

	return nil
}

// Stop halts the feed. Idempotent. Returns once the delivery loop has
// exited and the event channel is closed.
func (f *SubscriptionFeed) Stop() {
	f.stopOnce.Do(func() {
		close(f.quit)
	})

	if f.started {
		<-f.done
	}
}

// Events delivers resolved blocks in the order the node pushed them.
func (f *SubscriptionFeed) Events() <-chan blockchain.Block {
	return f.events
}

func (f *SubscriptionFeed) run(sub blockchain.HeadSubscription) {
	defer close(f.done)
	defer close(f.events)

	for {
		if sub == nil {
			select {
			case <-f.quit:
				return
			case <-time.After(f.backoff):
			}

			next, err := f.client.SubscribeNewHeads(context.Background())
			if err != nil {
				zap.L().Warn("resubscribe failed, retrying",
					zap.Error(err))
				continue
			}

			sub = next
			zap.L().Info("block subscription re-established")
		}

		select {
		case <-f.quit:
			sub.Unsubscribe()
			return

		case err := <-sub.Err():
			zap.L().Warn("block subscription lost",
				zap.Error(err))
			sub.Unsubscribe()
			sub = nil

		case head := <-sub.Heads():
			f.deliver(head)
		}
	}
}

// deliver resolves one notification into a full block and hands it
// downstream. A resolution failure drops the notification only.
func (f *SubscriptionFeed) deliver(head blockchain.Head) {
	block, err := f.client.BlockByNumber(context.Background(), head.Number)
	if err != nil {
		zap.L().Warn("dropping block notification",
			zap.Uint64("number", head.Number),
			zap.Error(err))
		return
	}

	select {
	case f.events <- block:
	case <-f.quit:
	}
}
