package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielNg25/block-reaction/blockchain"
)

func TestSubscriptionFeedDeliversResolvedBlocks(t *testing.T) {
	client := newFakeClient()
	client.addBlock(200, 2000)
	client.addBlock(201, 2010)

	feed := NewSubscriptionFeed(client)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	sub := client.subs[0]
	sub.heads <- blockchain.Head{Number: 200, Hash: "0xblock200"}
	sub.heads <- blockchain.Head{Number: 201, Hash: "0xblock201"}

	block := waitForBlock(t, feed.Events())
	assert.Equal(t, uint64(200), block.Number)
	assert.Equal(t, uint64(2000), block.Timestamp)

	block = waitForBlock(t, feed.Events())
	assert.Equal(t, uint64(201), block.Number)
}

func TestSubscriptionFeedDropsUnresolvableNotification(t *testing.T) {
	client := newFakeClient()
	client.addBlock(301, 3010)
	client.mu.Lock()
	client.blockErr[300] = errors.New("malformed block")
	client.mu.Unlock()

	feed := NewSubscriptionFeed(client)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	sub := client.subs[0]
	sub.heads <- blockchain.Head{Number: 300}
	sub.heads <- blockchain.Head{Number: 301}

	// The bad notification is dropped; the stream keeps flowing.
	block := waitForBlock(t, feed.Events())
	assert.Equal(t, uint64(301), block.Number)
}

func TestSubscriptionFeedReconnectsAfterLoss(t *testing.T) {
	client := newFakeClient()
	client.addBlock(400, 4000)

	feed := NewSubscriptionFeed(client)
	feed.backoff = 5 * time.Millisecond
	require.NoError(t, feed.Start())
	defer feed.Stop()

	first := client.subs[0]
	first.errc <- errors.New("connection reset")

	// The feed re-subscribes after the backoff and keeps delivering.
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.subCalls == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, first.isUnsubscribed())

	client.mu.Lock()
	second := client.subs[1]
	client.mu.Unlock()

	second.heads <- blockchain.Head{Number: 400}

	block := waitForBlock(t, feed.Events())
	assert.Equal(t, uint64(400), block.Number)
}

func TestSubscriptionFeedStartFailsWithoutConnection(t *testing.T) {
	client := newFakeClient()
	client.subErr = errors.New("dial refused")

	feed := NewSubscriptionFeed(client)
	assert.Error(t, feed.Start())
}

func TestSubscriptionFeedStopIsIdempotent(t *testing.T) {
	client := newFakeClient()

	feed := NewSubscriptionFeed(client)
	require.NoError(t, feed.Start())

	feed.Stop()
	feed.Stop()

	_, ok := <-feed.Events()
	assert.False(t, ok, "event channel should be closed after stop")
	assert.True(t, client.subs[0].isUnsubscribed())
}
