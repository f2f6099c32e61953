package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingFeedReplaysGapInOrder(t *testing.T) {
	client := newFakeClient()
	client.addBlock(100, 1000)

	feed := NewPollingFeed(client, 5*time.Millisecond)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	// Three blocks arrive between two polls; all must be delivered, in
	// increasing order, none skipped.
	client.addBlock(101, 1010)
	client.addBlock(102, 1020)
	client.addBlock(103, 1030)

	for want := uint64(101); want <= 103; want++ {
		block := waitForBlock(t, feed.Events())
		assert.Equal(t, want, block.Number)
	}
}

func TestPollingFeedDoesNotDeliverBaselineBlock(t *testing.T) {
	client := newFakeClient()
	client.addBlock(100, 1000)

	feed := NewPollingFeed(client, 5*time.Millisecond)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	select {
	case block := <-feed.Events():
		t.Fatalf("unexpected delivery of block %d", block.Number)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPollingFeedRetriesFailedFetch(t *testing.T) {
	client := newFakeClient()
	client.addBlock(100, 1000)

	feed := NewPollingFeed(client, 5*time.Millisecond)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	client.mu.Lock()
	client.height = 101
	client.blockErr[101] = errors.New("node busy")
	client.mu.Unlock()

	// The failing block must not be skipped.
	select {
	case block := <-feed.Events():
		t.Fatalf("unexpected delivery of block %d", block.Number)
	case <-time.After(50 * time.Millisecond):
	}

	client.mu.Lock()
	delete(client.blockErr, 101)
	client.mu.Unlock()
	client.addBlock(101, 1010)

	block := waitForBlock(t, feed.Events())
	assert.Equal(t, uint64(101), block.Number)
}

func TestPollingFeedStopIsIdempotent(t *testing.T) {
	client := newFakeClient()
	client.addBlock(100, 1000)

	feed := NewPollingFeed(client, 5*time.Millisecond)
	require.NoError(t, feed.Start())

	feed.Stop()
	feed.Stop()

	_, ok := <-feed.Events()
	assert.False(t, ok, "event channel should be closed after stop")
}

func TestPollingFeedDefaultsInterval(t *testing.T) {
	feed := NewPollingFeed(newFakeClient(), 0)
	assert.Equal(t, defaultPollInterval, feed.interval)
}
