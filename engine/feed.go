package engine

import (
	"github.com/danielNg25/block-reaction/blockchain"
)

// BlockFeed produces the ordered stream of newly observed blocks. Two
// implementations exist: SubscriptionFeed (push) and PollingFeed (pull).
// Both deliver the same event shape and apply no skip or budget logic, which
// belongs to the dispatch path.
type BlockFeed interface {
	// Start begins producing events. It fails only when the initial contact
	// with the chain cannot be established.
	Start() error

	// Stop halts the feed. Idempotent; the event channel is closed once the
	// feed has fully wound down.
	Stop()

	// Events delivers blocks in observation order. The pull variant
	// enforces increasing block numbers by sequential gap replay; the push
	// variant trusts the node's delivery order.
	Events() <-chan blockchain.Block
}
