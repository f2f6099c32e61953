// Package blockchain provides the chain-client capability the engine is
// built on: block subscription and retrieval, fee-rate and account-sequence
// queries, signed-transfer submission and receipt lookup.
package blockchain

import (
	"context"
	"math/big"
)

// Block is the feed-facing view of one chain block.
type Block struct {
	Number            uint64   // Height of the block
	Hash              string   // Block hash
	Timestamp         uint64   // Unix timestamp (seconds) of the block
	TransactionHashes []string // Hashes of every transaction in the block
}

// Head is one raw new-block notification delivered by a subscription. The
// feed resolves it into a full Block before handing it downstream.
type Head struct {
	Number uint64
	Hash   string
}

// Receipt confirms a transaction's inclusion and resource consumption.
type Receipt struct {
	TransactionHash string
	BlockNumber     uint64
	GasUsed         uint64
	Succeeded       bool
}

// HeadSubscription is a persistent stream of new-block notifications.
type HeadSubscription interface {
	// Heads delivers notifications in the order the node pushed them.
	Heads() <-chan Head

	// Err reports a terminal subscription failure. After a receive on this
	// channel the subscription is dead and must be re-established.
	Err() <-chan error

	// Unsubscribe tears the subscription down. Idempotent.
	Unsubscribe()
}

// Client is the capability the engine consumes. All methods block on network
// I/O and honour context cancellation. The sending account is fixed per
// client instance (it owns the signing key), so the sequence query does not
// take an address.
type Client interface {
	// SubscribeNewHeads opens a persistent new-block subscription.
	SubscribeNewHeads(ctx context.Context) (HeadSubscription, error)

	// BlockHeight returns the current chain height.
	BlockHeight(ctx context.Context) (uint64, error)

	// BlockByNumber fetches the block at the given height.
	BlockByNumber(ctx context.Context, number uint64) (Block, error)

	// FeeRate returns the current fee rate (wei per gas unit).
	FeeRate(ctx context.Context) (*big.Int, error)

	// AccountSequence returns the next sequence number of the sending
	// account, including transactions still in the pool.
	AccountSequence(ctx context.Context) (uint64, error)

	// SubmitTransfer builds, signs and submits a value transfer, returning
	// the transaction hash the chain will know it by.
	SubmitTransfer(ctx context.Context, to string, amountWei uint64, gasLimit uint64, feeRate *big.Int, sequence uint64) (string, error)

	// TransactionReceipt looks up the receipt for a transaction hash. A nil
	// receipt with a nil error means the transaction is not yet included.
	TransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
}
