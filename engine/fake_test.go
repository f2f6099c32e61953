package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/danielNg25/block-reaction/blockchain"
	"github.com/danielNg25/block-reaction/core/configs"
)

// fakeSubscription is a scripted head subscription.
type fakeSubscription struct {
	heads chan blockchain.Head
	errc  chan error

	mu       sync.Mutex
	unsubbed bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		heads: make(chan blockchain.Head, 16),
		errc:  make(chan error, 1),
	}
}

func (s *fakeSubscription) Heads() <-chan blockchain.Head { return s.heads }
func (s *fakeSubscription) Err() <-chan error             { return s.errc }

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	s.unsubbed = true
	s.mu.Unlock()
}

func (s *fakeSubscription) isUnsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubbed
}

type fakeSubmission struct {
	to       string
	amount   uint64
	gasLimit uint64
	feeRate  *big.Int
	sequence uint64
	hash     string
}

// fakeClient is a scripted, deterministic chain client.
type fakeClient struct {
	mu sync.Mutex

	height   uint64
	blocks   map[uint64]blockchain.Block
	blockErr map[uint64]error

	feeRate  uint64
	feeErr   error
	feeCalls int

	sequence uint64
	seqErr   error
	seqCalls int

	submitErr   error
	submitted   []fakeSubmission
	submitCalls int

	receipts   map[string]*blockchain.Receipt
	receiptErr map[string]error

	subErr   error
	subs     []*fakeSubscription
	subCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		blocks:     make(map[uint64]blockchain.Block),
		blockErr:   make(map[uint64]error),
		feeRate:    1000000000,
		receipts:   make(map[string]*blockchain.Receipt),
		receiptErr: make(map[string]error),
	}
}

// addBlock scripts one block and advances the chain height to it.
func (f *fakeClient) addBlock(number uint64, timestamp uint64) blockchain.Block {
	f.mu.Lock()
	defer f.mu.Unlock()

	block := blockchain.Block{
		Number:    number,
		Hash:      fmt.Sprintf("0xblock%d", number),
		Timestamp: timestamp,
	}
	f.blocks[number] = block

	if number > f.height {
		f.height = number
	}

	return block
}

func (f *fakeClient) addReceipt(hash string, blockNumber uint64, gasUsed uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.receipts[hash] = &blockchain.Receipt{
		TransactionHash: hash,
		BlockNumber:     blockNumber,
		GasUsed:         gasUsed,
		Succeeded:       true,
	}
}

func (f *fakeClient) lastSubmitted(t *testing.T) fakeSubmission {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.submitted) == 0 {
		t.Fatal("no submissions recorded")
	}

	return f.submitted[len(f.submitted)-1]
}

func (f *fakeClient) SubscribeNewHeads(ctx context.Context) (blockchain.HeadSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subCalls++
	if f.subErr != nil {
		return nil, f.subErr
	}

	sub := newFakeSubscription()
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeClient) BlockHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

func (f *fakeClient) BlockByNumber(ctx context.Context, number uint64) (blockchain.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.blockErr[number]; err != nil {
		return blockchain.Block{}, err
	}

	block, ok := f.blocks[number]
	if !ok {
		return blockchain.Block{}, fmt.Errorf("no block %d", number)
	}

	return block, nil
}

func (f *fakeClient) FeeRate(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.feeCalls++
	if f.feeErr != nil {
		return nil, f.feeErr
	}

	return new(big.Int).SetUint64(f.feeRate), nil
}

func (f *fakeClient) AccountSequence(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seqCalls++
	if f.seqErr != nil {
		return 0, f.seqErr
	}

	return f.sequence, nil
}

func (f *fakeClient) SubmitTransfer(ctx context.Context, to string, amountWei uint64, gasLimit uint64, feeRate *big.Int, sequence uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}

	hash := fmt.Sprintf("0xtx%d", len(f.submitted))
	f.submitted = append(f.submitted, fakeSubmission{
		to:       to,
		amount:   amountWei,
		gasLimit: gasLimit,
		feeRate:  feeRate,
		sequence: sequence,
		hash:     hash,
	})

	return hash, nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, hash string) (*blockchain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.receiptErr[hash]; err != nil {
		return nil, err
	}

	return f.receipts[hash], nil
}

// stubFeed satisfies BlockFeed for tests that drive the engine by calling
// handleBlock directly.
type stubFeed struct {
	mu      sync.Mutex
	stopped bool
	events  chan blockchain.Block
}

func newStubFeed() *stubFeed {
	return &stubFeed{events: make(chan blockchain.Block)}
}

func (s *stubFeed) Start() error { return nil }

func (s *stubFeed) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *stubFeed) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *stubFeed) Events() <-chan blockchain.Block { return s.events }

func testConfig(budget, skip uint64) *configs.Config {
	return &configs.Config{
		HTTPEndpoint:   "http://127.0.0.1:8545",
		WSEndpoint:     "ws://127.0.0.1:8546",
		PrivateKey:     "f5981d1c9cbdc1e0e570d19d833e0db96af31d3b65f6b67f8e5b2ab7afc5ffc8",
		Recipient:      "0x27c40e0fc653679a205754ca76f3371ec127baba",
		GasLimit:       21000,
		DefaultFeeRate: 1000000000,
		BlocksToSkip:   skip,
		Budget:         budget,
		FeedMode:       configs.FeedModePoll,
		PollIntervalMs: 5,
		AmountWei:      1,
		DrainTimeoutS:  1,
	}
}

// waitForBlock reads one event from a feed with a deadline.
func waitForBlock(t *testing.T, events <-chan blockchain.Block) blockchain.Block {
	t.Helper()

	select {
	case block, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return block
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for block event")
	}

	return blockchain.Block{}
}
