// Package engine implements the reactive core: it consumes new-block events,
// submits value transfers built from cached chain parameters, and measures
// how long each transfer takes to confirm.
package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/danielNg25/block-reaction/blockchain"
)

// Time-to-live windows for the cached transaction parameters. The fee rate
// drifts with network load so it expires quickly; the account sequence is
// advanced locally after every submission and only needs an occasional
// network reconciliation.
const (
	feeRateTTL  = 30 * time.Second
	sequenceTTL = 60 * time.Second
)

// cachedValue is one TTL cache cell. A cell is valid while the time since
// the last refresh is within the ttl; a local mutation of the value does not
// touch the timestamp, since staleness only governs replacement.
type cachedValue[T any] struct {
	value       T
	lastUpdated time.Time
	ttl         time.Duration
}

func (c *cachedValue[T]) valid(now time.Time) bool {
	return !c.lastUpdated.IsZero() && now.Sub(c.lastUpdated) < c.ttl
}

func (c *cachedValue[T]) set(value T, now time.Time) {
	c.value = value
	c.lastUpdated = now
}

// ParamCache serves the fee rate and account sequence used to build
// transfers, refreshing each from the chain client when its window expires.
// It is shared between the dispatch path and the background refresher, so
// every read-modify-write holds the lock.
type ParamCache struct {
	client blockchain.Client

	mu            sync.Mutex
	feeRate       cachedValue[*big.Int]
	sequence      cachedValue[uint64]
	sequenceKnown bool // The sequence cell held a fetched value at least once
}

func NewParamCache(client blockchain.Client) *ParamCache {
	return &ParamCache{
		client:   client,
		feeRate:  cachedValue[*big.Int]{ttl: feeRateTTL},
		sequence: cachedValue[uint64]{ttl: sequenceTTL},
	}
}

// FeeRate returns the cached fee rate, querying the chain client only when
// the cell is empty or expired. The returned flag reports whether the value
// was served from cache. A failed query surfaces the error; no stale value
// is substituted.
func (p *ParamCache) FeeRate(ctx context.Context) (*big.Int, bool, error) {
	p.mu.Lock()
	if p.feeRate.valid(time.Now()) {
		value := p.feeRate.value
		p.mu.Unlock()
		return value, true, nil
	}
	p.mu.Unlock()

	fetched, err := p.client.FeeRate(ctx)
	if err != nil {
		return nil, false, err
	}

	p.mu.Lock()
	p.feeRate.set(fetched, time.Now())
	p.mu.Unlock()

	return fetched, false, nil
}

// Sequence returns the cached account sequence, querying the chain client
// only when the cell is empty or expired. A fetched value never rolls the
// cell backward below a locally advanced one: submissions in flight have
// already consumed those slots.
func (p *ParamCache) Sequence(ctx context.Context) (uint64, bool, error) {
	p.mu.Lock()
	if p.sequence.valid(time.Now()) {
		value := p.sequence.value
		p.mu.Unlock()
		return value, true, nil
	}
	p.mu.Unlock()

	fetched, err := p.client.AccountSequence(ctx)
	if err != nil {
		return 0, false, err
	}

	p.mu.Lock()
	value := p.storeSequence(fetched)
	p.mu.Unlock()

	return value, false, nil
}

// AdvanceSequence increments the cached sequence after a successful
// submission, without touching the timestamp or the network. Safe to call on
// a cell that is stale by TTL, as long as it has ever held a fetched value.
func (p *ParamCache) AdvanceSequence() {
	p.mu.Lock()
	if p.sequenceKnown {
		p.sequence.value++
	}
	p.mu.Unlock()
}

// Refresh re-fetches both parameters unconditionally, bypassing the TTL
// check, so the next dispatch rarely pays the round trip itself.
func (p *ParamCache) Refresh(ctx context.Context) error {
	feeRate, err := p.client.FeeRate(ctx)
	if err != nil {
		return err
	}

	sequence, err := p.client.AccountSequence(ctx)
	if err != nil {
		return err
	}

	now := time.Now()

	p.mu.Lock()
	p.feeRate.set(feeRate, now)
	p.storeSequence(sequence)
	p.mu.Unlock()

	return nil
}

// storeSequence records a fetched sequence, keeping any higher locally
// advanced value. Caller holds the lock.
func (p *ParamCache) storeSequence(fetched uint64) uint64 {
	if p.sequenceKnown && p.sequence.value > fetched {
		fetched = p.sequence.value
	}

	p.sequence.set(fetched, time.Now())
	p.sequenceKnown = true

	return fetched
}
