package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/danielNg25/block-reaction/blockchain"
)

// handleBlock applies the per-block dispatch policy: count the block, honour
// the initial skip, stop the feed once the budget is exhausted, otherwise
// build and submit one transfer with the cached parameters. Block events are
// processed one at a time on the dispatch loop, so the read-then-advance of
// the sequence cache never races another dispatch.
func (e *Engine) handleBlock(ctx context.Context, block blockchain.Block) {
	seen := atomic.AddUint64(&e.blocksSeen, 1)
	e.metrics.BlocksSeen.Inc()

	zap.L().Debug("block observed",
		zap.Uint64("number", block.Number),
		zap.String("hash", block.Hash),
		zap.Int("transactions", len(block.TransactionHashes)))

	// Let the feed warm up past (re)connect jitter before reacting.
	if seen <= e.cfg.BlocksToSkip {
		zap.L().Debug("skipping warm-up block",
			zap.Uint64("number", block.Number),
			zap.Uint64("seen", seen),
			zap.Uint64("toSkip", e.cfg.BlocksToSkip))
		return
	}

	// Budget check before any parameter fetch, so a run that reaches its
	// budget exactly never pays one more round trip than necessary.
	if atomic.LoadUint64(&e.txSent) >= e.cfg.Budget {
		zap.L().Info("transaction budget reached, halting block feed",
			zap.Uint64("budget", e.cfg.Budget))
		e.Stop()
		return
	}

	feeRate, feeCached, err := e.cache.FeeRate(ctx)
	if err != nil {
		zap.L().Warn("dispatch aborted: fee rate fetch failed",
			zap.Uint64("block", block.Number),
			zap.Error(err))
		e.metrics.SubmissionErrors.Inc()
		return
	}

	sequence, seqCached, err := e.cache.Sequence(ctx)
	if err != nil {
		zap.L().Warn("dispatch aborted: sequence fetch failed",
			zap.Uint64("block", block.Number),
			zap.Error(err))
		e.metrics.SubmissionErrors.Inc()
		return
	}

	// Reserve the budget slot before the send completes.
	atomic.AddUint64(&e.txSent, 1)

	sentAt := time.Now()
	hash, err := e.client.SubmitTransfer(ctx, e.cfg.Recipient, e.cfg.AmountWei,
		e.cfg.GasLimit, feeRate, sequence)

	if err != nil {
		// Release the slot; the sequence was not consumed either.
		atomic.AddUint64(&e.txSent, ^uint64(0))
		e.metrics.SubmissionErrors.Inc()
		zap.L().Warn("transfer submission failed",
			zap.Uint64("block", block.Number),
			zap.Uint64("sequence", sequence),
			zap.Error(err))
		return
	}

	// The chain client accepted the submission, so the sequence slot is
	// consumed whether or not the transfer is later included.
	e.cache.AdvanceSequence()

	e.mu.Lock()
	e.pending[hash] = pendingTransaction{
		hash:               hash,
		sentBlockNumber:    block.Number,
		sentAt:             sentAt,
		sentBlockTimestamp: block.Timestamp,
		feeRate:            feeRate,
	}
	e.mu.Unlock()

	e.metrics.TransactionsSent.Inc()

	zap.L().Info("transfer submitted",
		zap.String("hash", hash),
		zap.Uint64("block", block.Number),
		zap.Uint64("sequence", sequence),
		zap.String("feeRate", feeRate.String()),
		zap.Bool("feeRateCached", feeCached),
		zap.Bool("sequenceCached", seqCached),
		zap.Uint64("sent", atomic.LoadUint64(&e.txSent)),
		zap.Uint64("budget", e.cfg.Budget))
}
