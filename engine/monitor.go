package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danielNg25/block-reaction/blockchain"
	"github.com/danielNg25/block-reaction/core/results"
)

// How often pending transfers are checked for a receipt.
const confirmationInterval = 2 * time.Second

// monitorLoop polls each pending transfer for a receipt on a fixed interval
// until the run is cancelled.
func (e *Engine) monitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.confirmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.checkPending(ctx)
		}
	}
}

// checkPending looks up a receipt for every transfer pending at the start of
// the tick. A lookup failure for one hash is retried next tick and never
// aborts the tick for the others.
func (e *Engine) checkPending(ctx context.Context) {
	e.mu.Lock()
	snapshot := make([]pendingTransaction, 0, len(e.pending))
	for _, p := range e.pending {
		snapshot = append(snapshot, p)
	}
	e.mu.Unlock()

	for _, p := range snapshot {
		receipt, err := e.client.TransactionReceipt(ctx, p.hash)
		if err != nil {
			zap.L().Debug("receipt lookup failed",
				zap.String("hash", p.hash),
				zap.Error(err))
			continue
		}

		if receipt == nil {
			// Still pending.
			continue
		}

		e.confirm(ctx, p, receipt)
	}

	if uint64(e.results.Count()) >= e.cfg.Budget {
		e.completeOnce.Do(func() {
			zap.L().Info("all budgeted transfers confirmed",
				zap.Uint64("budget", e.cfg.Budget))
			close(e.completed)
		})
	}
}

// confirm retires one pending transfer into the metrics sequence.
func (e *Engine) confirm(ctx context.Context, p pendingTransaction, receipt *blockchain.Receipt) {
	observedAt := time.Now()

	// The confirming block's timestamp is resolved for reporting only; a
	// failed lookup leaves it zero.
	var confirmedTimestamp uint64
	if confirmedBlock, err := e.client.BlockByNumber(ctx, receipt.BlockNumber); err != nil {
		zap.L().Warn("confirmed block lookup failed",
			zap.Uint64("number", receipt.BlockNumber),
			zap.Error(err))
	} else {
		confirmedTimestamp = confirmedBlock.Timestamp
	}

	e.mu.Lock()
	if _, ok := e.pending[p.hash]; !ok {
		// Already retired by an earlier tick.
		e.mu.Unlock()
		return
	}
	delete(e.pending, p.hash)
	e.mu.Unlock()

	confirmationTime := observedAt.Sub(p.sentAt)

	e.results.Add(results.Confirmation{
		TransactionHash:         p.hash,
		SentBlockNumber:         p.sentBlockNumber,
		ConfirmedBlockNumber:    receipt.BlockNumber,
		BlocksToConfirm:         receipt.BlockNumber - p.sentBlockNumber,
		ConfirmationTimeMs:      float64(confirmationTime.Milliseconds()),
		GasUsed:                 receipt.GasUsed,
		EffectiveFeeRate:        p.feeRate.Uint64(),
		SentBlockTimestamp:      p.sentBlockTimestamp,
		ConfirmedBlockTimestamp: confirmedTimestamp,
		SentAt:                  p.sentAt,
	})

	e.metrics.Confirmations.Inc()
	e.metrics.ConfirmationLatency.Observe(confirmationTime.Seconds())

	zap.L().Info("transfer confirmed",
		zap.String("hash", p.hash),
		zap.Uint64("sentBlock", p.sentBlockNumber),
		zap.Uint64("confirmedBlock", receipt.BlockNumber),
		zap.Uint64("blocksToConfirm", receipt.BlockNumber-p.sentBlockNumber),
		zap.Duration("confirmationTime", confirmationTime),
		zap.Bool("succeeded", receipt.Succeeded))
}
