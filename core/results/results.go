// Package results collects the confirmation measurements produced during a
// run and handles the aggregation used for the final report. Entries are
// appended in confirmation order, which is not necessarily submission order.
package results

import (
	"sort"
	"sync"
	"time"
)

// Confirmation is the measurement recorded for one confirmed transaction.
type Confirmation struct {
	TransactionHash         string    `json:"txHash"`
	SentBlockNumber         uint64    `json:"sentBlock"`
	ConfirmedBlockNumber    uint64    `json:"confirmedBlock"`
	BlocksToConfirm         uint64    `json:"blocksToConfirm"`
	ConfirmationTimeMs      float64   `json:"confirmationTimeMs"`
	GasUsed                 uint64    `json:"gasUsed"`
	EffectiveFeeRate        uint64    `json:"effectiveFeeRate"`
	SentBlockTimestamp      uint64    `json:"sentBlockTimestamp"`
	ConfirmedBlockTimestamp uint64    `json:"confirmedBlockTimestamp"`
	SentAt                  time.Time `json:"sentAt"`
}

// Collector is the append-only sequence of confirmations for one run. It is
// written by the confirmation monitor and read by the reporting layer, so
// all access is serialized.
type Collector struct {
	mu            sync.Mutex
	confirmations []Confirmation
}

func NewCollector() *Collector {
	return &Collector{
		confirmations: make([]Confirmation, 0),
	}
}

// Add appends one confirmation in observation order.
func (c *Collector) Add(conf Confirmation) {
	c.mu.Lock()
	c.confirmations = append(c.confirmations, conf)
	c.mu.Unlock()
}

// Count returns the number of confirmations recorded so far.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.confirmations)
}

// Snapshot returns a copy of all confirmations recorded so far.
func (c *Collector) Snapshot() []Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Confirmation, len(c.confirmations))
	copy(out, c.confirmations)
	return out
}

// Summary stores the calculated information over all confirmations
// (e.g. max, min, median latency).
type Summary struct {
	Count         int
	AverageMs     float64
	MinMs         float64
	MaxMs         float64
	MedianMs      float64
	AverageBlocks float64
	MaxBlocks     uint64
	TotalGasUsed  uint64
}

// Summarize calculates the aggregated view of all recorded confirmations.
func (c *Collector) Summarize() Summary {
	all := c.Snapshot()

	if len(all) == 0 {
		return Summary{}
	}

	var averageMs float64
	var averageBlocks float64
	var totalGas uint64
	var maxBlocks uint64

	latencies := make([]float64, 0, len(all))

	for _, conf := range all {
		latencies = append(latencies, conf.ConfirmationTimeMs)
		averageMs += conf.ConfirmationTimeMs
		averageBlocks += float64(conf.BlocksToConfirm)
		totalGas += conf.GasUsed

		if conf.BlocksToConfirm > maxBlocks {
			maxBlocks = conf.BlocksToConfirm
		}
	}

	sort.Float64s(latencies)

	averageMs = averageMs / float64(len(all))
	averageBlocks = averageBlocks / float64(len(all))

	var medianMs float64
	midNumber := len(latencies) / 2
	if len(latencies)%2 == 0 {
		medianMs = (latencies[midNumber-1] + latencies[midNumber]) / 2
	} else {
		medianMs = latencies[midNumber]
	}

	return Summary{
		Count:         len(all),
		AverageMs:     averageMs,
		MinMs:         latencies[0],
		MaxMs:         latencies[len(latencies)-1],
		MedianMs:      medianMs,
		AverageBlocks: averageBlocks,
		MaxBlocks:     maxBlocks,
		TotalGasUsed:  totalGas,
	}
}
