package configs

// FeedMode selects how new blocks are observed.
type FeedMode string

const (
	// FeedModeSubscribe listens on a persistent websocket subscription.
	FeedModeSubscribe FeedMode = "subscribe"
	// FeedModePoll polls the chain height and replays the gap.
	FeedModePoll FeedMode = "poll"
)

// Config contains all the information for one benchmark run. It is parsed
// once at startup, validated, and treated as immutable afterwards.
type Config struct {
	WSEndpoint     string   `yaml:"ws_endpoint"`      // Websocket endpoint, required for the subscribe feed
	HTTPEndpoint   string   `yaml:"http_endpoint"`    // HTTP endpoint used for queries and submission
	PrivateKey     string   `yaml:"private_key"`      // Hex-encoded signing key of the sending account
	Recipient      string   `yaml:"recipient"`        // Address receiving the transfers
	GasLimit       uint64   `yaml:"gas_limit"`        // Gas limit for each transfer
	DefaultFeeRate uint64   `yaml:"default_fee_rate"` // Floor for the fee rate (wei per gas unit)
	BlocksToSkip   uint64   `yaml:"blocks_to_skip"`   // Blocks discarded before the first dispatch
	Budget         uint64   `yaml:"budget"`           // Number of transactions to submit (1-10)
	FeedMode       FeedMode `yaml:"feed_mode"`        // "subscribe" or "poll"
	PollIntervalMs uint64   `yaml:"poll_interval_ms"` // Height poll interval for the poll feed
	AmountWei      uint64   `yaml:"amount_wei"`       // Value carried by each transfer
	MetricsAddr    string   `yaml:"metrics_addr"`     // Prometheus listen address, empty disables
	DrainTimeoutS  uint64   `yaml:"drain_timeout_s"`  // How long to wait for pending confirmations on interrupt
}

// Limits on the transaction budget for a single run.
const (
	MinBudget uint64 = 1
	MaxBudget uint64 = 10
)
