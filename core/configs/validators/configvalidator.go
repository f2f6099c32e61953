package validators

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/danielNg25/block-reaction/core/configs"
)

// Validates all fields of the run configuration.
// Any problem found here is fatal: the engine is never started with a
// configuration that failed validation.
func ValidateConfig(c *configs.Config) error {
	if len(c.HTTPEndpoint) == 0 {
		return errors.New("missing http endpoint")
	}

	switch c.FeedMode {
	case configs.FeedModeSubscribe:
		if len(c.WSEndpoint) == 0 {
			return errors.New("subscribe feed requires a websocket endpoint")
		}
	case configs.FeedModePoll:
		if c.PollIntervalMs == 0 {
			return errors.New("poll interval cannot be zero")
		}
	default:
		return fmt.Errorf("unknown feed mode: %q", c.FeedMode)
	}

	if len(c.PrivateKey) == 0 {
		return errors.New("missing private key")
	}

	if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x")); err != nil {
		return errors.Wrap(err, "invalid private key")
	}

	if !common.IsHexAddress(c.Recipient) {
		return fmt.Errorf("invalid recipient address: %q", c.Recipient)
	}

	if c.GasLimit == 0 {
		return errors.New("gas limit must be greater than zero")
	}

	if c.DefaultFeeRate == 0 {
		return errors.New("default fee rate must be greater than zero")
	}

	if c.Budget < configs.MinBudget || c.Budget > configs.MaxBudget {
		return fmt.Errorf("budget %d out of range [%d, %d]",
			c.Budget, configs.MinBudget, configs.MaxBudget)
	}

	if c.AmountWei == 0 {
		return errors.New("transfer amount must be greater than zero")
	}

	return nil
}
