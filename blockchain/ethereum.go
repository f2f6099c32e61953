package blockchain

// This client is based off the examples:
// https://github.com/ethereum/go-ethereum/blob/master/rpc/client_example_test.go

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/danielNg25/block-reaction/core/configs"
)

// EthereumClient is the Ethereum implementation of the Client capability.
// Subscriptions run over the websocket connection; queries and submission go
// over HTTP so that a dropped subscription never takes the query path down
// with it.
type EthereumClient struct {
	wsClient   *ethclient.Client // Websocket connection, nil in poll mode
	httpClient *ethclient.Client // HTTP connection for queries and submission
	privateKey *ecdsa.PrivateKey // Signing key of the sending account
	sender     common.Address    // Address derived from the signing key
	chainID    *big.Int          // Chain ID for transaction signing
	feeFloor   *big.Int          // Minimum fee rate ever returned by FeeRate
}

// NewEthereumClient connects to the configured endpoints and discovers the
// chain ID. The websocket endpoint is only dialled when configured, so poll
// mode works against HTTP-only nodes.
func NewEthereumClient(ctx context.Context, conf *configs.Config) (*EthereumClient, error) {
	httpClient, err := ethclient.DialContext(ctx, conf.HTTPEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "cannot dial http endpoint")
	}

	var wsClient *ethclient.Client
	if conf.WSEndpoint != "" {
		wsClient, err = ethclient.DialContext(ctx, conf.WSEndpoint)
		if err != nil {
			return nil, errors.Wrap(err, "cannot dial websocket endpoint")
		}
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(conf.PrivateKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse private key")
	}

	chainID, err := httpClient.NetworkID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot query chain id")
	}

	sender := crypto.PubkeyToAddress(privateKey.PublicKey)

	zap.L().Info("blockchain client connected",
		zap.String("sender", sender.String()),
		zap.String("chainID", chainID.String()))

	return &EthereumClient{
		wsClient:   wsClient,
		httpClient: httpClient,
		privateKey: privateKey,
		sender:     sender,
		chainID:    chainID,
		feeFloor:   new(big.Int).SetUint64(conf.DefaultFeeRate),
	}, nil
}

// Sender returns the address of the signing account.
func (e *EthereumClient) Sender() string {
	return e.sender.String()
}

// headSubscription adapts an ethclient head subscription to the
// HeadSubscription contract, pumping decoded notifications until torn down.
type headSubscription struct {
	sub      ethereum.Subscription
	heads    chan Head
	quit     chan struct{}
	quitOnce sync.Once
}

func (h *headSubscription) Heads() <-chan Head {
	return h.heads
}

func (h *headSubscription) Err() <-chan error {
	return h.sub.Err()
}

func (h *headSubscription) Unsubscribe() {
	h.sub.Unsubscribe()
	h.quitOnce.Do(func() {
		close(h.quit)
	})
}

func (h *headSubscription) pump(raw <-chan *ethtypes.Header) {
	for {
		select {
		case <-h.quit:
			return
		case header := <-raw:
			if header == nil {
				continue
			}

			head := Head{
				Number: header.Number.Uint64(),
				Hash:   header.Hash().String(),
			}

			select {
			case h.heads <- head:
			case <-h.quit:
				return
			}
		}
	}
}

// SubscribeNewHeads opens a new-block subscription over the websocket
// connection.
func (e *EthereumClient) SubscribeNewHeads(ctx context.Context) (HeadSubscription, error) {
	if e.wsClient == nil {
		return nil, errors.New("no websocket connection configured")
	}

	raw := make(chan *ethtypes.Header, 64)

	sub, err := e.wsClient.SubscribeNewHead(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(err, "cannot subscribe to new heads")
	}

	hs := &headSubscription{
		sub:   sub,
		heads: make(chan Head, 64),
		quit:  make(chan struct{}),
	}
	go hs.pump(raw)

	return hs, nil
}

// BlockHeight returns the current chain height.
func (e *EthereumClient) BlockHeight(ctx context.Context) (uint64, error) {
	h, err := e.httpClient.HeaderByNumber(ctx, nil)

	if err != nil {
		return 0, err
	}

	return h.Number.Uint64(), nil
}

// BlockByNumber requests the block information by height.
func (e *EthereumClient) BlockByNumber(ctx context.Context, number uint64) (Block, error) {
	bigNumber := new(big.Int).SetUint64(number)

	b, err := e.httpClient.BlockByNumber(ctx, bigNumber)

	if err != nil {
		return Block{}, err
	}

	var txList []string
	for _, v := range b.Transactions() {
		txList = append(txList, v.Hash().String())
	}

	return Block{
		Number:            b.NumberU64(),
		Hash:              b.Hash().String(),
		Timestamp:         b.Time(),
		TransactionHashes: txList,
	}, nil
}

// FeeRate returns the node's suggested fee rate, clamped to the configured
// floor. Development nodes can suggest zero, which would produce transfers
// the pool rejects as underpriced.
func (e *EthereumClient) FeeRate(ctx context.Context) (*big.Int, error) {
	suggested, err := e.httpClient.SuggestGasPrice(ctx)

	if err != nil {
		return nil, err
	}

	if suggested.Cmp(e.feeFloor) < 0 {
		return new(big.Int).Set(e.feeFloor), nil
	}

	return suggested, nil
}

// AccountSequence returns the next sequence number for the sending account,
// including transactions still waiting in the pool.
func (e *EthereumClient) AccountSequence(ctx context.Context) (uint64, error) {
	return e.httpClient.PendingNonceAt(ctx, e.sender)
}

// SubmitTransfer builds and signs a value transfer with the given parameters
// and submits it, returning its hash.
func (e *EthereumClient) SubmitTransfer(ctx context.Context, to string, amountWei uint64, gasLimit uint64, feeRate *big.Int, sequence uint64) (string, error) {
	toConverted := common.HexToAddress(to)
	value := new(big.Int).SetUint64(amountWei)

	tx := ethtypes.NewTransaction(sequence, toConverted, value, gasLimit, feeRate, nil)

	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(e.chainID), e.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "cannot sign transfer")
	}

	if err = e.httpClient.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}

	return signedTx.Hash().String(), nil
}

// TransactionReceipt looks up the receipt for a transaction hash. An absent
// receipt is not an error: the transaction is simply not included yet.
func (e *EthereumClient) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	r, err := e.httpClient.TransactionReceipt(ctx, common.HexToHash(hash))

	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &Receipt{
		TransactionHash: hash,
		BlockNumber:     r.BlockNumber.Uint64(),
		GasUsed:         r.GasUsed,
		Succeeded:       r.Status == ethtypes.ReceiptStatusSuccessful,
	}, nil
}

// Close tears down the client connections.
func (e *EthereumClient) Close() {
	if e.wsClient != nil {
		e.wsClient.Close()
	}

	e.httpClient.Close()
}
