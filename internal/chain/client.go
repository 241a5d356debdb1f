package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ligun0805/hyperlend-runner/internal/logging"
	"github.com/ligun0805/hyperlend-runner/internal/retry"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

// Backend is the part of ethclient.Client the wallet client talks to.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

var _ Backend = (*ethclient.Client)(nil)

type Options struct {
	// ChainID skips the eth_chainId round trip when set.
	ChainID *big.Int
	// RPS caps requests per second for this wallet; 0 disables the limiter.
	RPS float64
	// Reads is applied to every read-only call. Broadcasts are never retried.
	Reads retry.Policy

	TipGwei     int64
	BasefeeMul  int64
	BufferPct   int64
	ReceiptPoll time.Duration
	HTTPTimeout time.Duration

	// OnCall observes each RPC round trip, e.g. for metrics.
	OnCall func(method string, err error)
	Log    logrus.FieldLogger
}

// Client signs and sends transactions for one wallet.
type Client struct {
	backend Backend
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID *big.Int
	limiter *rate.Limiter
	opts    Options
	log     logrus.FieldLogger

	mu       sync.Mutex
	decimals map[common.Address]int32
}

// Dial connects to rpcURL through the wallet's proxy (direct when nil).
func Dial(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, px *wallet.ProxyConfig, opts Options) (*Client, error) {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient, err := px.HTTPClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("rpc transport: %w", err)
	}
	rpcClient, err := rpc.DialHTTPWithClient(rpcURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c, err := New(ctx, ethclient.NewClient(rpcClient), key, opts)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an existing backend.
func New(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, opts Options) (*Client, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	if opts.BasefeeMul < 1 {
		opts.BasefeeMul = 2
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = 2 * time.Second
	}
	c := &Client{
		backend:  backend,
		key:      key,
		addr:     gethcrypto.PubkeyToAddress(key.PublicKey),
		opts:     opts,
		log:      opts.Log,
		decimals: map[common.Address]int32{},
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	if opts.ChainID != nil {
		c.chainID = new(big.Int).Set(opts.ChainID)
		return c, nil
	}
	err := c.read(ctx, "eth_chainId", func(ctx context.Context) error {
		id, err := backend.ChainID(ctx)
		c.chainID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return c, nil
}

func (c *Client) Address() common.Address { return c.addr }

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) Close() { c.backend.Close() }

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) observe(method string, err error) {
	if c.opts.OnCall != nil {
		c.opts.OnCall(method, err)
	}
}

// read runs one read-only RPC under the rate limiter and the read policy.
func (c *Client) read(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	return c.opts.Reads.Do(ctx, func(attempt int) error {
		if err := c.wait(ctx); err != nil {
			return retry.Terminal(err)
		}
		err := fn(ctx)
		c.observe(method, err)
		if err != nil && retry.IsTransient(err) {
			c.log.WithFields(logrus.Fields{"method": method, "attempt": attempt}).Debugf("rpc retry: %v", err)
		}
		return err
	})
}
