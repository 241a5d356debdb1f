package tasks

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/hyperlend-runner/internal/amount"
	"github.com/ligun0805/hyperlend-runner/internal/captcha"
	"github.com/ligun0805/hyperlend-runner/internal/chain"
	"github.com/ligun0805/hyperlend-runner/internal/faucet"
	"github.com/ligun0805/hyperlend-runner/internal/logging"
	"github.com/ligun0805/hyperlend-runner/internal/retry"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

// ChainClient is what operations need from the wallet's chain connection.
type ChainClient interface {
	Address() common.Address
	Balance(ctx context.Context, token *common.Address) (amount.TokenAmount, error)
	Allowance(ctx context.Context, token, spender common.Address) (amount.TokenAmount, error)
	Approve(ctx context.Context, token, spender common.Address, amt amount.TokenAmount, unlimited bool) (*types.Transaction, error)
	SignAndSend(ctx context.Context, req chain.TxRequest) (*types.Transaction, error)
	WaitForReceipt(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error)
}

type CaptchaSolver interface {
	Solve(ctx context.Context, ch captcha.Challenge) (captcha.Solution, error)
}

type FaucetAPI interface {
	Claim(ctx context.Context, user common.Address, challengeToken string) (faucet.Reply, error)
}

var (
	_ ChainClient   = (*chain.Client)(nil)
	_ CaptchaSolver = (*captcha.Solver)(nil)
	_ FaucetAPI     = (*faucet.Client)(nil)
)

type Config struct {
	FaucetPageURL string
	FaucetSiteKey string
	// TokenFaucet is the MBTC faucet contract; zero when not configured.
	TokenFaucet common.Address
	MBTC        common.Address

	ReceiptTimeout   time.Duration
	ApproveUnlimited bool
	// ClaimPolicy wraps captcha solve + faucet claim as one attempt.
	ClaimPolicy retry.Policy
}

// Deps are the per-wallet collaborators.
type Deps struct {
	Chain  ChainClient
	Solver CaptchaSolver
	Faucet FaucetAPI
	Proxy  *wallet.ProxyConfig
}

// Operations runs the task set for one wallet. Steps run strictly in order.
type Operations struct {
	deps Deps
	cfg  Config
	log  logrus.FieldLogger
}

func New(deps Deps, cfg Config, log logrus.FieldLogger) *Operations {
	if log == nil {
		log = logging.Discard()
	}
	return &Operations{deps: deps, cfg: cfg, log: log}
}

// submit signs, broadcasts and waits for one transaction.
func (o *Operations) submit(ctx context.Context, step string, req chain.TxRequest) Result {
	tx, err := o.deps.Chain.SignAndSend(ctx, req)
	if err != nil {
		return failure(step, err)
	}
	hash := tx.Hash()
	o.log.WithField("tx", hash.Hex()).Infof("%s: transaction sent", step)

	r, err := o.deps.Chain.WaitForReceipt(ctx, tx, o.cfg.ReceiptTimeout)
	if err != nil {
		return withTx(failure(step, err), hash)
	}
	o.log.WithFields(logrus.Fields{"tx": hash.Hex(), "block": r.BlockNumber}).Infof("%s: confirmed", step)
	return withTx(done(Success, "%s confirmed in block %v", step, r.BlockNumber), hash)
}
