package runner

import (
	"context"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/ligun0805/hyperlend-runner/internal/chain"
	"github.com/ligun0805/hyperlend-runner/internal/config"
	"github.com/ligun0805/hyperlend-runner/internal/faucet"
	"github.com/ligun0805/hyperlend-runner/internal/metrics"
	"github.com/ligun0805/hyperlend-runner/internal/retry"
	"github.com/ligun0805/hyperlend-runner/internal/tasks"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

// NewFactory dials a chain client and a faucet client through each wallet's
// own proxy. The captcha solver is shared; rec may be nil.
func NewFactory(st config.Settings, solver tasks.CaptchaSolver, rec *metrics.Recorder) Factory {
	return func(ctx context.Context, w wallet.WalletContext, log logrus.FieldLogger) (tasks.Deps, func(), error) {
		opts := chain.Options{
			ChainID:     big.NewInt(st.Chain.ChainID),
			RPS:         st.Chain.RPS,
			Reads:       readPolicy(st),
			TipGwei:     st.Chain.TipGwei,
			BasefeeMul:  st.Chain.BasefeeMul,
			BufferPct:   st.Chain.BufferPct,
			ReceiptPoll: st.Chain.ReceiptPoll(),
			Log:         log,
		}
		if rec != nil {
			opts.OnCall = rec.RPCCall
		}
		cl, err := chain.Dial(ctx, st.Chain.RPCURL, w.PrivateKey, w.Proxy, opts)
		if err != nil {
			return tasks.Deps{}, nil, err
		}
		fc, err := faucet.New(faucet.Config{
			URL:     st.Faucet.APIURL,
			Origin:  st.Faucet.Origin,
			Note:    st.Faucet.Note,
			Timeout: st.Faucet.Timeout(),
		}, w.Proxy)
		if err != nil {
			cl.Close()
			return tasks.Deps{}, nil, err
		}
		return tasks.Deps{Chain: cl, Solver: solver, Faucet: fc, Proxy: w.Proxy}, cl.Close, nil
	}
}

func readPolicy(st config.Settings) retry.Policy {
	return retry.Fixed(st.Chain.RPCAttempts, st.Chain.RPCDelay())
}
