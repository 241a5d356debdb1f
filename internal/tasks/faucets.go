package tasks

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/hyperlend-runner/internal/captcha"
	"github.com/ligun0805/hyperlend-runner/internal/chain"
	"github.com/ligun0805/hyperlend-runner/internal/faucet"
)

// SelectorClaim is claim() on the MBTC faucet.
const SelectorClaim = "0x4e71d92d"

// ClaimNativeFaucet claims HYPE from the web faucet. Wallets that already hold
// HYPE are skipped without touching the captcha service or the faucet.
func (o *Operations) ClaimNativeFaucet(ctx context.Context) Result {
	const step = "hype faucet"
	addr := o.deps.Chain.Address()

	bal, err := o.deps.Chain.Balance(ctx, nil)
	if err != nil {
		return failure(step, err)
	}
	if !bal.IsZero() {
		o.log.Infof("%s: balance %s HYPE, skipping", step, bal.Format(6))
		return done(AlreadyDone, "balance %s HYPE", bal.Format(6))
	}

	var reply faucet.Reply
	err = o.cfg.ClaimPolicy.Do(ctx, func(attempt int) error {
		log := o.log.WithField("attempt", attempt)
		sol, err := o.deps.Solver.Solve(ctx, captcha.Challenge{
			SiteURL: o.cfg.FaucetPageURL,
			SiteKey: o.cfg.FaucetSiteKey,
			Proxy:   o.deps.Proxy,
		})
		if err != nil {
			log.Warnf("%s: captcha: %v", step, err)
			return fmt.Errorf("captcha: %w", err)
		}
		reply, err = o.deps.Faucet.Claim(ctx, addr, sol.Token)
		if err != nil {
			log.Warnf("%s: claim: %v", step, err)
			return err
		}
		return nil
	})
	if err != nil {
		return failure(step, err)
	}

	switch reply.Outcome {
	case faucet.Claimed:
		if after, err := o.deps.Chain.Balance(ctx, nil); err == nil {
			o.log.Infof("%s: claimed, balance now %s HYPE", step, after.Format(6))
		} else {
			o.log.Infof("%s: claimed", step)
		}
		return done(Success, "claimed")
	case faucet.AlreadyClaimed:
		o.log.Infof("%s: already claimed", step)
		return done(AlreadyDone, "already claimed")
	default:
		return done(FatalFailure, "%s: unexpected response %s", step, reply.Body)
	}
}

// ClaimTokenFaucet calls claim() on the MBTC faucet contract.
func (o *Operations) ClaimTokenFaucet(ctx context.Context) Result {
	const step = "mbtc faucet"
	if o.cfg.TokenFaucet == (common.Address{}) {
		return done(FatalFailure, "%s: faucet address is not configured", step)
	}
	data, err := chain.EncodeCall(SelectorClaim)
	if err != nil {
		return failure(step, err)
	}
	res := o.submit(ctx, step, chain.TxRequest{To: o.cfg.TokenFaucet, Data: data})
	if res.Status == AlreadyDone {
		o.log.Infof("%s: already claimed", step)
	}
	return res
}
