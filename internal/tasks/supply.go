package tasks

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/hyperlend-runner/internal/amount"
	"github.com/ligun0805/hyperlend-runner/internal/chain"
)

const (
	// supply(address asset, uint256 amount, address onBehalfOf, uint16 referralCode)
	SelectorSupply = "0x617ba037"
	// depositETH(address pool, address onBehalfOf, uint16 referralCode)
	SelectorDepositETH = "0x474cf53d"
)

// Market is one supply destination.
// ERC-20 markets approve Asset to Target and call supply on the pool.
// Native markets send value to the gateway at Target, passing Asset as the pool.
type Market struct {
	Symbol   string
	Native   bool
	Asset    common.Address
	Target   common.Address
	Decimals int32
}

// Calldata encodes the supply call for amt on behalf of onBehalf and the
// value to attach.
func (m Market) Calldata(amt amount.TokenAmount, onBehalf common.Address) ([]byte, *big.Int, error) {
	if m.Native {
		data, err := chain.EncodeCall(SelectorDepositETH, m.Asset, onBehalf, uint16(0))
		return data, amt.Raw(), err
	}
	data, err := chain.EncodeCall(SelectorSupply, m.Asset, amt.Raw(), onBehalf, uint16(0))
	return data, big.NewInt(0), err
}

// Supply deposits amt into the market. Nothing is sent unless the wallet has
// gas money and enough of the asset; ERC-20 markets get their allowance first.
func (o *Operations) Supply(ctx context.Context, m Market, amt amount.TokenAmount) Result {
	step := "supply " + m.Symbol
	addr := o.deps.Chain.Address()
	log := o.log.WithField("market", m.Symbol)

	native, err := o.deps.Chain.Balance(ctx, nil)
	if err != nil {
		return failure(step, err)
	}
	if native.IsZero() {
		return done(InsufficientFunds, "%s: no HYPE for gas", step)
	}

	if m.Native {
		if native.Cmp(amt) < 0 {
			return done(InsufficientFunds, "%s: balance %s < amount %s", step, native.Format(6), amt)
		}
	} else {
		bal, err := o.deps.Chain.Balance(ctx, &m.Asset)
		if err != nil {
			return failure(step, err)
		}
		if bal.Decimals() != amt.Decimals() {
			return done(FatalFailure, "%s: token has %d decimals, amount has %d", step, bal.Decimals(), amt.Decimals())
		}
		if bal.Cmp(amt) < 0 {
			return done(InsufficientFunds, "%s: balance %s < amount %s", step, bal.Format(6), amt)
		}
		if !o.EnsureApproval(ctx, m.Asset, m.Target, &amt) {
			return done(FatalFailure, "%s: approval failed", step)
		}
	}

	data, value, err := m.Calldata(amt, addr)
	if err != nil {
		return done(FatalFailure, "%s: encode: %v", step, err)
	}
	log.Infof("%s: supplying %s", step, amt)
	return o.submit(ctx, step, chain.TxRequest{To: m.Target, Data: data, Value: value})
}

// EnsureApproval makes sure spender may pull amt of token (the full balance
// when amt is nil). It approves only when the current allowance is short and
// reports every failure as false.
func (o *Operations) EnsureApproval(ctx context.Context, token, spender common.Address, amt *amount.TokenAmount) bool {
	log := o.log.WithFields(logrus.Fields{"token": token.Hex(), "spender": spender.Hex()})

	bal, err := o.deps.Chain.Balance(ctx, &token)
	if err != nil {
		log.Errorf("approve: balance: %v", err)
		return false
	}
	if bal.IsZero() {
		log.Warn("approve: token balance is zero")
		return false
	}
	want := bal
	if amt != nil {
		if amt.Cmp(bal) > 0 {
			log.Warnf("approve: amount %s exceeds balance %s", amt, bal)
			return false
		}
		want = *amt
	}

	allowance, err := o.deps.Chain.Allowance(ctx, token, spender)
	if err != nil {
		log.Errorf("approve: allowance: %v", err)
		return false
	}
	if allowance.Cmp(want) >= 0 {
		log.Debugf("approve: allowance %s already covers %s", allowance, want)
		return true
	}

	tx, err := o.deps.Chain.Approve(ctx, token, spender, want, o.cfg.ApproveUnlimited)
	if err != nil {
		log.Errorf("approve: %v", err)
		return false
	}
	log = log.WithField("tx", tx.Hash().Hex())
	if _, err := o.deps.Chain.WaitForReceipt(ctx, tx, o.cfg.ReceiptTimeout); err != nil {
		log.Errorf("approve: %v", err)
		return false
	}
	log.Info("approve: confirmed")
	return true
}

// Balances logs the wallet's HYPE and MBTC holdings.
func (o *Operations) Balances(ctx context.Context) Result {
	const step = "balances"
	native, err := o.deps.Chain.Balance(ctx, nil)
	if err != nil {
		return Result{Status: TransientFailure, Message: fmt.Sprintf("%s: %v", step, err), Err: err}
	}
	mbtc, err := o.deps.Chain.Balance(ctx, &o.cfg.MBTC)
	if err != nil {
		return Result{Status: TransientFailure, Message: fmt.Sprintf("%s: %v", step, err), Err: err}
	}
	msg := fmt.Sprintf("HYPE=%s MBTC=%s", native.Format(6), mbtc.Format(6))
	o.log.Info(msg)
	return done(Success, "%s", msg)
}
