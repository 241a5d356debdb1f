package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// fees returns (tip, maxFee) with maxFee = baseFee*BasefeeMul + tip.
// The node's suggested tip is used when available, TipGwei otherwise.
func (c *Client) fees(ctx context.Context) (*big.Int, *big.Int, error) {
	baseFee, err := c.latestBaseFee(ctx)
	if err != nil {
		return nil, nil, err
	}
	tip := gweiToWei(c.opts.TipGwei)
	var suggested *big.Int
	err = c.read(ctx, "eth_maxPriorityFeePerGas", func(ctx context.Context) error {
		var err error
		suggested, err = c.backend.SuggestGasTipCap(ctx)
		return err
	})
	if err == nil && suggested != nil && suggested.Sign() > 0 {
		tip = suggested
	}
	feeCap := addBig(mulBig(baseFee, c.opts.BasefeeMul), tip)
	return tip, feeCap, nil
}

// Latest base fee.
func (c *Client) latestBaseFee(ctx context.Context) (*big.Int, error) {
	var h *types.Header
	err := c.read(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		h, err = c.backend.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	if h.BaseFee == nil {
		return nil, errors.New("no baseFee (pre-1559?)")
	}
	return new(big.Int).Set(h.BaseFee), nil
}

func withBuffer(gas uint64, pct int64) uint64 {
	if pct <= 0 {
		return gas
	}
	return gas + gas*uint64(pct)/100
}

func gweiToWei(g int64) *big.Int {
	x := new(big.Int).SetInt64(g)
	return x.Mul(x, big.NewInt(1_000_000_000))
}

func mulBig(a *big.Int, m int64) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(a, big.NewInt(m))
}

func addBig(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return new(big.Int).Add(a, b)
}

func fmtGwei(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), big.NewInt(1_000_000_000))
	return r.FloatString(2)
}
