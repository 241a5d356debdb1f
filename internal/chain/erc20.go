package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/hyperlend-runner/internal/amount"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Balance returns the native balance when token is nil, otherwise the ERC-20 balance.
func (c *Client) Balance(ctx context.Context, token *common.Address) (amount.TokenAmount, error) {
	if token == nil {
		var bal *big.Int
		err := c.read(ctx, "eth_getBalance", func(ctx context.Context) error {
			var err error
			bal, err = c.backend.BalanceAt(ctx, c.addr, nil)
			return err
		})
		if err != nil {
			return amount.TokenAmount{}, fmt.Errorf("native balance: %w", err)
		}
		return amount.FromRaw(bal, amount.NativeDecimals), nil
	}
	dec, err := c.tokenDecimals(ctx, *token)
	if err != nil {
		return amount.TokenAmount{}, err
	}
	raw, err := c.callUint(ctx, *token, "balanceOf", c.addr)
	if err != nil {
		return amount.TokenAmount{}, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return amount.FromRaw(raw, dec), nil
}

// Allowance returns how much spender may pull from this wallet.
func (c *Client) Allowance(ctx context.Context, token, spender common.Address) (amount.TokenAmount, error) {
	dec, err := c.tokenDecimals(ctx, token)
	if err != nil {
		return amount.TokenAmount{}, err
	}
	raw, err := c.callUint(ctx, token, "allowance", c.addr, spender)
	if err != nil {
		return amount.TokenAmount{}, fmt.Errorf("allowance %s: %w", token.Hex(), err)
	}
	return amount.FromRaw(raw, dec), nil
}

// Approve submits approve(spender, value). unlimited approves 2^256-1.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amt amount.TokenAmount, unlimited bool) (*types.Transaction, error) {
	value := amt.Raw()
	if unlimited {
		value = MaxUint256()
	}
	data, err := erc20ABI.Pack("approve", spender, value)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return c.SignAndSend(ctx, TxRequest{To: token, Data: data})
}

func (c *Client) tokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	c.mu.Lock()
	dec, ok := c.decimals[token]
	c.mu.Unlock()
	if ok {
		return dec, nil
	}
	raw, err := c.callUint(ctx, token, "decimals")
	if err != nil {
		return 0, fmt.Errorf("decimals %s: %w", token.Hex(), err)
	}
	if !raw.IsInt64() || raw.Int64() > 77 {
		return 0, fmt.Errorf("decimals %s: implausible value %s", token.Hex(), raw)
	}
	dec = int32(raw.Int64())
	c.mu.Lock()
	c.decimals[token] = dec
	c.mu.Unlock()
	return dec, nil
}

// callUint performs an eth_call and unpacks a single integer output.
func (c *Client) callUint(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	var ret []byte
	err = c.read(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		ret, err = c.backend.CallContract(ctx, ethereum.CallMsg{From: c.addr, To: &token, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("empty return data (no contract at %s?)", token.Hex())
	}
	out, err := erc20ABI.Unpack(method, ret)
	if err != nil {
		return nil, err
	}
	switch v := out[0].(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return big.NewInt(int64(v)), nil
	default:
		return nil, fmt.Errorf("unexpected %s output %T", method, out[0])
	}
}
