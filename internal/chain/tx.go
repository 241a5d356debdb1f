package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// TxRequest is a contract call to sign and broadcast.
type TxRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Build EIP-1559 transaction.
func buildDynamicTx(chain *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	df := &types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	}
	return types.NewTx(df)
}

// Sign transaction with latest signer for given chain ID.
func signTx(tx *types.Transaction, chain *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chain)
	return types.SignTx(tx, signer, prv)
}

// SignAndSend estimates gas, prices the transaction, signs it and broadcasts it once.
// A revert during estimation comes back as an error carrying the revert reason.
func (c *Client) SignAndSend(ctx context.Context, req TxRequest) (*types.Transaction, error) {
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := req.To

	var nonce uint64
	err := c.read(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var err error
		nonce, err = c.backend.PendingNonceAt(ctx, c.addr)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	var gas uint64
	msg := ethereum.CallMsg{From: c.addr, To: &to, Value: value, Data: req.Data}
	err = c.read(ctx, "eth_estimateGas", func(ctx context.Context) error {
		var err error
		gas, err = c.backend.EstimateGas(ctx, msg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = withBuffer(gas, c.opts.BufferPct)

	tip, feeCap, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	tx := buildDynamicTx(c.chainID, nonce, &to, value, gas, tip, feeCap, req.Data)
	signed, err := signTx(tx, c.chainID, c.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	err = c.backend.SendTransaction(ctx, signed)
	c.observe("eth_sendRawTransaction", err)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"tx":    signed.Hash().Hex(),
		"to":    to.Hex(),
		"nonce": nonce,
		"gas":   gas,
		"tip":   fmtGwei(tip),
		"max":   fmtGwei(feeCap),
	}).Debug("transaction broadcast")
	return signed, nil
}
