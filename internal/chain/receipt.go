package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/hyperlend-runner/internal/retry"
)

var ErrReceiptTimeout = errors.New("receipt not available before timeout")

// RevertError reports a mined transaction whose status is failed.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("tx %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

// WaitForReceipt polls until the transaction is mined or timeout elapses.
// A failed receipt is returned together with a *RevertError.
func (c *Client) WaitForReceipt(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error) {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ReceiptPoll)
	defer ticker.Stop()

	hash := tx.Hash()
	for {
		if err := c.wait(wctx); err == nil {
			r, err := c.backend.TransactionReceipt(wctx, hash)
			c.observe("eth_getTransactionReceipt", err)
			switch {
			case err == nil && r != nil:
				if r.Status == types.ReceiptStatusSuccessful {
					return r, nil
				}
				return r, &RevertError{TxHash: hash, Reason: c.replayRevert(ctx, tx, r)}
			case err == nil, errors.Is(err, ethereum.NotFound):
			case retry.IsTransient(err):
				c.log.WithField("tx", hash.Hex()).Debugf("receipt poll: %v", err)
			default:
				return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
			}
		}

		select {
		case <-wctx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrReceiptTimeout, hash.Hex(), timeout)
		case <-ticker.C:
		}
	}
}

// replayRevert re-executes the transaction at its block to recover the revert reason.
func (c *Client) replayRevert(ctx context.Context, tx *types.Transaction, r *types.Receipt) string {
	msg := ethereum.CallMsg{
		From:  c.addr,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err := c.backend.CallContract(ctx, msg, r.BlockNumber)
	if err == nil {
		return "execution reverted"
	}
	return revertReason(err)
}

func revertReason(e error) string {
	s := e.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}

// IsRevert reports whether err is a revert, either at estimation or in a receipt.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var re *RevertError
	if errors.As(err, &re) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
