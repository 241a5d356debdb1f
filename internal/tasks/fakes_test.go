package tasks

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/hyperlend-runner/internal/amount"
	"github.com/ligun0805/hyperlend-runner/internal/captcha"
	"github.com/ligun0805/hyperlend-runner/internal/chain"
	"github.com/ligun0805/hyperlend-runner/internal/faucet"
)

type fakeChain struct {
	mu sync.Mutex

	addr      common.Address
	native    amount.TokenAmount
	tokens    map[common.Address]amount.TokenAmount
	allowance map[common.Address]amount.TokenAmount

	balanceErr error
	sendErr    error
	receiptErr error
	approveErr error

	balanceCalls int
	approvals    int
	sent         []chain.TxRequest
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		addr:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		native:    amount.Zero(amount.NativeDecimals),
		tokens:    map[common.Address]amount.TokenAmount{},
		allowance: map[common.Address]amount.TokenAmount{},
	}
}

func (f *fakeChain) Address() common.Address { return f.addr }

func (f *fakeChain) Balance(_ context.Context, token *common.Address) (amount.TokenAmount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	if f.balanceErr != nil {
		return amount.TokenAmount{}, f.balanceErr
	}
	if token == nil {
		return f.native, nil
	}
	if bal, ok := f.tokens[*token]; ok {
		return bal, nil
	}
	return amount.Zero(8), nil
}

func (f *fakeChain) Allowance(_ context.Context, token, _ common.Address) (amount.TokenAmount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if al, ok := f.allowance[token]; ok {
		return al, nil
	}
	return amount.Zero(8), nil
}

func (f *fakeChain) Approve(_ context.Context, token, spender common.Address, amt amount.TokenAmount, unlimited bool) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	f.approvals++
	granted := amt
	if unlimited {
		granted = amount.FromRaw(chain.MaxUint256(), amt.Decimals())
	}
	f.allowance[token] = granted
	return f.txLocked(chain.TxRequest{To: token, Data: spender.Bytes()}), nil
}

func (f *fakeChain) SignAndSend(_ context.Context, req chain.TxRequest) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, req)
	return f.txLocked(req), nil
}

func (f *fakeChain) txLocked(req chain.TxRequest) *types.Transaction {
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := req.To
	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.sent) + f.approvals), To: &to, Value: value, Data: req.Data})
}

func (f *fakeChain) WaitForReceipt(_ context.Context, tx *types.Transaction, _ time.Duration) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(100)}, nil
}

type fakeSolver struct {
	calls int
	errs  []error
}

func (s *fakeSolver) Solve(context.Context, captcha.Challenge) (captcha.Solution, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return captcha.Solution{}, err
		}
	}
	return captcha.Solution{Token: "token"}, nil
}

type fakeFaucet struct {
	calls   int
	replies []faucet.Reply
	errs    []error
}

func (f *fakeFaucet) Claim(context.Context, common.Address, string) (faucet.Reply, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return faucet.Reply{}, err
		}
	}
	if len(f.replies) == 0 {
		return faucet.Reply{}, errors.New("no reply scripted")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}
