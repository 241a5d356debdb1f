package runner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/hyperlend-runner/internal/amount"
	"github.com/ligun0805/hyperlend-runner/internal/chain"
	"github.com/ligun0805/hyperlend-runner/internal/config"
	"github.com/ligun0805/hyperlend-runner/internal/gate"
	"github.com/ligun0805/hyperlend-runner/internal/metrics"
	"github.com/ligun0805/hyperlend-runner/internal/tasks"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

type stubChain struct {
	addr   common.Address
	native amount.TokenAmount
	delay  time.Duration
	active *atomic.Int32
	peak   *atomic.Int32

	mu   sync.Mutex
	sent []chain.TxRequest
}

func (s *stubChain) Address() common.Address { return s.addr }

func (s *stubChain) Balance(ctx context.Context, token *common.Address) (amount.TokenAmount, error) {
	if s.active != nil {
		n := s.active.Add(1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer s.active.Add(-1)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if token != nil {
		return amount.Zero(8), nil
	}
	return s.native, nil
}

func (s *stubChain) Allowance(context.Context, common.Address, common.Address) (amount.TokenAmount, error) {
	return amount.Zero(8), nil
}

func (s *stubChain) Approve(context.Context, common.Address, common.Address, amount.TokenAmount, bool) (*types.Transaction, error) {
	return nil, errors.New("not expected")
}

func (s *stubChain) SignAndSend(_ context.Context, req chain.TxRequest) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	to := req.To
	return types.NewTx(&types.LegacyTx{To: &to, Value: req.Value, Data: req.Data}), nil
}

func (s *stubChain) WaitForReceipt(_ context.Context, tx *types.Transaction, _ time.Duration) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(1)}, nil
}

func testSettings() config.Settings {
	st := config.Defaults()
	st.Contracts.MBTCFaucet = "0x00000000000000000000000000000000000000fa"
	return st
}

func testWallets(n int) []wallet.WalletContext {
	ws := make([]wallet.WalletContext, n)
	for i := range ws {
		ws[i] = wallet.WalletContext{Index: i, Address: common.BigToAddress(big.NewInt(int64(i + 1)))}
	}
	return ws
}

func newTestExecutor(t *testing.T, g *gate.Gate, rec *metrics.Recorder, f Factory) *Executor {
	t.Helper()
	e, err := NewExecutor(Options{
		Settings: testSettings(),
		Gate:     g,
		Factory:  f,
		Metrics:  rec,
		RunID:    "test",
		Rand:     rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	return e
}

func TestParseOperation(t *testing.T) {
	for _, op := range Operations() {
		got, err := ParseOperation(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	got, err := ParseOperation("  Supply_HYPE ")
	require.NoError(t, err)
	assert.Equal(t, SupplyHYPE, got)

	for _, bad := range []string{"", "add_liquidity", "delegate"} {
		_, err := ParseOperation(bad)
		assert.ErrorIs(t, err, ErrUnknownOperation, bad)
	}
}

func TestOperationsMenu(t *testing.T) {
	ops := Operations()
	require.Len(t, ops, 6)
	assert.Equal(t, ClaimNativeFaucet, ops[0])
	assert.Equal(t, "Claim HYPE faucet", ops[0].Label())
	assert.Equal(t, "get_balances", ops[5].String())
	assert.False(t, Operation(0).Valid())
	assert.Equal(t, "operation(42)", Operation(42).String())
}

func TestValidate(t *testing.T) {
	e := newTestExecutor(t, nil, nil, func(context.Context, wallet.WalletContext, logrus.FieldLogger) (tasks.Deps, func(), error) {
		return tasks.Deps{}, nil, nil
	})
	assert.NoError(t, e.Validate(ClaimTokenFaucet))
	assert.ErrorIs(t, e.Validate(Operation(99)), ErrUnknownOperation)

	st := testSettings()
	st.Contracts.MBTCFaucet = ""
	e2, err := NewExecutor(Options{Settings: st, Factory: e.factory})
	require.NoError(t, err)
	assert.Error(t, e2.Validate(ClaimTokenFaucet))
	assert.NoError(t, e2.Validate(SupplyMBTC))
}

func TestNewExecutorRejectsBadSettings(t *testing.T) {
	st := testSettings()
	st.Chain.RPCURL = ""
	_, err := NewExecutor(Options{Settings: st, Factory: func(context.Context, wallet.WalletContext, logrus.FieldLogger) (tasks.Deps, func(), error) {
		return tasks.Deps{}, nil, nil
	}})
	assert.Error(t, err)

	_, err = NewExecutor(Options{Settings: testSettings()})
	assert.Error(t, err)
}

func TestRunUnknownOperationIsFatal(t *testing.T) {
	called := false
	e := newTestExecutor(t, nil, nil, func(context.Context, wallet.WalletContext, logrus.FieldLogger) (tasks.Deps, func(), error) {
		called = true
		return tasks.Deps{}, nil, nil
	})
	res := e.Run(context.Background(), testWallets(1)[0], Operation(77))
	assert.Equal(t, tasks.FatalFailure, res.Status)
	assert.ErrorIs(t, res.Err, ErrUnknownOperation)
	assert.False(t, called)
}

func TestRunRecoversPanics(t *testing.T) {
	e := newTestExecutor(t, nil, nil, func(context.Context, wallet.WalletContext, logrus.FieldLogger) (tasks.Deps, func(), error) {
		panic("boom")
	})
	res := e.Run(context.Background(), testWallets(1)[0], Balances)
	assert.Equal(t, tasks.FatalFailure, res.Status)
	assert.Contains(t, res.Message, "boom")
}

func TestRunSetupErrors(t *testing.T) {
	cases := []struct {
		err  error
		want tasks.Status
	}{
		{errors.New("dial: connection refused"), tasks.TransientFailure},
		{errors.New("rpc transport: unsupported proxy scheme"), tasks.FatalFailure},
	}
	for _, tc := range cases {
		e := newTestExecutor(t, nil, nil, func(context.Context, wallet.WalletContext, logrus.FieldLogger) (tasks.Deps, func(), error) {
			return tasks.Deps{}, nil, tc.err
		})
		res := e.Run(context.Background(), testWallets(1)[0], Balances)
		assert.Equal(t, tc.want, res.Status, tc.err.Error())
	}
}

func TestRunSupplyDrawsConfiguredAmount(t *testing.T) {
	sc := &stubChain{addr: common.HexToAddress("0x01"), native: amount.FromRaw(big.NewInt(1e18), 18)}
	released := 0
	e := newTestExecutor(t, nil, nil, func(context.Context, wallet.WalletContext, logrus.FieldLogger) (tasks.Deps, func(), error) {
		return tasks.Deps{Chain: sc}, func() { released++ }, nil
	})

	for i := 0; i < 5; i++ {
		res := e.Run(context.Background(), testWallets(1)[0], SupplyHYPE)
		require.Equal(t, tasks.Success, res.Status, res.Message)
	}
	assert.Equal(t, 5, released)
	require.Len(t, sc.sent, 5)

	lo := big.NewInt(100_000_000_000_000) // 0.0001
	hi := big.NewInt(500_000_000_000_000) // 0.0005
	step := big.NewInt(10_000_000_000_000)
	for _, req := range sc.sent {
		assert.Equal(t, common.HexToAddress(testSettings().Contracts.HYPEGateway), req.To)
		assert.True(t, req.Value.Cmp(lo) >= 0 && req.Value.Cmp(hi) <= 0, req.Value.String())
		assert.Zero(t, new(big.Int).Mod(req.Value, step).Sign(), "rounded to 5 places")
	}
}

func TestRunAllRespectsGateAndOrder(t *testing.T) {
	var active, peak atomic.Int32
	rec := metrics.New()
	e := newTestExecutor(t, gate.New(2), rec, func(_ context.Context, w wallet.WalletContext, _ logrus.FieldLogger) (tasks.Deps, func(), error) {
		return tasks.Deps{Chain: &stubChain{
			addr:   w.Address,
			native: amount.FromRaw(big.NewInt(int64(w.Index)), 0),
			delay:  10 * time.Millisecond,
			active: &active,
			peak:   &peak,
		}}, nil, nil
	})

	ws := testWallets(7)
	results := e.RunAll(context.Background(), ws, Balances)
	require.Len(t, results, len(ws))
	for i, r := range results {
		assert.Equal(t, tasks.Success, r.Status)
		assert.Equal(t, fmt.Sprintf("HYPE=%d MBTC=0", i), r.Message)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 0, e.Gate().InFlight())

	n, err := testutil.GatherAndCount(rec.Registry(), "hyperlend_task_results_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]tasks.Result{
		{Status: tasks.Success},
		{Status: tasks.FatalFailure},
		{Status: tasks.Success},
		{Status: tasks.AlreadyDone},
	})
	assert.Equal(t, 4, s.Total())
	assert.Equal(t, 2, s[tasks.Success])
	assert.Equal(t, "success=2 already_done=1 fatal_failure=1", s.String())
	assert.Equal(t, "no results", Summarize(nil).String())
}

func TestReadPolicyIsFixed(t *testing.T) {
	st := testSettings()
	st.Chain.RPCAttempts = 4
	st.Chain.RPCDelayMs = 250

	p := readPolicy(st)
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.Delay)
	assert.Equal(t, 1.0, p.Multiplier)
}
