package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ligun0805/hyperlend-runner/internal/amount"
	"github.com/ligun0805/hyperlend-runner/internal/config"
	"github.com/ligun0805/hyperlend-runner/internal/gate"
	"github.com/ligun0805/hyperlend-runner/internal/logging"
	"github.com/ligun0805/hyperlend-runner/internal/metrics"
	"github.com/ligun0805/hyperlend-runner/internal/retry"
	"github.com/ligun0805/hyperlend-runner/internal/tasks"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

// Factory builds the per-wallet collaborators. The returned func releases
// them and is called once the task is over.
type Factory func(ctx context.Context, w wallet.WalletContext, log logrus.FieldLogger) (tasks.Deps, func(), error)

type Options struct {
	Settings config.Settings
	Gate     *gate.Gate
	Factory  Factory
	// Metrics may be nil.
	Metrics *metrics.Recorder
	Log     logrus.FieldLogger
	RunID   string
	// Rand drives supply amount draws; seeded from the clock when nil.
	Rand *rand.Rand
}

type supplyPlan struct {
	market tasks.Market
	rng    config.Range
}

// Executor runs one operation per wallet.
type Executor struct {
	gate    *gate.Gate
	factory Factory
	metrics *metrics.Recorder
	log     logrus.FieldLogger

	taskCfg tasks.Config
	supply  map[Operation]supplyPlan

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewExecutor(opts Options) (*Executor, error) {
	if opts.Factory == nil {
		return nil, errors.New("runner: factory is nil")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	st := opts.Settings
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	if opts.RunID != "" {
		log = log.WithField("run", opts.RunID)
	}
	g := opts.Gate
	if g == nil {
		g = gate.New(st.Threads)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var tokenFaucet common.Address
	if st.Contracts.MBTCFaucet != "" {
		tokenFaucet = common.HexToAddress(st.Contracts.MBTCFaucet)
	}
	mbtc := common.HexToAddress(st.Contracts.MBTCToken)

	return &Executor{
		gate:    g,
		factory: opts.Factory,
		metrics: opts.Metrics,
		log:     log,
		taskCfg: tasks.Config{
			FaucetPageURL:    st.Faucet.PageURL,
			FaucetSiteKey:    st.Faucet.SiteKey,
			TokenFaucet:      tokenFaucet,
			MBTC:             mbtc,
			ReceiptTimeout:   st.Chain.ReceiptTimeout(),
			ApproveUnlimited: st.Chain.ApproveUnlimited,
			ClaimPolicy:      retry.Fixed(st.Faucet.Attempts, st.Faucet.Delay()),
		},
		supply: map[Operation]supplyPlan{
			SupplyMBTC: {
				market: tasks.Market{Symbol: "BTC", Asset: mbtc, Target: common.HexToAddress(st.Contracts.BTCPool), Decimals: 8},
				rng:    st.Supply.MBTC,
			},
			SupplyETH: {
				market: tasks.Market{
					Symbol: "ETH", Native: true, Decimals: amount.NativeDecimals,
					Asset:  common.HexToAddress(st.Contracts.ETHPool),
					Target: common.HexToAddress(st.Contracts.ETHGateway),
				},
				rng: st.Supply.ETH,
			},
			SupplyHYPE: {
				market: tasks.Market{
					Symbol: "HYPE", Native: true, Decimals: amount.NativeDecimals,
					Asset:  common.HexToAddress(st.Contracts.HYPEPool),
					Target: common.HexToAddress(st.Contracts.HYPEGateway),
				},
				rng: st.Supply.HYPE,
			},
		},
		rng: rng,
	}, nil
}

// Validate reports configuration problems specific to op.
func (e *Executor) Validate(op Operation) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownOperation, int(op))
	}
	if op == ClaimTokenFaucet && e.taskCfg.TokenFaucet == (common.Address{}) {
		return errors.New("contracts.mbtc_faucet (MBTC_FAUCET_ADDRESS) must be set for claim_mbtc_faucet")
	}
	return nil
}

// Gate is the executor's concurrency gate.
func (e *Executor) Gate() *gate.Gate { return e.gate }

// Run performs op for one wallet. It never panics and never returns an
// error: every outcome is a Result.
func (e *Executor) Run(ctx context.Context, w wallet.WalletContext, op Operation) (res tasks.Result) {
	log := e.log.WithFields(logrus.Fields{"wallet": w.Address.Hex(), "op": op.String()})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, debug.Stack())
			res = tasks.Result{Status: tasks.FatalFailure, Message: fmt.Sprintf("panic: %v", r)}
		}
		e.report(log, op, res, time.Since(start))
	}()

	if !op.Valid() {
		err := fmt.Errorf("%w: %d", ErrUnknownOperation, int(op))
		return tasks.Result{Status: tasks.FatalFailure, Message: err.Error(), Err: err}
	}

	var amt amount.TokenAmount
	plan, isSupply := e.supply[op]
	if isSupply {
		var err error
		if amt, err = e.draw(plan); err != nil {
			return tasks.Result{Status: tasks.FatalFailure, Message: "supply amount: " + err.Error(), Err: err}
		}
	}

	log.Infof("starting (proxy %s)", w.Proxy)
	deps, release, err := e.factory(ctx, w, log)
	if err != nil {
		status := tasks.FatalFailure
		if retry.IsTransient(err) {
			status = tasks.TransientFailure
		}
		return tasks.Result{Status: status, Message: "setup: " + err.Error(), Err: err}
	}
	if release != nil {
		defer release()
	}
	ops := tasks.New(deps, e.taskCfg, log)

	switch op {
	case ClaimNativeFaucet:
		return ops.ClaimNativeFaucet(ctx)
	case ClaimTokenFaucet:
		return ops.ClaimTokenFaucet(ctx)
	case SupplyMBTC, SupplyETH, SupplyHYPE:
		return ops.Supply(ctx, plan.market, amt)
	case Balances:
		return ops.Balances(ctx)
	}
	err = fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	return tasks.Result{Status: tasks.FatalFailure, Message: err.Error(), Err: err}
}

func (e *Executor) draw(p supplyPlan) (amount.TokenAmount, error) {
	min, max, err := p.rng.Bounds()
	if err != nil {
		return amount.TokenAmount{}, err
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return amount.Random(e.rng, min, max, p.rng.Precision, p.market.Decimals)
}

func (e *Executor) report(log logrus.FieldLogger, op Operation, res tasks.Result, took time.Duration) {
	entry := log.WithField("status", res.Status.String())
	if res.TxHash != nil {
		entry = entry.WithField("tx", res.TxHash.Hex())
	}
	switch res.Status {
	case tasks.Success, tasks.AlreadyDone:
		entry.Infof("done in %s: %s", took.Round(time.Millisecond), res.Message)
	case tasks.InsufficientFunds, tasks.TransientFailure:
		entry.Warnf("done in %s: %s", took.Round(time.Millisecond), res.Message)
	default:
		entry.Errorf("failed in %s: %s", took.Round(time.Millisecond), res.Message)
	}
	if e.metrics != nil {
		e.metrics.TaskDone(op.String(), res.Status.String(), took)
	}
}

// RunAll runs op for every wallet, at most gate-size at a time, and waits for
// all of them. Results are in wallet order.
func (e *Executor) RunAll(ctx context.Context, wallets []wallet.WalletContext, op Operation) []tasks.Result {
	results := make([]tasks.Result, len(wallets))
	var g errgroup.Group
	for i, w := range wallets {
		g.Go(func() error {
			err := e.gate.Run(ctx, func(ctx context.Context) error {
				e.observeInFlight()
				results[i] = e.Run(ctx, w, op)
				return nil
			})
			e.observeInFlight()
			if err != nil {
				results[i] = tasks.Result{Status: tasks.TransientFailure, Message: "not started: " + err.Error(), Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) observeInFlight() {
	if e.metrics != nil {
		e.metrics.SetInFlight(e.gate.InFlight())
	}
}

// Summary counts results per status.
type Summary map[tasks.Status]int

func Summarize(results []tasks.Result) Summary {
	s := Summary{}
	for _, r := range results {
		s[r.Status]++
	}
	return s
}

func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// String renders "success=3 fatal_failure=1" in status order, skipping zeros.
func (s Summary) String() string {
	keys := make([]tasks.Status, 0, len(s))
	for st, n := range s {
		if n > 0 {
			keys = append(keys, st)
		}
	}
	if len(keys) == 0 {
		return "no results"
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	parts := make([]string, len(keys))
	for i, st := range keys {
		parts[i] = fmt.Sprintf("%s=%d", st, s[st])
	}
	return strings.Join(parts, " ")
}
