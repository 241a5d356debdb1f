package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/hyperlend-runner/internal/captcha"
	"github.com/ligun0805/hyperlend-runner/internal/config"
	"github.com/ligun0805/hyperlend-runner/internal/gate"
	"github.com/ligun0805/hyperlend-runner/internal/logging"
	"github.com/ligun0805/hyperlend-runner/internal/metrics"
	"github.com/ligun0805/hyperlend-runner/internal/retry"
	"github.com/ligun0805/hyperlend-runner/internal/runner"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

const (
	exitOK     = 0
	exitConfig = 2
)

type flags struct {
	config      string
	threads     int
	op          string
	proxies     string
	keys        string
	apiKey      string
	metricsAddr string
	logLevel    string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("hyperlendcli", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "settings.yaml", "settings file (optional)")
	fs.IntVar(&f.threads, "threads", 0, "wallets processed at once")
	fs.StringVar(&f.op, "op", "", "operation: claim_hype_faucet, claim_mbtc_faucet, supply_mbtc, supply_eth, supply_hype, get_balances")
	fs.StringVar(&f.proxies, "proxies", "", "proxies file, one per wallet")
	fs.StringVar(&f.keys, "keys", "", "private keys file")
	fs.StringVar(&f.apiKey, "api-key", "", "CapMonster API key file")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fs.StringVar(&f.logLevel, "log-level", "", "panic|fatal|error|warn|info|debug|trace")
	return f, fs.Parse(args)
}

// apply lets flags win over the file and the environment.
func (f flags) apply(st *config.Settings) {
	if f.threads > 0 {
		st.Threads = f.threads
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&st.Operation, f.op)
	set(&st.Files.Proxies, f.proxies)
	set(&st.Files.Keys, f.keys)
	set(&st.Files.APIKey, f.apiKey)
	set(&st.MetricsAddr, f.metricsAddr)
	set(&st.LogLevel, f.logLevel)
}

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}
	st, err := config.Load(f.config, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return exitConfig
	}
	f.apply(&st)

	base, err := logging.New(st.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return exitConfig
	}
	runID := uuid.NewString()
	log := base.WithField("run", runID)

	interactive := isInteractive()
	in := bufio.NewReader(os.Stdin)
	if interactive {
		defer waitEnter(in, os.Stdout)
	}

	if st.Threads <= 0 {
		st.Threads = 1
		if interactive {
			st.Threads = askThreads(in, os.Stdout)
		}
	}
	var op runner.Operation
	switch {
	case st.Operation != "":
		op, err = runner.ParseOperation(st.Operation)
	case interactive:
		op, err = askOperation(in, os.Stdout)
	default:
		err = errors.New("no operation selected, pass -op")
	}
	if err != nil {
		log.Errorf("config: %v", err)
		return exitConfig
	}

	inputs, err := wallet.LoadInputs(wallet.Paths{Proxies: st.Files.Proxies, Keys: st.Files.Keys, APIKey: st.Files.APIKey})
	if err != nil {
		log.Errorf("inputs: %v", err)
		return exitConfig
	}
	wallets, err := inputs.Wallets()
	if err != nil {
		log.Errorf("inputs: %v", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	if st.MetricsAddr != "" {
		go func() {
			if err := rec.Serve(ctx, st.MetricsAddr, log); err != nil {
				log.Warnf("metrics: %v", err)
			}
		}()
	}

	solver := captcha.NewSolver(captcha.Config{
		BaseURL: st.Captcha.URL,
		APIKey:  inputs.APIKey,
		Poll:    st.Captcha.Poll(),
		Timeout: st.Captcha.Timeout(),
		HTTP:    retry.Fixed(st.Faucet.Attempts, st.Faucet.Delay()),
		OnSolve: rec.CaptchaSolve,
	}, nil, log.WithField("component", "captcha"))

	exec, err := runner.NewExecutor(runner.Options{
		Settings: st,
		Gate:     gate.New(st.Threads),
		Factory:  runner.NewFactory(st, solver, rec),
		Metrics:  rec,
		Log:      base,
		RunID:    runID,
	})
	if err == nil {
		err = exec.Validate(op)
	}
	if err != nil {
		log.Errorf("config: %v", err)
		return exitConfig
	}

	log.WithFields(logrus.Fields{
		"op":      op.String(),
		"wallets": len(wallets),
		"threads": exec.Gate().Size(),
		"rpc":     st.Chain.RPCURL,
		"captcha": maskKey(inputs.APIKey),
	}).Info("starting run")

	start := time.Now()
	results := exec.RunAll(ctx, wallets, op)
	summary := runner.Summarize(results)
	log.WithField("took", time.Since(start).Round(time.Second).String()).
		Infof("finished %d wallets: %s", summary.Total(), summary)
	return exitOK
}
