package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Range is a fuzzed supply amount: uniform in [Min, Max], rounded to Precision places.
type Range struct {
	Min       string `yaml:"min"`
	Max       string `yaml:"max"`
	Precision int32  `yaml:"precision"`
}

// Bounds parses Min and Max.
func (r Range) Bounds() (decimal.Decimal, decimal.Decimal, error) {
	min, err := decimal.NewFromString(strings.TrimSpace(r.Min))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("min %q: %w", r.Min, err)
	}
	max, err := decimal.NewFromString(strings.TrimSpace(r.Max))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("max %q: %w", r.Max, err)
	}
	return min, max, nil
}

type Files struct {
	Proxies string `yaml:"proxies"`
	Keys    string `yaml:"private_keys"`
	APIKey  string `yaml:"api_key"`
}

type Faucet struct {
	PageURL  string `yaml:"page_url"`
	SiteKey  string `yaml:"site_key"`
	APIURL   string `yaml:"api_url"`
	Origin   string `yaml:"origin"`
	Note     string `yaml:"note"`
	Attempts int    `yaml:"attempts"`
	DelayMs  int    `yaml:"delay_ms"`
	// TimeoutSec bounds one HTTP exchange with the faucet API.
	TimeoutSec int `yaml:"timeout_sec"`
}

type Captcha struct {
	URL        string `yaml:"url"`
	TimeoutSec int    `yaml:"timeout_sec"`
	PollMs     int    `yaml:"poll_ms"`
}

type Chain struct {
	RPCURL            string  `yaml:"rpc_url"`
	ChainID           int64   `yaml:"chain_id"`
	RPS               float64 `yaml:"rps"`
	RPCAttempts       int     `yaml:"rpc_attempts"`
	RPCDelayMs        int     `yaml:"rpc_delay_ms"`
	ReceiptTimeoutSec int     `yaml:"receipt_timeout_sec"`
	ReceiptPollMs     int     `yaml:"receipt_poll_ms"`
	TipGwei           int64   `yaml:"tip_gwei"`
	BasefeeMul        int64   `yaml:"basefee_mul"`
	BufferPct         int64   `yaml:"buffer_pct"`
	ApproveUnlimited  bool    `yaml:"approve_unlimited"`
}

type Contracts struct {
	MBTCFaucet  string `yaml:"mbtc_faucet"`
	MBTCToken   string `yaml:"mbtc_token"`
	BTCPool     string `yaml:"btc_pool"`
	ETHGateway  string `yaml:"eth_gateway"`
	ETHPool     string `yaml:"eth_pool"`
	HYPEGateway string `yaml:"hype_gateway"`
	HYPEPool    string `yaml:"hype_pool"`
}

type Supply struct {
	MBTC Range `yaml:"mbtc"`
	ETH  Range `yaml:"eth"`
	HYPE Range `yaml:"hype"`
}

// Settings keeps all configuration options.
type Settings struct {
	Files     Files     `yaml:"files"`
	Faucet    Faucet    `yaml:"faucet"`
	Captcha   Captcha   `yaml:"captcha"`
	Chain     Chain     `yaml:"chain"`
	Contracts Contracts `yaml:"contracts"`
	Supply    Supply    `yaml:"supply"`

	Threads     int    `yaml:"threads"`
	Operation   string `yaml:"operation"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

const faucetNote = "If you are running the farming bot, stop wasting your time. Testnet will not be directly incentivized, and mainnet airdrop will be linear with a minimum threshold."

// Defaults returns the HyperEVM testnet deployment used by Hyperlend.
func Defaults() Settings {
	return Settings{
		Files: Files{Proxies: "proxies.txt", Keys: "private_keys.txt", APIKey: "api_key.txt"},
		Faucet: Faucet{
			PageURL:    "https://testnet.hyperlend.finance/dashboard",
			SiteKey:    "0x4AAAAAAA2Qg1SB87LOUhrG",
			APIURL:     "https://api.hyperlend.finance/ethFaucet",
			Origin:     "https://testnet.hyperlend.finance",
			Note:       faucetNote,
			Attempts:   2,
			DelayMs:    5000,
			TimeoutSec: 60,
		},
		Captcha: Captcha{URL: "https://api.capmonster.cloud", TimeoutSec: 180, PollMs: 3000},
		Chain: Chain{
			RPCURL:            "https://api.hyperliquid-testnet.xyz/evm",
			ChainID:           998,
			RPS:               5,
			RPCAttempts:       3,
			RPCDelayMs:        200,
			ReceiptTimeoutSec: 300,
			ReceiptPollMs:     2000,
			TipGwei:           1,
			BasefeeMul:        2,
			BufferPct:         20,
			ApproveUnlimited:  true,
		},
		Contracts: Contracts{
			MBTCToken:   "0x453b63484b11bbf0b61fc7e854f8dac7bde7d458",
			BTCPool:     "0x1e85CCDf0D098a9f55b82F3E35013Eda235C8BD8",
			ETHGateway:  "0xd2b21707d7a574D6A744FB600826770F9FBA6f80",
			ETHPool:     "0xe0bdd7e8b7bf5b15dcda6103fcbba82a460ae2c7",
			HYPEGateway: "0x272C635e84fC122239933bE56089C99653FCd255",
			HYPEPool:    "0x68cd2d3503cb4a334522e557c5ba1a0d5fe56bfc",
		},
		Supply: Supply{
			MBTC: Range{Min: "0.01", Max: "0.02", Precision: 4},
			ETH:  Range{Min: "0.0001", Max: "0.0005", Precision: 5},
			HYPE: Range{Min: "0.0001", Max: "0.0005", Precision: 5},
		},
		Threads:  0,
		LogLevel: "info",
	}
}

// Load applies, in order: defaults, the YAML file at path (skipped when path
// is empty or the file does not exist and optional is true), then environment
// overrides supporting both UPPER_CASE and lower_case keys.
func Load(path string, optional bool) (Settings, error) {
	st := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &st); err != nil {
				return st, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && optional:
		default:
			return st, fmt.Errorf("read %s: %w", path, err)
		}
	}
	applyEnv(&st)
	return st, nil
}

func applyEnv(st *Settings) {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return def
	}
	getFloat := func(keys []string, def float64) float64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
		return def
	}
	getBool := func(keys []string, def bool) bool {
		s := strings.ToLower(get(keys, ""))
		if s == "" {
			return def
		}
		return s == "1" || s == "true" || s == "yes" || s == "on"
	}

	st.Chain.RPCURL = get([]string{"rpc_url", "RPC_URL"}, st.Chain.RPCURL)
	st.Chain.ChainID = getInt64([]string{"chain_id", "CHAIN_ID"}, st.Chain.ChainID)
	st.Chain.RPS = getFloat([]string{"rpc_rps", "RPC_RPS"}, st.Chain.RPS)
	st.Chain.RPCAttempts = getInt([]string{"rpc_attempts", "RPC_ATTEMPTS"}, st.Chain.RPCAttempts)
	st.Chain.RPCDelayMs = getInt([]string{"rpc_delay_ms", "RPC_DELAY_MS"}, st.Chain.RPCDelayMs)
	st.Chain.ReceiptTimeoutSec = getInt([]string{"receipt_timeout_sec", "RECEIPT_TIMEOUT_SEC"}, st.Chain.ReceiptTimeoutSec)
	st.Chain.ReceiptPollMs = getInt([]string{"receipt_poll_ms", "RECEIPT_POLL_MS"}, st.Chain.ReceiptPollMs)
	st.Chain.TipGwei = getInt64([]string{"tip_gwei", "TIP_GWEI"}, st.Chain.TipGwei)
	st.Chain.BasefeeMul = getInt64([]string{"basefee_mul", "BASEFEE_MUL"}, st.Chain.BasefeeMul)
	st.Chain.BufferPct = getInt64([]string{"buffer_pct", "BUFFER_PCT"}, st.Chain.BufferPct)
	st.Chain.ApproveUnlimited = getBool([]string{"approve_unlimited", "APPROVE_UNLIMITED"}, st.Chain.ApproveUnlimited)

	st.Faucet.APIURL = get([]string{"faucet_api_url", "FAUCET_API_URL"}, st.Faucet.APIURL)
	st.Faucet.PageURL = get([]string{"faucet_page_url", "FAUCET_PAGE_URL"}, st.Faucet.PageURL)
	st.Faucet.SiteKey = get([]string{"faucet_site_key", "FAUCET_SITE_KEY"}, st.Faucet.SiteKey)
	st.Faucet.Attempts = getInt([]string{"http_attempts", "HTTP_ATTEMPTS"}, st.Faucet.Attempts)
	st.Faucet.DelayMs = getInt([]string{"http_delay_ms", "HTTP_DELAY_MS"}, st.Faucet.DelayMs)

	st.Captcha.URL = get([]string{"capmonster_url", "CAPMONSTER_URL"}, st.Captcha.URL)
	st.Captcha.TimeoutSec = getInt([]string{"captcha_timeout_sec", "CAPTCHA_TIMEOUT_SEC"}, st.Captcha.TimeoutSec)
	st.Captcha.PollMs = getInt([]string{"captcha_poll_ms", "CAPTCHA_POLL_MS"}, st.Captcha.PollMs)

	st.Contracts.MBTCFaucet = get([]string{"mbtc_faucet_address", "MBTC_FAUCET_ADDRESS"}, st.Contracts.MBTCFaucet)
	st.Contracts.MBTCToken = get([]string{"mbtc_token_address", "MBTC_TOKEN_ADDRESS"}, st.Contracts.MBTCToken)

	st.Contracts.BTCPool = get([]string{"btc_pool_address", "BTC_POOL_ADDRESS"}, st.Contracts.BTCPool)
	st.Contracts.ETHGateway = get([]string{"eth_gateway_address", "ETH_GATEWAY_ADDRESS"}, st.Contracts.ETHGateway)
	st.Contracts.ETHPool = get([]string{"eth_pool_address", "ETH_POOL_ADDRESS"}, st.Contracts.ETHPool)
	st.Contracts.HYPEGateway = get([]string{"hype_gateway_address", "HYPE_GATEWAY_ADDRESS"}, st.Contracts.HYPEGateway)
	st.Contracts.HYPEPool = get([]string{"hype_pool_address", "HYPE_POOL_ADDRESS"}, st.Contracts.HYPEPool)

	rangeEnv := func(prefix string, r *Range) {
		lower, upper := prefix, strings.ToUpper(prefix)
		r.Min = get([]string{lower + "_min", upper + "_MIN"}, r.Min)
		r.Max = get([]string{lower + "_max", upper + "_MAX"}, r.Max)
		r.Precision = int32(getInt([]string{lower + "_precision", upper + "_PRECISION"}, int(r.Precision)))
	}
	rangeEnv("supply_mbtc", &st.Supply.MBTC)
	rangeEnv("supply_eth", &st.Supply.ETH)
	rangeEnv("supply_hype", &st.Supply.HYPE)

	st.Files.Proxies = get([]string{"proxies_file", "PROXIES_FILE"}, st.Files.Proxies)
	st.Files.Keys = get([]string{"private_keys_file", "PRIVATE_KEYS_FILE"}, st.Files.Keys)
	st.Files.APIKey = get([]string{"api_key_file", "API_KEY_FILE"}, st.Files.APIKey)

	st.Threads = getInt([]string{"threads", "THREADS"}, st.Threads)
	st.Operation = get([]string{"operation", "OPERATION"}, st.Operation)
	st.LogLevel = get([]string{"log_level", "LOG_LEVEL"}, st.LogLevel)
	st.MetricsAddr = get([]string{"metrics_addr", "METRICS_ADDR"}, st.MetricsAddr)
}

// Validate checks the settings every operation relies on.
// Operation-specific requirements are checked by the caller.
func (st Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(st.Chain.RPCURL) == "" {
		errs = append(errs, errors.New("chain.rpc_url is empty"))
	}
	if st.Chain.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("chain.chain_id must be positive, got %d", st.Chain.ChainID))
	}
	if st.Chain.BasefeeMul < 1 {
		errs = append(errs, fmt.Errorf("chain.basefee_mul must be >= 1, got %d", st.Chain.BasefeeMul))
	}
	addrs := map[string]string{
		"contracts.mbtc_token":   st.Contracts.MBTCToken,
		"contracts.btc_pool":     st.Contracts.BTCPool,
		"contracts.eth_gateway":  st.Contracts.ETHGateway,
		"contracts.eth_pool":     st.Contracts.ETHPool,
		"contracts.hype_gateway": st.Contracts.HYPEGateway,
		"contracts.hype_pool":    st.Contracts.HYPEPool,
	}
	if st.Contracts.MBTCFaucet != "" {
		addrs["contracts.mbtc_faucet"] = st.Contracts.MBTCFaucet
	}
	for name, a := range addrs {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Errorf("%s: %q is not an address", name, a))
		}
	}
	for name, r := range map[string]Range{"supply.mbtc": st.Supply.MBTC, "supply.eth": st.Supply.ETH, "supply.hype": st.Supply.HYPE} {
		if _, _, err := r.Bounds(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (f Faucet) Delay() time.Duration { return time.Duration(f.DelayMs) * time.Millisecond }

func (f Faucet) Timeout() time.Duration { return time.Duration(f.TimeoutSec) * time.Second }

func (c Captcha) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

func (c Captcha) Poll() time.Duration { return time.Duration(c.PollMs) * time.Millisecond }

func (c Chain) RPCDelay() time.Duration { return time.Duration(c.RPCDelayMs) * time.Millisecond }

func (c Chain) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutSec) * time.Second
}

func (c Chain) ReceiptPoll() time.Duration { return time.Duration(c.ReceiptPollMs) * time.Millisecond }
