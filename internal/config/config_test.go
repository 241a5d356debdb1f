package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	st := Defaults()
	require.NoError(t, st.Validate())
	assert.Equal(t, int64(998), st.Chain.ChainID)
	assert.Equal(t, 300*time.Second, st.Chain.ReceiptTimeout())
	assert.Equal(t, 2, st.Faucet.Attempts)
	assert.Equal(t, 5*time.Second, st.Faucet.Delay())
	assert.True(t, st.Chain.ApproveUnlimited)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	body := `
chain:
  rpc_url: https://rpc.example
  receipt_timeout_sec: 60
contracts:
  mbtc_faucet: "0x1111111111111111111111111111111111111111"
supply:
  mbtc:
    min: "0.5"
    max: "1"
    precision: 2
threads: 4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("RPC_URL", "https://override.example")
	t.Setenv("approve_unlimited", "no")

	st, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "https://override.example", st.Chain.RPCURL)
	assert.Equal(t, 60, st.Chain.ReceiptTimeoutSec)
	assert.False(t, st.Chain.ApproveUnlimited)
	assert.Equal(t, 4, st.Threads)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", st.Contracts.MBTCFaucet)
	assert.Equal(t, int32(2), st.Supply.MBTC.Precision)
	// untouched sections keep their defaults
	assert.Equal(t, "0.0001", st.Supply.ETH.Min)
	assert.Equal(t, int64(998), st.Chain.ChainID)

	min, max, err := st.Supply.MBTC.Bounds()
	require.NoError(t, err)
	assert.Equal(t, "0.5", min.String())
	assert.Equal(t, "1", max.String())
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := Load(missing, true)
	require.NoError(t, err)

	_, err = Load(missing, false)
	require.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	st := Defaults()
	st.Chain.RPCURL = ""
	st.Chain.ChainID = 0
	st.Contracts.MBTCFaucet = "not-an-address"
	st.Supply.ETH.Max = "abc"

	err := st.Validate()
	require.Error(t, err)
	for _, want := range []string{"rpc_url", "chain_id", "mbtc_faucet", "supply.eth"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestEnvOverridesSupplyRangesAndMarkets(t *testing.T) {
	t.Setenv("SUPPLY_MBTC_MIN", "0.002")
	t.Setenv("supply_mbtc_max", "0.003")
	t.Setenv("SUPPLY_HYPE_PRECISION", "3")
	t.Setenv("HYPE_POOL_ADDRESS", "0x00000000000000000000000000000000000000b1")

	st, err := Load("", true)
	require.NoError(t, err)
	require.NoError(t, st.Validate())

	assert.Equal(t, Range{Min: "0.002", Max: "0.003", Precision: 4}, st.Supply.MBTC)
	assert.Equal(t, int32(3), st.Supply.HYPE.Precision)
	assert.Equal(t, Defaults().Supply.ETH, st.Supply.ETH)
	assert.Equal(t, "0x00000000000000000000000000000000000000b1", st.Contracts.HYPEPool)
	assert.Equal(t, Defaults().Contracts.ETHGateway, st.Contracts.ETHGateway)
}
