package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/hyperlend-runner/internal/config"
	"github.com/ligun0805/hyperlend-runner/internal/runner"
)

func TestAskThreads(t *testing.T) {
	cases := map[string]int{"abc\n": 1, "0\n": 1, "-3\n": 1, "\n": 1, "": 1, "8\n": 8, " 4 \n": 4}
	for in, want := range cases {
		var out bytes.Buffer
		assert.Equal(t, want, askThreads(bufio.NewReader(strings.NewReader(in)), &out), "input %q", in)
	}
}

func TestAskOperation(t *testing.T) {
	var out bytes.Buffer
	op, err := askOperation(bufio.NewReader(strings.NewReader("5\n")), &out)
	require.NoError(t, err)
	assert.Equal(t, runner.SupplyHYPE, op)
	assert.Contains(t, out.String(), "1. Claim HYPE faucet")
	assert.Contains(t, out.String(), "6. Show balances")
}

func TestParseChoice(t *testing.T) {
	op, err := parseChoice("claim_mbtc_faucet")
	require.NoError(t, err)
	assert.Equal(t, runner.ClaimTokenFaucet, op)

	for _, bad := range []string{"0", "7", "stake"} {
		_, err := parseChoice(bad)
		assert.ErrorIs(t, err, runner.ErrUnknownOperation, bad)
	}
}

func TestFlagsOverrideSettings(t *testing.T) {
	f, err := parseFlags([]string{"-threads", "3", "-op", "supply_eth", "-keys", "k.txt", "-log-level", "debug"})
	require.NoError(t, err)

	st := config.Defaults()
	f.apply(&st)
	assert.Equal(t, 3, st.Threads)
	assert.Equal(t, "supply_eth", st.Operation)
	assert.Equal(t, "k.txt", st.Files.Keys)
	assert.Equal(t, "proxies.txt", st.Files.Proxies)
	assert.Equal(t, "debug", st.LogLevel)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", maskKey("short"))
	assert.Equal(t, "abcd…6789", maskKey("abcdef0123456789"))
}
