package amount

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawHumanRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		decimals int32
		human    string
	}{
		{"one btc", "100000000", 8, "1"},
		{"fractional btc", "1234", 8, "0.00001234"},
		{"wei", "1", 18, "0.000000000000000001"},
		{"large eth", "123456789000000000000000", 18, "123456.789"},
		{"zero", "0", 6, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, ok := new(big.Int).SetString(tc.raw, 10)
			require.True(t, ok)

			a := FromRaw(raw, tc.decimals)
			assert.Equal(t, tc.human, a.Human().String())

			back, err := FromHuman(a.Human(), tc.decimals)
			require.NoError(t, err)
			assert.Equal(t, 0, back.Raw().Cmp(raw))
			assert.Equal(t, tc.decimals, back.Decimals())
		})
	}
}

func TestFromHumanRejectsExcessPrecision(t *testing.T) {
	_, err := ParseHuman("0.123456789", 8)
	require.ErrorIs(t, err, ErrPrecision)

	_, err = ParseHuman("-1", 8)
	require.ErrorIs(t, err, ErrNegative)

	a, err := ParseHuman("0.12345678", 8)
	require.NoError(t, err)
	assert.Equal(t, "12345678", a.Raw().String())
}

func TestRawIsCopied(t *testing.T) {
	raw := big.NewInt(500)
	a := FromRaw(raw, 2)
	raw.SetInt64(1)
	assert.Equal(t, "5", a.String())

	a.Raw().SetInt64(7)
	assert.Equal(t, "5", a.String())
}

func TestRandomStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	min := decimal.RequireFromString("0.01")
	max := decimal.RequireFromString("0.02")
	for i := 0; i < 200; i++ {
		a, err := Random(rng, min, max, 4, 8)
		require.NoError(t, err)
		h := a.Human()
		assert.True(t, h.GreaterThanOrEqual(min), h.String())
		assert.True(t, h.LessThanOrEqual(max), h.String())
		assert.True(t, h.Shift(4).IsInteger(), h.String())
	}

	_, err := Random(rng, min, max, 10, 8)
	require.ErrorIs(t, err, ErrPrecision)
}

func TestCmpAndFormat(t *testing.T) {
	a, _ := ParseHuman("1.5", 18)
	b, _ := ParseHuman("1.25", 18)
	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.True(t, Zero(18).IsZero())

	c, _ := ParseHuman("0.123456789", 18)
	assert.Equal(t, "0.123456", c.Format(6))
}
