package amount

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of HYPE on HyperEVM.
const NativeDecimals int32 = 18

var (
	ErrPrecision = errors.New("amount has more fractional digits than the token supports")
	ErrNegative  = errors.New("amount is negative")
)

// TokenAmount is a token quantity held as base units plus the token's decimals.
// The human value is always derived from Raw, so the two never drift apart.
type TokenAmount struct {
	raw      *big.Int
	decimals int32
}

// FromRaw wraps a base-unit quantity. nil is read as zero.
func FromRaw(raw *big.Int, decimals int32) TokenAmount {
	if raw == nil {
		raw = new(big.Int)
	}
	return TokenAmount{raw: new(big.Int).Set(raw), decimals: decimals}
}

func Zero(decimals int32) TokenAmount { return FromRaw(nil, decimals) }

// FromHuman converts a decimal value to base units.
// It refuses to round: a value finer than the token precision is an error.
func FromHuman(d decimal.Decimal, decimals int32) (TokenAmount, error) {
	if d.IsNegative() {
		return TokenAmount{}, fmt.Errorf("%s: %w", d.String(), ErrNegative)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return TokenAmount{}, fmt.Errorf("%s with %d decimals: %w", d.String(), decimals, ErrPrecision)
	}
	return TokenAmount{raw: shifted.BigInt(), decimals: decimals}, nil
}

// ParseHuman parses "1.25" style input.
func ParseHuman(s string, decimals int32) (TokenAmount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return TokenAmount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromHuman(d, decimals)
}

// Random draws a uniform value in [min, max], rounds it to precision fractional
// digits and converts it to base units.
func Random(rng *rand.Rand, min, max decimal.Decimal, precision, decimals int32) (TokenAmount, error) {
	if precision > decimals {
		return TokenAmount{}, fmt.Errorf("precision %d exceeds token decimals %d: %w", precision, decimals, ErrPrecision)
	}
	if max.LessThan(min) {
		min, max = max, min
	}
	span := max.Sub(min)
	v := min.Add(span.Mul(decimal.NewFromFloat(rng.Float64()))).Round(precision)
	return FromHuman(v, decimals)
}

// Raw returns a copy of the base-unit quantity.
func (a TokenAmount) Raw() *big.Int {
	if a.raw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.raw)
}

func (a TokenAmount) Decimals() int32 { return a.decimals }

// Human returns Raw / 10^Decimals exactly.
func (a TokenAmount) Human() decimal.Decimal {
	return decimal.NewFromBigInt(a.Raw(), -a.decimals)
}

func (a TokenAmount) Sign() int { return a.Raw().Sign() }

func (a TokenAmount) IsZero() bool { return a.Sign() == 0 }

// Cmp compares base units; both sides are expected to use the same token.
func (a TokenAmount) Cmp(b TokenAmount) int { return a.Raw().Cmp(b.Raw()) }

// Format renders the human value truncated to places fractional digits.
func (a TokenAmount) Format(places int32) string {
	return a.Human().Truncate(places).String()
}

func (a TokenAmount) String() string { return a.Human().String() }
