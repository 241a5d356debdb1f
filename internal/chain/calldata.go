package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrWordOverflow = errors.New("value does not fit in a 256-bit word")

// EncodeCall builds selector ++ 32-byte big-endian words.
// Supported arguments: common.Address, *big.Int, uint64, uint16, int.
func EncodeCall(selector string, args ...any) ([]byte, error) {
	sel := common.FromHex(selector)
	if len(sel) != 4 {
		return nil, fmt.Errorf("selector %q must be 4 bytes", selector)
	}
	out := make([]byte, 0, 4+32*len(args))
	out = append(out, sel...)
	for i, a := range args {
		w, err := word(a)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out = append(out, w[:]...)
	}
	return out, nil
}

func word(a any) ([32]byte, error) {
	var w [32]byte
	switch v := a.(type) {
	case common.Address:
		copy(w[12:], v.Bytes())
	case *big.Int:
		if v == nil {
			return w, errors.New("nil integer")
		}
		if v.Sign() < 0 {
			return w, fmt.Errorf("negative integer %s", v)
		}
		u, overflow := uint256.FromBig(v)
		if overflow {
			return w, fmt.Errorf("%s: %w", v, ErrWordOverflow)
		}
		w = u.Bytes32()
	case uint64:
		w = uint256.NewInt(v).Bytes32()
	case uint16:
		w = uint256.NewInt(uint64(v)).Bytes32()
	case int:
		if v < 0 {
			return w, fmt.Errorf("negative integer %d", v)
		}
		w = uint256.NewInt(uint64(v)).Bytes32()
	default:
		return w, fmt.Errorf("unsupported argument type %T", a)
	}
	return w, nil
}

// MaxUint256 is the conventional "unlimited" allowance.
func MaxUint256() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}
