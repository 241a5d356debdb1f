package runner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownOperation is a configuration error: it is reported before any
// wallet starts.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is the closed set of tasks a run can perform on every wallet.
type Operation int

const (
	ClaimNativeFaucet Operation = iota + 1
	ClaimTokenFaucet
	SupplyMBTC
	SupplyETH
	SupplyHYPE
	Balances
)

var opInfo = map[Operation]struct{ name, label string }{
	ClaimNativeFaucet: {"claim_hype_faucet", "Claim HYPE faucet"},
	ClaimTokenFaucet:  {"claim_mbtc_faucet", "Claim MBTC faucet"},
	SupplyMBTC:        {"supply_mbtc", "Supply MBTC"},
	SupplyETH:         {"supply_eth", "Supply ETH"},
	SupplyHYPE:        {"supply_hype", "Supply HYPE"},
	Balances:          {"get_balances", "Show balances"},
}

func (op Operation) String() string {
	if info, ok := opInfo[op]; ok {
		return info.name
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

// Label is the menu text.
func (op Operation) Label() string {
	if info, ok := opInfo[op]; ok {
		return info.label
	}
	return op.String()
}

func (op Operation) Valid() bool {
	_, ok := opInfo[op]
	return ok
}

// Operations lists the menu in display order.
func Operations() []Operation {
	return []Operation{ClaimNativeFaucet, ClaimTokenFaucet, SupplyMBTC, SupplyETH, SupplyHYPE, Balances}
}

// ParseOperation accepts an operation name, case-insensitively.
func ParseOperation(name string) (Operation, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	for _, op := range Operations() {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}
