package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/hyperlend-runner/internal/chain"
	"github.com/ligun0805/hyperlend-runner/internal/retry"
)

// Status is the terminal classification of one operation on one wallet.
type Status int

const (
	Success Status = iota
	AlreadyDone
	InsufficientFunds
	TransientFailure
	FatalFailure
)

var statusNames = [...]string{"success", "already_done", "insufficient_funds", "transient_failure", "fatal_failure"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Statuses lists every status in declaration order.
func Statuses() []Status {
	return []Status{Success, AlreadyDone, InsufficientFunds, TransientFailure, FatalFailure}
}

type Result struct {
	Status  Status
	Message string
	TxHash  *common.Hash
	Err     error
}

// OK reports whether the wallet ended up in the desired state.
func (r Result) OK() bool { return r.Status == Success || r.Status == AlreadyDone }

func done(status Status, format string, args ...any) Result {
	return Result{Status: status, Message: fmt.Sprintf(format, args...)}
}

func withTx(r Result, hash common.Hash) Result {
	r.TxHash = &hash
	return r
}

// failure maps an error from a network or chain step to a Result.
func failure(step string, err error) Result {
	r := Result{Message: fmt.Sprintf("%s: %v", step, err), Err: err}
	lower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		r.Status = TransientFailure
	case strings.Contains(lower, "already claimed"):
		r.Status = AlreadyDone
	case strings.Contains(lower, "insufficient funds"):
		r.Status = InsufficientFunds
	case errors.Is(err, chain.ErrReceiptTimeout), chain.IsRevert(err):
		r.Status = FatalFailure
	case retry.IsTransient(err):
		r.Status = TransientFailure
	default:
		r.Status = FatalFailure
	}
	return r
}
