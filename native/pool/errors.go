package pool

import (
	"errors"
	"fmt"
)

var (
	errNilState        = errors.New("pool engine: state not configured")
	errNilRegistry     = errors.New("pool engine: backend registry not configured")
	errNilTicketLedger = errors.New("pool engine: ticket ledger not configured")
	errNilReceipt      = errors.New("pool engine: receipt token not configured")
	errNilVault        = errors.New("pool engine: vault not configured")
	errNilEpochs       = errors.New("pool engine: epoch source not configured")

	// ErrReentrancy rejects a nested call into a mutating entry point while
	// another one is still executing on the same engine.
	ErrReentrancy = errors.New("pool engine: reentrant call rejected")

	// ErrInvalidAmount rejects zero or negative amounts at admission.
	ErrInvalidAmount = errors.New("pool engine: amount must be positive")
	// ErrBelowMinimumDeposit rejects deposits under the configured floor.
	ErrBelowMinimumDeposit = errors.New("pool engine: deposit below minimum threshold")
	// ErrAboveMaximumDeposit rejects deposits over the configured ceiling.
	ErrAboveMaximumDeposit = errors.New("pool engine: deposit above maximum threshold")
	// ErrZeroMint rejects deposits that convert to zero receipt tokens.
	ErrZeroMint = errors.New("pool engine: deposit converts to zero receipt")
	// ErrZeroWithdraw rejects withdrawal requests that convert to zero value.
	ErrZeroWithdraw = errors.New("pool engine: receipt amount converts to zero value")
	// ErrInsufficientReceipt rejects withdrawals exceeding the caller's
	// receipt balance.
	ErrInsufficientReceipt = errors.New("pool engine: caller receipt balance too low")
	// ErrInsufficientLiquidity rejects withdrawals the delegated and buffered
	// value together cannot cover. May clear as pool state changes.
	ErrInsufficientLiquidity = errors.New("pool engine: insufficient liquidity for withdrawal")
	// ErrBelowDelegationMinimum rejects delegation cycles when the buffer
	// does not exceed the lower bound plus reserved funds.
	ErrBelowDelegationMinimum = errors.New("pool engine: buffered value below delegation minimum")
	// ErrInsufficientBalance signals the on-hand vault balance fell behind
	// the buffered bookkeeping.
	ErrInsufficientBalance = errors.New("pool engine: on-hand balance below buffered value")
	// ErrNoActiveBackends rejects delegation when the registry lists nothing
	// usable.
	ErrNoActiveBackends = errors.New("pool engine: no active backends")
	// ErrZeroTotalWeight rejects delegation when the listed backends carry no
	// weight at all.
	ErrZeroTotalWeight = errors.New("pool engine: backend weights sum to zero")

	// ErrTicketNotFound is returned for unknown or already-settled tickets.
	ErrTicketNotFound = errors.New("pool engine: ticket not found")
	// ErrNotTicketOwner rejects claims from callers that are neither owner
	// nor approved for the ticket.
	ErrNotTicketOwner = errors.New("pool engine: caller not ticket owner or approved")
	// ErrTicketNotMatured gates claims until the ticket's first leg matures.
	ErrTicketNotMatured = errors.New("pool engine: ticket not yet matured")
	// ErrUnbondNotMatured surfaces a backend's own maturity check failing for
	// a leg even though the ticket-level gate passed.
	ErrUnbondNotMatured = errors.New("pool engine: backend unbond not yet matured")
	// ErrTransferFailed aborts a claim whose final payout transfer failed;
	// the ticket stays claimable.
	ErrTransferFailed = errors.New("pool engine: payout transfer failed")

	// ErrNegativePoolValue indicates reserved funds exceed the pool's total
	// delegated plus buffered value. Fatal: operators must alert, not retry.
	ErrNegativePoolValue = errors.New("pool engine: negative pool value")
	// ErrStakeBelowFloor indicates the registry reported a backend whose live
	// stake is below the assumed floor. Fatal collaborator desync.
	ErrStakeBelowFloor = errors.New("pool engine: backend stake below assumed floor")
)

// Fault wraps failures that indicate an inconsistency between the engine's
// bookkeeping and an external collaborator. Faults abort the whole operation
// without partial commit and are surfaced distinctly from user-input errors.
type Fault struct {
	Err error
}

// Error satisfies the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("fatal: %v", f.Err)
}

// Unwrap exposes the wrapped condition to errors.Is/As.
func (f *Fault) Unwrap() error { return f.Err }

func fault(err error) error {
	return &Fault{Err: err}
}

// IsFault reports whether err belongs to the fatal desync class.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
