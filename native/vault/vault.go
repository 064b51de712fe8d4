// Package vault holds the pool's on-hand base asset. It is a single balance
// with an optional transfer hook for payouts, so the daemon can plug in a
// real settlement rail while tests observe payouts directly.
package vault

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/storage"
)

var (
	// ErrInvalidAmount rejects nil or non-positive movements.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
	// ErrInsufficientFunds rejects debits and payouts above the balance.
	ErrInsufficientFunds = errors.New("vault: insufficient funds")
)

// TransferFunc delivers a payout to its recipient. A non-nil error aborts
// the payout before the vault balance moves.
type TransferFunc func(to common.Address, amount *big.Int) error

// Vault tracks the pool's liquid base-asset balance. Without a bound database
// it lives purely in memory; NewStoredVault adds write-through persistence.
type Vault struct {
	mu       sync.Mutex
	balance  *big.Int
	transfer TransferFunc
	db       storage.Database
}

// NewVault constructs an empty in-memory vault.
func NewVault() *Vault {
	return &Vault{balance: new(big.Int)}
}

// SetTransferFunc installs the payout hook. Without one, PayOut only moves
// the internal balance.
func (v *Vault) SetTransferFunc(fn TransferFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.transfer = fn
}

// Balance reports the current holdings.
func (v *Vault) Balance() (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance), nil
}

// Credit adds incoming value.
func (v *Vault) Credit(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance.Add(v.balance, amount)
	return v.persistLocked()
}

// Debit removes value headed for delegation.
func (v *Vault) Debit(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	v.balance.Sub(v.balance, amount)
	return v.persistLocked()
}

// PayOut delivers amount to the recipient through the transfer hook and then
// debits the balance. A failing hook leaves the balance untouched.
func (v *Vault) PayOut(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if v.transfer != nil {
		if err := v.transfer(to, new(big.Int).Set(amount)); err != nil {
			return err
		}
	}
	v.balance.Sub(v.balance, amount)
	return v.persistLocked()
}
