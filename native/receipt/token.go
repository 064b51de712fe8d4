// Package receipt implements the pool's receipt token: a minimal mint/burn
// balance book whose supply feeds the exchange-rate arithmetic. Transfers are
// out of scope here; holders interact with the pool, not each other.
package receipt

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/storage"
)

var (
	// ErrInvalidAmount rejects nil or non-positive mint and burn amounts.
	ErrInvalidAmount = errors.New("receipt token: amount must be positive")
	// ErrInsufficientBalance rejects burns above the holder's balance.
	ErrInsufficientBalance = errors.New("receipt token: burn exceeds balance")
	// ErrZeroHolder rejects the zero address as a holder.
	ErrZeroHolder = errors.New("receipt token: holder must not be zero address")
)

// Token is the receipt balance book. Without a bound database it lives purely
// in memory; NewStoredToken adds write-through persistence.
type Token struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	supply   *big.Int
	db       storage.Database
}

// NewToken constructs an empty in-memory token with zero supply.
func NewToken() *Token {
	return &Token{
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

// Mint credits amount to the holder and grows supply.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroHolder
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balances[to]
	if !ok {
		bal = new(big.Int)
		t.balances[to] = bal
	}
	bal.Add(bal, amount)
	t.supply.Add(t.supply, amount)
	return t.persistLocked()
}

// Burn debits amount from the holder and shrinks supply.
func (t *Token) Burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(t.balances, from)
	}
	t.supply.Sub(t.supply, amount)
	return t.persistLocked()
}

// BalanceOf reports the holder's balance.
func (t *Token) BalanceOf(holder common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balances[holder]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

// TotalSupply reports the circulating receipt supply.
func (t *Token) TotalSupply() (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply), nil
}
