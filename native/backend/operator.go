// Package backend ships the in-process reference implementations of the
// validator-operator backend and the backend registry consumed by the pool
// engine. Production deployments can swap either for adapters speaking to
// real operator services; the engine only sees the interfaces.
package backend

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/core/epoch"
	"liquidstake/native/pool"
	"liquidstake/storage"
)

var (
	// ErrNotDue is the operator's own maturity gate, validated independently
	// of the pool's ticket-level check.
	ErrNotDue = errors.New("operator: unbond not yet due")
	// ErrUnknownNonce is returned for missing or already-claimed unbonds.
	ErrUnknownNonce = errors.New("operator: unknown unbond nonce")
	// ErrInsufficientStake rejects unstakes above the bonded amount.
	ErrInsufficientStake = errors.New("operator: unstake exceeds bonded stake")
)

type unbond struct {
	amount   *big.Int
	maturity uint64
}

// Operator is one validator-like unit. It keeps its own bonded-stake counter
// and unbond book; the pool is its only logical staker, so unbond nonces form
// a single monotonic sequence. Without a bound database it lives purely in
// memory; NewStoredOperator adds write-through persistence.
type Operator struct {
	mu          sync.Mutex
	addr        common.Address
	stake       *big.Int
	seq         uint64
	unbonds     map[uint64]*unbond
	epochs      epoch.Source
	unbondDelay uint64
	db          storage.Database
}

// NewOperator constructs an operator at addr whose unbonds mature after
// unbondDelay epochs on the given clock.
func NewOperator(addr common.Address, epochs epoch.Source, unbondDelay uint64) *Operator {
	return &Operator{
		addr:        addr,
		stake:       new(big.Int),
		unbonds:     make(map[uint64]*unbond),
		epochs:      epochs,
		unbondDelay: unbondDelay,
	}
}

// Address returns the operator's reference address.
func (o *Operator) Address() common.Address { return o.addr }

// TotalStake reports the currently bonded amount.
func (o *Operator) TotalStake() (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return new(big.Int).Set(o.stake), nil
}

// AcceptStake bonds additional value.
func (o *Operator) AcceptStake(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("operator %s: stake amount must be positive", o.addr.Hex())
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stake.Add(o.stake, amount)
	return o.persistLocked()
}

// Unstake starts unbonding amount. The unbond matures after the operator's
// configured delay and is retrievable under the nonce reported by
// UnbondNonceFor immediately after this call.
func (o *Operator) Unstake(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("operator %s: unstake amount must be positive", o.addr.Hex())
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stake.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	o.stake.Sub(o.stake, amount)
	o.seq++
	o.unbonds[o.seq] = &unbond{
		amount:   new(big.Int).Set(amount),
		maturity: o.epochs.CurrentEpoch() + o.unbondDelay,
	}
	return o.persistLocked()
}

// UnbondNonceFor reports the nonce assigned to the staker's latest unbond.
func (o *Operator) UnbondNonceFor(common.Address) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq, nil
}

// ResolveUnbond reads one pending unbond without mutating it.
func (o *Operator) ResolveUnbond(nonce uint64) (*pool.UnbondRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.unbonds[nonce]
	if !ok {
		return nil, ErrUnknownNonce
	}
	return &pool.UnbondRecord{
		Amount:        new(big.Int).Set(rec.amount),
		MaturityEpoch: rec.maturity,
	}, nil
}

// Claim settles one matured unbond: the operator validates maturity against
// its own clock, clears the record, and returns the released amount.
func (o *Operator) Claim(nonce uint64) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.unbonds[nonce]
	if !ok {
		return nil, ErrUnknownNonce
	}
	if o.epochs.CurrentEpoch() < rec.maturity {
		return nil, ErrNotDue
	}
	delete(o.unbonds, nonce)
	if err := o.persistLocked(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(rec.amount), nil
}

// PendingUnbonds reports the number of open unbond records, for operator
// dashboards.
func (o *Operator) PendingUnbonds() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.unbonds)
}
