package pool

import (
	"math/big"

	"liquidstake/core/events"
	nativecommon "liquidstake/native/common"
)

// Delegate runs one delegation cycle: the buffered value above the reserved
// liability is split across the active backend set proportionally to the
// registry's weights, in the registry's listing order. Floor division only
// under-allocates, so the remainder stays in the buffer. Any backend call
// failure aborts the whole cycle before the ledger commits.
func (e *Engine) Delegate() (*big.Int, error) {
	if err := e.checkWiring(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	ledger, err := e.state.Ledger()
	if err != nil {
		return nil, err
	}
	ledger.normalize()

	// totalBuffered must strictly exceed lowerBound + reservedFunds.
	floor := new(big.Int).Add(e.delegationLowerBound, ledger.ReservedFunds)
	if ledger.TotalBuffered.Cmp(floor) <= 0 {
		return nil, ErrBelowDelegationMinimum
	}

	onHand, err := e.vault.Balance()
	if err != nil {
		return nil, err
	}
	if onHand == nil || onHand.Cmp(ledger.TotalBuffered) < 0 {
		return nil, ErrInsufficientBalance
	}

	amountToDelegate := new(big.Int).Sub(ledger.TotalBuffered, ledger.ReservedFunds)

	backends, err := e.registry.ListActiveForDelegation()
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, ErrNoActiveBackends
	}
	totalWeight := new(big.Int)
	for _, info := range backends {
		totalWeight.Add(totalWeight, new(big.Int).SetUint64(info.Weight))
	}
	if totalWeight.Sign() == 0 {
		return nil, ErrZeroTotalWeight
	}

	delegated := new(big.Int)
	staked := 0
	for _, info := range backends {
		share := new(big.Int).Mul(amountToDelegate, new(big.Int).SetUint64(info.Weight))
		share.Quo(share, totalWeight)
		if share.Sign() == 0 {
			continue
		}
		if err := info.Backend.AcceptStake(share); err != nil {
			return nil, err
		}
		delegated.Add(delegated, share)
		staked++
	}

	if delegated.Sign() > 0 {
		if err := e.vault.Debit(delegated); err != nil {
			return nil, err
		}
	}

	remainder := new(big.Int).Sub(amountToDelegate, delegated)
	ledger.TotalBuffered = new(big.Int).Add(remainder, ledger.ReservedFunds)
	if err := e.state.PutLedger(ledger); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.PoolDelegated{
		AmountDelegated: new(big.Int).Set(delegated),
		Remainder:       remainder,
		Backends:        staked,
	})
	return delegated, nil
}
