package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/core/events"
	nativecommon "liquidstake/native/common"
)

// RequestWithdraw burns receiptAmount of the caller's receipt tokens and
// issues a withdrawal ticket covering the owed base-asset value. The owed
// value is allocated across the registry's balanced candidate backends via
// unstake calls; any excess above the backends' unbondable capacity becomes a
// reserved leg that waits out the same epoch delay. Returns the ticket id.
//
// Receipts are not burned and no ticket is minted until the full leg list has
// been constructed, so any failure leaves no partial state.
func (e *Engine) RequestWithdraw(caller common.Address, receiptAmount *big.Int) (uint64, error) {
	if err := e.checkWiring(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()

	// Admission.
	if receiptAmount == nil || receiptAmount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := e.receipt.BalanceOf(caller)
	if err != nil {
		return 0, err
	}
	if balance == nil || balance.Cmp(receiptAmount) < 0 {
		return 0, ErrInsufficientReceipt
	}

	ledger, err := e.state.Ledger()
	if err != nil {
		return 0, err
	}
	ledger.normalize()

	delegated, err := e.totalDelegated()
	if err != nil {
		return 0, err
	}
	pooled, err := e.pooledValueWith(ledger, delegated)
	if err != nil {
		return 0, err
	}
	supply, err := e.receipt.TotalSupply()
	if err != nil {
		return 0, err
	}
	owed := ReceiptToValue(receiptAmount, pooled, supply)
	if owed.Sign() == 0 {
		return 0, ErrZeroWithdraw
	}

	// Liquidity check: delegated stake plus the unreserved buffer must cover
	// the owed value.
	localActive := new(big.Int).Sub(ledger.TotalBuffered, ledger.ReservedFunds)
	if localActive.Sign() < 0 {
		localActive.SetInt64(0)
	}
	if new(big.Int).Add(delegated, localActive).Cmp(owed) < 0 {
		return 0, ErrInsufficientLiquidity
	}

	currentEpoch := e.epochs.CurrentEpoch()
	maturity := currentEpoch + e.epochs.EpochDelay()

	candidates, err := e.registry.CandidateSetForWithdraw(owed)
	if err != nil {
		return 0, err
	}
	unbondable := new(big.Int)
	if candidates != nil && candidates.Count > 0 && candidates.MinStakeFloor != nil {
		unbondable.Mul(candidates.MinStakeFloor, big.NewInt(int64(candidates.Count)))
	}

	legs := make([]SettlementLeg, 0, 4)
	if candidates != nil && candidates.TotalDelegated != nil &&
		candidates.TotalDelegated.Sign() != 0 && unbondable.Sign() != 0 {
		// Balanced-path allocation: cap at the smallest of the unbondable
		// capacity, the owed value, and the total delegated stake, then split
		// evenly across the candidate set.
		capAmount := new(big.Int).Set(unbondable)
		if owed.Cmp(capAmount) < 0 {
			capAmount.Set(owed)
		}
		if candidates.TotalDelegated.Cmp(capAmount) < 0 {
			capAmount.Set(candidates.TotalDelegated)
		}
		perBackend := new(big.Int).Quo(capAmount, big.NewInt(int64(candidates.Count)))
		if perBackend.Sign() > 0 {
			for _, backend := range candidates.Candidates {
				stake, err := backend.TotalStake()
				if err != nil {
					return 0, err
				}
				if stake == nil || stake.Cmp(perBackend) < 0 {
					return 0, fault(ErrStakeBelowFloor)
				}
				if err := backend.Unstake(perBackend); err != nil {
					return 0, err
				}
				nonce, err := backend.UnbondNonceFor(e.moduleAddress)
				if err != nil {
					return 0, err
				}
				legs = append(legs, SettlementLeg{
					Kind:          LegBackend,
					Backend:       backend.Address(),
					UnbondNonce:   nonce,
					MaturityEpoch: maturity,
				})
			}
		}
	}

	// Reserved-fund overflow leg: the portion above the backends' unbondable
	// capacity was never delegated, so it stays in the buffer and waits out
	// the same delay before it can be claimed.
	reservedGap := new(big.Int)
	if owed.Cmp(unbondable) > 0 {
		reservedGap.Sub(owed, unbondable)
	}
	if len(legs) == 0 && reservedGap.Sign() == 0 {
		// Degenerate dust case: the candidate split rounded to zero per
		// backend. Settle the whole owed value out of reserved funds so the
		// ticket still carries at least one leg.
		reservedGap.Set(owed)
	}
	if reservedGap.Sign() > 0 {
		legs = append(legs, SettlementLeg{
			Kind:          LegReserved,
			Amount:        new(big.Int).Set(reservedGap),
			MaturityEpoch: maturity,
		})
		ledger.ReservedFunds.Add(ledger.ReservedFunds, reservedGap)
	}

	// Finalize: mint the ticket, burn the receipts, index the maturity.
	ticketID, err := e.tickets.Mint(caller)
	if err != nil {
		return 0, err
	}
	if err := e.receipt.Burn(caller, receiptAmount); err != nil {
		return 0, err
	}
	ticket := &Ticket{
		ID:            ticketID,
		Owner:         caller,
		RequestEpoch:  currentEpoch,
		IndexEpoch:    maturity,
		ReceiptBurned: new(big.Int).Set(receiptAmount),
		Legs:          legs,
	}
	ids, err := e.state.TicketIDsAt(maturity)
	if err != nil {
		return 0, err
	}
	batch := e.state.Batch()
	if err := batch.PutTicket(ticket); err != nil {
		return 0, err
	}
	if err := batch.PutTicketIDsAt(maturity, append(ids, ticketID)); err != nil {
		return 0, err
	}
	if err := batch.PutLedger(ledger); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, err
	}

	e.emitter.Emit(events.PoolWithdrawRequested{
		Requester:     caller,
		TicketID:      ticketID,
		ReceiptBurned: new(big.Int).Set(receiptAmount),
		ValueOwed:     owed,
		ReservedLeg:   reservedGap,
		BackendLegs:   len(legs) - boolToInt(reservedGap.Sign() > 0),
		MaturityEpoch: maturity,
	})
	return ticketID, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
