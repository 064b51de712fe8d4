package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/core/events"
)

// PreviewDeposit returns the receipt tokens a deposit of amount would mint at
// the current exchange rate, without mutating anything.
func (e *Engine) PreviewDeposit(amount *big.Int) (*big.Int, error) {
	if err := e.checkWiring(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ledger, err := e.state.Ledger()
	if err != nil {
		return nil, err
	}
	ledger.normalize()
	pooled, err := e.pooledValue(ledger)
	if err != nil {
		return nil, err
	}
	supply, err := e.receipt.TotalSupply()
	if err != nil {
		return nil, err
	}
	return ValueToReceipt(amount, pooled, supply), nil
}

// PreviewWithdraw returns the base-asset value receiptAmount would redeem at
// the current exchange rate, without mutating anything.
func (e *Engine) PreviewWithdraw(receiptAmount *big.Int) (*big.Int, error) {
	if err := e.checkWiring(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ledger, err := e.state.Ledger()
	if err != nil {
		return nil, err
	}
	ledger.normalize()
	pooled, err := e.pooledValue(ledger)
	if err != nil {
		return nil, err
	}
	supply, err := e.receipt.TotalSupply()
	if err != nil {
		return nil, err
	}
	return ReceiptToValue(receiptAmount, pooled, supply), nil
}

// PoolSnapshot captures a consistent view of the pool's balances, the
// exchange-rate inputs, and the epoch clock.
func (e *Engine) PoolSnapshot() (*Snapshot, error) {
	if err := e.checkWiring(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ledger, err := e.state.Ledger()
	if err != nil {
		return nil, err
	}
	ledger.normalize()
	delegated, err := e.totalDelegated()
	if err != nil {
		return nil, err
	}
	pooled, err := e.pooledValueWith(ledger, delegated)
	if err != nil {
		return nil, err
	}
	supply, err := e.receipt.TotalSupply()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		TotalBuffered:  new(big.Int).Set(ledger.TotalBuffered),
		ReservedFunds:  new(big.Int).Set(ledger.ReservedFunds),
		TotalDelegated: delegated,
		PooledValue:    pooled,
		ReceiptSupply:  cloneOrZero(supply),
		CurrentEpoch:   e.epochs.CurrentEpoch(),
		EpochDelay:     e.epochs.EpochDelay(),
	}, nil
}

// TicketsMaturingAt enumerates ticket ids indexed under the given epoch. The
// index reflects maturity at request time only; administrative overrides do
// not re-index, so gating always uses the ticket's stored legs instead.
func (e *Engine) TicketsMaturingAt(epochNumber uint64) ([]uint64, error) {
	if e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ids, err := e.state.TicketIDsAt(epochNumber)
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), ids...), nil
}

// TicketsOwnedBy lists the caller-visible ticket ids for an owner.
func (e *Engine) TicketsOwnedBy(owner common.Address) ([]uint64, error) {
	if e.tickets == nil {
		return nil, errNilTicketLedger
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickets.OwnedTickets(owner)
}

// TicketDetail returns a ticket with live-resolved backend leg amounts.
func (e *Engine) TicketDetail(ticketID uint64) (*TicketView, error) {
	if err := e.checkWiring(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ticket, ok, err := e.state.Ticket(ticketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTicketNotFound
	}
	view := &TicketView{
		ID:           ticket.ID,
		Owner:        ticket.Owner,
		RequestEpoch: ticket.RequestEpoch,
		Legs:         make([]LegView, 0, len(ticket.Legs)),
	}
	if ticket.ReceiptBurned != nil {
		view.ReceiptBurned = new(big.Int).Set(ticket.ReceiptBurned)
	}
	for _, leg := range ticket.Legs {
		lv := LegView{
			Kind:          leg.Kind,
			Backend:       leg.Backend,
			UnbondNonce:   leg.UnbondNonce,
			MaturityEpoch: leg.MaturityEpoch,
		}
		switch leg.Kind {
		case LegReserved:
			if leg.Amount != nil {
				lv.Amount = new(big.Int).Set(leg.Amount)
			}
		case LegBackend:
			backend, err := e.registry.Lookup(leg.Backend)
			if err != nil {
				return nil, err
			}
			record, err := backend.ResolveUnbond(leg.UnbondNonce)
			if err != nil {
				return nil, err
			}
			if record.Amount != nil {
				lv.Amount = new(big.Int).Set(record.Amount)
			}
		}
		view.Legs = append(view.Legs, lv)
	}
	return view, nil
}

// EverStakedCount reports how many distinct addresses have ever deposited.
// Stats only; the set never shrinks and feeds no accounting.
func (e *Engine) EverStakedCount() (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.EverStakedCount()
}

// OverrideTicketMaturity rewrites the stored maturity epoch of the given legs
// (all legs when none are specified). Emergency bookkeeping correction only.
// The epoch index is deliberately not updated, so enumeration keeps showing
// the ticket under its original maturity epoch.
func (e *Engine) OverrideTicketMaturity(ticketID uint64, newEpoch uint64, legIndexes ...int) error {
	if e.state == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	ticket, ok, err := e.state.Ticket(ticketID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTicketNotFound
	}
	if len(legIndexes) == 0 {
		for i := range ticket.Legs {
			ticket.Legs[i].MaturityEpoch = newEpoch
		}
	} else {
		for _, i := range legIndexes {
			if i < 0 || i >= len(ticket.Legs) {
				return ErrTicketNotFound
			}
			ticket.Legs[i].MaturityEpoch = newEpoch
		}
	}
	if err := e.state.PutTicket(ticket); err != nil {
		return err
	}
	touched := len(legIndexes)
	if touched == 0 {
		touched = len(ticket.Legs)
	}
	e.emitter.Emit(events.TicketMaturityOverridden{
		TicketID: ticketID,
		NewEpoch: newEpoch,
		Legs:     touched,
	})
	return nil
}
