package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/core/events"
	nativecommon "liquidstake/native/common"
)

// Claim settles a mature withdrawal ticket: backend legs are claimed from
// their backends (which re-validate maturity independently and pay the pool),
// reserved legs draw down the buffer, and the summed value is paid to the
// caller. The ticket is burned and de-indexed atomically with the payout; a
// failed payout transfer leaves the ticket claimable. Backend legs consumed
// before the failure are folded into a reserved leg backed by the value the
// backends already paid in, so the retry settles out of the buffer.
//
// The maturity gate reads only the first leg's epoch. Legs can carry
// different epochs after an administrative override, in which case a ticket
// may pass the gate while a later leg's backend check still rejects it; the
// claim then aborts as a whole. Matches the deployed behavior.
func (e *Engine) Claim(caller common.Address, ticketID uint64) (*big.Int, error) {
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
	return e.claimLocked(caller, ticketID)
}

// ClaimMultiple settles each ticket in turn and returns the summed payout.
// Each claim is atomic at its own granularity: a failure on a later ticket
// does not roll back earlier successful claims, and the batch stops at the
// first failure.
func (e *Engine) ClaimMultiple(caller common.Address, ticketIDs []uint64) (*big.Int, error) {
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

	total := new(big.Int)
	for _, id := range ticketIDs {
		paid, err := e.claimLocked(caller, id)
		if err != nil {
			return total, err
		}
		total.Add(total, paid)
	}
	return total, nil
}

func (e *Engine) claimLocked(caller common.Address, ticketID uint64) (*big.Int, error) {
	ticket, ok, err := e.state.Ticket(ticketID)
	if err != nil {
		return nil, err
	}
	if !ok || len(ticket.Legs) == 0 {
		return nil, ErrTicketNotFound
	}
	allowed, err := e.tickets.IsApprovedOrOwner(caller, ticketID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrNotTicketOwner
	}

	current := e.epochs.CurrentEpoch()
	if current < ticket.Legs[0].MaturityEpoch {
		return nil, ErrTicketNotMatured
	}

	// Resolve every leg before touching anything. Backend legs read their
	// unbond records and each leg's own maturity epoch is re-checked here,
	// matching the backend's independent validation.
	type backendLeg struct {
		backend Backend
		nonce   uint64
	}
	total := new(big.Int)
	reservedTotal := new(big.Int)
	backendLegs := make([]backendLeg, 0, len(ticket.Legs))
	for _, leg := range ticket.Legs {
		switch leg.Kind {
		case LegReserved:
			if leg.Amount != nil {
				total.Add(total, leg.Amount)
				reservedTotal.Add(reservedTotal, leg.Amount)
			}
		case LegBackend:
			backend, err := e.registry.Lookup(leg.Backend)
			if err != nil {
				return nil, fault(err)
			}
			record, err := backend.ResolveUnbond(leg.UnbondNonce)
			if err != nil {
				return nil, fault(err)
			}
			if current < record.MaturityEpoch {
				return nil, ErrUnbondNotMatured
			}
			if record.Amount != nil {
				total.Add(total, record.Amount)
			}
			backendLegs = append(backendLegs, backendLeg{backend: backend, nonce: leg.UnbondNonce})
		}
	}

	// Pull backend funds into the pool. A failure here after a successful
	// resolve means the backend's records changed under us.
	for _, bl := range backendLegs {
		amount, err := bl.backend.Claim(bl.nonce)
		if err != nil {
			return nil, fault(err)
		}
		if amount != nil && amount.Sign() > 0 {
			if err := e.vault.Credit(amount); err != nil {
				return nil, err
			}
		}
	}

	if err := e.vault.PayOut(caller, total); err != nil {
		// A pure reserved ticket is untouched at this point and can simply
		// be retried. Backend legs are not: their unbond records are gone
		// and their value now sits in the vault, so the ticket is rewritten
		// as a single reserved leg over the full owed value before the
		// failure surfaces.
		credited := new(big.Int).Sub(total, reservedTotal)
		if credited.Sign() > 0 {
			if perr := e.parkFailedPayout(ticket, total, credited); perr != nil {
				return nil, fault(perr)
			}
		}
		return nil, errTransfer(err)
	}

	ledger, err := e.state.Ledger()
	if err != nil {
		return nil, err
	}
	ledger.normalize()
	if reservedTotal.Sign() > 0 {
		// The reserved portion never left the buffer, so claiming it draws
		// the buffer down now.
		ledger.ReservedFunds.Sub(ledger.ReservedFunds, reservedTotal)
		ledger.TotalBuffered.Sub(ledger.TotalBuffered, reservedTotal)
		if ledger.ReservedFunds.Sign() < 0 || ledger.TotalBuffered.Sign() < 0 {
			return nil, fault(ErrNegativePoolValue)
		}
	}

	ids, err := e.state.TicketIDsAt(ticket.IndexEpoch)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if id == ticketID {
			ids[i] = ids[len(ids)-1]
			ids = ids[:len(ids)-1]
			break
		}
	}
	batch := e.state.Batch()
	if err := batch.DeleteTicket(ticketID); err != nil {
		return nil, err
	}
	if err := batch.PutTicketIDsAt(ticket.IndexEpoch, ids); err != nil {
		return nil, err
	}
	if err := batch.PutLedger(ledger); err != nil {
		return nil, err
	}
	if err := e.tickets.Burn(ticketID); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.PoolClaimed{
		Claimer:  caller,
		TicketID: ticketID,
		Paid:     new(big.Int).Set(total),
	})
	return total, nil
}

// parkFailedPayout rewrites a ticket whose backend legs were already claimed
// into a pure reserved ticket. The credited backend value joins the buffer as
// a matching reserved liability, leaving the pooled value unchanged, and the
// retry draws the whole owed amount from the buffer.
func (e *Engine) parkFailedPayout(ticket *Ticket, owed, credited *big.Int) error {
	ledger, err := e.state.Ledger()
	if err != nil {
		return err
	}
	ledger.normalize()
	ledger.TotalBuffered.Add(ledger.TotalBuffered, credited)
	ledger.ReservedFunds.Add(ledger.ReservedFunds, credited)
	ticket.Legs = []SettlementLeg{{
		Kind:          LegReserved,
		Amount:        new(big.Int).Set(owed),
		MaturityEpoch: ticket.Legs[0].MaturityEpoch,
	}}
	batch := e.state.Batch()
	if err := batch.PutTicket(ticket); err != nil {
		return err
	}
	if err := batch.PutLedger(ledger); err != nil {
		return err
	}
	return batch.Commit()
}

func errTransfer(cause error) error {
	if cause == nil {
		return ErrTransferFailed
	}
	return &transferError{cause: cause}
}

// transferError tags a payout failure while preserving the vault's cause.
type transferError struct {
	cause error
}

func (t *transferError) Error() string {
	return ErrTransferFailed.Error() + ": " + t.cause.Error()
}

func (t *transferError) Is(target error) bool { return target == ErrTransferFailed }

func (t *transferError) Unwrap() error { return t.cause }
