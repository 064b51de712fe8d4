package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LegKind distinguishes the two settlement sources a ticket leg can draw on.
type LegKind uint8

const (
	// LegReserved settles out of the pool's reserved funds.
	LegReserved LegKind = iota + 1
	// LegBackend settles by claiming a backend unbond record.
	LegBackend
)

// SettlementLeg is one component of a ticket's settlement. Reserved legs
// carry the owed amount directly; backend legs resolve their amount lazily
// from the backend's unbond record at claim time.
type SettlementLeg struct {
	Kind          LegKind
	Backend       common.Address
	UnbondNonce   uint64
	Amount        *big.Int
	MaturityEpoch uint64
}

// Ticket is the engine-side record attached to a withdrawal-ticket id. It is
// immutable once created except for the administrative maturity override, and
// deleted atomically at claim.
type Ticket struct {
	ID            uint64
	Owner         common.Address
	RequestEpoch  uint64
	IndexEpoch    uint64
	ReceiptBurned *big.Int
	Legs          []SettlementLeg
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := &Ticket{
		ID:           t.ID,
		Owner:        t.Owner,
		RequestEpoch: t.RequestEpoch,
		IndexEpoch:   t.IndexEpoch,
	}
	if t.ReceiptBurned != nil {
		out.ReceiptBurned = new(big.Int).Set(t.ReceiptBurned)
	}
	out.Legs = make([]SettlementLeg, len(t.Legs))
	for i, leg := range t.Legs {
		cloned := leg
		if leg.Amount != nil {
			cloned.Amount = new(big.Int).Set(leg.Amount)
		}
		out.Legs[i] = cloned
	}
	return out
}

// Ledger is the pool's mutable balance sheet. TotalBuffered tracks base-asset
// value held locally and not yet delegated; ReservedFunds tracks the
// liability earmarked for reserved withdrawal legs. ReservedFunds may exceed
// TotalBuffered; liquidity checks compare the two explicitly.
type Ledger struct {
	TotalBuffered *big.Int
	ReservedFunds *big.Int
}

// NewLedger returns a zeroed ledger.
func NewLedger() *Ledger {
	return &Ledger{TotalBuffered: new(big.Int), ReservedFunds: new(big.Int)}
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return NewLedger()
	}
	out := NewLedger()
	if l.TotalBuffered != nil {
		out.TotalBuffered.Set(l.TotalBuffered)
	}
	if l.ReservedFunds != nil {
		out.ReservedFunds.Set(l.ReservedFunds)
	}
	return out
}

func (l *Ledger) normalize() {
	if l.TotalBuffered == nil {
		l.TotalBuffered = new(big.Int)
	}
	if l.ReservedFunds == nil {
		l.ReservedFunds = new(big.Int)
	}
}

// Snapshot is the read surface's consistent view of the pool.
type Snapshot struct {
	TotalBuffered  *big.Int
	ReservedFunds  *big.Int
	TotalDelegated *big.Int
	PooledValue    *big.Int
	ReceiptSupply  *big.Int
	CurrentEpoch   uint64
	EpochDelay     uint64
}

// LegView is a ticket leg with its live-resolved amount for reporting.
type LegView struct {
	Kind          LegKind
	Backend       common.Address
	UnbondNonce   uint64
	Amount        *big.Int
	MaturityEpoch uint64
}

// TicketView is the reporting shape for one ticket.
type TicketView struct {
	ID            uint64
	Owner         common.Address
	RequestEpoch  uint64
	ReceiptBurned *big.Int
	Legs          []LegView
}

// FeeSplit is the stored treasury/operator split. The value is surfaced and
// emitted but not consumed by any conversion or distribution formula.
type FeeSplit struct {
	TreasuryBps uint64
	OperatorBps uint64
}
