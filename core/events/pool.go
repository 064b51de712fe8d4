package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypePoolDeposited captures a deposit credited to the buffer and the
	// receipt tokens minted against it.
	TypePoolDeposited = "pool.deposited"
	// TypePoolDelegated captures one delegation cycle pushing buffered value
	// out to the active backend set.
	TypePoolDelegated = "pool.delegated"
	// TypePoolWithdrawRequested is emitted when a withdrawal ticket is minted.
	TypePoolWithdrawRequested = "pool.withdrawRequested"
	// TypePoolClaimed is emitted when a mature ticket settles and pays out.
	TypePoolClaimed = "pool.claimed"
	// TypeEpochAdvanced records the oracle moving the epoch counter.
	TypeEpochAdvanced = "epoch.advanced"
	// TypeThresholdsUpdated records an administrative deposit-bound change.
	TypeThresholdsUpdated = "pool.thresholdsUpdated"
	// TypeFeeSplitUpdated records an administrative fee-split change. The
	// split is stored and surfaced but not consumed by any conversion.
	TypeFeeSplitUpdated = "pool.feeSplitUpdated"
	// TypeTicketMaturityOverridden records an emergency per-ticket maturity
	// correction.
	TypeTicketMaturityOverridden = "pool.ticketMaturityOverridden"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// PoolDeposited captures the outcome of a deposit.
type PoolDeposited struct {
	Depositor     common.Address
	Amount        *big.Int
	ReceiptMinted *big.Int
	TotalBuffered *big.Int
}

// EventType satisfies the Event interface.
func (PoolDeposited) EventType() string { return TypePoolDeposited }

// Attributes flattens the payload for broadcast.
func (e PoolDeposited) Attributes() map[string]string {
	return map[string]string{
		"depositor":     e.Depositor.Hex(),
		"amount":        formatAmount(e.Amount),
		"receiptMinted": formatAmount(e.ReceiptMinted),
		"totalBuffered": formatAmount(e.TotalBuffered),
	}
}

// PoolDelegated captures one completed delegation cycle.
type PoolDelegated struct {
	AmountDelegated *big.Int
	Remainder       *big.Int
	Backends        int
}

func (PoolDelegated) EventType() string { return TypePoolDelegated }

func (e PoolDelegated) Attributes() map[string]string {
	return map[string]string{
		"amountDelegated": formatAmount(e.AmountDelegated),
		"remainder":       formatAmount(e.Remainder),
		"backends":        strconv.Itoa(e.Backends),
	}
}

// PoolWithdrawRequested captures a minted withdrawal ticket.
type PoolWithdrawRequested struct {
	Requester     common.Address
	TicketID      uint64
	ReceiptBurned *big.Int
	ValueOwed     *big.Int
	ReservedLeg   *big.Int
	BackendLegs   int
	MaturityEpoch uint64
}

func (PoolWithdrawRequested) EventType() string { return TypePoolWithdrawRequested }

func (e PoolWithdrawRequested) Attributes() map[string]string {
	attrs := map[string]string{
		"requester":     e.Requester.Hex(),
		"ticketId":      strconv.FormatUint(e.TicketID, 10),
		"receiptBurned": formatAmount(e.ReceiptBurned),
		"valueOwed":     formatAmount(e.ValueOwed),
		"backendLegs":   strconv.Itoa(e.BackendLegs),
		"maturityEpoch": strconv.FormatUint(e.MaturityEpoch, 10),
	}
	if e.ReservedLeg != nil && e.ReservedLeg.Sign() > 0 {
		attrs["reservedLeg"] = e.ReservedLeg.String()
	}
	return attrs
}

// PoolClaimed captures a settled withdrawal ticket.
type PoolClaimed struct {
	Claimer  common.Address
	TicketID uint64
	Paid     *big.Int
}

func (PoolClaimed) EventType() string { return TypePoolClaimed }

func (e PoolClaimed) Attributes() map[string]string {
	return map[string]string{
		"claimer":  e.Claimer.Hex(),
		"ticketId": strconv.FormatUint(e.TicketID, 10),
		"paid":     formatAmount(e.Paid),
	}
}

// EpochAdvanced records an oracle epoch update.
type EpochAdvanced struct {
	Previous uint64
	Current  uint64
}

func (EpochAdvanced) EventType() string { return TypeEpochAdvanced }

func (e EpochAdvanced) Attributes() map[string]string {
	return map[string]string{
		"previous": strconv.FormatUint(e.Previous, 10),
		"current":  strconv.FormatUint(e.Current, 10),
	}
}

// ThresholdsUpdated records new deposit admission bounds.
type ThresholdsUpdated struct {
	MinDeposit *big.Int
	MaxDeposit *big.Int
}

func (ThresholdsUpdated) EventType() string { return TypeThresholdsUpdated }

func (e ThresholdsUpdated) Attributes() map[string]string {
	return map[string]string{
		"minDeposit": formatAmount(e.MinDeposit),
		"maxDeposit": formatAmount(e.MaxDeposit),
	}
}

// FeeSplitUpdated records a stored fee-split change.
type FeeSplitUpdated struct {
	TreasuryBps uint64
	OperatorBps uint64
}

func (FeeSplitUpdated) EventType() string { return TypeFeeSplitUpdated }

func (e FeeSplitUpdated) Attributes() map[string]string {
	return map[string]string{
		"treasuryBps": strconv.FormatUint(e.TreasuryBps, 10),
		"operatorBps": strconv.FormatUint(e.OperatorBps, 10),
	}
}

// TicketMaturityOverridden records an emergency maturity rewrite. The epoch
// index is intentionally left untouched by the override.
type TicketMaturityOverridden struct {
	TicketID uint64
	NewEpoch uint64
	Legs     int
}

func (TicketMaturityOverridden) EventType() string { return TypeTicketMaturityOverridden }

func (e TicketMaturityOverridden) Attributes() map[string]string {
	return map[string]string{
		"ticketId": strconv.FormatUint(e.TicketID, 10),
		"newEpoch": strconv.FormatUint(e.NewEpoch, 10),
		"legs":     strconv.Itoa(e.Legs),
	}
}
