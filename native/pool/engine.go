package pool

import (
	"bytes"
	"math/big"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/core/epoch"
	"liquidstake/core/events"
	nativecommon "liquidstake/native/common"
)

const moduleName = "pool"

// engineState is the narrow persistence surface the engine mutates. The
// daemon wires a Store; tests wire an in-memory mock.
type engineState interface {
	Ledger() (*Ledger, error)
	PutLedger(*Ledger) error
	Ticket(id uint64) (*Ticket, bool, error)
	PutTicket(*Ticket) error
	DeleteTicket(id uint64) error
	TicketIDsAt(epoch uint64) ([]uint64, error)
	PutTicketIDsAt(epoch uint64, ids []uint64) error
	MarkEverStaked(addr common.Address) error
	EverStakedCount() (uint64, error)
	Batch() StateBatch
}

// StateBatch stages the multi-key writes of one engine operation so they land
// in the database together or not at all.
type StateBatch interface {
	PutLedger(*Ledger) error
	PutTicket(*Ticket) error
	DeleteTicket(id uint64) error
	PutTicketIDsAt(epoch uint64, ids []uint64) error
	MarkEverStaked(addr common.Address) error
	Commit() error
}

// Engine owns the pooled-accounting state machine: deposits, delegation
// distribution, the withdrawal lifecycle, and claim settlement. Every
// mutating entry point holds one exclusive lock for its entire duration,
// including collaborator calls, and rejects nested re-entry.
type Engine struct {
	mu     sync.Mutex
	holder atomic.Uint64

	state    engineState
	registry BackendRegistry
	tickets  TicketLedger
	receipt  ReceiptToken
	vault    Vault
	epochs   epoch.Source
	emitter  events.Emitter
	pauses   nativecommon.PauseView

	moduleAddress common.Address

	minDeposit           *big.Int
	maxDeposit           *big.Int
	delegationLowerBound *big.Int
	feeSplit             FeeSplit
}

// NewEngine constructs a pool engine identified by moduleAddr towards its
// backends. Collaborators are wired through the Set* methods before use.
func NewEngine(moduleAddr common.Address) *Engine {
	return &Engine{
		moduleAddress:        moduleAddr,
		emitter:              events.NoopEmitter{},
		minDeposit:           new(big.Int),
		maxDeposit:           new(big.Int),
		delegationLowerBound: new(big.Int),
	}
}

// SetState wires the engine to its persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry wires the backend directory.
func (e *Engine) SetRegistry(registry BackendRegistry) { e.registry = registry }

// SetTicketLedger wires the withdrawal-ticket ownership service.
func (e *Engine) SetTicketLedger(ledger TicketLedger) { e.tickets = ledger }

// SetReceiptToken wires the fungible receipt token ledger.
func (e *Engine) SetReceiptToken(token ReceiptToken) { e.receipt = token }

// SetVault wires the base-asset account backing buffered funds.
func (e *Engine) SetVault(vault Vault) { e.vault = vault }

// SetEpochSource wires the oracle-advanced epoch clock.
func (e *Engine) SetEpochSource(src epoch.Source) { e.epochs = src }

// SetEmitter overrides the no-op event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the administrative pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetDepositThresholds updates the deposit admission bounds. A zero maximum
// means unbounded.
func (e *Engine) SetDepositThresholds(min, max *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.minDeposit = cloneOrZero(min)
	e.maxDeposit = cloneOrZero(max)
	e.emitter.Emit(events.ThresholdsUpdated{MinDeposit: e.minDeposit, MaxDeposit: e.maxDeposit})
}

// SetDelegationLowerBound updates the minimum buffered excess required before
// a delegation cycle runs.
func (e *Engine) SetDelegationLowerBound(bound *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delegationLowerBound = cloneOrZero(bound)
}

// SetFeeSplit stores the treasury/operator fee split. The split is inert: it
// is surfaced and emitted but not consumed by any formula.
func (e *Engine) SetFeeSplit(split FeeSplit) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeSplit = split
	e.emitter.Emit(events.FeeSplitUpdated{TreasuryBps: split.TreasuryBps, OperatorBps: split.OperatorBps})
}

// FeeSplit returns the stored fee split.
func (e *Engine) FeeSplit() FeeSplit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feeSplit
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// enter acquires the engine lock for one mutating entry point. The lock stays
// held across collaborator calls, so a collaborator that calls back into the
// engine on the same goroutine would deadlock on the mutex; the holder's
// goroutine id is checked first and nested calls are rejected instead.
// Callers on other goroutines queue on the mutex as usual. exit must be called
// on every return path.
func (e *Engine) enter() error {
	id := goid()
	if e.holder.Load() == id {
		return ErrReentrancy
	}
	e.mu.Lock()
	e.holder.Store(id)
	return nil
}

func (e *Engine) exit() {
	e.holder.Store(0)
	e.mu.Unlock()
}

// goid parses the running goroutine's id from its stack header, e.g.
// "goroutine 18 [running]:".
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (e *Engine) checkWiring() error {
	switch {
	case e.state == nil:
		return errNilState
	case e.registry == nil:
		return errNilRegistry
	case e.tickets == nil:
		return errNilTicketLedger
	case e.receipt == nil:
		return errNilReceipt
	case e.vault == nil:
		return errNilVault
	case e.epochs == nil:
		return errNilEpochs
	}
	return nil
}

// totalDelegated sums live stake across the withdrawable backend set.
func (e *Engine) totalDelegated() (*big.Int, error) {
	backends, err := e.registry.ListActiveForWithdrawal()
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, info := range backends {
		stake, err := info.Backend.TotalStake()
		if err != nil {
			return nil, err
		}
		if stake != nil {
			total.Add(total, stake)
		}
	}
	return total, nil
}

// pooledValue computes delegated + buffered - reserved for the given ledger.
// A negative result is a protocol invariant violation and surfaces as a
// fatal NegativePoolValue fault.
func (e *Engine) pooledValue(ledger *Ledger) (*big.Int, error) {
	delegated, err := e.totalDelegated()
	if err != nil {
		return nil, err
	}
	return e.pooledValueWith(ledger, delegated)
}

func (e *Engine) pooledValueWith(ledger *Ledger, delegated *big.Int) (*big.Int, error) {
	value := new(big.Int).Add(delegated, ledger.TotalBuffered)
	value.Sub(value, ledger.ReservedFunds)
	if value.Sign() < 0 {
		return nil, fault(ErrNegativePoolValue)
	}
	return value, nil
}

// Deposit credits amount to the buffer and mints receipt tokens for the
// depositor at the current exchange rate. The minted receipt amount is
// returned.
func (e *Engine) Deposit(depositor common.Address, amount *big.Int) (*big.Int, error) {
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

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.minDeposit.Sign() > 0 && amount.Cmp(e.minDeposit) < 0 {
		return nil, ErrBelowMinimumDeposit
	}
	if e.maxDeposit.Sign() > 0 && amount.Cmp(e.maxDeposit) > 0 {
		return nil, ErrAboveMaximumDeposit
	}

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

	minted := ValueToReceipt(amount, pooled, supply)
	if minted.Sign() == 0 {
		return nil, ErrZeroMint
	}

	if err := e.vault.Credit(amount); err != nil {
		return nil, err
	}
	if err := e.receipt.Mint(depositor, minted); err != nil {
		return nil, err
	}

	ledger.TotalBuffered.Add(ledger.TotalBuffered, amount)
	batch := e.state.Batch()
	if err := batch.MarkEverStaked(depositor); err != nil {
		return nil, err
	}
	if err := batch.PutLedger(ledger); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.PoolDeposited{
		Depositor:     depositor,
		Amount:        new(big.Int).Set(amount),
		ReceiptMinted: minted,
		TotalBuffered: new(big.Int).Set(ledger.TotalBuffered),
	})
	return minted, nil
}

// ReceiveExternalValue credits value a backend returned to the pool outside
// the claim path, e.g. harvested rewards. The buffer grows, which raises the
// exchange rate for all receipt holders.
func (e *Engine) ReceiveExternalValue(amount *big.Int) error {
	if err := e.checkWiring(); err != nil {
		return err
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	ledger, err := e.state.Ledger()
	if err != nil {
		return err
	}
	ledger.normalize()
	if err := e.vault.Credit(amount); err != nil {
		return err
	}
	ledger.TotalBuffered.Add(ledger.TotalBuffered, amount)
	return e.state.PutLedger(ledger)
}

// TotalPooledValue reports delegated + buffered - reserved.
func (e *Engine) TotalPooledValue() (*big.Int, error) {
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
	return e.pooledValue(ledger)
}
