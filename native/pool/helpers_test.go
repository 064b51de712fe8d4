package pool

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type fakeEpoch struct {
	current uint64
	delay   uint64
}

func (f *fakeEpoch) CurrentEpoch() uint64 { return f.current }
func (f *fakeEpoch) EpochDelay() uint64   { return f.delay }

type memState struct {
	ledger  *Ledger
	tickets map[uint64]*Ticket
	index   map[uint64][]uint64
	stakers map[common.Address]bool
}

func newMemState() *memState {
	return &memState{
		ledger:  NewLedger(),
		tickets: make(map[uint64]*Ticket),
		index:   make(map[uint64][]uint64),
		stakers: make(map[common.Address]bool),
	}
}

func (m *memState) Ledger() (*Ledger, error)    { return m.ledger.Clone(), nil }
func (m *memState) PutLedger(l *Ledger) error   { m.ledger = l.Clone(); return nil }
func (m *memState) Ticket(id uint64) (*Ticket, bool, error) {
	t, ok := m.tickets[id]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}
func (m *memState) PutTicket(t *Ticket) error   { m.tickets[t.ID] = t.Clone(); return nil }
func (m *memState) DeleteTicket(id uint64) error { delete(m.tickets, id); return nil }
func (m *memState) TicketIDsAt(epoch uint64) ([]uint64, error) {
	return append([]uint64(nil), m.index[epoch]...), nil
}
func (m *memState) PutTicketIDsAt(epoch uint64, ids []uint64) error {
	if len(ids) == 0 {
		delete(m.index, epoch)
		return nil
	}
	m.index[epoch] = append([]uint64(nil), ids...)
	return nil
}
func (m *memState) MarkEverStaked(addr common.Address) error {
	m.stakers[addr] = true
	return nil
}
func (m *memState) EverStakedCount() (uint64, error) {
	return uint64(len(m.stakers)), nil
}

func (m *memState) Batch() StateBatch { return &memBatch{state: m} }

// memBatch defers its writes until Commit, mirroring the RLP store's write
// batch.
type memBatch struct {
	state *memState
	ops   []func()
}

func (b *memBatch) PutLedger(l *Ledger) error {
	c := l.Clone()
	b.ops = append(b.ops, func() { b.state.ledger = c })
	return nil
}

func (b *memBatch) PutTicket(t *Ticket) error {
	c := t.Clone()
	b.ops = append(b.ops, func() { b.state.tickets[c.ID] = c })
	return nil
}

func (b *memBatch) DeleteTicket(id uint64) error {
	b.ops = append(b.ops, func() { delete(b.state.tickets, id) })
	return nil
}

func (b *memBatch) PutTicketIDsAt(epoch uint64, ids []uint64) error {
	c := append([]uint64(nil), ids...)
	b.ops = append(b.ops, func() {
		if len(c) == 0 {
			delete(b.state.index, epoch)
			return
		}
		b.state.index[epoch] = c
	})
	return nil
}

func (b *memBatch) MarkEverStaked(addr common.Address) error {
	b.ops = append(b.ops, func() { b.state.stakers[addr] = true })
	return nil
}

func (b *memBatch) Commit() error {
	for _, op := range b.ops {
		op()
	}
	return nil
}

type mockBackend struct {
	addr        common.Address
	stake       *big.Int
	nonce       uint64
	records     map[uint64]*UnbondRecord
	clock       *fakeEpoch
	unbondDelay uint64
	failAccept  bool
	failClaim   bool
}

func newMockBackend(suffix byte, stake int64, clock *fakeEpoch) *mockBackend {
	var addr common.Address
	addr[len(addr)-1] = suffix
	return &mockBackend{
		addr:        addr,
		stake:       big.NewInt(stake),
		records:     make(map[uint64]*UnbondRecord),
		clock:       clock,
		unbondDelay: clock.delay,
	}
}

func (b *mockBackend) Address() common.Address { return b.addr }

func (b *mockBackend) TotalStake() (*big.Int, error) {
	return new(big.Int).Set(b.stake), nil
}

func (b *mockBackend) AcceptStake(amount *big.Int) error {
	if b.failAccept {
		return fmt.Errorf("backend %x: stake rejected", b.addr[19])
	}
	b.stake.Add(b.stake, amount)
	return nil
}

func (b *mockBackend) Unstake(amount *big.Int) error {
	if b.stake.Cmp(amount) < 0 {
		return fmt.Errorf("backend %x: unstake exceeds stake", b.addr[19])
	}
	b.stake.Sub(b.stake, amount)
	b.nonce++
	b.records[b.nonce] = &UnbondRecord{
		Amount:        new(big.Int).Set(amount),
		MaturityEpoch: b.clock.current + b.unbondDelay,
	}
	return nil
}

func (b *mockBackend) UnbondNonceFor(common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *mockBackend) ResolveUnbond(nonce uint64) (*UnbondRecord, error) {
	rec, ok := b.records[nonce]
	if !ok {
		return nil, fmt.Errorf("backend %x: unknown unbond nonce %d", b.addr[19], nonce)
	}
	return &UnbondRecord{Amount: new(big.Int).Set(rec.Amount), MaturityEpoch: rec.MaturityEpoch}, nil
}

func (b *mockBackend) Claim(nonce uint64) (*big.Int, error) {
	if b.failClaim {
		return nil, fmt.Errorf("backend %x: claim refused", b.addr[19])
	}
	rec, ok := b.records[nonce]
	if !ok {
		return nil, fmt.Errorf("backend %x: unknown unbond nonce %d", b.addr[19], nonce)
	}
	if b.clock.current < rec.MaturityEpoch {
		return nil, fmt.Errorf("backend %x: unbond not matured", b.addr[19])
	}
	delete(b.records, nonce)
	return new(big.Int).Set(rec.Amount), nil
}

type mockRegistry struct {
	infos    []BackendInfo
	minStake *big.Int
}

func (r *mockRegistry) ListActiveForDelegation() ([]BackendInfo, error) {
	return r.infos, nil
}

func (r *mockRegistry) ListActiveForWithdrawal() ([]BackendInfo, error) {
	return r.infos, nil
}

func (r *mockRegistry) CandidateSetForWithdraw(*big.Int) (*CandidateSet, error) {
	set := &CandidateSet{
		TotalDelegated: new(big.Int),
		Count:          len(r.infos),
		MinStakeFloor:  new(big.Int),
	}
	if r.minStake != nil {
		set.MinStakeFloor.Set(r.minStake)
	}
	for _, info := range r.infos {
		stake, err := info.Backend.TotalStake()
		if err != nil {
			return nil, err
		}
		set.TotalDelegated.Add(set.TotalDelegated, stake)
		set.Candidates = append(set.Candidates, info.Backend)
	}
	return set, nil
}

func (r *mockRegistry) Lookup(ref common.Address) (Backend, error) {
	for _, info := range r.infos {
		if info.Backend.Address() == ref {
			return info.Backend, nil
		}
	}
	return nil, fmt.Errorf("registry: unknown backend %s", ref.Hex())
}

type mockTickets struct {
	nextID   uint64
	owners   map[uint64]common.Address
	approved map[uint64]common.Address
}

func newMockTickets() *mockTickets {
	return &mockTickets{
		owners:   make(map[uint64]common.Address),
		approved: make(map[uint64]common.Address),
	}
}

func (m *mockTickets) Mint(owner common.Address) (uint64, error) {
	m.nextID++
	m.owners[m.nextID] = owner
	return m.nextID, nil
}

func (m *mockTickets) Burn(id uint64) error {
	if _, ok := m.owners[id]; !ok {
		return errors.New("ticket ledger: unknown ticket")
	}
	delete(m.owners, id)
	delete(m.approved, id)
	return nil
}

func (m *mockTickets) IsApprovedOrOwner(caller common.Address, id uint64) (bool, error) {
	owner, ok := m.owners[id]
	if !ok {
		return false, nil
	}
	return owner == caller || m.approved[id] == caller, nil
}

func (m *mockTickets) OwnedTickets(owner common.Address) ([]uint64, error) {
	var ids []uint64
	for id, o := range m.owners {
		if o == owner {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type mockReceipt struct {
	balances map[common.Address]*big.Int
	supply   *big.Int
}

func newMockReceipt() *mockReceipt {
	return &mockReceipt{balances: make(map[common.Address]*big.Int), supply: new(big.Int)}
}

func (m *mockReceipt) Mint(to common.Address, amount *big.Int) error {
	if m.balances[to] == nil {
		m.balances[to] = new(big.Int)
	}
	m.balances[to].Add(m.balances[to], amount)
	m.supply.Add(m.supply, amount)
	return nil
}

func (m *mockReceipt) Burn(from common.Address, amount *big.Int) error {
	if m.balances[from] == nil || m.balances[from].Cmp(amount) < 0 {
		return errors.New("receipt: burn exceeds balance")
	}
	m.balances[from].Sub(m.balances[from], amount)
	m.supply.Sub(m.supply, amount)
	return nil
}

func (m *mockReceipt) BalanceOf(addr common.Address) (*big.Int, error) {
	if m.balances[addr] == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(m.balances[addr]), nil
}

func (m *mockReceipt) TotalSupply() (*big.Int, error) {
	return new(big.Int).Set(m.supply), nil
}

type mockVault struct {
	balance    *big.Int
	paid       map[common.Address]*big.Int
	failPayOut bool
}

func newMockVault() *mockVault {
	return &mockVault{balance: new(big.Int), paid: make(map[common.Address]*big.Int)}
}

func (m *mockVault) Balance() (*big.Int, error) {
	return new(big.Int).Set(m.balance), nil
}

func (m *mockVault) Credit(amount *big.Int) error {
	m.balance.Add(m.balance, amount)
	return nil
}

func (m *mockVault) Debit(amount *big.Int) error {
	if m.balance.Cmp(amount) < 0 {
		return errors.New("vault: debit exceeds balance")
	}
	m.balance.Sub(m.balance, amount)
	return nil
}

func (m *mockVault) PayOut(to common.Address, amount *big.Int) error {
	if m.failPayOut {
		return errors.New("vault: transfer rejected")
	}
	if err := m.Debit(amount); err != nil {
		return err
	}
	if m.paid[to] == nil {
		m.paid[to] = new(big.Int)
	}
	m.paid[to].Add(m.paid[to], amount)
	return nil
}

type fixture struct {
	engine   *Engine
	state    *memState
	registry *mockRegistry
	tickets  *mockTickets
	receipt  *mockReceipt
	vault    *mockVault
	clock    *fakeEpoch
}

func userAddr(suffix byte) common.Address {
	var addr common.Address
	addr[0] = 0xAA
	addr[len(addr)-1] = suffix
	return addr
}

func newFixture(t *testing.T, clock *fakeEpoch, backends ...*mockBackend) *fixture {
	t.Helper()
	if clock == nil {
		clock = &fakeEpoch{current: 0, delay: 2}
	}
	registry := &mockRegistry{minStake: new(big.Int)}
	for _, b := range backends {
		registry.infos = append(registry.infos, BackendInfo{Backend: b, Weight: 50})
	}
	f := &fixture{
		engine:   NewEngine(userAddr(0xFE)),
		state:    newMemState(),
		registry: registry,
		tickets:  newMockTickets(),
		receipt:  newMockReceipt(),
		vault:    newMockVault(),
		clock:    clock,
	}
	f.engine.SetState(f.state)
	f.engine.SetRegistry(f.registry)
	f.engine.SetTicketLedger(f.tickets)
	f.engine.SetReceiptToken(f.receipt)
	f.engine.SetVault(f.vault)
	f.engine.SetEpochSource(f.clock)
	return f
}

// deposit funds the pool through the engine and fails the test on error.
func (f *fixture) deposit(t *testing.T, who common.Address, amount int64) *big.Int {
	t.Helper()
	minted, err := f.engine.Deposit(who, big.NewInt(amount))
	if err != nil {
		t.Fatalf("deposit %d: %v", amount, err)
	}
	return minted
}
