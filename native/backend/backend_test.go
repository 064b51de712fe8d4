package backend

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/storage"
)

type fakeClock struct {
	current uint64
	delay   uint64
}

func (f *fakeClock) CurrentEpoch() uint64 { return f.current }

func (f *fakeClock) EpochDelay() uint64 { return f.delay }

func opAddr(suffix byte) common.Address {
	var addr common.Address
	addr[19] = suffix
	return addr
}

func TestOperatorUnbondLifecycle(t *testing.T) {
	clock := &fakeClock{current: 10}
	op := NewOperator(opAddr(0x01), clock, 3)
	if err := op.AcceptStake(big.NewInt(5000)); err != nil {
		t.Fatalf("accept stake: %v", err)
	}
	if err := op.Unstake(big.NewInt(2000)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	nonce, err := op.UnbondNonceFor(common.Address{})
	if err != nil {
		t.Fatalf("unbond nonce: %v", err)
	}
	if nonce != 1 {
		t.Fatalf("expected first nonce 1, got %d", nonce)
	}
	stake, err := op.TotalStake()
	if err != nil {
		t.Fatalf("total stake: %v", err)
	}
	if stake.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("expected bonded stake 3000 after unstake, got %s", stake)
	}
	rec, err := op.ResolveUnbond(nonce)
	if err != nil {
		t.Fatalf("resolve unbond: %v", err)
	}
	if rec.Amount.Cmp(big.NewInt(2000)) != 0 || rec.MaturityEpoch != 13 {
		t.Fatalf("unexpected unbond record: %+v", rec)
	}
	if _, err := op.Claim(nonce); !errors.Is(err, ErrNotDue) {
		t.Fatalf("expected ErrNotDue before maturity, got %v", err)
	}
	clock.current = 13
	amount, err := op.Claim(nonce)
	if err != nil {
		t.Fatalf("claim at maturity: %v", err)
	}
	if amount.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("expected claimed amount 2000, got %s", amount)
	}
	if _, err := op.Claim(nonce); !errors.Is(err, ErrUnknownNonce) {
		t.Fatalf("expected ErrUnknownNonce on double claim, got %v", err)
	}
	if op.PendingUnbonds() != 0 {
		t.Fatalf("expected no pending unbonds, got %d", op.PendingUnbonds())
	}
}

func TestOperatorRejectsOverUnstake(t *testing.T) {
	op := NewOperator(opAddr(0x02), &fakeClock{}, 1)
	if err := op.AcceptStake(big.NewInt(100)); err != nil {
		t.Fatalf("accept stake: %v", err)
	}
	if err := op.Unstake(big.NewInt(101)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
}

func TestRegistryAddAndFilters(t *testing.T) {
	clock := &fakeClock{}
	reg := NewRegistry(big.NewInt(500))
	a := NewOperator(opAddr(0x0a), clock, 1)
	b := NewOperator(opAddr(0x0b), clock, 1)
	c := NewOperator(opAddr(0x0c), clock, 1)
	for _, op := range []*Operator{a, b, c} {
		if err := reg.Add(op, 10, op.Address()); err != nil {
			t.Fatalf("add %s: %v", op.Address().Hex(), err)
		}
	}
	if err := reg.Add(a, 10, a.Address()); !errors.Is(err, ErrDuplicateBackend) {
		t.Fatalf("expected ErrDuplicateBackend, got %v", err)
	}

	if err := reg.SetStatus(b.Address(), StatusJailed); err != nil {
		t.Fatalf("jail b: %v", err)
	}
	if err := reg.SetStatus(c.Address(), StatusEjected); err != nil {
		t.Fatalf("eject c: %v", err)
	}

	delegable, err := reg.ListActiveForDelegation()
	if err != nil {
		t.Fatalf("list for delegation: %v", err)
	}
	if len(delegable) != 1 || delegable[0].Backend.Address() != a.Address() {
		t.Fatalf("expected only active operator a delegable, got %d entries", len(delegable))
	}

	withdrawable, err := reg.ListActiveForWithdrawal()
	if err != nil {
		t.Fatalf("list for withdrawal: %v", err)
	}
	if len(withdrawable) != 2 {
		t.Fatalf("expected jailed operator to back withdrawals, got %d entries", len(withdrawable))
	}

	if _, err := reg.Lookup(c.Address()); err != nil {
		t.Fatalf("ejected but registered operator must stay resolvable: %v", err)
	}
}

func TestRegistryCandidateSet(t *testing.T) {
	clock := &fakeClock{}
	reg := NewRegistry(big.NewInt(750))
	a := NewOperator(opAddr(0x0a), clock, 1)
	b := NewOperator(opAddr(0x0b), clock, 1)
	if err := reg.Add(a, 60, a.Address()); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := reg.Add(b, 40, b.Address()); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := a.AcceptStake(big.NewInt(3000)); err != nil {
		t.Fatalf("stake a: %v", err)
	}
	if err := b.AcceptStake(big.NewInt(1000)); err != nil {
		t.Fatalf("stake b: %v", err)
	}
	set, err := reg.CandidateSetForWithdraw(big.NewInt(2500))
	if err != nil {
		t.Fatalf("candidate set: %v", err)
	}
	if set.Count != 2 {
		t.Fatalf("expected 2 candidates, got %d", set.Count)
	}
	if set.TotalDelegated.Cmp(big.NewInt(4000)) != 0 {
		t.Fatalf("expected total delegated 4000, got %s", set.TotalDelegated)
	}
	if set.MinStakeFloor.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("expected floor 750, got %s", set.MinStakeFloor)
	}
}

func TestRegistryRemoveSwapsTail(t *testing.T) {
	clock := &fakeClock{}
	reg := NewRegistry(nil)
	a := NewOperator(opAddr(0x0a), clock, 1)
	b := NewOperator(opAddr(0x0b), clock, 1)
	c := NewOperator(opAddr(0x0c), clock, 1)
	for _, op := range []*Operator{a, b, c} {
		if err := reg.Add(op, 1, op.Address()); err != nil {
			t.Fatalf("add %s: %v", op.Address().Hex(), err)
		}
	}
	if err := reg.Remove(a.Address()); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 entries after removal, got %d", reg.Len())
	}
	if _, err := reg.Lookup(a.Address()); !errors.Is(err, ErrBackendNotFound) {
		t.Fatalf("expected removed operator to be unresolvable, got %v", err)
	}
	// Tail entry c now occupies a's slot; both survivors must still resolve.
	infos, err := reg.ListActiveForDelegation()
	if err != nil {
		t.Fatalf("list after removal: %v", err)
	}
	if infos[0].Backend.Address() != c.Address() || infos[1].Backend.Address() != b.Address() {
		t.Fatalf("unexpected order after swap-and-pop: %s, %s",
			infos[0].Backend.Address().Hex(), infos[1].Backend.Address().Hex())
	}
	for _, op := range []*Operator{b, c} {
		if _, err := reg.Lookup(op.Address()); err != nil {
			t.Fatalf("lookup %s after removal: %v", op.Address().Hex(), err)
		}
	}
	if err := reg.Remove(a.Address()); !errors.Is(err, ErrBackendNotFound) {
		t.Fatalf("expected ErrBackendNotFound on double remove, got %v", err)
	}
}

func TestStoredOperatorSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	clock := &fakeClock{current: 10}
	op, err := NewStoredOperator(db, opAddr(0x01), clock, 3)
	if err != nil {
		t.Fatalf("new stored operator: %v", err)
	}
	if err := op.AcceptStake(big.NewInt(5000)); err != nil {
		t.Fatalf("accept stake: %v", err)
	}
	if err := op.Unstake(big.NewInt(2000)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	nonce, err := op.UnbondNonceFor(common.Address{})
	if err != nil {
		t.Fatalf("unbond nonce: %v", err)
	}

	reopened, err := NewStoredOperator(db, opAddr(0x01), clock, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	stake, err := reopened.TotalStake()
	if err != nil {
		t.Fatalf("total stake: %v", err)
	}
	if stake.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("expected bonded stake 3000 after reopen, got %s", stake)
	}
	rec, err := reopened.ResolveUnbond(nonce)
	if err != nil {
		t.Fatalf("resolve unbond after reopen: %v", err)
	}
	if rec.Amount.Cmp(big.NewInt(2000)) != 0 || rec.MaturityEpoch != 13 {
		t.Fatalf("unexpected restored unbond record: %+v", rec)
	}
	clock.current = 13
	amount, err := reopened.Claim(nonce)
	if err != nil {
		t.Fatalf("claim at maturity after reopen: %v", err)
	}
	if amount.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("expected claimed amount 2000, got %s", amount)
	}
	if err := reopened.Unstake(big.NewInt(1000)); err != nil {
		t.Fatalf("unstake after reopen: %v", err)
	}
	second, err := reopened.UnbondNonceFor(common.Address{})
	if err != nil {
		t.Fatalf("second unbond nonce: %v", err)
	}
	if second != nonce+1 {
		t.Fatalf("expected nonce sequence to continue at %d, got %d", nonce+1, second)
	}
}
