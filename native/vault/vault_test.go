package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/storage"
)

func TestCreditDebitBalance(t *testing.T) {
	v := NewVault()
	if err := v.Credit(big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := v.Debit(big.NewInt(400)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	bal, err := v.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected balance 600, got %s", bal)
	}
	if err := v.Debit(big.NewInt(601)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPayOutInvokesTransferHook(t *testing.T) {
	v := NewVault()
	if err := v.Credit(big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	var gotTo common.Address
	var gotAmount *big.Int
	v.SetTransferFunc(func(to common.Address, amount *big.Int) error {
		gotTo = to
		gotAmount = amount
		return nil
	})
	recipient := common.Address{19: 0x07}
	if err := v.PayOut(recipient, big.NewInt(300)); err != nil {
		t.Fatalf("pay out: %v", err)
	}
	if gotTo != recipient || gotAmount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("hook saw %s/%s", gotTo.Hex(), gotAmount)
	}
	bal, err := v.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected balance 200 after payout, got %s", bal)
	}
}

func TestPayOutFailedHookLeavesBalance(t *testing.T) {
	v := NewVault()
	if err := v.Credit(big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	hookErr := errors.New("rail unavailable")
	v.SetTransferFunc(func(common.Address, *big.Int) error { return hookErr })
	if err := v.PayOut(common.Address{19: 0x07}, big.NewInt(300)); !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	bal, err := v.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected untouched balance 500, got %s", bal)
	}
}

func TestStoredVaultSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	v, err := NewStoredVault(db)
	if err != nil {
		t.Fatalf("new stored vault: %v", err)
	}
	if err := v.Credit(big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := v.Debit(big.NewInt(400)); err != nil {
		t.Fatalf("debit: %v", err)
	}

	reopened, err := NewStoredVault(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	bal, err := reopened.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected balance 600 after reopen, got %s", bal)
	}
	if err := reopened.PayOut(common.Address{19: 0x07}, big.NewInt(600)); err != nil {
		t.Fatalf("pay out after reopen: %v", err)
	}
	again, err := NewStoredVault(db)
	if err != nil {
		t.Fatalf("second reopen: %v", err)
	}
	bal, err = again.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("expected drained vault after payout, got %s", bal)
	}
}
