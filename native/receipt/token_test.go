package receipt

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/storage"
)

func holder(suffix byte) common.Address {
	var a common.Address
	a[19] = suffix
	return a
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	tok := NewToken()
	a := holder(0x01)
	b := holder(0x02)
	if err := tok.Mint(a, big.NewInt(1000)); err != nil {
		t.Fatalf("mint a: %v", err)
	}
	if err := tok.Mint(b, big.NewInt(500)); err != nil {
		t.Fatalf("mint b: %v", err)
	}
	supply, err := tok.TotalSupply()
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if supply.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("expected supply 1500, got %s", supply)
	}
	if err := tok.Burn(a, big.NewInt(400)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	bal, err := tok.BalanceOf(a)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected balance 600, got %s", bal)
	}
	supply, err = tok.TotalSupply()
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if supply.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("expected supply 1100 after burn, got %s", supply)
	}
}

func TestBurnRejectsOverdraft(t *testing.T) {
	tok := NewToken()
	a := holder(0x01)
	if err := tok.Mint(a, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tok.Burn(a, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := tok.Burn(holder(0x09), big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for unknown holder, got %v", err)
	}
}

func TestInvalidAmounts(t *testing.T) {
	tok := NewToken()
	a := holder(0x01)
	if err := tok.Mint(a, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil mint, got %v", err)
	}
	if err := tok.Mint(a, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero mint, got %v", err)
	}
	if err := tok.Mint(common.Address{}, big.NewInt(1)); !errors.Is(err, ErrZeroHolder) {
		t.Fatalf("expected ErrZeroHolder, got %v", err)
	}
	if err := tok.Burn(a, big.NewInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative burn, got %v", err)
	}
}

func TestStoredTokenSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	tok, err := NewStoredToken(db)
	if err != nil {
		t.Fatalf("new stored token: %v", err)
	}
	a := holder(0x01)
	b := holder(0x02)
	if err := tok.Mint(a, big.NewInt(1000)); err != nil {
		t.Fatalf("mint a: %v", err)
	}
	if err := tok.Mint(b, big.NewInt(500)); err != nil {
		t.Fatalf("mint b: %v", err)
	}
	if err := tok.Burn(a, big.NewInt(400)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	reopened, err := NewStoredToken(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	supply, err := reopened.TotalSupply()
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if supply.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("expected supply 1100 after reopen, got %s", supply)
	}
	balA, err := reopened.BalanceOf(a)
	if err != nil {
		t.Fatalf("balance a: %v", err)
	}
	if balA.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected balance 600 after reopen, got %s", balA)
	}
	balB, err := reopened.BalanceOf(b)
	if err != nil {
		t.Fatalf("balance b: %v", err)
	}
	if balB.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected balance 500 after reopen, got %s", balB)
	}
	if err := reopened.Burn(b, big.NewInt(500)); err != nil {
		t.Fatalf("burn after reopen: %v", err)
	}
}
