package vault

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"liquidstake/storage"
)

var stateKey = []byte("vault/state")

// NewStoredVault binds a vault to db, restoring any persisted balance. Every
// credit, debit, and payout writes the balance back, keeping the on-hand
// holdings in step with the pool ledger across daemon restarts.
func NewStoredVault(db storage.Database) (*Vault, error) {
	v := NewVault()
	v.db = db
	raw, err := db.Get(stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(raw, balance); err != nil {
		return nil, err
	}
	v.balance = balance
	return v, nil
}

func (v *Vault) persistLocked() error {
	if v.db == nil {
		return nil
	}
	raw, err := rlp.EncodeToBytes(v.balance)
	if err != nil {
		return err
	}
	return v.db.Put(stateKey, raw)
}
