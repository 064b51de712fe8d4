package receipt

import (
	"bytes"
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquidstake/storage"
)

var stateKey = []byte("receipt/state")

type storedBalance struct {
	Holder  common.Address
	Balance *big.Int
}

type storedToken struct {
	Supply   *big.Int
	Balances []storedBalance
}

// NewStoredToken binds a token to db, restoring any persisted balance book.
// Every mint and burn writes the book back under the same key, so the supply
// the exchange rate reads survives a daemon restart.
func NewStoredToken(db storage.Database) (*Token, error) {
	t := NewToken()
	t.db = db
	raw, err := db.Get(stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedToken
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	if stored.Supply != nil {
		t.supply.Set(stored.Supply)
	}
	for _, b := range stored.Balances {
		if b.Balance == nil {
			continue
		}
		t.balances[b.Holder] = new(big.Int).Set(b.Balance)
	}
	return t, nil
}

func (t *Token) persistLocked() error {
	if t.db == nil {
		return nil
	}
	stored := storedToken{
		Supply:   t.supply,
		Balances: make([]storedBalance, 0, len(t.balances)),
	}
	for holder, bal := range t.balances {
		stored.Balances = append(stored.Balances, storedBalance{Holder: holder, Balance: bal})
	}
	sort.Slice(stored.Balances, func(i, j int) bool {
		return bytes.Compare(stored.Balances[i].Holder[:], stored.Balances[j].Holder[:]) < 0
	})
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return t.db.Put(stateKey, raw)
}
