package backend

import (
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquidstake/core/epoch"
	"liquidstake/storage"
)

var operatorPrefix = []byte("backend/operator/")

type storedUnbond struct {
	Nonce    uint64
	Amount   *big.Int
	Maturity uint64
}

type storedOperator struct {
	Stake   *big.Int
	Seq     uint64
	Unbonds []storedUnbond
}

func operatorKey(addr common.Address) []byte {
	return append(append([]byte(nil), operatorPrefix...), addr.Bytes()...)
}

// NewStoredOperator binds an operator to db, restoring its bonded stake,
// nonce sequence, and open unbond book under a key derived from addr. Stake
// and unbond mutations write the record back, so tickets issued before a
// daemon restart still resolve their unbond legs.
func NewStoredOperator(db storage.Database, addr common.Address, epochs epoch.Source, unbondDelay uint64) (*Operator, error) {
	o := NewOperator(addr, epochs, unbondDelay)
	o.db = db
	raw, err := db.Get(operatorKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return o, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedOperator
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	if stored.Stake != nil {
		o.stake.Set(stored.Stake)
	}
	o.seq = stored.Seq
	for _, u := range stored.Unbonds {
		o.unbonds[u.Nonce] = &unbond{
			amount:   new(big.Int).Set(u.Amount),
			maturity: u.Maturity,
		}
	}
	return o, nil
}

func (o *Operator) persistLocked() error {
	if o.db == nil {
		return nil
	}
	stored := storedOperator{
		Stake:   o.stake,
		Seq:     o.seq,
		Unbonds: make([]storedUnbond, 0, len(o.unbonds)),
	}
	for nonce, u := range o.unbonds {
		stored.Unbonds = append(stored.Unbonds, storedUnbond{
			Nonce:    nonce,
			Amount:   u.amount,
			Maturity: u.maturity,
		})
	}
	sort.Slice(stored.Unbonds, func(i, j int) bool {
		return stored.Unbonds[i].Nonce < stored.Unbonds[j].Nonce
	})
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return o.db.Put(operatorKey(o.addr), raw)
}
