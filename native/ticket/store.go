package ticket

import (
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquidstake/storage"
)

var stateKey = []byte("ticketbook/state")

type storedEntry struct {
	ID       uint64
	Owner    common.Address
	Approved common.Address
}

type storedBook struct {
	NextID  uint64
	Entries []storedEntry
}

// NewStoredLedger binds a ticket ledger to db, restoring ownership,
// approvals, and the identifier sequence. Mint, burn, and approve write the
// book back, so tickets stay actionable across daemon restarts.
func NewStoredLedger(db storage.Database) (*Ledger, error) {
	l := NewLedger()
	l.db = db
	raw, err := db.Get(stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedBook
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	l.nextID = stored.NextID
	for _, entry := range stored.Entries {
		l.owners[entry.ID] = entry.Owner
		l.pos[entry.ID] = len(l.owned[entry.Owner])
		l.owned[entry.Owner] = append(l.owned[entry.Owner], entry.ID)
		if entry.Approved != (common.Address{}) {
			l.approvals[entry.ID] = entry.Approved
		}
	}
	return l, nil
}

func (l *Ledger) persistLocked() error {
	if l.db == nil {
		return nil
	}
	stored := storedBook{
		NextID:  l.nextID,
		Entries: make([]storedEntry, 0, len(l.owners)),
	}
	for id, owner := range l.owners {
		stored.Entries = append(stored.Entries, storedEntry{
			ID:       id,
			Owner:    owner,
			Approved: l.approvals[id],
		})
	}
	sort.Slice(stored.Entries, func(i, j int) bool {
		return stored.Entries[i].ID < stored.Entries[j].ID
	})
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return l.db.Put(stateKey, raw)
}
