// Package ticket implements the withdrawal-ticket ownership ledger: sequential
// identifiers, per-owner enumeration, and operator approvals. The pool engine
// owns ticket contents; this ledger only answers who may act on a ticket.
package ticket

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/storage"
)

var (
	// ErrUnknownTicket is returned for identifiers that were never minted or
	// were already burned.
	ErrUnknownTicket = errors.New("ticket ledger: unknown ticket")
	// ErrNotOwner rejects approvals from anyone but the ticket owner.
	ErrNotOwner = errors.New("ticket ledger: caller does not own ticket")
	// ErrZeroOwner rejects mints to the zero address.
	ErrZeroOwner = errors.New("ticket ledger: owner must not be zero address")
)

// Ledger hands out ticket identifiers starting at 1 and tracks ownership and
// approvals. Without a bound database it lives purely in memory;
// NewStoredLedger adds write-through persistence.
type Ledger struct {
	mu        sync.Mutex
	nextID    uint64
	owners    map[uint64]common.Address
	approvals map[uint64]common.Address
	owned     map[common.Address][]uint64
	pos       map[uint64]int
	db        storage.Database
}

// NewLedger constructs an empty in-memory ticket ledger.
func NewLedger() *Ledger {
	return &Ledger{
		owners:    make(map[uint64]common.Address),
		approvals: make(map[uint64]common.Address),
		owned:     make(map[common.Address][]uint64),
		pos:       make(map[uint64]int),
	}
}

// Mint issues the next ticket identifier to owner.
func (l *Ledger) Mint(owner common.Address) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, ErrZeroOwner
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.owners[id] = owner
	l.pos[id] = len(l.owned[owner])
	l.owned[owner] = append(l.owned[owner], id)
	if err := l.persistLocked(); err != nil {
		return 0, err
	}
	return id, nil
}

// Burn retires a ticket and clears any approval on it.
func (l *Ledger) Burn(id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[id]
	if !ok {
		return ErrUnknownTicket
	}
	list := l.owned[owner]
	i := l.pos[id]
	last := len(list) - 1
	if i != last {
		list[i] = list[last]
		l.pos[list[i]] = i
	}
	list = list[:last]
	if len(list) == 0 {
		delete(l.owned, owner)
	} else {
		l.owned[owner] = list
	}
	delete(l.owners, id)
	delete(l.pos, id)
	delete(l.approvals, id)
	return l.persistLocked()
}

// Approve lets the owner designate one operator for a ticket. The zero
// address clears the approval.
func (l *Ledger) Approve(caller, operator common.Address, id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[id]
	if !ok {
		return ErrUnknownTicket
	}
	if owner != caller {
		return ErrNotOwner
	}
	if operator == (common.Address{}) {
		delete(l.approvals, id)
		return l.persistLocked()
	}
	l.approvals[id] = operator
	return l.persistLocked()
}

// IsApprovedOrOwner reports whether caller owns the ticket or holds its
// approval. Unknown tickets are simply not authorized.
func (l *Ledger) IsApprovedOrOwner(caller common.Address, id uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[id]
	if !ok {
		return false, nil
	}
	if owner == caller {
		return true, nil
	}
	return l.approvals[id] == caller, nil
}

// OwnerOf resolves a ticket's owner.
func (l *Ledger) OwnerOf(id uint64) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[id]
	if !ok {
		return common.Address{}, ErrUnknownTicket
	}
	return owner, nil
}

// OwnedTickets returns a copy of the caller's ticket identifiers. Order
// reflects mint order disturbed by burns, not a sorted sequence.
func (l *Ledger) OwnedTickets(owner common.Address) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.owned[owner]
	out := make([]uint64, len(list))
	copy(out, list)
	return out, nil
}
