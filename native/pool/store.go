package pool

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquidstake/storage"
)

var (
	keyLedger      = []byte("pool/ledger")
	keyStakerCount = []byte("pool/stakerCount")
	keyEpochCursor = []byte("pool/epochCursor")

	prefixStaker = []byte("pool/staker/")
	prefixTicket = []byte("pool/ticket/")
	prefixEpoch  = []byte("pool/epochix/")
)

// Store persists the engine's ledger, tickets, epoch index, and ever-staked
// set in a key-value database using RLP encoding.
type Store struct {
	db storage.Database
}

// NewStore wraps db as the engine's persistence layer.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

type storedLedger struct {
	TotalBuffered *big.Int
	ReservedFunds *big.Int
}

type storedLeg struct {
	Kind          uint8
	Backend       common.Address
	UnbondNonce   uint64
	Amount        *big.Int
	MaturityEpoch uint64
}

type storedTicket struct {
	ID            uint64
	Owner         common.Address
	RequestEpoch  uint64
	IndexEpoch    uint64
	ReceiptBurned *big.Int
	Legs          []storedLeg
}

func ticketKey(id uint64) []byte {
	key := make([]byte, len(prefixTicket)+8)
	copy(key, prefixTicket)
	binary.BigEndian.PutUint64(key[len(prefixTicket):], id)
	return key
}

func epochKey(epoch uint64) []byte {
	key := make([]byte, len(prefixEpoch)+8)
	copy(key, prefixEpoch)
	binary.BigEndian.PutUint64(key[len(prefixEpoch):], epoch)
	return key
}

func stakerKey(addr common.Address) []byte {
	return append(append([]byte(nil), prefixStaker...), addr.Bytes()...)
}

// Ledger loads the pool balance sheet, returning a zeroed ledger on first use.
func (s *Store) Ledger() (*Ledger, error) {
	raw, err := s.db.Get(keyLedger)
	if errors.Is(err, storage.ErrNotFound) {
		return NewLedger(), nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedLedger
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	ledger := &Ledger{TotalBuffered: stored.TotalBuffered, ReservedFunds: stored.ReservedFunds}
	ledger.normalize()
	return ledger, nil
}

func encodeLedger(ledger *Ledger) ([]byte, error) {
	if ledger == nil {
		return nil, errNilState
	}
	ledger.normalize()
	return rlp.EncodeToBytes(&storedLedger{
		TotalBuffered: ledger.TotalBuffered,
		ReservedFunds: ledger.ReservedFunds,
	})
}

// PutLedger persists the pool balance sheet.
func (s *Store) PutLedger(ledger *Ledger) error {
	raw, err := encodeLedger(ledger)
	if err != nil {
		return err
	}
	return s.db.Put(keyLedger, raw)
}

// Ticket loads one ticket record.
func (s *Store) Ticket(id uint64) (*Ticket, bool, error) {
	raw, err := s.db.Get(ticketKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedTicket
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, err
	}
	ticket := &Ticket{
		ID:            stored.ID,
		Owner:         stored.Owner,
		RequestEpoch:  stored.RequestEpoch,
		IndexEpoch:    stored.IndexEpoch,
		ReceiptBurned: stored.ReceiptBurned,
	}
	ticket.Legs = make([]SettlementLeg, len(stored.Legs))
	for i, leg := range stored.Legs {
		ticket.Legs[i] = SettlementLeg{
			Kind:          LegKind(leg.Kind),
			Backend:       leg.Backend,
			UnbondNonce:   leg.UnbondNonce,
			Amount:        leg.Amount,
			MaturityEpoch: leg.MaturityEpoch,
		}
	}
	return ticket, true, nil
}

func encodeTicket(ticket *Ticket) ([]byte, error) {
	if ticket == nil {
		return nil, errNilState
	}
	stored := storedTicket{
		ID:            ticket.ID,
		Owner:         ticket.Owner,
		RequestEpoch:  ticket.RequestEpoch,
		IndexEpoch:    ticket.IndexEpoch,
		ReceiptBurned: zeroIfNil(ticket.ReceiptBurned),
	}
	stored.Legs = make([]storedLeg, len(ticket.Legs))
	for i, leg := range ticket.Legs {
		stored.Legs[i] = storedLeg{
			Kind:          uint8(leg.Kind),
			Backend:       leg.Backend,
			UnbondNonce:   leg.UnbondNonce,
			Amount:        zeroIfNil(leg.Amount),
			MaturityEpoch: leg.MaturityEpoch,
		}
	}
	return rlp.EncodeToBytes(&stored)
}

// PutTicket persists one ticket record.
func (s *Store) PutTicket(ticket *Ticket) error {
	raw, err := encodeTicket(ticket)
	if err != nil {
		return err
	}
	return s.db.Put(ticketKey(ticket.ID), raw)
}

// DeleteTicket removes one ticket record.
func (s *Store) DeleteTicket(id uint64) error {
	return s.db.Delete(ticketKey(id))
}

// TicketIDsAt loads the epoch index bucket for the given epoch.
func (s *Store) TicketIDsAt(epoch uint64) ([]uint64, error) {
	raw, err := s.db.Get(epochKey(epoch))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := rlp.DecodeBytes(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PutTicketIDsAt stores the epoch index bucket, dropping empty buckets.
func (s *Store) PutTicketIDsAt(epoch uint64, ids []uint64) error {
	if len(ids) == 0 {
		return s.db.Delete(epochKey(epoch))
	}
	raw, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return s.db.Put(epochKey(epoch), raw)
}

// MarkEverStaked records the depositor in the monotonic ever-staked set.
func (s *Store) MarkEverStaked(addr common.Address) error {
	key := stakerKey(addr)
	seen, err := s.db.Has(key)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	if err := s.db.Put(key, []byte{1}); err != nil {
		return err
	}
	count, err := s.EverStakedCount()
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, count+1)
	return s.db.Put(keyStakerCount, buf)
}

// EverStakedCount reports the size of the ever-staked set.
func (s *Store) EverStakedCount() (uint64, error) {
	raw, err := s.db.Get(keyStakerCount)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.New("pool store: corrupt staker count")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// PutEpochCursor persists the oracle's last epoch value so the daemon can
// restore the clock across restarts.
func (s *Store) PutEpochCursor(epoch uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, epoch)
	return s.db.Put(keyEpochCursor, buf)
}

// EpochCursor loads the persisted epoch value, zero when never set.
func (s *Store) EpochCursor() (uint64, error) {
	raw, err := s.db.Get(keyEpochCursor)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.New("pool store: corrupt epoch cursor")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Batch stages the writes of one engine operation for a single atomic commit.
func (s *Store) Batch() StateBatch {
	return &storeBatch{store: s, batch: s.db.NewBatch()}
}

type storeBatch struct {
	store *Store
	batch storage.Batch
}

func (b *storeBatch) PutLedger(ledger *Ledger) error {
	raw, err := encodeLedger(ledger)
	if err != nil {
		return err
	}
	return b.batch.Put(keyLedger, raw)
}

func (b *storeBatch) PutTicket(ticket *Ticket) error {
	raw, err := encodeTicket(ticket)
	if err != nil {
		return err
	}
	return b.batch.Put(ticketKey(ticket.ID), raw)
}

func (b *storeBatch) DeleteTicket(id uint64) error {
	return b.batch.Delete(ticketKey(id))
}

func (b *storeBatch) PutTicketIDsAt(epoch uint64, ids []uint64) error {
	if len(ids) == 0 {
		return b.batch.Delete(epochKey(epoch))
	}
	raw, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return b.batch.Put(epochKey(epoch), raw)
}

func (b *storeBatch) MarkEverStaked(addr common.Address) error {
	key := stakerKey(addr)
	seen, err := b.store.db.Has(key)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	if err := b.batch.Put(key, []byte{1}); err != nil {
		return err
	}
	count, err := b.store.EverStakedCount()
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, count+1)
	return b.batch.Put(keyStakerCount, buf)
}

func (b *storeBatch) Commit() error {
	return b.batch.Write()
}
