package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UnbondRecord is a backend's view of one pending unbond.
type UnbondRecord struct {
	Amount        *big.Int
	MaturityEpoch uint64
}

// Backend is one validator-like unit buffered value can be delegated to. The
// pool treats every backend as an opaque service: stake in, unstake with a
// cooldown, claim once the backend's own maturity check passes.
type Backend interface {
	Address() common.Address
	TotalStake() (*big.Int, error)
	AcceptStake(amount *big.Int) error
	Unstake(amount *big.Int) error
	UnbondNonceFor(staker common.Address) (uint64, error)
	ResolveUnbond(nonce uint64) (*UnbondRecord, error)
	Claim(nonce uint64) (*big.Int, error)
}

// BackendInfo pairs a backend with its registry metadata.
type BackendInfo struct {
	Backend Backend
	Weight  uint64
	Reward  common.Address
}

// CandidateSet describes the registry's pre-balanced backend selection for a
// withdrawal of a given size.
type CandidateSet struct {
	Candidates     []Backend
	TotalDelegated *big.Int
	Count          int
	MinStakeFloor  *big.Int
}

// BackendRegistry is the opaque directory of backends. Listing order is the
// registry's insertion order and the engine never re-sorts it.
type BackendRegistry interface {
	ListActiveForDelegation() ([]BackendInfo, error)
	ListActiveForWithdrawal() ([]BackendInfo, error)
	CandidateSetForWithdraw(amount *big.Int) (*CandidateSet, error)
	Lookup(ref common.Address) (Backend, error)
}

// TicketLedger is the opaque withdrawal-ticket ownership service. Ticket ids
// are assigned by the ledger; the engine only records legs against them.
type TicketLedger interface {
	Mint(owner common.Address) (uint64, error)
	Burn(id uint64) error
	IsApprovedOrOwner(caller common.Address, id uint64) (bool, error)
	OwnedTickets(owner common.Address) ([]uint64, error)
}

// ReceiptToken is the fungible claim on pool value. Supply is owned by the
// token ledger and only read here.
type ReceiptToken interface {
	Mint(to common.Address, amount *big.Int) error
	Burn(from common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) (*big.Int, error)
	TotalSupply() (*big.Int, error)
}

// Vault abstracts the base-asset account holding the pool's on-hand funds.
// Delegation moves value from the vault to backends; claims pay out of it.
type Vault interface {
	Balance() (*big.Int, error)
	Credit(amount *big.Int) error
	Debit(amount *big.Int) error
	PayOut(to common.Address, amount *big.Int) error
}
