package backend

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/native/pool"
)

// Status tracks where an operator sits in its lifecycle. Jailed operators
// stop receiving new stake but their bonded value still counts toward
// withdrawal capacity; ejected operators are invisible to the pool entirely.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusJailed
	StatusEjected
)

var (
	// ErrDuplicateBackend rejects registering the same address twice.
	ErrDuplicateBackend = errors.New("backend registry: address already registered")
	// ErrBackendNotFound is returned for lookups of unregistered addresses.
	ErrBackendNotFound = errors.New("backend registry: address not registered")
	// ErrZeroWeight rejects zero delegation weights.
	ErrZeroWeight = errors.New("backend registry: weight must be positive")
)

type entry struct {
	backend pool.Backend
	weight  uint64
	reward  common.Address
	status  Status
}

// Registry keeps the ordered operator set. Entries live in a slice so the
// delegation split is deterministic; the index map makes removal a
// swap-and-pop instead of a shift, which reorders the tail entry.
type Registry struct {
	mu       sync.RWMutex
	entries  []*entry
	index    map[common.Address]int
	minStake *big.Int
}

// NewRegistry constructs an empty registry with the given per-operator stake
// floor. A nil floor is treated as zero.
func NewRegistry(minStake *big.Int) *Registry {
	floor := new(big.Int)
	if minStake != nil {
		floor.Set(minStake)
	}
	return &Registry{index: make(map[common.Address]int), minStake: floor}
}

// Add registers a backend with its delegation weight and reward address.
func (r *Registry) Add(b pool.Backend, weight uint64, reward common.Address) error {
	if b == nil {
		return errors.New("backend registry: nil backend")
	}
	if weight == 0 {
		return ErrZeroWeight
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := b.Address()
	if _, ok := r.index[addr]; ok {
		return ErrDuplicateBackend
	}
	r.index[addr] = len(r.entries)
	r.entries = append(r.entries, &entry{backend: b, weight: weight, reward: reward, status: StatusActive})
	return nil
}

// Remove drops a backend from the set. The last entry is swapped into the
// removed slot, so callers must not rely on registration order surviving
// removals.
func (r *Registry) Remove(ref common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[ref]
	if !ok {
		return ErrBackendNotFound
	}
	last := len(r.entries) - 1
	if i != last {
		r.entries[i] = r.entries[last]
		r.index[r.entries[i].backend.Address()] = i
	}
	r.entries[last] = nil
	r.entries = r.entries[:last]
	delete(r.index, ref)
	return nil
}

// SetStatus moves an operator between lifecycle states.
func (r *Registry) SetStatus(ref common.Address, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[ref]
	if !ok {
		return ErrBackendNotFound
	}
	r.entries[i].status = status
	return nil
}

// SetWeight updates an operator's delegation weight.
func (r *Registry) SetWeight(ref common.Address, weight uint64) error {
	if weight == 0 {
		return ErrZeroWeight
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[ref]
	if !ok {
		return ErrBackendNotFound
	}
	r.entries[i].weight = weight
	return nil
}

// ListActiveForDelegation returns operators eligible for fresh stake, in
// current slice order.
func (r *Registry) ListActiveForDelegation() ([]pool.BackendInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pool.BackendInfo, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status != StatusActive {
			continue
		}
		out = append(out, pool.BackendInfo{Backend: e.backend, Weight: e.weight, Reward: e.reward})
	}
	return out, nil
}

// ListActiveForWithdrawal returns operators whose bonded stake still backs
// withdrawals. Jailed operators remain since their stake has not left the
// system; ejected ones are excluded.
func (r *Registry) ListActiveForWithdrawal() ([]pool.BackendInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pool.BackendInfo, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status == StatusEjected {
			continue
		}
		out = append(out, pool.BackendInfo{Backend: e.backend, Weight: e.weight, Reward: e.reward})
	}
	return out, nil
}

// CandidateSetForWithdraw assembles the unbonding candidate set for a pending
// withdrawal of amount, summing delegated stake across the withdrawal set.
func (r *Registry) CandidateSetForWithdraw(amount *big.Int) (*pool.CandidateSet, error) {
	infos, err := r.ListActiveForWithdrawal()
	if err != nil {
		return nil, err
	}
	candidates := make([]pool.Backend, 0, len(infos))
	total := new(big.Int)
	for _, info := range infos {
		stake, err := info.Backend.TotalStake()
		if err != nil {
			return nil, err
		}
		total.Add(total, stake)
		candidates = append(candidates, info.Backend)
	}
	r.mu.RLock()
	floor := new(big.Int).Set(r.minStake)
	r.mu.RUnlock()
	return &pool.CandidateSet{
		Candidates:     candidates,
		TotalDelegated: total,
		Count:          len(candidates),
		MinStakeFloor:  floor,
	}, nil
}

// Lookup resolves a backend by address regardless of status, as long as it
// is still registered. Claims against removed backends fail here.
func (r *Registry) Lookup(ref common.Address) (pool.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[ref]
	if !ok {
		return nil, ErrBackendNotFound
	}
	return r.entries[i].backend, nil
}

// Len reports the number of registered operators in any status.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
