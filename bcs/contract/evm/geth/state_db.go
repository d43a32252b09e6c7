package geth

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/xuperchain/xnative/kernel/native"
)

// accountState is the part of vm.StateDB a DataProvider may optionally
// implement. sandbox.MemState and geth's state.StateDB both do.
type accountState interface {
	CreateAccount(common.Address)
	GetCodeHash(common.Address) common.Hash
	Empty(common.Address) bool
	ForEachStorage(common.Address, func(common.Hash, common.Hash) bool) error
}

type accountDeleter interface {
	DeleteAccount(common.Address)
}

type codeAndHash struct {
	code []byte
	hash common.Hash
}

func (c *codeAndHash) Hash() common.Hash {
	if c.hash == (common.Hash{}) {
		c.hash = crypto.Keccak256Hash(c.code)
	}
	return c.hash
}

// stateDB adapts a native.DataProvider to vm.StateDB. Refunds, the access
// list, self destructs and committed slot values are transaction scoped and
// kept here, journaled together with the provider's own snapshots.
type stateDB struct {
	state native.DataProvider
	extra accountState

	refund    uint64
	suicided  map[common.Address]bool
	addrs     map[common.Address]bool
	slots     map[common.Address]map[common.Hash]bool
	committed map[common.Address]map[common.Hash]common.Hash

	journal   []func()
	revisions map[int]int
}

var _ vm.StateDB = (*stateDB)(nil)

func newStateDB(state native.DataProvider) *stateDB {
	s := &stateDB{state: state}
	s.extra, _ = state.(accountState)
	s.reset()
	return s
}

// reset drops every transaction scoped record.
func (s *stateDB) reset() {
	s.refund = 0
	s.suicided = map[common.Address]bool{}
	s.addrs = map[common.Address]bool{}
	s.slots = map[common.Address]map[common.Hash]bool{}
	s.committed = map[common.Address]map[common.Hash]common.Hash{}
	s.journal = nil
	s.revisions = map[int]int{}
}

func (s *stateDB) CreateAccount(address common.Address) {
	if s.extra != nil {
		s.extra.CreateAccount(address)
		return
	}
	// touching the nonce is enough to make the account exist
	s.state.SetNonce(address, s.state.GetNonce(address))
}

func (s *stateDB) SubBalance(address common.Address, amount *big.Int) {
	s.state.SubBalance(address, amount)
}

func (s *stateDB) AddBalance(address common.Address, amount *big.Int) {
	s.state.AddBalance(address, amount)
}

func (s *stateDB) GetBalance(address common.Address) *big.Int {
	return s.state.GetBalance(address)
}

func (s *stateDB) GetNonce(address common.Address) uint64 {
	return s.state.GetNonce(address)
}

func (s *stateDB) SetNonce(address common.Address, nonce uint64) {
	s.state.SetNonce(address, nonce)
}

func (s *stateDB) GetCodeHash(address common.Address) common.Hash {
	if s.extra != nil {
		return s.extra.GetCodeHash(address)
	}
	if !s.state.Exist(address) {
		return common.Hash{}
	}
	ch := codeAndHash{code: s.state.GetCode(address)}
	return ch.Hash()
}

func (s *stateDB) GetCode(address common.Address) []byte {
	return s.state.GetCode(address)
}

func (s *stateDB) SetCode(address common.Address, code []byte) {
	s.state.SetCode(address, code)
}

func (s *stateDB) GetCodeSize(address common.Address) int {
	return len(s.state.GetCode(address))
}

func (s *stateDB) AddRefund(gas uint64) {
	prev := s.refund
	s.refund += gas
	s.journal = append(s.journal, func() { s.refund = prev })
}

func (s *stateDB) SubRefund(gas uint64) {
	prev := s.refund
	if gas > s.refund {
		panic(errors.Errorf("refund counter below zero (gas: %d > refund: %d)", gas, s.refund))
	}
	s.refund -= gas
	s.journal = append(s.journal, func() { s.refund = prev })
}

func (s *stateDB) GetRefund() uint64 {
	return s.refund
}

// GetCommittedState returns the value a slot had before the first write of
// the current transaction.
func (s *stateDB) GetCommittedState(address common.Address, key common.Hash) common.Hash {
	if v, ok := s.committed[address][key]; ok {
		return v
	}
	return s.state.GetState(address, key)
}

func (s *stateDB) GetState(address common.Address, key common.Hash) common.Hash {
	return s.state.GetState(address, key)
}

func (s *stateDB) SetState(address common.Address, key common.Hash, value common.Hash) {
	slots, ok := s.committed[address]
	if !ok {
		slots = map[common.Hash]common.Hash{}
		s.committed[address] = slots
	}
	if _, ok := slots[key]; !ok {
		slots[key] = s.state.GetState(address, key)
	}
	s.state.SetState(address, key, value)
}

func (s *stateDB) Suicide(address common.Address) bool {
	if !s.state.Exist(address) {
		return false
	}
	prev := s.suicided[address]
	s.suicided[address] = true
	s.journal = append(s.journal, func() {
		if prev {
			return
		}
		delete(s.suicided, address)
	})
	if balance := s.state.GetBalance(address); balance.Sign() > 0 {
		s.state.SubBalance(address, balance)
	}
	return true
}

func (s *stateDB) HasSuicided(address common.Address) bool {
	return s.suicided[address]
}

func (s *stateDB) Exist(address common.Address) bool {
	return s.state.Exist(address)
}

func (s *stateDB) Empty(address common.Address) bool {
	if s.extra != nil {
		return s.extra.Empty(address)
	}
	return s.state.GetNonce(address) == 0 &&
		s.state.GetBalance(address).Sign() == 0 &&
		len(s.state.GetCode(address)) == 0
}

func (s *stateDB) PrepareAccessList(sender common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	for _, el := range txAccesses {
		s.AddAddressToAccessList(el.Address)
		for _, key := range el.StorageKeys {
			s.AddSlotToAccessList(el.Address, key)
		}
	}
}

func (s *stateDB) AddressInAccessList(addr common.Address) bool {
	return s.addrs[addr]
}

func (s *stateDB) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk bool, slotOk bool) {
	return s.addrs[addr], s.slots[addr][slot]
}

func (s *stateDB) AddAddressToAccessList(addr common.Address) {
	if s.addrs[addr] {
		return
	}
	s.addrs[addr] = true
	s.journal = append(s.journal, func() { delete(s.addrs, addr) })
}

func (s *stateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.AddAddressToAccessList(addr)
	slots, ok := s.slots[addr]
	if !ok {
		slots = map[common.Hash]bool{}
		s.slots[addr] = slots
	}
	if slots[slot] {
		return
	}
	slots[slot] = true
	s.journal = append(s.journal, func() { delete(slots, slot) })
}

func (s *stateDB) RevertToSnapshot(id int) {
	s.state.RevertToSnapshot(id)
	mark, ok := s.revisions[id]
	if !ok {
		return
	}
	for i := len(s.journal) - 1; i >= mark; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:mark]
	for rev := range s.revisions {
		if rev >= id {
			delete(s.revisions, rev)
		}
	}
}

func (s *stateDB) Snapshot() int {
	id := s.state.Snapshot()
	s.revisions[id] = len(s.journal)
	return id
}

func (s *stateDB) AddLog(log *types.Log) {
	s.state.AddLog(log)
}

func (s *stateDB) AddPreimage(hash common.Hash, preimage []byte) {
}

func (s *stateDB) ForEachStorage(address common.Address, cb func(common.Hash, common.Hash) bool) error {
	if s.extra == nil {
		return errors.New("state does not support storage iteration")
	}
	return s.extra.ForEachStorage(address, cb)
}

// finalise removes the accounts destructed during the transaction.
func (s *stateDB) finalise() {
	addrs := make([]common.Address, 0, len(s.suicided))
	for addr := range s.suicided {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	deleter, ok := s.state.(accountDeleter)
	for _, addr := range addrs {
		if ok {
			deleter.DeleteAccount(addr)
			continue
		}
		s.state.SetCode(addr, nil)
		s.state.SetNonce(addr, 0)
	}
}
