package sandbox

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xuperchain/xnative/kernel/native"
)

var _ native.DataProvider = (*MemState)(nil)

type account struct {
	balance *big.Int
	nonce   uint64
	code    []byte
}

func (a *account) copy() *account {
	return &account{
		balance: new(big.Int).Set(a.balance),
		nonce:   a.nonce,
		code:    common.CopyBytes(a.code),
	}
}

// MemState is an in memory execution state ordered by key. Accounts and
// storage slots live in red-black trees so that every walk over them is
// deterministic. Changes are journaled for Snapshot and RevertToSnapshot.
//
// A MemState must not be shared between goroutines.
type MemState struct {
	// Key: address; Value: *account
	accounts *redblacktree.Tree
	// Key: address_slot; Value: common.Hash
	storage *redblacktree.Tree
	logs    []*types.Log

	journal   []func()
	revisions []revision
	nextRevID int
}

type revision struct {
	id           int
	journalIndex int
}

// NewMemState returns an empty state.
func NewMemState() *MemState {
	return &MemState{
		accounts: redblacktree.NewWith(treeCompare),
		storage:  redblacktree.NewWith(treeCompare),
	}
}

func (m *MemState) getAccount(addr common.Address) (*account, bool) {
	v, ok := m.accounts.Get(addr.Bytes())
	if !ok {
		return nil, false
	}
	return v.(*account), true
}

// getOrNewAccount returns the account at addr, creating it with a journal
// entry when missing.
func (m *MemState) getOrNewAccount(addr common.Address) *account {
	if acc, ok := m.getAccount(addr); ok {
		return acc
	}
	acc := &account{balance: new(big.Int)}
	key := addr.Bytes()
	m.accounts.Put(key, acc)
	m.journal = append(m.journal, func() {
		m.accounts.Remove(key)
	})
	return acc
}

// CreateAccount resets addr to an empty account keeping its balance.
func (m *MemState) CreateAccount(addr common.Address) {
	prev, existed := m.getAccount(addr)
	acc := &account{balance: new(big.Int)}
	if existed {
		acc.balance.Set(prev.balance)
	}
	key := addr.Bytes()
	m.accounts.Put(key, acc)
	m.journal = append(m.journal, func() {
		if existed {
			m.accounts.Put(key, prev)
		} else {
			m.accounts.Remove(key)
		}
	})
}

func (m *MemState) GetBalance(addr common.Address) *big.Int {
	acc, ok := m.getAccount(addr)
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(acc.balance)
}

func (m *MemState) setBalance(addr common.Address, amount *big.Int) {
	acc := m.getOrNewAccount(addr)
	prev := acc.balance
	acc.balance = amount
	m.journal = append(m.journal, func() {
		acc.balance = prev
	})
}

func (m *MemState) AddBalance(addr common.Address, amount *big.Int) {
	if amount == nil {
		return
	}
	m.setBalance(addr, new(big.Int).Add(m.GetBalance(addr), amount))
}

func (m *MemState) SubBalance(addr common.Address, amount *big.Int) {
	if amount == nil {
		return
	}
	m.setBalance(addr, new(big.Int).Sub(m.GetBalance(addr), amount))
}

func (m *MemState) GetNonce(addr common.Address) uint64 {
	acc, ok := m.getAccount(addr)
	if !ok {
		return 0
	}
	return acc.nonce
}

func (m *MemState) SetNonce(addr common.Address, nonce uint64) {
	acc := m.getOrNewAccount(addr)
	prev := acc.nonce
	acc.nonce = nonce
	m.journal = append(m.journal, func() {
		acc.nonce = prev
	})
}

func (m *MemState) GetCode(addr common.Address) []byte {
	acc, ok := m.getAccount(addr)
	if !ok {
		return nil
	}
	return acc.code
}

func (m *MemState) SetCode(addr common.Address, code []byte) {
	acc := m.getOrNewAccount(addr)
	prev := acc.code
	acc.code = common.CopyBytes(code)
	m.journal = append(m.journal, func() {
		acc.code = prev
	})
}

// GetCodeHash returns the keccak hash of the code at addr, or the zero hash
// for a missing account.
func (m *MemState) GetCodeHash(addr common.Address) common.Hash {
	acc, ok := m.getAccount(addr)
	if !ok {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(acc.code)
}

func (m *MemState) GetState(addr common.Address, slot common.Hash) common.Hash {
	v, ok := m.storage.Get(makeStorageKey(addr, slot))
	if !ok {
		return common.Hash{}
	}
	return v.(common.Hash)
}

// SetState writes a slot. Writing the zero hash deletes it.
func (m *MemState) SetState(addr common.Address, slot common.Hash, value common.Hash) {
	m.getOrNewAccount(addr)
	key := makeStorageKey(addr, slot)
	prev, existed := m.storage.Get(key)
	if value == (common.Hash{}) {
		m.storage.Remove(key)
	} else {
		m.storage.Put(key, value)
	}
	m.journal = append(m.journal, func() {
		if existed {
			m.storage.Put(key, prev)
		} else {
			m.storage.Remove(key)
		}
	})
}

// ForEachStorage calls cb for every non empty slot of addr in slot order
// until cb returns false.
func (m *MemState) ForEachStorage(addr common.Address, cb func(key, value common.Hash) bool) error {
	iter := newTreeIterator(m.storage, makeStorageKey(addr, common.Hash{}), storagePrefixEnd(addr))
	defer iter.Close()
	for iter.Next() {
		_, slot, err := parseStorageKey(iter.Key())
		if err != nil {
			return err
		}
		if !cb(slot, iter.Value().(common.Hash)) {
			break
		}
	}
	return nil
}

func (m *MemState) Exist(addr common.Address) bool {
	_, ok := m.getAccount(addr)
	return ok
}

// Empty reports whether addr is missing or has zero nonce, balance and code.
func (m *MemState) Empty(addr common.Address) bool {
	acc, ok := m.getAccount(addr)
	if !ok {
		return true
	}
	return acc.nonce == 0 && acc.balance.Sign() == 0 && len(acc.code) == 0
}

// DeleteAccount removes addr and all of its storage.
func (m *MemState) DeleteAccount(addr common.Address) {
	var slots []common.Hash
	m.ForEachStorage(addr, func(key, _ common.Hash) bool {
		slots = append(slots, key)
		return true
	})
	for _, slot := range slots {
		m.SetState(addr, slot, common.Hash{})
	}
	prev, ok := m.getAccount(addr)
	if !ok {
		return
	}
	key := addr.Bytes()
	m.accounts.Remove(key)
	m.journal = append(m.journal, func() {
		m.accounts.Put(key, prev)
	})
}

func (m *MemState) AddLog(log *types.Log) {
	log.Index = uint(len(m.logs))
	m.logs = append(m.logs, log)
	m.journal = append(m.journal, func() {
		m.logs = m.logs[:len(m.logs)-1]
	})
}

// Logs returns the logs emitted so far.
func (m *MemState) Logs() []*types.Log {
	logs := make([]*types.Log, len(m.logs))
	copy(logs, m.logs)
	return logs
}

func (m *MemState) Snapshot() int {
	id := m.nextRevID
	m.nextRevID++
	m.revisions = append(m.revisions, revision{id: id, journalIndex: len(m.journal)})
	return id
}

// RevertToSnapshot undoes every change made after the snapshot revid was
// taken. It panics on an unknown revision like the geth state does.
func (m *MemState) RevertToSnapshot(revid int) {
	idx := sort.Search(len(m.revisions), func(i int) bool {
		return m.revisions[i].id >= revid
	})
	if idx == len(m.revisions) || m.revisions[idx].id != revid {
		panic(fmt.Errorf("revision id %v cannot be reverted", revid))
	}
	snapshot := m.revisions[idx].journalIndex
	for i := len(m.journal) - 1; i >= snapshot; i-- {
		m.journal[i]()
	}
	m.journal = m.journal[:snapshot]
	m.revisions = m.revisions[:idx]
}

// Commit drops the journal. Earlier snapshots can no longer be reverted.
func (m *MemState) Commit() {
	m.journal = nil
	m.revisions = m.revisions[:0]
}

// Copy returns an independent deep copy without journal. It is how
// parallel lanes get their own state.
func (m *MemState) Copy() *MemState {
	c := NewMemState()
	it := m.accounts.Iterator()
	for it.Next() {
		c.accounts.Put(common.CopyBytes(it.Key().([]byte)), it.Value().(*account).copy())
	}
	it = m.storage.Iterator()
	for it.Next() {
		c.storage.Put(common.CopyBytes(it.Key().([]byte)), it.Value())
	}
	c.logs = make([]*types.Log, len(m.logs))
	copy(c.logs, m.logs)
	return c
}

// Dump writes every account, slot and log in key order. Two states hold the
// same data iff their dumps are equal.
func (m *MemState) Dump() []byte {
	var buf bytes.Buffer
	it := m.accounts.Iterator()
	for it.Next() {
		acc := it.Value().(*account)
		fmt.Fprintf(&buf, "account %x balance=%s nonce=%d code=%x\n",
			it.Key().([]byte), acc.balance, acc.nonce, crypto.Keccak256(acc.code))
	}
	it = m.storage.Iterator()
	for it.Next() {
		fmt.Fprintf(&buf, "slot %x=%x\n", it.Key().([]byte), it.Value().(common.Hash))
	}
	for _, log := range m.logs {
		fmt.Fprintf(&buf, "log %x topics=%x data=%x\n", log.Address, log.Topics, log.Data)
	}
	return buf.Bytes()
}

// Root is the keccak hash of Dump.
func (m *MemState) Root() common.Hash {
	return crypto.Keccak256Hash(m.Dump())
}
