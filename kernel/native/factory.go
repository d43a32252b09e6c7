package native

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

type contractMap map[common.Address]Contract

// Factory maps reserved addresses to contract prototypes and hands out a
// fresh instance for every call.
//
// Lookups read an immutable snapshot and never wait for writers. Register and
// Unregister are administrative: they copy the snapshot under a mutex and
// publish the new one atomically.
type Factory struct {
	mutex     sync.Mutex
	contracts atomic.Value
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	f := &Factory{}
	f.contracts.Store(make(contractMap))
	return f
}

func (f *Factory) snapshot() contractMap {
	m, _ := f.contracts.Load().(contractMap)
	return m
}

// NewContract returns a fresh instance of the contract registered at
// address, or nil if the address has no native contract.
func (f *Factory) NewContract(address common.Address) Contract {
	proto, ok := f.snapshot()[address]
	if !ok {
		return nil
	}
	return proto.Create()
}

// IsNative reports whether a contract is registered at address.
func (f *Factory) IsNative(address common.Address) bool {
	_, ok := f.snapshot()[address]
	return ok
}

// Register inserts or replaces the prototype at address. A nil prototype is
// ignored.
func (f *Factory) Register(address common.Address, contract Contract) {
	if contract == nil {
		return
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()

	old := f.snapshot()
	next := make(contractMap, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[address] = contract
	f.contracts.Store(next)
}

// Unregister removes the prototype at address.
func (f *Factory) Unregister(address common.Address) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	old := f.snapshot()
	if _, ok := old[address]; !ok {
		return
	}
	next := make(contractMap, len(old))
	for k, v := range old {
		if k != address {
			next[k] = v
		}
	}
	f.contracts.Store(next)
}

// Len returns the number of registered contracts.
func (f *Factory) Len() int {
	return len(f.snapshot())
}

// Addresses returns the registered addresses in ascending byte order.
func (f *Factory) Addresses() []common.Address {
	m := f.snapshot()
	list := make([]common.Address, 0, len(m))
	for addr := range m {
		list = append(list, addr)
	}
	sort.Slice(list, func(i, j int) bool {
		return bytes.Compare(list[i][:], list[j][:]) < 0
	})
	return list
}

// Prototype returns the registered prototype at address. Callers must not
// execute it, use NewContract for that.
func (f *Factory) Prototype(address common.Address) (Contract, bool) {
	proto, ok := f.snapshot()[address]
	return proto, ok
}

// Clone returns an independent factory holding the same prototypes.
// Prototypes are immutable so they are shared, the map is not.
func (f *Factory) Clone() *Factory {
	old := f.snapshot()
	next := make(contractMap, len(old))
	for k, v := range old {
		next[k] = v
	}
	c := &Factory{}
	c.contracts.Store(next)
	return c
}
