package native

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/xuperchain/xnative/lib/metrics"
)

// NewContractFunc builds the prototype of a contract from the network config.
type NewContractFunc func(cfg *Config) (Contract, error)

// Descriptor describes a contract that can be placed in the default registry.
type Descriptor struct {
	Name    string
	Address common.Address
	// Feature gates the contract, empty means always included
	Feature string
	New     NewContractFunc
}

var (
	descMutex   sync.RWMutex
	descriptors = make(map[string]Descriptor)
)

// RegisterDescriptor makes a contract available to NewDefaultFactory. It is
// meant to be called from init and panics on duplicated names or addresses.
func RegisterDescriptor(desc Descriptor) {
	descMutex.Lock()
	defer descMutex.Unlock()

	if desc.New == nil {
		panic("native: RegisterDescriptor new func is nil")
	}
	if _, dup := descriptors[desc.Name]; dup {
		panic("native: RegisterDescriptor called twice for " + desc.Name)
	}
	for _, d := range descriptors {
		if d.Address == desc.Address {
			panic(fmt.Sprintf("native: address %s of %s already taken by %s",
				desc.Address.Hex(), desc.Name, d.Name))
		}
	}
	descriptors[desc.Name] = desc
}

// Descriptors returns the registered descriptors ordered by address.
func Descriptors() []Descriptor {
	descMutex.RLock()
	defer descMutex.RUnlock()

	list := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		return bytes.Compare(list[i].Address[:], list[j].Address[:]) < 0
	})
	return list
}

// NewDefaultFactory builds the registry of a network from every registered
// descriptor whose feature is enabled in cfg.
func NewDefaultFactory(cfg *Config) (*Factory, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	factory := NewFactory()
	for _, desc := range Descriptors() {
		if !cfg.Enabled(desc.Feature) {
			continue
		}
		contract, err := desc.New(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "create native contract %s failed", desc.Name)
		}
		factory.Register(desc.Address, contract)
	}
	metrics.RegistryContractsGauge.Set(float64(factory.Len()))
	return factory, nil
}
