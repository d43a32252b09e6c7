// Package storage implements SimpleStorage, a demo native contract keeping a
// scalar, a string, an array and a map of uint256.
package storage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xuperchain/xnative/bcs/contract/native/base"
	"github.com/xuperchain/xnative/kernel/common/xaddress"
	"github.com/xuperchain/xnative/kernel/native"
)

const ContractName = "storage"

// gas schedule
const (
	DecodeWordGas uint64 = 3
	ReadGas       uint64 = 200
	WriteGas      uint64 = 20000
	OverwriteGas  uint64 = 5000
	// MaxStringLen bounds setString
	MaxStringLen = 4096
)

const abiDefinition = `[
	{"type":"function","name":"setUint","inputs":[{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getUint","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"incUint","inputs":[{"name":"delta","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setString","inputs":[{"name":"value","type":"string"}],"outputs":[]},
	{"type":"function","name":"getString","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"pushArray","inputs":[{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getArray","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"arrayLength","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setMap","inputs":[{"name":"key","type":"uint256"},{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getMap","stateMutability":"view","inputs":[{"name":"key","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Stored","anonymous":false,"inputs":[{"name":"method","type":"bytes4","indexed":false}]}
]`

// ABI of the contract
var ABI = base.MustParseABI(abiDefinition)

var (
	uintSlot   = base.Slot("storage.uint")
	stringSlot = base.Slot("storage.string")
	arraySlot  = base.Slot("storage.array")
	mapSlot    = base.Slot("storage.map")
)

var storedArgs = abi.Arguments{ABI.Events["Stored"].Inputs[0]}

func init() {
	native.RegisterDescriptor(native.Descriptor{
		Name:    ContractName,
		Address: xaddress.SimpleStorageAddress,
		New: func(*native.Config) (native.Contract, error) {
			return &SimpleStorage{}, nil
		},
	})
}

// SimpleStorage has no configuration, the prototype is the zero value.
type SimpleStorage struct {
	ctx *base.Context
}

var _ native.Contract = (*SimpleStorage)(nil)

func (s *SimpleStorage) Name() string {
	return ContractName
}

func (s *SimpleStorage) Create() native.Contract {
	return &SimpleStorage{}
}

func (s *SimpleStorage) Exec(params *native.ExecParams, state native.DataProvider) (*native.InterpreterResult, error) {
	s.ctx = base.NewContext(params, state)
	method, args, err := s.ctx.Decode(&ABI, DecodeWordGas)
	if err != nil {
		return nil, err
	}
	if params.Value != nil && params.Value.Sign() != 0 {
		return s.ctx.Revert("storage is not payable")
	}
	if !method.IsConstant() && params.ReadOnly {
		return s.ctx.Revert(method.Name + " in static call")
	}

	switch method.Name {
	case "setUint":
		err = s.store(uintSlot, common.BigToHash(args[0].(*big.Int)))
		return s.stored(method, err)
	case "getUint":
		return s.load(method, uintSlot)
	case "incUint":
		return s.incUint(method, args[0].(*big.Int))
	case "setString":
		return s.stored(method, s.setString(args[0].(string)))
	case "getString":
		return s.getString(method)
	case "pushArray":
		return s.stored(method, s.pushArray(args[0].(*big.Int)))
	case "getArray":
		return s.getArray(method, args[0].(*big.Int))
	case "arrayLength":
		return s.load(method, arraySlot)
	case "setMap":
		err = s.store(mapKey(args[0].(*big.Int)), common.BigToHash(args[1].(*big.Int)))
		return s.stored(method, err)
	case "getMap":
		return s.load(method, mapKey(args[0].(*big.Int)))
	}
	return nil, s.ctx.Meter.Fail("method %s not implemented", method.Name)
}

func (s *SimpleStorage) read(slot common.Hash) (common.Hash, error) {
	if err := s.ctx.Meter.Consume(ReadGas); err != nil {
		return common.Hash{}, err
	}
	return s.ctx.Load(slot), nil
}

// store charges a fresh write or an overwrite depending on the current
// value of slot.
func (s *SimpleStorage) store(slot, value common.Hash) error {
	cost := OverwriteGas
	if s.ctx.Load(slot) == (common.Hash{}) {
		cost = WriteGas
	}
	if err := s.ctx.Meter.Consume(cost); err != nil {
		return err
	}
	s.ctx.Store(slot, value)
	return nil
}

// stored finishes a write method by emitting Stored.
func (s *SimpleStorage) stored(method *abi.Method, err error, vals ...interface{}) (*native.InterpreterResult, error) {
	if err != nil {
		return nil, err
	}
	var selector [4]byte
	copy(selector[:], method.ID)
	data, err := storedArgs.Pack(selector)
	if err != nil {
		return nil, s.ctx.Meter.Fail("pack Stored: %v", err)
	}
	s.ctx.Emit(ABI.Events["Stored"], nil, data)
	return s.ctx.Return(method, vals...)
}

func (s *SimpleStorage) load(method *abi.Method, slot common.Hash) (*native.InterpreterResult, error) {
	v, err := s.read(slot)
	if err != nil {
		return nil, err
	}
	return s.ctx.Return(method, v.Big())
}

func (s *SimpleStorage) incUint(method *abi.Method, delta *big.Int) (*native.InterpreterResult, error) {
	cur, err := s.read(uintSlot)
	if err != nil {
		return nil, err
	}
	d, overflow := uint256.FromBig(delta)
	if overflow {
		return s.ctx.Revert("delta overflows uint256")
	}
	sum, overflow := new(uint256.Int).AddOverflow(new(uint256.Int).SetBytes32(cur[:]), d)
	if overflow {
		return s.ctx.Revert("incUint overflow")
	}
	if err := s.store(uintSlot, sum.Bytes32()); err != nil {
		return nil, err
	}
	return s.stored(method, nil, sum.ToBig())
}

// setString stores the length at stringSlot and the bytes in 32-byte chunks
// from keccak(stringSlot). Chunks left over from a longer value are cleared.
func (s *SimpleStorage) setString(value string) error {
	if len(value) > MaxStringLen {
		return s.ctx.Meter.Fail("string of %d bytes above limit %d", len(value), MaxStringLen)
	}
	oldLen := s.ctx.Load(stringSlot).Big().Uint64()
	if err := s.store(stringSlot, common.BigToHash(big.NewInt(int64(len(value))))); err != nil {
		return err
	}
	data := []byte(value)
	chunks := (uint64(len(data)) + 31) / 32
	oldChunks := (oldLen + 31) / 32
	start := base.Slot("storage.string.data")
	for i := uint64(0); i < chunks; i++ {
		var word common.Hash
		copy(word[:], data[i*32:])
		if err := s.store(base.Offset(start, i), word); err != nil {
			return err
		}
	}
	for i := chunks; i < oldChunks; i++ {
		if err := s.store(base.Offset(start, i), common.Hash{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SimpleStorage) getString(method *abi.Method) (*native.InterpreterResult, error) {
	lenWord, err := s.read(stringSlot)
	if err != nil {
		return nil, err
	}
	size := lenWord.Big().Uint64()
	if size > MaxStringLen {
		return nil, s.ctx.Meter.Fail("corrupted string length %d", size)
	}
	data := make([]byte, 0, size)
	start := base.Slot("storage.string.data")
	for i := uint64(0); uint64(len(data)) < size; i++ {
		word, err := s.read(base.Offset(start, i))
		if err != nil {
			return nil, err
		}
		n := size - uint64(len(data))
		if n > 32 {
			n = 32
		}
		data = append(data, word[:n]...)
	}
	return s.ctx.Return(method, string(data))
}

func (s *SimpleStorage) pushArray(value *big.Int) error {
	lenWord, err := s.read(arraySlot)
	if err != nil {
		return err
	}
	length := lenWord.Big()
	elem := base.Offset(base.Slot("storage.array.data"), length.Uint64())
	if err := s.store(elem, common.BigToHash(value)); err != nil {
		return err
	}
	return s.store(arraySlot, common.BigToHash(length.Add(length, big.NewInt(1))))
}

func (s *SimpleStorage) getArray(method *abi.Method, index *big.Int) (*native.InterpreterResult, error) {
	lenWord, err := s.read(arraySlot)
	if err != nil {
		return nil, err
	}
	if index.Cmp(lenWord.Big()) >= 0 {
		return s.ctx.Revert("array index out of range")
	}
	return s.load(method, base.Offset(base.Slot("storage.array.data"), index.Uint64()))
}

func mapKey(key *big.Int) common.Hash {
	k := common.BigToHash(key)
	return base.Slot("storage.map", mapSlot[:], k[:])
}
