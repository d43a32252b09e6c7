// Package base holds the plumbing shared by the built-in native contracts:
// ABI decoding with gas accounting, return and revert encoding, events and
// storage slots.
package base

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xuperchain/xnative/kernel/native"
)

// revertSelector is the selector of Error(string)
var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

var stringArgs = abi.Arguments{{Type: mustType("string")}}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// MustParseABI parses a JSON ABI definition and panics on error. It is
// meant for package level definitions.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Context is the per call working state of a native contract instance.
type Context struct {
	Params *native.ExecParams
	State  native.DataProvider
	Meter  *native.GasMeter
}

func NewContext(params *native.ExecParams, state native.DataProvider) *Context {
	return &Context{
		Params: params,
		State:  state,
		Meter:  native.NewGasMeter(params.Gas),
	}
}

// Decode charges wordGas per word of calldata, then resolves the method by
// selector and unpacks its arguments.
func (c *Context) Decode(contractABI *abi.ABI, wordGas uint64) (*abi.Method, []interface{}, error) {
	input := c.Params.Data
	if err := c.Meter.Consume(native.WordGas(len(input), wordGas)); err != nil {
		return nil, nil, err
	}
	if len(input) < 4 {
		return nil, nil, c.Meter.Fail("calldata too short: %d bytes", len(input))
	}
	method, err := contractABI.MethodById(input[:4])
	if err != nil {
		return nil, nil, c.Meter.Fail("unknown selector %x", input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, c.Meter.Fail("bad arguments of %s: %v", method.Name, err)
	}
	return method, args, nil
}

// Return packs vals as the outputs of method.
func (c *Context) Return(method *abi.Method, vals ...interface{}) (*native.InterpreterResult, error) {
	out, err := method.Outputs.Pack(vals...)
	if err != nil {
		return nil, c.Meter.Fail("pack outputs of %s: %v", method.Name, err)
	}
	return &native.InterpreterResult{Output: out, GasLeft: c.Meter.Left()}, nil
}

// Revert ends the call with an Error(string) revert.
func (c *Context) Revert(reason string) (*native.InterpreterResult, error) {
	packed, err := stringArgs.Pack(reason)
	if err != nil {
		return nil, c.Meter.Fail("pack revert reason: %v", err)
	}
	out := append(common.CopyBytes(revertSelector), packed...)
	return &native.InterpreterResult{Output: out, GasLeft: c.Meter.Left(), Reverted: true}, nil
}

// Emit adds a log of event with the indexed topics and abi packed data.
func (c *Context) Emit(event abi.Event, topics []common.Hash, data []byte) {
	log := &types.Log{
		Address: c.Params.Address,
		Topics:  append([]common.Hash{event.ID}, topics...),
		Data:    data,
	}
	if c.Params.Block.BlockNumber != nil {
		log.BlockNumber = c.Params.Block.BlockNumber.Uint64()
	}
	c.State.AddLog(log)
}

// Load reads a slot of the contract's own storage.
func (c *Context) Load(slot common.Hash) common.Hash {
	return c.State.GetState(c.Params.Address, slot)
}

// Store writes a slot of the contract's own storage.
func (c *Context) Store(slot, value common.Hash) {
	c.State.SetState(c.Params.Address, slot, value)
}

// Slot derives a storage slot from a name and keys.
func Slot(name string, keys ...[]byte) common.Hash {
	parts := make([][]byte, 0, len(keys)+1)
	parts = append(parts, []byte(name))
	parts = append(parts, keys...)
	return crypto.Keccak256Hash(parts...)
}

// Offset returns slot + n, wrapping at 2^256.
func Offset(slot common.Hash, n uint64) common.Hash {
	v := new(big.Int).SetBytes(slot[:])
	v.Add(v, new(big.Int).SetUint64(n))
	return common.BigToHash(v)
}

// DecodeRevert extracts the reason of an Error(string) revert.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) < 4 || string(data[:4]) != string(revertSelector) {
		return "", false
	}
	vals, err := stringArgs.Unpack(data[4:])
	if err != nil || len(vals) != 1 {
		return "", false
	}
	reason, ok := vals[0].(string)
	return reason, ok
}
