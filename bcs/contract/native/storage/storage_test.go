package storage

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xnative/bcs/contract/native/base"
	"github.com/xuperchain/xnative/kernel/common/xaddress"
	"github.com/xuperchain/xnative/kernel/contract/sandbox"
	"github.com/xuperchain/xnative/kernel/native"
)

type caller struct {
	t        *testing.T
	proto    native.Contract
	state    *sandbox.MemState
	readOnly bool
	gas      uint64
}

func newCaller(t *testing.T) *caller {
	return &caller{t: t, proto: &SimpleStorage{}, state: sandbox.NewMemState(), gas: 1000000}
}

func (c *caller) exec(input []byte) (*native.InterpreterResult, error) {
	return c.proto.Create().Exec(&native.ExecParams{
		Address:  xaddress.SimpleStorageAddress,
		Caller:   common.HexToAddress("0x01"),
		Data:     input,
		Gas:      c.gas,
		ReadOnly: c.readOnly,
	}, c.state)
}

func (c *caller) call(method string, args ...interface{}) []interface{} {
	input, err := ABI.Pack(method, args...)
	require.NoError(c.t, err)
	res, err := c.exec(input)
	require.NoError(c.t, err)
	require.False(c.t, res.Reverted, "%s reverted", method)
	if len(ABI.Methods[method].Outputs) == 0 {
		assert.Empty(c.t, res.Output)
		return nil
	}
	vals, err := ABI.Unpack(method, res.Output)
	require.NoError(c.t, err)
	return vals
}

func (c *caller) revert(method string, args ...interface{}) string {
	input, err := ABI.Pack(method, args...)
	require.NoError(c.t, err)
	res, err := c.exec(input)
	require.NoError(c.t, err)
	require.True(c.t, res.Reverted)
	reason, ok := base.DecodeRevert(res.Output)
	require.True(c.t, ok)
	return reason
}

func TestUint(t *testing.T) {
	c := newCaller(t)
	assert.Equal(t, int64(0), c.call("getUint")[0].(*big.Int).Int64())

	c.call("setUint", big.NewInt(41))
	assert.Equal(t, int64(41), c.call("getUint")[0].(*big.Int).Int64())
	assert.Equal(t, int64(42), c.call("incUint", big.NewInt(1))[0].(*big.Int).Int64())
	assert.Equal(t, int64(42), c.call("getUint")[0].(*big.Int).Int64())

	c.call("setUint", math.MaxBig256)
	reason := c.revert("incUint", big.NewInt(1))
	assert.Contains(t, reason, "overflow")
	assert.Equal(t, 0, math.MaxBig256.Cmp(c.call("getUint")[0].(*big.Int)))
}

func TestString(t *testing.T) {
	c := newCaller(t)
	assert.Equal(t, "", c.call("getString")[0].(string))

	long := strings.Repeat("native!", 20)
	c.call("setString", long)
	assert.Equal(t, long, c.call("getString")[0].(string))

	c.call("setString", "short")
	assert.Equal(t, "short", c.call("getString")[0].(string))

	// stale chunks of the long value are cleared
	c.call("setString", "")
	slots := 0
	require.NoError(t, c.state.ForEachStorage(xaddress.SimpleStorageAddress, func(_, _ common.Hash) bool {
		slots++
		return true
	}))
	assert.Equal(t, 0, slots)

	input, err := ABI.Pack("setString", strings.Repeat("x", MaxStringLen+1))
	require.NoError(t, err)
	_, err = c.exec(input)
	assert.True(t, errors.Is(err, native.ErrInternal))
}

func TestArrayAndMap(t *testing.T) {
	c := newCaller(t)
	for i := int64(0); i < 5; i++ {
		c.call("pushArray", big.NewInt(i*10))
	}
	assert.Equal(t, int64(5), c.call("arrayLength")[0].(*big.Int).Int64())
	assert.Equal(t, int64(30), c.call("getArray", big.NewInt(3))[0].(*big.Int).Int64())
	assert.Contains(t, c.revert("getArray", big.NewInt(5)), "out of range")

	c.call("setMap", big.NewInt(1), big.NewInt(100))
	c.call("setMap", big.NewInt(2), big.NewInt(200))
	assert.Equal(t, int64(100), c.call("getMap", big.NewInt(1))[0].(*big.Int).Int64())
	assert.Equal(t, int64(200), c.call("getMap", big.NewInt(2))[0].(*big.Int).Int64())
	assert.Equal(t, int64(0), c.call("getMap", big.NewInt(3))[0].(*big.Int).Int64())
}

func TestStoredEvent(t *testing.T) {
	c := newCaller(t)
	c.call("setUint", big.NewInt(1))
	c.call("getUint")
	c.call("setMap", big.NewInt(1), big.NewInt(1))

	logs := c.state.Logs()
	require.Len(t, logs, 2)
	for i, method := range []string{"setUint", "setMap"} {
		assert.Equal(t, xaddress.SimpleStorageAddress, logs[i].Address)
		assert.Equal(t, ABI.Events["Stored"].ID, logs[i].Topics[0])
		assert.True(t, bytes.HasPrefix(logs[i].Data, ABI.Methods[method].ID))
	}
}

func TestGasSchedule(t *testing.T) {
	c := newCaller(t)
	gasOf := func(method string, args ...interface{}) uint64 {
		input, err := ABI.Pack(method, args...)
		require.NoError(t, err)
		res, err := c.exec(input)
		require.NoError(t, err)
		return c.gas - res.GasLeft
	}
	decode := func(method string, args ...interface{}) uint64 {
		input, err := ABI.Pack(method, args...)
		require.NoError(t, err)
		return native.WordGas(len(input), DecodeWordGas)
	}

	assert.Equal(t, decode("setUint", big.NewInt(1))+WriteGas, gasOf("setUint", big.NewInt(1)))
	assert.Equal(t, decode("setUint", big.NewInt(2))+OverwriteGas, gasOf("setUint", big.NewInt(2)))
	assert.Equal(t, decode("getUint")+ReadGas, gasOf("getUint"))
	assert.Equal(t, decode("incUint", big.NewInt(1))+ReadGas+OverwriteGas, gasOf("incUint", big.NewInt(1)))
	// first push: read length, write element, write length
	assert.Equal(t, decode("pushArray", big.NewInt(7))+ReadGas+2*WriteGas, gasOf("pushArray", big.NewInt(7)))
}

func TestOutOfGasAndMalformed(t *testing.T) {
	c := newCaller(t)
	c.gas = 10000
	input, err := ABI.Pack("setUint", big.NewInt(1))
	require.NoError(t, err)
	_, err = c.exec(input)
	assert.True(t, errors.Is(err, native.ErrOutOfGas))
	assert.Equal(t, common.Hash{}, c.state.GetState(xaddress.SimpleStorageAddress, uintSlot))

	c.gas = 100000
	// selector of setUint without its argument
	_, err = c.exec(input[:4])
	ne, ok := native.AsNativeError(err)
	require.True(t, ok)
	assert.Equal(t, native.KindInternal, ne.Kind)
	assert.Equal(t, native.WordGas(4, DecodeWordGas), ne.GasUsed)
}

func TestStaticAndPayable(t *testing.T) {
	c := newCaller(t)
	c.call("setUint", big.NewInt(5))

	c.readOnly = true
	assert.Equal(t, int64(5), c.call("getUint")[0].(*big.Int).Int64())
	assert.Contains(t, c.revert("setUint", big.NewInt(6)), "static")
	assert.Contains(t, c.revert("pushArray", big.NewInt(6)), "static")

	c.readOnly = false
	input, err := ABI.Pack("setUint", big.NewInt(6))
	require.NoError(t, err)
	res, err := c.proto.Create().Exec(&native.ExecParams{
		Address: xaddress.SimpleStorageAddress,
		Data:    input,
		Gas:     100000,
		Value:   big.NewInt(1),
	}, c.state)
	require.NoError(t, err)
	assert.True(t, res.Reverted)
	assert.Equal(t, int64(5), c.call("getUint")[0].(*big.Int).Int64())
}

// instances never carry anything from one call into the next
func TestNoStateBleed(t *testing.T) {
	proto := &SimpleStorage{}
	run := func(state *sandbox.MemState, input []byte) []byte {
		res, err := proto.Create().Exec(&native.ExecParams{
			Address: xaddress.SimpleStorageAddress,
			Data:    input,
			Gas:     100000,
		}, state)
		require.NoError(t, err)
		return res.Output
	}
	get, err := ABI.Pack("getUint")
	require.NoError(t, err)
	set, err := ABI.Pack("setUint", big.NewInt(77))
	require.NoError(t, err)

	origin := sandbox.NewMemState()
	first := run(origin.Copy(), get)
	run(origin.Copy(), set)
	second := run(origin.Copy(), get)
	assert.Equal(t, first, second)
	assert.Nil(t, proto.ctx)
}
