package dispatch

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xuperchain/xnative/kernel/contract/sandbox"
	"github.com/xuperchain/xnative/kernel/native"
)

const (
	opSuccess byte = iota
	opRevert
	opOutOfGas
	opInternal
	opInternalOvercharge
	opPanic
	opPlainError
	opNilResult
	opBadGasLeft
)

var (
	scriptAddr = common.HexToAddress("0xffffffffffffffffffffffffffffffffff0c0001")
	slotKey    = common.HexToHash("0x01")
)

// scriptContract writes a slot, burns 100 gas and then ends the way the
// first input byte tells it to.
type scriptContract struct {
	meter *native.GasMeter
}

func (s *scriptContract) Name() string { return "script" }

func (s *scriptContract) Create() native.Contract { return &scriptContract{} }

func (s *scriptContract) Exec(params *native.ExecParams, state native.DataProvider) (*native.InterpreterResult, error) {
	s.meter = native.NewGasMeter(params.Gas)
	if err := s.meter.Consume(100); err != nil {
		return nil, err
	}
	state.SetState(params.Address, slotKey, common.BytesToHash(params.Data))
	op := opSuccess
	if len(params.Data) > 0 {
		op = params.Data[0]
	}
	switch op {
	case opRevert:
		return &native.InterpreterResult{Output: []byte("nope"), GasLeft: s.meter.Left(), Reverted: true}, nil
	case opOutOfGas:
		return nil, s.meter.Consume(params.Gas)
	case opInternal:
		return nil, s.meter.Fail("bad input")
	case opInternalOvercharge:
		return nil, native.Internal(params.Gas+1, "overcharge")
	case opPanic:
		var m map[string]int
		m["x"] = 1
	case opPlainError:
		return nil, errors.New("plain")
	case opNilResult:
		return nil, nil
	case opBadGasLeft:
		return &native.InterpreterResult{GasLeft: params.Gas + 1}, nil
	}
	return &native.InterpreterResult{Output: params.Data, GasLeft: s.meter.Left()}, nil
}

func newTestDispatcher() *Dispatcher {
	f := native.NewFactory()
	f.Register(scriptAddr, &scriptContract{})
	d := New(f, nil)
	d.SetDebugLog(true)
	return d
}

func TestDispatcherUnregistered(t *testing.T) {
	d := newTestDispatcher()
	state := sandbox.NewMemState()
	before := state.Dump()

	res, handled := d.Call(&native.ExecParams{
		Address: common.HexToAddress("0xffffffffffffffffffffffffffffffffff0c00ff"),
		Gas:     1000,
	}, state)
	assert.False(t, handled)
	assert.Nil(t, res)
	assert.Equal(t, before, state.Dump())
	assert.True(t, d.IsNative(scriptAddr))
	assert.Equal(t, 1, d.Factory().Len())
}

func TestDispatcherRunAfterUnregister(t *testing.T) {
	d := newTestDispatcher()
	state := sandbox.NewMemState()

	contract := d.Resolve(scriptAddr)
	require.NotNil(t, contract)
	d.Factory().Unregister(scriptAddr)
	assert.Nil(t, d.Resolve(scriptAddr))

	res := d.Run(contract, &native.ExecParams{Address: scriptAddr, Data: []byte{opSuccess}, Gas: 1000}, state)
	require.NotNil(t, res)
	require.NoError(t, res.Err)
	assert.Equal(t, uint64(100), res.UsedGas)
}

func TestDispatcherOutcomes(t *testing.T) {
	const gas = 1000
	tests := []struct {
		name     string
		op       byte
		usedGas  uint64
		errIs    error
		ret      []byte
		revert   []byte
		keepSlot bool
	}{
		{name: "success", op: opSuccess, usedGas: 100, ret: []byte{opSuccess, 7}, keepSlot: true},
		{name: "revert", op: opRevert, usedGas: 100, errIs: native.ErrExecutionReverted, revert: []byte("nope")},
		{name: "out of gas", op: opOutOfGas, usedGas: gas, errIs: native.ErrOutOfGas},
		{name: "internal", op: opInternal, usedGas: 100, errIs: native.ErrInternal},
		{name: "internal overcharge", op: opInternalOvercharge, usedGas: gas, errIs: native.ErrInternal},
		{name: "panic", op: opPanic, usedGas: gas, errIs: native.ErrInternal},
		{name: "plain error", op: opPlainError, usedGas: gas, errIs: native.ErrInternal},
		{name: "nil result", op: opNilResult, usedGas: gas, errIs: native.ErrInternal},
		{name: "bad gas left", op: opBadGasLeft, usedGas: gas, errIs: native.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher()
			state := sandbox.NewMemState()
			before := state.Dump()

			res, handled := d.Call(&native.ExecParams{
				Address: scriptAddr,
				Data:    []byte{tt.op, 7},
				Gas:     gas,
			}, state)
			require.True(t, handled)
			assert.Equal(t, tt.usedGas, res.UsedGas)
			if tt.errIs == nil {
				assert.NoError(t, res.Err)
				assert.False(t, res.Failed())
			} else {
				assert.True(t, errors.Is(res.Err, tt.errIs), "got %v", res.Err)
				assert.True(t, res.Failed())
			}
			assert.Equal(t, tt.ret, res.Return())
			assert.Equal(t, tt.revert, res.Revert())

			if tt.keepSlot {
				assert.NotEqual(t, common.Hash{}, state.GetState(scriptAddr, slotKey))
			} else {
				assert.Equal(t, before, state.Dump())
			}
		})
	}
}

func TestDispatcherOutOfGasBeforeWork(t *testing.T) {
	d := newTestDispatcher()
	state := sandbox.NewMemState()
	res, handled := d.Call(&native.ExecParams{Address: scriptAddr, Gas: 99}, state)
	require.True(t, handled)
	assert.True(t, errors.Is(res.Err, native.ErrOutOfGas))
	assert.Equal(t, uint64(99), res.UsedGas)
}

func TestDispatcherDeterministic(t *testing.T) {
	d := newTestDispatcher()
	base := sandbox.NewMemState()
	base.SetState(scriptAddr, common.HexToHash("0x02"), common.HexToHash("0x03"))

	inputs := [][]byte{{opSuccess, 1}, {opRevert}, {opInternal}, {opSuccess, 2}, {opPanic}}
	run := func() ([]*ExecutionResult, common.Hash) {
		state := base.Copy()
		var results []*ExecutionResult
		for _, in := range inputs {
			res, _ := d.Call(&native.ExecParams{Address: scriptAddr, Data: in, Gas: 500}, state)
			results = append(results, res)
		}
		return results, state.Root()
	}

	want, wantRoot := run()
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			got, root := run()
			if root != wantRoot {
				return errors.New("state root differs")
			}
			for n := range got {
				if got[n].UsedGas != want[n].UsedGas || string(got[n].ReturnData) != string(want[n].ReturnData) ||
					(got[n].Err == nil) != (want[n].Err == nil) {
					return errors.New("result differs")
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
