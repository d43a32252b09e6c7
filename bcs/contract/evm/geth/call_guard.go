package geth

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"

	"github.com/xuperchain/xnative/kernel/native/dispatch"
)

// ErrNestedNativeCall is returned when bytecode calls into a native
// contract. Native contracts only serve top level calls.
var ErrNestedNativeCall = errors.New("native contract called from bytecode")

// callGuard watches the call frames opened by the interpreter and records
// the first one targeting a registered native contract. Every event is
// forwarded to the tracer configured on the executor, if any.
type callGuard struct {
	dispatcher *dispatch.Dispatcher
	next       vm.EVMLogger
	target     *common.Address
}

var _ vm.EVMLogger = (*callGuard)(nil)

func (e *Executor) newCallGuard() *callGuard {
	if e.dispatcher == nil {
		return nil
	}
	g := &callGuard{dispatcher: e.dispatcher}
	if e.vmConfig.Debug {
		g.next = e.vmConfig.Tracer
	}
	return g
}

func (g *callGuard) CaptureTxStart(gasLimit uint64) {
	if g.next != nil {
		g.next.CaptureTxStart(gasLimit)
	}
}

func (g *callGuard) CaptureTxEnd(restGas uint64) {
	if g.next != nil {
		g.next.CaptureTxEnd(restGas)
	}
}

func (g *callGuard) CaptureStart(env *vm.EVM, from common.Address, to common.Address, create bool, input []byte, gas uint64, value *big.Int) {
	if g.next != nil {
		g.next.CaptureStart(env, from, to, create, input, gas, value)
	}
}

func (g *callGuard) CaptureEnd(output []byte, gasUsed uint64, t time.Duration, err error) {
	if g.next != nil {
		g.next.CaptureEnd(output, gasUsed, t, err)
	}
}

func (g *callGuard) CaptureEnter(typ vm.OpCode, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	if g.target == nil && typ != vm.CREATE && typ != vm.CREATE2 && g.dispatcher.IsNative(to) {
		addr := to
		g.target = &addr
	}
	if g.next != nil {
		g.next.CaptureEnter(typ, from, to, input, gas, value)
	}
}

func (g *callGuard) CaptureExit(output []byte, gasUsed uint64, err error) {
	if g.next != nil {
		g.next.CaptureExit(output, gasUsed, err)
	}
}

func (g *callGuard) CaptureState(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, rData []byte, depth int, err error) {
	if g.next != nil {
		g.next.CaptureState(pc, op, gas, cost, scope, rData, depth, err)
	}
}

func (g *callGuard) CaptureFault(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, depth int, err error) {
	if g.next != nil {
		g.next.CaptureFault(pc, op, gas, cost, scope, depth, err)
	}
}
