/* package geth
Executor runs calls against a native.DataProvider with go-ethereum's EVM as
the bytecode interpreter. Calls that target a registered native contract
never reach the EVM, they are served by the native dispatcher. Bytecode
calling into a native contract fails with ErrNestedNativeCall.
*/
package geth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"

	"github.com/xuperchain/xnative/kernel/native"
	"github.com/xuperchain/xnative/kernel/native/dispatch"
	"github.com/xuperchain/xnative/lib/metrics"
)

const (
	callKindNative   = "native"
	callKindBytecode = "bytecode"
	callKindCreate   = "create"
)

// Config holds what the EVM needs besides the state.
type Config struct {
	// ChainConfig selects the fork rules, DefaultChainConfig when nil
	ChainConfig *params.ChainConfig
	Block       native.BlockContext
	GasLimit    uint64
	GasPrice    *big.Int
	VMConfig    vm.Config
}

// DefaultChainConfig activates every fork up to Istanbul at genesis.
func DefaultChainConfig(chainID *big.Int) *params.ChainConfig {
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	zero := big.NewInt(0)
	return &params.ChainConfig{
		ChainID:             chainID,
		HomesteadBlock:      zero,
		EIP150Block:         zero,
		EIP155Block:         zero,
		EIP158Block:         zero,
		ByzantiumBlock:      zero,
		ConstantinopleBlock: zero,
		PetersburgBlock:     zero,
		IstanbulBlock:       zero,
	}
}

// Executor is bound to one state and is not safe for concurrent use. Run
// parallel lanes on independent executors.
type Executor struct {
	dispatcher *dispatch.Dispatcher
	statedb    *stateDB
	chainCfg   *params.ChainConfig
	block      native.BlockContext
	gasLimit   uint64
	gasPrice   *big.Int
	vmConfig   vm.Config
}

func NewExecutor(dispatcher *dispatch.Dispatcher, state native.DataProvider, cfg *Config) *Executor {
	if cfg == nil {
		cfg = &Config{}
	}
	block := cfg.Block
	if block.ChainID == nil {
		block.ChainID = big.NewInt(1)
	}
	if block.BlockNumber == nil {
		block.BlockNumber = new(big.Int)
	}
	if block.Time == nil {
		block.Time = new(big.Int)
	}
	chainCfg := cfg.ChainConfig
	if chainCfg == nil {
		chainCfg = DefaultChainConfig(block.ChainID)
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = params.GenesisGasLimit
	}
	gasPrice := cfg.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(1)
	}
	return &Executor{
		dispatcher: dispatcher,
		statedb:    newStateDB(state),
		chainCfg:   chainCfg,
		block:      block,
		gasLimit:   gasLimit,
		gasPrice:   gasPrice,
		vmConfig:   cfg.VMConfig,
	}
}

// Call runs one message call. A registered native contract at params.Address
// is always served by the dispatcher, any other address runs its bytecode.
func (e *Executor) Call(call *native.ExecParams) *dispatch.ExecutionResult {
	p := e.prepare(call)
	if e.dispatcher != nil {
		// the single registry read decides the route
		if contract := e.dispatcher.Resolve(p.Address); contract != nil {
			metrics.ExecutorCallCounter.WithLabelValues(callKindNative).Inc()
			return e.callNative(contract, p)
		}
	}
	metrics.ExecutorCallCounter.WithLabelValues(callKindBytecode).Inc()
	return e.callBytecode(p)
}

// Create deploys code from caller and returns the new contract address.
func (e *Executor) Create(caller common.Address, code []byte, gas uint64, value *big.Int) (*dispatch.ExecutionResult, common.Address) {
	metrics.ExecutorCallCounter.WithLabelValues(callKindCreate).Inc()
	p := e.prepare(&native.ExecParams{Caller: caller, Origin: caller, Gas: gas, Value: value})
	e.statedb.reset()
	guard := e.newCallGuard()
	evm := e.newEVM(p, guard)
	if e.chainCfg.IsBerlin(p.Block.BlockNumber) {
		rules := e.chainCfg.Rules(p.Block.BlockNumber, false)
		e.statedb.PrepareAccessList(caller, nil, vm.ActivePrecompiles(rules), nil)
	}
	snapshot := e.statedb.Snapshot()
	ret, addr, left, err := evm.Create(vm.AccountRef(caller), code, gas, p.Value)
	if res := e.rejectNested(guard, snapshot, gas); res != nil {
		return res, common.Address{}
	}
	return e.finish(gas, left, ret, err), addr
}

// prepare fills what the interpreter leaves unset.
func (e *Executor) prepare(call *native.ExecParams) *native.ExecParams {
	p := *call
	if p.Value == nil {
		p.Value = new(big.Int)
	}
	if p.Origin == (common.Address{}) {
		p.Origin = p.Caller
	}
	if p.Block.BlockNumber == nil {
		p.Block = e.block
	}
	return &p
}

func (e *Executor) callNative(contract native.Contract, p *native.ExecParams) *dispatch.ExecutionResult {
	if p.Depth > int(params.CallCreateDepth) {
		return &dispatch.ExecutionResult{UsedGas: p.Gas, Err: vm.ErrDepth}
	}
	snapshot := e.statedb.Snapshot()
	if p.Value.Sign() > 0 {
		if p.ReadOnly {
			return &dispatch.ExecutionResult{UsedGas: p.Gas, Err: vm.ErrWriteProtection}
		}
		if !canTransfer(e.statedb, p.Caller, p.Value) {
			return &dispatch.ExecutionResult{Err: vm.ErrInsufficientBalance}
		}
		transfer(e.statedb, p.Caller, p.Address, p.Value)
	}
	res := e.dispatcher.Run(contract, p, e.statedb)
	if res.Failed() {
		e.statedb.RevertToSnapshot(snapshot)
	}
	return res
}

func (e *Executor) callBytecode(p *native.ExecParams) *dispatch.ExecutionResult {
	e.statedb.reset()
	guard := e.newCallGuard()
	evm := e.newEVM(p, guard)
	if e.chainCfg.IsBerlin(p.Block.BlockNumber) {
		rules := e.chainCfg.Rules(p.Block.BlockNumber, false)
		e.statedb.PrepareAccessList(p.Caller, &p.Address, vm.ActivePrecompiles(rules), nil)
	}
	snapshot := e.statedb.Snapshot()
	var (
		ret  []byte
		left uint64
		err  error
	)
	if p.ReadOnly {
		ret, left, err = evm.StaticCall(vm.AccountRef(p.Caller), p.Address, p.Data, p.Gas)
	} else {
		ret, left, err = evm.Call(vm.AccountRef(p.Caller), p.Address, p.Data, p.Gas, p.Value)
	}
	if res := e.rejectNested(guard, snapshot, p.Gas); res != nil {
		return res
	}
	return e.finish(p.Gas, left, ret, err)
}

// rejectNested fails the whole call when bytecode reached a native contract
// through CALL, CALLCODE, DELEGATECALL or STATICCALL. The interpreter cannot
// route those frames, it would have run them as empty accounts.
func (e *Executor) rejectNested(guard *callGuard, snapshot int, gas uint64) *dispatch.ExecutionResult {
	if guard == nil || guard.target == nil {
		return nil
	}
	e.statedb.RevertToSnapshot(snapshot)
	e.statedb.reset()
	return &dispatch.ExecutionResult{
		UsedGas: gas,
		Err:     errors.Wrapf(ErrNestedNativeCall, "%s", guard.target.Hex()),
	}
}

// finish applies the refund and destructs like a state transition does.
func (e *Executor) finish(gas, left uint64, ret []byte, err error) *dispatch.ExecutionResult {
	used := gas - left
	refund := e.statedb.GetRefund()
	if limit := used / params.RefundQuotient; refund > limit {
		refund = limit
	}
	used -= refund
	e.statedb.finalise()

	res := &dispatch.ExecutionResult{UsedGas: used, ReturnData: ret}
	switch err {
	case nil:
	case vm.ErrExecutionReverted:
		res.Err = native.ErrExecutionReverted
	default:
		res.Err = err
	}
	return res
}

func (e *Executor) newEVM(p *native.ExecParams, guard *callGuard) *vm.EVM {
	blockCtx := vm.BlockContext{
		CanTransfer: canTransfer,
		Transfer:    transfer,
		GetHash:     getHash,
		Coinbase:    p.Block.Coinbase,
		GasLimit:    e.gasLimit,
		BlockNumber: p.Block.BlockNumber,
		Time:        p.Block.Time,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int),
	}
	txCtx := vm.TxContext{
		Origin:   p.Origin,
		GasPrice: e.gasPrice,
	}
	vmConfig := e.vmConfig
	if guard != nil {
		vmConfig.Debug = true
		vmConfig.Tracer = guard
	}
	return vm.NewEVM(blockCtx, txCtx, e.statedb, e.chainCfg, vmConfig)
}

// methods for vm.BlockContext
func transfer(db vm.StateDB, from common.Address, to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	db.SubBalance(from, amount)
	db.AddBalance(to, amount)
}

func canTransfer(db vm.StateDB, from common.Address, amount *big.Int) bool {
	return db.GetBalance(from).Cmp(amount) >= 0
}

// getHash has no chain to look into, it derives a stable hash from the
// number alone.
func getHash(number uint64) common.Hash {
	return crypto.Keccak256Hash(new(big.Int).SetUint64(number).Bytes())
}
