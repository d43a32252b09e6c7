package dispatch

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/xuperchain/xnative/kernel/native"
	"github.com/xuperchain/xnative/lib/logs"
	"github.com/xuperchain/xnative/lib/metrics"
	"github.com/xuperchain/xnative/lib/timer"
)

// ExecutionResult is the outcome of a dispatched call as seen by the
// interpreter. It mirrors core.ExecutionResult of go-ethereum.
type ExecutionResult struct {
	// UsedGas is the gas charged to the caller, never above ExecParams.Gas
	UsedGas uint64
	// Err is nil, native.ErrExecutionReverted or a *native.NativeError
	Err error
	// ReturnData is the output on success and the revert data on revert
	ReturnData []byte
}

// Failed reports whether the call failed. State changes of a failed call
// have been rolled back.
func (r *ExecutionResult) Failed() bool { return r.Err != nil }

// Return returns the output of a successful call.
func (r *ExecutionResult) Return() []byte {
	if r.Err != nil {
		return nil
	}
	return common.CopyBytes(r.ReturnData)
}

// Revert returns the revert data of an explicitly reverted call.
func (r *ExecutionResult) Revert() []byte {
	if r.Err != native.ErrExecutionReverted {
		return nil
	}
	return common.CopyBytes(r.ReturnData)
}

// Dispatcher routes calls on reserved addresses to native contracts. It
// holds no per call state and is safe for concurrent use as long as every
// goroutine brings its own DataProvider.
type Dispatcher struct {
	factory  *native.Factory
	log      logs.Logger
	debugLog bool
}

// New returns a dispatcher over factory. A nil logger discards logs.
func New(factory *native.Factory, log logs.Logger) *Dispatcher {
	if log == nil {
		log = logs.NewDiscardLogger()
	}
	return &Dispatcher{
		factory: factory,
		log:     log,
	}
}

// SetDebugLog turns per call debug records on or off.
func (d *Dispatcher) SetDebugLog(enable bool) {
	d.debugLog = enable
}

func (d *Dispatcher) Factory() *native.Factory {
	return d.factory
}

// IsNative reports whether addr is served by a native contract.
func (d *Dispatcher) IsNative(addr common.Address) bool {
	return d.factory.IsNative(addr)
}

// Resolve returns a fresh instance of the native contract registered at
// addr, nil when there is none.
func (d *Dispatcher) Resolve(addr common.Address) native.Contract {
	return d.factory.NewContract(addr)
}

// Call runs params on the native contract registered at params.Address.
// handled is false when the address has no native contract, nothing is
// executed and state is untouched in that case.
func (d *Dispatcher) Call(params *native.ExecParams, state native.DataProvider) (result *ExecutionResult, handled bool) {
	contract := d.Resolve(params.Address)
	if contract == nil {
		return nil, false
	}
	return d.Run(contract, params, state), true
}

// Run executes an instance obtained from Resolve. Registry changes made
// after Resolve do not affect the call.
func (d *Dispatcher) Run(contract native.Contract, params *native.ExecParams, state native.DataProvider) *ExecutionResult {
	xt := timer.NewXTimer()
	name := native.NameOf(contract)
	snapshot := state.Snapshot()
	xt.Mark("snapshot")

	res, recovered, err := safeExec(contract, params, state)
	xt.Mark("exec")

	result, outcome := settle(params, res, recovered, err)
	if result.Failed() {
		state.RevertToSnapshot(snapshot)
	}
	xt.Mark("settle")

	switch outcome {
	case metrics.OutcomePanic:
		d.log.Error("native contract panicked", "contract", name,
			"address", params.Address.Hex(), "panic", recovered)
	case metrics.OutcomeInternal:
		detail := ""
		if ne, ok := native.AsNativeError(result.Err); ok {
			detail = ne.Detail
		}
		d.log.Warn("native contract internal error", "contract", name,
			"address", params.Address.Hex(), "detail", detail, "used", result.UsedGas)
	}
	if d.debugLog {
		d.log.Debug("native contract called", "contract", name,
			"address", params.Address.Hex(), "caller", params.Caller.Hex(),
			"gas", params.Gas, "used", result.UsedGas, "outcome", outcome,
			"timer", xt.Print())
	}

	metrics.NativeInvokeCounter.WithLabelValues(name, outcome).Inc()
	metrics.NativeInvokeHistogram.WithLabelValues(name).Observe(xt.Elapsed().Seconds())
	metrics.NativeGasUsedCounter.WithLabelValues(name).Add(float64(result.UsedGas))

	return result
}

func safeExec(contract native.Contract, params *native.ExecParams,
	state native.DataProvider) (res *native.InterpreterResult, recovered interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err, recovered = nil, nil, r
		}
	}()
	res, err = contract.Exec(params, state)
	return res, nil, err
}

// settle turns the raw outcome of Exec into the charge and error seen by the
// interpreter.
func settle(params *native.ExecParams, res *native.InterpreterResult,
	recovered interface{}, err error) (*ExecutionResult, string) {
	switch {
	case recovered != nil:
		return &ExecutionResult{
			UsedGas: params.Gas,
			Err:     native.Internal(params.Gas, "contract panicked"),
		}, metrics.OutcomePanic

	case err != nil:
		ne, ok := native.AsNativeError(err)
		if !ok {
			return &ExecutionResult{
				UsedGas: params.Gas,
				Err:     native.Internal(params.Gas, "%s", err.Error()),
			}, metrics.OutcomeInternal
		}
		if ne.Kind == native.KindOutOfGas {
			return &ExecutionResult{
				UsedGas: params.Gas,
				Err:     ne,
			}, metrics.OutcomeOutOfGas
		}
		used := ne.GasUsed
		if ne.Kind != native.KindInternal || used > params.Gas {
			used = params.Gas
		}
		return &ExecutionResult{
			UsedGas: used,
			Err:     ne,
		}, metrics.OutcomeInternal

	case res == nil:
		return &ExecutionResult{
			UsedGas: params.Gas,
			Err:     native.Internal(params.Gas, "contract returned no result"),
		}, metrics.OutcomeInternal

	case res.GasLeft > params.Gas:
		return &ExecutionResult{
			UsedGas: params.Gas,
			Err:     native.Internal(params.Gas, "gas left %d above allotment %d", res.GasLeft, params.Gas),
		}, metrics.OutcomeInternal

	case res.Reverted:
		return &ExecutionResult{
			UsedGas:    params.Gas - res.GasLeft,
			Err:        native.ErrExecutionReverted,
			ReturnData: res.Output,
		}, metrics.OutcomeReverted
	}

	return &ExecutionResult{
		UsedGas:    params.Gas - res.GasLeft,
		ReturnData: res.Output,
	}, metrics.OutcomeSuccess
}
