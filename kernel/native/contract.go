package native

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Contract is a native contract bound to a reserved address.
//
// A registered Contract is a prototype: it holds identity and configuration
// only. Every dispatched call runs on a fresh value returned by Create, so the
// instance may keep any per-call working state in its own fields.
type Contract interface {
	// Exec runs one call. Malformed input must be reported as an error,
	// never as a panic. state is only valid for the duration of the call.
	Exec(params *ExecParams, state DataProvider) (*InterpreterResult, error)
	// Create returns a pristine instance of the prototype. It must be pure
	// and safe to call from many goroutines at once.
	Create() Contract
}

// Named is implemented by contracts that expose a readable name for logs
// and metrics.
type Named interface {
	Name() string
}

// NameOf returns the name of c, falling back to "unknown".
func NameOf(c Contract) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// BlockContext carries the block level data threaded through by the
// interpreter.
type BlockContext struct {
	ChainID     *big.Int
	BlockNumber *big.Int
	Time        *big.Int
	Coinbase    common.Address
}

// ExecParams is the call frame handed to a native contract. It is owned by
// the interpreter and must be treated as read-only.
type ExecParams struct {
	// Address is the reserved address the call targets
	Address common.Address
	Caller  common.Address
	Origin  common.Address
	Value   *big.Int
	Data    []byte
	Gas     uint64
	Depth   int
	// ReadOnly is set for static calls, writes must be rejected
	ReadOnly bool
	Block    BlockContext
}

// InterpreterResult is the successful outcome of Exec.
type InterpreterResult struct {
	Output  []byte
	GasLeft uint64
	// Reverted marks an explicit revert, Output then carries revert data
	// and every state change of the call is rolled back.
	Reverted bool
}

// DataProvider is the mutable account/storage view of the in-flight
// transaction. The method set is a subset of the geth vm.StateDB so that any
// geth state implementation can be handed to native contracts directly.
type DataProvider interface {
	GetBalance(common.Address) *big.Int
	AddBalance(common.Address, *big.Int)
	SubBalance(common.Address, *big.Int)

	GetNonce(common.Address) uint64
	SetNonce(common.Address, uint64)

	GetCode(common.Address) []byte
	SetCode(common.Address, []byte)

	GetState(common.Address, common.Hash) common.Hash
	SetState(common.Address, common.Hash, common.Hash)

	Exist(common.Address) bool
	AddLog(*types.Log)

	Snapshot() int
	RevertToSnapshot(int)
}
