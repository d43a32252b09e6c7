package native

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failures a native contract can report.
type ErrorKind int

const (
	// KindOutOfGas means the call exceeded its gas budget. The whole
	// allotment is consumed.
	KindOutOfGas ErrorKind = iota + 1
	// KindInternal covers every other failure: malformed input, invariant
	// violation, failed verification.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindOutOfGas:
		return "OutOfGas"
	case KindInternal:
		return "Internal"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// NativeError is returned by Contract.Exec.
//
// Detail is a diagnostic for local logs. It must not be parsed by callers and
// must be built from call inputs only, so that it is identical on every node.
type NativeError struct {
	Kind   ErrorKind
	Detail string
	// GasUsed is the deterministic charge of an internal error. It is
	// ignored for KindOutOfGas.
	GasUsed uint64
}

var (
	// ErrOutOfGas matches any out of gas NativeError with errors.Is.
	ErrOutOfGas = &NativeError{Kind: KindOutOfGas}
	// ErrInternal matches any internal NativeError with errors.Is.
	ErrInternal = &NativeError{Kind: KindInternal}

	// ErrExecutionReverted is reported by the dispatcher when a contract
	// explicitly reverts.
	ErrExecutionReverted = errors.New("execution reverted")
)

// OutOfGas returns a new out of gas error.
func OutOfGas() *NativeError {
	return &NativeError{Kind: KindOutOfGas}
}

// Internal returns a new internal error charging gasUsed.
func Internal(gasUsed uint64, format string, args ...interface{}) *NativeError {
	return &NativeError{
		Kind:    KindInternal,
		Detail:  fmt.Sprintf(format, args...),
		GasUsed: gasUsed,
	}
}

func (e *NativeError) Error() string {
	switch e.Kind {
	case KindOutOfGas:
		return "out of gas"
	case KindInternal:
		return fmt.Sprintf("internal error: %s", e.Detail)
	default:
		return fmt.Sprintf("native error %s: %s", e.Kind, e.Detail)
	}
}

// Is makes errors.Is compare by kind only.
func (e *NativeError) Is(target error) bool {
	t, ok := target.(*NativeError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// AsNativeError extracts a NativeError from err.
func AsNativeError(err error) (*NativeError, bool) {
	var ne *NativeError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}
