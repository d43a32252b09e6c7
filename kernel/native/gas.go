package native

import "github.com/ethereum/go-ethereum/common/math"

// GasMeter tracks the gas of a single call. It belongs to one contract
// instance and is never shared.
type GasMeter struct {
	limit uint64
	used  uint64
}

func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume charges n gas. When the budget is exceeded the meter is pinned to
// the limit and an out of gas error is returned.
func (g *GasMeter) Consume(n uint64) error {
	if n > g.limit-g.used {
		g.used = g.limit
		return OutOfGas()
	}
	g.used += n
	return nil
}

func (g *GasMeter) Used() uint64 {
	return g.used
}

func (g *GasMeter) Left() uint64 {
	return g.limit - g.used
}

func (g *GasMeter) Limit() uint64 {
	return g.limit
}

// Fail returns an internal error charging what has been consumed so far.
func (g *GasMeter) Fail(format string, args ...interface{}) *NativeError {
	return Internal(g.used, format, args...)
}

// WordGas is the cost of size bytes at perWord gas per 32-byte word,
// saturating at math.MaxUint64.
func WordGas(size int, perWord uint64) uint64 {
	if size <= 0 {
		return 0
	}
	return SafeMul((uint64(size)+31)/32, perWord)
}

// SafeAdd adds gas amounts, saturating at math.MaxUint64.
func SafeAdd(a, b uint64) uint64 {
	sum, overflow := math.SafeAdd(a, b)
	if overflow {
		return math.MaxUint64
	}
	return sum
}

// SafeMul multiplies gas amounts, saturating at math.MaxUint64.
func SafeMul(a, b uint64) uint64 {
	product, overflow := math.SafeMul(a, b)
	if overflow {
		return math.MaxUint64
	}
	return product
}
