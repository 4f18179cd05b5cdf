// Package fixedpoint implements the 17.14 signed fixed-point representation
// used by the MLFQ scheduler for load_avg and recent_cpu.
package fixedpoint

// Q is a 17.14 fixed-point number: the low 14 bits are the fraction, the
// remaining bits (including sign) are the integer part.
type Q int64

const fracBits = 14

// shift is the scale factor, 2^14.
const shift = 1 << fracBits

// FromInt converts an integer to fixed-point.
func FromInt(n int64) Q {
	return Q(n * shift)
}

// ToIntTrunc converts to an integer, rounding toward zero.
func (q Q) ToIntTrunc() int64 {
	return int64(q) / shift
}

// ToIntRound converts to an integer, rounding to nearest (ties away from zero).
func (q Q) ToIntRound() int64 {
	n := int64(q)
	if n >= 0 {
		return (n + shift/2) / shift
	}
	return (n - shift/2) / shift
}

// Add returns q + other.
func (q Q) Add(other Q) Q {
	return q + other
}

// Sub returns q - other.
func (q Q) Sub(other Q) Q {
	return q - other
}

// AddInt returns q + n.
func (q Q) AddInt(n int64) Q {
	return q + FromInt(n)
}

// SubInt returns q - n.
func (q Q) SubInt(n int64) Q {
	return q - FromInt(n)
}

// Mul returns q * other, carrying a single fixed-point scale.
func (q Q) Mul(other Q) Q {
	return Q((int64(q) * int64(other)) / shift)
}

// Div returns q / other, carrying a single fixed-point scale.
func (q Q) Div(other Q) Q {
	return Q((int64(q) * shift) / int64(other))
}

// MulInt returns q * n.
func (q Q) MulInt(n int64) Q {
	return q * Q(n)
}

// DivInt returns q / n.
func (q Q) DivInt(n int64) Q {
	return Q(int64(q) / n)
}

// Percent100Round returns the value scaled by 100 and rounded to the nearest
// integer, the form in which load_avg and recent_cpu are reported to users.
func (q Q) Percent100Round() int64 {
	return q.MulInt(100).ToIntRound()
}
