// Package wire implements the framing layer of the Wayland wire
// protocol: 8-byte message headers, native-endian payloads and file
// descriptor passing over SCM_RIGHTS. It knows nothing about
// interfaces or opcodes; argument encoding lives in
// internal/protocol.
package wire

import (
	"fmt"
	"math"
)

// Fixed is the Wayland 24.8 signed fixed-point number.
type Fixed int32

// FixedInt converts an integer to fixed point.
func FixedInt(v int) Fixed {
	return Fixed(v << 8)
}

// FixedDouble converts a float to fixed point, rounding toward zero.
func FixedDouble(v float64) Fixed {
	return Fixed(int32(v * 256))
}

// Int returns the integer part of f.
func (f Fixed) Int() int {
	return int(f >> 8)
}

// Double returns f as a float64.
func (f Fixed) Double() float64 {
	return float64(f) / 256
}

// Mul multiplies f by an integer factor, saturating on overflow.
func (f Fixed) Mul(factor int32) Fixed {
	v := int64(f) * int64(factor)
	if v > math.MaxInt32 {
		return Fixed(math.MaxInt32)
	}
	if v < math.MinInt32 {
		return Fixed(math.MinInt32)
	}
	return Fixed(v)
}

func (f Fixed) String() string {
	return fmt.Sprintf("%g", f.Double())
}

// padding returns the number of bytes needed to pad length up to a
// 32-bit boundary.
func padding(length uint32) uint32 {
	return (4 - (length & 3)) & 3
}
