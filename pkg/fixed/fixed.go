// Package fixed implements a deterministic Q31.32 fixed-point number used for
// simulation state that must evaluate identically on every peer.
package fixed

import (
	"math"
	"math/bits"
	"strconv"
)

const (
	// FractionBits is the number of bits below the binary point.
	FractionBits = 32

	one = int64(1) << FractionBits
)

// Fixed is a signed Q31.32 value stored in its raw int64 form.
type Fixed int64

var (
	Zero = Fixed(0)
	One  = Fixed(one)
	Max  = Fixed(math.MaxInt64)
	Min  = Fixed(math.MinInt64)
)

// FromInt converts an integer. Values outside the int32 range overflow.
func FromInt(v int) Fixed { return Fixed(int64(v) << FractionBits) }

// FromFloat converts a float64, rounding to the nearest representable value.
func FromFloat(v float64) Fixed { return Fixed(math.Round(v * float64(one))) }

// FromRaw wraps a raw Q31.32 value, as read off the wire.
func FromRaw(raw int64) Fixed { return Fixed(raw) }

func (f Fixed) Raw() int64 { return int64(f) }

func (f Fixed) Float64() float64 { return float64(f) / float64(one) }

// Int truncates toward negative infinity.
func (f Fixed) Int() int { return int(int64(f) >> FractionBits) }

func (f Fixed) Add(o Fixed) Fixed { return f + o }

func (f Fixed) Sub(o Fixed) Fixed { return f - o }

func (f Fixed) Neg() Fixed { return -f }

func (f Fixed) Abs() Fixed {
	if f < 0 {
		return -f
	}
	return f
}

// Mul multiplies using a 128-bit intermediate so no precision is lost before
// the final shift. Results outside the representable range saturate to Max
// or Min.
func (f Fixed) Mul(o Fixed) Fixed {
	neg := (f < 0) != (o < 0)
	hi, lo := bits.Mul64(uint64(f.Abs()), uint64(o.Abs()))
	if hi>>(FractionBits-1) != 0 {
		return saturate(neg)
	}
	r := int64(hi<<(64-FractionBits) | lo>>FractionBits)
	if neg {
		return Fixed(-r)
	}
	return Fixed(r)
}

// Div divides f by o. Division by zero and results outside the representable
// range saturate to Max or Min.
func (f Fixed) Div(o Fixed) Fixed {
	if o == 0 {
		return saturate(f < 0)
	}
	neg := (f < 0) != (o < 0)
	a := uint64(f.Abs())
	hi, lo := a>>(64-FractionBits), a<<FractionBits
	d := uint64(o.Abs())
	if hi >= d {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, d)
	if q > math.MaxInt64 {
		// -2^63 is exactly Min.
		return saturate(neg)
	}
	if neg {
		return Fixed(-int64(q))
	}
	return Fixed(int64(q))
}

func saturate(neg bool) Fixed {
	if neg {
		return Min
	}
	return Max
}

func (f Fixed) String() string {
	return strconv.FormatFloat(f.Float64(), 'f', -1, 64)
}
