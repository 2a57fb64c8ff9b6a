// Package cxdemand contains the [Demand] type,
// the unit of backpressure accounting between a subscriber and its publisher.
//
// A Demand is either a finite, non-negative count or [Unlimited].
// All arithmetic saturates: sums that would overflow become Unlimited,
// and differences that would go negative become [None].
// The only operations that panic are constructing a negative demand
// and multiplying by a negative factor.
package cxdemand

import (
	"math"
	"math/bits"
	"strconv"
)

// unlimitedRaw is one past the largest finite demand.
// Every finite raw value is strictly less than it.
const unlimitedRaw = uint64(math.MaxInt64) + 1

// Demand is the number of additional values a subscriber is willing to receive.
//
// The zero value is [None].
// Demand is comparable with ==, and Unlimited only equals Unlimited.
type Demand struct {
	raw uint64
}

var (
	// None is a demand of zero.
	None = Demand{}

	// Unlimited is the demand that absorbs all additions.
	Unlimited = Demand{raw: unlimitedRaw}
)

// NegativeDemandError is the panic value when a Demand
// would be constructed from, or multiplied by, a negative integer.
type NegativeDemandError struct {
	Op string
	N  int
}

func (e NegativeDemandError) Error() string {
	return "cxdemand: " + e.Op + " with negative value " + strconv.Itoa(e.N)
}

// Max returns a finite demand of n.
// Max panics with [NegativeDemandError] if n is negative.
func Max(n int) Demand {
	if n < 0 {
		panic(NegativeDemandError{Op: "Max", N: n})
	}
	return Demand{raw: uint64(n)}
}

// IsUnlimited reports whether d is [Unlimited].
func (d Demand) IsUnlimited() bool {
	return d.raw == unlimitedRaw
}

// IsZero reports whether d is [None].
func (d Demand) IsZero() bool {
	return d.raw == 0
}

// Positive reports whether d allows at least one more value.
func (d Demand) Positive() bool {
	return d.raw > 0
}

// Max returns the finite bound of d.
// The boolean result is false when d is Unlimited,
// in which case the integer result is meaningless.
func (d Demand) Max() (int, bool) {
	if d.IsUnlimited() {
		return 0, false
	}
	return int(d.raw), true
}

// Add returns d + o, saturating at Unlimited.
func (d Demand) Add(o Demand) Demand {
	if d.IsUnlimited() || o.IsUnlimited() {
		return Unlimited
	}

	// Both operands are below 2^63, so the sum fits in 64 bits.
	sum := d.raw + o.raw
	if sum >= unlimitedRaw {
		return Unlimited
	}
	return Demand{raw: sum}
}

// AddInt is shorthand for d.Add(Max(n)).
func (d Demand) AddInt(n int) Demand {
	return d.Add(Max(n))
}

// Sub returns d - o, clamped at None.
//
// Unlimited minus anything finite is still Unlimited,
// and anything finite minus Unlimited is None.
// Unlimited minus Unlimited is None.
func (d Demand) Sub(o Demand) Demand {
	if o.IsUnlimited() {
		return None
	}
	if d.IsUnlimited() {
		return Unlimited
	}
	if o.raw >= d.raw {
		return None
	}
	return Demand{raw: d.raw - o.raw}
}

// SubInt is shorthand for d.Sub(Max(n)).
func (d Demand) SubInt(n int) Demand {
	return d.Sub(Max(n))
}

// Mul returns d * n, saturating at Unlimited.
// Unlimited times any factor, including zero, stays Unlimited.
//
// Mul panics with [NegativeDemandError] if n is negative.
func (d Demand) Mul(n int) Demand {
	if n < 0 {
		panic(NegativeDemandError{Op: "Mul", N: n})
	}
	if d.IsUnlimited() {
		return Unlimited
	}

	hi, lo := bits.Mul64(d.raw, uint64(n))
	if hi != 0 || lo >= unlimitedRaw {
		return Unlimited
	}
	return Demand{raw: lo}
}

// Cmp compares d and o, returning -1, 0, or +1.
// Unlimited is greater than every finite demand.
func (d Demand) Cmp(o Demand) int {
	switch {
	case d.raw < o.raw:
		return -1
	case d.raw > o.raw:
		return 1
	default:
		return 0
	}
}

// Less reports whether d < o.
func (d Demand) Less(o Demand) bool {
	return d.raw < o.raw
}

// CmpInt compares d against the finite demand n.
// A negative n compares less than every demand.
func (d Demand) CmpInt(n int) int {
	if n < 0 {
		return 1
	}
	return d.Cmp(Demand{raw: uint64(n)})
}

func (d Demand) String() string {
	if d.IsUnlimited() {
		return "unlimited"
	}
	return "max(" + strconv.FormatUint(d.raw, 10) + ")"
}
