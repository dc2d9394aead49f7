// Package calendar provides the Duration value object and BusinessCalendar
// time algebra used to place task intervals on the scheduling horizon.
package calendar

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Duration is a fixed-point (exact rational) quantity of minutes. Using
// decimal.Decimal instead of float64 keeps add/sub/mul/div exact, which
// matters because the solver repeatedly round-trips durations through
// efficiency adjustments and cost arithmetic (spec.md §8, duration
// arithmetic invariant).
type Duration struct {
	minutes decimal.Decimal
}

// Zero is the zero duration.
var Zero = Duration{minutes: decimal.Zero}

// NewMinutes constructs a Duration from a non-negative number of minutes.
// Negative construction is rejected; arithmetic may still produce a
// negative Duration (e.g. slack calculations), which callers must expect.
func NewMinutes(minutes float64) (Duration, error) {
	if minutes < 0 {
		return Duration{}, fmt.Errorf("duration: minutes must be non-negative, got %v", minutes)
	}
	return Duration{minutes: decimal.NewFromFloat(minutes)}, nil
}

// MustMinutes is like NewMinutes but panics on error. Use only for
// compile-time-known-safe constants.
func MustMinutes(minutes float64) Duration {
	d, err := NewMinutes(minutes)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt constructs a Duration from a non-negative integer number of minutes.
func FromInt(minutes int) (Duration, error) {
	return NewMinutes(float64(minutes))
}

// Add returns d + other. The result may be negative only if one operand was
// already negative (e.g. produced by Sub).
func (d Duration) Add(other Duration) Duration {
	return Duration{minutes: d.minutes.Add(other.minutes)}
}

// Sub returns d - other. The result may be negative.
func (d Duration) Sub(other Duration) Duration {
	return Duration{minutes: d.minutes.Sub(other.minutes)}
}

// Mul returns d * k.
func (d Duration) Mul(k float64) Duration {
	return Duration{minutes: d.minutes.Mul(decimal.NewFromFloat(k))}
}

// Div returns d / k. Panics if k is zero, matching decimal.Decimal's
// division-by-zero behavior.
func (d Duration) Div(k float64) Duration {
	return Duration{minutes: d.minutes.Div(decimal.NewFromFloat(k))}
}

// Compare returns -1, 0, or 1 as d is less than, equal to, or greater than other.
func (d Duration) Compare(other Duration) int {
	return d.minutes.Cmp(other.minutes)
}

// LessThan reports whether d < other.
func (d Duration) LessThan(other Duration) bool { return d.Compare(other) < 0 }

// GreaterThan reports whether d > other.
func (d Duration) GreaterThan(other Duration) bool { return d.Compare(other) > 0 }

// IsNegative reports whether d < 0.
func (d Duration) IsNegative() bool { return d.minutes.IsNegative() }

// IsZero reports whether d == 0.
func (d Duration) IsZero() bool { return d.minutes.IsZero() }

// Minutes returns d as a float64 number of minutes.
func (d Duration) Minutes() float64 {
	f, _ := d.minutes.Float64()
	return f
}

// IntMinutes returns d rounded to the nearest integer minute. The CP model
// builder works in integer minutes relative to the horizon origin (spec.md
// §4.2); this is the bridge from the exact value object to that domain.
func (d Duration) IntMinutes() int64 {
	return d.minutes.Round(0).IntPart()
}

// String renders the duration as "<minutes>m".
func (d Duration) String() string {
	return fmt.Sprintf("%sm", d.minutes.StringFixed(2))
}

// Max returns the larger of a and b.
func Max(a, b Duration) Duration {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
