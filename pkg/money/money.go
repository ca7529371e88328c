// Package money implements fixed-point decimal amounts with 4
// fractional digits. Amounts are stored as integer minor units
// (1 unit = 0.0001) to avoid floating-point drift in compensation and
// penalty fields.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale is the fixed number of fractional digits.
const Scale = 4

const scaleFactor = 10000

// Amount is a fixed-point decimal with exactly 4 fractional digits,
// stored as an integer count of 0.0001 units.
type Amount struct {
	minorUnits int64
}

// Zero is the zero amount.
var Zero = Amount{}

// FromMinorUnits constructs an Amount directly from its integer
// representation (1 unit = 0.0001).
func FromMinorUnits(units int64) Amount {
	return Amount{minorUnits: units}
}

// Parse parses a plain (non-scientific) decimal string such as
// "10.0000" or "0.6" into an Amount, rounding to 4 fractional digits
// is never performed silently — extra digits are an error.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Scale {
		return Amount{}, fmt.Errorf("money: %q has more than %d fractional digits", s, Scale)
	}
	for len(frac) < Scale {
		frac += "0"
	}
	wholeN, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	fracN, err := strconv.ParseInt(frac, 10, 63)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	units := wholeN*scaleFactor + fracN
	if neg {
		units = -units
	}
	return Amount{minorUnits: units}, nil
}

// MustParse parses s and panics on error. Reserved for constants.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount in plain (non-scientific) decimal form.
func (a Amount) String() string {
	units := a.minorUnits
	neg := units < 0
	if neg {
		units = -units
	}
	whole := units / scaleFactor
	frac := units % scaleFactor
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%04d", sign, whole, frac)
}

// MinorUnits returns the integer 0.0001-unit representation.
func (a Amount) MinorUnits() int64 {
	return a.minorUnits
}

// IsPositive reports whether the amount is strictly greater than zero,
// the invariant ConsentContract.compensation must satisfy.
func (a Amount) IsPositive() bool {
	return a.minorUnits > 0
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{minorUnits: a.minorUnits + b.minorUnits}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{minorUnits: a.minorUnits - b.minorUnits}
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.minorUnits < b.minorUnits:
		return -1
	case a.minorUnits > b.minorUnits:
		return 1
	default:
		return 0
	}
}

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool {
	return a.Cmp(b) > 0
}
