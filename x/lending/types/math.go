package types

import (
	"cosmossdk.io/math"
)

// Checked fixed-point helpers. LegacyDec panics when an intermediate value
// exceeds its 256-bit width; every amount-bearing code path goes through these
// so an overflow surfaces as ErrArithmeticOverflow instead of a panic or a
// silently wrapped value.

// SafeMul multiplies two decimals, failing closed on overflow.
func SafeMul(a, b math.LegacyDec) (res math.LegacyDec, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = math.LegacyDec{}
			err = ErrArithmeticOverflow
		}
	}()
	return a.Mul(b), nil
}

// SafeQuo divides a by b, failing closed on overflow or a zero divisor.
func SafeQuo(a, b math.LegacyDec) (res math.LegacyDec, err error) {
	if b.IsZero() {
		return math.LegacyDec{}, ErrArithmeticOverflow
	}
	defer func() {
		if r := recover(); r != nil {
			res = math.LegacyDec{}
			err = ErrArithmeticOverflow
		}
	}()
	return a.Quo(b), nil
}

// SafeAdd adds two decimals, failing closed on overflow.
func SafeAdd(a, b math.LegacyDec) (res math.LegacyDec, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = math.LegacyDec{}
			err = ErrArithmeticOverflow
		}
	}()
	return a.Add(b), nil
}
