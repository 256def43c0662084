package memutils

import (
	"math/bits"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// Number is any integer type the power-of-two helpers accept
type Number interface {
	constraints.Integer
}

// CheckPow2 returns an error wrapping ErrPowerOfTwo if number is not a positive power of two.
// name is used to identify the offending value in the error message.
func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return errors.Wrapf(ErrPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// NextPow2 rounds value up to the nearest power of two that is at least floor. floor must
// itself be a power of two.
func NextPow2(value, floor int) int {
	if value <= floor {
		return floor
	}
	return 1 << bits.Len(uint(value-1))
}

// Log2 returns the exponent of a power of two
func Log2(value int) int {
	return bits.TrailingZeros(uint(value))
}
