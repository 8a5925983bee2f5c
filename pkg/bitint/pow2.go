// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers used to validate and round
// callback block sizes. Everything here is allocation free.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, or 1 for
// non-positive sizes. Subtracting one first keeps exact powers unchanged.
//
//	NextPowerOfTwo(1000) == 1024
//	NextPowerOfTwo(1024) == 1024
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has a single bit set, so clearing the lowest set bit leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns the exponent of a power of two, or -1 when n is not one.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
