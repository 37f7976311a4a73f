package keyscan

import (
	"iter"
	"math/bits"
)

// setBits yields the set bit positions of mask, most significant first, so
// that simultaneous changes in a row are always handled in the same order.
func setBits(mask uint32) iter.Seq[int] {
	return func(yield func(int) bool) {
		for mask != 0 {
			pos := bits.Len32(mask) - 1
			mask &^= 1 << uint(pos)
			if !yield(pos) {
				return
			}
		}
	}
}

// lineMask returns a mask with the low n bits set.
func lineMask(n int) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return (1 << uint(n)) - 1
}
