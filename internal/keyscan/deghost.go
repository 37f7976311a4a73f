package keyscan

import "github.com/chaz8081/blekbd/internal/keymap"

// isGhost reports whether a settled press at (r, c) may be a phantom of the
// other active keys. status is the reported matrix state; the candidate bit
// may or may not be set in it.
//
// The press is ambiguous when two other active corners of a rectangle through
// (r, c) are known and the remaining corner is a real key on the primary
// layer. The check runs in two passes, row-first then column-first; the
// row-first pass covers both rectangles anchored on the candidate's row, the
// column-first pass only the one anchored on its column.
func isGhost(status []uint32, layout *keymap.Layout, r, c int) bool {
	bit := uint32(1) << uint(c)

	// Row-first: other active inputs on the candidate's output.
	for c2 := range setBits(status[r] &^ bit) {
		bit2 := uint32(1) << uint(c2)
		for r2 := range status {
			if r2 == r {
				continue
			}
			if status[r2]&bit2 != 0 && layout.IsKey(r2, c) {
				return true
			}
			if status[r2]&bit != 0 && layout.IsKey(r2, c2) {
				return true
			}
		}
	}

	// Column-first: other active outputs on the candidate's input.
	for r2 := range status {
		if r2 == r || status[r2]&bit == 0 {
			continue
		}
		for c2 := range setBits(status[r2] &^ bit) {
			if layout.IsKey(r, c2) {
				return true
			}
		}
	}
	return false
}
