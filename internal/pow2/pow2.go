// Copyright (c) 2014 Utkan Güngördü <utkan@freeconsole.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package pow2 computes the power-of-two bucket counts every table variant
// needs at construction, per spec §3's "Number of buckets is always a power
// of two ≥ ceil(capacity · 8/7)".
//
// Grounded on the loadFactor helper in
// _examples/other_examples/6bb5e2d2_yaninyzwitty-hyperpb-go__internal-swiss-table.go.go,
// which computes the same 7/8 load factor target via bits.Len.
package pow2

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// NextPow2 returns the smallest power of two that is >= n. NextPow2(0) and
// NextPow2(1) both return 1. Generic over any unsigned integer type so
// callers working in uint64 (hash-derived sizes) and int (slice lengths)
// share one implementation.
func NextPow2[T constraints.Unsigned](n T) T {
	if n <= 1 {
		return 1
	}
	return T(1) << bits.Len64(uint64(n)-1)
}

// max2 picks the larger of two ordered values, standing in for the builtin
// min/max where a named constraint documents intent better than `~uint64`.
func max2[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// NumBuckets returns the number of buckets for a table meant to hold
// capacity items at a load factor of at most 7/8, rounded up to a power of
// two no smaller than width (the table's Group width, or batched bucket
// size), per spec §3's "Table size is a power of two ≥ W" invariant.
func NumBuckets(capacity, width int) int {
	if capacity < 0 {
		capacity = 0
	}
	need := (uint64(capacity)*8 + 6) / 7 // ceil(capacity * 8/7)
	n := NextPow2(need)
	return int(max2(n, uint64(width)))
}
