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

// Package mixer implements the engine's single 64-bit hash mixer and the two
// strategies table variants use to derive a second candidate position from
// it, per spec §4.2.
//
// Grounded on original_source/src/u64_fold_hash_fast.rs (the `fold_hash_fast`
// function) and the `scramble_tag` helper in
// original_source/src/localized_simd_cuckoo_table.rs.
package mixer

import (
	"math/bits"

	"hashlab/control"
)

// fold is the odd 64-bit multiplier used both to mix key and seed into a
// hash, and (reused, matching the original source) as the scramble
// constant MUL.
const fold uint64 = 0x2d358dccaa6c78a5

// Mix folds key and seed into a single 64-bit hash: one 64×64→128 multiply
// followed by an XOR of the two halves. This diffuses every input bit across
// the full 64-bit output, satisfying spec §4.2's avalanche requirement.
func Mix(key, seed uint64) uint64 {
	key ^= seed
	hi, lo := bits.Mul64(key, fold)
	return hi ^ lo
}

// RotateHigh derives strategy (a)'s second candidate hash from h: the high
// and low halves of a single mix, recombined via a 32-bit rotation. Used by
// the aligned and unaligned cuckoo tables' root two probes, and by the
// quadratic-probing table's stride.
func RotateHigh(h uint64) uint64 {
	return bits.RotateLeft64(h, 32)
}

// Scramble derives strategy (b)'s position delta from a tag alone, with no
// need to re-read the key: `(tag * MUL) rotate_left 32`. Only cuckoo/localized
// uses it, for its second bucket and to recover an occupant's alternative
// bucket during BFS while scanning tags only. The aligned and unaligned
// tables' BFS re-hashes each occupant's key with Mix, and cuckoo/direct
// derives its second bucket from RotateHigh of the key's hash.
func Scramble(t control.Tag) uint64 {
	return bits.RotateLeft64(uint64(t)*fold, 32)
}
