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

// Package control implements the SwissTable-derived control plane shared by
// every table variant: the one-byte Tag encoding and the Group/BitMask
// abstraction used to probe W tags in parallel.
//
// Grounded on hashbrown's control-byte scheme as carried by
// original_source/src/control64.rs and control/group/{mod,avx2}.rs, and on
// the byte-wide control metadata used by the swisstable sketches under
// _examples/other_examples (cffe0bef_Saiprakashreddy14-swiss and
// 6bb5e2d2_yaninyzwitty-hyperpb-go).
package control

// Tag is one control byte: EMPTY, DELETED, or FULL with a 7-bit fingerprint.
type Tag uint8

const (
	// Empty marks a slot that has never held a value: 0xFF, high bit set,
	// low 7 bits all set.
	Empty Tag = 0b1111_1111
	// Deleted marks a tombstone left by an erase that could not safely
	// revert to Empty: 0x80, high bit set, low 7 bits clear.
	Deleted Tag = 0b1000_0000
)

// FullTag extracts the fingerprint of hash (its top 7 bits) and returns the
// corresponding FULL tag. A right-shift by 57 always leaves a 7-bit result,
// so the high bit is never set without needing an explicit mask.
func FullTag(hash uint64) Tag {
	return Tag(hash >> 57)
}

// IsFull reports whether t carries a live fingerprint (high bit clear).
func (t Tag) IsFull() bool {
	return t&0x80 == 0
}

// IsEmpty reports whether t is the Empty sentinel.
func (t Tag) IsEmpty() bool {
	return t == Empty
}

// IsEmptyOrDeleted reports whether t's high bit is set, i.e. it is not a
// live fingerprint.
func (t Tag) IsEmptyOrDeleted() bool {
	return t&0x80 != 0
}

// FillEmpty resets every tag in tags to Empty, used to initialise a freshly
// allocated control array (and its mirror, for the unaligned variant).
func FillEmpty(tags []Tag) {
	for i := range tags {
		tags[i] = Empty
	}
}
