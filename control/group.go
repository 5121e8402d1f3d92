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

package control

import (
	"encoding/binary"
	"math/bits"
	"unsafe"

	"hashlab"
)

// Width is the number of tags a Group probes in parallel. The reference
// design picks W=32 under AVX2 and W=16 under SSE2; this module carries only
// the portable 8-byte back-end described in spec §9 ("Provide at least a
// portable fallback"), since a real SIMD back-end needs per-arch assembly
// that nothing in the example corpus supplies for this exact tag-matching
// shape (the corpus's own SIMD assembly, e.g. sha256-simd or the wazero
// vector backend, targets unrelated instruction sequences). See DESIGN.md
// for the full justification.
const Width = 8

const (
	lsbMask uint64 = 0x0101010101010101
	msbMask uint64 = 0x8080808080808080
)

// Group is a SIMD-friendly window of Width contiguous tags, held as a
// little-endian packed uint64 so that equality and emptiness tests reduce to
// the classic SWAR "find zero byte" trick instead of a per-byte loop.
type Group struct {
	bits uint64
}

// Load reads Width consecutive tags starting at p. Unaligned loads are
// permitted, matching spec §4.1.
func Load(p *Tag) Group {
	b := (*[Width]byte)(unsafe.Pointer(p))
	return Group{bits: binary.LittleEndian.Uint64(b[:])}
}

// LoadAligned is like Load but asserts, in debug builds, that p is aligned
// to Width bytes.
func LoadAligned(p *Tag) Group {
	hashlab.Assert(uintptr(unsafe.Pointer(p))%Width == 0, "unaligned group load at %p", p)
	return Load(p)
}

func repeat(t Tag) uint64 {
	return uint64(t) * lsbMask
}

// MatchTag returns a BitMask of every lane whose tag equals t.
func (g Group) MatchTag(t Tag) BitMask {
	x := g.bits ^ repeat(t)
	return BitMask((x - lsbMask) &^ x & msbMask)
}

// MatchEmpty returns a BitMask of every EMPTY lane.
func (g Group) MatchEmpty() BitMask {
	return g.MatchTag(Empty)
}

// MatchEmptyOrDeleted returns a BitMask of every lane whose high bit is set
// (EMPTY or DELETED).
func (g Group) MatchEmptyOrDeleted() BitMask {
	return BitMask(g.bits & msbMask)
}

// MatchFull returns a BitMask of every FULL lane.
func (g Group) MatchFull() BitMask {
	return g.MatchEmptyOrDeleted().Invert()
}

// BitMask is a Width-bit set of matching lane indices. The portable back-end
// packs one bit per byte at the high-bit position (stride 8); callers must
// go through the accessor methods below rather than assume stride 1, per
// spec §4.1.
type BitMask uint64

// AnyBitSet reports whether any lane matched.
func (m BitMask) AnyBitSet() bool {
	return m != 0
}

// LowestSetBit returns the index of the lowest matching lane, if any.
func (m BitMask) LowestSetBit() (int, bool) {
	if m == 0 {
		return 0, false
	}
	return bits.TrailingZeros64(uint64(m)) / 8, true
}

// TrailingZeros returns the lane index of the lowest matching bit, or Width
// if no lane matched.
func (m BitMask) TrailingZeros() int {
	if m == 0 {
		return Width
	}
	return bits.TrailingZeros64(uint64(m)) / 8
}

// LeadingZeros returns the count of non-matching lanes from the high end, or
// Width if no lane matched.
func (m BitMask) LeadingZeros() int {
	if m == 0 {
		return Width
	}
	return bits.LeadingZeros64(uint64(m)) / 8
}

// Invert flips which lanes are considered "set", preserving the one-bit-
// per-byte encoding (used to turn match-empty-or-deleted into match-full).
func (m BitMask) Invert() BitMask {
	return BitMask(^uint64(m)) & BitMask(msbMask)
}

// Next pops the lowest matching lane off m, returning the remaining mask,
// the lane index, and whether a lane was present. Used to iterate every
// matching lane in a group:
//
//	for mask, lane, ok := group.MatchTag(t).Next(); ok; mask, lane, ok = mask.Next() { ... }
func (m BitMask) Next() (rest BitMask, lane int, ok bool) {
	if m == 0 {
		return 0, 0, false
	}
	lane = bits.TrailingZeros64(uint64(m)) / 8
	rest = m &^ (BitMask(0xFF) << uint(lane*8))
	return rest, lane, true
}
