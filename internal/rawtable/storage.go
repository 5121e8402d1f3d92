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

// Package rawtable implements the single-allocation memory layout shared by
// the scalar table variants: one buffer holding the slot array (growing
// backward from a pivot) directly adjacent to the control-tag array (growing
// forward from the same pivot), with the slot array addressed by negative
// offset from the tag array's base pointer.
//
// Grounded on the byteToBucketSlice/allocBuckets pair in
// legacy/slice.go (originally _examples/salviati-cuckoo/slice.go), modernized
// to use unsafe.Slice/unsafe.Add instead of reflect.SliceHeader, and on the
// two allocation shapes in original_source/src/aligned_cuckoo_table.rs
// (tags sized exactly num_buckets, since its probe positions are always
// Group-aligned and a load never runs past the end) and
// original_source/src/unaligned_cuckoo_table.rs (tags sized
// num_buckets+Group::WIDTH, since its probe positions are arbitrary and a
// load can run off the end; the extra Group::WIDTH bytes mirror the first
// Group::WIDTH tags via the dual write in its set_ctrl).
package rawtable

import (
	"unsafe"

	"hashlab"
	"hashlab/control"
)

// Storage is the single-allocation backing store for one table: bucket
// slots, immediately followed by a control-tag array.
//
// The zero Storage is not usable; construct with New.
type Storage[V any] struct {
	buf     []byte
	nbucket int
	tagLen  int
	tag0    unsafe.Pointer
}

// New allocates storage for nbucket slots of type V plus a control-tag
// array. When spill is true the tag array carries control.Width extra
// trailing bytes so that a Group load starting at an arbitrary (not
// necessarily Group-aligned) position never reads past the allocation;
// callers that need those trailing bytes to mirror the first control.Width
// tags must write through SetTagMirrored rather than indexing Tags()
// directly.
//
// nbucket must already be a power of two; New does not validate this, since
// every caller derives it from internal/pow2.
func New[V any](nbucket int, spill bool) *Storage[V] {
	var zeroV V
	slotSize := int(unsafe.Sizeof(zeroV))
	slotAlign := int(unsafe.Alignof(zeroV))

	tagLen := nbucket
	if spill {
		tagLen += control.Width
	}

	// Over-allocate by slotAlign so the pivot (the boundary between the
	// slot region and the tag region) can be rounded up to a slot-size
	// alignment regardless of where the runtime places buf's backing
	// array.
	total := nbucket*slotSize + tagLen + slotAlign
	buf := make([]byte, total)

	base := uintptr(unsafe.Pointer(&buf[0]))
	pivot := (base + uintptr(nbucket*slotSize) + uintptr(slotAlign-1)) &^ uintptr(slotAlign-1)
	tag0 := unsafe.Pointer(pivot)

	hashlab.Assert(pivot+uintptr(tagLen) <= base+uintptr(total), "rawtable: layout overruns allocation")
	hashlab.Assert(pivot-uintptr(nbucket*slotSize) >= base, "rawtable: layout underruns allocation")

	s := &Storage[V]{buf: buf, nbucket: nbucket, tagLen: tagLen, tag0: tag0}
	control.FillEmpty(s.TagsWithSpill())
	return s
}

// NumBuckets returns the bucket count this Storage was built for.
func (s *Storage[V]) NumBuckets() int {
	return s.nbucket
}

// Slot returns a pointer to slot i, addressed backward from the tag array's
// base pointer: slot i lives at tag0 - (i+1)*sizeof(V).
func (s *Storage[V]) Slot(i int) *V {
	var zeroV V
	off := uintptr(i+1) * unsafe.Sizeof(zeroV)
	return (*V)(unsafe.Add(s.tag0, -int(off)))
}

// Tags returns the first NumBuckets tags.
func (s *Storage[V]) Tags() []control.Tag {
	return unsafe.Slice((*control.Tag)(s.tag0), s.nbucket)
}

// TagsWithSpill returns the full tag array, including any trailing spill
// bytes requested at construction.
func (s *Storage[V]) TagsWithSpill() []control.Tag {
	return unsafe.Slice((*control.Tag)(s.tag0), s.tagLen)
}

// Tag0AtOffset returns a pointer to the tag at index i, for callers loading
// a Group starting mid-array (i may range up to tagLen-control.Width).
func (s *Storage[V]) Tag0AtOffset(i int) *control.Tag {
	return (*control.Tag)(unsafe.Add(s.tag0, i))
}

// SetTagMirrored writes tag at index and, if index falls in the first
// control.Width positions, additionally writes it to the mirrored spill
// slot at nbucket+index. This is the unaligned cuckoo table's dual write:
// since probe positions are not Group-aligned, a load can start anywhere in
// [0, nbucket) and run up to control.Width-1 bytes past index nbucket-1;
// mirroring only the first control.Width tags into the spill region is
// sufficient to make every such load see the correct values at the wrapped
// positions, without maintaining a full second copy of the array.
func (s *Storage[V]) SetTagMirrored(index int, tag control.Tag) {
	tags := s.TagsWithSpill()
	tags[index] = tag
	if index < control.Width {
		tags[s.nbucket+index] = tag
	}
}
