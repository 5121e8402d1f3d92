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

// Package quadtable implements the single-probe-sequence SwissTable variant:
// a single-allocation control-tag array plus slot array, probed Group.Width
// tags at a time. Each key's stride is a fixed odd number of Groups, so on a
// power-of-two table size every group is visited exactly once before the
// probe sequence repeats. The stride does not grow between steps: the probe
// sequence is double hashing over groups, not a triangular sequence.
//
// Grounded on original_source/src/aligned_double_hashing_table.rs (not a
// cuckoo variant): its ProbeSeq{pos, stride} type is carried over.
package quadtable

import (
	"hashlab"
	"hashlab/control"
	"hashlab/internal/pow2"
	"hashlab/internal/rawtable"
	"hashlab/mixer"
)

type entry[V any] struct {
	key   uint64
	value V
}

// Table is a fixed-capacity open-addressing hash table mapping u64 keys to
// values of type V. The zero Table is not usable; construct with New.
type Table[V any] struct {
	storage     *rawtable.Storage[entry[V]]
	bucketMask  int
	alignedMask int
	seed        uint64
	items       int

	// TotalProbeLength accumulates one unit per Group probed across every
	// Get/Insert call (Delete does not count).
	TotalProbeLength int
}

// New returns a Table sized to hold at least capacity items at the engine's
// standard load factor, seeded with seed (mixed into every hash via
// mixer.Mix, so seed need not itself be well-distributed).
func New[V any](capacity int, seed uint64) *Table[V] {
	nbucket := pow2.NumBuckets(capacity, control.Width)
	return &Table[V]{
		storage:     rawtable.New[entry[V]](nbucket, false),
		bucketMask:  nbucket - 1,
		alignedMask: nbucket - control.Width,
		seed:        seed,
	}
}

// Len returns the number of items currently stored.
func (t *Table[V]) Len() int {
	return t.items
}

type probeSeq struct {
	pos    int
	stride int
}

func (t *Table[V]) newProbeSeq(hash uint64) probeSeq {
	return probeSeq{
		pos:    int(hash) & t.alignedMask,
		stride: (int(mixer.RotateHigh(hash)) & t.alignedMask) | control.Width,
	}
}

func (p *probeSeq) moveNext(bucketMask int) {
	hashlab.Assert(p.stride <= bucketMask, "quadtable: probe sequence ran past end of table")
	p.pos += p.stride
	p.pos &= bucketMask
}

func (t *Table[V]) slot(i int) *entry[V] {
	return t.storage.Slot(i)
}

// Get looks up key, returning its value and true if present.
func (t *Table[V]) Get(key uint64) (V, bool) {
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	seq := t.newProbeSeq(hash)
	for {
		group := control.LoadAligned(t.storage.Tag0AtOffset(seq.pos))
		t.TotalProbeLength++

		for mask, lane, ok := group.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
			index := (seq.pos + lane) & t.bucketMask
			e := t.slot(index)
			if e.key == key {
				return e.value, true
			}
		}

		if group.MatchEmpty().AnyBitSet() {
			var zero V
			return zero, false
		}
		seq.moveNext(t.bucketMask)
	}
}

// Insert adds or updates key's value, returning true if a new slot was
// claimed (false if an existing entry for key was updated in place).
func (t *Table[V]) Insert(key uint64, value V) bool {
	inserted, _ := t.insert(key, value)
	return inserted
}

func (t *Table[V]) insert(key uint64, value V) (inserted bool, index int) {
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	seq := t.newProbeSeq(hash)
	insertSlot := -1

	for {
		group := control.LoadAligned(t.storage.Tag0AtOffset(seq.pos))
		t.TotalProbeLength++

		for mask, lane, ok := group.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
			idx := (seq.pos + lane) & t.bucketMask
			e := t.slot(idx)
			if e.key == key {
				e.value = value
				return false, idx
			}
		}

		if insertSlot < 0 {
			if lane, ok := group.MatchEmptyOrDeleted().LowestSetBit(); ok {
				insertSlot = seq.pos + lane
			}
		}

		if insertSlot >= 0 && group.MatchEmpty().AnyBitSet() {
			idx := insertSlot & t.bucketMask
			tags := t.storage.Tags()
			tags[idx] = tag
			e := t.slot(idx)
			e.key = key
			e.value = value
			t.items++
			return true, idx
		}

		seq.moveNext(t.bucketMask)
	}
}

// InsertAndErase inserts key/value, then immediately reverts the slot to
// EMPTY if the insert claimed a new slot, matching the aligned_double_
// hashing_table.rs insert_and_erase helper used by the benchmark harness to
// measure insert cost without growing the table.
func (t *Table[V]) InsertAndErase(key uint64, value V) {
	inserted, index := t.insert(key, value)
	if inserted {
		t.storage.Tags()[index] = control.Empty
		t.items--
	}
}

// Delete removes key, returning true if it was present.
func (t *Table[V]) Delete(key uint64) bool {
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	seq := t.newProbeSeq(hash)
	for {
		group := control.LoadAligned(t.storage.Tag0AtOffset(seq.pos))

		for mask, lane, ok := group.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
			idx := (seq.pos + lane) & t.bucketMask
			e := t.slot(idx)
			if e.key == key {
				t.eraseIndex(idx)
				return true
			}
		}

		if group.MatchEmpty().AnyBitSet() {
			return false
		}
		seq.moveNext(t.bucketMask)
	}
}

// eraseIndex reverts the tag at index to DELETED, unless both the window
// before and the window starting at index are not entirely full, in which
// case it can safely revert straight to EMPTY instead (this is what lets
// later probes stop early on a true EMPTY rather than scanning tombstones
// forever).
func (t *Table[V]) eraseIndex(index int) {
	// index is an arbitrary matched lane, not necessarily Group-aligned, so
	// these two loads use the unaligned Load rather than LoadAligned.
	indexBefore := (index - control.Width) & t.bucketMask
	emptyBefore := control.Load(t.storage.Tag0AtOffset(indexBefore)).MatchEmpty()
	emptyAfter := control.Load(t.storage.Tag0AtOffset(index)).MatchEmpty()

	tag := control.Empty
	if emptyBefore.LeadingZeros()+emptyAfter.TrailingZeros() >= control.Width {
		tag = control.Deleted
	}
	t.storage.Tags()[index] = tag
	t.items--
}
