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

// Package localized implements the "localized SIMD" cuckoo table described
// in spec §4.7: one bucket record fusing a 7-key array, an 8-tag control
// lane (7 fingerprints plus one fixed DELETED sentinel, padding the lane out
// to Group.Width), and 7 values, so that the tag match and (once a candidate
// key is known) the key compare read one contiguous record. For an 8-byte V
// the record is 120 bytes; the Go struct carries no cache-line alignment.
//
// Grounded directly on original_source/src/localized_simd_cuckoo_table.rs:
// its Bucket{keys, fprints, values} layout, the scramble_tag second-position
// derivation, and its BFS displacement search (N=BUCKET_SIZE=7) are carried
// over with the same index arithmetic. scramble_tag is mixer.Scramble.
package localized

import (
	"hashlab"
	"hashlab/control"
	"hashlab/internal/pow2"
	"hashlab/mixer"
)

const variant = "cuckoo/localized"

// BucketSize is the number of live key/value lanes per bucket; the control
// lane carries one additional fixed-DELETED padding tag so Group.Width ==
// BucketSize+1, matching the original's static assertion.
const BucketSize = control.Width - 1

const (
	n         = BucketSize
	bfsMaxLen = 2 * (1 + n + n*n + n*n*n)
)

type bucket[V any] struct {
	keys    [BucketSize]uint64
	fprints [control.Width]control.Tag
	values  [BucketSize]V
}

func newBucket[V any]() bucket[V] {
	var b bucket[V]
	for i := range b.fprints {
		b.fprints[i] = control.Empty
	}
	b.fprints[BucketSize] = control.Deleted
	return b
}

// Table is a localized-SIMD-style cuckoo hash table mapping u64 keys to
// values of type V. The zero Table is not usable; construct with New.
type Table[V any] struct {
	buckets    []bucket[V]
	bucketMask int
	seed       uint64
	items      int

	TotalProbeLength int
}

// New returns a Table sized to hold at least capacity items at the engine's
// standard load factor, rounded up so each bucket holds BucketSize keys.
func New[V any](capacity int, seed uint64) *Table[V] {
	nbucket := pow2.NumBuckets(capacity, 1)
	nbucket = (nbucket + BucketSize - 1) / BucketSize
	n := pow2.NextPow2(uint64(nbucket))
	buckets := make([]bucket[V], n)
	for i := range buckets {
		buckets[i] = newBucket[V]()
	}
	return &Table[V]{
		buckets:    buckets,
		bucketMask: int(n) - 1,
		seed:       seed,
	}
}

// Len returns the number of items currently stored.
func (t *Table[V]) Len() int {
	return t.items
}

func (t *Table[V]) group(pos int) control.Group {
	return control.LoadAligned(&t.buckets[pos].fprints[0])
}

func secondPos(pos int, tag control.Tag, bucketMask int) int {
	return pos ^ (int(mixer.Scramble(tag)) & bucketMask)
}

// Get looks up key, returning its value and true if present.
func (t *Table[V]) Get(key uint64) (V, bool) {
	var zero V
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	for i := 0; i < 2; i++ {
		pos := int(hash) & t.bucketMask
		b := &t.buckets[pos]
		group := t.group(pos)
		for mask, lane, ok := group.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
			if b.keys[lane] == key {
				return b.values[lane], true
			}
		}
		hash ^= mixer.Scramble(tag)
	}
	return zero, false
}

// Insert adds or updates key's value, returning true if a new slot was
// claimed.
func (t *Table[V]) Insert(key uint64, value V) bool {
	inserted, _, _ := t.insert(key, value)
	return inserted
}

func (t *Table[V]) insert(key uint64, value V) (inserted bool, bucketIndex, bucketOffset int) {
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	pos0 := int(hash) & t.bucketMask
	group0 := t.group(pos0)
	for mask, lane, ok := group0.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
		if t.buckets[pos0].keys[lane] == key {
			t.buckets[pos0].values[lane] = value
			return false, pos0, lane
		}
	}

	pos1 := int(hash^mixer.Scramble(tag)) & t.bucketMask
	group1 := t.group(pos1)
	for mask, lane, ok := group1.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
		if t.buckets[pos1].keys[lane] == key {
			t.buckets[pos1].values[lane] = value
			return false, pos1, lane
		}
	}

	t.items++
	bucketIndex, bucketOffset = t.bfsDisplace(pos0, pos1, group0, group1)
	b := &t.buckets[bucketIndex]
	b.fprints[bucketOffset] = tag
	b.keys[bucketOffset] = key
	b.values[bucketOffset] = value
	return true, bucketIndex, bucketOffset
}

// bfsDisplace mirrors localized_simd_cuckoo_table.rs's BFS search: it looks
// for an EMPTY lane reachable from the two root buckets, deriving each
// occupant's alternate bucket from its tag alone via mixer.Scramble (no key
// re-read needed), then replays the displacement chain backward.
func (t *Table[V]) bfsDisplace(pos0, pos1 int, group0, group1 control.Group) (bucketIndex, bucketOffset int) {
	queue := make([]int, bfsMaxLen)
	queue[0] = pos0
	queue[1] = pos1

	readPos := 0
	var pathIndex int
	for {
		if lane, ok := group0.MatchEmpty().LowestSetBit(); ok {
			pathIndex = readPos
			bucketIndex = pos0
			bucketOffset = lane
			break
		}
		if lane, ok := group1.MatchEmpty().LowestSetBit(); ok {
			pathIndex = readPos + 1
			bucketIndex = pos1
			bucketOffset = lane
			break
		}

		writePos := readPos*n + 2
		if writePos < bfsMaxLen {
			for i := 0; i < n; i++ {
				tag0 := t.buckets[pos0].fprints[i]
				tag1 := t.buckets[pos1].fprints[i]
				queue[writePos+i] = secondPos(pos0, tag0, t.bucketMask)
				queue[writePos+i+n] = secondPos(pos1, tag1, t.bucketMask)
			}
		}

		readPos += 2
		if readPos+2 > bfsMaxLen {
			hashlab.PanicRehashNeeded(variant, "BFS displacement search exhausted its queue")
		}
		pos0 = queue[readPos+0]
		pos1 = queue[readPos+1]
		group0 = t.group(pos0)
		group1 = t.group(pos1)
	}

	for pathIndex >= 2 {
		parentPathIndex := (pathIndex - 2) / n
		parentBucketOffset := (pathIndex - 2) % n
		parentBucketIndex := queue[parentPathIndex]

		parent := &t.buckets[parentBucketIndex]
		child := &t.buckets[bucketIndex]
		child.fprints[bucketOffset] = parent.fprints[parentBucketOffset]
		child.keys[bucketOffset] = parent.keys[parentBucketOffset]
		child.values[bucketOffset] = parent.values[parentBucketOffset]

		bucketIndex = parentBucketIndex
		bucketOffset = parentBucketOffset
		pathIndex = parentPathIndex
	}

	return bucketIndex, bucketOffset
}

// InsertAndErase inserts key/value, then immediately reverts the slot to
// EMPTY if the insert claimed a new slot, matching
// localized_simd_cuckoo_table.rs's insert_and_erase.
func (t *Table[V]) InsertAndErase(key uint64, value V) {
	inserted, bucketIndex, bucketOffset := t.insert(key, value)
	if inserted {
		var zero V
		b := &t.buckets[bucketIndex]
		b.fprints[bucketOffset] = control.Empty
		b.keys[bucketOffset] = 0
		b.values[bucketOffset] = zero
		t.items--
	}
}

// Delete removes key, returning true if it was present.
func (t *Table[V]) Delete(key uint64) bool {
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	for i := 0; i < 2; i++ {
		pos := int(hash) & t.bucketMask
		b := &t.buckets[pos]
		group := t.group(pos)
		for mask, lane, ok := group.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
			if b.keys[lane] == key {
				b.fprints[lane] = control.Deleted
				var zero V
				b.keys[lane] = 0
				b.values[lane] = zero
				t.items--
				return true
			}
		}
		hash ^= mixer.Scramble(tag)
	}
	return false
}
