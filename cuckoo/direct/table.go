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

// Package direct implements the "direct SIMD" cuckoo table described in
// spec §4.6: buckets of 4 raw u64 keys with no separate control-byte array,
// probed as a unit. The key itself doubles as its own tag, so group probing
// becomes a 4-way key comparison instead of a fingerprint match; key 0 is
// reserved as the empty sentinel and handled through a side channel.
//
// Grounded directly on original_source/src/direct_simd_cuckoo_table.rs: its
// Bucket{keys, values} layout, BFS displacement search (N=BUCKET_SIZE=4),
// and zero_value side channel are carried over. The SIMD lane search
// (control64::search, an AVX2/NEON compare-and-movemask) is replaced by a
// plain 4-wide scan, since Go has no portable SIMD intrinsic for it; see
// DESIGN.md for the justification.
package direct

import (
	"hashlab"
	"hashlab/internal/pow2"
	"hashlab/mixer"
)

const variant = "cuckoo/direct"

// BucketSize is the number of keys packed per bucket (N in the original's
// BFS comments).
const BucketSize = 4

const (
	n         = BucketSize
	bfsMaxLen = 2 * (1 + n + n*n + n*n*n)
)

type bucket[V any] struct {
	keys   [BucketSize]uint64
	values [BucketSize]V
}

// Table is a direct-SIMD-style cuckoo hash table mapping u64 keys to values
// of type V. The zero Table is not usable; construct with New.
type Table[V any] struct {
	buckets    []bucket[V]
	bucketMask int
	seed       uint64
	items      int
	zeroValue  *V

	TotalProbeLength int
}

// New returns a Table sized to hold at least capacity items at the engine's
// standard load factor, rounded up so each bucket holds BucketSize keys.
func New[V any](capacity int, seed uint64) *Table[V] {
	nbucket := pow2.NumBuckets(capacity, 1)
	nbucket = (nbucket + BucketSize - 1) / BucketSize
	if nbucket < 1 {
		nbucket = 1
	}
	n := pow2.NextPow2(uint64(nbucket))
	return &Table[V]{
		buckets:    make([]bucket[V], n),
		bucketMask: int(n) - 1,
		seed:       seed,
	}
}

// Len returns the number of items currently stored.
func (t *Table[V]) Len() int {
	return t.items
}

// searchBucket scans a bucket's BucketSize keys for key, returning the
// matching lane. Stands in for the original's SIMD compare-and-movemask.
func searchBucket(key uint64, keys *[BucketSize]uint64) (int, bool) {
	for i, k := range keys {
		if k == key {
			return i, true
		}
	}
	return 0, false
}

func secondPos(pos int, key uint64, seed uint64, bucketMask int) int {
	return pos ^ (int(mixer.RotateHigh(mixer.Mix(key, seed))) & bucketMask)
}

// Get looks up key, returning its value and true if present.
func (t *Table[V]) Get(key uint64) (V, bool) {
	var zero V
	if key == 0 {
		if t.zeroValue != nil {
			return *t.zeroValue, true
		}
		return zero, false
	}

	hash := mixer.Mix(key, t.seed)
	for i := 0; i < 2; i++ {
		pos := int(hash) & t.bucketMask
		b := &t.buckets[pos]
		if idx, ok := searchBucket(key, &b.keys); ok {
			return b.values[idx], true
		}
		hash ^= mixer.RotateHigh(hash)
	}
	return zero, false
}

// Insert adds or updates key's value, returning true if a new slot was
// claimed.
func (t *Table[V]) Insert(key uint64, value V) bool {
	if key == 0 {
		inserted := t.zeroValue == nil
		if inserted {
			t.items++
		}
		v := value
		t.zeroValue = &v
		return inserted
	}

	hash := mixer.Mix(key, t.seed)
	pos0 := int(hash) & t.bucketMask
	keys0 := &t.buckets[pos0].keys

	if idx, ok := searchBucket(key, keys0); ok {
		t.buckets[pos0].values[idx] = value
		return false
	}

	pos1 := int(hash^mixer.RotateHigh(hash)) & t.bucketMask
	keys1 := &t.buckets[pos1].keys

	if idx, ok := searchBucket(key, keys1); ok {
		t.buckets[pos1].values[idx] = value
		return false
	}

	t.items++
	bucketIndex, bucketOffset := t.bfsDisplace(pos0, pos1)
	t.buckets[bucketIndex].keys[bucketOffset] = key
	t.buckets[bucketIndex].values[bucketOffset] = value
	return true
}

// bfsDisplace runs the bounded BFS displacement search over the two root
// buckets, looking for an empty key lane (key == 0), then replays the chain
// backward exactly as direct_simd_cuckoo_table.rs does: parent of queue
// index i lives at (i-2)/N, its first child at i*N+2.
func (t *Table[V]) bfsDisplace(pos0, pos1 int) (bucketIndex, bucketOffset int) {
	queue := make([]int, bfsMaxLen)
	queue[0] = pos0
	queue[1] = pos1

	readPos := 0
	keys0 := &t.buckets[pos0].keys
	keys1 := &t.buckets[pos1].keys

	var pathIndex int
	for {
		if idx, ok := searchBucket(0, keys0); ok {
			pathIndex = readPos
			bucketIndex = pos0
			bucketOffset = idx
			break
		}
		if idx, ok := searchBucket(0, keys1); ok {
			pathIndex = readPos + 1
			bucketIndex = pos1
			bucketOffset = idx
			break
		}

		writePos := readPos*n + 2
		if writePos < bfsMaxLen {
			for i := 0; i < n; i++ {
				queue[writePos+i] = secondPos(pos0, keys0[i], t.seed, t.bucketMask)
				queue[writePos+i+n] = secondPos(pos1, keys1[i], t.seed, t.bucketMask)
			}
		}

		readPos += 2
		if readPos+2 > bfsMaxLen {
			hashlab.PanicRehashNeeded(variant, "BFS displacement search exhausted its queue")
		}
		pos0 = queue[readPos+0]
		pos1 = queue[readPos+1]
		keys0 = &t.buckets[pos0].keys
		keys1 = &t.buckets[pos1].keys
	}

	for pathIndex >= 2 {
		parentPathIndex := (pathIndex - 2) / n
		parentBucketOffset := (pathIndex - 2) % n
		parentBucketIndex := queue[parentPathIndex]

		parentBucket := &t.buckets[parentBucketIndex]
		childBucket := &t.buckets[bucketIndex]
		childBucket.keys[bucketOffset] = parentBucket.keys[parentBucketOffset]
		childBucket.values[bucketOffset] = parentBucket.values[parentBucketOffset]

		bucketIndex = parentBucketIndex
		bucketOffset = parentBucketOffset
		pathIndex = parentPathIndex
	}

	return bucketIndex, bucketOffset
}

// InsertAndErase inserts key/value, then immediately reverts the slot to
// empty (key 0) if the insert claimed a new slot, matching
// direct_simd_cuckoo_table.rs's insert_and_erase.
func (t *Table[V]) InsertAndErase(key uint64, value V) {
	if key == 0 {
		if t.Insert(key, value) {
			t.zeroValue = nil
			t.items--
		}
		return
	}

	hash := mixer.Mix(key, t.seed)
	pos0 := int(hash) & t.bucketMask
	if _, ok := searchBucket(key, &t.buckets[pos0].keys); ok {
		t.Insert(key, value)
		return
	}
	pos1 := int(hash^mixer.RotateHigh(hash)) & t.bucketMask
	if _, ok := searchBucket(key, &t.buckets[pos1].keys); ok {
		t.Insert(key, value)
		return
	}

	t.items++
	bucketIndex, bucketOffset := t.bfsDisplace(pos0, pos1)
	var zeroV V
	t.buckets[bucketIndex].keys[bucketOffset] = 0
	t.buckets[bucketIndex].values[bucketOffset] = zeroV
	t.items--
}

// Delete removes key, returning true if it was present.
func (t *Table[V]) Delete(key uint64) bool {
	if key == 0 {
		if t.zeroValue == nil {
			return false
		}
		t.zeroValue = nil
		t.items--
		return true
	}

	hash := mixer.Mix(key, t.seed)
	for i := 0; i < 2; i++ {
		pos := int(hash) & t.bucketMask
		b := &t.buckets[pos]
		if idx, ok := searchBucket(key, &b.keys); ok {
			var zero V
			b.keys[idx] = 0
			b.values[idx] = zero
			t.items--
			return true
		}
		hash ^= mixer.RotateHigh(hash)
	}
	return false
}
