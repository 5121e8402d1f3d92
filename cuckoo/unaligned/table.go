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

// Package unaligned implements the unaligned-bucket cuckoo hash table
// described in spec §4.5: like cuckoo/aligned, but the two candidate
// positions are arbitrary byte offsets rather than Group-aligned ones, so
// a Group load can start mid-array and run past the end of the primary tag
// region. The control array therefore carries Group.Width mirrored spill
// bytes, kept in sync by a dual write on every tag update.
//
// Grounded directly on original_source/src/unaligned_cuckoo_table.rs, which
// already used BFS displacement in the original source (unlike the aligned
// and balancing variants, which used an unbounded random walk); its
// bfs_queue indexing, parent/child backtracking arithmetic, and set_ctrl
// dual-write scheme are carried over with the same index formulas.
package unaligned

import (
	"hashlab"
	"hashlab/control"
	"hashlab/internal/pow2"
	"hashlab/internal/rawtable"
	"hashlab/mixer"
)

const variant = "cuckoo/unaligned"

const (
	n         = control.Width
	bfsMaxLen = 2 * (1 + 2*n + 2*n*n + 2*n*n*n)
)

type entry[V any] struct {
	key   uint64
	value V
}

// Table is an unaligned-bucket cuckoo hash table mapping u64 keys to values
// of type V. The zero Table is not usable; construct with New.
type Table[V any] struct {
	storage    *rawtable.Storage[entry[V]]
	bucketMask int
	seed       uint64
	items      int

	TotalProbeLength       int
	TotalInsertProbeLength int
	MaxInsertProbeLength   int
}

// New returns a Table sized to hold at least capacity items at the engine's
// standard load factor.
func New[V any](capacity int, seed uint64) *Table[V] {
	nbucket := pow2.NumBuckets(capacity, control.Width)
	return &Table[V]{
		storage:    rawtable.New[entry[V]](nbucket, true),
		bucketMask: nbucket - 1,
		seed:       seed,
	}
}

// Len returns the number of items currently stored.
func (t *Table[V]) Len() int {
	return t.items
}

func (t *Table[V]) slot(i int) *entry[V] {
	return t.storage.Slot(i)
}

func (t *Table[V]) loadGroup(pos int) control.Group {
	return control.Load(t.storage.Tag0AtOffset(pos))
}

// Get looks up key, returning its value and true if present. Matches the
// original's deliberate choice not to early-return on an empty first group
// (ALLOW_EARLY_RETURN = false): a tombstone can separate the key from its
// first candidate group, so both groups are always checked.
func (t *Table[V]) Get(key uint64) (V, bool) {
	var zero V
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	for i := 0; i < 2; i++ {
		pos := int(hash) & t.bucketMask
		group := t.loadGroup(pos)
		for mask, lane, ok := group.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
			idx := (pos + lane) & t.bucketMask
			if e := t.slot(idx); e.key == key {
				return e.value, true
			}
		}
		hash = mixer.RotateHigh(hash)
	}
	return zero, false
}

// Insert adds or updates key's value, returning true if a new slot was
// claimed.
func (t *Table[V]) Insert(key uint64, value V) bool {
	inserted, _ := t.insert(key, value)
	return inserted
}

func (t *Table[V]) insert(key uint64, value V) (inserted bool, index int) {
	hash0 := mixer.Mix(key, t.seed)
	hash1 := mixer.RotateHigh(hash0)
	tag := control.FullTag(hash0)

	pos0 := int(hash0) & t.bucketMask
	group0 := t.loadGroup(pos0)
	for mask, lane, ok := group0.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
		idx := (pos0 + lane) & t.bucketMask
		if e := t.slot(idx); e.key == key {
			e.value = value
			return false, idx
		}
	}

	pos1 := int(hash1) & t.bucketMask
	group1 := t.loadGroup(pos1)
	for mask, lane, ok := group1.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
		idx := (pos1 + lane) & t.bucketMask
		if e := t.slot(idx); e.key == key {
			e.value = value
			return false, idx
		}
	}

	insertProbeLength := 1

	if lane, ok := group0.MatchEmpty().LowestSetBit(); ok {
		idx := (pos0 + lane) & t.bucketMask
		t.place(idx, key, value, tag)
		t.TotalProbeLength++
		t.TotalInsertProbeLength += insertProbeLength
		if insertProbeLength > t.MaxInsertProbeLength {
			t.MaxInsertProbeLength = insertProbeLength
		}
		return true, idx
	}

	t.TotalProbeLength += 2

	idx, pathCost := t.bfsDisplace(pos0, pos1)
	t.place(idx, key, value, tag)
	insertProbeLength += pathCost
	t.TotalInsertProbeLength += insertProbeLength
	if insertProbeLength > t.MaxInsertProbeLength {
		t.MaxInsertProbeLength = insertProbeLength
	}
	return true, idx
}

func (t *Table[V]) place(idx int, key uint64, value V, tag control.Tag) {
	t.storage.SetTagMirrored(idx, tag)
	e := t.slot(idx)
	e.key = key
	e.value = value
	t.items++
}

// bfsDisplace is the unaligned-bucket analogue of cuckoo/aligned's BFS
// search: identical queue and backtracking arithmetic, but candidate
// positions are masked with the full bucketMask (not an aligned one) since
// this variant's buckets need not start on a Group boundary. It returns the
// target slot and the path length consumed (one plus the number of occupants
// displaced), the latter folded into the caller's insert-probe-length
// counters.
func (t *Table[V]) bfsDisplace(pos0, pos1 int) (bucketIndex, pathCost int) {
	queue := make([]int, bfsMaxLen)
	queue[0] = pos0
	queue[1] = pos1

	readPos := 0
	group0 := t.loadGroup(pos0)
	group1 := t.loadGroup(pos1)

	var pathIndex int
	for {
		if lane, ok := group0.MatchEmpty().LowestSetBit(); ok {
			pathIndex = readPos
			bucketIndex = (pos0 + lane) & t.bucketMask
			break
		}
		if lane, ok := group1.MatchEmpty().LowestSetBit(); ok {
			pathIndex = readPos + 1
			bucketIndex = (pos1 + lane) & t.bucketMask
			break
		}

		writePos := readPos*2*n + 2
		if writePos+2*2*n <= bfsMaxLen {
			for i := 0; i < n; i++ {
				idx := (pos0 + i) & t.bucketMask
				k := t.slot(idx).key
				rehash := mixer.Mix(k, t.seed)
				queue[writePos+i*2] = int(rehash) & t.bucketMask
				queue[writePos+i*2+1] = int(mixer.RotateHigh(rehash)) & t.bucketMask
			}
			for i := 0; i < n; i++ {
				idx := (pos1 + i) & t.bucketMask
				k := t.slot(idx).key
				rehash := mixer.Mix(k, t.seed)
				queue[writePos+2*n+i*2] = int(rehash) & t.bucketMask
				queue[writePos+2*n+i*2+1] = int(mixer.RotateHigh(rehash)) & t.bucketMask
			}
		}

		readPos += 2
		if readPos+2 > bfsMaxLen {
			hashlab.PanicRehashNeeded(variant, "BFS displacement search exhausted its queue")
		}
		pos0 = queue[readPos+0]
		pos1 = queue[readPos+1]
		group0 = t.loadGroup(pos0)
		group1 = t.loadGroup(pos1)
	}

	pathCost = 1
	for pathIndex >= 2 {
		pathCost++
		parentPathIndex := (pathIndex - 2) / (2 * n)
		parentBucketOffset := (pathIndex - 2) % (2 * n)
		parentWindowIndex := parentBucketOffset / (2 * n)
		parentBucketInWindow := parentBucketOffset / 2

		parentPos := queue[parentPathIndex+parentWindowIndex]
		parentBucketIndex := (parentPos + parentBucketInWindow) & t.bucketMask

		parentEntry := *t.slot(parentBucketIndex)
		parentTag := t.storage.Tags()[parentBucketIndex]
		*t.slot(bucketIndex) = parentEntry
		t.storage.SetTagMirrored(bucketIndex, parentTag)

		bucketIndex = parentBucketIndex
		pathIndex = parentPathIndex + parentWindowIndex
	}

	return bucketIndex, pathCost
}

// Delete removes key, returning true if it was present.
func (t *Table[V]) Delete(key uint64) bool {
	hash := mixer.Mix(key, t.seed)
	tag := control.FullTag(hash)

	for i := 0; i < 2; i++ {
		pos := int(hash) & t.bucketMask
		group := t.loadGroup(pos)
		for mask, lane, ok := group.MatchTag(tag).Next(); ok; mask, lane, ok = mask.Next() {
			idx := (pos + lane) & t.bucketMask
			if e := t.slot(idx); e.key == key {
				t.eraseIndex(idx)
				return true
			}
		}
		hash = mixer.RotateHigh(hash)
	}
	return false
}

func (t *Table[V]) eraseIndex(index int) {
	indexBefore := (index - control.Width) & t.bucketMask
	emptyBefore := t.loadGroup(indexBefore).MatchEmpty()
	emptyAfter := t.loadGroup(index).MatchEmpty()

	tag := control.Empty
	if emptyBefore.LeadingZeros()+emptyAfter.TrailingZeros() >= control.Width {
		tag = control.Deleted
	}
	t.storage.SetTagMirrored(index, tag)
	t.items--
}
