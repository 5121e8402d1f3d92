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

import "testing"

func TestTagClassification(t *testing.T) {
	if !Empty.IsEmpty() {
		t.Error("Empty.IsEmpty() = false")
	}
	if !Empty.IsEmptyOrDeleted() {
		t.Error("Empty.IsEmptyOrDeleted() = false")
	}
	if Empty.IsFull() {
		t.Error("Empty.IsFull() = true")
	}
	if !Deleted.IsEmptyOrDeleted() {
		t.Error("Deleted.IsEmptyOrDeleted() = false")
	}
	if Deleted.IsEmpty() {
		t.Error("Deleted.IsEmpty() = true")
	}

	full := FullTag(0x0123456789abcdef)
	if !full.IsFull() {
		t.Error("FullTag(...).IsFull() = false")
	}
	if full.IsEmpty() || full.IsEmptyOrDeleted() {
		t.Error("FullTag(...) classified as empty/deleted")
	}
}

func TestGroupMatchTag(t *testing.T) {
	var tags [Width]Tag
	for i := range tags {
		tags[i] = Empty
	}
	tags[2] = Tag(0x2a)
	tags[5] = Tag(0x2a)
	tags[6] = Deleted

	g := Load(&tags[0])

	mask := g.MatchTag(Tag(0x2a))
	if !mask.AnyBitSet() {
		t.Fatal("expected matches for tag 0x2a")
	}
	var lanes []int
	for m, lane, ok := mask.Next(); ok; m, lane, ok = m.Next() {
		lanes = append(lanes, lane)
	}
	if len(lanes) != 2 || lanes[0] != 2 || lanes[1] != 5 {
		t.Errorf("MatchTag lanes = %v, want [2 5]", lanes)
	}

	empty := g.MatchEmpty()
	for _, lane := range []int{0, 1, 3, 4, 7} {
		if empty&(BitMask(0xFF)<<uint(lane*8)) == 0 {
			t.Errorf("lane %d should match empty", lane)
		}
	}
	if empty&(BitMask(0xFF)<<(2*8)) != 0 || empty&(BitMask(0xFF)<<(6*8)) != 0 {
		t.Error("full/deleted lanes should not match empty")
	}

	full := g.MatchFull()
	for _, lane := range []int{2, 5} {
		if full&(BitMask(0xFF)<<uint(lane*8)) == 0 {
			t.Errorf("lane %d should match full", lane)
		}
	}
	if full&(BitMask(0xFF)<<(6*8)) != 0 {
		t.Error("deleted lane should not match full")
	}
}

func TestBitMaskLowestAndZeros(t *testing.T) {
	var m BitMask
	if _, ok := m.LowestSetBit(); ok {
		t.Error("zero mask should have no lowest set bit")
	}
	if m.TrailingZeros() != Width || m.LeadingZeros() != Width {
		t.Error("zero mask should report Width for both zero counts")
	}

	m = BitMask(0xFF) << (3 * 8)
	lane, ok := m.LowestSetBit()
	if !ok || lane != 3 {
		t.Errorf("LowestSetBit() = (%d, %v), want (3, true)", lane, ok)
	}
	if m.TrailingZeros() != 3 {
		t.Errorf("TrailingZeros() = %d, want 3", m.TrailingZeros())
	}
}

func TestFillEmpty(t *testing.T) {
	tags := make([]Tag, 16)
	for i := range tags {
		tags[i] = Deleted
	}
	FillEmpty(tags)
	for i, tag := range tags {
		if tag != Empty {
			t.Errorf("tags[%d] = %v, want Empty", i, tag)
		}
	}
}
