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

package localized

import (
	"math/rand"
	"testing"

	"hashlab"
)

func TestInsertGetRoundTrip(t *testing.T) {
	tbl := New[uint64](256, 0xabc)
	ref := make(map[uint64]uint64)
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 150; i++ {
		key := r.Uint64()
		value := r.Uint64()
		ref[key] = value
		tbl.Insert(key, value)
	}

	for key, want := range ref {
		got, ok := tbl.Get(key)
		if !ok || got != want {
			t.Fatalf("Get(%d) = (%d, %v), want (%d, true)", key, got, ok, want)
		}
	}
	if tbl.Len() != len(ref) {
		t.Fatalf("Len() = %d, want %d", tbl.Len(), len(ref))
	}
}

func TestInsertUpdatesExistingKey(t *testing.T) {
	tbl := New[uint64](16, 1)
	if inserted := tbl.Insert(5, 100); !inserted {
		t.Fatal("first Insert of a new key should report inserted=true")
	}
	if inserted := tbl.Insert(5, 200); inserted {
		t.Fatal("Insert of an existing key should report inserted=false")
	}
	got, ok := tbl.Get(5)
	if !ok || got != 200 {
		t.Fatalf("Get(5) = (%d, %v), want (200, true)", got, ok)
	}
}

func TestDeleteThenReinsert(t *testing.T) {
	tbl := New[uint64](64, 7)
	keys := []uint64{11, 22, 33, 44, 55}
	for _, k := range keys {
		tbl.Insert(k, k*10)
	}

	if !tbl.Delete(33) {
		t.Fatal("Delete(33) = false, want true")
	}
	if tbl.Delete(33) {
		t.Fatal("second Delete(33) = true, want false")
	}
	if _, ok := tbl.Get(33); ok {
		t.Fatal("Get(33) found a deleted key")
	}
	for _, k := range []uint64{11, 22, 44, 55} {
		if _, ok := tbl.Get(k); !ok {
			t.Fatalf("Get(%d) missing after unrelated delete", k)
		}
	}

	if inserted := tbl.Insert(33, 999); !inserted {
		t.Fatal("reinsert of deleted key should claim a new slot")
	}
	got, ok := tbl.Get(33)
	if !ok || got != 999 {
		t.Fatalf("Get(33) after reinsert = (%d, %v), want (999, true)", got, ok)
	}
}

func TestInsertAndEraseLeavesNoTrace(t *testing.T) {
	tbl := New[uint64](16, 3)
	tbl.InsertAndErase(9, 90)
	if _, ok := tbl.Get(9); ok {
		t.Fatal("InsertAndErase should leave no retrievable entry")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after InsertAndErase", tbl.Len())
	}
}

func TestBFSDisplacementUnderHighLoad(t *testing.T) {
	const capacity = 512
	tbl := New[uint64](capacity, 0x9e3779b9)
	ref := make(map[uint64]uint64)
	r := rand.New(rand.NewSource(42))

	target := capacity * 8 / 10
	for len(ref) < target {
		key := r.Uint64()
		if _, exists := ref[key]; exists {
			continue
		}
		value := r.Uint64()
		ref[key] = value
		tbl.Insert(key, value)
	}

	for key, want := range ref {
		got, ok := tbl.Get(key)
		if !ok || got != want {
			t.Fatalf("Get(%d) = (%d, %v), want (%d, true)", key, got, ok, want)
		}
	}
}

func TestRehashNeededPanicsOnExhaustedTable(t *testing.T) {
	tbl := New[uint64](8, 0x1)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic once the table could no longer place new keys")
		}
		if err, ok := r.(error); !ok || !isRehashNeeded(err) {
			t.Fatalf("recovered value %v is not a *hashlab.RehashNeededError", r)
		}
	}()

	for i := uint64(0); i < 100000; i++ {
		tbl.Insert(i*2+1, i)
	}
}

func isRehashNeeded(err error) bool {
	_, ok := err.(*hashlab.RehashNeededError)
	if ok {
		return true
	}
	type causer interface{ Cause() error }
	for c, ok := err.(causer); ok; c, ok = err.(causer) {
		err = c.Cause()
		if _, match := err.(*hashlab.RehashNeededError); match {
			return true
		}
	}
	return false
}
