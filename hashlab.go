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

// Package hashlab collects the failure-handling primitives shared by every
// table variant in the module: the fatal "need to rehash" error, and a
// debug-only assertion helper gated by the Debug flag.
//
// The engine packages (control, mixer, quadtable, cuckoo/*) import only
// in-module packages and the standard library. Two of those in-module
// packages use third-party code: this package wraps its panics with
// github.com/pkg/errors, and internal/pow2 uses golang.org/x/exp/constraints.
// The remaining third-party dependencies live in cmd/hashlab and in tests.
package hashlab

import (
	"fmt"

	"github.com/pkg/errors"
)

// Debug enables the internal assertions made through Assert: the alignment
// precondition of control.LoadAligned, the rawtable layout bounds, and the
// quadtable probe-stride check. It is off by default so release builds pay
// no assertion overhead; cmd/hashlab's --debug flag turns it on.
var Debug = false

// RehashNeededError is the fatal condition raised when a table variant
// cannot place a key: BFS displacement exhausted its queue, or (for the
// quadratic-probing variant) the triangular probe ran past the table, which
// should be geometrically impossible on a power-of-two size and indicates a
// debug-assertion failure instead.
type RehashNeededError struct {
	Variant string
	Reason  string
}

func (e *RehashNeededError) Error() string {
	return fmt.Sprintf("hashlab: %s: need to rehash: %s", e.Variant, e.Reason)
}

// PanicRehashNeeded raises the fatal "need to rehash" condition described in
// spec §4.9 and §8.9(b). Per §7, this is unrecoverable in-band: callers that
// hit it must rebuild the table at a larger capacity.
func PanicRehashNeeded(variant, reason string) {
	panic(errors.WithStack(&RehashNeededError{Variant: variant, Reason: reason}))
}

// Assert panics with a descriptive message when cond is false and Debug is
// enabled. It is a no-op in release builds, matching §7's "may, in debug
// builds, additionally check" language.
func Assert(cond bool, format string, args ...any) {
	if Debug && !cond {
		panic(errors.Errorf("hashlab: assertion failed: "+format, args...))
	}
}
