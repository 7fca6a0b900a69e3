// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package iceberg

import (
	"fmt"
	"math"
	"testing"
)

// stats for a file where field 1 (long) spans [10, 100]
// with no nulls, and field 2 (string) is entirely null
func testStats() *Stats {
	return &Stats{
		Records:     1000,
		ValueCounts: map[int]int64{1: 1000, 2: 500},
		NullCounts:  map[int]int64{1: 0, 2: 500},
		Lower:       map[int][]byte{1: EncodeBound(Long(10))},
		Upper:       map[int][]byte{1: EncodeBound(Long(100))},
	}
}

func TestMightMatch(t *testing.T) {
	cmp := func(op Op, field int, v Value) *Cmp {
		return &Cmp{Op: op, Field: field, Type: v.Type, Value: v}
	}
	tcs := []struct {
		expr Expr
		want bool
	}{
		// equality against the [10, 100] range
		{cmp(OpEq, 1, Long(50)), true},
		{cmp(OpEq, 1, Long(10)), true},
		{cmp(OpEq, 1, Long(100)), true},
		{cmp(OpEq, 1, Long(9)), false},
		{cmp(OpEq, 1, Long(101)), false},
		// ordering comparisons
		{cmp(OpLt, 1, Long(10)), false},
		{cmp(OpLt, 1, Long(11)), true},
		{cmp(OpLe, 1, Long(9)), false},
		{cmp(OpLe, 1, Long(10)), true},
		{cmp(OpGt, 1, Long(100)), false},
		{cmp(OpGt, 1, Long(99)), true},
		{cmp(OpGe, 1, Long(101)), false},
		{cmp(OpGe, 1, Long(100)), true},
		// != cannot be disproven by bounds
		{cmp(OpNe, 1, Long(50)), true},
		// null checks
		{cmp(OpIsNull, 1, Value{}), false},
		{cmp(OpIsNull, 2, Value{}), true},
		{cmp(OpNotNull, 1, Value{}), true},
		{cmp(OpNotNull, 2, Value{}), false},
		// value comparisons on an all-null column
		{cmp(OpEq, 2, String("x")), false},
		{cmp(OpLt, 2, String("x")), false},
		// columns with no recorded stats cannot be pruned
		{cmp(OpEq, 3, Long(1)), true},
		{cmp(OpIsNull, 3, Value{}), true},
		// boolean combinations
		{&And{cmp(OpGe, 1, Long(10)), cmp(OpLe, 1, Long(100))}, true},
		{&And{cmp(OpEq, 1, Long(50)), cmp(OpEq, 1, Long(200))}, false},
		{&Or{cmp(OpEq, 1, Long(200)), cmp(OpEq, 1, Long(50))}, true},
		{&Or{cmp(OpEq, 1, Long(200)), cmp(OpEq, 1, Long(300))}, false},
		// negation pushes to the leaves
		{&Not{cmp(OpLt, 1, Long(200))}, false},  // not(x < 200) == x >= 200
		{&Not{cmp(OpGe, 1, Long(200))}, true},   // not(x >= 200) == x < 200
		{&Not{&Not{cmp(OpEq, 1, Long(50))}}, true},
		{&Not{&And{cmp(OpLt, 1, Long(200)), cmp(OpLt, 1, Long(300))}}, false},
	}
	s := testStats()
	for i := range tcs {
		tc := tcs[i]
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			if got := tc.expr.MightMatch(s); got != tc.want {
				t.Errorf("%s: got %v, want %v", tc.expr, got, tc.want)
			}
			// nil stats can never prove absence
			if !tc.expr.MightMatch(nil) {
				t.Errorf("%s pruned a file with no stats", tc.expr)
			}
		})
	}
}

func TestMightMatchAll(t *testing.T) {
	s := testStats()
	in := []Expr{
		&Cmp{Op: OpGe, Field: 1, Type: TypeLong, Value: Long(20)},
		&Cmp{Op: OpLe, Field: 1, Type: TypeLong, Value: Long(80)},
	}
	if !MightMatchAll(in, s) {
		t.Error("conjunction inside the range pruned the file")
	}
	out := append(in[:1:1], &Cmp{Op: OpGt, Field: 1, Type: TypeLong, Value: Long(100)})
	if MightMatchAll(out, s) {
		t.Error("conjunction outside the range kept the file")
	}
	if !MightMatchAll(nil, s) || !MightMatchAll(nil, nil) {
		t.Error("empty conjunction must match everything")
	}
}

func TestMightMatchFloatNaN(t *testing.T) {
	// a NaN bound proves nothing about the file
	s := &Stats{
		Lower: map[int][]byte{1: EncodeBound(Float64(1.0))},
		Upper: map[int][]byte{1: EncodeBound(Float64(math.NaN()))},
	}
	e := &Cmp{Op: OpGt, Field: 1, Type: TypeDouble, Value: Float64(5.0)}
	if !e.MightMatch(s) {
		t.Error("NaN upper bound pruned the file")
	}
}
