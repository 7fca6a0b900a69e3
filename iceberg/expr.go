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
)

// Op is a comparison operator in a pushed-down predicate.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIsNull
	OpNotNull
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpIsNull:
		return "is null"
	case OpNotNull:
		return "is not null"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Expr is a predicate over table columns, already bound to
// field ids, used to prune whole data files by their stats.
type Expr interface {
	// MightMatch reports whether a file with column stats s
	// could contain at least one matching row. Pruning is
	// inclusive: absent or undecodable stats can never prove
	// absence, so MightMatch errs toward true.
	MightMatch(s *Stats) bool
	fmt.Stringer
}

// And matches rows matching both sides.
type And struct{ Lhs, Rhs Expr }

// Or matches rows matching either side.
type Or struct{ Lhs, Rhs Expr }

// Not matches rows not matching the inner expression.
type Not struct{ Expr Expr }

// Cmp compares one column against a constant, or tests it
// for null when Op is OpIsNull or OpNotNull (Value is then
// ignored).
type Cmp struct {
	Op    Op
	Field int // field id in the table schema
	Type  Type
	Value Value
}

// Stats summarizes one data file's column statistics as
// recorded in its manifest entry. Maps are keyed by field id;
// any of them may be nil.
type Stats struct {
	Records     int64
	ValueCounts map[int]int64
	NullCounts  map[int]int64
	Lower       map[int][]byte
	Upper       map[int][]byte
}

func (a *And) MightMatch(s *Stats) bool {
	return a.Lhs.MightMatch(s) && a.Rhs.MightMatch(s)
}

func (o *Or) MightMatch(s *Stats) bool {
	return o.Lhs.MightMatch(s) || o.Rhs.MightMatch(s)
}

// MightMatch pushes the negation down to the leaves and
// evaluates the result; see [negate].
func (n *Not) MightMatch(s *Stats) bool {
	return negate(n.Expr).MightMatch(s)
}

func (c *Cmp) MightMatch(s *Stats) bool {
	if s == nil {
		return true
	}
	switch c.Op {
	case OpIsNull:
		// a recorded null count of zero proves no row is null
		if n, ok := s.NullCounts[c.Field]; ok && n == 0 {
			return false
		}
		return true
	case OpNotNull:
		return !s.allNull(c.Field)
	}
	// no value comparison matches rows in an all-null column
	if s.allNull(c.Field) {
		return false
	}
	switch c.Op {
	case OpLt:
		// some row < X requires lower bound < X
		if lo, ok := s.bound(s.Lower, c.Field, c.Type); ok {
			if r, ok := lo.Compare(c.Value); ok && r >= 0 {
				return false
			}
		}
	case OpLe:
		if lo, ok := s.bound(s.Lower, c.Field, c.Type); ok {
			if r, ok := lo.Compare(c.Value); ok && r > 0 {
				return false
			}
		}
	case OpGt:
		if hi, ok := s.bound(s.Upper, c.Field, c.Type); ok {
			if r, ok := hi.Compare(c.Value); ok && r <= 0 {
				return false
			}
		}
	case OpGe:
		if hi, ok := s.bound(s.Upper, c.Field, c.Type); ok {
			if r, ok := hi.Compare(c.Value); ok && r < 0 {
				return false
			}
		}
	case OpEq:
		if lo, ok := s.bound(s.Lower, c.Field, c.Type); ok {
			if r, ok := lo.Compare(c.Value); ok && r > 0 {
				return false
			}
		}
		if hi, ok := s.bound(s.Upper, c.Field, c.Type); ok {
			if r, ok := hi.Compare(c.Value); ok && r < 0 {
				return false
			}
		}
	case OpNe:
		// bounds cannot disprove an inequality
	}
	return true
}

// allNull reports whether the stats prove every value in the
// column is null. Unknown counts report false.
func (s *Stats) allNull(field int) bool {
	v, okv := s.ValueCounts[field]
	n, okn := s.NullCounts[field]
	return okv && okn && v > 0 && n == v
}

// bound decodes the recorded bound for field, if usable.
// Undecodable buffers and NaN float bounds are not usable:
// they cannot prove anything about the file.
func (s *Stats) bound(m map[int][]byte, field int, t Type) (Value, bool) {
	buf, ok := m[field]
	if !ok {
		return Value{}, false
	}
	v, err := DecodeBound(t, buf)
	if err != nil {
		return Value{}, false
	}
	if (t == TypeFloat || t == TypeDouble) && math.IsNaN(v.Fp) {
		return Value{}, false
	}
	return v, true
}

// negate returns an expression equivalent to NOT e for pruning
// purposes. Leaves that cannot be inverted decay to a node that
// always might match, which only costs pruning power.
func negate(e Expr) Expr {
	switch e := e.(type) {
	case *And:
		return &Or{Lhs: negate(e.Lhs), Rhs: negate(e.Rhs)}
	case *Or:
		return &And{Lhs: negate(e.Lhs), Rhs: negate(e.Rhs)}
	case *Not:
		return e.Expr
	case *Cmp:
		inv := *e
		switch e.Op {
		case OpEq:
			inv.Op = OpNe
		case OpNe:
			inv.Op = OpEq
		case OpLt:
			inv.Op = OpGe
		case OpLe:
			inv.Op = OpGt
		case OpGt:
			inv.Op = OpLe
		case OpGe:
			inv.Op = OpLt
		case OpIsNull:
			inv.Op = OpNotNull
		case OpNotNull:
			inv.Op = OpIsNull
		}
		return &inv
	default:
		return anyrows{}
	}
}

// anyrows is the vacuous predicate produced by negating an
// expression this package cannot invert.
type anyrows struct{}

func (anyrows) MightMatch(*Stats) bool { return true }
func (anyrows) String() string         { return "true" }

func (a *And) String() string { return fmt.Sprintf("(%s and %s)", a.Lhs, a.Rhs) }
func (o *Or) String() string  { return fmt.Sprintf("(%s or %s)", o.Lhs, o.Rhs) }
func (n *Not) String() string { return fmt.Sprintf("not %s", n.Expr) }

func (c *Cmp) String() string {
	switch c.Op {
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("field(%d) %s", c.Field, c.Op)
	default:
		return fmt.Sprintf("field(%d) %s %s", c.Field, c.Op, c.Value)
	}
}

func (v Value) String() string {
	switch v.Type {
	case TypeBool:
		if v.Int != 0 {
			return "true"
		}
		return "false"
	case TypeInt, TypeLong, TypeDate, TypeTime, TypeTimestamp:
		return fmt.Sprintf("%d", v.Int)
	case TypeFloat, TypeDouble:
		return fmt.Sprintf("%g", v.Fp)
	case TypeString:
		return fmt.Sprintf("%q", v.Str)
	default:
		return fmt.Sprintf("0x%x", v.Raw)
	}
}

// MightMatchAll reports whether a file with stats s could
// contain a row matching every expression in where. An empty
// slice matches everything.
func MightMatchAll(where []Expr, s *Stats) bool {
	for _, e := range where {
		if !e.MightMatch(s) {
			return false
		}
	}
	return true
}
