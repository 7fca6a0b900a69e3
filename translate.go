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

package floe

import (
	"strconv"

	"github.com/SnellerInc/floe/iceberg"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Translate converts one SQL conjunct into a pruning predicate
// over the table schema.
//
// The supported shapes are comparisons between one column and
// one literal (on either side), IS [NOT] NULL checks, and
// AND/OR/NOT combinations of those. The boolean result reports
// whether the conjunct is expressible; an inexpressible
// conjunct is not an error, the planner just scans without it.
func Translate(e sqlparser.Expr, s *iceberg.Schema) (iceberg.Expr, bool) {
	if s == nil || e == nil {
		return nil, false
	}
	switch e := e.(type) {
	case *sqlparser.AndExpr:
		lhs, ok := Translate(e.Left, s)
		if !ok {
			return nil, false
		}
		rhs, ok := Translate(e.Right, s)
		if !ok {
			return nil, false
		}
		return &iceberg.And{Lhs: lhs, Rhs: rhs}, true
	case *sqlparser.OrExpr:
		lhs, ok := Translate(e.Left, s)
		if !ok {
			return nil, false
		}
		rhs, ok := Translate(e.Right, s)
		if !ok {
			return nil, false
		}
		return &iceberg.Or{Lhs: lhs, Rhs: rhs}, true
	case *sqlparser.NotExpr:
		inner, ok := Translate(e.Expr, s)
		if !ok {
			return nil, false
		}
		return &iceberg.Not{Expr: inner}, true
	case *sqlparser.ComparisonExpr:
		return translateCmp(e, s)
	case *sqlparser.IsExpr:
		return translateIs(e, s)
	}
	return nil, false
}

func translateCmp(e *sqlparser.ComparisonExpr, s *iceberg.Schema) (iceberg.Expr, bool) {
	var op iceberg.Op
	switch e.Operator {
	case sqlparser.EqualOp:
		op = iceberg.OpEq
	case sqlparser.NotEqualOp:
		op = iceberg.OpNe
	case sqlparser.LessThanOp:
		op = iceberg.OpLt
	case sqlparser.LessEqualOp:
		op = iceberg.OpLe
	case sqlparser.GreaterThanOp:
		op = iceberg.OpGt
	case sqlparser.GreaterEqualOp:
		op = iceberg.OpGe
	default:
		return nil, false
	}
	col, lit, swapped := operands(e.Left, e.Right)
	if col == nil {
		return nil, false
	}
	if swapped {
		// 5 < id is id > 5
		op = flip(op)
	}
	f, ok := s.Field(col.Name.String())
	if !ok {
		return nil, false
	}
	t, ok := f.Primitive()
	if !ok {
		return nil, false
	}
	v, ok := literal(lit, t)
	if !ok {
		return nil, false
	}
	return &iceberg.Cmp{Op: op, Field: f.ID, Type: t, Value: v}, true
}

// operands splits a comparison into its column and literal
// sides, reporting whether they arrived reversed.
func operands(l, r sqlparser.Expr) (col *sqlparser.ColName, lit sqlparser.Expr, swapped bool) {
	if c, ok := l.(*sqlparser.ColName); ok {
		return c, r, false
	}
	if c, ok := r.(*sqlparser.ColName); ok {
		return c, l, true
	}
	return nil, nil, false
}

func flip(op iceberg.Op) iceberg.Op {
	switch op {
	case iceberg.OpLt:
		return iceberg.OpGt
	case iceberg.OpLe:
		return iceberg.OpGe
	case iceberg.OpGt:
		return iceberg.OpLt
	case iceberg.OpGe:
		return iceberg.OpLe
	}
	return op
}

// literal converts a SQL literal into a bound value of the
// column's type. Literals that do not fit the column type
// make the conjunct inexpressible rather than erroring: the
// scan stays correct either way.
func literal(e sqlparser.Expr, t iceberg.Type) (iceberg.Value, bool) {
	switch e := e.(type) {
	case *sqlparser.Literal:
		switch e.Type {
		case sqlparser.IntVal:
			n, err := strconv.ParseInt(e.Val, 10, 64)
			if err != nil {
				return iceberg.Value{}, false
			}
			switch t {
			case iceberg.TypeInt, iceberg.TypeLong, iceberg.TypeDate,
				iceberg.TypeTime, iceberg.TypeTimestamp:
				return iceberg.Value{Type: t, Int: n}, true
			case iceberg.TypeFloat, iceberg.TypeDouble:
				return iceberg.Value{Type: t, Fp: float64(n)}, true
			}
		case sqlparser.FloatVal, sqlparser.DecimalVal:
			fp, err := strconv.ParseFloat(e.Val, 64)
			if err != nil {
				return iceberg.Value{}, false
			}
			switch t {
			case iceberg.TypeFloat, iceberg.TypeDouble:
				return iceberg.Value{Type: t, Fp: fp}, true
			}
		case sqlparser.StrVal:
			switch t {
			case iceberg.TypeString:
				return iceberg.String(e.Val), true
			case iceberg.TypeBinary:
				return iceberg.Value{Type: iceberg.TypeBinary, Raw: []byte(e.Val)}, true
			case iceberg.TypeTimestamp:
				// timestamp bounds are microseconds
				ms, err := iceberg.ParseAsOf(e.Val, nil)
				if err != nil {
					return iceberg.Value{}, false
				}
				return iceberg.Value{Type: t, Int: ms * 1000}, true
			case iceberg.TypeDate:
				// date bounds are days since the epoch
				ms, err := iceberg.ParseAsOf(e.Val, nil)
				if err != nil {
					return iceberg.Value{}, false
				}
				return iceberg.Value{Type: t, Int: ms / 86400000}, true
			}
		}
	case sqlparser.BoolVal:
		if t == iceberg.TypeBool {
			return iceberg.Bool(bool(e)), true
		}
	}
	// NULL literals, subqueries, tuples, function calls:
	// none of these prune by file stats
	return iceberg.Value{}, false
}

func translateIs(e *sqlparser.IsExpr, s *iceberg.Schema) (iceberg.Expr, bool) {
	col, ok := e.Left.(*sqlparser.ColName)
	if !ok {
		return nil, false
	}
	f, ok := s.Field(col.Name.String())
	if !ok {
		return nil, false
	}
	// null counts are tracked for nested columns too, so the
	// column type does not matter here
	t, _ := f.Primitive()
	switch e.Right {
	case sqlparser.IsNullOp:
		return &iceberg.Cmp{Op: iceberg.OpIsNull, Field: f.ID, Type: t}, true
	case sqlparser.IsNotNullOp:
		return &iceberg.Cmp{Op: iceberg.OpNotNull, Field: f.ID, Type: t}, true
	}
	return nil, false
}
