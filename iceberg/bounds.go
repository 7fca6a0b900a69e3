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
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
)

// Type is the primitive type of a single-value buffer.
type Type int

const (
	TypeBool Type = iota
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeDate      // days since the unix epoch, stored as int
	TypeTime      // microseconds since midnight, stored as long
	TypeTimestamp // microseconds since the unix epoch, stored as long
	TypeString
	TypeBinary
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeTimestamp:
		return "timestamp"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Value is a decoded single value.
// Exactly one of the payload fields is
// meaningful, selected by Type:
// Int for the integer-backed types (bool is 0 or 1),
// Fp for float and double, Str for string,
// and Raw for binary.
type Value struct {
	Type Type
	Int  int64
	Fp   float64
	Str  string
	Raw  []byte
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	v := Value{Type: TypeBool}
	if b {
		v.Int = 1
	}
	return v
}

// Int32 returns an int Value.
func Int32(x int32) Value { return Value{Type: TypeInt, Int: int64(x)} }

// Long returns a long Value.
func Long(x int64) Value { return Value{Type: TypeLong, Int: x} }

// Float64 returns a double Value.
func Float64(x float64) Value { return Value{Type: TypeDouble, Fp: x} }

// String returns a string Value.
func String(s string) Value { return Value{Type: TypeString, Str: s} }

// DecodeBound decodes buf as an Iceberg single value of type t.
// Single values are serialized as little-endian fixed-width
// primitives, except for strings (UTF-8 bytes) and binary
// (raw bytes). A buffer of the wrong width for a fixed-width
// type means the metadata is corrupt; DecodeBound never guesses.
func DecodeBound(t Type, buf []byte) (Value, error) {
	badlen := func() (Value, error) {
		return Value{}, fmt.Errorf("decoding %s bound: %d bytes: %w", t, len(buf), ErrCorrupt)
	}
	switch t {
	case TypeBool:
		if len(buf) != 1 {
			return badlen()
		}
		switch buf[0] {
		case 0:
			return Bool(false), nil
		case 1:
			return Bool(true), nil
		}
		return Value{}, fmt.Errorf("decoding boolean bound 0x%02x: %w", buf[0], ErrCorrupt)
	case TypeInt, TypeDate:
		if len(buf) != 4 {
			return badlen()
		}
		x := int32(binary.LittleEndian.Uint32(buf))
		return Value{Type: t, Int: int64(x)}, nil
	case TypeLong, TypeTime, TypeTimestamp:
		if len(buf) != 8 {
			return badlen()
		}
		x := int64(binary.LittleEndian.Uint64(buf))
		return Value{Type: t, Int: x}, nil
	case TypeFloat:
		if len(buf) != 4 {
			return badlen()
		}
		x := math.Float32frombits(binary.LittleEndian.Uint32(buf))
		return Value{Type: t, Fp: float64(x)}, nil
	case TypeDouble:
		if len(buf) != 8 {
			return badlen()
		}
		x := math.Float64frombits(binary.LittleEndian.Uint64(buf))
		return Value{Type: t, Fp: x}, nil
	case TypeString:
		return Value{Type: t, Str: string(buf)}, nil
	case TypeBinary:
		return Value{Type: t, Raw: bytes.Clone(buf)}, nil
	default:
		return Value{}, fmt.Errorf("decoding bound of unknown type %d: %w", int(t), ErrCorrupt)
	}
}

// EncodeBound is the inverse of [DecodeBound].
func EncodeBound(v Value) []byte {
	switch v.Type {
	case TypeBool:
		if v.Int != 0 {
			return []byte{1}
		}
		return []byte{0}
	case TypeInt, TypeDate:
		return binary.LittleEndian.AppendUint32(nil, uint32(int32(v.Int)))
	case TypeLong, TypeTime, TypeTimestamp:
		return binary.LittleEndian.AppendUint64(nil, uint64(v.Int))
	case TypeFloat:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v.Fp)))
	case TypeDouble:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v.Fp))
	case TypeString:
		return []byte(v.Str)
	default:
		return bytes.Clone(v.Raw)
	}
}

// DecodePos decodes a row-position bound: always an 8-byte
// little-endian signed long, regardless of table schema.
func DecodePos(buf []byte) (int64, error) {
	v, err := DecodeBound(TypeLong, buf)
	if err != nil {
		return 0, err
	}
	return v.Int, nil
}

// EncodePos encodes a row position as a single-value buffer.
func EncodePos(pos int64) []byte {
	return EncodeBound(Long(pos))
}

// Compare compares v against other. Both values must have
// compatible types; comparing across incompatible types
// returns ok=false and the caller should treat the result
// as unknowable rather than false.
func (v Value) Compare(other Value) (int, bool) {
	switch v.Type {
	case TypeBool, TypeInt, TypeLong, TypeDate, TypeTime, TypeTimestamp:
		switch other.Type {
		case TypeBool, TypeInt, TypeLong, TypeDate, TypeTime, TypeTimestamp:
			return cmp.Compare(v.Int, other.Int), true
		case TypeFloat, TypeDouble:
			return cmp.Compare(float64(v.Int), other.Fp), true
		}
	case TypeFloat, TypeDouble:
		switch other.Type {
		case TypeFloat, TypeDouble:
			return cmp.Compare(v.Fp, other.Fp), true
		case TypeBool, TypeInt, TypeLong, TypeDate, TypeTime, TypeTimestamp:
			return cmp.Compare(v.Fp, float64(other.Int)), true
		}
	case TypeString:
		if other.Type == TypeString {
			return cmp.Compare(v.Str, other.Str), true
		}
	case TypeBinary:
		if other.Type == TypeBinary {
			return bytes.Compare(v.Raw, other.Raw), true
		}
	}
	return 0, false
}
