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
	"encoding/json"
	"strings"
)

// Schema is one schema version from the table metadata.
type Schema struct {
	// Type is always "struct" for a top-level schema.
	Type string `json:"type,omitempty"`
	// ID is the schema version id.
	ID int `json:"schema-id"`
	// Fields are the top-level columns.
	Fields []Field `json:"fields"`
}

// Field is a single column of a schema.
type Field struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	// Type is the raw JSON type: either a quoted primitive
	// name or a nested object for struct/list/map columns.
	Type json.RawMessage `json:"type"`
}

// Primitive returns the bound type of f when f has a primitive,
// comparison-capable type. Nested columns and primitives whose
// single-value encoding this package does not decode (uuid,
// decimal) return false; predicates on such columns cannot be
// pushed down.
func (f *Field) Primitive() (Type, bool) {
	var name string
	if json.Unmarshal(f.Type, &name) != nil {
		return 0, false // struct, list or map column
	}
	switch {
	case name == "boolean":
		return TypeBool, true
	case name == "int":
		return TypeInt, true
	case name == "long":
		return TypeLong, true
	case name == "float":
		return TypeFloat, true
	case name == "double":
		return TypeDouble, true
	case name == "date":
		return TypeDate, true
	case name == "time":
		return TypeTime, true
	case name == "timestamp", name == "timestamptz":
		return TypeTimestamp, true
	case name == "string":
		return TypeString, true
	case name == "binary", strings.HasPrefix(name, "fixed["):
		return TypeBinary, true
	default:
		return 0, false
	}
}

// Field looks up a column by name. An exact match wins; when
// none exists the first case-insensitive match is returned, so
// identifiers folded by a SQL frontend still resolve.
func (s *Schema) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	for i := range s.Fields {
		if strings.EqualFold(s.Fields[i].Name, name) {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// FieldByID looks up a column by field id.
func (s *Schema) FieldByID(id int) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i], true
		}
	}
	return nil, false
}
