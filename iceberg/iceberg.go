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

// Package iceberg implements the pieces of the Apache Iceberg
// table format that scan planning needs: the table metadata
// document, snapshot history, Avro manifest lists and manifests,
// single-value (bound) serialization, and stats-based data file
// pruning.
//
// The package is read-only with respect to live tables. The
// Write* entry points exist so that stores and tests can produce
// metadata; nothing here commits snapshots or talks to a catalog.
package iceberg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorrupt is returned when table metadata or a manifest
	// violates the format contract (bad lengths, unknown content
	// markers, missing required fields, and so forth).
	ErrCorrupt = errors.New("corrupt iceberg metadata")

	// ErrNoSnapshot is returned by [SnapshotAsOf] when the
	// snapshot history contains no entry at or before the
	// requested point in time.
	ErrNoSnapshot = errors.New("no snapshot in history")

	// ErrUnsupportedFormat is returned by [DefaultFileFormat]
	// when the table's default data file format is one the
	// execution engine cannot read.
	ErrUnsupportedFormat = errors.New("unsupported data file format")
)

// Data file content values stored in manifest data_file records.
const (
	ContentData      = 0 // ordinary row data
	ContentPosDelete = 1 // position delete file
	ContentEqDelete  = 2 // equality delete file
)

// Manifest content values stored in manifest_file records.
// A manifest tracks either data files or delete files, never both.
const (
	ManifestData    = 0
	ManifestDeletes = 1
)

// Manifest entry status values.
const (
	StatusExisting = 0
	StatusAdded    = 1
	StatusDeleted  = 2
)

// PosFieldID is the reserved field id of the row-position
// metadata column inside position delete files. The lower and
// upper bounds recorded for this column give the inclusive
// minimum and maximum row position deleted by the file.
const PosFieldID = 2147483545

// DeleteVersion is the lowest table format version
// that can carry row-level delete files. Tables below
// this version are scanned as plain data files.
const DeleteVersion = 2

// FileFormat is the physical format of data files in a table.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatORC     FileFormat = "orc"
)

// WriteFormatKey is the table property holding the default
// on-disk format for newly written data files.
const WriteFormatKey = "write.format.default"

// DefaultFileFormat returns the data file format implied by the
// table properties. A missing or empty property means parquet.
// Formats other than parquet and ORC yield [ErrUnsupportedFormat].
func DefaultFileFormat(props map[string]string) (FileFormat, error) {
	v := props[WriteFormatKey]
	if v == "" {
		return FormatParquet, nil
	}
	switch strings.ToLower(v) {
	case "parquet":
		return FormatParquet, nil
	case "orc":
		return FormatORC, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, v)
	}
}
