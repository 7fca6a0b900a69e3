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
	"fmt"
	"io"
)

// TableMetadata is the decoded form of a table metadata
// document (the vN.metadata.json object at the table root).
// Only the fields that scan planning consumes are modeled;
// unknown fields are ignored on decode.
type TableMetadata struct {
	// FormatVersion is the table format version (1 or 2).
	// Versions below [DeleteVersion] cannot carry delete files.
	FormatVersion int `json:"format-version"`
	// UUID identifies the table across renames.
	UUID string `json:"table-uuid,omitempty"`
	// Location is the table root URI. Paths inside
	// manifests are resolved relative to it.
	Location string `json:"location"`
	// LastSequenceNumber is the highest sequence number
	// assigned to a committed snapshot (v2 and later).
	LastSequenceNumber int64 `json:"last-sequence-number,omitempty"`
	// LastUpdatedMS is the commit time of the most
	// recent snapshot, in unix milliseconds.
	LastUpdatedMS int64 `json:"last-updated-ms,omitempty"`
	// Properties holds table configuration such as
	// [WriteFormatKey].
	Properties map[string]string `json:"properties,omitempty"`
	// CurrentSnapshotID is the snapshot that reads see by
	// default, or -1 when the table has no snapshots yet.
	CurrentSnapshotID int64 `json:"current-snapshot-id"`
	// Snapshots is the table's version history.
	Snapshots []Snapshot `json:"snapshots,omitempty"`
	// CurrentSchemaID selects the live entry in Schemas.
	CurrentSchemaID int `json:"current-schema-id"`
	// Schemas is the list of schema versions (v2 layout).
	Schemas []*Schema `json:"schemas,omitempty"`

	// LegacySchema is the single top-level schema written
	// by format version 1 tables.
	LegacySchema *Schema `json:"schema,omitempty"`
}

// DecodeMetadata decodes and validates a table metadata document.
func DecodeMetadata(r io.Reader) (*TableMetadata, error) {
	m := &TableMetadata{CurrentSnapshotID: -1}
	err := json.NewDecoder(r).Decode(m)
	if err != nil {
		return nil, fmt.Errorf("iceberg.DecodeMetadata: %w", err)
	}
	if m.FormatVersion < 1 {
		return nil, fmt.Errorf("iceberg.DecodeMetadata: format-version %d: %w", m.FormatVersion, ErrCorrupt)
	}
	for i := range m.Snapshots {
		if m.Snapshots[i].ManifestList == "" {
			return nil, fmt.Errorf("iceberg.DecodeMetadata: snapshot %d has no manifest-list: %w", m.Snapshots[i].ID, ErrCorrupt)
		}
	}
	if m.CurrentSnapshotID > 0 {
		if _, ok := m.Snapshot(m.CurrentSnapshotID); !ok {
			return nil, fmt.Errorf("iceberg.DecodeMetadata: current-snapshot-id %d not in snapshot list: %w", m.CurrentSnapshotID, ErrCorrupt)
		}
	}
	return m, nil
}

// Encode writes m as a metadata document.
func (m *TableMetadata) Encode(w io.Writer) error {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("iceberg: encoding metadata: %w", err)
	}
	buf = append(buf, '\n')
	_, err = w.Write(buf)
	return err
}

// Snapshot returns the snapshot with the given id, if present.
func (m *TableMetadata) Snapshot(id int64) (*Snapshot, bool) {
	for i := range m.Snapshots {
		if m.Snapshots[i].ID == id {
			return &m.Snapshots[i], true
		}
	}
	return nil, false
}

// Current returns the current snapshot, or false when the
// table has no committed snapshots.
func (m *TableMetadata) Current() (*Snapshot, bool) {
	if m.CurrentSnapshotID <= 0 {
		return nil, false
	}
	return m.Snapshot(m.CurrentSnapshotID)
}

// Schema returns the table's current schema, or nil when the
// metadata carries none.
func (m *TableMetadata) Schema() *Schema {
	for _, s := range m.Schemas {
		if s.ID == m.CurrentSchemaID {
			return s
		}
	}
	return m.LegacySchema
}

// FileFormat returns the default data file format from the
// table properties. See [DefaultFileFormat].
func (m *TableMetadata) FileFormat() (FileFormat, error) {
	return DefaultFileFormat(m.Properties)
}
