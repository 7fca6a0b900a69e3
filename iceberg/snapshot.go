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
	"time"
)

// Snapshot is one entry in a table's version history.
type Snapshot struct {
	// ID is the snapshot id referenced by selectors
	// and by manifest entries.
	ID int64 `json:"snapshot-id"`
	// ParentID is the snapshot this one was committed
	// on top of, if any.
	ParentID *int64 `json:"parent-snapshot-id,omitempty"`
	// SequenceNumber orders commits for delete file
	// association (v2 and later; zero for v1 tables).
	SequenceNumber int64 `json:"sequence-number,omitempty"`
	// TimestampMS is the commit time in unix milliseconds.
	TimestampMS int64 `json:"timestamp-ms"`
	// ManifestList is the location of the snapshot's
	// manifest list file.
	ManifestList string `json:"manifest-list"`
	// Summary carries operation metadata ("append",
	// "overwrite", ...); planning ignores it.
	Summary map[string]string `json:"summary,omitempty"`
	// SchemaID is the schema the snapshot was written with.
	SchemaID *int `json:"schema-id,omitempty"`
}

// SnapshotAsOf returns the id of the most recent snapshot
// committed at or before the given unix-millisecond time.
// The whole history is scanned; entries need not be sorted.
// When two snapshots carry the same commit time, the one
// that appears first in hist wins, so the result is stable
// for a fixed history. If no snapshot qualifies, the error
// wraps [ErrNoSnapshot] and names the requested time.
func SnapshotAsOf(hist []Snapshot, ms int64) (int64, error) {
	var best *Snapshot
	for i := range hist {
		if hist[i].TimestampMS > ms {
			continue
		}
		if best == nil || hist[i].TimestampMS > best.TimestampMS {
			best = &hist[i]
		}
	}
	if best == nil {
		return 0, fmt.Errorf("iceberg.SnapshotAsOf: %w at or before %s",
			ErrNoSnapshot, time.UnixMilli(ms).UTC().Format(time.RFC3339))
	}
	return best.ID, nil
}

// asOfLayouts are the timestamp spellings accepted by [ParseAsOf],
// tried in order.
var asOfLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseAsOf parses an ISO-style timestamp string into unix
// milliseconds for use with [SnapshotAsOf]. Strings without an
// explicit zone are interpreted in loc; a nil loc means UTC.
func ParseAsOf(s string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range asOfLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("iceberg.ParseAsOf: cannot parse %q as a timestamp", s)
}
