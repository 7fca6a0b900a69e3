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

package plan

import (
	"github.com/SnellerInc/floe/iceberg"
)

// FormatTag names the table format family of every split this
// package plans. An execution layer that consumes plans for
// several table formats dispatches on it; [Decode] rejects
// frames tagged with anything else.
const FormatTag = "iceberg"

// Split is one unit of scan work: a byte range of one data
// file plus the delete files to apply while reading it.
type Split struct {
	// Path is the data file location as recorded in the
	// table metadata.
	Path string
	// Start and Length delimit the byte range to scan.
	Start, Length int64
	// Hosts lists preferred executors for the range. This
	// planner has no locality information, so it is always
	// empty; the field stays on the wire for executors
	// that schedule by placement.
	Hosts []string
	// FormatVersion is the table format version the split
	// was planned from. Every split of one plan agrees.
	FormatVersion int
	// Deletes are the delete files that apply to the data
	// file, in commit order.
	Deletes []DeleteFilter
}

// DeleteFilter instructs an executor to drop the rows named
// by a delete file while scanning a split.
type DeleteFilter struct {
	// Kind is iceberg.ContentPosDelete or
	// iceberg.ContentEqDelete.
	Kind int
	// Path is the delete file location.
	Path string
	// Lower and Upper bound the deleted row positions
	// (inclusive) when the delete file's metadata recorded
	// them; an executor may skip the file outside these
	// positions. nil means the bound is not known, which
	// is different from a bound of zero.
	Lower, Upper *int64
	// FieldIDs are the equality field ids of an equality
	// delete file.
	FieldIDs []int
}

// Content reports the content id an executor should treat the
// split as: iceberg.ContentData for a plain scan, otherwise
// the kind of the most recent delete filter.
func (s *Split) Content() int {
	if s.FormatVersion < iceberg.DeleteVersion || len(s.Deletes) == 0 {
		return iceberg.ContentData
	}
	return s.Deletes[len(s.Deletes)-1].Kind
}
