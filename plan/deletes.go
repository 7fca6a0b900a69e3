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
	"fmt"

	"github.com/SnellerInc/floe/iceberg"
)

// deleteFilters resolves the delete files associated with one
// scan task into executor filters.
//
// Position delete files translate directly; their row-position
// bounds are carried over only when the file's metadata
// recorded them. Equality deletes fail the plan with
// ErrEqualityDeletes, and unrecognized content ids indicate
// corrupt metadata.
func deleteFilters(t *iceberg.Task) ([]DeleteFilter, error) {
	if len(t.Deletes) == 0 {
		return nil, nil
	}
	out := make([]DeleteFilter, 0, len(t.Deletes))
	for i := range t.Deletes {
		d := &t.Deletes[i]
		switch d.Content {
		case iceberg.ContentPosDelete:
			f := DeleteFilter{Kind: d.Content, Path: d.Path}
			if buf, ok := d.Lower[iceberg.PosFieldID]; ok {
				lo, err := iceberg.DecodePos(buf)
				if err != nil {
					return nil, fmt.Errorf("plan: delete file %s: lower bound: %w", d.Path, err)
				}
				f.Lower = &lo
			}
			if buf, ok := d.Upper[iceberg.PosFieldID]; ok {
				hi, err := iceberg.DecodePos(buf)
				if err != nil {
					return nil, fmt.Errorf("plan: delete file %s: upper bound: %w", d.Path, err)
				}
				f.Upper = &hi
			}
			out = append(out, f)
		case iceberg.ContentEqDelete:
			return nil, fmt.Errorf("plan: delete file %s: %w", d.Path, ErrEqualityDeletes)
		default:
			return nil, fmt.Errorf("plan: delete file %s has content %d: %w",
				d.Path, d.Content, iceberg.ErrCorrupt)
		}
	}
	return out, nil
}
