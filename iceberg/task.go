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

// Task is a contiguous byte range of one data file that a scan
// must read, plus the delete files whose rows may apply to it.
type Task struct {
	// Path is the data file location as recorded in its manifest.
	Path string
	// Start and Length delimit the byte range of this task.
	Start, Length int64
	// Size is the total size of the data file.
	Size int64
	// Seq is the data sequence number the file was committed at.
	Seq int64
	// Deletes lists the delete files associated with the data
	// file, in manifest order. Sub-tasks produced by [Task.Split]
	// share this slice; callers must treat it as read-only.
	Deletes []Delete
}

// Delete describes one delete file associated with a task.
type Delete struct {
	// Path is the delete file location.
	Path string
	// Content is ContentPosDelete or ContentEqDelete.
	Content int
	// Seq is the delete file's data sequence number.
	Seq int64
	// Lower and Upper are the column bound maps from the delete
	// file's manifest entry, keyed by field id. For position
	// delete files the entry under [PosFieldID] bounds the
	// deleted row positions.
	Lower, Upper map[int][]byte
	// FieldIDs are the equality field ids of an equality
	// delete file.
	FieldIDs []int
}

// Split tiles the task into contiguous sub-tasks of at most
// chunk bytes. The tiles cover exactly the original range in
// order: lengths sum to t.Length, no gaps, no overlap, and only
// the final tile may be short. chunk <= 0 or a range already
// within chunk returns the task as-is.
func (t *Task) Split(chunk int64) []Task {
	if chunk <= 0 || t.Length <= chunk {
		return []Task{*t}
	}
	// the capacity is a hint; t.Length comes straight from a
	// manifest and must not size an allocation unchecked
	hint := t.Length / chunk
	if hint > 1024 {
		hint = 1024
	}
	out := make([]Task, 0, hint+1)
	off, rem := t.Start, t.Length
	for rem > 0 {
		n := chunk
		if rem < n {
			n = rem
		}
		sub := *t
		sub.Start = off
		sub.Length = n
		out = append(out, sub)
		off += n
		rem -= n
	}
	return out
}
