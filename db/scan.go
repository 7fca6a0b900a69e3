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

package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/SnellerInc/floe/iceberg"

	"golang.org/x/sync/errgroup"
)

// Scan plans the read work for one snapshot of the table.
//
// The returned tasks cover every live data file in the snapshot
// that the pushed-down predicates cannot rule out, tiled into
// byte ranges of at most chunk bytes; chunk <= 0 falls back to
// the configured chunk size, and zero for both leaves files
// whole. Delete files are associated with each data file by
// sequence number: position deletes apply at or after the data
// file's sequence number, equality deletes strictly after it.
//
// Tasks come back in manifest order, then entry order, then
// range order, so identical table state yields identical output.
// Scan either returns the complete task list or an error; it
// never returns a partial plan.
func (t *Table) Scan(ctx context.Context, snapID int64, where []iceberg.Expr, chunk int64) ([]iceberg.Task, error) {
	snap, ok := t.meta.Snapshot(snapID)
	if !ok {
		return nil, fmt.Errorf("db.Scan: snapshot %d: %w", snapID, fs.ErrNotExist)
	}
	if chunk <= 0 {
		chunk = t.Conf.Chunk
	}
	f, err := t.open(snap.ManifestList)
	if err != nil {
		return nil, fmt.Errorf("db.Scan: manifest list of snapshot %d: %w", snapID, err)
	}
	list, err := iceberg.ReadManifestList(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("db.Scan: snapshot %d: %w", snapID, err)
	}

	// fetch and decode manifests concurrently, but slot the
	// results by manifest list position so that output order
	// does not depend on scheduling
	ents := make([][]iceberg.ManifestEntry, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.Conf.fanout())
	for i := range list {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := t.open(list[i].Path)
			if err != nil {
				return fmt.Errorf("manifest %s: %w", list[i].Path, err)
			}
			defer f.Close()
			ents[i], err = iceberg.ReadManifest(f)
			if err != nil {
				return fmt.Errorf("manifest %s: %w", list[i].Path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("db.Scan: snapshot %d: %w", snapID, err)
	}

	type dataFile struct {
		file *iceberg.DataFile
		seq  int64
	}
	var files []dataFile
	var dels []iceberg.Delete
	pruned := 0
	for i := range list {
		m := &list[i]
		for j := range ents[i] {
			e := &ents[i][j]
			if e.Status == iceberg.StatusDeleted {
				continue
			}
			// entries without an explicit sequence number
			// inherit the manifest's
			seq := m.Seq
			if e.Seq != nil {
				seq = *e.Seq
			}
			switch m.Content {
			case iceberg.ManifestData:
				if e.File.Size < 0 {
					return nil, fmt.Errorf("db.Scan: data file %s has size %d: %w", e.File.Path, e.File.Size, iceberg.ErrCorrupt)
				}
				if !iceberg.MightMatchAll(where, e.File.Stats()) {
					pruned++
					continue
				}
				files = append(files, dataFile{file: &e.File, seq: seq})
			case iceberg.ManifestDeletes:
				dels = append(dels, iceberg.Delete{
					Path:     e.File.Path,
					Content:  e.File.Content,
					Seq:      seq,
					Lower:    e.File.Lower,
					Upper:    e.File.Upper,
					FieldIDs: e.File.EqualityIDs,
				})
			default:
				return nil, fmt.Errorf("db.Scan: manifest %s has content %d: %w", m.Path, m.Content, iceberg.ErrCorrupt)
			}
		}
	}
	if pruned > 0 {
		t.logf("scan: snapshot %d: stats pruned %d of %d data files", snapID, pruned, pruned+len(files))
	}

	var out []iceberg.Task
	for i := range files {
		f := files[i]
		var match []iceberg.Delete
		for j := range dels {
			d := &dels[j]
			// equality deletes apply strictly after the data
			// commit; everything else (position deletes and
			// unrecognized kinds, which the planner rejects)
			// applies at or after it
			if d.Content == iceberg.ContentEqDelete {
				if d.Seq > f.seq {
					match = append(match, *d)
				}
			} else if d.Seq >= f.seq {
				match = append(match, *d)
			}
		}
		task := iceberg.Task{
			Path:    f.file.Path,
			Start:   0,
			Length:  f.file.Size,
			Size:    f.file.Size,
			Seq:     f.seq,
			Deletes: match,
		}
		out = append(out, task.Split(chunk)...)
	}
	t.logf("scan: snapshot %d: %d tasks over %d data files, %d delete files",
		snapID, len(out), len(files), len(dels))
	return out, nil
}
