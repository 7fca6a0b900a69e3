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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"reflect"
	"testing"

	"github.com/SnellerInc/floe/iceberg"
)

func i64(x int64) *int64 { return &x }

func longBound(x int64) []byte {
	return iceberg.EncodeBound(iceberg.Long(x))
}

// writeManifest writes entries as a manifest under the table's
// metadata directory and returns its manifest list entry.
func writeManifest(t *testing.T, dfs *DirFS, root, name string, content int, seq int64, ents []iceberg.ManifestEntry) iceberg.ManifestFile {
	t.Helper()
	var buf bytes.Buffer
	if err := iceberg.WriteManifest(&buf, ents); err != nil {
		t.Fatal(err)
	}
	p := path.Join(root, "metadata", name)
	if _, err := dfs.WriteFile(p, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	return iceberg.ManifestFile{
		Path:    "s3://lake/" + root + "/metadata/" + name,
		Length:  int64(buf.Len()),
		Content: content,
		Seq:     seq,
		MinSeq:  seq,
		AddedBy: 7702,
	}
}

func writeList(t *testing.T, dfs *DirFS, root string, snap int64, files []iceberg.ManifestFile) {
	t.Helper()
	var buf bytes.Buffer
	if err := iceberg.WriteManifestList(&buf, files); err != nil {
		t.Fatal(err)
	}
	p := path.Join(root, "metadata", fmt.Sprintf("snap-%d.avro", snap))
	if _, err := dfs.WriteFile(p, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
}

// scanFixture builds a v2 table with three live data files and
// three delete files spread over four manifests:
//
//	f0.parquet  seq 1  300 bytes  id in [10,100]
//	f1.parquet  seq 1   50 bytes  id in [200,300]
//	f2.parquet  seq 3  100 bytes  no stats
//	pd0         seq 2  position delete, rows [0,49]
//	pd1         seq 3  position delete, no bounds
//	ed0         seq 3  equality delete on (id)
func scanFixture(t *testing.T) *Table {
	t.Helper()
	dfs := NewDirFS(t.TempDir())
	const root = "wh/logs"
	loc := func(name string) string { return "s3://lake/" + root + "/data/" + name }

	m0 := writeManifest(t, dfs, root, "m0.avro", iceberg.ManifestData, 1, []iceberg.ManifestEntry{
		{Status: iceberg.StatusAdded, SnapshotID: i64(3301), File: iceberg.DataFile{
			Content: iceberg.ContentData,
			Path:    loc("f0.parquet"),
			Format:  "PARQUET",
			Records: 100,
			Size:    300,
			Lower:   map[int][]byte{1: longBound(10)},
			Upper:   map[int][]byte{1: longBound(100)},
		}},
		{Status: iceberg.StatusAdded, SnapshotID: i64(3301), File: iceberg.DataFile{
			Content: iceberg.ContentData,
			Path:    loc("f1.parquet"),
			Format:  "PARQUET",
			Records: 40,
			Size:    50,
			Lower:   map[int][]byte{1: longBound(200)},
			Upper:   map[int][]byte{1: longBound(300)},
		}},
		{Status: iceberg.StatusDeleted, SnapshotID: i64(7702), File: iceberg.DataFile{
			Content: iceberg.ContentData,
			Path:    loc("gone.parquet"),
			Format:  "PARQUET",
			Size:    512,
		}},
	})
	m1 := writeManifest(t, dfs, root, "m1.avro", iceberg.ManifestData, 3, []iceberg.ManifestEntry{
		{Status: iceberg.StatusAdded, SnapshotID: i64(7702), Seq: i64(3), File: iceberg.DataFile{
			Content: iceberg.ContentData,
			Path:    loc("f2.parquet"),
			Format:  "PARQUET",
			Records: 33,
			Size:    100,
		}},
	})
	m2 := writeManifest(t, dfs, root, "m2.avro", iceberg.ManifestDeletes, 2, []iceberg.ManifestEntry{
		{Status: iceberg.StatusAdded, SnapshotID: i64(7702), File: iceberg.DataFile{
			Content: iceberg.ContentPosDelete,
			Path:    loc("pd0.parquet"),
			Format:  "PARQUET",
			Records: 50,
			Size:    80,
			Lower:   map[int][]byte{iceberg.PosFieldID: iceberg.EncodePos(0)},
			Upper:   map[int][]byte{iceberg.PosFieldID: iceberg.EncodePos(49)},
		}},
	})
	m3 := writeManifest(t, dfs, root, "m3.avro", iceberg.ManifestDeletes, 3, []iceberg.ManifestEntry{
		{Status: iceberg.StatusAdded, SnapshotID: i64(7702), File: iceberg.DataFile{
			Content: iceberg.ContentPosDelete,
			Path:    loc("pd1.parquet"),
			Format:  "PARQUET",
			Records: 7,
			Size:    60,
		}},
		{Status: iceberg.StatusAdded, SnapshotID: i64(7702), File: iceberg.DataFile{
			Content:     iceberg.ContentEqDelete,
			Path:        loc("ed0.parquet"),
			Format:      "PARQUET",
			Records:     3,
			Size:        44,
			EqualityIDs: []int{1},
		}},
	})
	writeList(t, dfs, root, 7702, []iceberg.ManifestFile{m0, m1, m2, m3})

	mp := writeMeta(t, dfs, root, 4, testMeta(root))
	tbl, err := OpenMetadata(dfs, mp)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestScan(t *testing.T) {
	tbl := scanFixture(t)
	tasks, err := tbl.Scan(context.Background(), 7702, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks: %+v", len(tasks), tasks)
	}
	type want struct {
		path    string
		size    int64
		seq     int64
		deletes []string
	}
	wants := []want{
		{"f0.parquet", 300, 1, []string{"pd0.parquet", "pd1.parquet", "ed0.parquet"}},
		{"f1.parquet", 50, 1, []string{"pd0.parquet", "pd1.parquet", "ed0.parquet"}},
		// pd0 (seq 2) precedes f2 (seq 3); ed0 (seq 3) does not
		// strictly follow it; only pd1 applies
		{"f2.parquet", 100, 3, []string{"pd1.parquet"}},
	}
	for i := range wants {
		task := &tasks[i]
		if path.Base(task.Path) != wants[i].path {
			t.Errorf("task %d: path %s", i, task.Path)
		}
		if task.Start != 0 || task.Length != wants[i].size || task.Size != wants[i].size {
			t.Errorf("task %d: range [%d,%d) of %d", i, task.Start, task.Start+task.Length, task.Size)
		}
		if task.Seq != wants[i].seq {
			t.Errorf("task %d: seq %d", i, task.Seq)
		}
		var got []string
		for j := range task.Deletes {
			got = append(got, path.Base(task.Deletes[j].Path))
		}
		if !reflect.DeepEqual(got, wants[i].deletes) {
			t.Errorf("task %d: deletes %v, want %v", i, got, wants[i].deletes)
		}
	}
	// pd0's row-position bounds survive the trip through the manifest
	pd0 := &tasks[0].Deletes[0]
	if pd0.Content != iceberg.ContentPosDelete {
		t.Fatalf("pd0 content %d", pd0.Content)
	}
	lo, err := iceberg.DecodePos(pd0.Lower[iceberg.PosFieldID])
	if err != nil || lo != 0 {
		t.Errorf("pd0 lower bound %d, %v", lo, err)
	}
	hi, err := iceberg.DecodePos(pd0.Upper[iceberg.PosFieldID])
	if err != nil || hi != 49 {
		t.Errorf("pd0 upper bound %d, %v", hi, err)
	}
	// pd1 recorded no bounds, so none may appear
	pd1 := &tasks[0].Deletes[1]
	if _, ok := pd1.Lower[iceberg.PosFieldID]; ok {
		t.Error("pd1 grew a lower bound")
	}
	if _, ok := pd1.Upper[iceberg.PosFieldID]; ok {
		t.Error("pd1 grew an upper bound")
	}
	ed0 := &tasks[0].Deletes[2]
	if ed0.Content != iceberg.ContentEqDelete || !reflect.DeepEqual(ed0.FieldIDs, []int{1}) {
		t.Errorf("ed0 content %d field ids %v", ed0.Content, ed0.FieldIDs)
	}
}

func TestScanChunked(t *testing.T) {
	tbl := scanFixture(t)
	tasks, err := tbl.Scan(context.Background(), 7702, nil, 128)
	if err != nil {
		t.Fatal(err)
	}
	// f0 tiles into 128+128+44; f1 and f2 stay whole
	if len(tasks) != 5 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	var ranges [][2]int64
	for i := range tasks[:3] {
		if path.Base(tasks[i].Path) != "f0.parquet" {
			t.Fatalf("task %d: path %s", i, tasks[i].Path)
		}
		if len(tasks[i].Deletes) != 3 {
			t.Errorf("task %d: %d deletes", i, len(tasks[i].Deletes))
		}
		ranges = append(ranges, [2]int64{tasks[i].Start, tasks[i].Length})
	}
	want := [][2]int64{{0, 128}, {128, 128}, {256, 44}}
	if !reflect.DeepEqual(ranges, want) {
		t.Errorf("f0 tiles %v, want %v", ranges, want)
	}
	if tasks[3].Length != 50 || tasks[4].Length != 100 {
		t.Errorf("tail tasks %+v", tasks[3:])
	}
	// the configured chunk is used when the caller passes none
	tbl.Conf.Chunk = 128
	conf, err := tbl.Scan(context.Background(), 7702, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(conf, tasks) {
		t.Error("configured chunk size ignored")
	}
}

func TestScanPruning(t *testing.T) {
	tbl := scanFixture(t)
	// id > 150 rules out f0 (upper bound 100) but cannot rule
	// out f1 (up to 300) or f2 (no stats recorded)
	where := []iceberg.Expr{
		&iceberg.Cmp{Op: iceberg.OpGt, Field: 1, Type: iceberg.TypeLong, Value: iceberg.Long(150)},
	}
	tasks, err := tbl.Scan(context.Background(), 7702, where, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks: %+v", len(tasks), tasks)
	}
	if path.Base(tasks[0].Path) != "f1.parquet" || path.Base(tasks[1].Path) != "f2.parquet" {
		t.Errorf("kept %s, %s", tasks[0].Path, tasks[1].Path)
	}
}

func TestScanDeterministic(t *testing.T) {
	tbl := scanFixture(t)
	first, err := tbl.Scan(context.Background(), 7702, nil, 64)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := tbl.Scan(context.Background(), 7702, nil, 64)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("scan %d differed", i)
		}
	}
}

func TestScanMissingSnapshot(t *testing.T) {
	tbl := scanFixture(t)
	_, err := tbl.Scan(context.Background(), 999, nil, 0)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want fs.ErrNotExist", err)
	}
}

func TestScanMissingManifest(t *testing.T) {
	dfs := NewDirFS(t.TempDir())
	const root = "wh/broken"
	writeList(t, dfs, root, 7702, []iceberg.ManifestFile{{
		Path:    "s3://lake/" + root + "/metadata/vanished.avro",
		Content: iceberg.ManifestData,
		Seq:     1,
	}})
	mp := writeMeta(t, dfs, root, 1, testMeta(root))
	tbl, err := OpenMetadata(dfs, mp)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Scan(context.Background(), 7702, nil, 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want fs.ErrNotExist", err)
	}
}

func TestScanBadManifestContent(t *testing.T) {
	dfs := NewDirFS(t.TempDir())
	const root = "wh/odd"
	mf := writeManifest(t, dfs, root, "m0.avro", iceberg.ManifestData, 1, []iceberg.ManifestEntry{
		{Status: iceberg.StatusAdded, File: iceberg.DataFile{
			Content: iceberg.ContentData,
			Path:    "s3://lake/" + root + "/data/f0.parquet",
			Format:  "PARQUET",
			Size:    10,
		}},
	})
	mf.Content = 7
	writeList(t, dfs, root, 7702, []iceberg.ManifestFile{mf})
	mp := writeMeta(t, dfs, root, 1, testMeta(root))
	tbl, err := OpenMetadata(dfs, mp)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Scan(context.Background(), 7702, nil, 0); !errors.Is(err, iceberg.ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestScanNegativeFileSize(t *testing.T) {
	dfs := NewDirFS(t.TempDir())
	const root = "wh/neg"
	mf := writeManifest(t, dfs, root, "m0.avro", iceberg.ManifestData, 1, []iceberg.ManifestEntry{
		{Status: iceberg.StatusAdded, File: iceberg.DataFile{
			Content: iceberg.ContentData,
			Path:    "s3://lake/" + root + "/data/f0.parquet",
			Format:  "PARQUET",
			Size:    -300,
		}},
	})
	writeList(t, dfs, root, 7702, []iceberg.ManifestFile{mf})
	mp := writeMeta(t, dfs, root, 1, testMeta(root))
	tbl, err := OpenMetadata(dfs, mp)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Scan(context.Background(), 7702, nil, 0); !errors.Is(err, iceberg.ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestScanCancelled(t *testing.T) {
	tbl := scanFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tbl.Scan(ctx, 7702, nil, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
