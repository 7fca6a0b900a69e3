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
	"io"
	"slices"

	"github.com/linkedin/goavro/v2"
)

// manifestListSchema is the Avro schema for manifest list files
// (format version 2). Readers do not depend on it: object
// container files embed the schema they were written with, and
// decoding extracts fields by name.
const manifestListSchema = `
{
  "type": "record",
  "name": "manifest_file",
  "fields": [
    { "name": "manifest_path", "type": "string", "field-id": 500 },
    { "name": "manifest_length", "type": "long", "field-id": 501 },
    { "name": "partition_spec_id", "type": "int", "field-id": 502 },
    { "name": "content", "type": "int", "field-id": 517, "default": 0 },
    { "name": "sequence_number", "type": "long", "field-id": 515 },
    { "name": "min_sequence_number", "type": "long", "field-id": 516 },
    { "name": "added_snapshot_id", "type": "long", "field-id": 503 }
  ]
}
`

// manifestEntrySchema is the Avro schema for manifest files
// (format version 2, unpartitioned spec). Column stats maps are
// spelled as key/value record arrays, the way the format stores
// int-keyed maps.
const manifestEntrySchema = `
{
  "type": "record",
  "name": "manifest_entry",
  "fields": [
    { "name": "status", "type": "int", "field-id": 0 },
    { "name": "snapshot_id", "type": ["null", "long"], "default": null, "field-id": 1 },
    { "name": "sequence_number", "type": ["null", "long"], "default": null, "field-id": 3 },
    { "name": "file_sequence_number", "type": ["null", "long"], "default": null, "field-id": 4 },
    {
      "name": "data_file",
      "field-id": 2,
      "type": {
        "type": "record",
        "name": "r2",
        "fields": [
          { "name": "content", "type": "int", "field-id": 134, "default": 0 },
          { "name": "file_path", "type": "string", "field-id": 100 },
          { "name": "file_format", "type": "string", "field-id": 101 },
          { "name": "partition", "field-id": 102, "type": { "type": "record", "name": "r102", "fields": [] } },
          { "name": "record_count", "type": "long", "field-id": 103 },
          { "name": "file_size_in_bytes", "type": "long", "field-id": 104 },
          { "name": "value_counts", "type": ["null", { "type": "array", "items": {
              "type": "record", "name": "k119_v120", "fields": [
                { "name": "key", "type": "int", "field-id": 119 },
                { "name": "value", "type": "long", "field-id": 120 }
              ] }, "logicalType": "map" }], "default": null, "field-id": 109 },
          { "name": "null_value_counts", "type": ["null", { "type": "array", "items": {
              "type": "record", "name": "k121_v122", "fields": [
                { "name": "key", "type": "int", "field-id": 121 },
                { "name": "value", "type": "long", "field-id": 122 }
              ] }, "logicalType": "map" }], "default": null, "field-id": 110 },
          { "name": "lower_bounds", "type": ["null", { "type": "array", "items": {
              "type": "record", "name": "k126_v127", "fields": [
                { "name": "key", "type": "int", "field-id": 126 },
                { "name": "value", "type": "bytes", "field-id": 127 }
              ] }, "logicalType": "map" }], "default": null, "field-id": 125 },
          { "name": "upper_bounds", "type": ["null", { "type": "array", "items": {
              "type": "record", "name": "k129_v130", "fields": [
                { "name": "key", "type": "int", "field-id": 129 },
                { "name": "value", "type": "bytes", "field-id": 130 }
              ] }, "logicalType": "map" }], "default": null, "field-id": 128 },
          { "name": "split_offsets", "type": ["null", { "type": "array", "items": "long", "element-id": 133 }], "default": null, "field-id": 132 },
          { "name": "equality_ids", "type": ["null", { "type": "array", "items": "int", "element-id": 136 }], "default": null, "field-id": 135 },
          { "name": "sort_order_id", "type": ["null", "int"], "default": null, "field-id": 140 }
        ]
      }
    }
  ]
}
`

// ManifestFile is one entry of a snapshot's manifest list.
type ManifestFile struct {
	// Path is the manifest file location.
	Path string
	// Length is the manifest file size in bytes.
	Length int64
	// SpecID is the partition spec the manifest was written with.
	SpecID int
	// Content is ManifestData or ManifestDeletes.
	Content int
	// Seq is the sequence number the manifest was committed at.
	// Entries with a null sequence number inherit it.
	Seq int64
	// MinSeq is the lowest data sequence number in the manifest.
	MinSeq int64
	// AddedBy is the id of the snapshot that added the manifest.
	AddedBy int64
}

// ManifestEntry is one file entry inside a manifest.
type ManifestEntry struct {
	// Status is StatusExisting, StatusAdded or StatusDeleted.
	Status int
	// SnapshotID is the snapshot that added or last changed
	// the entry; nil means it is inherited.
	SnapshotID *int64
	// Seq is the entry's data sequence number; nil means it is
	// inherited from the containing manifest.
	Seq *int64
	// FileSeq is the entry's file sequence number, if recorded.
	FileSeq *int64
	// File is the tracked data or delete file.
	File DataFile
}

// DataFile describes a data file or a delete file tracked by a
// manifest.
type DataFile struct {
	// Content is ContentData, ContentPosDelete or ContentEqDelete.
	Content int
	// Path is the file location.
	Path string
	// Format is the file format name ("PARQUET", "ORC", ...).
	Format string
	// Records is the row count.
	Records int64
	// Size is the file size in bytes.
	Size int64
	// ValueCounts, NullCounts, Lower and Upper are per-column
	// stats keyed by field id; any may be nil.
	ValueCounts map[int]int64
	NullCounts  map[int]int64
	Lower       map[int][]byte
	Upper       map[int][]byte
	// SplitOffsets are recommended split points, if recorded.
	SplitOffsets []int64
	// EqualityIDs are the equality field ids of an equality
	// delete file.
	EqualityIDs []int
	// SortOrder is the sort order id, if recorded.
	SortOrder *int
}

// Stats bundles the file's pruning statistics.
func (f *DataFile) Stats() *Stats {
	return &Stats{
		Records:     f.Records,
		ValueCounts: f.ValueCounts,
		NullCounts:  f.NullCounts,
		Lower:       f.Lower,
		Upper:       f.Upper,
	}
}

// ReadManifestList decodes a manifest list file.
func ReadManifestList(r io.Reader) ([]ManifestFile, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("iceberg.ReadManifestList: %w", err)
	}
	var out []ManifestFile
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, fmt.Errorf("iceberg.ReadManifestList: %w", err)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("iceberg.ReadManifestList: %T datum: %w", datum, ErrCorrupt)
		}
		mf := ManifestFile{
			Path:    nativeString(rec, "manifest_path"),
			Length:  nativeInt(rec, "manifest_length"),
			SpecID:  int(nativeInt(rec, "partition_spec_id")),
			Content: int(nativeInt(rec, "content")),
			Seq:     nativeInt(rec, "sequence_number"),
			MinSeq:  nativeInt(rec, "min_sequence_number"),
			AddedBy: nativeInt(rec, "added_snapshot_id"),
		}
		if mf.Path == "" {
			return nil, fmt.Errorf("iceberg.ReadManifestList: entry has no manifest_path: %w", ErrCorrupt)
		}
		out = append(out, mf)
	}
	if err := ocfr.Err(); err != nil {
		return nil, fmt.Errorf("iceberg.ReadManifestList: %w", err)
	}
	return out, nil
}

// WriteManifestList encodes files as a manifest list.
func WriteManifestList(w io.Writer, files []ManifestFile) error {
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:      w,
		Schema: manifestListSchema,
	})
	if err != nil {
		return fmt.Errorf("iceberg.WriteManifestList: %w", err)
	}
	recs := make([]interface{}, 0, len(files))
	for i := range files {
		f := &files[i]
		recs = append(recs, map[string]interface{}{
			"manifest_path":       f.Path,
			"manifest_length":     f.Length,
			"partition_spec_id":   int32(f.SpecID),
			"content":             int32(f.Content),
			"sequence_number":     f.Seq,
			"min_sequence_number": f.MinSeq,
			"added_snapshot_id":   f.AddedBy,
		})
	}
	if err := ocfw.Append(recs); err != nil {
		return fmt.Errorf("iceberg.WriteManifestList: %w", err)
	}
	return nil
}

// ReadManifest decodes the entries of one manifest file.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("iceberg.ReadManifest: %w", err)
	}
	var out []ManifestEntry
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, fmt.Errorf("iceberg.ReadManifest: %w", err)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("iceberg.ReadManifest: %T datum: %w", datum, ErrCorrupt)
		}
		e := ManifestEntry{
			Status:     int(nativeInt(rec, "status")),
			SnapshotID: nativeOptLong(rec, "snapshot_id"),
			Seq:        nativeOptLong(rec, "sequence_number"),
			FileSeq:    nativeOptLong(rec, "file_sequence_number"),
		}
		df, ok := rec["data_file"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("iceberg.ReadManifest: entry has no data_file record: %w", ErrCorrupt)
		}
		e.File = DataFile{
			Content:      int(nativeInt(df, "content")),
			Path:         nativeString(df, "file_path"),
			Format:       nativeString(df, "file_format"),
			Records:      nativeInt(df, "record_count"),
			Size:         nativeInt(df, "file_size_in_bytes"),
			ValueCounts:  nativeLongMap(df["value_counts"]),
			NullCounts:   nativeLongMap(df["null_value_counts"]),
			Lower:        nativeBytesMap(df["lower_bounds"]),
			Upper:        nativeBytesMap(df["upper_bounds"]),
			SplitOffsets: nativeLongs(df["split_offsets"]),
			EqualityIDs:  nativeInts(df["equality_ids"]),
		}
		if v := nativeOptLong(df, "sort_order_id"); v != nil {
			so := int(*v)
			e.File.SortOrder = &so
		}
		if e.File.Path == "" {
			return nil, fmt.Errorf("iceberg.ReadManifest: entry has no file_path: %w", ErrCorrupt)
		}
		out = append(out, e)
	}
	if err := ocfr.Err(); err != nil {
		return nil, fmt.Errorf("iceberg.ReadManifest: %w", err)
	}
	return out, nil
}

// WriteManifest encodes entries as a manifest file.
func WriteManifest(w io.Writer, entries []ManifestEntry) error {
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:      w,
		Schema: manifestEntrySchema,
	})
	if err != nil {
		return fmt.Errorf("iceberg.WriteManifest: %w", err)
	}
	recs := make([]interface{}, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		f := &e.File
		df := map[string]interface{}{
			"content":            int32(f.Content),
			"file_path":          f.Path,
			"file_format":        f.Format,
			"partition":          map[string]interface{}{},
			"record_count":       f.Records,
			"file_size_in_bytes": f.Size,
			"value_counts":       unionLongMap(f.ValueCounts),
			"null_value_counts":  unionLongMap(f.NullCounts),
			"lower_bounds":       unionBytesMap(f.Lower),
			"upper_bounds":       unionBytesMap(f.Upper),
			"split_offsets":      unionLongs(f.SplitOffsets),
			"equality_ids":       unionInts(f.EqualityIDs),
			"sort_order_id":      nil,
		}
		if f.SortOrder != nil {
			df["sort_order_id"] = map[string]interface{}{"int": int32(*f.SortOrder)}
		}
		recs = append(recs, map[string]interface{}{
			"status":               int32(e.Status),
			"snapshot_id":          unionLong(e.SnapshotID),
			"sequence_number":      unionLong(e.Seq),
			"file_sequence_number": unionLong(e.FileSeq),
			"data_file":            df,
		})
	}
	if err := ocfw.Append(recs); err != nil {
		return fmt.Errorf("iceberg.WriteManifest: %w", err)
	}
	return nil
}

// native decoding helpers: goavro hands back records as
// map[string]interface{}, ints as int32, longs as int64 and
// unions as nil or a single-entry map keyed by the branch name.

func nativeString(m map[string]interface{}, name string) string {
	s, _ := m[name].(string)
	return s
}

func nativeInt(m map[string]interface{}, name string) int64 {
	switch v := m[name].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// unwrap strips the union branch wrapper, if present.
func unwrap(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok && len(m) == 1 {
		for _, inner := range m {
			return inner
		}
	}
	return v
}

func nativeOptLong(m map[string]interface{}, name string) *int64 {
	switch v := unwrap(m[name]).(type) {
	case int64:
		return &v
	case int32:
		x := int64(v)
		return &x
	default:
		return nil
	}
}

func nativeLongMap(v interface{}) map[int]int64 {
	arr, ok := unwrap(v).([]interface{})
	if !ok || len(arr) == 0 {
		return nil
	}
	out := make(map[int]int64, len(arr))
	for _, el := range arr {
		kv, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		out[int(nativeInt(kv, "key"))] = nativeInt(kv, "value")
	}
	return out
}

func nativeBytesMap(v interface{}) map[int][]byte {
	arr, ok := unwrap(v).([]interface{})
	if !ok || len(arr) == 0 {
		return nil
	}
	out := make(map[int][]byte, len(arr))
	for _, el := range arr {
		kv, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		buf, _ := kv["value"].([]byte)
		out[int(nativeInt(kv, "key"))] = buf
	}
	return out
}

func nativeLongs(v interface{}) []int64 {
	arr, ok := unwrap(v).([]interface{})
	if !ok || len(arr) == 0 {
		return nil
	}
	out := make([]int64, 0, len(arr))
	for _, el := range arr {
		switch x := el.(type) {
		case int64:
			out = append(out, x)
		case int32:
			out = append(out, int64(x))
		}
	}
	return out
}

func nativeInts(v interface{}) []int {
	longs := nativeLongs(v)
	if longs == nil {
		return nil
	}
	out := make([]int, len(longs))
	for i, x := range longs {
		out[i] = int(x)
	}
	return out
}

// union encoding helpers: optional fields encode as nil or a
// single-entry map naming the chosen branch. Map contents are
// emitted in sorted key order so that encoding is reproducible.

func unionLong(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return map[string]interface{}{"long": *v}
}

func unionLongMap(m map[int]int64) interface{} {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	arr := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		arr = append(arr, map[string]interface{}{
			"key":   int32(k),
			"value": m[k],
		})
	}
	return map[string]interface{}{"array": arr}
}

func unionBytesMap(m map[int][]byte) interface{} {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	arr := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		arr = append(arr, map[string]interface{}{
			"key":   int32(k),
			"value": m[k],
		})
	}
	return map[string]interface{}{"array": arr}
}

func unionLongs(v []int64) interface{} {
	if len(v) == 0 {
		return nil
	}
	arr := make([]interface{}, len(v))
	for i, x := range v {
		arr[i] = x
	}
	return map[string]interface{}{"array": arr}
}

func unionInts(v []int) interface{} {
	if len(v) == 0 {
		return nil
	}
	arr := make([]interface{}, len(v))
	for i, x := range v {
		arr[i] = int32(x)
	}
	return map[string]interface{}{"array": arr}
}
