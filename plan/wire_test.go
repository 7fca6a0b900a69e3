// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package plan

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/SnellerInc/floe/iceberg"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
)

func wireResult() *Result {
	lo, hi := int64(0), int64(99)
	return &Result{
		ID:            uuid.MustParse("deadbeef-0000-4000-8000-000000000001"),
		Snapshot:      7702,
		Format:        iceberg.FormatParquet,
		PartitionKeys: []string{},
		Splits: []Split{
			{
				Path:          "s3://lake/wh/t/data/f0.parquet",
				Start:         0,
				Length:        128 << 20,
				Hosts:         []string{},
				FormatVersion: 2,
				Deletes: []DeleteFilter{
					{Kind: iceberg.ContentPosDelete, Path: "s3://lake/wh/t/data/pd0.parquet",
						Lower: &lo, Upper: &hi},
					{Kind: iceberg.ContentPosDelete, Path: "s3://lake/wh/t/data/pd1.parquet"},
				},
			},
			{
				Path:          "s3://lake/wh/t/data/f1.parquet",
				Start:         128 << 20,
				Length:        37,
				Hosts:         []string{},
				FormatVersion: 2,
			},
			// the wire format can carry equality filters even
			// though this planner refuses to emit them
			{
				Path:          "s3://lake/wh/t/data/f2.parquet",
				Start:         0,
				Length:        10,
				Hosts:         []string{"worker-3"},
				FormatVersion: 2,
				Deletes: []DeleteFilter{
					{Kind: iceberg.ContentEqDelete, Path: "s3://lake/wh/t/data/ed0.parquet",
						FieldIDs: []int{1, 2}},
				},
			},
		},
	}
}

func TestWireRoundTrip(t *testing.T) {
	res := wireResult()
	var buf bytes.Buffer
	if err := res.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, res) {
		t.Errorf("round trip mismatch:\nencoded: %sdecoded: %s",
			spew.Sdump(res), spew.Sdump(got))
	}
	// absent bounds must come back absent, not zero
	pd1 := got.Splits[0].Deletes[1]
	if pd1.Lower != nil || pd1.Upper != nil {
		t.Errorf("pd1 bounds %v %v", pd1.Lower, pd1.Upper)
	}
	if got.Splits[0].Content() != iceberg.ContentPosDelete {
		t.Errorf("split 0 content %d", got.Splits[0].Content())
	}
	if got.Splits[1].Content() != iceberg.ContentData {
		t.Errorf("split 1 content %d", got.Splits[1].Content())
	}
	if got.Splits[2].Content() != iceberg.ContentEqDelete {
		t.Errorf("split 2 content %d", got.Splits[2].Content())
	}
}

func TestWireDeterministic(t *testing.T) {
	res := wireResult()
	var a, b bytes.Buffer
	if err := res.Encode(&a); err != nil {
		t.Fatal(err)
	}
	if err := res.Encode(&b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("same plan encoded differently twice")
	}
}

func TestWireEmptyPlan(t *testing.T) {
	res := &Result{ID: uuid.New(), Snapshot: -1, Format: iceberg.FormatORC}
	var buf bytes.Buffer
	if err := res.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != res.ID || got.Snapshot != -1 || got.Format != iceberg.FormatORC {
		t.Errorf("got %+v", got)
	}
	if len(got.Splits) != 0 {
		t.Errorf("splits %+v", got.Splits)
	}
	if got.PartitionKeys == nil || len(got.PartitionKeys) != 0 {
		t.Errorf("partition keys %#v", got.PartitionKeys)
	}
}

func TestWireForeignTag(t *testing.T) {
	native := encodeSplit(&wireResult().Splits[0])
	native["table_format"] = "hudi"
	if _, err := decodeSplit(native); !errors.Is(err, ErrBadFrame) {
		t.Errorf("got %v, want ErrBadFrame", err)
	}
}

func TestWireBadFrame(t *testing.T) {
	res := wireResult()
	var buf bytes.Buffer
	if err := res.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	good := buf.Bytes()

	bad := [][]byte{
		nil,
		[]byte("flo"),
		[]byte("avro" + string(good[4:])),          // wrong magic
		append([]byte("floe\x02"), good[5:]...),    // wrong version
		good[:len(good)-3],                         // truncated compression frame
		append(bytes.Clone(good), 0xff, 0xfe, 0xfd), // trailing garbage
	}
	for i, b := range bad {
		if _, err := Decode(bytes.NewReader(b)); !errors.Is(err, ErrBadFrame) {
			t.Errorf("case %d: got %v, want ErrBadFrame", i, err)
		}
	}
}
