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
	"fmt"
	"io"

	"github.com/SnellerInc/floe/iceberg"

	"github.com/klauspost/compress/zstd"
	"github.com/linkedin/goavro/v2"
)

// ErrBadFrame is returned by [Decode] when the input is not an
// encoded plan.
var ErrBadFrame = errors.New("bad plan frame")

// wire frame: 4-byte magic, 1 version byte, then the Avro
// payload compressed as a single zstd frame
var wireMagic = []byte("floe")

const wireVersion = 1

// planSchema is the Avro encoding of a [Result]. The optional
// row-position bounds are unions so that "not recorded" stays
// distinguishable from any real position.
const planSchema = `
{"type": "record", "name": "scan_plan", "fields": [
 {"name": "id", "type": {"type": "fixed", "name": "plan_id", "size": 16}},
 {"name": "snapshot", "type": "long"},
 {"name": "format", "type": "string"},
 {"name": "partition_keys", "type": {"type": "array", "items": "string"}},
 {"name": "splits", "type": {"type": "array", "items": {
  "type": "record", "name": "split", "fields": [
   {"name": "table_format", "type": "string"},
   {"name": "path", "type": "string"},
   {"name": "start", "type": "long"},
   {"name": "length", "type": "long"},
   {"name": "hosts", "type": {"type": "array", "items": "string"}},
   {"name": "format_version", "type": "int"},
   {"name": "content", "type": "int"},
   {"name": "deletes", "type": {"type": "array", "items": {
    "type": "record", "name": "delete_filter", "fields": [
     {"name": "kind", "type": "int"},
     {"name": "path", "type": "string"},
     {"name": "lower", "type": ["null", "long"], "default": null},
     {"name": "upper", "type": ["null", "long"], "default": null},
     {"name": "field_ids", "type": {"type": "array", "items": "int"}}
    ]}}}
  ]}}}
]}`

var (
	planCodec *goavro.Codec
	wireEnc   *zstd.Encoder
	wireDec   *zstd.Decoder
)

func init() {
	c, err := goavro.NewCodec(planSchema)
	if err != nil {
		panic("plan: bad wire schema: " + err.Error())
	}
	planCodec = c
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	wireEnc = enc
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	wireDec = dec
}

// Encode writes the plan to w in a form that [Decode] reverses.
func (r *Result) Encode(w io.Writer) error {
	splits := make([]interface{}, 0, len(r.Splits))
	for i := range r.Splits {
		splits = append(splits, encodeSplit(&r.Splits[i]))
	}
	keys := make([]interface{}, len(r.PartitionKeys))
	for i := range r.PartitionKeys {
		keys[i] = r.PartitionKeys[i]
	}
	native := map[string]interface{}{
		"id":             r.ID[:],
		"snapshot":       r.Snapshot,
		"format":         string(r.Format),
		"partition_keys": keys,
		"splits":         splits,
	}
	payload, err := planCodec.BinaryFromNative(nil, native)
	if err != nil {
		return fmt.Errorf("plan.Encode: %w", err)
	}
	buf := make([]byte, 0, len(wireMagic)+1+len(payload)/2)
	buf = append(buf, wireMagic...)
	buf = append(buf, wireVersion)
	buf = wireEnc.EncodeAll(payload, buf)
	_, err = w.Write(buf)
	return err
}

func encodeSplit(s *Split) map[string]interface{} {
	hosts := make([]interface{}, len(s.Hosts))
	for i := range s.Hosts {
		hosts[i] = s.Hosts[i]
	}
	dels := make([]interface{}, 0, len(s.Deletes))
	for i := range s.Deletes {
		d := &s.Deletes[i]
		ids := make([]interface{}, len(d.FieldIDs))
		for j := range d.FieldIDs {
			ids[j] = int32(d.FieldIDs[j])
		}
		dels = append(dels, map[string]interface{}{
			"kind":      int32(d.Kind),
			"path":      d.Path,
			"lower":     optLong(d.Lower),
			"upper":     optLong(d.Upper),
			"field_ids": ids,
		})
	}
	return map[string]interface{}{
		"table_format":   FormatTag,
		"path":           s.Path,
		"start":          s.Start,
		"length":         s.Length,
		"hosts":          hosts,
		"format_version": int32(s.FormatVersion),
		"content":        int32(s.Content()),
		"deletes":        dels,
	}
}

func optLong(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return map[string]interface{}{"long": *v}
}

// Decode reads a plan written by [Result.Encode].
func Decode(r io.Reader) (*Result, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("plan.Decode: %w", err)
	}
	if len(buf) <= len(wireMagic) || !bytes.Equal(buf[:len(wireMagic)], wireMagic) {
		return nil, fmt.Errorf("plan.Decode: %w", ErrBadFrame)
	}
	if v := buf[len(wireMagic)]; v != wireVersion {
		return nil, fmt.Errorf("plan.Decode: version %d: %w", v, ErrBadFrame)
	}
	payload, err := wireDec.DecodeAll(buf[len(wireMagic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("plan.Decode: %w: %s", ErrBadFrame, err)
	}
	native, rest, err := planCodec.NativeFromBinary(payload)
	if err != nil {
		return nil, fmt.Errorf("plan.Decode: %w: %s", ErrBadFrame, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("plan.Decode: %d trailing bytes: %w", len(rest), ErrBadFrame)
	}
	top, ok := native.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("plan.Decode: %w", ErrBadFrame)
	}
	res := &Result{
		Snapshot:      wireLong(top["snapshot"]),
		Format:        iceberg.FileFormat(wireString(top["format"])),
		PartitionKeys: []string{},
	}
	if id, ok := top["id"].([]byte); ok && len(id) == len(res.ID) {
		copy(res.ID[:], id)
	}
	if keys, ok := top["partition_keys"].([]interface{}); ok {
		for _, k := range keys {
			res.PartitionKeys = append(res.PartitionKeys, wireString(k))
		}
	}
	items, _ := top["splits"].([]interface{})
	res.Splits = make([]Split, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("plan.Decode: %w", ErrBadFrame)
		}
		s, err := decodeSplit(m)
		if err != nil {
			return nil, err
		}
		res.Splits = append(res.Splits, s)
	}
	return res, nil
}

func decodeSplit(m map[string]interface{}) (Split, error) {
	if tag := wireString(m["table_format"]); tag != FormatTag {
		return Split{}, fmt.Errorf("plan.Decode: table format %q: %w", tag, ErrBadFrame)
	}
	s := Split{
		Path:          wireString(m["path"]),
		Start:         wireLong(m["start"]),
		Length:        wireLong(m["length"]),
		Hosts:         []string{},
		FormatVersion: int(wireInt(m["format_version"])),
	}
	if hosts, ok := m["hosts"].([]interface{}); ok {
		for _, h := range hosts {
			s.Hosts = append(s.Hosts, wireString(h))
		}
	}
	dels, _ := m["deletes"].([]interface{})
	for _, it := range dels {
		dm, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		d := DeleteFilter{
			Kind:  int(wireInt(dm["kind"])),
			Path:  wireString(dm["path"]),
			Lower: wireOptLong(dm["lower"]),
			Upper: wireOptLong(dm["upper"]),
		}
		if ids, ok := dm["field_ids"].([]interface{}); ok && len(ids) > 0 {
			d.FieldIDs = make([]int, 0, len(ids))
			for _, id := range ids {
				d.FieldIDs = append(d.FieldIDs, int(wireInt(id)))
			}
		}
		s.Deletes = append(s.Deletes, d)
	}
	return s, nil
}

func wireString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func wireLong(v interface{}) int64 {
	x, _ := v.(int64)
	return x
}

func wireInt(v interface{}) int32 {
	x, _ := v.(int32)
	return x
}

func wireOptLong(v interface{}) *int64 {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	x, ok := m["long"].(int64)
	if !ok {
		return nil
	}
	return &x
}
