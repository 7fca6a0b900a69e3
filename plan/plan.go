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

// Package plan turns one snapshot of an Iceberg table into an
// executable scan plan.
//
// [Planner.Plan] resolves the requested table version, pushes
// eligible filters down to file-level pruning, and emits one
// [Split] per byte range of each surviving data file, with the
// delete files that apply to the range resolved into
// [DeleteFilter]s. Plans are self-contained: they can be
// serialized with [Result.Encode] and distributed to workers
// picked by [Assign].
package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SnellerInc/floe/iceberg"

	"github.com/google/uuid"
	"vitess.io/vitess/go/vt/sqlparser"
)

// DefaultSplitSize is the byte-range size that splits are
// tiled to when the planner does not choose one.
const DefaultSplitSize = 128 * 1024 * 1024

var (
	// ErrBadSelector is returned by [Planner.Plan] when a
	// request names a table version that cannot be used:
	// an id outside the snapshot history, an unparseable
	// time-travel string, a time before the first commit
	// (also iceberg.ErrNoSnapshot), or both selectors at
	// once.
	ErrBadSelector = errors.New("bad snapshot selector")

	// ErrEqualityDeletes is returned by [Planner.Plan] when
	// a matched data file has an equality delete file
	// associated with it. Executors can only apply
	// position deletes.
	ErrEqualityDeletes = errors.New("equality delete files not supported")
)

// Table is a read-only handle to the table being planned.
// *db.Table implements Table.
type Table interface {
	// FormatVersion returns the table format version.
	FormatVersion() int
	// Properties returns the table properties.
	Properties() map[string]string
	// History returns the table's snapshot history.
	History() []iceberg.Snapshot
	// Current returns the current snapshot id, or false
	// when the table has no committed snapshots.
	Current() (int64, bool)
	// Schema returns the table's current schema.
	Schema() *iceberg.Schema
	// Scan produces the scan tasks for one snapshot,
	// tiled to at most chunk bytes, with delete files
	// associated. See db.Table.Scan.
	Scan(ctx context.Context, snapID int64, where []iceberg.Expr, chunk int64) ([]iceberg.Task, error)
}

// Planner plans table scans. The zero value is usable.
type Planner struct {
	// SplitSize is the target byte-range size per split.
	// Zero means DefaultSplitSize.
	SplitSize int64

	// Translate converts one SQL conjunct into a pruning
	// predicate over the given schema. A false return means
	// the conjunct cannot be expressed; the planner scans
	// without it. Nil disables pushdown entirely.
	Translate func(e sqlparser.Expr, s *iceberg.Schema) (iceberg.Expr, bool)

	// Logf, if non-nil, receives diagnostic messages.
	Logf func(f string, args ...interface{})
}

func (p *Planner) logf(f string, args ...interface{}) {
	if p.Logf != nil {
		p.Logf(f, args...)
	}
}

func (p *Planner) splitSize() int64 {
	if p.SplitSize <= 0 {
		return DefaultSplitSize
	}
	return p.SplitSize
}

// Request selects what to scan.
//
// Version and AsOf choose the table version and are mutually
// exclusive; when neither is set, the current snapshot is
// planned. A table with no snapshots yields an empty plan.
type Request struct {
	// Filter holds the conjuncts of the query's WHERE
	// clause that the caller wants pushed down. Conjuncts
	// the planner cannot use are ignored, never rejected.
	Filter []sqlparser.Expr

	// Version pins the scan to an exact snapshot id.
	Version *int64

	// AsOf pins the scan to the latest snapshot committed
	// at or before a point in time, written in any layout
	// accepted by iceberg.ParseAsOf.
	AsOf string

	// Location resolves AsOf strings that carry no zone.
	// Nil means UTC.
	Location *time.Location
}

// Result is a complete plan for one snapshot.
type Result struct {
	// ID identifies this planning run (for logs and
	// executor correlation); it is fresh on every call.
	ID uuid.UUID
	// Snapshot is the snapshot the plan reads, or -1 when
	// the table had none.
	Snapshot int64
	// Format is the file format every split is stored in.
	Format iceberg.FileFormat
	// PartitionKeys names the columns an executor would have
	// to parse out of file paths. Iceberg absorbs partition
	// pruning into metadata pushdown, so the list is always
	// empty; it stays on the wire for execution layers that
	// also consume path-partitioned formats.
	PartitionKeys []string
	// Splits is the scan work, in deterministic order.
	Splits []Split
}

// Plan plans a scan of tbl.
//
// Plan fails up front when the table's default file format is
// unsupported, when the request's version selector cannot be
// resolved, or when any matched file carries equality deletes;
// it never returns a partial plan.
func (p *Planner) Plan(ctx context.Context, tbl Table, req *Request) (*Result, error) {
	if req == nil {
		req = &Request{}
	}
	format, err := iceberg.DefaultFileFormat(tbl.Properties())
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	snapID, ok, err := p.snapshot(tbl, req)
	if err != nil {
		return nil, err
	}
	res := &Result{ID: uuid.New(), Snapshot: -1, Format: format, PartitionKeys: []string{}}
	if !ok {
		// no committed snapshots; nothing to scan
		return res, nil
	}
	res.Snapshot = snapID

	// read the format version once so that every split of
	// this plan agrees on whether deletes can exist
	fv := tbl.FormatVersion()
	where := p.pushdown(req.Filter, tbl.Schema())
	tasks, err := tbl.Scan(ctx, snapID, where, p.splitSize())
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	res.Splits = make([]Split, 0, len(tasks))
	for i := range tasks {
		s := Split{
			Path:          tasks[i].Path,
			Start:         tasks[i].Start,
			Length:        tasks[i].Length,
			Hosts:         []string{},
			FormatVersion: fv,
		}
		if fv >= iceberg.DeleteVersion {
			s.Deletes, err = deleteFilters(&tasks[i])
			if err != nil {
				return nil, err
			}
		}
		res.Splits = append(res.Splits, s)
	}
	p.logf("plan %s: snapshot %d: %d splits", res.ID, snapID, len(res.Splits))
	return res, nil
}

// snapshot resolves the version selected by req against the
// table history. ok is false when the table has no snapshot
// to read (and that is not an error).
func (p *Planner) snapshot(tbl Table, req *Request) (id int64, ok bool, err error) {
	if req.Version != nil && req.AsOf != "" {
		return 0, false, fmt.Errorf("plan: version %d and time %q both requested: %w",
			*req.Version, req.AsOf, ErrBadSelector)
	}
	if req.Version != nil {
		id := *req.Version
		hist := tbl.History()
		for i := range hist {
			if hist[i].ID == id {
				return id, true, nil
			}
		}
		return 0, false, fmt.Errorf("plan: snapshot %d not in table history: %w", id, ErrBadSelector)
	}
	if req.AsOf != "" {
		ms, err := iceberg.ParseAsOf(req.AsOf, req.Location)
		if err != nil {
			return 0, false, fmt.Errorf("plan: cannot parse time %q: %w", req.AsOf, ErrBadSelector)
		}
		id, err := iceberg.SnapshotAsOf(tbl.History(), ms)
		if err != nil {
			return 0, false, fmt.Errorf("plan: %w: %w", ErrBadSelector, err)
		}
		return id, true, nil
	}
	id, ok = tbl.Current()
	return id, ok, nil
}

// pushdown translates the request's conjuncts into pruning
// predicates. Conjuncts that do not translate are dropped:
// pruning with fewer predicates is safe, just less selective.
func (p *Planner) pushdown(filter []sqlparser.Expr, schema *iceberg.Schema) []iceberg.Expr {
	if len(filter) == 0 {
		return nil
	}
	if p.Translate == nil {
		p.logf("plan: no translator configured; scanning without pushdown")
		return nil
	}
	var where []iceberg.Expr
	for _, e := range filter {
		if e == nil {
			continue
		}
		t, ok := p.Translate(e, schema)
		if !ok {
			p.logf("plan: cannot push down %s", sqlparser.String(e))
			continue
		}
		where = append(where, t)
	}
	return where
}
