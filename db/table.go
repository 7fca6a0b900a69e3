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
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/SnellerInc/floe/iceberg"
)

// Table is a read-only handle to one Iceberg table.
// A Table is safe for concurrent use once opened.
type Table struct {
	fs   InputFS
	root string
	meta *iceberg.TableMetadata

	// Logf, if non-nil, receives diagnostic messages
	// during scans.
	Logf func(f string, args ...interface{})

	// Conf adjusts scan behavior; the zero value
	// uses the defaults.
	Conf Config
}

func (t *Table) logf(f string, args ...interface{}) {
	if t.Logf != nil {
		t.Logf(f, args...)
	}
}

// Open opens the table rooted at root inside ifs.
//
// The current metadata document is located through
// metadata/version-hint.text when present; otherwise the
// highest-numbered vN.metadata.json in the metadata directory
// is used.
func Open(ifs InputFS, root string) (*Table, error) {
	mdir := path.Join(root, "metadata")
	hint, err := fs.ReadFile(ifs, path.Join(mdir, "version-hint.text"))
	if err == nil {
		v := strings.TrimSpace(string(hint))
		return OpenMetadata(ifs, path.Join(mdir, "v"+v+".metadata.json"))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("db.Open: %w", err)
	}
	ents, err := fs.ReadDir(ifs, mdir)
	if err != nil {
		return nil, fmt.Errorf("db.Open: %w", err)
	}
	best, bestv := "", -1
	for _, e := range ents {
		v, ok := metadataVersion(e.Name())
		if ok && v > bestv {
			best, bestv = e.Name(), v
		}
	}
	if best == "" {
		return nil, fmt.Errorf("db.Open: no vN.metadata.json under %s%s", ifs.Prefix(), mdir)
	}
	return OpenMetadata(ifs, path.Join(mdir, best))
}

// metadataVersion extracts N from "vN.metadata.json".
func metadataVersion(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "v")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".metadata.json")
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(rest)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// OpenMetadata opens a table from an explicit metadata
// document path like wh/db/tbl/metadata/v3.metadata.json.
// The table root is taken to be the parent of the metadata
// directory.
func OpenMetadata(ifs InputFS, metaPath string) (*Table, error) {
	f, err := ifs.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("db.OpenMetadata: %w", err)
	}
	defer f.Close()
	meta, err := iceberg.DecodeMetadata(f)
	if err != nil {
		return nil, fmt.Errorf("db.OpenMetadata: %s: %w", metaPath, err)
	}
	return &Table{
		fs:   ifs,
		root: path.Dir(path.Dir(metaPath)),
		meta: meta,
	}, nil
}

// FormatVersion returns the table format version.
func (t *Table) FormatVersion() int { return t.meta.FormatVersion }

// Properties returns the table properties. The returned
// map is shared; callers must not modify it.
func (t *Table) Properties() map[string]string { return t.meta.Properties }

// History returns the table's snapshot history. The returned
// slice is shared; callers must not modify it.
func (t *Table) History() []iceberg.Snapshot { return t.meta.Snapshots }

// Current returns the current snapshot id, or false when the
// table has no committed snapshots.
func (t *Table) Current() (int64, bool) {
	s, ok := t.meta.Current()
	if !ok {
		return 0, false
	}
	return s.ID, true
}

// Schema returns the table's current schema.
func (t *Table) Schema() *iceberg.Schema { return t.meta.Schema() }

// Location returns the table root location, prefixed with the
// filesystem origin when the metadata does not carry one.
func (t *Table) Location() string {
	if t.meta.Location != "" {
		return t.meta.Location
	}
	return t.fs.Prefix() + t.root
}

// resolve maps a location URI from the table metadata onto a
// path inside the table's filesystem. Locations below the
// table location translate into paths below the table root;
// scheme-less locations are taken as relative to the root
// already. Locations outside the table cannot be read through
// this handle.
func (t *Table) resolve(loc string) (string, error) {
	if rest, ok := strings.CutPrefix(loc, t.meta.Location+"/"); ok && t.meta.Location != "" {
		return path.Join(t.root, rest), nil
	}
	if !strings.Contains(loc, "://") {
		p := path.Clean(loc)
		if strings.HasPrefix(p, "../") || p == ".." {
			return "", fmt.Errorf("db: location %q escapes the table root", loc)
		}
		if p == t.root || strings.HasPrefix(p, t.root+"/") {
			return p, nil
		}
		return path.Join(t.root, p), nil
	}
	return "", fmt.Errorf("db: location %q is outside table %q", loc, t.Location())
}

// open opens a metadata location through [Table.resolve].
func (t *Table) open(loc string) (fs.File, error) {
	p, err := t.resolve(loc)
	if err != nil {
		return nil, err
	}
	return t.fs.Open(p)
}
