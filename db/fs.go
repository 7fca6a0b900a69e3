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

// Package db reads Iceberg tables out of a filesystem.
//
// A [Table] is a read-only handle to one table rooted inside an
// [InputFS]. Opening a table decodes its current metadata
// document; [Table.Scan] turns one snapshot into file scan
// tasks, with delete files associated and byte ranges tiled so
// that a planner can distribute them.
package db

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// InputFS is the filesystem implementation required
// for reading table metadata.
type InputFS interface {
	fs.FS

	// Prefix returns a string that is prepended to
	// filesystem paths to indicate the filesystem
	// "origin." For example, a bucket-backed FS would
	// have
	//   s3://bucket/
	// as its prefix.
	Prefix() string

	// ETag returns the ETag of a file. ETag must be
	// implemented for at least ordinary files.
	ETag(fullpath string, info fs.FileInfo) (string, error)
}

// OutputFS is the filesystem implementation required
// for writing table metadata. Scanning never writes;
// OutputFS exists for tools and tests that lay down
// fixtures.
type OutputFS interface {
	InputFS

	// WriteFile creates the file at path with the given
	// contents, overwriting it atomically if it already
	// exists, and returns the ETag of the written file.
	WriteFile(path string, buf []byte) (etag string, err error)
}

// ErrBadPattern is returned by [Resolver] implementations
// when a table location does not match the scheme they serve.
var ErrBadPattern = errors.New("bad table location")

func badPattern(loc string) error {
	return fmt.Errorf("%w: %q", ErrBadPattern, loc)
}

// Resolver turns a table location into a filesystem
// plus the table root path inside it.
type Resolver interface {
	// Split maps a location like
	//   s3://bucket/warehouse/db/tbl
	// to the filesystem rooted at the origin and the
	// path of the table below it.
	Split(location string) (InputFS, string, error)
}

// LocalResolver resolves file:// and plain paths
// to a [DirFS].
type LocalResolver struct {
	// Log, if non-nil, is passed to the returned DirFS.
	Log func(f string, args ...interface{})
}

// Split implements Resolver.Split
func (l *LocalResolver) Split(location string) (InputFS, string, error) {
	p := strings.TrimPrefix(location, "file://")
	if p == "" || strings.Contains(p, "://") {
		return nil, "", badPattern(location)
	}
	d := NewDirFS("/")
	d.Log = l.Log
	return d, strings.TrimPrefix(p, "/"), nil
}
