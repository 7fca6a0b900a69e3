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
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

// MinFS is an [InputFS] and [OutputFS] backed by a bucket on
// an S3-compatible object store. Operations use background
// contexts internally; cancellation is handled by callers
// between object reads.
type MinFS struct {
	Client *minio.Client
	Bucket string
}

// DialMinFS connects to an S3-compatible endpoint with static
// credentials and returns a MinFS for the given bucket.
func DialMinFS(endpoint, access, secret, bucket string, secure bool) (*MinFS, error) {
	if err := s3utils.CheckValidBucketName(bucket); err != nil {
		return nil, fmt.Errorf("db.DialMinFS: %w", err)
	}
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("db.DialMinFS: %w", err)
	}
	return &MinFS{Client: c, Bucket: bucket}, nil
}

// Prefix implements InputFS.Prefix
func (m *MinFS) Prefix() string {
	return "s3://" + m.Bucket + "/"
}

// Open implements fs.FS.Open
func (m *MinFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) || name == "." {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	obj, err := m.Client.GetObject(context.Background(), m.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: noSuchKey(err)}
	}
	return &minFile{obj: obj, name: name}, nil
}

// ETag implements InputFS.ETag
func (m *MinFS) ETag(fullpath string, info fs.FileInfo) (string, error) {
	if fi, ok := info.(*minFileInfo); ok {
		return fi.info.ETag, nil
	}
	return "", fmt.Errorf("cannot produce ETag for %T", info)
}

// WriteFile implements OutputFS.WriteFile
//
// Object stores replace objects atomically, so no
// rename dance is needed.
func (m *MinFS) WriteFile(fullpath string, buf []byte) (string, error) {
	if !fs.ValidPath(fullpath) {
		return "", fs.ErrInvalid
	}
	up, err := m.Client.PutObject(context.Background(), m.Bucket, fullpath,
		bytes.NewReader(buf), int64(len(buf)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("db: writing %s: %w", fullpath, err)
	}
	return up.ETag, nil
}

// ReadDir implements fs.ReadDirFS so that metadata
// directories can be listed for version discovery.
func (m *MinFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	prefix := ""
	if name != "." {
		prefix = name + "/"
	}
	var out []fs.DirEntry
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: false}
	for obj := range m.Client.ListObjects(context.Background(), m.Bucket, opts) {
		if obj.Err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: obj.Err}
		}
		key := strings.TrimPrefix(obj.Key, prefix)
		if key == "" {
			continue
		}
		if sub, ok := strings.CutSuffix(key, "/"); ok {
			out = append(out, &minDirEntry{name: sub, dir: true})
			continue
		}
		out = append(out, &minDirEntry{
			name: key,
			info: &minFileInfo{name: key, info: obj},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// noSuchKey maps the object store's missing-key error
// onto fs.ErrNotExist so that errors.Is works the same
// way for every filesystem.
func noSuchKey(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fs.ErrNotExist
	}
	return err
}

type minFile struct {
	obj  *minio.Object
	name string
}

func (f *minFile) Read(p []byte) (int, error) {
	n, err := f.obj.Read(p)
	if err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return n, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrNotExist}
	}
	return n, err
}

func (f *minFile) Close() error { return f.obj.Close() }

func (f *minFile) Stat() (fs.FileInfo, error) {
	info, err := f.obj.Stat()
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: f.name, Err: noSuchKey(err)}
	}
	return &minFileInfo{name: path.Base(f.name), info: info}, nil
}

type minFileInfo struct {
	name string
	info minio.ObjectInfo
}

func (i *minFileInfo) Name() string       { return i.name }
func (i *minFileInfo) Size() int64        { return i.info.Size }
func (i *minFileInfo) Mode() fs.FileMode  { return 0644 }
func (i *minFileInfo) ModTime() time.Time { return i.info.LastModified }
func (i *minFileInfo) IsDir() bool        { return false }
func (i *minFileInfo) Sys() interface{}   { return &i.info }

type minDirEntry struct {
	name string
	dir  bool
	info *minFileInfo
}

func (e *minDirEntry) Name() string { return e.name }
func (e *minDirEntry) IsDir() bool  { return e.dir }

func (e *minDirEntry) Type() fs.FileMode {
	if e.dir {
		return fs.ModeDir
	}
	return 0
}

func (e *minDirEntry) Info() (fs.FileInfo, error) {
	if e.info == nil {
		return nil, fs.ErrNotExist
	}
	return e.info, nil
}

// MinResolver resolves s3:// table locations to a [MinFS].
type MinResolver struct {
	// Dial returns the client used for a particular bucket.
	Dial func(bucket string) (*minio.Client, error)
}

// Split implements Resolver.Split
func (m *MinResolver) Split(location string) (InputFS, string, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return nil, "", badPattern(location)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return nil, "", badPattern(location)
	}
	if err := s3utils.CheckValidBucketName(bucket); err != nil {
		return nil, "", badPattern(location)
	}
	c, err := m.Dial(bucket)
	if err != nil {
		return nil, "", err
	}
	return &MinFS{Client: c, Bucket: bucket}, key, nil
}

var (
	_ InputFS      = &MinFS{}
	_ OutputFS     = &MinFS{}
	_ fs.ReadDirFS = &MinFS{}
	_ Resolver     = &MinResolver{}
	_ Resolver     = &LocalResolver{}
)
