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
	"encoding/base32"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// NewDirFS creates a new DirFS rooted in dir.
func NewDirFS(dir string) *DirFS {
	return &DirFS{
		FS:   os.DirFS(dir),
		Root: dir,
	}
}

// DirFS is an [InputFS] and [OutputFS] rooted
// in a local directory.
type DirFS struct {
	fs.FS
	Root string
	Log  func(f string, args ...interface{})
}

func hashFile(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(h, r)
	if err != nil {
		return "", err
	}
	return "b2sum:" + base32.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Prefix implements InputFS.Prefix
func (d *DirFS) Prefix() string {
	return "file://"
}

// ETag implements InputFS.ETag
//
// Local files have no native ETag, so DirFS
// hashes the file contents instead.
func (d *DirFS) ETag(fullpath string, info fs.FileInfo) (string, error) {
	fullpath = path.Clean(fullpath)
	if d.Log != nil {
		d.Log("ETag %s", fullpath)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("cannot get ETag of non-regular file %s", fullpath)
	}
	f, err := d.Open(fullpath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hashFile(f)
}

// Remove removes the file at the specified path.
func (d *DirFS) Remove(fullpath string) error {
	fullpath = path.Clean(fullpath)
	if !fs.ValidPath(fullpath) {
		return fmt.Errorf("%s: %s", fullpath, fs.ErrInvalid)
	}
	return os.Remove(filepath.Join(d.Root, fullpath))
}

// WriteFile implements OutputFS.WriteFile
func (d *DirFS) WriteFile(fullpath string, buf []byte) (string, error) {
	if d.Log != nil {
		d.Log("WriteFile %s", fullpath)
	}
	if !fs.ValidPath(fullpath) {
		return "", fs.ErrInvalid
	}
	fullpath = filepath.Clean(filepath.Join(d.Root, fullpath))
	dir, base := filepath.Split(fullpath)
	if dir == "" {
		dir = "."
	}
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, base)
	if err != nil {
		return "", err
	}
	_, err = tmp.Write(buf)
	tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	err = os.Rename(tmp.Name(), fullpath)
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	ret := blake2b.Sum256(buf)
	return "b2sum:" + base32.StdEncoding.EncodeToString(ret[:]), nil
}

var (
	_ InputFS  = &DirFS{}
	_ OutputFS = &DirFS{}
)
